// Package model holds the version-neutral shapes of the terminology
// resources the engines work with. The server package translates these to
// and from the per-version wire forms at the gateway boundary.
package model

import "strings"

// CodeSystemContent is the CodeSystem.content mode.
type CodeSystemContent string

// CodeSystem content modes.
const (
	ContentComplete   CodeSystemContent = "complete"
	ContentFragment   CodeSystemContent = "fragment"
	ContentExample    CodeSystemContent = "example"
	ContentSupplement CodeSystemContent = "supplement"
	ContentNotPresent CodeSystemContent = "not-present"
)

// Coding is a single coded value on the wire.
type Coding struct {
	System  string `json:"system,omitempty"`
	Version string `json:"version,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept carries human text plus an ordered list of codings.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Designation is an alternate, language- and use-tagged display for a concept.
type Designation struct {
	Language string  `json:"language,omitempty"`
	Use      *Coding `json:"use,omitempty"`
	Value    string  `json:"value"`
}

// Property is a typed concept property value.
type Property struct {
	Code string `json:"code"`

	// Exactly one of the value fields is set.
	ValueCode     string   `json:"valueCode,omitempty"`
	ValueString   string   `json:"valueString,omitempty"`
	ValueBoolean  *bool    `json:"valueBoolean,omitempty"`
	ValueInteger  *int     `json:"valueInteger,omitempty"`
	ValueDecimal  string   `json:"valueDecimal,omitempty"`
	ValueCoding   *Coding  `json:"valueCoding,omitempty"`
	ValueDateTime string   `json:"valueDateTime,omitempty"`
}

// Value returns whichever value field is set, as an any.
func (p Property) Value() any {
	switch {
	case p.ValueCode != "":
		return p.ValueCode
	case p.ValueString != "":
		return p.ValueString
	case p.ValueBoolean != nil:
		return *p.ValueBoolean
	case p.ValueInteger != nil:
		return *p.ValueInteger
	case p.ValueDecimal != "":
		return p.ValueDecimal
	case p.ValueCoding != nil:
		return *p.ValueCoding
	case p.ValueDateTime != "":
		return p.ValueDateTime
	default:
		return nil
	}
}

// PropertyDef declares a property a CodeSystem may carry on its concepts.
type PropertyDef struct {
	Code        string `json:"code"`
	URI         string `json:"uri,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
}

// Concept is a node of a CodeSystem concept tree.
type Concept struct {
	Code        string        `json:"code"`
	Display     string        `json:"display,omitempty"`
	Definition  string        `json:"definition,omitempty"`
	Designation []Designation `json:"designation,omitempty"`
	Property    []Property    `json:"property,omitempty"`
	Concept     []Concept     `json:"concept,omitempty"`
}

// CodeSystem is the version-neutral CodeSystem resource.
type CodeSystem struct {
	ID            string            `json:"id,omitempty"`
	URL           string            `json:"url"`
	Version       string            `json:"version,omitempty"`
	Name          string            `json:"name,omitempty"`
	Title         string            `json:"title,omitempty"`
	Status        string            `json:"status,omitempty"`
	Content       CodeSystemContent `json:"content,omitempty"`
	CaseSensitive bool              `json:"caseSensitive,omitempty"`
	HierarchyMeaning string         `json:"hierarchyMeaning,omitempty"`
	ValueSet      string            `json:"valueSet,omitempty"`
	Language      string            `json:"language,omitempty"`
	Supplements   string            `json:"supplements,omitempty"`
	Property      []PropertyDef     `json:"property,omitempty"`
	Concept       []Concept         `json:"concept,omitempty"`
}

// VersionedURL returns "url|version", or the bare url when unversioned.
func (cs *CodeSystem) VersionedURL() string {
	if cs.Version == "" {
		return cs.URL
	}
	return cs.URL + "|" + cs.Version
}

// ConceptRef is an enumerated concept inside a ValueSet include or exclude.
type ConceptRef struct {
	Code        string        `json:"code"`
	Display     string        `json:"display,omitempty"`
	Designation []Designation `json:"designation,omitempty"`
}

// Filter selects concepts by a property predicate. Value is always a
// string, never booleanized: its semantic type is determined by the target
// system's property, not by the lexical form.
type Filter struct {
	Property string `json:"property"`
	Op       string `json:"op"`
	Value    string `json:"value"`

	// ValueAbsentReason preserves the data-absent-reason extension when the
	// filter value element itself is absent.
	ValueAbsentReason string `json:"_valueAbsentReason,omitempty"`
}

// Include is one compose.include or compose.exclude entry.
type Include struct {
	System   string       `json:"system,omitempty"`
	Version  string       `json:"version,omitempty"`
	Concept  []ConceptRef `json:"concept,omitempty"`
	Filter   []Filter     `json:"filter,omitempty"`
	ValueSet []string     `json:"valueSet,omitempty"`
}

// Compose is the ValueSet composition.
type Compose struct {
	Include []Include `json:"include,omitempty"`
	Exclude []Include `json:"exclude,omitempty"`
}

// Contains is one entry of a materialized expansion.
type Contains struct {
	System      string        `json:"system,omitempty"`
	Version     string        `json:"version,omitempty"`
	Code        string        `json:"code,omitempty"`
	Display     string        `json:"display,omitempty"`
	Abstract    bool          `json:"abstract,omitempty"`
	Inactive    bool          `json:"inactive,omitempty"`
	Designation []Designation `json:"designation,omitempty"`
	Property    []Property    `json:"property,omitempty"`
	Contains    []Contains    `json:"contains,omitempty"`
}

// ExpansionParameter records a parameter that shaped an expansion.
type ExpansionParameter struct {
	Name         string `json:"name"`
	ValueString  string `json:"valueString,omitempty"`
	ValueURI     string `json:"valueUri,omitempty"`
	ValueBoolean *bool  `json:"valueBoolean,omitempty"`
	ValueInteger *int   `json:"valueInteger,omitempty"`
}

// Expansion is the materialized content of a ValueSet.
type Expansion struct {
	Identifier string               `json:"identifier,omitempty"`
	Timestamp  string               `json:"timestamp,omitempty"`
	Total      int                  `json:"total,omitempty"`
	Offset     int                  `json:"offset,omitempty"`
	Parameter  []ExpansionParameter `json:"parameter,omitempty"`
	Contains   []Contains           `json:"contains,omitempty"`
}

// ValueSet is the version-neutral ValueSet resource.
type ValueSet struct {
	ID        string     `json:"id,omitempty"`
	URL       string     `json:"url"`
	Version   string     `json:"version,omitempty"`
	Name      string     `json:"name,omitempty"`
	Title     string     `json:"title,omitempty"`
	Status    string     `json:"status,omitempty"`
	Language  string     `json:"language,omitempty"`
	Compose   *Compose   `json:"compose,omitempty"`
	Expansion *Expansion `json:"expansion,omitempty"`
}

// VersionedURL returns "url|version", or the bare url when unversioned.
func (vs *ValueSet) VersionedURL() string {
	if vs.Version == "" {
		return vs.URL
	}
	return vs.URL + "|" + vs.Version
}

// Relationship is the ConceptMap relationship between a source and target
// concept. The values follow R5; R3/R4 equivalence codes are translated at
// the gateway boundary.
type Relationship string

// ConceptMap relationships.
const (
	RelEquivalent    Relationship = "equivalent"
	RelSourceNarrower Relationship = "source-is-narrower-than-target"
	RelSourceBroader  Relationship = "source-is-broader-than-target"
	RelRelatedTo      Relationship = "related-to"
	RelNotRelatedTo   Relationship = "not-related-to"
)

// MapTarget is one mapping target for a source element.
type MapTarget struct {
	Code         string       `json:"code,omitempty"`
	Display      string       `json:"display,omitempty"`
	Relationship Relationship `json:"relationship,omitempty"`
	Comment      string       `json:"comment,omitempty"`
	DependsOn    []MapDependsOn `json:"dependsOn,omitempty"`
	Product      []MapDependsOn `json:"product,omitempty"`
}

// MapDependsOn qualifies a mapping with an additional attribute.
type MapDependsOn struct {
	Property string `json:"property,omitempty"`
	System   string `json:"system,omitempty"`
	Value    string `json:"value,omitempty"`
}

// MapElement maps one source code to its targets.
type MapElement struct {
	Code    string      `json:"code,omitempty"`
	Display string      `json:"display,omitempty"`
	Target  []MapTarget `json:"target,omitempty"`
}

// MapGroup groups mappings sharing a source and target system.
type MapGroup struct {
	Source  string       `json:"source,omitempty"`
	Target  string       `json:"target,omitempty"`
	Element []MapElement `json:"element,omitempty"`
}

// ConceptMap is the version-neutral ConceptMap resource.
type ConceptMap struct {
	ID      string     `json:"id,omitempty"`
	URL     string     `json:"url,omitempty"`
	Version string     `json:"version,omitempty"`
	Name    string     `json:"name,omitempty"`
	Status  string     `json:"status,omitempty"`
	Group   []MapGroup `json:"group,omitempty"`
}

// SplitCanonical splits a "url|version" reference into its parts.
func SplitCanonical(ref string) (url, version string) {
	if idx := strings.LastIndex(ref, "|"); idx != -1 {
		return ref[:idx], ref[idx+1:]
	}
	return ref, ""
}

// MajorMinor reduces a version string to its major.minor prefix.
// "4.0.1" becomes "4.0"; versions without two dots are returned unchanged.
func MajorMinor(version string) string {
	first := strings.Index(version, ".")
	if first == -1 {
		return version
	}
	second := strings.Index(version[first+1:], ".")
	if second == -1 {
		return version
	}
	return version[:first+1+second]
}
