package provider

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/model"
)

// FixedConcept is one entry of a fixed internal list.
type FixedConcept struct {
	Code       string
	Display    string
	Definition string
	Inactive   bool
}

// fixedHandle adapts a FixedConcept to the Concept interface.
type fixedHandle struct {
	entry *FixedConcept
}

func (h *fixedHandle) Code() string { return h.entry.Code }

// FixedList serves a code system backed by a static ordered sequence:
// country codes, currencies, MIME types, US states and the like. All
// filters synthesize iterators over that sequence.
type FixedList struct {
	system        string
	version       string
	caseSensitive bool
	entries       []FixedConcept
	byCode        map[string]*fixedHandle
	ordered       []Concept
}

// NewFixedList creates a provider over a static sequence.
func NewFixedList(system, version string, caseSensitive bool, entries []FixedConcept) *FixedList {
	p := &FixedList{
		system:        system,
		version:       version,
		caseSensitive: caseSensitive,
		entries:       entries,
		byCode:        make(map[string]*fixedHandle, len(entries)),
	}
	for i := range p.entries {
		h := &fixedHandle{entry: &p.entries[i]}
		key := p.entries[i].Code
		if !caseSensitive {
			key = strings.ToLower(key)
		}
		p.byCode[key] = h
		p.ordered = append(p.ordered, h)
	}
	return p
}

// System returns the canonical url.
func (p *FixedList) System() string { return p.system }

// Version returns the served version.
func (p *FixedList) Version() string { return p.version }

// PartialVersion returns the major.minor reduction of the version.
func (p *FixedList) PartialVersion() string { return model.MajorMinor(p.version) }

// TotalCount returns the sequence length.
func (p *FixedList) TotalCount() int { return len(p.entries) }

// Locate finds an entry by code.
func (p *FixedList) Locate(code string) (Concept, string) {
	key := code
	if !p.caseSensitive {
		key = strings.ToLower(code)
	}
	h, ok := p.byCode[key]
	if !ok {
		return nil, ""
	}
	if p.caseSensitive && h.entry.Code != code {
		return nil, ""
	}
	if h.entry.Inactive {
		return h, fmt.Sprintf("code '%s' is inactive", h.entry.Code)
	}
	return h, ""
}

// Display returns the entry's display; fixed lists carry one language.
func (p *FixedList) Display(c Concept, languages []string) string {
	return c.(*fixedHandle).entry.Display
}

// Designations returns the display as the sole designation.
func (p *FixedList) Designations(c Concept) []model.Designation {
	return []model.Designation{{Language: "en", Value: c.(*fixedHandle).entry.Display}}
}

// Definition returns the entry's definition.
func (p *FixedList) Definition(c Concept) string {
	return c.(*fixedHandle).entry.Definition
}

// Properties returns nothing: fixed lists declare no properties.
func (p *FixedList) Properties(c Concept, propFilter []string) []model.Property {
	return nil
}

// IsInactive reports the entry's inactive flag.
func (p *FixedList) IsInactive(c Concept) bool { return c.(*fixedHandle).entry.Inactive }

// IsAbstract reports false.
func (p *FixedList) IsAbstract(c Concept) bool { return false }

// IsDeprecated reports false.
func (p *FixedList) IsDeprecated(c Concept) bool { return false }

// Subsumes: fixed lists are flat, so distinct codes never subsume.
func (p *FixedList) Subsumes(a, b Concept) (SubsumptionOutcome, *txserver.Issue) {
	if a.Code() == b.Code() {
		return Equivalent, nil
	}
	return NotSubsumed, nil
}

// Filter synthesizes a predicate over the sequence. The code property
// supports =, regex, in, not-in and exists; display supports regex.
func (p *FixedList) Filter(opCtx *txserver.OperationContext, property, op, value string) (FilterContext, *txserver.Issue) {
	if iss := opCtx.DeadCheck("filter:" + p.system); iss != nil {
		return nil, iss
	}
	if property != "code" && property != "display" {
		return nil, txserver.NotSupported(fmt.Sprintf(
			"property '%s' is not known to %s", property, p.system))
	}
	value2 := func(h *fixedHandle) string {
		if property == "display" {
			return h.entry.Display
		}
		return h.entry.Code
	}

	var keep func(h *fixedHandle) bool
	switch op {
	case "=":
		keep = func(h *fixedHandle) bool { return value2(h) == value }
	case "regex":
		re, err := regexp.Compile(value)
		if err != nil {
			return nil, txserver.BadRequest(fmt.Sprintf("invalid regex filter value %q: %v", value, err))
		}
		keep = func(h *fixedHandle) bool { return re.MatchString(value2(h)) }
	case "in", "not-in":
		set := make(map[string]bool)
		for _, v := range strings.Split(value, ",") {
			set[v] = true
		}
		negate := op == "not-in"
		keep = func(h *fixedHandle) bool { return set[value2(h)] != negate }
	case "exists":
		want := value != "false"
		keep = func(h *fixedHandle) bool { return want }
	default:
		return nil, txserver.NotSupported(fmt.Sprintf(
			"filter operator '%s' is not supported by %s", op, p.system))
	}

	var kept []Concept
	for _, c := range p.ordered {
		if keep(c.(*fixedHandle)) {
			kept = append(kept, c)
		}
	}
	return NewListFilter(kept), nil
}

// Iterator returns a cursor over the filtered entries, or the whole
// sequence in declared order when filter is nil.
func (p *FixedList) Iterator(opCtx *txserver.OperationContext, filter FilterContext) (ConceptIterator, *txserver.Issue) {
	if iss := opCtx.DeadCheck("iterate:" + p.system); iss != nil {
		return nil, iss
	}
	if filter == nil {
		return NewSliceIterator(p.ordered), nil
	}
	concepts, ok := ListFilterConcepts(filter)
	if !ok {
		return nil, txserver.NotSupported("foreign filter context")
	}
	return NewSliceIterator(concepts), nil
}

// FiltersNotClosed reports false.
func (p *FixedList) FiltersNotClosed() bool { return false }

// Close is a no-op.
func (p *FixedList) Close() {}

var _ CodeSystemProvider = (*FixedList)(nil)

// grammarConcept is a code accepted by a grammar-backed system.
type grammarConcept struct {
	code string
}

func (c *grammarConcept) Code() string { return c.code }

// Grammar serves a code system whose membership is a syntax rule rather
// than a list, such as HGVS variant notation. Locate validates against
// the pattern; nothing is enumerable.
type Grammar struct {
	system  string
	version string
	pattern *regexp.Regexp
	display func(code string) string
}

// NewGrammar creates a grammar-backed provider.
func NewGrammar(system, version string, pattern *regexp.Regexp, display func(string) string) *Grammar {
	return &Grammar{system: system, version: version, pattern: pattern, display: display}
}

// System returns the canonical url.
func (p *Grammar) System() string { return p.system }

// Version returns the served version.
func (p *Grammar) Version() string { return p.version }

// PartialVersion returns the version unchanged.
func (p *Grammar) PartialVersion() string { return p.version }

// TotalCount returns -1.
func (p *Grammar) TotalCount() int { return -1 }

// Locate validates the code against the grammar.
func (p *Grammar) Locate(code string) (Concept, string) {
	if !p.pattern.MatchString(code) {
		return nil, ""
	}
	return &grammarConcept{code: code}, ""
}

// Display renders the code's human form.
func (p *Grammar) Display(c Concept, languages []string) string {
	if p.display != nil {
		return p.display(c.Code())
	}
	return c.Code()
}

// Designations returns nothing.
func (p *Grammar) Designations(c Concept) []model.Designation { return nil }

// Definition returns "".
func (p *Grammar) Definition(c Concept) string { return "" }

// Properties returns nothing.
func (p *Grammar) Properties(c Concept, propFilter []string) []model.Property { return nil }

// IsInactive reports false.
func (p *Grammar) IsInactive(c Concept) bool { return false }

// IsAbstract reports false.
func (p *Grammar) IsAbstract(c Concept) bool { return false }

// IsDeprecated reports false.
func (p *Grammar) IsDeprecated(c Concept) bool { return false }

// Subsumes: grammar codes are flat.
func (p *Grammar) Subsumes(a, b Concept) (SubsumptionOutcome, *txserver.Issue) {
	if a.Code() == b.Code() {
		return Equivalent, nil
	}
	return NotSubsumed, nil
}

// Filter is not supported: grammar systems have no indexable properties.
func (p *Grammar) Filter(opCtx *txserver.OperationContext, property, op, value string) (FilterContext, *txserver.Issue) {
	return nil, txserver.NotSupported(fmt.Sprintf(
		"filters are not supported by %s", p.system))
}

// Iterator is not supported.
func (p *Grammar) Iterator(opCtx *txserver.OperationContext, filter FilterContext) (ConceptIterator, *txserver.Issue) {
	return nil, txserver.NotSupported(fmt.Sprintf(
		"%s concepts cannot be enumerated", p.system))
}

// FiltersNotClosed reports true.
func (p *Grammar) FiltersNotClosed() bool { return true }

// Close is a no-op.
func (p *Grammar) Close() {}

var _ CodeSystemProvider = (*Grammar)(nil)

// hgvsPattern recognizes the common sequence-variant forms: a versioned
// reference sequence, a coordinate-type prefix and a change description.
var hgvsPattern = regexp.MustCompile(`^(N[CGMRTPW]_\d+\.\d+|LRG_\d+(p\d+|t\d+)?):[cgmnrp]\.[0-9_*+\-]+[A-Za-z>=_\[\]()0-9]*$`)

// NewHGVS creates the HGVS variant-notation provider.
func NewHGVS() *Grammar {
	return NewGrammar("http://varnomen.hgvs.org", "", hgvsPattern, nil)
}
