package model

import (
	"github.com/gofhir/fhir/r4"
)

// Translation from the generated R4 structs to the version-neutral model.
// Package content ships as R4 JSON, so this is the load-time path; the R3
// and R5 gateway shapes are handled by the server package at the wire
// boundary.

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// CodeSystemFromR4 converts a parsed R4 CodeSystem resource.
func CodeSystemFromR4(cs *r4.CodeSystem) *CodeSystem {
	if cs == nil {
		return nil
	}
	out := &CodeSystem{
		ID:      str(cs.Id),
		URL:     str(cs.Url),
		Version: str(cs.Version),
		Name:    str(cs.Name),
		Title:   str(cs.Title),
	}
	if cs.Status != nil {
		out.Status = string(*cs.Status)
	}
	if cs.Content != nil {
		out.Content = CodeSystemContent(*cs.Content)
	}
	if cs.CaseSensitive != nil {
		out.CaseSensitive = *cs.CaseSensitive
	}
	if cs.HierarchyMeaning != nil {
		out.HierarchyMeaning = string(*cs.HierarchyMeaning)
	}
	out.ValueSet = str(cs.ValueSet)
	out.Language = str(cs.Language)
	out.Supplements = str(cs.Supplements)
	for i := range cs.Property {
		p := &cs.Property[i]
		def := PropertyDef{
			Code:        str(p.Code),
			URI:         str(p.Uri),
			Description: str(p.Description),
		}
		if p.Type != nil {
			def.Type = string(*p.Type)
		}
		out.Property = append(out.Property, def)
	}
	out.Concept = conceptsFromR4(cs.Concept)
	return out
}

func conceptsFromR4(concepts []r4.CodeSystemConcept) []Concept {
	if len(concepts) == 0 {
		return nil
	}
	out := make([]Concept, 0, len(concepts))
	for i := range concepts {
		c := &concepts[i]
		concept := Concept{
			Code:       str(c.Code),
			Display:    str(c.Display),
			Definition: str(c.Definition),
		}
		for j := range c.Designation {
			d := &c.Designation[j]
			concept.Designation = append(concept.Designation, Designation{
				Language: str(d.Language),
				Use:      codingFromR4(d.Use),
				Value:    str(d.Value),
			})
		}
		for j := range c.Property {
			p := &c.Property[j]
			prop := Property{Code: str(p.Code)}
			switch {
			case p.ValueCode != nil:
				prop.ValueCode = *p.ValueCode
			case p.ValueString != nil:
				prop.ValueString = *p.ValueString
			case p.ValueBoolean != nil:
				prop.ValueBoolean = p.ValueBoolean
			case p.ValueInteger != nil:
				v := int(*p.ValueInteger)
				prop.ValueInteger = &v
			case p.ValueCoding != nil:
				prop.ValueCoding = codingFromR4(p.ValueCoding)
			}
			concept.Property = append(concept.Property, prop)
		}
		concept.Concept = conceptsFromR4(c.Concept)
		out = append(out, concept)
	}
	return out
}

func codingFromR4(c *r4.Coding) *Coding {
	if c == nil {
		return nil
	}
	return &Coding{
		System:  str(c.System),
		Version: str(c.Version),
		Code:    str(c.Code),
		Display: str(c.Display),
	}
}

// ValueSetFromR4 converts a parsed R4 ValueSet resource.
func ValueSetFromR4(vs *r4.ValueSet) *ValueSet {
	if vs == nil {
		return nil
	}
	out := &ValueSet{
		ID:       str(vs.Id),
		URL:      str(vs.Url),
		Version:  str(vs.Version),
		Name:     str(vs.Name),
		Title:    str(vs.Title),
		Language: str(vs.Language),
	}
	if vs.Status != nil {
		out.Status = string(*vs.Status)
	}
	if vs.Compose != nil {
		compose := &Compose{}
		for i := range vs.Compose.Include {
			compose.Include = append(compose.Include, includeFromR4(&vs.Compose.Include[i]))
		}
		for i := range vs.Compose.Exclude {
			compose.Exclude = append(compose.Exclude, includeFromR4(&vs.Compose.Exclude[i]))
		}
		out.Compose = compose
	}
	if vs.Expansion != nil {
		exp := &Expansion{}
		if vs.Expansion.Total != nil {
			exp.Total = int(*vs.Expansion.Total)
		}
		exp.Contains = containsFromR4(vs.Expansion.Contains)
		out.Expansion = exp
	}
	return out
}

func includeFromR4(inc *r4.ValueSetComposeInclude) Include {
	out := Include{
		System:  str(inc.System),
		Version: str(inc.Version),
	}
	for i := range inc.Concept {
		c := &inc.Concept[i]
		out.Concept = append(out.Concept, ConceptRef{
			Code:    str(c.Code),
			Display: str(c.Display),
		})
	}
	for i := range inc.Filter {
		f := &inc.Filter[i]
		filter := Filter{
			Property: str(f.Property),
			Value:    str(f.Value),
		}
		if f.Op != nil {
			filter.Op = string(*f.Op)
		}
		out.Filter = append(out.Filter, filter)
	}
	for _, vs := range inc.ValueSet {
		out.ValueSet = append(out.ValueSet, vs)
	}
	return out
}

func containsFromR4(contains []r4.ValueSetExpansionContains) []Contains {
	if len(contains) == 0 {
		return nil
	}
	out := make([]Contains, 0, len(contains))
	for i := range contains {
		c := &contains[i]
		entry := Contains{
			System:  str(c.System),
			Version: str(c.Version),
			Code:    str(c.Code),
			Display: str(c.Display),
		}
		if c.Abstract != nil {
			entry.Abstract = *c.Abstract
		}
		if c.Inactive != nil {
			entry.Inactive = *c.Inactive
		}
		entry.Contains = containsFromR4(c.Contains)
		out = append(out, entry)
	}
	return out
}

// ConceptMapFromR4 converts a parsed R4 ConceptMap resource. R4 carries
// equivalence codes; they are normalized to R5 relationships here.
func ConceptMapFromR4(cm *r4.ConceptMap) *ConceptMap {
	if cm == nil {
		return nil
	}
	out := &ConceptMap{
		ID:      str(cm.Id),
		URL:     str(cm.Url),
		Version: str(cm.Version),
		Name:    str(cm.Name),
	}
	if cm.Status != nil {
		out.Status = string(*cm.Status)
	}
	for i := range cm.Group {
		g := &cm.Group[i]
		group := MapGroup{
			Source: str(g.Source),
			Target: str(g.Target),
		}
		for j := range g.Element {
			e := &g.Element[j]
			elem := MapElement{
				Code:    str(e.Code),
				Display: str(e.Display),
			}
			for k := range e.Target {
				t := &e.Target[k]
				target := MapTarget{
					Code:    str(t.Code),
					Display: str(t.Display),
					Comment: str(t.Comment),
				}
				if t.Equivalence != nil {
					target.Relationship = RelationshipFromEquivalence(string(*t.Equivalence))
				}
				for m := range t.DependsOn {
					d := &t.DependsOn[m]
					target.DependsOn = append(target.DependsOn, MapDependsOn{
						Property: str(d.Property),
						System:   str(d.System),
						Value:    str(d.Value),
					})
				}
				for m := range t.Product {
					d := &t.Product[m]
					target.Product = append(target.Product, MapDependsOn{
						Property: str(d.Property),
						System:   str(d.System),
						Value:    str(d.Value),
					})
				}
				elem.Target = append(elem.Target, target)
			}
			group.Element = append(group.Element, elem)
		}
		out.Group = append(out.Group, group)
	}
	return out
}

// RelationshipFromEquivalence maps an R3/R4 equivalence code to the R5
// relationship vocabulary.
func RelationshipFromEquivalence(eq string) Relationship {
	switch eq {
	case "equivalent", "equal":
		return RelEquivalent
	case "wider", "subsumes":
		return RelSourceNarrower
	case "narrower", "specializes":
		return RelSourceBroader
	case "relatedto", "inexact":
		return RelRelatedTo
	case "unmatched", "disjoint":
		return RelNotRelatedTo
	default:
		return RelRelatedTo
	}
}

// EquivalenceFromRelationship maps an R5 relationship back to the R3/R4
// equivalence vocabulary for down-translation at the gateway.
func EquivalenceFromRelationship(rel Relationship) string {
	switch rel {
	case RelEquivalent:
		return "equivalent"
	case RelSourceNarrower:
		return "wider"
	case RelSourceBroader:
		return "narrower"
	case RelNotRelatedTo:
		return "disjoint"
	default:
		return "relatedto"
	}
}
