package server

import (
	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/model"
	"github.com/gofhir/txserver/ops"
)

// Resource shapes that differ between releases are normalized here at the
// boundary. The engines work on the R5-flavored neutral model; R3/R4
// responses carry the equivalence vocabulary and the R4 ConceptMap
// element-target shape.

type taggedCodeSystem struct {
	ResourceType string `json:"resourceType"`
	*model.CodeSystem
}

type taggedValueSet struct {
	ResourceType string `json:"resourceType"`
	*model.ValueSet
}

func renderCodeSystem(cs *model.CodeSystem, v txserver.FHIRVersion) any {
	return taggedCodeSystem{ResourceType: "CodeSystem", CodeSystem: cs}
}

func renderValueSet(vs *model.ValueSet, v txserver.FHIRVersion) any {
	return taggedValueSet{ResourceType: "ValueSet", ValueSet: vs}
}

// r4MapTarget is the pre-R5 target shape with an equivalence code.
type r4MapTarget struct {
	Code        string               `json:"code,omitempty"`
	Display     string               `json:"display,omitempty"`
	Equivalence string               `json:"equivalence,omitempty"`
	Comment     string               `json:"comment,omitempty"`
	DependsOn   []model.MapDependsOn `json:"dependsOn,omitempty"`
	Product     []model.MapDependsOn `json:"product,omitempty"`
}

type r4MapElement struct {
	Code    string        `json:"code,omitempty"`
	Display string        `json:"display,omitempty"`
	Target  []r4MapTarget `json:"target,omitempty"`
}

type r4MapGroup struct {
	Source  string         `json:"source,omitempty"`
	Target  string         `json:"target,omitempty"`
	Element []r4MapElement `json:"element,omitempty"`
}

type r4ConceptMap struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id,omitempty"`
	URL          string       `json:"url,omitempty"`
	Version      string       `json:"version,omitempty"`
	Name         string       `json:"name,omitempty"`
	Status       string       `json:"status,omitempty"`
	Group        []r4MapGroup `json:"group,omitempty"`
}

type taggedConceptMap struct {
	ResourceType string `json:"resourceType"`
	*model.ConceptMap
}

func renderConceptMap(cm *model.ConceptMap, v txserver.FHIRVersion) any {
	if v >= txserver.R5 {
		return taggedConceptMap{ResourceType: "ConceptMap", ConceptMap: cm}
	}
	out := r4ConceptMap{
		ResourceType: "ConceptMap",
		ID:           cm.ID,
		URL:          cm.URL,
		Version:      cm.Version,
		Name:         cm.Name,
		Status:       cm.Status,
	}
	for _, g := range cm.Group {
		group := r4MapGroup{Source: g.Source, Target: g.Target}
		for _, e := range g.Element {
			elem := r4MapElement{Code: e.Code, Display: e.Display}
			for _, t := range e.Target {
				elem.Target = append(elem.Target, r4MapTarget{
					Code:        t.Code,
					Display:     t.Display,
					Equivalence: model.EquivalenceFromRelationship(t.Relationship),
					Comment:     t.Comment,
					DependsOn:   t.DependsOn,
					Product:     t.Product,
				})
			}
			group.Element = append(group.Element, elem)
		}
		out.Group = append(out.Group, group)
	}
	return out
}

// translateResponse adjusts version-coded output parameters. The
// $translate match carries both the R3/R4 equivalence and the R5
// relationship; the release the endpoint speaks keeps its own.
func translateResponse(resp ops.Response, v txserver.FHIRVersion) ops.Response {
	params, ok := resp.Resource.(*model.Parameters)
	if !ok {
		return resp
	}
	for pi := range params.Parameter {
		param := &params.Parameter[pi]
		if param.Name != "match" {
			continue
		}
		var kept []model.Parameter
		for _, part := range param.Part {
			switch part.Name {
			case "equivalence":
				if v <= txserver.R4 {
					kept = append(kept, part)
				}
			case "relationship":
				if v >= txserver.R5 {
					kept = append(kept, part)
				}
			default:
				kept = append(kept, part)
			}
		}
		param.Part = kept
	}
	return resp
}
