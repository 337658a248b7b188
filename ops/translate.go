package ops

import (
	"net/http"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/engine"
	"github.com/gofhir/txserver/model"
)

// Translate implements $translate over a ConceptMap.
func (w *Workers) Translate(req *Request) Response {
	opCtx := req.OpCtx.Copy()

	var cm *model.ConceptMap
	if req.InstanceID != "" {
		cm = req.Provider.GetConceptMapByID(opCtx, req.InstanceID)
		if cm == nil {
			return fail(opCtx, txserver.NotFound("no ConceptMap with id "+req.InstanceID))
		}
	} else if urlRef, ok := req.Params.String("url"); ok {
		u, version := model.SplitCanonical(urlRef)
		if v, has := req.Params.String("conceptMapVersion"); has {
			version = v
		}
		cm = req.Provider.FindConceptMap(opCtx, u, version)
		if cm == nil {
			return fail(opCtx, txserver.NotFound("concept map "+urlRef+" is not known to this server"))
		}
	} else {
		return fail(opCtx, txserver.BadRequest("$translate requires a concept map url or id"))
	}

	coding, ok := requestCoding(req)
	if !ok {
		return fail(opCtx, txserver.BadRequest("$translate requires a code or coding"))
	}
	if coding.System == "" {
		if s, has := req.Params.String("source"); has {
			coding.System = s
		}
	}

	target, _ := req.Params.String("targetsystem")
	if target == "" {
		target, _ = req.Params.String("target")
	}
	reverse, _ := req.Params.Bool("reverse")

	translator := engine.NewTranslator()
	matches, iss := translator.Translate(opCtx, cm, coding, target, reverse)
	if iss != nil {
		return fail(opCtx, iss)
	}

	out := model.NewParameters()
	out.AddBoolean("result", len(matches) > 0)
	if len(matches) == 0 {
		out.AddString("message", "no mapping found for "+coding.Code)
	}
	for _, m := range matches {
		part := []model.Parameter{
			{Name: "equivalence", ValueCode: model.EquivalenceFromRelationship(m.Relationship)},
			{Name: "relationship", ValueCode: string(m.Relationship)},
			{Name: "concept", ValueCoding: &m.Coding},
		}
		for _, d := range m.DependsOn {
			part = append(part, model.Parameter{Name: "dependsOn", Part: dependsOnParts(d)})
		}
		for _, d := range m.Product {
			part = append(part, model.Parameter{Name: "product", Part: dependsOnParts(d)})
		}
		if m.Source != "" {
			part = append(part, model.Parameter{Name: "source", ValueURI: m.Source})
		}
		out.Add(model.Parameter{Name: "match", Part: part})
	}
	return Response{Status: http.StatusOK, Resource: out}
}

func dependsOnParts(d model.MapDependsOn) []model.Parameter {
	var part []model.Parameter
	if d.Property != "" {
		part = append(part, model.Parameter{Name: "property", ValueURI: d.Property})
	}
	if d.System != "" {
		part = append(part, model.Parameter{Name: "system", ValueURI: d.System})
	}
	if d.Value != "" {
		part = append(part, model.Parameter{Name: "value", ValueString: d.Value})
	}
	return part
}
