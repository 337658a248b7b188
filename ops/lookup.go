package ops

import (
	"net/http"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/engine"
	"github.com/gofhir/txserver/model"
)

// Workers bundles the engines and shared caches the operations invoke.
type Workers struct {
	Memo    *engine.Memo
	Metrics *txserver.Metrics
}

// NewWorkers creates the worker set.
func NewWorkers(memo *engine.Memo, metrics *txserver.Metrics) *Workers {
	return &Workers{Memo: memo, Metrics: metrics}
}

// Lookup implements $lookup: resolve a code in a code system and return
// its display, designations and flattened property groups.
func (w *Workers) Lookup(req *Request) Response {
	opCtx := req.OpCtx.Copy()
	params, iss := buildParameters(req)
	if iss != nil {
		return fail(opCtx, iss)
	}
	coding, ok := requestCoding(req)
	if !ok {
		return fail(opCtx, txserver.BadRequest("$lookup requires a code or coding parameter"))
	}

	system := coding.System
	if req.InstanceID != "" {
		cs := req.Provider.GetCodeSystemByID(opCtx, req.InstanceID)
		if cs == nil {
			return fail(opCtx, txserver.NotFound("no CodeSystem with id "+req.InstanceID))
		}
		system = cs.URL
		if coding.Version == "" {
			coding.Version = cs.Version
		}
	}
	if system == "" {
		return fail(opCtx, txserver.NotFound("$lookup requires a system"))
	}

	prov, iss := req.Provider.GetCodeSystemProvider(opCtx, system, coding.Version, nil)
	if iss != nil {
		return fail(opCtx, iss)
	}
	if prov == nil {
		return fail(opCtx, txserver.NotFound("code system "+system+" is not known to this server"))
	}
	if iss := opCtx.DeadCheck("lookup"); iss != nil {
		return fail(opCtx, iss)
	}

	concept, softMsg := prov.Locate(coding.Code)
	if concept == nil {
		return fail(opCtx, txserver.Error(txserver.IssueTypeCodeInvalid).
			Diagnostics("code '"+coding.Code+"' is not known to "+system).
			Status(http.StatusNotFound).Build())
	}

	languages := opCtx.Languages
	if len(params.Languages()) > 0 {
		languages = params.Languages()
	}

	out := model.NewParameters()
	type resourceCarrier interface{ Resource() *model.CodeSystem }
	if rc, ok := prov.(resourceCarrier); ok && rc.Resource().Name != "" {
		out.AddString("name", rc.Resource().Name)
	} else {
		out.AddString("name", system)
	}
	if v := prov.Version(); v != "" {
		out.AddString("version", v)
	}
	out.AddString("display", prov.Display(concept, languages))
	if def := prov.Definition(concept); def != "" && params.IncludeDefinition {
		out.AddString("definition", def)
	}

	for _, d := range prov.Designations(concept) {
		part := []model.Parameter{}
		if d.Language != "" {
			part = append(part, model.Parameter{Name: "language", ValueCode: d.Language})
		}
		if d.Use != nil {
			part = append(part, model.Parameter{Name: "use", ValueCoding: d.Use})
		}
		part = append(part, model.Parameter{Name: "value", ValueString: d.Value})
		out.Add(model.Parameter{Name: "designation", Part: part})
	}

	for _, prop := range prov.Properties(concept, params.Properties) {
		part := []model.Parameter{{Name: "code", ValueCode: prop.Code}}
		switch {
		case prop.ValueCode != "":
			part = append(part, model.Parameter{Name: "value", ValueCode: prop.ValueCode})
		case prop.ValueString != "":
			part = append(part, model.Parameter{Name: "value", ValueString: prop.ValueString})
		case prop.ValueBoolean != nil:
			part = append(part, model.Parameter{Name: "value", ValueBoolean: prop.ValueBoolean})
		case prop.ValueInteger != nil:
			part = append(part, model.Parameter{Name: "value", ValueInteger: prop.ValueInteger})
		case prop.ValueDecimal != "":
			part = append(part, model.Parameter{Name: "value", ValueDecimal: prop.ValueDecimal})
		case prop.ValueCoding != nil:
			part = append(part, model.Parameter{Name: "value", ValueCoding: prop.ValueCoding})
		case prop.ValueDateTime != "":
			part = append(part, model.Parameter{Name: "value", ValueDateTime: prop.ValueDateTime})
		}
		out.Add(model.Parameter{Name: "property", Part: part})
	}

	var issues []*txserver.Issue
	if softMsg != "" {
		issues = append(issues, txserver.Warning(txserver.IssueTypeBusinessRule).Diagnostics(softMsg).Build())
	}
	attachIssues(opCtx, out, issues)
	return Response{Status: http.StatusOK, Resource: out}
}
