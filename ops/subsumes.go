package ops

import (
	"net/http"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/model"
)

// Subsumes implements $subsumes: test the hierarchical relation between
// two codes of one system.
func (w *Workers) Subsumes(req *Request) Response {
	opCtx := req.OpCtx.Copy()

	codingA, codingB, iss := subsumptionPair(req)
	if iss != nil {
		return fail(opCtx, iss)
	}

	system := codingA.System
	if req.InstanceID != "" {
		cs := req.Provider.GetCodeSystemByID(opCtx, req.InstanceID)
		if cs == nil {
			return fail(opCtx, txserver.NotFound("no CodeSystem with id "+req.InstanceID))
		}
		system = cs.URL
	}
	// A missing system is missing operation context rather than a
	// malformed input, so it surfaces as not-found. Missing codes are 400s.
	if system == "" {
		return fail(opCtx, txserver.NotFound("$subsumes requires a system"))
	}
	if codingB.System != "" && codingB.System != system {
		return fail(opCtx, txserver.BadRequest("codingA and codingB name different systems"))
	}

	version := codingA.Version
	if version == "" {
		version = codingB.Version
	}
	prov, iss := req.Provider.GetCodeSystemProvider(opCtx, system, version, nil)
	if iss != nil {
		return fail(opCtx, iss)
	}
	if prov == nil {
		return fail(opCtx, txserver.NotFound("code system "+system+" is not known to this server"))
	}
	if iss := opCtx.DeadCheck("subsumes"); iss != nil {
		return fail(opCtx, iss)
	}

	a, _ := prov.Locate(codingA.Code)
	if a == nil {
		return fail(opCtx, txserver.Error(txserver.IssueTypeCodeInvalid).
			Diagnostics("code '"+codingA.Code+"' is not known to "+system).
			Status(http.StatusBadRequest).Build())
	}
	b, _ := prov.Locate(codingB.Code)
	if b == nil {
		return fail(opCtx, txserver.Error(txserver.IssueTypeCodeInvalid).
			Diagnostics("code '"+codingB.Code+"' is not known to "+system).
			Status(http.StatusBadRequest).Build())
	}

	outcome, iss := prov.Subsumes(a, b)
	if iss != nil {
		return fail(opCtx, iss)
	}

	out := model.NewParameters()
	out.AddCode("outcome", string(outcome))
	if v := prov.Version(); v != "" {
		out.AddString("version", v)
	}
	return Response{Status: http.StatusOK, Resource: out}
}

// subsumptionPair extracts codeA/codeB (or codingA/codingB) from the
// request.
func subsumptionPair(req *Request) (*model.Coding, *model.Coding, *txserver.Issue) {
	a, okA := req.Params.Coding("codingA")
	b, okB := req.Params.Coding("codingB")
	if okA != okB {
		return nil, nil, txserver.BadRequest("$subsumes requires both codingA and codingB")
	}
	if okA {
		if a.System != b.System {
			return nil, nil, txserver.BadRequest("codingA and codingB name different systems")
		}
		return a, b, nil
	}

	system, _ := req.Params.String("system")
	version, _ := req.Params.String("version")
	codeA, okA := req.Params.String("codeA")
	if !okA {
		return nil, nil, txserver.BadRequest("$subsumes requires codeA")
	}
	codeB, okB := req.Params.String("codeB")
	if !okB {
		return nil, nil, txserver.BadRequest("$subsumes requires codeB")
	}
	return &model.Coding{System: system, Version: version, Code: codeA},
		&model.Coding{System: system, Version: version, Code: codeB}, nil
}
