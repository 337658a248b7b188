package ops

import (
	"encoding/json"
	"net/http"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/engine"
	"github.com/gofhir/txserver/model"
)

// ValidateCodeCS implements CodeSystem-mode $validate-code: is the code a
// member of the code system.
func (w *Workers) ValidateCodeCS(req *Request) Response {
	opCtx := req.OpCtx.Copy()
	params, iss := buildParameters(req)
	if iss != nil {
		return fail(opCtx, iss)
	}

	coding, concept, iss := validationSubject(req)
	if iss != nil {
		return fail(opCtx, iss)
	}

	system, _ := req.Params.String("url")
	if req.InstanceID != "" {
		cs := req.Provider.GetCodeSystemByID(opCtx, req.InstanceID)
		if cs == nil {
			return fail(opCtx, txserver.NotFound("no CodeSystem with id "+req.InstanceID))
		}
		system = cs.URL
	}

	val := engine.NewValidator(req.Provider, nil, req.Provider.Catalog())
	var outcome *engine.Outcome
	if concept != nil {
		for i := range concept.Coding {
			if concept.Coding[i].System == "" {
				concept.Coding[i].System = system
			}
		}
		outcome, iss = val.ValidateConcept(opCtx, concept, nil, params)
	} else {
		if coding.System == "" {
			coding.System = system
		}
		if coding.System == "" {
			return fail(opCtx, txserver.BadRequest("$validate-code requires a system or url"))
		}
		outcome, iss = val.ValidateCoding(opCtx, coding, nil, params)
	}
	if iss != nil {
		return fail(opCtx, iss)
	}

	// Fragment code systems are decisive only under incomplete-ok.
	if !outcome.Result && !params.IncompleteOK {
		if prov, _ := req.Provider.CodeSystem(opCtx, outcome.System, outcome.Version); prov != nil {
			type resourceCarrier interface{ Resource() *model.CodeSystem }
			if rc, ok := prov.(resourceCarrier); ok && rc.Resource().Content == model.ContentFragment {
				outcome.Issues = append(outcome.Issues, txserver.Warning(txserver.IssueTypeIncomplete).
					Diagnostics("code system "+outcome.System+" is a fragment; membership is inconclusive").
					Build())
			}
		}
	}

	return validationResponse(opCtx, params, outcome)
}

// ValidateCodeVS implements ValueSet-mode $validate-code per the
// membership engine.
func (w *Workers) ValidateCodeVS(req *Request) Response {
	opCtx := req.OpCtx.Copy()
	params, iss := buildParameters(req)
	if iss != nil {
		return fail(opCtx, iss)
	}

	coding, concept, iss := validationSubject(req)
	if iss != nil {
		return fail(opCtx, iss)
	}

	vs, iss := resolveValueSet(req, opCtx, params)
	if iss != nil {
		return fail(opCtx, iss)
	}

	val := engine.NewValidator(req.Provider, nil, req.Provider.Catalog())
	if vs == nil {
		// Candidate value set may be implicit from the coding's system via
		// CodeSystem.valueSet.
		system := ""
		if coding != nil {
			system = coding.System
		} else if concept != nil && len(concept.Coding) > 0 {
			system = concept.Coding[0].System
		}
		if system != "" {
			vs, iss = val.ImplicitValueSet(opCtx, system)
			if iss != nil {
				return fail(opCtx, iss)
			}
		}
	}
	if vs == nil {
		return fail(opCtx, txserver.NotFound("$validate-code names no resolvable value set"))
	}

	var outcome *engine.Outcome
	if concept != nil {
		outcome, iss = val.ValidateConcept(opCtx, concept, vs, params)
	} else {
		outcome, iss = val.ValidateCoding(opCtx, coding, vs, params)
	}
	if iss != nil {
		return fail(opCtx, iss)
	}
	return validationResponse(opCtx, params, outcome)
}

// validationSubject extracts the coding or codeable concept under
// validation.
func validationSubject(req *Request) (*model.Coding, *model.CodeableConcept, *txserver.Issue) {
	if concept, ok := req.Params.Concept("codeableConcept"); ok {
		return nil, concept, nil
	}
	coding, ok := requestCoding(req)
	if !ok {
		return nil, nil, txserver.BadRequest("$validate-code requires a code, coding or codeableConcept")
	}
	return coding, nil, nil
}

// resolveValueSet finds the value set named by the request: instance id,
// url parameter, or an inline ValueSet resource parameter.
func resolveValueSet(req *Request, opCtx *txserver.OperationContext, params *txserver.OperationParameters) (*model.ValueSet, *txserver.Issue) {
	if req.InstanceID != "" {
		vs := req.Provider.GetValueSetByID(opCtx, req.InstanceID)
		if vs == nil {
			return nil, txserver.NotFound("no ValueSet with id " + req.InstanceID)
		}
		return vs, nil
	}
	if param, ok := req.Params.First("valueSet"); ok && len(param.Resource) > 0 {
		var r4vs r4.ValueSet
		if err := json.Unmarshal(param.Resource, &r4vs); err != nil {
			return nil, txserver.BadRequest("inline ValueSet does not parse: " + err.Error())
		}
		return model.ValueSetFromR4(&r4vs), nil
	}
	urlRef, ok := req.Params.String("url")
	if !ok {
		return nil, nil
	}
	u, version := model.SplitCanonical(urlRef)
	if v, has := req.Params.String("valueSetVersion"); has {
		version = v
	}
	if rule, has := params.ValueSetVersionRuleFor(u); has {
		switch rule.Mode {
		case txserver.VersionModeOverride:
			version = rule.Version
		case txserver.VersionModeCheck:
			if version != "" && version != rule.Version {
				return nil, txserver.BusinessRule("value set version " + version + " conflicts with pinned " + rule.Version)
			}
			version = rule.Version
		default:
			if version == "" {
				version = rule.Version
			}
		}
	}
	vs := req.Provider.FindValueSet(opCtx, u, version)
	if vs == nil {
		return nil, txserver.NotFound("value set " + urlRef + " is not known to this server")
	}
	return vs, nil
}

// validationResponse assembles the $validate-code output Parameters.
// "Code not in value set" is a successful validation with result=false.
func validationResponse(opCtx *txserver.OperationContext, params *txserver.OperationParameters, outcome *engine.Outcome) Response {
	out := model.NewParameters()
	out.AddBoolean("result", outcome.Result)
	if params.MembershipOnly {
		return Response{Status: http.StatusOK, Resource: out}
	}
	if outcome.Code != "" {
		out.AddCode("code", outcome.Code)
	}
	if outcome.System != "" {
		out.AddURI("system", outcome.System)
	}
	if outcome.Version != "" {
		out.AddString("version", outcome.Version)
	}
	if outcome.Display != "" {
		out.AddString("display", outcome.Display)
	}
	if outcome.Message != "" {
		out.AddString("message", outcome.Message)
	}
	attachIssues(opCtx, out, outcome.Issues)
	return Response{Status: http.StatusOK, Resource: out}
}
