package ops

import (
	"encoding/json"
	"net/http"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/engine"
	"github.com/gofhir/txserver/model"
)

// Expand implements $expand: materialize a value set under the request's
// parameters, with offset/count paging.
func (w *Workers) Expand(req *Request) Response {
	opCtx := req.OpCtx.Copy()
	params, iss := buildParameters(req)
	if iss != nil {
		return fail(opCtx, iss)
	}

	vs, iss := expansionSubject(req, opCtx, params)
	if iss != nil {
		return fail(opCtx, iss)
	}

	offset := 0
	if v, ok := req.Params.Int("offset"); ok {
		if v < 0 {
			return fail(opCtx, txserver.BadRequest("offset must not be negative"))
		}
		offset = v
	}
	count := -1
	if v, ok := req.Params.Int("count"); ok {
		if v < 0 {
			return fail(opCtx, txserver.BadRequest("count must not be negative"))
		}
		count = v
	}

	expander := engine.NewExpander(req.Provider, req.Provider.Catalog())
	var result *engine.Result
	if w.Memo != nil {
		result, iss = w.Memo.Expand(opCtx, expander, vs, params, offset, count)
	} else {
		result, iss = expander.Expand(opCtx, vs, params, offset, count)
	}
	if iss != nil {
		// A circular composition is reported as a successful response
		// carrying an OperationOutcome, per the terminology operation
		// contract.
		if iss.Code == txserver.IssueTypeBusinessRule {
			return Response{Status: http.StatusOK, Resource: outcomeResource(opCtx, iss)}
		}
		return fail(opCtx, iss)
	}

	// The memoized result is shared across requests and must stay
	// read-only; the response assembles from a copy with its own
	// parameter list.
	expansion := *result.Expansion
	expansion.Parameter = append([]model.ExpansionParameter(nil), result.Expansion.Parameter...)
	for _, entry := range result.Issues {
		expansion.Parameter = append(expansion.Parameter, model.ExpansionParameter{
			Name:        "warning",
			ValueString: entry.Diagnostics,
		})
	}

	expanded := &model.ValueSet{
		ID:        vs.ID,
		URL:       vs.URL,
		Version:   vs.Version,
		Name:      vs.Name,
		Title:     vs.Title,
		Status:    vs.Status,
		Expansion: &expansion,
	}
	resource := struct {
		ResourceType string `json:"resourceType"`
		*model.ValueSet
	}{ResourceType: "ValueSet", ValueSet: expanded}

	return Response{Status: http.StatusOK, Resource: resource}
}

// expansionSubject resolves the value set to expand: instance id, url
// parameter, or inline ValueSet resource.
func expansionSubject(req *Request, opCtx *txserver.OperationContext, params *txserver.OperationParameters) (*model.ValueSet, *txserver.Issue) {
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
		return nil, txserver.BadRequest("$expand requires a url, id or inline valueSet")
	}
	u, version := model.SplitCanonical(urlRef)
	if v, has := req.Params.String("valueSetVersion"); has {
		version = v
	}
	vs := req.Provider.FindValueSet(opCtx, u, version)
	if vs == nil {
		return nil, txserver.NotFound("value set " + urlRef + " is not known to this server")
	}
	return vs, nil
}
