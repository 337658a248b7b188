package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/model"
	"github.com/gofhir/txserver/worker"
)

// Batch implements $batch: fan every entry of a batch Bundle out to its
// worker and assemble a batch-response Bundle. Per-entry failures become
// per-entry OperationOutcome responses; they never fail the batch.
func (w *Workers) Batch(req *Request, bundle *model.Bundle, pool *worker.Pool) Response {
	opCtx := req.OpCtx.Copy()
	if bundle.Type != "batch" {
		return fail(opCtx, txserver.BadRequest("expected a Bundle of type batch, got "+bundle.Type))
	}

	responses := make([]model.BundleEntry, len(bundle.Entry))
	run := func(i int) {
		responses[i] = w.batchEntry(req, &bundle.Entry[i])
	}
	if pool != nil {
		ctx, cancel := context.WithDeadline(context.Background(), opCtx.Deadline())
		defer cancel()
		pool.Run(ctx, len(bundle.Entry), run)
	} else {
		for i := range bundle.Entry {
			run(i)
		}
	}

	out := model.NewBundle("batch-response")
	out.ID = opCtx.RequestID
	out.Entry = responses
	return Response{Status: http.StatusOK, Resource: out}
}

// batchEntry dispatches one bundle entry through a synthesized request.
func (w *Workers) batchEntry(req *Request, entry *model.BundleEntry) model.BundleEntry {
	respond := func(r Response) model.BundleEntry {
		raw, err := json.Marshal(r.Resource)
		if err != nil {
			raw = nil
		}
		out := model.BundleEntry{
			Response: &model.BundleEntryResponse{
				Status: fmt.Sprintf("%d", r.Status),
			},
		}
		if r.Status >= http.StatusBadRequest {
			out.Response.Outcome = raw
		} else {
			out.Resource = raw
		}
		return out
	}

	if entry.Request == nil {
		return respond(fail(req.OpCtx, txserver.Error(txserver.IssueTypeInvalid).
			Diagnostics("batch entry carries no request").
			Status(http.StatusUnprocessableEntity).Build()))
	}

	path, query, _ := strings.Cut(entry.Request.URL, "?")
	values, err := url.ParseQuery(query)
	if err != nil {
		return respond(fail(req.OpCtx, txserver.BadRequest("batch entry query does not parse: "+err.Error())))
	}
	params, iss := ParamsFromQuery(values)
	if iss != nil {
		return respond(fail(req.OpCtx, iss))
	}

	// POST entries may carry a Parameters resource; its parameters merge
	// after the query's.
	if strings.EqualFold(entry.Request.Method, http.MethodPost) && len(entry.Resource) > 0 {
		body, err := model.ParseParameters(entry.Resource)
		if err != nil {
			return respond(fail(req.OpCtx, txserver.BadRequest(err.Error())))
		}
		params.Parameter = append(params.Parameter, body.Parameter...)
	}

	resourceType, instanceID, op, ok := splitOperationPath(path)
	if !ok {
		return respond(fail(req.OpCtx, txserver.Error(txserver.IssueTypeNotSupported).
			Diagnostics("batch entry url is not a terminology operation: "+entry.Request.URL).
			Status(http.StatusUnprocessableEntity).Build()))
	}

	// Entries are independent operations, not sub-evaluations: each gets
	// its own evaluation stack so parallel entries over the same value
	// set never read as a circular reference.
	sub := &Request{
		Provider:   req.Provider,
		OpCtx:      req.OpCtx.Fork(),
		Params:     params,
		InstanceID: instanceID,
	}
	return respond(w.Dispatch(resourceType, op, sub))
}

// Dispatch routes an operation by resource type and name.
func (w *Workers) Dispatch(resourceType, op string, req *Request) Response {
	switch resourceType + "/" + op {
	case "CodeSystem/$lookup":
		return w.Lookup(req)
	case "CodeSystem/$validate-code":
		return w.ValidateCodeCS(req)
	case "CodeSystem/$subsumes":
		return w.Subsumes(req)
	case "ValueSet/$expand":
		return w.Expand(req)
	case "ValueSet/$validate-code":
		return w.ValidateCodeVS(req)
	case "ConceptMap/$translate":
		return w.Translate(req)
	default:
		return fail(req.OpCtx, txserver.Error(txserver.IssueTypeNotSupported).
			Diagnostics("operation "+op+" is not supported on "+resourceType).
			Status(http.StatusUnprocessableEntity).Build())
	}
}

// splitOperationPath parses "CodeSystem/$lookup" and
// "ValueSet/{id}/$expand" shapes.
func splitOperationPath(path string) (resourceType, instanceID, op string, ok bool) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	switch len(segments) {
	case 2:
		if strings.HasPrefix(segments[1], "$") {
			return segments[0], "", segments[1], true
		}
	case 3:
		if strings.HasPrefix(segments[2], "$") {
			return segments[0], segments[1], segments[2], true
		}
	}
	return "", "", "", false
}
