package ops

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofhir/txserver/model"
	"github.com/gofhir/txserver/worker"
)

func TestBatch(t *testing.T) {
	lib := newFixtureLibrary(t)
	w := newTestWorkers()
	req := newFixtureRequest(t, lib, "")

	bundle := model.NewBundle("batch")
	bundle.Entry = []model.BundleEntry{
		{Request: &model.BundleEntryRequest{
			Method: "GET",
			URL:    "CodeSystem/$subsumes?system=" + genderSystem + "&codeA=male&codeB=male",
		}},
		{Request: &model.BundleEntryRequest{
			Method: "GET",
			URL:    "ValueSet/$validate-code?url=http://hl7.org/fhir/ValueSet/administrative-gender&system=" + genderSystem + "&code=female",
		}},
		{Request: &model.BundleEntryRequest{
			Method: "GET",
			URL:    "CodeSystem/$lookup?system=" + genderSystem + "&code=walrus",
		}},
		{Request: &model.BundleEntryRequest{
			Method: "GET",
			URL:    "Patient/$everything",
		}},
	}

	resp := w.Batch(req, bundle, worker.NewPool(4))
	require.Equal(t, http.StatusOK, resp.Status)
	out, ok := resp.Resource.(*model.Bundle)
	require.True(t, ok)
	assert.Equal(t, "batch-response", out.Type)
	require.Len(t, out.Entry, 4)

	// Entry order is preserved; per-entry failures do not fail the batch.
	assert.Equal(t, "200", out.Entry[0].Response.Status)
	var sub model.Parameters
	require.NoError(t, json.Unmarshal(out.Entry[0].Resource, &sub))
	outcome, _ := sub.String("outcome")
	assert.Equal(t, "equivalent", outcome)

	assert.Equal(t, "200", out.Entry[1].Response.Status)
	assert.Equal(t, "404", out.Entry[2].Response.Status)
	assert.NotEmpty(t, out.Entry[2].Response.Outcome)
	// An unsupported operation is a semantic rejection.
	assert.Equal(t, "422", out.Entry[3].Response.Status)
}

func TestBatchParallelEntriesShareNoCycleState(t *testing.T) {
	lib := newFixtureLibrary(t)
	w := newTestWorkers()
	req := newFixtureRequest(t, lib, "")

	// Many parallel entries against the same value set: independent
	// operations must never read each other as a circular reference.
	vsURL := "http://hl7.org/fhir/ValueSet/administrative-gender"
	bundle := model.NewBundle("batch")
	for i := 0; i < 16; i++ {
		code := "male"
		if i%2 == 1 {
			code = "female"
		}
		bundle.Entry = append(bundle.Entry, model.BundleEntry{
			Request: &model.BundleEntryRequest{
				Method: "GET",
				URL:    "ValueSet/$validate-code?url=" + vsURL + "&system=" + genderSystem + "&code=" + code,
			},
		})
	}

	resp := w.Batch(req, bundle, worker.NewPool(8))
	require.Equal(t, http.StatusOK, resp.Status)
	out := resp.Resource.(*model.Bundle)
	require.Len(t, out.Entry, 16)
	for i, entry := range out.Entry {
		require.Equal(t, "200", entry.Response.Status, "entry %d", i)
		var params model.Parameters
		require.NoError(t, json.Unmarshal(entry.Resource, &params))
		result, _ := params.Bool("result")
		assert.True(t, result, "entry %d should validate", i)
	}
}

func TestBatchRejectsWrongBundleType(t *testing.T) {
	lib := newFixtureLibrary(t)
	w := newTestWorkers()
	req := newFixtureRequest(t, lib, "")

	bundle := model.NewBundle("transaction")
	resp := w.Batch(req, bundle, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestSplitOperationPath(t *testing.T) {
	tests := []struct {
		path         string
		resourceType string
		instanceID   string
		op           string
		ok           bool
	}{
		{"CodeSystem/$lookup", "CodeSystem", "", "$lookup", true},
		{"ValueSet/vs-1/$expand", "ValueSet", "vs-1", "$expand", true},
		{"/ConceptMap/$translate", "ConceptMap", "", "$translate", true},
		{"CodeSystem/abc", "", "", "", false},
		{"CodeSystem", "", "", "", false},
	}
	for _, tt := range tests {
		rt, id, op, ok := splitOperationPath(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		if ok {
			assert.Equal(t, tt.resourceType, rt)
			assert.Equal(t, tt.instanceID, id)
			assert.Equal(t, tt.op, op)
		}
	}
}
