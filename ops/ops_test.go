package ops

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/engine"
	"github.com/gofhir/txserver/library"
	"github.com/gofhir/txserver/model"
)

const genderSystem = "http://hl7.org/fhir/administrative-gender"

// newFixtureLibrary builds a library holding the administrative-gender
// code system and value set, a concept map, and the UCUM factory.
func newFixtureLibrary(t *testing.T) *library.Library {
	t.Helper()
	lib := library.New("test")

	store := library.NewPackageStore("fixture#1.0.0")
	store.AddCodeSystem(&model.CodeSystem{
		ID:            "administrative-gender",
		URL:           genderSystem,
		Version:       "4.0.1",
		Name:          "AdministrativeGender",
		Status:        "active",
		CaseSensitive: true,
		ValueSet:      "http://hl7.org/fhir/ValueSet/administrative-gender",
		Concept: []model.Concept{
			{Code: "male", Display: "Male", Designation: []model.Designation{{Language: "de", Value: "Männlich"}}},
			{Code: "female", Display: "Female"},
			{Code: "other", Display: "Other"},
			{Code: "unknown", Display: "Unknown"},
		},
	})
	store.AddValueSet(&model.ValueSet{
		ID:      "administrative-gender",
		URL:     "http://hl7.org/fhir/ValueSet/administrative-gender",
		Version: "4.0.1",
		Name:    "AdministrativeGender",
		Status:  "active",
		Compose: &model.Compose{Include: []model.Include{{System: genderSystem}}},
	})
	store.AddValueSet(&model.ValueSet{
		ID:  "with-unknown",
		URL: "http://example.org/vs/with-unknown",
		Compose: &model.Compose{
			Include: []model.Include{{
				System: genderSystem,
				Concept: []model.ConceptRef{
					{Code: "male"},
					{Code: "walrus"},
				},
			}},
		},
	})
	store.AddValueSet(&model.ValueSet{
		ID:  "self-importing",
		URL: "http://example.org/vs/self",
		Compose: &model.Compose{
			Include: []model.Include{{ValueSet: []string{"http://example.org/vs/self"}}},
		},
	})
	store.AddConceptMap(&model.ConceptMap{
		ID:  "gender-to-v3",
		URL: "http://example.org/cm/gender-to-v3",
		Group: []model.MapGroup{{
			Source: genderSystem,
			Target: "http://terminology.hl7.org/CodeSystem/v3-AdministrativeGender",
			Element: []model.MapElement{{
				Code: "A",
				Target: []model.MapTarget{
					{Code: "X", Relationship: model.RelEquivalent},
				},
			}, {
				Code: "male",
				Target: []model.MapTarget{
					{Code: "M", Display: "Male", Relationship: model.RelEquivalent},
				},
			}},
		}},
	})
	lib.AddPackage(store)

	require.Nil(t, lib.RegisterFactory(library.NewUCUMFactory("2.1"), false))
	return lib
}

func newFixtureRequest(t *testing.T, lib *library.Library, query string) *Request {
	t.Helper()
	opCtx := txserver.NewOperationContext()
	prov, iss := lib.CloneWithFHIRVersion(txserver.R4, opCtx)
	require.Nil(t, iss)

	values, err := url.ParseQuery(query)
	require.NoError(t, err)
	params, pIss := ParamsFromQuery(values)
	require.Nil(t, pIss)

	return &Request{Provider: prov, OpCtx: opCtx, Params: params}
}

func newTestWorkers() *Workers {
	return NewWorkers(engine.NewMemo(64, nil), nil)
}

func paramValue(t *testing.T, resp Response, name string) string {
	t.Helper()
	params, ok := resp.Resource.(*model.Parameters)
	require.True(t, ok, "response should be Parameters, got %T", resp.Resource)
	v, _ := params.String(name)
	return v
}

func TestSubsumesEquivalent(t *testing.T) {
	lib := newFixtureLibrary(t)
	w := newTestWorkers()

	resp := w.Subsumes(newFixtureRequest(t, lib,
		"system="+url.QueryEscape(genderSystem)+"&codeA=male&codeB=male"))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "equivalent", paramValue(t, resp, "outcome"))
}

func TestSubsumesNotSubsumed(t *testing.T) {
	lib := newFixtureLibrary(t)
	w := newTestWorkers()

	resp := w.Subsumes(newFixtureRequest(t, lib,
		"system="+url.QueryEscape(genderSystem)+"&codeA=male&codeB=female"))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "not-subsumed", paramValue(t, resp, "outcome"))
}

func TestSubsumesMissingSystemIs404(t *testing.T) {
	lib := newFixtureLibrary(t)
	w := newTestWorkers()

	// Missing system is missing operation context: 404 not-found, while
	// missing codes are 400s.
	resp := w.Subsumes(newFixtureRequest(t, lib, "codeA=male&codeB=female"))
	assert.Equal(t, http.StatusNotFound, resp.Status)

	resp = w.Subsumes(newFixtureRequest(t, lib,
		"system="+url.QueryEscape(genderSystem)+"&codeB=female"))
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = w.Subsumes(newFixtureRequest(t, lib,
		"system="+url.QueryEscape(genderSystem)+"&codeA=male"))
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestValidateCodeVS(t *testing.T) {
	lib := newFixtureLibrary(t)
	w := newTestWorkers()

	resp := w.ValidateCodeVS(newFixtureRequest(t, lib,
		"url="+url.QueryEscape("http://hl7.org/fhir/ValueSet/administrative-gender")+
			"&code=male&system="+url.QueryEscape(genderSystem)))
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "true", paramValue(t, resp, "result"))
	assert.Equal(t, "Male", paramValue(t, resp, "display"))
}

func TestValidateCodeVSNonMember(t *testing.T) {
	lib := newFixtureLibrary(t)
	w := newTestWorkers()

	resp := w.ValidateCodeVS(newFixtureRequest(t, lib,
		"url="+url.QueryEscape("http://hl7.org/fhir/ValueSet/administrative-gender")+
			"&code=walrus&system="+url.QueryEscape(genderSystem)))
	// Not a member is still HTTP 200 with result=false.
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "false", paramValue(t, resp, "result"))
}

func TestLookupUCUM(t *testing.T) {
	lib := newFixtureLibrary(t)
	w := newTestWorkers()

	resp := w.Lookup(newFixtureRequest(t, lib,
		"system="+url.QueryEscape("http://unitsofmeasure.org")+"&code=mg"))
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "milligram", paramValue(t, resp, "display"))

	params := resp.Resource.(*model.Parameters)
	var canonical string
	for _, prop := range params.All("property") {
		codePart, ok := prop.PartNamed("code")
		if !ok || codePart.ValueCode != "canonical" {
			continue
		}
		if valuePart, ok := prop.PartNamed("value"); ok {
			canonical, _ = valuePart.AsString()
		}
	}
	assert.Equal(t, "10*-3.g", canonical, "canonical should be g scaled by a power of ten")
}

func TestLookupUnknownCode(t *testing.T) {
	lib := newFixtureLibrary(t)
	w := newTestWorkers()

	resp := w.Lookup(newFixtureRequest(t, lib,
		"system="+url.QueryEscape(genderSystem)+"&code=walrus"))
	assert.Equal(t, http.StatusNotFound, resp.Status)
	_, isOutcome := resp.Resource.(*model.OperationOutcome)
	assert.True(t, isOutcome, "failures surface as OperationOutcome")
}

func TestLookupDisplayLanguage(t *testing.T) {
	lib := newFixtureLibrary(t)
	w := newTestWorkers()

	req := newFixtureRequest(t, lib,
		"system="+url.QueryEscape(genderSystem)+"&code=male&displayLanguage=de")
	resp := w.Lookup(req)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "Männlich", paramValue(t, resp, "display"))
}

func TestExpandOperation(t *testing.T) {
	lib := newFixtureLibrary(t)
	w := newTestWorkers()

	resp := w.Expand(newFixtureRequest(t, lib,
		"url="+url.QueryEscape("http://hl7.org/fhir/ValueSet/administrative-gender")))
	require.Equal(t, http.StatusOK, resp.Status)
}

func TestExpandSelfImport(t *testing.T) {
	lib := newFixtureLibrary(t)
	w := newTestWorkers()

	// A circular composition is a 200 whose body is the OperationOutcome.
	resp := w.Expand(newFixtureRequest(t, lib,
		"url="+url.QueryEscape("http://example.org/vs/self")))
	require.Equal(t, http.StatusOK, resp.Status)
	outcome, ok := resp.Resource.(*model.OperationOutcome)
	require.True(t, ok)
	require.NotEmpty(t, outcome.Issue)
	assert.Equal(t, "business-rule", outcome.Issue[0].Code)
	assert.Contains(t, outcome.Issue[0].Diagnostics, "vs/self")
}

func expandWarningCount(t *testing.T, resp Response) int {
	t.Helper()
	raw, err := json.Marshal(resp.Resource)
	require.NoError(t, err)
	var vs struct {
		Expansion struct {
			Parameter []model.ExpansionParameter `json:"parameter"`
		} `json:"expansion"`
	}
	require.NoError(t, json.Unmarshal(raw, &vs))
	count := 0
	for _, p := range vs.Expansion.Parameter {
		if p.Name == "warning" {
			count++
		}
	}
	return count
}

func TestExpandRepeatedCallsAreIdentical(t *testing.T) {
	lib := newFixtureLibrary(t)
	w := newTestWorkers()

	// The unknown enumerated code attaches a warning; repeated memo hits
	// must not accumulate duplicates on the shared cached expansion.
	query := "url=" + url.QueryEscape("http://example.org/vs/with-unknown")

	first := w.Expand(newFixtureRequest(t, lib, query))
	require.Equal(t, http.StatusOK, first.Status)
	second := w.Expand(newFixtureRequest(t, lib, query))
	require.Equal(t, http.StatusOK, second.Status)
	third := w.Expand(newFixtureRequest(t, lib, query))
	require.Equal(t, http.StatusOK, third.Status)

	n := expandWarningCount(t, first)
	require.Equal(t, 1, n, "the unknown code should surface as one warning")
	assert.Equal(t, n, expandWarningCount(t, second))
	assert.Equal(t, n, expandWarningCount(t, third))
}

func TestTranslateOperation(t *testing.T) {
	lib := newFixtureLibrary(t)
	w := newTestWorkers()

	resp := w.Translate(newFixtureRequest(t, lib,
		"url="+url.QueryEscape("http://example.org/cm/gender-to-v3")+
			"&system="+url.QueryEscape(genderSystem)+"&code=A"))
	require.Equal(t, http.StatusOK, resp.Status)

	params := resp.Resource.(*model.Parameters)
	v, _ := params.Bool("result")
	assert.True(t, v)
	matches := params.All("match")
	require.Len(t, matches, 1)
	eq, ok := matches[0].PartNamed("equivalence")
	require.True(t, ok)
	assert.Equal(t, "equivalent", eq.ValueCode)
	concept, ok := matches[0].PartNamed("concept")
	require.True(t, ok)
	assert.Equal(t, "X", concept.ValueCoding.Code)
}
