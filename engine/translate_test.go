package engine

import (
	"testing"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/model"
)

func fixtureConceptMap() *model.ConceptMap {
	return &model.ConceptMap{
		URL: "http://example.org/cm/gender-to-v3",
		Group: []model.MapGroup{
			{
				Source: "http://hl7.org/fhir/administrative-gender",
				Target: "http://terminology.hl7.org/CodeSystem/v3-AdministrativeGender",
				Element: []model.MapElement{
					{
						Code: "male",
						Target: []model.MapTarget{
							{Code: "M", Display: "Male", Relationship: model.RelEquivalent},
						},
					},
					{
						Code: "other",
						Target: []model.MapTarget{
							{Code: "UN", Display: "Undifferentiated", Relationship: model.RelSourceBroader},
						},
					},
				},
			},
			{
				Source: "http://hl7.org/fhir/administrative-gender",
				Target: "http://example.org/cs/legacy",
				Element: []model.MapElement{
					{
						Code: "male",
						Target: []model.MapTarget{
							{Code: "1", Relationship: model.RelRelatedTo},
						},
					},
				},
			},
		},
	}
}

func TestTranslate(t *testing.T) {
	tr := NewTranslator()
	opCtx := txserver.NewOperationContext()
	cm := fixtureConceptMap()

	matches, iss := tr.Translate(opCtx, cm, &model.Coding{
		System: "http://hl7.org/fhir/administrative-gender",
		Code:   "male",
	}, "", false)
	if iss != nil {
		t.Fatal(iss)
	}
	// Group order is preserved across matching groups.
	if len(matches) != 2 {
		t.Fatalf("matches = %+v", matches)
	}
	if matches[0].Coding.Code != "M" || matches[0].Relationship != model.RelEquivalent {
		t.Errorf("first match = %+v", matches[0])
	}
	if matches[1].Coding.Code != "1" {
		t.Errorf("second match = %+v", matches[1])
	}
}

func TestTranslateTargetRestriction(t *testing.T) {
	tr := NewTranslator()
	cm := fixtureConceptMap()

	matches, iss := tr.Translate(txserver.NewOperationContext(), cm, &model.Coding{
		System: "http://hl7.org/fhir/administrative-gender",
		Code:   "male",
	}, "http://example.org/cs/legacy", false)
	if iss != nil {
		t.Fatal(iss)
	}
	if len(matches) != 1 || matches[0].Coding.Code != "1" {
		t.Errorf("restricted matches = %+v", matches)
	}
}

func TestTranslateNoMatch(t *testing.T) {
	tr := NewTranslator()
	cm := fixtureConceptMap()

	matches, iss := tr.Translate(txserver.NewOperationContext(), cm, &model.Coding{
		System: "http://hl7.org/fhir/administrative-gender",
		Code:   "female",
	}, "", false)
	if iss != nil {
		t.Fatal(iss)
	}
	if len(matches) != 0 {
		t.Errorf("female has no mapping, got %+v", matches)
	}
}

func TestTranslateReverse(t *testing.T) {
	tr := NewTranslator()
	cm := fixtureConceptMap()

	matches, iss := tr.Translate(txserver.NewOperationContext(), cm, &model.Coding{
		System: "http://terminology.hl7.org/CodeSystem/v3-AdministrativeGender",
		Code:   "M",
	}, "", true)
	if iss != nil {
		t.Fatal(iss)
	}
	if len(matches) != 1 || matches[0].Coding.Code != "male" {
		t.Fatalf("reverse matches = %+v", matches)
	}

	// Narrower/broader relationships invert on the way back.
	matches, iss = tr.Translate(txserver.NewOperationContext(), cm, &model.Coding{
		System: "http://terminology.hl7.org/CodeSystem/v3-AdministrativeGender",
		Code:   "UN",
	}, "", true)
	if iss != nil {
		t.Fatal(iss)
	}
	if len(matches) != 1 || matches[0].Relationship != model.RelSourceNarrower {
		t.Fatalf("inverted relationship = %+v", matches)
	}
}
