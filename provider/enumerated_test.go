package provider

import (
	"testing"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/model"
)

func testCodeSystem() *model.CodeSystem {
	inactive := true
	return &model.CodeSystem{
		URL:           "http://example.org/cs/vitals",
		Version:       "1.2.0",
		CaseSensitive: true,
		Concept: []model.Concept{
			{
				Code:    "obs",
				Display: "Observation",
				Concept: []model.Concept{
					{
						Code:       "bp",
						Display:    "Blood pressure",
						Definition: "Pressure of circulating blood",
						Designation: []model.Designation{
							{Language: "de", Value: "Blutdruck"},
							{Language: "en", Value: "Blood pressure"},
						},
						Concept: []model.Concept{
							{Code: "sbp", Display: "Systolic blood pressure"},
							{Code: "dbp", Display: "Diastolic blood pressure"},
						},
					},
					{Code: "hr", Display: "Heart rate"},
				},
			},
			{
				Code:    "old",
				Display: "Retired concept",
				Property: []model.Property{
					{Code: "inactive", ValueBoolean: &inactive},
				},
			},
		},
	}
}

func newTestEnumerated(t *testing.T) *Enumerated {
	t.Helper()
	p, iss := NewEnumerated(testCodeSystem(), nil)
	if iss != nil {
		t.Fatalf("NewEnumerated: %v", iss)
	}
	return p
}

func TestEnumeratedLocate(t *testing.T) {
	p := newTestEnumerated(t)

	c, msg := p.Locate("bp")
	if c == nil {
		t.Fatal("bp should be found")
	}
	if msg != "" {
		t.Errorf("active code should carry no message, got %q", msg)
	}

	// Case-sensitive system: a case-mangled code is unknown.
	if c, _ := p.Locate("BP"); c != nil {
		t.Error("BP should not match in a case-sensitive system")
	}

	if c, _ := p.Locate("nope"); c != nil {
		t.Error("unknown code should return nil")
	}

	_, msg = p.Locate("old")
	if msg == "" {
		t.Error("inactive code should carry a message")
	}
}

func TestEnumeratedCaseInsensitive(t *testing.T) {
	cs := testCodeSystem()
	cs.CaseSensitive = false
	p, iss := NewEnumerated(cs, nil)
	if iss != nil {
		t.Fatal(iss)
	}
	c, _ := p.Locate("BP")
	if c == nil {
		t.Fatal("BP should fold to bp in a case-insensitive system")
	}
	if c.Code() != "bp" {
		t.Errorf("Code() = %q, want the system's spelling", c.Code())
	}
}

func TestEnumeratedDisplayLanguages(t *testing.T) {
	p := newTestEnumerated(t)
	c, _ := p.Locate("bp")

	if got := p.Display(c, nil); got != "Blood pressure" {
		t.Errorf("default display = %q", got)
	}
	if got := p.Display(c, []string{"de", "en"}); got != "Blutdruck" {
		t.Errorf("de display = %q", got)
	}
	// No matching designation falls back to the default display.
	if got := p.Display(c, []string{"fr"}); got != "Blood pressure" {
		t.Errorf("fr display = %q", got)
	}
}

func TestEnumeratedSubsumes(t *testing.T) {
	p := newTestEnumerated(t)
	locate := func(code string) Concept {
		c, _ := p.Locate(code)
		if c == nil {
			t.Fatalf("missing fixture code %s", code)
		}
		return c
	}

	tests := []struct {
		a, b string
		want SubsumptionOutcome
	}{
		{"bp", "bp", Equivalent},
		{"obs", "sbp", Subsumes},
		{"bp", "sbp", Subsumes},
		{"sbp", "bp", SubsumedBy},
		{"sbp", "dbp", NotSubsumed},
		{"hr", "bp", NotSubsumed},
	}
	for _, tt := range tests {
		got, iss := p.Subsumes(locate(tt.a), locate(tt.b))
		if iss != nil {
			t.Fatalf("Subsumes(%s, %s): %v", tt.a, tt.b, iss)
		}
		if got != tt.want {
			t.Errorf("Subsumes(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestEnumeratedFilters(t *testing.T) {
	p := newTestEnumerated(t)
	opCtx := txserver.NewOperationContext()

	collect := func(fc FilterContext) []string {
		it, iss := p.Iterator(opCtx, fc)
		if iss != nil {
			t.Fatal(iss)
		}
		defer it.Close()
		var out []string
		for {
			c, ok := it.Next()
			if !ok {
				return out
			}
			out = append(out, c.Code())
		}
	}

	tests := []struct {
		name     string
		property string
		op       string
		value    string
		want     []string
	}{
		{"is-a includes self", "concept", "is-a", "bp", []string{"bp", "sbp", "dbp"}},
		{"descendent-of excludes self", "concept", "descendent-of", "bp", []string{"sbp", "dbp"}},
		{"generalizes walks up", "concept", "generalizes", "sbp", []string{"sbp", "bp", "obs"}},
		{"equality on code", "code", "=", "hr", []string{"hr"}},
		{"regex on code", "code", "regex", "^.bp$", []string{"sbp", "dbp"}},
		{"in list", "code", "in", "hr,bp", []string{"bp", "hr"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc, iss := p.Filter(opCtx, tt.property, tt.op, tt.value)
			if iss != nil {
				t.Fatal(iss)
			}
			got := collect(fc)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
					break
				}
			}
		})
	}

	if _, iss := p.Filter(opCtx, "code", "near-miss", "x"); iss == nil {
		t.Error("unknown operator should be not-supported")
	}
}

func TestEnumeratedFullIteration(t *testing.T) {
	p := newTestEnumerated(t)
	opCtx := txserver.NewOperationContext()
	it, iss := p.Iterator(opCtx, nil)
	if iss != nil {
		t.Fatal(iss)
	}
	defer it.Close()

	var codes []string
	for {
		c, ok := it.Next()
		if !ok {
			break
		}
		codes = append(codes, c.Code())
	}
	// Depth-first order over the concept tree.
	want := []string{"obs", "bp", "sbp", "dbp", "hr", "old"}
	if len(codes) != len(want) {
		t.Fatalf("codes = %v", codes)
	}
	for i := range codes {
		if codes[i] != want[i] {
			t.Fatalf("codes = %v, want %v", codes, want)
		}
	}
	if p.TotalCount() != 6 {
		t.Errorf("TotalCount = %d", p.TotalCount())
	}
}

func TestSupplementRejectsUnknownCode(t *testing.T) {
	supp := &model.CodeSystem{
		URL:         "http://example.org/cs/vitals-de",
		Content:     model.ContentSupplement,
		Supplements: "http://example.org/cs/vitals",
		Language:    "de",
		Concept: []model.Concept{
			{Code: "no-such-code", Display: "Gibt es nicht"},
		},
	}
	_, iss := NewEnumerated(testCodeSystem(), []*model.CodeSystem{supp})
	if iss == nil {
		t.Fatal("a supplement introducing an unknown code must be rejected")
	}
	if iss.Code != txserver.IssueTypeBusinessRule {
		t.Errorf("Code = %s, want business-rule", iss.Code)
	}
}

func TestSupplementAddsDesignations(t *testing.T) {
	supp := &model.CodeSystem{
		URL:         "http://example.org/cs/vitals-fr",
		Content:     model.ContentSupplement,
		Supplements: "http://example.org/cs/vitals",
		Language:    "fr",
		Concept: []model.Concept{
			{Code: "hr", Display: "Fréquence cardiaque"},
		},
	}
	p, iss := NewEnumerated(testCodeSystem(), []*model.CodeSystem{supp})
	if iss != nil {
		t.Fatal(iss)
	}
	c, _ := p.Locate("hr")
	if got := p.Display(c, []string{"fr"}); got != "Fréquence cardiaque" {
		t.Errorf("fr display = %q", got)
	}
}
