package provider

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofhir/txserver"
)

var snomedFixture = strings.Join([]string{
	"# conceptId\tactive\tterm\tparents\tsynonyms",
	"138875005\t1\tSNOMED CT Concept",
	"404684003\t1\tClinical finding\t138875005",
	"22298006\t1\tMyocardial infarction\t404684003\tHeart attack|MI",
	"57054005\t1\tAcute myocardial infarction\t22298006",
	"195967001\t1\tAsthma\t404684003",
	"161000\t0\tRetired finding\t404684003",
	"",
}, "\n")

func newTestSNOMED(t *testing.T) *SNOMED {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sct-900000000000207008-20240101.tsv")
	if err := os.WriteFile(path, []byte(snomedFixture), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadSNOMED(path, "900000000000207008", "20240101", true)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSNOMEDLocate(t *testing.T) {
	p := newTestSNOMED(t)

	c, msg := p.Locate("22298006")
	if c == nil || msg != "" {
		t.Fatalf("Locate = %v, %q", c, msg)
	}
	if got := p.Display(c, nil); got != "Myocardial infarction" {
		t.Errorf("Display = %q", got)
	}

	_, msg = p.Locate("161000")
	if msg == "" {
		t.Error("inactive concept should carry a message")
	}

	if c, _ := p.Locate("99999999"); c != nil {
		t.Error("unknown id should not locate")
	}
}

func TestSNOMEDVersionURI(t *testing.T) {
	p := newTestSNOMED(t)
	want := "http://snomed.info/sct/900000000000207008/version/20240101"
	if got := p.Version(); got != want {
		t.Errorf("Version = %q, want %q", got, want)
	}
}

func TestSNOMEDSubsumes(t *testing.T) {
	p := newTestSNOMED(t)
	locate := func(id string) Concept {
		c, _ := p.Locate(id)
		if c == nil {
			t.Fatalf("missing fixture concept %s", id)
		}
		return c
	}

	tests := []struct {
		a, b string
		want SubsumptionOutcome
	}{
		{"22298006", "22298006", Equivalent},
		{"404684003", "57054005", Subsumes},
		{"22298006", "57054005", Subsumes},
		{"57054005", "404684003", SubsumedBy},
		{"195967001", "22298006", NotSubsumed},
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

func TestSNOMEDIsAFilter(t *testing.T) {
	p := newTestSNOMED(t)
	opCtx := txserver.NewOperationContext()

	fc, iss := p.Filter(opCtx, "concept", "is-a", "22298006")
	if iss != nil {
		t.Fatal(iss)
	}
	it, iss := p.Iterator(opCtx, fc)
	if iss != nil {
		t.Fatal(iss)
	}
	defer it.Close()
	var ids []string
	for {
		c, ok := it.Next()
		if !ok {
			break
		}
		ids = append(ids, c.Code())
	}
	if len(ids) != 2 || ids[0] != "22298006" || ids[1] != "57054005" {
		t.Errorf("is-a matched %v", ids)
	}
}

func TestSNOMEDExpressions(t *testing.T) {
	p := newTestSNOMED(t)

	// An authoritative back-end accepts expressions whose focus concept
	// is known.
	c, _ := p.Locate("22298006:116676008=55641003")
	if c == nil {
		t.Error("expression with known focus should locate")
	}
	if c, _ := p.Locate("99999999:116676008=55641003"); c != nil {
		t.Error("expression with unknown focus should not locate")
	}

	// Subsumption over expressions is not supported.
	a, _ := p.Locate("22298006:116676008=55641003")
	b, _ := p.Locate("22298006")
	if _, iss := p.Subsumes(a, b); iss == nil {
		t.Error("expression subsumption should be not-supported")
	}
}

func TestSNOMEDSynonyms(t *testing.T) {
	p := newTestSNOMED(t)
	c, _ := p.Locate("22298006")
	designations := p.Designations(c)
	if len(designations) != 3 {
		t.Fatalf("designations = %+v", designations)
	}
	if designations[1].Value != "Heart attack" || designations[2].Value != "MI" {
		t.Errorf("synonyms = %+v", designations[1:])
	}
}
