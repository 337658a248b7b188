package provider

import (
	"strings"
	"testing"

	"github.com/gofhir/txserver"
)

const loincFixture = `LOINC_NUM,COMPONENT,PROPERTY,TIME_ASPCT,SYSTEM,SCALE_TYP,METHOD_TYP,CLASS,STATUS,LONG_COMMON_NAME
718-7,Hemoglobin,MCnc,Pt,Bld,Qn,,HEM/BC,ACTIVE,Hemoglobin [Mass/volume] in Blood
2345-7,Glucose,MCnc,Pt,Ser/Plas,Qn,,CHEM,ACTIVE,Glucose [Mass/volume] in Serum or Plasma
8480-6,Intravascular systolic,Pres,Pt,Arterial system,Qn,,BP.ATOM,ACTIVE,Systolic blood pressure
8462-4,Intravascular diastolic,Pres,Pt,Arterial system,Qn,,BP.ATOM,ACTIVE,Diastolic blood pressure
1234-5,Old thing,MCnc,Pt,Bld,Qn,,CHEM,DEPRECATED,Deprecated observation
`

func newTestLOINC(t *testing.T) *LOINC {
	t.Helper()
	p, err := ReadLOINC(strings.NewReader(loincFixture), "2.76")
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLOINCLocate(t *testing.T) {
	p := newTestLOINC(t)

	c, msg := p.Locate("718-7")
	if c == nil || msg != "" {
		t.Fatalf("Locate(718-7) = %v, %q", c, msg)
	}
	if got := p.Display(c, nil); got != "Hemoglobin [Mass/volume] in Blood" {
		t.Errorf("Display = %q", got)
	}

	_, msg = p.Locate("1234-5")
	if !strings.Contains(msg, "deprecated") {
		t.Errorf("deprecated code message = %q", msg)
	}

	if c, _ := p.Locate("9999-9"); c != nil {
		t.Error("unknown code should not locate")
	}
	if p.TotalCount() != 5 {
		t.Errorf("TotalCount = %d", p.TotalCount())
	}
}

func TestLOINCAxes(t *testing.T) {
	p := newTestLOINC(t)
	c, _ := p.Locate("2345-7")

	props := p.Properties(c, []string{"COMPONENT", "CLASS"})
	if len(props) != 2 {
		t.Fatalf("props = %+v", props)
	}
	if props[0].Code != "COMPONENT" || props[0].ValueString != "Glucose" {
		t.Errorf("COMPONENT = %+v", props[0])
	}
	if props[1].Code != "CLASS" || props[1].ValueString != "CHEM" {
		t.Errorf("CLASS = %+v", props[1])
	}
}

func TestLOINCFilters(t *testing.T) {
	p := newTestLOINC(t)
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

	fc, iss := p.Filter(opCtx, "CLASS", "=", "BP.ATOM")
	if iss != nil {
		t.Fatal(iss)
	}
	if got := collect(fc); len(got) != 2 {
		t.Errorf("CLASS=BP.ATOM matched %v", got)
	}

	// Regex filters on CLASS are supported.
	fc, iss = p.Filter(opCtx, "CLASS", "regex", "^BP\\.")
	if iss != nil {
		t.Fatal(iss)
	}
	if got := collect(fc); len(got) != 2 {
		t.Errorf("CLASS regex matched %v", got)
	}

	fc, iss = p.Filter(opCtx, "STATUS", "=", "DEPRECATED")
	if iss != nil {
		t.Fatal(iss)
	}
	if got := collect(fc); len(got) != 1 || got[0] != "1234-5" {
		t.Errorf("STATUS=DEPRECATED matched %v", got)
	}

	if _, iss := p.Filter(opCtx, "ORDER_OBS", "=", "x"); iss == nil {
		t.Error("unknown axis should be not-supported")
	}
	if _, iss := p.Filter(opCtx, "CLASS", "is-a", "x"); iss == nil {
		t.Error("hierarchy operators are not supported on axes")
	}
}

func TestLOINCInactive(t *testing.T) {
	p := newTestLOINC(t)
	dep, _ := p.Locate("1234-5")
	if !p.IsInactive(dep) || !p.IsDeprecated(dep) {
		t.Error("DEPRECATED terms are inactive and deprecated")
	}
	active, _ := p.Locate("718-7")
	if p.IsInactive(active) {
		t.Error("ACTIVE terms are not inactive")
	}
}
