package model

import "testing"

func TestParametersAccessors(t *testing.T) {
	p := NewParameters().
		AddCode("code", "male").
		AddURI("system", "http://hl7.org/fhir/administrative-gender").
		AddBoolean("activeOnly", true).
		AddInteger("count", 25).
		AddCoding("coding", Coding{System: "s", Code: "c"})

	if v, ok := p.String("code"); !ok || v != "male" {
		t.Errorf("String(code) = %q, %v", v, ok)
	}
	if v, ok := p.String("system"); !ok || v != "http://hl7.org/fhir/administrative-gender" {
		t.Errorf("String(system) = %q, %v", v, ok)
	}
	if v, ok := p.Bool("activeOnly"); !ok || !v {
		t.Errorf("Bool(activeOnly) = %v, %v", v, ok)
	}
	if v, ok := p.Int("count"); !ok || v != 25 {
		t.Errorf("Int(count) = %d, %v", v, ok)
	}
	if c, ok := p.Coding("coding"); !ok || c.Code != "c" {
		t.Errorf("Coding(coding) = %+v, %v", c, ok)
	}
	if _, ok := p.String("absent"); ok {
		t.Error("absent parameter should report !ok")
	}
}

func TestParametersStringCoercion(t *testing.T) {
	p := NewParameters().AddString("offset", "20")
	if v, ok := p.Int("offset"); !ok || v != 20 {
		t.Errorf("Int over valueString = %d, %v", v, ok)
	}
	p2 := NewParameters().AddString("flag", "true")
	if v, ok := p2.Bool("flag"); !ok || !v {
		t.Errorf("Bool over valueString = %v, %v", v, ok)
	}
}

func TestParametersRepeats(t *testing.T) {
	p := NewParameters().AddCode("property", "a").AddCode("property", "b")
	all := p.All("property")
	if len(all) != 2 {
		t.Fatalf("All = %d entries, want 2", len(all))
	}
	if all[0].ValueCode != "a" || all[1].ValueCode != "b" {
		t.Error("All should preserve order")
	}
}

func TestParseParameters(t *testing.T) {
	good := []byte(`{"resourceType":"Parameters","parameter":[{"name":"code","valueCode":"mg"}]}`)
	p, err := ParseParameters(good)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := p.String("code"); v != "mg" {
		t.Errorf("code = %q", v)
	}

	if _, err := ParseParameters([]byte(`{"resourceType":"Patient"}`)); err == nil {
		t.Error("wrong resourceType should be rejected")
	}
	if _, err := ParseParameters([]byte(`{`)); err == nil {
		t.Error("malformed JSON should be rejected")
	}
}

func TestSplitCanonicalAndMajorMinor(t *testing.T) {
	url, version := SplitCanonical("http://loinc.org|2.76")
	if url != "http://loinc.org" || version != "2.76" {
		t.Errorf("SplitCanonical = %q, %q", url, version)
	}
	url, version = SplitCanonical("http://loinc.org")
	if url != "http://loinc.org" || version != "" {
		t.Errorf("SplitCanonical bare = %q, %q", url, version)
	}

	tests := []struct{ in, want string }{
		{"4.0.1", "4.0"},
		{"4.0", "4.0"},
		{"4", "4"},
		{"2.76", "2.76"},
	}
	for _, tt := range tests {
		if got := MajorMinor(tt.in); got != tt.want {
			t.Errorf("MajorMinor(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
