package txserver

import "testing"

func TestParametersHashDeterminism(t *testing.T) {
	a := DefaultParameters()
	a.ActiveOnly = true
	a.Properties = []string{"b", "a"}
	a.VersionRules = []VersionRule{{System: "http://loinc.org", Version: "2.76"}}

	b := DefaultParameters()
	b.ActiveOnly = true
	b.Properties = []string{"a", "b"} // order of selectors does not matter
	b.VersionRules = []VersionRule{{System: "http://loinc.org", Version: "2.76"}}

	if a.Hash() != b.Hash() {
		t.Error("equivalent parameter sets should hash equal")
	}
}

func TestParametersHashDifferences(t *testing.T) {
	base := DefaultParameters()

	tests := []struct {
		name   string
		mutate func(*OperationParameters)
	}{
		{"activeOnly", func(p *OperationParameters) { p.ActiveOnly = true }},
		{"limit", func(p *OperationParameters) { p.ExpansionLimit = 50 }},
		{"textFilter", func(p *OperationParameters) { p.TextFilter = "male" }},
		{"languages", func(p *OperationParameters) { p.DisplayLanguages = []string{"de"} }},
		{"versionRule", func(p *OperationParameters) {
			p.VersionRules = []VersionRule{{System: "s", Version: "1", Mode: VersionModeOverride}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base.Clone()
			tt.mutate(p)
			if p.Hash() == base.Hash() {
				t.Error("mutated parameters should hash differently")
			}
		})
	}
}

func TestLanguagesPrecedence(t *testing.T) {
	p := DefaultParameters()
	p.HTTPLanguages = []string{"en"}
	if got := p.Languages(); len(got) != 1 || got[0] != "en" {
		t.Errorf("Languages() = %v, want [en]", got)
	}
	// The explicit displayLanguage parameter wins over Accept-Language.
	p.DisplayLanguages = []string{"de"}
	if got := p.Languages(); len(got) != 1 || got[0] != "de" {
		t.Errorf("Languages() = %v, want [de]", got)
	}
}

func TestParseVersionRule(t *testing.T) {
	tests := []struct {
		in      string
		want    VersionRule
		wantOK  bool
	}{
		{"http://loinc.org|2.76", VersionRule{System: "http://loinc.org", Version: "2.76"}, true},
		{"http://loinc.org|2.76|check", VersionRule{System: "http://loinc.org", Version: "2.76", Mode: VersionModeCheck}, true},
		{"http://loinc.org|2.76|override", VersionRule{System: "http://loinc.org", Version: "2.76", Mode: VersionModeOverride}, true},
		{"http://loinc.org", VersionRule{}, false},
		{"|2.76", VersionRule{}, false},
		{"http://loinc.org|2.76|sometimes", VersionRule{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseVersionRule(tt.in)
		if ok != tt.wantOK {
			t.Errorf("ParseVersionRule(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("ParseVersionRule(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestCloneIndependence(t *testing.T) {
	p := DefaultParameters()
	p.Properties = []string{"canonical"}
	clone := p.Clone()
	clone.Properties[0] = "other"
	if p.Properties[0] != "canonical" {
		t.Error("Clone should copy slices, not share them")
	}
}
