package lang

import (
	"testing"
)

func TestParseAcceptLanguage(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   []string
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"single", "en", []string{"en"}, false},
		{"q ordering", "de, en;q=0.5", []string{"de", "en"}, false},
		{"q reordering", "en;q=0.3, fr;q=0.9", []string{"fr", "en"}, false},
		{"region", "en-US", []string{"en-US"}, false},
		{"malformed", ";;;", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAcceptLanguage(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		candidate string
		wanted    string
		want      MatchQuality
	}{
		{"de", "de", MatchExact},
		{"de-CH", "de-CH", MatchExact},
		{"DE", "de", MatchExact},
		{"de-CH", "de", MatchLanguageOnly},
		{"de", "de-CH", MatchLanguageOnly},
		{"en", "*", MatchWildcard},
		{"en", "fr", MatchNone},
	}
	for _, tt := range tests {
		if got := Match(tt.candidate, tt.wanted); got != tt.want {
			t.Errorf("Match(%q, %q) = %d, want %d", tt.candidate, tt.wanted, got, tt.want)
		}
	}
}

func TestSelect(t *testing.T) {
	candidates := []string{"en", "de", "de-CH"}

	tests := []struct {
		name   string
		wanted []string
		want   int
	}{
		{"exact beats language-only", []string{"de"}, 1},
		{"region falls back to base", []string{"de-AT"}, 1},
		{"priority order wins", []string{"fr", "en"}, 0},
		{"nothing matches", []string{"ja"}, -1},
		{"empty wanted", nil, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Select(candidates, tt.wanted); got != tt.want {
				t.Errorf("Select = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCatalog(t *testing.T) {
	c := DefaultCatalog()

	en := c.Get("CODE_NOT_FOUND", []string{"en"}, "x", "http://loinc.org")
	if en != "code 'x' is not known to code system 'http://loinc.org'" {
		t.Errorf("en message = %q", en)
	}

	de := c.Get("CODE_NOT_FOUND", []string{"de", "en"}, "x", "http://loinc.org")
	if de != "Code 'x' ist im Codesystem 'http://loinc.org' nicht bekannt" {
		t.Errorf("de message = %q", de)
	}

	// Unknown languages fall back to the catalog default.
	fr := c.Get("CODE_NOT_FOUND", []string{"fr"}, "x", "s")
	if fr == "CODE_NOT_FOUND" {
		t.Error("known id should not echo as itself")
	}

	// Unknown ids echo as themselves.
	if got := c.Get("NO_SUCH_MESSAGE", nil); got != "NO_SUCH_MESSAGE" {
		t.Errorf("unknown id = %q", got)
	}
}
