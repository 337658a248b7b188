package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/provider"
)

func TestParseSources(t *testing.T) {
	sources, err := parseSources([]string{
		"internal:countries",
		"internal!:languages",
		"ucum:ucum-essence-2.1.xml",
		"loinc:loinc-2.76.csv|loinc-fallback.csv",
		"npm:hl7.terminology.r4#5.0.0",
		"npm/cs:hl7.fhir.r4.core#4.0.1",
		"# a comment",
		"",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 6 {
		t.Fatalf("parsed %d sources", len(sources))
	}
	if sources[0].kind != "internal" || sources[0].detail != "countries" || sources[0].isDefault {
		t.Errorf("sources[0] = %+v", sources[0])
	}
	if !sources[1].isDefault {
		t.Error("trailing ! should mark the default provider")
	}
	if sources[3].detail != "loinc-2.76.csv|loinc-fallback.csv" {
		t.Errorf("alternate path should survive parsing: %q", sources[3].detail)
	}
	if sources[5].kind != "npm/cs" {
		t.Errorf("sources[5].kind = %q", sources[5].kind)
	}
}

func TestParseSourcesErrors(t *testing.T) {
	if _, err := parseSources([]string{"warez:stuff"}); err == nil {
		t.Error("unknown kind should be fatal")
	}
	if _, err := parseSources([]string{"no-colon-here"}); err == nil {
		t.Error("a line without kind:detail should be fatal")
	}
}

func TestLoadInternals(t *testing.T) {
	ld := New(Config{
		Sources: []string{
			"internal:countries",
			"internal:currencies",
			"internal:usstates",
			"internal:mimetypes",
			"internal:languages",
			"internal:hgvs",
		},
		CacheDir: t.TempDir(),
	}, zerolog.Nop())

	lib, err := ld.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer lib.Close()

	opCtx := txserver.NewOperationContext()
	prov, iss := lib.CloneWithFHIRVersion(txserver.R4, opCtx)
	if iss != nil {
		t.Fatal(iss)
	}
	for _, system := range []string{
		provider.ISO3166System,
		provider.ISO4217System,
		provider.USStateSystem,
		provider.MimeTypeSystem,
		provider.BCP47System,
		provider.HGVSSystem,
	} {
		p, iss := prov.GetCodeSystemProvider(opCtx, system, "", nil)
		if iss != nil {
			t.Fatal(iss)
		}
		if p == nil {
			t.Errorf("system %s should be registered", system)
		}
	}
}

func TestLoadRejectsUnknownInternal(t *testing.T) {
	ld := New(Config{Sources: []string{"internal:astrology"}, CacheDir: t.TempDir()}, zerolog.Nop())
	if _, err := ld.Load(context.Background()); err == nil {
		t.Error("unknown internal name should be fatal")
	}
}

func TestLoadRejectsDefaultOnSoleAuthority(t *testing.T) {
	ld := New(Config{Sources: []string{"internal!:hgvs"}, CacheDir: t.TempDir()}, zerolog.Nop())
	if _, err := ld.Load(context.Background()); err == nil {
		t.Error("hgvs does not accept the default marker")
	}
}

func TestLoadTabularSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rxnorm-202401.csv")
	csv := "code,display\n198440,Acetaminophen 500 MG Oral Tablet\n197361,Amlodipine 5 MG Oral Tablet\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	ld := New(Config{Sources: []string{"rxnorm:" + path}, CacheDir: dir}, zerolog.Nop())
	lib, err := ld.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer lib.Close()

	opCtx := txserver.NewOperationContext()
	prov, iss := lib.CloneWithFHIRVersion(txserver.R4, opCtx)
	if iss != nil {
		t.Fatal(iss)
	}
	p, _ := prov.GetCodeSystemProvider(opCtx, "http://www.nlm.nih.gov/research/umls/rxnorm", "", nil)
	if p == nil {
		t.Fatal("rxnorm should be registered")
	}
	c, _ := p.Locate("198440")
	if c == nil {
		t.Fatal("loaded code should locate")
	}
	if got := p.Display(c, nil); got != "Acetaminophen 500 MG Oral Tablet" {
		t.Errorf("display = %q", got)
	}
	if got := p.Version(); got != "202401" {
		t.Errorf("version hint = %q", got)
	}
}

func TestVersionFromPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"loinc-2.76.csv", "2.76"},
		{"/data/loinc-2.76.csv", "2.76"},
		{"ucum-essence.xml", ""},
		{"plain", ""},
	}
	for _, tt := range tests {
		if got := versionFromPath(tt.in); got != tt.want {
			t.Errorf("versionFromPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
