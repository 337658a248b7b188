package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFixturePackage(t *testing.T, withIndex bool) string {
	t.Helper()
	dir := t.TempDir()
	pkgDir := filepath.Join(dir, "package")
	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		t.Fatal(err)
	}

	files := map[string]string{
		"package.json": `{
			"name": "example.terminology",
			"version": "1.0.0",
			"fhirVersions": ["4.0.1"],
			"canonical": "http://example.org"
		}`,
		"CodeSystem-gender.json": `{
			"resourceType": "CodeSystem",
			"id": "gender",
			"url": "http://example.org/cs/gender",
			"version": "1.0.0"
		}`,
		"ValueSet-gender.json": `{
			"resourceType": "ValueSet",
			"id": "gender",
			"url": "http://example.org/vs/gender",
			"version": "1.0.0"
		}`,
	}
	if withIndex {
		files[".index.json"] = `{
			"index-version": 1,
			"files": [
				{"filename": "CodeSystem-gender.json", "resourceType": "CodeSystem", "id": "gender", "url": "http://example.org/cs/gender", "version": "1.0.0"},
				{"filename": "ValueSet-gender.json", "resourceType": "ValueSet", "id": "gender", "url": "http://example.org/vs/gender", "version": "1.0.0"}
			]
		}`
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(pkgDir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestOpenWithIndex(t *testing.T) {
	pkg, err := Open(writeFixturePackage(t, true))
	if err != nil {
		t.Fatal(err)
	}
	if pkg.ID() != "example.terminology#1.0.0" {
		t.Errorf("ID = %q", pkg.ID())
	}
	if got := pkg.FHIRMajor(); len(got) != 1 || got[0] != 4 {
		t.Errorf("FHIRMajor = %v", got)
	}

	all := pkg.Resources()
	if len(all) != 2 {
		t.Fatalf("resources = %+v", all)
	}
	cs := pkg.Resources("CodeSystem")
	if len(cs) != 1 || cs[0].URL != "http://example.org/cs/gender" {
		t.Errorf("CodeSystem entries = %+v", cs)
	}

	data, err := pkg.ReadResource(cs[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("resource payload should be readable")
	}
}

func TestOpenWithoutIndexScansFiles(t *testing.T) {
	pkg, err := Open(writeFixturePackage(t, false))
	if err != nil {
		t.Fatal(err)
	}
	if len(pkg.Resources("CodeSystem")) != 1 {
		t.Error("scan fallback should index the CodeSystem")
	}
	if len(pkg.Resources("ValueSet")) != 1 {
		t.Error("scan fallback should index the ValueSet")
	}
}

func TestOpenRejectsMalformedPackage(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Error("a directory without a manifest is not a package")
	}
}
