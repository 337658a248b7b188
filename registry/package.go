package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/buger/jsonparser"
)

// Manifest is the package.json of a materialized FHIR package.
type Manifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Description  string            `json:"description"`
	FHIRVersions []string          `json:"fhirVersions"`
	Dependencies map[string]string `json:"dependencies"`
	Canonical    string            `json:"canonical"`
}

// ResourceEntry describes one resource inside a package index.
type ResourceEntry struct {
	Filename     string
	ResourceType string
	ID           string
	URL          string
	Version      string
	Kind         string
	SupplementOf string
}

// Package is a materialized, immutable FHIR package on disk.
type Package struct {
	Dir      string
	Manifest Manifest
	index    []ResourceEntry
}

// Open validates a materialized package directory and reads its manifest
// and resource index.
func Open(dir string) (*Package, error) {
	manifestPath := filepath.Join(dir, "package", "package.json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("package %s is not well-formed: %w", dir, err)
	}
	p := &Package{Dir: dir}
	if err := json.Unmarshal(data, &p.Manifest); err != nil {
		return nil, fmt.Errorf("package %s has invalid manifest: %w", dir, err)
	}
	if err := p.loadIndex(); err != nil {
		return nil, err
	}
	return p, nil
}

// ID returns the "name#version" identity of the package.
func (p *Package) ID() string {
	return p.Manifest.Name + "#" + p.Manifest.Version
}

// FHIRMajor returns the major FHIR release numbers the package declares.
func (p *Package) FHIRMajor() []int {
	var out []int
	for _, v := range p.Manifest.FHIRVersions {
		switch {
		case strings.HasPrefix(v, "3."):
			out = append(out, 3)
		case strings.HasPrefix(v, "4."):
			out = append(out, 4)
		case strings.HasPrefix(v, "5."):
			out = append(out, 5)
		case strings.HasPrefix(v, "6."):
			out = append(out, 6)
		}
	}
	return out
}

// Resources returns the index entries whose resourceType is one of the
// given types (all entries when none given).
func (p *Package) Resources(types ...string) []ResourceEntry {
	if len(types) == 0 {
		return p.index
	}
	var out []ResourceEntry
	for _, e := range p.index {
		for _, t := range types {
			if e.ResourceType == t {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// ReadResource reads the raw JSON of an indexed resource.
func (p *Package) ReadResource(entry ResourceEntry) ([]byte, error) {
	return os.ReadFile(filepath.Join(p.Dir, "package", entry.Filename))
}

// loadIndex reads .index.json when present, scanning with jsonparser so
// large indexes need no full unmarshal; without an index it falls back to
// walking the package files.
func (p *Package) loadIndex() error {
	indexPath := filepath.Join(p.Dir, "package", ".index.json")
	data, err := os.ReadFile(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return p.scanFiles()
		}
		return fmt.Errorf("read package index: %w", err)
	}

	_, err = jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, offset int, _ error) {
		entry := ResourceEntry{}
		entry.Filename, _ = jsonparser.GetString(value, "filename")
		entry.ResourceType, _ = jsonparser.GetString(value, "resourceType")
		entry.ID, _ = jsonparser.GetString(value, "id")
		entry.URL, _ = jsonparser.GetString(value, "url")
		entry.Version, _ = jsonparser.GetString(value, "version")
		entry.Kind, _ = jsonparser.GetString(value, "kind")
		if entry.Filename != "" && entry.ResourceType != "" {
			p.index = append(p.index, entry)
		}
	}, "files")
	if err != nil {
		return fmt.Errorf("package %s has malformed index: %w", p.Dir, err)
	}
	if len(p.index) == 0 {
		return p.scanFiles()
	}
	return nil
}

// scanFiles builds an index by peeking at each JSON file in the package.
func (p *Package) scanFiles() error {
	dir := filepath.Join(p.Dir, "package")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scan package files: %w", err)
	}
	for _, fe := range entries {
		name := fe.Name()
		if fe.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") || name == "package.json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		entry := ResourceEntry{Filename: name}
		entry.ResourceType, _ = jsonparser.GetString(data, "resourceType")
		if entry.ResourceType == "" {
			continue
		}
		entry.ID, _ = jsonparser.GetString(data, "id")
		entry.URL, _ = jsonparser.GetString(data, "url")
		entry.Version, _ = jsonparser.GetString(data, "version")
		entry.SupplementOf, _ = jsonparser.GetString(data, "supplements")
		p.index = append(p.index, entry)
	}
	return nil
}
