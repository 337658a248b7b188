// Package loader turns the declarative source manifest into a loaded
// Library. Each manifest line is a tagged source "kind[!]:detail"; the
// loader runs three phases: fetch (ensure artifacts are local), cs
// (instantiate code system providers) and npm (load FHIR packages).
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofhir/fhir/r4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/library"
	"github.com/gofhir/txserver/model"
	"github.com/gofhir/txserver/provider"
	"github.com/gofhir/txserver/registry"
)

// Config carries the loader's peer configuration keys.
type Config struct {
	// Sources is the declarative source list, one "kind[!]:detail" each.
	Sources []string

	// BaseURL is the download base for relative artifact names.
	BaseURL string

	// CacheDir holds downloaded artifacts and materialized packages.
	CacheDir string

	// VSACKey authenticates VSAC-hosted sources, when configured.
	VSACKey string

	// TolerateFailures keeps loading when a single source fails.
	TolerateFailures bool
}

// source is one parsed manifest line.
type source struct {
	kind      string
	detail    string
	isDefault bool
	raw       string
}

// canonical urls of the tabular authorities.
var tabularSystems = map[string]string{
	"rxnorm": "http://www.nlm.nih.gov/research/umls/rxnorm",
	"ndc":    "http://hl7.org/fhir/sid/ndc",
	"unii":   "http://fdasis.nlm.nih.gov",
	"cpt":    "http://www.ama-assn.org/go/cpt",
	"omop":   "https://fhir-terminology.ohdsi.org",
}

// internal names that may carry the default marker. The others are sole
// authorities for their url, so a default declaration is meaningless and
// rejected.
var defaultableInternals = map[string]bool{
	"countries":  true,
	"currencies": true,
	"usstates":   true,
	"languages":  true,
}

// Loader orchestrates source acquisition.
type Loader struct {
	cfg     Config
	log     zerolog.Logger
	fetcher *registry.Fetcher
	client  *registry.Client
}

// New creates a loader.
func New(cfg Config, log zerolog.Logger) *Loader {
	return &Loader{
		cfg:     cfg,
		log:     log,
		fetcher: registry.NewFetcher(cfg.BaseURL, cfg.CacheDir, nil),
		client:  registry.NewClient(registry.WithCacheDir(cfg.CacheDir)),
	}
}

// Load runs the three phases and returns the populated Library.
func (ld *Loader) Load(ctx context.Context) (*library.Library, error) {
	sources, err := parseSources(ld.cfg.Sources)
	if err != nil {
		return nil, err
	}

	// Phase 1: fetch. Every file-backed source's artifact must be local
	// before instantiation; downloads fan out concurrently.
	paths := make([]string, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		if !src.needsArtifact() {
			continue
		}
		i, src := i, src
		g.Go(func() error {
			p, err := ld.fetcher.Ensure(gctx, src.detail)
			if err != nil {
				if ld.cfg.TolerateFailures {
					ld.log.Warn().Str("source", src.raw).Err(err).Msg("source fetch failed, skipping")
					return nil
				}
				return fmt.Errorf("fetch %s: %w", src.raw, err)
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lib := library.New("tx")

	// Phase 2: cs. Code system providers register by url, url|version and
	// url|majorMinor.
	for i, src := range sources {
		if src.kind == "npm" || src.kind == "npm/cs" {
			continue
		}
		if src.needsArtifact() && paths[i] == "" {
			continue // tolerated fetch failure
		}
		if err := ld.loadCodeSystemSource(lib, src, paths[i]); err != nil {
			return nil, err
		}
	}

	// Phase 3: npm. Packages contribute per-package stores.
	for _, src := range sources {
		if src.kind != "npm" && src.kind != "npm/cs" {
			continue
		}
		if err := ld.loadPackage(ctx, lib, src); err != nil {
			if ld.cfg.TolerateFailures {
				ld.log.Warn().Str("source", src.raw).Err(err).Msg("package load failed, skipping")
				continue
			}
			return nil, err
		}
	}

	opCtx := txserver.NewOperationContext()
	lib.WireUCUMCommonUnits(opCtx)
	return lib, nil
}

func (s *source) needsArtifact() bool {
	switch s.kind {
	case "ucum", "loinc", "snomed", "rxnorm", "ndc", "unii", "cpt", "omop":
		return true
	default:
		return false
	}
}

func parseSources(lines []string) ([]*source, error) {
	var out []*source
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kind, detail, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed source %q: expected kind:detail", line)
		}
		src := &source{detail: detail, raw: line}
		if strings.HasSuffix(kind, "!") {
			src.isDefault = true
			kind = strings.TrimSuffix(kind, "!")
		}
		switch kind {
		case "internal", "ucum", "loinc", "rxnorm", "ndc", "unii", "snomed", "cpt", "omop", "npm", "npm/cs":
			src.kind = kind
		default:
			return nil, fmt.Errorf("unknown source kind %q in %q", kind, line)
		}
		out = append(out, src)
	}
	return out, nil
}

func (ld *Loader) loadCodeSystemSource(lib *library.Library, src *source, path string) error {
	register := func(f provider.Factory) error {
		if iss := lib.RegisterFactory(f, src.isDefault); iss != nil {
			return fmt.Errorf("register %s: %s", src.raw, iss.Diagnostics)
		}
		ld.log.Info().Str("system", f.System()).Str("source", src.raw).Msg("code system registered")
		return nil
	}

	switch src.kind {
	case "internal":
		if src.isDefault && !defaultableInternals[src.detail] {
			return fmt.Errorf("internal source %q does not accept the default marker", src.detail)
		}
		switch src.detail {
		case "countries":
			return register(library.NewStaticFactory(provider.NewCountries()))
		case "currencies":
			return register(library.NewStaticFactory(provider.NewCurrencies()))
		case "mimetypes":
			return register(library.NewStaticFactory(provider.NewMimeTypes()))
		case "usstates":
			return register(library.NewStaticFactory(provider.NewUSStates()))
		case "languages":
			return register(library.NewStaticFactory(provider.NewLanguages()))
		case "hgvs":
			return register(library.NewStaticFactory(provider.NewHGVS()))
		default:
			return fmt.Errorf("unknown internal source %q", src.detail)
		}

	case "ucum":
		version := versionFromPath(path)
		return register(library.NewUCUMFactory(version))

	case "loinc":
		p, err := provider.LoadLOINC(path, versionFromPath(path))
		if err != nil {
			return fmt.Errorf("load %s: %w", src.raw, err)
		}
		return register(library.NewStaticFactory(p))

	case "snomed":
		edition, version := snomedTriple(path)
		p, err := provider.LoadSNOMED(path, edition, version, true)
		if err != nil {
			return fmt.Errorf("load %s: %w", src.raw, err)
		}
		return register(library.NewStaticFactory(p))

	case "rxnorm", "ndc", "unii", "cpt", "omop":
		p, err := provider.LoadFixedListCSV(tabularSystems[src.kind], versionFromPath(path), path, true)
		if err != nil {
			return fmt.Errorf("load %s: %w", src.raw, err)
		}
		return register(library.NewStaticFactory(p))

	default:
		return fmt.Errorf("unhandled source kind %q", src.kind)
	}
}

// versionFromPath extracts a version hint from a filename like
// "loinc-2.76.csv"; absent hints yield "".
func versionFromPath(path string) string {
	base := path
	if idx := strings.LastIndexAny(base, "/\\"); idx != -1 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndex(base, "."); idx != -1 {
		base = base[:idx]
	}
	if idx := strings.LastIndex(base, "-"); idx != -1 {
		v := base[idx+1:]
		if v != "" && v[0] >= '0' && v[0] <= '9' {
			return v
		}
	}
	return ""
}

// snomedTriple reads the edition and version hints from a snapshot
// filename like "sct-900000000000207008-20240101.tsv".
func snomedTriple(path string) (edition, version string) {
	base := path
	if idx := strings.LastIndexAny(base, "/\\"); idx != -1 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndex(base, "."); idx != -1 {
		base = base[:idx]
	}
	parts := strings.Split(base, "-")
	if len(parts) >= 3 {
		return parts[1], parts[2]
	}
	return "", versionFromPath(path)
}

func (ld *Loader) loadPackage(ctx context.Context, lib *library.Library, src *source) error {
	pkgID, version, _ := strings.Cut(src.detail, "#")
	dir, err := ld.client.Fetch(ctx, pkgID, version)
	if err != nil {
		return err
	}
	pkg, err := registry.Open(dir)
	if err != nil {
		return err
	}

	var fhirVersions []txserver.FHIRVersion
	for _, major := range pkg.FHIRMajor() {
		fhirVersions = append(fhirVersions, txserver.FHIRVersion(major))
	}
	store := library.NewPackageStore(pkg.ID(), fhirVersions...)

	types := []string{"CodeSystem", "ValueSet", "ConceptMap"}
	if src.kind == "npm/cs" {
		types = []string{"CodeSystem"}
	}

	counts := map[string]int{}
	for _, entry := range pkg.Resources(types...) {
		data, err := pkg.ReadResource(entry)
		if err != nil {
			ld.log.Warn().Str("package", pkg.ID()).Str("file", entry.Filename).Err(err).Msg("unreadable resource")
			continue
		}
		switch entry.ResourceType {
		case "CodeSystem":
			var cs r4.CodeSystem
			if err := json.Unmarshal(data, &cs); err != nil {
				continue
			}
			resource := model.CodeSystemFromR4(&cs)
			if resource.ID == "" {
				resource.ID = lib.NextID("cs")
			}
			store.AddCodeSystem(resource)
		case "ValueSet":
			var vs r4.ValueSet
			if err := json.Unmarshal(data, &vs); err != nil {
				continue
			}
			resource := model.ValueSetFromR4(&vs)
			if resource.ID == "" {
				resource.ID = lib.NextID("vs")
			}
			store.AddValueSet(resource)
		case "ConceptMap":
			var cm r4.ConceptMap
			if err := json.Unmarshal(data, &cm); err != nil {
				continue
			}
			resource := model.ConceptMapFromR4(&cm)
			if resource.ID == "" {
				resource.ID = lib.NextID("cm")
			}
			store.AddConceptMap(resource)
		}
		counts[entry.ResourceType]++
	}

	// Core packages shadow ordinary content; they load first in the
	// provider chain regardless of manifest order.
	if strings.HasPrefix(pkgID, "hl7.fhir.r") && strings.HasSuffix(pkgID, ".core") {
		lib.PrependPackage(store)
	} else {
		lib.AddPackage(store)
	}
	ld.log.Info().
		Str("package", pkg.ID()).
		Int("codeSystems", counts["CodeSystem"]).
		Int("valueSets", counts["ValueSet"]).
		Int("conceptMaps", counts["ConceptMap"]).
		Msg("package loaded")
	return nil
}
