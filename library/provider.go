package library

import (
	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/engine"
	"github.com/gofhir/txserver/lang"
	"github.com/gofhir/txserver/model"
	"github.com/gofhir/txserver/provider"
)

// Provider is the per-request bound view over the Library: version-pinned
// code systems, value set and concept map sources, and the FHIR release
// the request speaks. It implements engine.Resolver.
type Provider struct {
	fhirVersion txserver.FHIRVersion
	lib         *Library
	stores      []*PackageStore
}

// FHIRVersion returns the release this view serves.
func (p *Provider) FHIRVersion() txserver.FHIRVersion { return p.fhirVersion }

// Catalog returns the library's message catalog.
func (p *Provider) Catalog() *lang.Catalog { return p.lib.catalog }

// GetCodeSystemProvider looks a code system up with the version matching
// policy exact > major.minor > latest. It returns nil for an unknown
// system; "unknown" is never an error here.
func (p *Provider) GetCodeSystemProvider(opCtx *txserver.OperationContext, system, version string, supplements []*model.CodeSystem) (provider.CodeSystemProvider, *txserver.Issue) {
	// Factories first: exact version key, then major.minor, then bare url.
	keys := []string{system}
	if version != "" {
		keys = []string{system + "|" + version, system + "|" + model.MajorMinor(version), system}
	}
	for _, key := range keys {
		if f, ok := p.lib.factories[key]; ok {
			built, iss := f.Build(opCtx, version, supplements)
			if iss != nil {
				return nil, iss
			}
			if built != nil {
				return built, nil
			}
		}
	}

	// Preloaded package content, in shadowing order.
	for _, store := range p.stores {
		cs := store.CodeSystemResource(system, version)
		if cs == nil {
			continue
		}
		return store.Provider(cs, supplements)
	}
	return nil, nil
}

// CreateCodeSystemProvider wraps a CodeSystem resource supplied with the
// request as an enumerated provider.
func (p *Provider) CreateCodeSystemProvider(opCtx *txserver.OperationContext, cs *model.CodeSystem, supplements []*model.CodeSystem) (provider.CodeSystemProvider, *txserver.Issue) {
	return provider.NewEnumerated(cs, supplements)
}

// FindValueSet walks the value set sources in order; first match wins.
func (p *Provider) FindValueSet(opCtx *txserver.OperationContext, url, version string) *model.ValueSet {
	for _, src := range p.lib.valueSetSources {
		if vs := src.FindValueSet(opCtx, url, version); vs != nil {
			return vs
		}
	}
	return nil
}

// GetValueSetByID finds a value set by server id.
func (p *Provider) GetValueSetByID(opCtx *txserver.OperationContext, id string) *model.ValueSet {
	for _, src := range p.lib.valueSetSources {
		if vs := src.ValueSetByID(opCtx, id); vs != nil {
			return vs
		}
	}
	return nil
}

// GetCodeSystemByID finds a preloaded code system by server id.
func (p *Provider) GetCodeSystemByID(opCtx *txserver.OperationContext, id string) *model.CodeSystem {
	for _, store := range p.stores {
		if cs := store.CodeSystemByID(id); cs != nil {
			return cs
		}
	}
	return nil
}

// FindConceptMap walks the concept map sources in order.
func (p *Provider) FindConceptMap(opCtx *txserver.OperationContext, url, version string) *model.ConceptMap {
	for _, src := range p.lib.conceptMapSources {
		if cm := src.FindConceptMap(opCtx, url, version); cm != nil {
			return cm
		}
	}
	return nil
}

// GetConceptMapByID finds a concept map by server id.
func (p *Provider) GetConceptMapByID(opCtx *txserver.OperationContext, id string) *model.ConceptMap {
	for _, src := range p.lib.conceptMapSources {
		if cm := src.ConceptMapByID(opCtx, id); cm != nil {
			return cm
		}
	}
	return nil
}

// ListCodeSystems returns the preloaded code systems visible to this
// view, in shadowing order.
func (p *Provider) ListCodeSystems() []*model.CodeSystem {
	var out []*model.CodeSystem
	for _, store := range p.stores {
		out = append(out, store.ListCodeSystems()...)
	}
	return out
}

// ListValueSets returns the value sets visible to this view.
func (p *Provider) ListValueSets() []*model.ValueSet {
	var out []*model.ValueSet
	for _, src := range p.lib.valueSetSources {
		out = append(out, src.ListValueSets()...)
	}
	return out
}

// ListConceptMaps returns the concept maps visible to this view.
func (p *Provider) ListConceptMaps() []*model.ConceptMap {
	var out []*model.ConceptMap
	for _, src := range p.lib.conceptMapSources {
		out = append(out, src.ListConceptMaps()...)
	}
	return out
}

// CodeSystem implements engine.Resolver.
func (p *Provider) CodeSystem(opCtx *txserver.OperationContext, system, version string) (provider.CodeSystemProvider, *txserver.Issue) {
	return p.GetCodeSystemProvider(opCtx, system, version, nil)
}

// ValueSet implements engine.Resolver.
func (p *Provider) ValueSet(opCtx *txserver.OperationContext, url, version string) (*model.ValueSet, *txserver.Issue) {
	return p.FindValueSet(opCtx, url, version), nil
}

var _ engine.Resolver = (*Provider)(nil)
