// Package library holds the process-wide registry of terminology
// back-ends. The Library is built once at startup and treated as
// read-only for the life of the process; per-request views are built
// with CloneWithFHIRVersion.
package library

import (
	"fmt"
	"sync/atomic"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/lang"
	"github.com/gofhir/txserver/model"
	"github.com/gofhir/txserver/provider"
)

// ValueSetSource yields ValueSet resources. Sources are consulted in
// registration order; the first match wins.
type ValueSetSource interface {
	FindValueSet(opCtx *txserver.OperationContext, url, version string) *model.ValueSet
	ValueSetByID(opCtx *txserver.OperationContext, id string) *model.ValueSet
	ListValueSets() []*model.ValueSet
}

// ConceptMapSource yields ConceptMap resources, first match wins.
type ConceptMapSource interface {
	FindConceptMap(opCtx *txserver.OperationContext, url, version string) *model.ConceptMap
	ConceptMapByID(opCtx *txserver.OperationContext, id string) *model.ConceptMap
	ListConceptMaps() []*model.ConceptMap
}

// Library owns the code system factories, the package-scoped resource
// stores, and the shared language machinery.
type Library struct {
	factories map[string]provider.Factory
	defaulted map[string]bool
	packages  []*PackageStore

	valueSetSources   []ValueSetSource
	conceptMapSources []ConceptMapSource

	catalog *lang.Catalog
	metrics *txserver.Metrics

	idSeq   atomic.Int64
	spaceID string

	closed bool
}

// New creates an empty Library. spaceID prefixes the ids this library
// assigns, keeping id spaces disjoint across providers that allocate
// later.
func New(spaceID string) *Library {
	if spaceID == "" {
		spaceID = "tx"
	}
	return &Library{
		factories: make(map[string]provider.Factory),
		defaulted: make(map[string]bool),
		catalog:   lang.DefaultCatalog(),
		metrics:   txserver.NewMetrics(),
		spaceID:   spaceID,
	}
}

// Catalog returns the message catalog.
func (l *Library) Catalog() *lang.Catalog { return l.catalog }

// Metrics returns the library's metric counters.
func (l *Library) Metrics() *txserver.Metrics { return l.metrics }

// NextID allocates a server-unique resource id in this library's space.
func (l *Library) NextID(kind string) string {
	return fmt.Sprintf("%s-%s-%d", l.spaceID, kind, l.idSeq.Add(1))
}

// RegisterFactory registers a factory under its bare url and under every
// url|version and url|majorMinor it serves. For the bare url slot,
// last-non-default wins only while no default marker has been declared;
// a marked default keeps the slot.
func (l *Library) RegisterFactory(f provider.Factory, isDefault bool) *txserver.Issue {
	url := f.System()
	if isDefault && l.defaulted[url] {
		return txserver.BusinessRule(fmt.Sprintf(
			"two default providers declared for %s", url))
	}
	if isDefault || !l.defaulted[url] {
		l.factories[url] = f
	}
	if isDefault {
		l.defaulted[url] = true
	}
	for _, v := range f.Versions() {
		l.factories[url+"|"+v] = f
		mm := model.MajorMinor(v)
		if mm != v {
			if _, taken := l.factories[url+"|"+mm]; !taken {
				l.factories[url+"|"+mm] = f
			}
		}
	}
	return nil
}

// AddPackage registers a package-scoped store of preloaded resources.
// Store order is shadowing order: first match wins.
func (l *Library) AddPackage(store *PackageStore) {
	l.packages = append(l.packages, store)
	l.valueSetSources = append(l.valueSetSources, store)
	l.conceptMapSources = append(l.conceptMapSources, store)
}

// PrependPackage registers a store ahead of the existing ones; used for
// the FHIR core packages, which shadow ordinary content.
func (l *Library) PrependPackage(store *PackageStore) {
	l.packages = append([]*PackageStore{store}, l.packages...)
	l.valueSetSources = append([]ValueSetSource{store}, l.valueSetSources...)
	l.conceptMapSources = append([]ConceptMapSource{store}, l.conceptMapSources...)
}

// AddValueSetSource appends an additional value set source.
func (l *Library) AddValueSetSource(s ValueSetSource) {
	l.valueSetSources = append(l.valueSetSources, s)
}

// WireUCUMCommonUnits connects the UCUM common-units value set to the
// UCUM factory when both are present, giving canonical filters their
// enumerable subset.
func (l *Library) WireUCUMCommonUnits(opCtx *txserver.OperationContext) {
	f, ok := l.factories[provider.UCUMSystem]
	if !ok {
		return
	}
	uf, ok := f.(*UCUMFactory)
	if !ok {
		return
	}
	for _, src := range l.valueSetSources {
		vs := src.FindValueSet(opCtx, "http://hl7.org/fhir/ValueSet/ucum-common", "")
		if vs == nil || vs.Compose == nil {
			continue
		}
		var codes []string
		for _, inc := range vs.Compose.Include {
			if inc.System != provider.UCUMSystem {
				continue
			}
			for _, c := range inc.Concept {
				codes = append(codes, c.Code)
			}
		}
		if len(codes) > 0 {
			uf.SetCommonUnits(codes)
		}
		return
	}
}

// CloneWithFHIRVersion builds the per-request Provider for a FHIR
// release: all factories (lazy), the preloaded systems from package
// stores applicable to the release, and the value set and concept map
// sources.
func (l *Library) CloneWithFHIRVersion(fhirVersion txserver.FHIRVersion, opCtx *txserver.OperationContext) (*Provider, *txserver.Issue) {
	if !fhirVersion.IsValid() {
		return nil, txserver.BadRequest(fmt.Sprintf("unsupported FHIR version %s", fhirVersion))
	}
	p := &Provider{
		fhirVersion: fhirVersion,
		lib:         l,
	}
	for _, store := range l.packages {
		if store.ServesFHIR(fhirVersion) {
			p.stores = append(p.stores, store)
		}
	}
	return p, nil
}

// Close closes every registered factory once. Package stores are not
// closed.
func (l *Library) Close() {
	if l.closed {
		return
	}
	l.closed = true
	seen := make(map[provider.Factory]bool)
	for _, f := range l.factories {
		if !seen[f] {
			seen[f] = true
			f.Close()
		}
	}
}
