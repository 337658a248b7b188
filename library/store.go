package library

import (
	"sync"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/model"
	"github.com/gofhir/txserver/provider"
)

// PackageStore is a package-scoped container of preloaded resources. It
// yields enumerated code system providers lazily and serves value sets
// and concept maps by url, version and id. Stores are immutable after
// loading; provider construction is memoized.
type PackageStore struct {
	// PackageID is the "name#version" provenance of the content.
	PackageID string

	fhirMajor map[txserver.FHIRVersion]bool

	codeSystems []*model.CodeSystem
	valueSets   []*model.ValueSet
	conceptMaps []*model.ConceptMap

	csByURL map[string]*model.CodeSystem // url and url|version
	csByID  map[string]*model.CodeSystem
	vsByURL map[string]*model.ValueSet
	vsByID  map[string]*model.ValueSet
	cmByURL map[string]*model.ConceptMap
	cmByID  map[string]*model.ConceptMap

	// supplements indexed by the canonical they supplement
	supplements map[string][]*model.CodeSystem

	mu    sync.Mutex
	built map[*model.CodeSystem]*provider.Enumerated
}

// NewPackageStore creates an empty store for a package.
func NewPackageStore(packageID string, fhirVersions ...txserver.FHIRVersion) *PackageStore {
	s := &PackageStore{
		PackageID:   packageID,
		fhirMajor:   make(map[txserver.FHIRVersion]bool),
		csByURL:     make(map[string]*model.CodeSystem),
		csByID:      make(map[string]*model.CodeSystem),
		vsByURL:     make(map[string]*model.ValueSet),
		vsByID:      make(map[string]*model.ValueSet),
		cmByURL:     make(map[string]*model.ConceptMap),
		cmByID:      make(map[string]*model.ConceptMap),
		supplements: make(map[string][]*model.CodeSystem),
		built:       make(map[*model.CodeSystem]*provider.Enumerated),
	}
	for _, v := range fhirVersions {
		s.fhirMajor[v] = true
	}
	return s
}

// ServesFHIR reports whether the package declares content for a release.
// A store declaring no release serves all of them.
func (s *PackageStore) ServesFHIR(v txserver.FHIRVersion) bool {
	if len(s.fhirMajor) == 0 {
		return true
	}
	return s.fhirMajor[v]
}

// AddCodeSystem indexes a CodeSystem (or supplement) resource.
func (s *PackageStore) AddCodeSystem(cs *model.CodeSystem) {
	if cs.Content == model.ContentSupplement || cs.Supplements != "" {
		target, _ := model.SplitCanonical(cs.Supplements)
		s.supplements[target] = append(s.supplements[target], cs)
		return
	}
	s.codeSystems = append(s.codeSystems, cs)
	s.csByURL[cs.URL] = cs
	if cs.Version != "" {
		s.csByURL[cs.VersionedURL()] = cs
		mm := cs.URL + "|" + model.MajorMinor(cs.Version)
		if _, taken := s.csByURL[mm]; !taken {
			s.csByURL[mm] = cs
		}
	}
	if cs.ID != "" {
		s.csByID[cs.ID] = cs
	}
}

// AddValueSet indexes a ValueSet resource.
func (s *PackageStore) AddValueSet(vs *model.ValueSet) {
	s.valueSets = append(s.valueSets, vs)
	s.vsByURL[vs.URL] = vs
	if vs.Version != "" {
		s.vsByURL[vs.VersionedURL()] = vs
	}
	if vs.ID != "" {
		s.vsByID[vs.ID] = vs
	}
}

// AddConceptMap indexes a ConceptMap resource.
func (s *PackageStore) AddConceptMap(cm *model.ConceptMap) {
	s.conceptMaps = append(s.conceptMaps, cm)
	if cm.URL != "" {
		s.cmByURL[cm.URL] = cm
		if cm.Version != "" {
			s.cmByURL[cm.URL+"|"+cm.Version] = cm
		}
	}
	if cm.ID != "" {
		s.cmByID[cm.ID] = cm
	}
}

// CodeSystemResource finds a preloaded CodeSystem by url, with version
// matching exact first, then major.minor, then the bare url.
func (s *PackageStore) CodeSystemResource(system, version string) *model.CodeSystem {
	if version != "" {
		if cs, ok := s.csByURL[system+"|"+version]; ok {
			return cs
		}
		if cs, ok := s.csByURL[system+"|"+model.MajorMinor(version)]; ok {
			return cs
		}
		return nil
	}
	return s.csByURL[system]
}

// Provider yields the enumerated provider for a preloaded CodeSystem,
// building it on first use with the store's supplements applied.
func (s *PackageStore) Provider(cs *model.CodeSystem, extraSupplements []*model.CodeSystem) (*provider.Enumerated, *txserver.Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(extraSupplements) == 0 {
		if built, ok := s.built[cs]; ok {
			return built, nil
		}
	}
	supplements := append(append([]*model.CodeSystem(nil), s.supplements[cs.URL]...), extraSupplements...)
	built, iss := provider.NewEnumerated(cs, supplements)
	if iss != nil {
		return nil, iss
	}
	if len(extraSupplements) == 0 {
		s.built[cs] = built
	}
	return built, nil
}

// CodeSystemByID finds a preloaded CodeSystem by server id.
func (s *PackageStore) CodeSystemByID(id string) *model.CodeSystem {
	return s.csByID[id]
}

// ListCodeSystems returns the preloaded CodeSystems in package order.
func (s *PackageStore) ListCodeSystems() []*model.CodeSystem {
	return s.codeSystems
}

// FindValueSet implements ValueSetSource.
func (s *PackageStore) FindValueSet(opCtx *txserver.OperationContext, url, version string) *model.ValueSet {
	if version != "" {
		return s.vsByURL[url+"|"+version]
	}
	return s.vsByURL[url]
}

// ValueSetByID implements ValueSetSource.
func (s *PackageStore) ValueSetByID(opCtx *txserver.OperationContext, id string) *model.ValueSet {
	return s.vsByID[id]
}

// ListValueSets implements ValueSetSource.
func (s *PackageStore) ListValueSets() []*model.ValueSet {
	return s.valueSets
}

// FindConceptMap implements ConceptMapSource.
func (s *PackageStore) FindConceptMap(opCtx *txserver.OperationContext, url, version string) *model.ConceptMap {
	if version != "" {
		return s.cmByURL[url+"|"+version]
	}
	return s.cmByURL[url]
}

// ConceptMapByID implements ConceptMapSource.
func (s *PackageStore) ConceptMapByID(opCtx *txserver.OperationContext, id string) *model.ConceptMap {
	return s.cmByID[id]
}

// ListConceptMaps implements ConceptMapSource.
func (s *PackageStore) ListConceptMaps() []*model.ConceptMap {
	return s.conceptMaps
}

var (
	_ ValueSetSource   = (*PackageStore)(nil)
	_ ConceptMapSource = (*PackageStore)(nil)
)
