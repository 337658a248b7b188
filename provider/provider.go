// Package provider defines the uniform capability surface over the
// radically different code system back-ends: enumerated FHIR concept
// trees, the UCUM unit algebra, SNOMED CT hierarchies, LOINC multi-axial
// tables, BCP-47 language tags, and fixed internal lists.
package provider

import (
	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/model"
)

// Concept is an opaque handle to a concept inside a back-end. Handles are
// only meaningful to the provider that produced them.
type Concept interface {
	// Code returns the concept's code as known to its system.
	Code() string
}

// SubsumptionOutcome is the result of a subsumption test.
type SubsumptionOutcome string

// Subsumption outcomes, per the terminology operation vocabulary.
const (
	Equivalent  SubsumptionOutcome = "equivalent"
	Subsumes    SubsumptionOutcome = "subsumes"
	SubsumedBy  SubsumptionOutcome = "subsumed-by"
	NotSubsumed SubsumptionOutcome = "not-subsumed"
)

// FilterContext is a precomputed predicate or cursor over a back-end,
// produced by CodeSystemProvider.Filter and consumed by Iterator.
type FilterContext interface {
	// Closed reports whether the filter's enumeration is complete. A
	// not-closed filter (e.g. UCUM canonical matching) yields a
	// provisional concept set.
	Closed() bool
}

// ConceptIterator is a lazy, finite cursor over concepts. Iterators are
// not restartable; recreate one instead. Close must be called on all exit
// paths, including deadline-driven unwind.
type ConceptIterator interface {
	Next() (Concept, bool)
	Close()
}

// CodeSystemProvider is the uniform capability surface every code system
// back-end exposes.
type CodeSystemProvider interface {
	// System returns the canonical url of the code system.
	System() string
	// Version returns the version served, or "" when unversioned.
	Version() string
	// PartialVersion returns the major.minor reduction of the version.
	PartialVersion() string

	// TotalCount returns the concept cardinality, or -1 for intractably
	// large systems.
	TotalCount() int

	// Locate finds a concept by code. The message carries a soft
	// diagnostic (such as "inactive code") even on success; a nil concept
	// means the code is unknown.
	Locate(code string) (Concept, string)

	// Display returns the best-match display for the language priority list.
	Display(c Concept, languages []string) string
	// Designations returns all designations of a concept.
	Designations(c Concept) []model.Designation
	// Definition returns the concept's definition, or "".
	Definition(c Concept) string
	// Properties returns the concept's typed properties, restricted to
	// propFilter when non-empty.
	Properties(c Concept, propFilter []string) []model.Property

	IsInactive(c Concept) bool
	IsAbstract(c Concept) bool
	IsDeprecated(c Concept) bool

	// Subsumes tests the hierarchical relation between two concepts of
	// this system. Cycles in the ancestor relation are reported as issues,
	// never masked.
	Subsumes(a, b Concept) (SubsumptionOutcome, *txserver.Issue)

	// Filter precomputes a predicate for a property/op/value triple,
	// returning a not-supported issue for operators the back-end cannot
	// evaluate.
	Filter(opCtx *txserver.OperationContext, property, op, value string) (FilterContext, *txserver.Issue)

	// Iterator returns a cursor over the concepts selected by filter, or
	// over all concepts when filter is nil. Back-ends with no enumerable
	// concept list return a not-supported issue for the nil filter.
	Iterator(opCtx *txserver.OperationContext, filter FilterContext) (ConceptIterator, *txserver.Issue)

	// FiltersNotClosed reports whether any filter this provider produces
	// is provisional.
	FiltersNotClosed() bool

	// Close releases back-end resources held by this provider instance.
	Close()
}

// HierarchyProvider is implemented by back-ends that can report a
// concept's direct parents, enabling nested expansions.
type HierarchyProvider interface {
	ParentCodes(c Concept) []string
}

// Factory constructs a version-pinned provider instance on demand.
type Factory interface {
	// System returns the canonical url the factory serves.
	System() string
	// Versions returns the versions available, newest first.
	Versions() []string
	// Build constructs a provider for the requested version ("" for the
	// default), applying the given supplements.
	Build(opCtx *txserver.OperationContext, version string, supplements []*model.CodeSystem) (CodeSystemProvider, *txserver.Issue)
	// Close releases resources shared by all built providers.
	Close()
}

// sliceIterator is the common finite iterator over a concept slice.
type sliceIterator struct {
	concepts []Concept
	pos      int
}

// NewSliceIterator wraps a fixed concept slice as a ConceptIterator.
func NewSliceIterator(concepts []Concept) ConceptIterator {
	return &sliceIterator{concepts: concepts}
}

func (it *sliceIterator) Next() (Concept, bool) {
	if it.pos >= len(it.concepts) {
		return nil, false
	}
	c := it.concepts[it.pos]
	it.pos++
	return c, true
}

func (it *sliceIterator) Close() {
	it.concepts = nil
}

// baseFilter is a FilterContext carrying a precomputed concept list.
type baseFilter struct {
	concepts []Concept
	closed   bool
}

// NewListFilter builds a closed FilterContext over a precomputed list.
func NewListFilter(concepts []Concept) FilterContext {
	return &baseFilter{concepts: concepts, closed: true}
}

// NewProvisionalFilter builds a not-closed FilterContext over a
// provisional list.
func NewProvisionalFilter(concepts []Concept) FilterContext {
	return &baseFilter{concepts: concepts}
}

func (f *baseFilter) Closed() bool { return f.closed }

// ListFilterConcepts extracts the precomputed list from a FilterContext
// built by NewListFilter or NewProvisionalFilter.
func ListFilterConcepts(fc FilterContext) ([]Concept, bool) {
	bf, ok := fc.(*baseFilter)
	if !ok {
		return nil, false
	}
	return bf.concepts, true
}
