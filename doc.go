// Package txserver is a FHIR terminology server engine.
//
// It serves the FHIR terminology operations ($lookup, $validate-code,
// $expand, $subsumes, $translate, $batch) over CodeSystems, ValueSets and
// ConceptMaps drawn from heterogeneous coding authorities: enumerated FHIR
// code systems from packages, UCUM unit expressions, SNOMED CT, LOINC,
// IETF language tags, and a set of fixed internal lists.
//
// The root package holds the cross-cutting types: the Issue model that
// maps to OperationOutcome, the OperationContext carrying request id,
// language context, deadline and cycle detection, and the
// OperationParameters option set whose hash doubles as the expansion
// memoization fingerprint.
//
// Subpackages:
//
//	model     version-neutral resource shapes and the Parameters container
//	lang      Accept-Language parsing, matching and the message catalog
//	cache     generic LRU cache
//	registry  FHIR package registry client and cache
//	provider  the CodeSystemProvider capability surface and its back-ends
//	library   the process-wide Library and per-request Provider
//	loader    the declarative source manifest loader
//	engine    ValueSet expansion, validation and ConceptMap translation
//	ops       the operation workers
//	server    the multi-version HTTP gateway
//	worker    the batch fan-out pool
package txserver
