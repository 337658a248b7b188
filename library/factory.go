package library

import (
	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/model"
	"github.com/gofhir/txserver/provider"
)

// StaticFactory serves one prebuilt provider instance. The heavyweight
// back-ends (LOINC tables, SNOMED snapshots, the fixed internal lists)
// are loaded once and shared across requests; their providers are
// internally read-only.
type StaticFactory struct {
	inner provider.CodeSystemProvider
}

// NewStaticFactory wraps a prebuilt provider as a factory.
func NewStaticFactory(p provider.CodeSystemProvider) *StaticFactory {
	return &StaticFactory{inner: p}
}

// System returns the served canonical url.
func (f *StaticFactory) System() string { return f.inner.System() }

// Versions returns the single version served.
func (f *StaticFactory) Versions() []string {
	if v := f.inner.Version(); v != "" {
		return []string{v}
	}
	return nil
}

// Build returns the shared instance. Static back-ends accept no
// supplements.
func (f *StaticFactory) Build(opCtx *txserver.OperationContext, version string, supplements []*model.CodeSystem) (provider.CodeSystemProvider, *txserver.Issue) {
	if version != "" && f.inner.Version() != "" && version != f.inner.Version() &&
		version != f.inner.PartialVersion() {
		return nil, nil
	}
	return f.inner, nil
}

// Close closes the shared instance.
func (f *StaticFactory) Close() { f.inner.Close() }

var _ provider.Factory = (*StaticFactory)(nil)

// UCUMFactory serves the UCUM provider and carries the common-units
// wiring the canonical filter depends on.
type UCUMFactory struct {
	inner *provider.UCUM
}

// NewUCUMFactory creates the UCUM factory.
func NewUCUMFactory(version string) *UCUMFactory {
	return &UCUMFactory{inner: provider.NewUCUM(version, nil)}
}

// SetCommonUnits wires the enumerable common-unit subset.
func (f *UCUMFactory) SetCommonUnits(codes []string) { f.inner.SetCommonUnits(codes) }

// System returns the UCUM canonical url.
func (f *UCUMFactory) System() string { return f.inner.System() }

// Versions returns the essence version.
func (f *UCUMFactory) Versions() []string {
	if v := f.inner.Version(); v != "" {
		return []string{v}
	}
	return nil
}

// Build returns the shared UCUM instance.
func (f *UCUMFactory) Build(opCtx *txserver.OperationContext, version string, supplements []*model.CodeSystem) (provider.CodeSystemProvider, *txserver.Issue) {
	return f.inner, nil
}

// Close is a no-op.
func (f *UCUMFactory) Close() { f.inner.Close() }

var _ provider.Factory = (*UCUMFactory)(nil)
