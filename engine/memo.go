package engine

import (
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/cache"
	"github.com/gofhir/txserver/model"
)

// Memo caches expansions by fingerprint. Writers serialize per key via a
// single-flight discipline: at most one concurrent computation per
// fingerprint, with concurrent callers awaiting the in-flight result.
type Memo struct {
	cache   *cache.Cache[string, *Result]
	group   singleflight.Group
	metrics *txserver.Metrics
}

// NewMemo creates a memoization layer with the given entry capacity.
func NewMemo(capacity int, metrics *txserver.Metrics) *Memo {
	return &Memo{
		cache:   cache.New[string, *Result](capacity),
		metrics: metrics,
	}
}

// Fingerprint derives the memo key from the value set identity, the
// option hash, the language context and the page window. Equal
// fingerprints imply equivalent output.
func Fingerprint(vs *model.ValueSet, params *txserver.OperationParameters, languages []string, offset, count int) string {
	return fmt.Sprintf("%s#%x#%s#%d#%d",
		vs.VersionedURL(), params.Hash(), strings.Join(languages, ";"), offset, count)
}

// Expand returns the cached expansion for the fingerprint or computes it
// once across concurrent callers.
func (m *Memo) Expand(opCtx *txserver.OperationContext, x *Expander, vs *model.ValueSet, params *txserver.OperationParameters, offset, count int) (*Result, *txserver.Issue) {
	key := Fingerprint(vs, params, effectiveLanguages(opCtx, params), offset, count)

	if cached, ok := m.cache.Get(key); ok {
		if m.metrics != nil {
			m.metrics.RecordCacheHit()
		}
		return cached, nil
	}
	if m.metrics != nil {
		m.metrics.RecordCacheMiss()
	}

	value, err, _ := m.group.Do(key, func() (any, error) {
		result, iss := x.Expand(opCtx, vs, params, offset, count)
		if iss != nil {
			return nil, iss
		}
		m.cache.Set(key, result)
		return result, nil
	})
	if err != nil {
		return nil, txserver.AsIssue(err)
	}
	return value.(*Result), nil
}
