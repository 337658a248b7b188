package txserver

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks operation counts and timing using lock-free atomics.
// All methods are safe for concurrent use.
type Metrics struct {
	requestsTotal atomic.Uint64
	requestsFailed atomic.Uint64

	expansionCacheHits   atomic.Uint64
	expansionCacheMisses atomic.Uint64

	opTiming sync.Map // map[string]*opMetrics
}

// opMetrics tracks metrics for a single operation kind.
type opMetrics struct {
	invocations atomic.Uint64
	totalTime   atomic.Uint64 // nanoseconds
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordRequest records a completed request for an operation kind.
func (m *Metrics) RecordRequest(op string, duration time.Duration, failed bool) {
	m.requestsTotal.Add(1)
	if failed {
		m.requestsFailed.Add(1)
	}
	v, _ := m.opTiming.LoadOrStore(op, &opMetrics{})
	om := v.(*opMetrics)
	om.invocations.Add(1)
	om.totalTime.Add(uint64(duration.Nanoseconds()))
}

// RecordCacheHit records an expansion memo cache hit.
func (m *Metrics) RecordCacheHit() { m.expansionCacheHits.Add(1) }

// RecordCacheMiss records an expansion memo cache miss.
func (m *Metrics) RecordCacheMiss() { m.expansionCacheMisses.Add(1) }

// Snapshot is a point-in-time view of the metrics.
type Snapshot struct {
	RequestsTotal  uint64
	RequestsFailed uint64
	CacheHits      uint64
	CacheMisses    uint64
	Operations     map[string]OpSnapshot
}

// OpSnapshot summarizes one operation kind.
type OpSnapshot struct {
	Invocations uint64
	AvgDuration time.Duration
}

// Snapshot returns the current metric values.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		RequestsTotal:  m.requestsTotal.Load(),
		RequestsFailed: m.requestsFailed.Load(),
		CacheHits:      m.expansionCacheHits.Load(),
		CacheMisses:    m.expansionCacheMisses.Load(),
		Operations:     make(map[string]OpSnapshot),
	}
	m.opTiming.Range(func(key, value any) bool {
		om := value.(*opMetrics)
		n := om.invocations.Load()
		var avg time.Duration
		if n > 0 {
			avg = time.Duration(om.totalTime.Load() / n)
		}
		s.Operations[key.(string)] = OpSnapshot{Invocations: n, AvgDuration: avg}
		return true
	})
	return s
}
