// Package metrics provides lightweight, lock-minimal performance counters
// for the redaction service.
//
// Counters use sync/atomic so hot paths (detection, replacement) incur no
// mutex contention. Latency statistics use a single mutex per dimension;
// they are updated at most once per request.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/pii"
)

// Metrics holds all runtime counters for a running service instance.
// The zero value is NOT valid for the per-type counter maps — use New().
type Metrics struct {
	// Request counters
	DetectTotal    atomic.Int64
	AnonymizeTotal atomic.Int64
	BatchTotal     atomic.Int64

	// Per-layer entity counts
	PatternEntities atomic.Int64
	NerEntities     atomic.Int64
	RemoteEntities  atomic.Int64

	// Error counters
	ErrorsNer    atomic.Int64
	ErrorsRemote atomic.Int64

	// LayerFallbacks counts requests served in a weaker mode than the
	// one requested because a layer was unavailable.
	LayerFallbacks atomic.Int64

	// Result cache effectiveness
	CacheHits   atomic.Int64
	CacheMisses atomic.Int64

	// Replacements issued, per entity type.
	// The map is written only in New(); concurrent reads are safe without a lock.
	replacements map[pii.EntityType]*atomic.Int64

	// Latency statistics (mutex-guarded because they accumulate floats)
	patternMu   sync.Mutex
	patternStat latencyStats

	nerMu   sync.Mutex
	nerStat latencyStats

	remoteMu   sync.Mutex
	remoteStat latencyStats

	anonMu   sync.Mutex
	anonStat latencyStats

	startTime time.Time
}

// New returns a new Metrics with the start time recorded and the per-type
// replacement counter map pre-populated for every entity type.
func New() *Metrics {
	m := &Metrics{
		startTime:    time.Now(),
		replacements: make(map[pii.EntityType]*atomic.Int64, len(pii.AllEntityTypes)),
	}
	for _, t := range pii.AllEntityTypes {
		m.replacements[t] = new(atomic.Int64)
	}
	return m
}

// RecordReplacement increments the replacement counter for the given
// entity type. Unknown types are silently ignored.
func (m *Metrics) RecordReplacement(t pii.EntityType) {
	if c, ok := m.replacements[t]; ok {
		c.Add(1)
	}
}

// RecordPatternLatency records the duration of one pattern layer pass.
func (m *Metrics) RecordPatternLatency(d time.Duration) {
	m.patternMu.Lock()
	m.patternStat.record(float64(d.Microseconds()) / 1000.0)
	m.patternMu.Unlock()
}

// RecordNerLatency records the duration of one model inference pass.
func (m *Metrics) RecordNerLatency(d time.Duration) {
	m.nerMu.Lock()
	m.nerStat.record(float64(d.Microseconds()) / 1000.0)
	m.nerMu.Unlock()
}

// RecordRemoteLatency records the round-trip time to the remote analyzer.
func (m *Metrics) RecordRemoteLatency(d time.Duration) {
	m.remoteMu.Lock()
	m.remoteStat.record(float64(d.Microseconds()) / 1000.0)
	m.remoteMu.Unlock()
}

// RecordAnonLatency records the duration of one anonymization pass.
func (m *Metrics) RecordAnonLatency(d time.Duration) {
	m.anonMu.Lock()
	m.anonStat.record(float64(d.Microseconds()) / 1000.0)
	m.anonMu.Unlock()
}

// Snapshot returns a point-in-time copy of all metrics, safe for JSON encoding.
func (m *Metrics) Snapshot() Snapshot {
	m.patternMu.Lock()
	pattern := m.patternStat.snapshot()
	m.patternMu.Unlock()

	m.nerMu.Lock()
	ner := m.nerStat.snapshot()
	m.nerMu.Unlock()

	m.remoteMu.Lock()
	remote := m.remoteStat.snapshot()
	m.remoteMu.Unlock()

	m.anonMu.Lock()
	anon := m.anonStat.snapshot()
	m.anonMu.Unlock()

	replacements := make(map[string]int64, len(m.replacements))
	for t, c := range m.replacements {
		if n := c.Load(); n > 0 {
			replacements[string(t)] = n
		}
	}

	return Snapshot{
		Requests: RequestSnapshot{
			Detect:    m.DetectTotal.Load(),
			Anonymize: m.AnonymizeTotal.Load(),
			Batch:     m.BatchTotal.Load(),
		},
		Layers: LayerSnapshot{
			PatternEntities: m.PatternEntities.Load(),
			NerEntities:     m.NerEntities.Load(),
			RemoteEntities:  m.RemoteEntities.Load(),
			Fallbacks:       m.LayerFallbacks.Load(),
		},
		Errors: ErrorSnapshot{
			Ner:    m.ErrorsNer.Load(),
			Remote: m.ErrorsRemote.Load(),
		},
		Cache: CacheSnapshot{
			Hits:   m.CacheHits.Load(),
			Misses: m.CacheMisses.Load(),
		},
		Replacements: replacements,
		Latency: LatencyGroup{
			PatternMs:   pattern,
			NerMs:       ner,
			RemoteMs:    remote,
			AnonymizeMs: anon,
		},
		UptimeSecs: time.Since(m.startTime).Seconds(),
	}
}

// --- JSON-serialisable snapshot types ---

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Requests     RequestSnapshot  `json:"requests"`
	Layers       LayerSnapshot    `json:"layers"`
	Errors       ErrorSnapshot    `json:"errors"`
	Cache        CacheSnapshot    `json:"cache"`
	Replacements map[string]int64 `json:"replacements,omitempty"`
	Latency      LatencyGroup     `json:"latency"`
	UptimeSecs   float64          `json:"uptimeSecs"`
}

// RequestSnapshot holds request-level counters.
type RequestSnapshot struct {
	Detect    int64 `json:"detect"`
	Anonymize int64 `json:"anonymize"`
	Batch     int64 `json:"batch"`
}

// LayerSnapshot holds per-layer entity counts and fallback totals.
type LayerSnapshot struct {
	PatternEntities int64 `json:"patternEntities"`
	NerEntities     int64 `json:"nerEntities"`
	RemoteEntities  int64 `json:"remoteEntities"`
	Fallbacks       int64 `json:"fallbacks"`
}

// ErrorSnapshot holds error counters.
type ErrorSnapshot struct {
	Ner    int64 `json:"ner"`
	Remote int64 `json:"remote"`
}

// CacheSnapshot holds result cache effectiveness counters.
type CacheSnapshot struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// LatencyGroup groups the latency dimensions.
type LatencyGroup struct {
	PatternMs   LatencySnapshot `json:"patternMs"`
	NerMs       LatencySnapshot `json:"nerMs"`
	RemoteMs    LatencySnapshot `json:"remoteMs"`
	AnonymizeMs LatencySnapshot `json:"anonymizeMs"`
}

// LatencySnapshot is a min/mean/max summary for one latency dimension.
type LatencySnapshot struct {
	Count  int64   `json:"count"`
	MinMs  float64 `json:"minMs"`
	MeanMs float64 `json:"meanMs"`
	MaxMs  float64 `json:"maxMs"`
}

// --- internal accumulator ---

type latencyStats struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (s *latencyStats) record(ms float64) {
	s.count++
	s.sum += ms
	if s.count == 1 || ms < s.min {
		s.min = ms
	}
	if ms > s.max {
		s.max = ms
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *latencyStats) snapshot() LatencySnapshot {
	if s.count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count:  s.count,
		MinMs:  round2(s.min),
		MeanMs: round2(s.sum / float64(s.count)),
		MaxMs:  round2(s.max),
	}
}
