// Package metrics provides lightweight, lock-minimal counters for the
// de-identification service.
//
// Counters use sync/atomic so the per-note path incurs no mutex contention.
// Latency statistics use a single mutex per dimension; they are updated at
// most once per note.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// knownPlaceholders lists the placeholder names the masker can insert.
// Used to pre-populate per-type counter maps in New() so Snapshot() can
// iterate a fixed set without racing on map writes.
var knownPlaceholders = []string{"NAME", "ADDRESS", "CONTACT", "ID", "DATE", "ORG"}

// knownEntityTypes lists the dictionary entity types the extractor reports.
var knownEntityTypes = []string{"DISEASE", "MEDICATION", "SYMPTOM", "LAB_TEST", "PROCEDURE"}

// Metrics holds all runtime counters for a running service instance.
// The zero value is NOT valid for the per-type counters; use New().
type Metrics struct {
	// Note counters
	NotesProcessed atomic.Int64
	NotesRejected  atomic.Int64 // bad encoding, empty input, oversized upload

	// Oracle counters
	OracleCalls  atomic.Int64
	OracleErrors atomic.Int64

	// Recognition cache counters
	CacheHits   atomic.Int64
	CacheMisses atomic.Int64

	// Maps are written only in New(); concurrent reads are safe without a lock.
	placeholders map[string]*atomic.Int64
	entities     map[string]*atomic.Int64

	maskMu   sync.Mutex
	maskStat latencyStats

	extractMu   sync.Mutex
	extractStat latencyStats

	oracleMu   sync.Mutex
	oracleStat latencyStats

	startTime time.Time
}

// New returns a new Metrics with the start time recorded and per-type
// counter maps pre-populated.
func New() *Metrics {
	m := &Metrics{
		startTime:    time.Now(),
		placeholders: make(map[string]*atomic.Int64, len(knownPlaceholders)),
		entities:     make(map[string]*atomic.Int64, len(knownEntityTypes)),
	}
	for _, p := range knownPlaceholders {
		m.placeholders[p] = new(atomic.Int64)
	}
	for _, t := range knownEntityTypes {
		m.entities[t] = new(atomic.Int64)
	}
	return m
}

// RecordPlaceholders adds n to the counter for placeholder name (e.g. "NAME").
// Unknown names are silently ignored.
func (m *Metrics) RecordPlaceholders(name string, n int) {
	if c, ok := m.placeholders[name]; ok {
		c.Add(int64(n))
	}
}

// RecordEntities adds n to the counter for entity type (e.g. "DISEASE").
// Unknown types are silently ignored.
func (m *Metrics) RecordEntities(entityType string, n int) {
	if c, ok := m.entities[entityType]; ok {
		c.Add(int64(n))
	}
}

// RecordMaskLatency records the duration of one masking pass.
func (m *Metrics) RecordMaskLatency(d time.Duration) {
	m.maskMu.Lock()
	m.maskStat.record(ms(d))
	m.maskMu.Unlock()
}

// RecordExtractLatency records the duration of one extraction pass.
func (m *Metrics) RecordExtractLatency(d time.Duration) {
	m.extractMu.Lock()
	m.extractStat.record(ms(d))
	m.extractMu.Unlock()
}

// RecordOracleLatency records the round-trip time of one oracle call.
func (m *Metrics) RecordOracleLatency(d time.Duration) {
	m.oracleMu.Lock()
	m.oracleStat.record(ms(d))
	m.oracleMu.Unlock()
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }

// Snapshot returns a point-in-time copy of all metrics, safe for JSON encoding.
func (m *Metrics) Snapshot() Snapshot {
	m.maskMu.Lock()
	mask := m.maskStat.snapshot()
	m.maskMu.Unlock()

	m.extractMu.Lock()
	extract := m.extractStat.snapshot()
	m.extractMu.Unlock()

	m.oracleMu.Lock()
	oracleLat := m.oracleStat.snapshot()
	m.oracleMu.Unlock()

	var uptime float64
	if !m.startTime.IsZero() {
		uptime = time.Since(m.startTime).Seconds()
	}

	return Snapshot{
		Notes: NoteSnapshot{
			Processed: m.NotesProcessed.Load(),
			Rejected:  m.NotesRejected.Load(),
		},
		Oracle: OracleSnapshot{
			Calls:       m.OracleCalls.Load(),
			Errors:      m.OracleErrors.Load(),
			CacheHits:   m.CacheHits.Load(),
			CacheMisses: m.CacheMisses.Load(),
		},
		Placeholders: nonZero(m.placeholders),
		Entities:     nonZero(m.entities),
		Latency: LatencyGroup{
			MaskMs:    mask,
			ExtractMs: extract,
			OracleMs:  oracleLat,
		},
		UptimeSecs: uptime,
	}
}

func nonZero(counters map[string]*atomic.Int64) map[string]int64 {
	out := make(map[string]int64, len(counters))
	for k, c := range counters {
		if n := c.Load(); n > 0 {
			out[k] = n
		}
	}
	return out
}

// --- JSON-serialisable snapshot types ---

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Notes        NoteSnapshot     `json:"notes"`
	Oracle       OracleSnapshot   `json:"oracle"`
	Placeholders map[string]int64 `json:"placeholders,omitempty"`
	Entities     map[string]int64 `json:"entities,omitempty"`
	Latency      LatencyGroup     `json:"latency"`
	UptimeSecs   float64          `json:"uptimeSecs"`
}

// NoteSnapshot holds per-note counters.
type NoteSnapshot struct {
	Processed int64 `json:"processed"`
	Rejected  int64 `json:"rejected"`
}

// OracleSnapshot holds oracle call and cache counters.
type OracleSnapshot struct {
	Calls       int64 `json:"calls"`
	Errors      int64 `json:"errors"`
	CacheHits   int64 `json:"cacheHits"`
	CacheMisses int64 `json:"cacheMisses"`
}

// LatencyGroup groups the latency dimensions.
type LatencyGroup struct {
	MaskMs    LatencySnapshot `json:"maskMs"`
	ExtractMs LatencySnapshot `json:"extractMs"`
	OracleMs  LatencySnapshot `json:"oracleMs"`
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
