package cache

import "sync/atomic"

// Stats tracks cache effectiveness with atomic counters. One Stats value is
// constructed per engine and shared with its backend; nothing in this
// package is process-global, so two engines in one process never bleed
// counts into each other.
//
// Thread-safety: all methods are safe for concurrent use.
type Stats struct {
	hits           atomic.Int64
	misses         atomic.Int64
	sets           atomic.Int64
	deletes        atomic.Int64
	evictions      atomic.Int64
	decodeFailures atomic.Int64

	metrics *promMetrics
}

// StatsOption configures a Stats value at construction.
type StatsOption func(*Stats)

// NewStats builds a Stats value. With no options it is a pure atomic
// counter set; WithMetrics adds a Prometheus mirror.
func NewStats(opts ...StatsOption) *Stats {
	s := &Stats{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hit records a cache hit: key present and payload decoded.
func (s *Stats) Hit() {
	s.hits.Add(1)
	if s.metrics != nil {
		s.metrics.hits.Inc()
	}
}

// Miss records a cache miss, including decode-failure self-heals that fall
// through to a fresh execution.
func (s *Stats) Miss() {
	s.misses.Add(1)
	if s.metrics != nil {
		s.metrics.misses.Inc()
	}
}

// Set records a successful store.
func (s *Stats) Set() {
	s.sets.Add(1)
	if s.metrics != nil {
		s.metrics.sets.Inc()
	}
}

// Delete records an explicit delete: invalidation or a no-store purge.
func (s *Stats) Delete() {
	s.deletes.Add(1)
	if s.metrics != nil {
		s.metrics.deletes.Inc()
	}
}

// Evict records an entry removed by policy rather than request: ttl expiry
// in a backend or a corrupt-entry self-heal.
func (s *Stats) Evict() {
	s.evictions.Add(1)
	if s.metrics != nil {
		s.metrics.evictions.Inc()
	}
}

// DecodeFailure records a cached value that failed to decode.
func (s *Stats) DecodeFailure() {
	s.decodeFailures.Add(1)
	if s.metrics != nil {
		s.metrics.decodeFailures.Inc()
	}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	Sets           int64   `json:"sets"`
	Deletes        int64   `json:"deletes"`
	Evictions      int64   `json:"evictions"`
	DecodeFailures int64   `json:"decode_failures"`
	HitRate        float64 `json:"hit_rate"`
}

// Snapshot returns a consistent-enough copy for reporting. Counters are
// read individually, so a snapshot taken under write load may be skewed by
// in-flight operations; that is fine for observability.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		Hits:           s.hits.Load(),
		Misses:         s.misses.Load(),
		Sets:           s.sets.Load(),
		Deletes:        s.deletes.Load(),
		Evictions:      s.evictions.Load(),
		DecodeFailures: s.decodeFailures.Load(),
	}
	if total := snap.Hits + snap.Misses; total > 0 {
		snap.HitRate = float64(snap.Hits) / float64(total)
	}
	return snap
}
