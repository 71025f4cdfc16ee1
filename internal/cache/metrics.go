package cache

import "github.com/prometheus/client_golang/prometheus"

// promMetrics mirrors the Stats counters into a Prometheus registry for
// deployments that scrape. The atomic counters in Stats stay authoritative;
// this is a write-through view.
type promMetrics struct {
	hits           prometheus.Counter
	misses         prometheus.Counter
	sets           prometheus.Counter
	deletes        prometheus.Counter
	evictions      prometheus.Counter
	decodeFailures prometheus.Counter
}

// WithMetrics registers cache counters with reg and mirrors every Stats
// increment into them. Registering two Stats values built with the same
// registry panics on the duplicate collector, which is the caller wiring
// two engines onto one registry without distinguishing them.
func WithMetrics(reg prometheus.Registerer) StatsOption {
	return func(s *Stats) {
		m := &promMetrics{
			hits:           newCounter("hits_total", "Cache reads that returned a decodable entry."),
			misses:         newCounter("misses_total", "Cache reads that fell through to source execution."),
			sets:           newCounter("sets_total", "Cache writes."),
			deletes:        newCounter("deletes_total", "Explicit cache deletes (invalidation, no-store purges)."),
			evictions:      newCounter("evictions_total", "Entries removed by ttl expiry or corrupt-entry self-heal."),
			decodeFailures: newCounter("decode_failures_total", "Cached values that failed envelope decoding."),
		}
		reg.MustRegister(m.hits, m.misses, m.sets, m.deletes, m.evictions, m.decodeFailures)
		s.metrics = m
	}
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "qnwis",
		Subsystem: "cache",
		Name:      name,
		Help:      help,
	})
}
