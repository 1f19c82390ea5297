// Package obsmetrics owns the Prometheus registry and metric vectors
// shared by every subsystem: one package-level registry with metrics
// registered at init, so call sites only touch the typed vectors.
package obsmetrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is the process-wide metrics registry. Callers that already
// run their own prometheus.Registerer can ignore this and construct
// their own collectors; this one is a convenience default.
var Registry = prometheus.NewRegistry()

var (
	CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aether_cache_hits_total",
		Help: "Cache lookups that found a resident entry, by cache name.",
	}, []string{"cache"})

	CacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aether_cache_misses_total",
		Help: "Cache lookups that found no resident entry, by cache name.",
	}, []string{"cache"})

	CacheDirtyEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aether_cache_dirty_entries",
		Help: "Current dirty entry count, by cache name.",
	}, []string{"cache"})

	CacheEvictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aether_cache_evictions_total",
		Help: "Entries evicted, by cache name and whether a flush was required.",
	}, []string{"cache", "flushed"})

	JournalCommits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aether_journal_commits_total",
		Help: "Committed transactions, by outcome.",
	}, []string{"outcome"})

	JournalSyncSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "aether_journal_sync_seconds",
		Help: "Latency of Journal.Sync calls.",
	})

	JournalUsedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aether_journal_used_bytes",
		Help: "Bytes of the journal currently occupied by live transactions.",
	})

	TierPressure = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aether_tier_pressure_ratio",
		Help: "Fraction of tier capacity in use, by tier.",
	}, []string{"tier"})

	MigrationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aether_migrations_total",
		Help: "Completed migrations, by destination tier and outcome.",
	}, []string{"dst_tier", "outcome"})

	ECCEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aether_ecc_events_total",
		Help: "Observed ECC events, by tier and kind.",
	}, []string{"tier", "kind"})
)

func init() {
	Registry.MustRegister(
		CacheHits, CacheMisses, CacheDirtyEntries, CacheEvictions,
		JournalCommits, JournalSyncSeconds, JournalUsedBytes,
		TierPressure, MigrationsTotal, ECCEvents,
	)
}
