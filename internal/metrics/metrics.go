// Package metrics provides Prometheus metrics for the sync agent.
//
// Label values are bounded: phases, tiers, outcomes and event kinds. Content
// ids never appear as labels.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DownloadsTotal counts finished downloads by outcome (ok, failed, cancelled).
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheepd_downloads_total",
		Help: "Total number of content downloads, by outcome.",
	}, []string{"outcome"})

	// DownloadedBytes counts bytes written to committed entries.
	DownloadedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sheepd_downloaded_bytes_total",
		Help: "Total bytes committed to the content store.",
	})

	// EvictionsTotal counts entries removed to honour the storage budget.
	EvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheepd_evictions_total",
		Help: "Total number of evicted cache entries, by tier.",
	}, []string{"tier"})

	// SyncCyclesTotal counts catalog cycles by result (ok, empty, error).
	SyncCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheepd_sync_cycles_total",
		Help: "Total number of sync cycles, by result.",
	}, []string{"result"})

	// VotesTotal counts vote submissions by outcome (submitted, queued, flushed).
	VotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheepd_votes_total",
		Help: "Total number of votes, by outcome.",
	}, []string{"outcome"})

	// BusEventsTotal counts bus events by direction (in, out) and kind.
	BusEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheepd_bus_events_total",
		Help: "Total number of event bus messages, by direction and kind.",
	}, []string{"direction", "kind"})

	// SyncState is 1 for the current engine state and 0 for the others.
	SyncState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sheepd_sync_state",
		Help: "Current sync engine state (1 = active).",
	}, []string{"state"})

	// QueueLength tracks items remaining in the download queue.
	QueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sheepd_download_queue_length",
		Help: "Items remaining in the current download queue.",
	})

	// CacheBytes tracks the size of the content store after the last cycle.
	CacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sheepd_cache_bytes",
		Help: "Bytes held by the content store.",
	})

	// OfflineVotes tracks votes waiting in the offline queue.
	OfflineVotes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sheepd_offline_votes",
		Help: "Votes waiting in the offline queue.",
	})
)

var states = []string{"idle", "downloading", "paused", "error"}

// SetState marks state as active and clears the others.
func SetState(state string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		SyncState.WithLabelValues(s).Set(v)
	}
}

// RecordDownload increments the download counter and, for successful downloads, the byte counter.
func RecordDownload(outcome string, bytes int64) {
	DownloadsTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" && bytes > 0 {
		DownloadedBytes.Add(float64(bytes))
	}
}

// RecordEviction increments the eviction counter for tier.
func RecordEviction(tier string) {
	EvictionsTotal.WithLabelValues(tier).Inc()
}

// RecordCycle increments the cycle counter.
func RecordCycle(result string) {
	SyncCyclesTotal.WithLabelValues(result).Inc()
}

// RecordVote increments the vote counter.
func RecordVote(outcome string) {
	VotesTotal.WithLabelValues(outcome).Inc()
}

// RecordBusEvent increments the bus event counter.
func RecordBusEvent(direction, kind string) {
	BusEventsTotal.WithLabelValues(direction, kind).Inc()
}
