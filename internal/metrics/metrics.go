// Package metrics defines the prometheus collectors of the sync engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Keys for stockroom metrics.
const (
	SyncAppliedTotalKey      = "stockroom_sync_applied_total"
	SyncFailuresTotalKey     = "stockroom_sync_failures_total"
	SyncDeadLetteredTotalKey = "stockroom_sync_dead_lettered_total"
	SyncDrainsTotalKey       = "stockroom_sync_drains_total"
	SyncIntervalSecondsKey   = "stockroom_sync_interval_seconds"
	ReplicatedTotalKey       = "stockroom_replicated_total"
	BackupsTotalKey          = "stockroom_backups_total"
	CacheRefreshSecondsKey   = "stockroom_cache_refresh_duration_seconds"
	RemoteOnlineKey          = "stockroom_remote_online"
	SyncQueuePendingKey      = "stockroom_sync_queue_pending"
	SyncQueueDeadLetterKey   = "stockroom_sync_queue_dead_letter"
)

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeDeferred = "deferred"
	OutcomeSkipped  = "skipped"
	OutcomeDirect   = "direct"
	OutcomeQueued   = "queued"
)

// Collectors for sync engine metrics.
var (
	SyncAppliedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: SyncAppliedTotalKey,
		Help: "Cumulative number of queued operations applied to the remote mirror.",
	})
	SyncFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: SyncFailuresTotalKey,
		Help: "Cumulative number of failed queued operations, by failure class.",
	}, []string{"class"})
	SyncDeadLetteredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: SyncDeadLetteredTotalKey,
		Help: "Cumulative number of operations parked after repeated rejection.",
	})
	SyncDrainsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: SyncDrainsTotalKey,
		Help: "Cumulative number of sync drain passes, by outcome.",
	}, []string{"outcome"})
	SyncIntervalSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: SyncIntervalSecondsKey,
		Help: "Current wake interval of the sync worker.",
	})
	ReplicatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ReplicatedTotalKey,
		Help: "Cumulative number of entity mutations mirrored directly or queued.",
	}, []string{"collection", "outcome"})
	BackupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: BackupsTotalKey,
		Help: "Cumulative number of backup runs, by outcome.",
	}, []string{"outcome"})
	CacheRefreshSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    CacheRefreshSecondsKey,
		Help:    "Duration of cache snapshot rebuilds.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

// EngineCollectors returns the static collectors.
func EngineCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		SyncAppliedTotal,
		SyncFailuresTotal,
		SyncDeadLetteredTotal,
		SyncDrainsTotal,
		SyncIntervalSeconds,
		ReplicatedTotal,
		BackupsTotal,
		CacheRefreshSeconds,
	}
}

// StatusSource exposes live engine state sampled at scrape time.
type StatusSource interface {
	ConnectionStatus() bool
	QueueDepth() (pending, deadLetter int64)
}

// StatusCollectors returns gauges that sample src on every scrape.
func StatusCollectors(src StatusSource) []prometheus.Collector {
	return []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: RemoteOnlineKey,
			Help: "1 when the remote mirror was reachable on the last call.",
		}, func() float64 {
			if src.ConnectionStatus() {
				return 1
			}
			return 0
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: SyncQueuePendingKey,
			Help: "Operations waiting to be applied to the remote mirror.",
		}, func() float64 {
			pending, _ := src.QueueDepth()
			return float64(pending)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: SyncQueueDeadLetterKey,
			Help: "Operations parked after repeated rejection.",
		}, func() float64 {
			_, dead := src.QueueDepth()
			return float64(dead)
		}),
	}
}

// NewRegistry returns a registry holding the engine and status collectors.
func NewRegistry(src StatusSource) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(EngineCollectors()...)
	if src != nil {
		reg.MustRegister(StatusCollectors(src)...)
	}
	return reg
}
