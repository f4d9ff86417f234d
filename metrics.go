package engram

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// storeMetrics wraps the counters and gauges exported by a store. Each
// store owns a private registry (never the global default) so that
// multiple stores, or repeated test construction, never collide on metric
// registration.
type storeMetrics struct {
	writes          prometheus.Counter
	rejects         prometheus.Counter
	recalls         prometheus.Counter
	consolidations  prometheus.Counter
	consolidateSecs prometheus.Histogram
	tierGauge       *prometheus.GaugeVec
}

func newStoreMetrics(reg *prometheus.Registry) *storeMetrics {
	factory := promauto.With(reg)
	return &storeMetrics{
		writes: factory.NewCounter(prometheus.CounterOpts{
			Name: "engram_writes_total",
			Help: "Memories accepted by remember or process.",
		}),
		rejects: factory.NewCounter(prometheus.CounterOpts{
			Name: "engram_rejects_total",
			Help: "Conversation turns rejected by the classifier.",
		}),
		recalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "engram_recalls_total",
			Help: "Recall operations served.",
		}),
		consolidations: factory.NewCounter(prometheus.CounterOpts{
			Name: "engram_consolidations_total",
			Help: "Consolidation passes run.",
		}),
		consolidateSecs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "engram_consolidate_duration_seconds",
			Help:    "Wall-clock duration of each consolidation pass.",
			Buckets: prometheus.DefBuckets,
		}),
		tierGauge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "engram_memories_by_tier",
			Help: "Current memory count per lifecycle tier.",
		}, []string{"tier"}),
	}
}

func (sm *storeMetrics) setTierHistogram(h map[Tier]int) {
	for tier, count := range h {
		sm.tierGauge.WithLabelValues(string(tier)).Set(float64(count))
	}
}
