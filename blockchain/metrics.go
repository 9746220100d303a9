package blockchain

import "github.com/prometheus/client_golang/prometheus"

// Metrics exports the Prometheus collectors named in SPEC_FULL.md §11:
// blocks in flight, flush-queue depth, pool pages in use, and batch
// commit latency. Grounded on the teacher's pack-mate
// vms/platformvm/metrics.go Initialize pattern: one struct of
// collectors, built then registered together.
type Metrics struct {
	BlocksInFlight     prometheus.Gauge
	FlushQueueDepth    prometheus.Gauge
	PoolPagesInUse     prometheus.Gauge
	BatchCommitLatency prometheus.Histogram
}

// NewMetrics builds and registers the blockchain's collectors under
// namespace. Pass nil to skip registration entirely.
func NewMetrics(namespace string, registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		BlocksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "blocks_in_flight",
			Help:      "Number of in-memory blocks not yet flushed to the paged store",
		}),
		FlushQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flush_queue_depth",
			Help:      "Number of finalized blocks waiting for the flusher",
		}),
		PoolPagesInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_pages_in_use",
			Help:      "Number of block page-pool pages currently rented out",
		}),
		BatchCommitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_commit_latency_seconds",
			Help:      "Latency of a flusher batch commit to the paged store",
		}),
	}
	if registerer == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.BlocksInFlight,
		m.FlushQueueDepth,
		m.PoolPagesInUse,
		m.BatchCommitLatency,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
