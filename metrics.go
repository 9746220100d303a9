package paprika

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/paprikadb/paprika/blockchain"
)

// Metrics is the blockchain overlay's Prometheus collector set, per
// SPEC_FULL.md §11.
type Metrics = blockchain.Metrics

// NewMetrics builds and, unless registerer is nil, registers the
// blockchain overlay's collectors under namespace.
func NewMetrics(namespace string, registerer prometheus.Registerer) (*Metrics, error) {
	return blockchain.NewMetrics(namespace, registerer)
}
