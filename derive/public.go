package derive

import (
	"github.com/evstack/ev-derive/derive/internal/common"
	"github.com/evstack/ev-derive/derive/internal/stages"
)

// Expose Metrics for constructor
type Metrics = common.Metrics

// PrometheusMetrics creates a new PrometheusMetrics instance with the given namespace and labelsAndValues.
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	return common.PrometheusMetrics(namespace, labelsAndValues...)
}

// NopMetrics creates a new NopMetrics instance.
func NopMetrics() *Metrics {
	return common.NopMetrics()
}

// Wire types, exposed for batchers and fixture generators.
type (
	Frame              = stages.Frame
	ChannelID          = stages.ChannelID
	BatcherTransaction = stages.BatcherTransaction
	Batch              = stages.Batch
)

// EncodeChannel compresses batches into channel data.
func EncodeChannel(batches ...Batch) ([]byte, error) {
	return stages.EncodeChannel(batches...)
}
