package common

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "derive"
)

// ChannelDropReason is the reason a pending channel was discarded.
type ChannelDropReason string

const (
	ChannelDropReasonTimeout ChannelDropReason = "timeout"
	ChannelDropReasonSize    ChannelDropReason = "size"
)

// AllChannelDropReasons returns all possible channel drop reasons
func AllChannelDropReasons() []ChannelDropReason {
	return []ChannelDropReason{
		ChannelDropReasonTimeout,
		ChannelDropReasonSize,
	}
}

// BatchDropReason is the reason a decoded batch was rejected.
type BatchDropReason string

const (
	BatchDropReasonDecode         BatchDropReason = "decode"
	BatchDropReasonStaleTimestamp BatchDropReason = "stale_timestamp"
	BatchDropReasonParentHash     BatchDropReason = "parent_hash"
	BatchDropReasonSeqWindow      BatchDropReason = "seq_window"
	BatchDropReasonEpochRange     BatchDropReason = "epoch_range"
	BatchDropReasonEpochHash      BatchDropReason = "epoch_hash"
	BatchDropReasonEpochTimestamp BatchDropReason = "epoch_timestamp"
	BatchDropReasonSeqDrift       BatchDropReason = "seq_drift"
	BatchDropReasonInvalidTx      BatchDropReason = "invalid_tx"
)

// AllBatchDropReasons returns all possible batch drop reasons
func AllBatchDropReasons() []BatchDropReason {
	return []BatchDropReason{
		BatchDropReasonDecode,
		BatchDropReasonStaleTimestamp,
		BatchDropReasonParentHash,
		BatchDropReasonSeqWindow,
		BatchDropReasonEpochRange,
		BatchDropReasonEpochHash,
		BatchDropReasonEpochTimestamp,
		BatchDropReasonSeqDrift,
		BatchDropReasonInvalidTx,
	}
}

// Metrics contains all metrics exposed by the derivation pipeline.
type Metrics struct {
	// Intake
	PendingMessages metrics.Gauge   // Batcher messages waiting in the ingestion channel
	L1Origin        metrics.Gauge   // L1 block of the latest submitted batcher message
	FramesDecoded   metrics.Counter // Frames decoded from batcher transactions
	MalformedTxs    metrics.Counter // Batcher transactions dropped while decoding

	// Channels
	ChannelsAssembled metrics.Counter
	ChannelsDropped   map[ChannelDropReason]metrics.Counter
	PendingChannels   metrics.Gauge

	// Batches
	BatchesAccepted metrics.Counter
	BatchesDropped  map[BatchDropReason]metrics.Counter
	EmptyBatches    metrics.Counter // Batches generated after the sequencing window expired

	// Attributes
	AttributesDerived metrics.Counter
	SafeHeight        metrics.Gauge // Number of the latest safe L2 block

	Purges metrics.Counter
}

// PrometheusMetrics returns Metrics built using Prometheus client library
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}

	m := &Metrics{
		ChannelsDropped: make(map[ChannelDropReason]metrics.Counter),
		BatchesDropped:  make(map[BatchDropReason]metrics.Counter),
	}

	m.PendingMessages = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "pending_messages",
		Help:      "Number of batcher messages waiting in the ingestion channel.",
	}, labels).With(labelsAndValues...)

	m.L1Origin = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "l1_origin",
		Help:      "L1 block of the latest submitted batcher message.",
	}, labels).With(labelsAndValues...)

	m.FramesDecoded = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "frames_decoded_total",
		Help:      "Total number of frames decoded from batcher transactions.",
	}, labels).With(labelsAndValues...)

	m.MalformedTxs = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "malformed_txs_total",
		Help:      "Total number of batcher transactions dropped while decoding.",
	}, labels).With(labelsAndValues...)

	m.ChannelsAssembled = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "channels_assembled_total",
		Help:      "Total number of channels fully reassembled.",
	}, labels).With(labelsAndValues...)

	for _, reason := range AllChannelDropReasons() {
		m.ChannelsDropped[reason] = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "channels_dropped_total",
			Help:      "Total number of pending channels dropped by reason.",
			ConstLabels: map[string]string{
				"reason": string(reason),
			},
		}, labels).With(labelsAndValues...)
	}

	m.PendingChannels = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "pending_channels",
		Help:      "Number of channels still waiting for frames.",
	}, labels).With(labelsAndValues...)

	m.BatchesAccepted = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "batches_accepted_total",
		Help:      "Total number of batches accepted.",
	}, labels).With(labelsAndValues...)

	for _, reason := range AllBatchDropReasons() {
		m.BatchesDropped[reason] = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "batches_dropped_total",
			Help:      "Total number of batches dropped by reason.",
			ConstLabels: map[string]string{
				"reason": string(reason),
			},
		}, labels).With(labelsAndValues...)
	}

	m.EmptyBatches = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "empty_batches_total",
		Help:      "Total number of empty batches generated after the sequencing window expired.",
	}, labels).With(labelsAndValues...)

	m.AttributesDerived = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "attributes_derived_total",
		Help:      "Total number of payload attributes derived.",
	}, labels).With(labelsAndValues...)

	m.SafeHeight = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "safe_height",
		Help:      "Number of the latest safe L2 block.",
	}, labels).With(labelsAndValues...)

	m.Purges = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "purges_total",
		Help:      "Total number of pipeline purges.",
	}, labels).With(labelsAndValues...)

	return m
}

// NopMetrics returns no-op Metrics
func NopMetrics() *Metrics {
	m := &Metrics{
		PendingMessages: discard.NewGauge(),
		L1Origin:        discard.NewGauge(),
		FramesDecoded:   discard.NewCounter(),
		MalformedTxs:    discard.NewCounter(),

		ChannelsAssembled: discard.NewCounter(),
		ChannelsDropped:   make(map[ChannelDropReason]metrics.Counter),
		PendingChannels:   discard.NewGauge(),

		BatchesAccepted: discard.NewCounter(),
		BatchesDropped:  make(map[BatchDropReason]metrics.Counter),
		EmptyBatches:    discard.NewCounter(),

		AttributesDerived: discard.NewCounter(),
		SafeHeight:        discard.NewGauge(),

		Purges: discard.NewCounter(),
	}

	for _, reason := range AllChannelDropReasons() {
		m.ChannelsDropped[reason] = discard.NewCounter()
	}
	for _, reason := range AllBatchDropReasons() {
		m.BatchesDropped[reason] = discard.NewCounter()
	}

	return m
}
