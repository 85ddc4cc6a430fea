package derive

import (
	"github.com/rs/zerolog"

	"github.com/evstack/ev-derive/derive/internal/common"
)

type options struct {
	logger  zerolog.Logger
	metrics *common.Metrics
	tracing bool
}

func defaultOptions() options {
	return options{
		logger:  zerolog.Nop(),
		metrics: common.NopMetrics(),
	}
}

// Option configures a Pipeline.
type Option func(*options)

// WithLogger sets the logger shared by the pipeline and its stages.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics recorded by the pipeline and its stages.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracing records a span for every pull and purge of the final stage.
func WithTracing() Option {
	return func(o *options) {
		o.tracing = true
	}
}
