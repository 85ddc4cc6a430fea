package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/evstack/ev-derive/pkg/config"
)

const readHeaderTimeout = 10 * time.Second

// startPrometheusServer serves /metrics when Prometheus is enabled. The
// returned function shuts the server down; it is a no-op when disabled.
func startPrometheusServer(cfg *config.InstrumentationConfig, logger zerolog.Logger) func(context.Context) error {
	if !cfg.IsPrometheusEnabled() {
		return func(context.Context) error { return nil }
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer, promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}),
	))
	srv := &http.Server{
		Addr:              cfg.PrometheusListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Prometheus HTTP server ListenAndServe")
		}
	}()
	logger.Info().Str("addr", cfg.PrometheusListenAddr).Msg("Started Prometheus HTTP server")

	return srv.Shutdown
}
