package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/evstack/ev-derive/derive"
	"github.com/evstack/ev-derive/pkg/config"
	"github.com/evstack/ev-derive/pkg/driver"
	"github.com/evstack/ev-derive/pkg/state"
	"github.com/evstack/ev-derive/pkg/store"
	"github.com/evstack/ev-derive/pkg/telemetry"
)

const shutdownTimeout = 5 * time.Second

// RunOptions configures RunDerivation.
type RunOptions struct {
	// Engine builds the derived blocks. It defaults to driver.DryRunEngine.
	Engine driver.Engine
	// Store persists the checkpoints. It defaults to a badger database under
	// the root directory.
	Store store.Store
	// OnPayload is called after every applied block.
	OnPayload func(driver.Payload)
}

// RunDerivation reads watcher updates from updates until its end, derives
// the L2 chain from them and returns the final safe head.
func RunDerivation(ctx context.Context, logger zerolog.Logger, cfg config.Config, updates io.Reader, opts RunOptions) (store.Checkpoint, error) {
	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Instrumentation, logger)
	if err != nil {
		return store.Checkpoint{}, err
	}
	defer shutdown(logger, "tracing", shutdownTracing)

	metrics := derive.NopMetrics()
	if cfg.Instrumentation.IsPrometheusEnabled() {
		metrics = derive.PrometheusMetrics(cfg.Instrumentation.Namespace, "chain_id", strconv.FormatUint(cfg.Chain.L2ChainID, 10))
	}
	defer shutdown(logger, "prometheus", startPrometheusServer(cfg.Instrumentation, logger))

	s := opts.Store
	if s == nil {
		kv, err := store.NewDefaultKVStore(cfg.RootDir, cfg.DBPath, config.DBName)
		if err != nil {
			return store.Checkpoint{}, fmt.Errorf("failed to open checkpoint database: %w", err)
		}
		s = store.New(kv)
		defer func() {
			if err := s.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close checkpoint database")
			}
		}()
	}
	start, err := driver.StartingPoint(ctx, s, cfg.Chain)
	if err != nil {
		return store.Checkpoint{}, fmt.Errorf("failed to load starting point: %w", err)
	}

	engine := opts.Engine
	if engine == nil {
		engine = driver.DryRunEngine{}
	}
	pipelineOpts := []derive.Option{derive.WithLogger(logger), derive.WithMetrics(metrics)}
	if cfg.Instrumentation.IsTracingEnabled() {
		pipelineOpts = append(pipelineOpts, derive.WithTracing())
		engine = telemetry.WithTracingEngine(engine)
	}

	st := state.NewGuard(state.New(start.Head, start.Epoch, start.SeqNumber, cfg.Chain))
	pipeline, err := derive.NewPipeline(st, cfg.Chain, start.SeqNumber, pipelineOpts...)
	if err != nil {
		return store.Checkpoint{}, fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Close()

	d := driver.New(pipeline, engine, st, s, start, cfg.Driver, logger, metrics)
	d.OnPayload = opts.OnPayload

	logger.Info().
		Str("network", cfg.Chain.Network).
		Uint64("height", start.Head.Number).
		Uint64("epoch", start.Epoch.Number).
		Msg("starting derivation")

	ch := make(chan driver.BlockUpdate)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(ch)
		return driver.ReadUpdates(gctx, updates, ch)
	})
	g.Go(func() error {
		return d.Run(gctx, ch)
	})
	if err := g.Wait(); err != nil {
		return d.SafeHead(), err
	}

	safe := d.SafeHead()
	logger.Info().Uint64("height", safe.Head.Number).Str("hash", safe.Head.Hash.Hex()).Msg("derivation finished")
	return safe, nil
}

func shutdown(logger zerolog.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Error().Err(err).Str("component", name).Msg("shutdown failed")
	}
}
