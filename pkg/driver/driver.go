// Package driver feeds L1 watcher updates into the derivation pipeline and
// applies the derived payload attributes to an execution engine.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/evstack/ev-derive/derive"
	"github.com/evstack/ev-derive/pkg/config"
	"github.com/evstack/ev-derive/pkg/state"
	"github.com/evstack/ev-derive/pkg/store"
	"github.com/evstack/ev-derive/types"
)

// Pipeline is the part of derive.Pipeline the driver uses.
type Pipeline interface {
	Peek() derive.Result
	Next() derive.Result
	PushBatcherTransactions(txs [][]byte, l1Origin uint64) error
	Purge() error
}

var _ Pipeline = (*derive.Pipeline)(nil)

// Payload is a block the engine accepted with the attributes it was built from.
type Payload struct {
	Block            types.BlockInfo          `json:"block"`
	Attributes       *types.PayloadAttributes `json:"attributes"`
	Epoch            types.Epoch              `json:"epoch"`
	SeqNumber        uint64                   `json:"seq_number"`
	L1InclusionBlock uint64                   `json:"l1_inclusion_block"`
}

// Driver owns the safe head. Its methods must be called from one goroutine;
// Run does that for a stream of updates.
type Driver struct {
	pipeline Pipeline
	engine   Engine
	state    *state.Guard
	store    store.Store
	cfg      config.DriverConfig

	safe        store.Checkpoint
	finalized   store.Checkpoint
	unfinalized []store.Checkpoint
	finalizedL1 uint64

	// OnPayload, if set, is called after every block the engine accepted.
	OnPayload func(Payload)

	logger  zerolog.Logger
	metrics *derive.Metrics
}

// New creates a driver starting from the finalized checkpoint start.
func New(
	pipeline Pipeline,
	engine Engine,
	st *state.Guard,
	s store.Store,
	start store.Checkpoint,
	cfg config.DriverConfig,
	logger zerolog.Logger,
	metrics *derive.Metrics,
) *Driver {
	if metrics == nil {
		metrics = derive.NopMetrics()
	}
	return &Driver{
		pipeline:  pipeline,
		engine:    engine,
		state:     st,
		store:     s,
		cfg:       cfg,
		safe:      start,
		finalized: start,
		logger:    logger.With().Str("component", "driver").Logger(),
		metrics:   metrics,
	}
}

// StartingPoint returns the checkpoint to resume from: the saved finalized
// head, or the L2 genesis when nothing was saved yet.
func StartingPoint(ctx context.Context, s store.Store, chain config.ChainConfig) (store.Checkpoint, error) {
	cp, err := s.LoadFinalizedHead(ctx)
	if err == nil {
		return cp, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Checkpoint{}, err
	}
	return store.Checkpoint{
		Head:             chain.L2Genesis,
		Epoch:            chain.L1StartEpoch,
		L1InclusionBlock: chain.L1StartEpoch.Number,
	}, nil
}

// SafeHead returns the latest block applied to the engine.
func (d *Driver) SafeHead() store.Checkpoint {
	return d.safe
}

// FinalizedHead returns the latest block known to be finalized.
func (d *Driver) FinalizedHead() store.Checkpoint {
	return d.finalized
}

// HandleUpdate applies one watcher update.
func (d *Driver) HandleUpdate(ctx context.Context, u BlockUpdate) error {
	switch u.Kind {
	case UpdateNewBlock:
		if u.Block == nil {
			return errors.New("new block update without a block")
		}
		return d.handleNewBlock(ctx, *u.Block)
	case UpdateFinalized:
		return d.finalize(ctx, u.Number)
	case UpdateReorg:
		return d.handleReorg(ctx)
	default:
		return fmt.Errorf("unknown update kind %d", int(u.Kind))
	}
}

func (d *Driver) handleNewBlock(ctx context.Context, info types.L1Info) error {
	number := info.BlockInfo.Number
	d.state.Update(func(s *state.State) { s.UpdateL1Info(info) })

	txs := make([][]byte, len(info.BatcherTransactions))
	for i, tx := range info.BatcherTransactions {
		txs[i] = tx
	}
	if err := d.pipeline.PushBatcherTransactions(txs, number); err != nil {
		return fmt.Errorf("failed to push batcher transactions of block %d: %w", number, err)
	}
	d.logger.Debug().Uint64("l1_block", number).Int("batcher_txs", len(txs)).Msg("new L1 block")

	if info.Finalized {
		return d.finalize(ctx, number)
	}
	return nil
}

// finalize promotes every unfinalized block derived from L1 blocks up to number.
func (d *Driver) finalize(ctx context.Context, number uint64) error {
	if number <= d.finalizedL1 {
		return nil
	}
	d.finalizedL1 = number

	promoted := 0
	for promoted < len(d.unfinalized) && d.unfinalized[promoted].L1InclusionBlock <= number {
		promoted++
	}
	if promoted == 0 {
		return nil
	}

	cp := d.unfinalized[promoted-1]
	if err := d.store.SaveFinalizedHead(ctx, cp); err != nil {
		return fmt.Errorf("failed to save finalized head: %w", err)
	}
	d.finalized = cp
	d.unfinalized = d.unfinalized[promoted:]
	d.logger.Info().Uint64("l1_block", number).Uint64("height", cp.Head.Number).Msg("finalized")
	return nil
}

func (d *Driver) handleReorg(ctx context.Context) error {
	d.logger.Warn().
		Uint64("safe_height", d.safe.Head.Number).
		Uint64("finalized_height", d.finalized.Head.Number).
		Msg("L1 reorg, rewinding to the finalized head")

	d.state.Update(func(s *state.State) { s.Purge(d.finalized.Head, d.finalized.Epoch, d.finalized.SeqNumber) })
	if err := d.pipeline.Purge(); err != nil {
		return fmt.Errorf("failed to purge pipeline: %w", err)
	}

	d.safe = d.finalized
	d.unfinalized = nil
	d.metrics.SafeHeight.Set(float64(d.safe.Head.Number))
	if err := d.store.SaveSafeHead(ctx, d.safe); err != nil {
		return fmt.Errorf("failed to save safe head: %w", err)
	}
	return nil
}

// Step applies ready payloads to the engine and returns how many were
// applied. It stops at the first NotReady result or after
// MaxBlocksPerStep payloads. A payload the engine rejects stays pending in
// the pipeline and is retried on the next Step.
func (d *Driver) Step(ctx context.Context) (int, error) {
	applied := 0
	for d.cfg.MaxBlocksPerStep == 0 || uint64(applied) < d.cfg.MaxBlocksPerStep {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		attrs, ok := d.pipeline.Peek().Get()
		if !ok {
			break
		}
		if attrs == nil {
			return applied, errors.New("pipeline returned nil payload attributes")
		}

		block, err := d.engine.Execute(ctx, d.safe.Head, attrs)
		if err != nil {
			return applied, fmt.Errorf("failed to execute payload at timestamp %d: %w", uint64(attrs.Timestamp), err)
		}
		d.pipeline.Next()

		cp := store.Checkpoint{
			Head:             block,
			Epoch:            attrs.Epoch,
			SeqNumber:        attrs.SeqNumber,
			L1InclusionBlock: attrs.L1InclusionBlock,
		}
		if err := d.advance(ctx, cp); err != nil {
			return applied, err
		}
		if d.OnPayload != nil {
			d.OnPayload(Payload{
				Block:            block,
				Attributes:       attrs,
				Epoch:            attrs.Epoch,
				SeqNumber:        attrs.SeqNumber,
				L1InclusionBlock: attrs.L1InclusionBlock,
			})
		}
		applied++
	}
	return applied, nil
}

func (d *Driver) advance(ctx context.Context, cp store.Checkpoint) error {
	d.state.Update(func(s *state.State) { s.UpdateSafeHead(cp.Head, cp.Epoch, cp.SeqNumber) })
	d.safe = cp
	d.metrics.SafeHeight.Set(float64(cp.Head.Number))
	if err := d.store.SaveSafeHead(ctx, cp); err != nil {
		return fmt.Errorf("failed to save safe head: %w", err)
	}

	if cp.L1InclusionBlock <= d.finalizedL1 {
		if err := d.store.SaveFinalizedHead(ctx, cp); err != nil {
			return fmt.Errorf("failed to save finalized head: %w", err)
		}
		d.finalized = cp
	} else {
		d.unfinalized = append(d.unfinalized, cp)
	}

	d.logger.Info().
		Uint64("height", cp.Head.Number).
		Str("hash", cp.Head.Hash.Hex()).
		Uint64("epoch", cp.Epoch.Number).
		Uint64("seq", cp.SeqNumber).
		Msg("safe head updated")
	return nil
}

// Run applies updates as they arrive and polls the pipeline every
// PollInterval. When updates is closed it applies every remaining payload
// and returns nil.
func (d *Driver) Run(ctx context.Context, updates <-chan BlockUpdate) error {
	interval := d.cfg.PollInterval.Duration
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return d.flush(ctx)
			}
			if err := d.HandleUpdate(ctx, u); err != nil {
				return err
			}
			if _, err := d.Step(ctx); err != nil {
				return err
			}
		case <-ticker.C:
			if _, err := d.Step(ctx); err != nil {
				return err
			}
		}
	}
}

func (d *Driver) flush(ctx context.Context) error {
	for {
		n, err := d.Step(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}
