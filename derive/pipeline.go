// Package derive chains the derivation stages into a pull-based pipeline
// that turns batcher transactions into payload attributes.
package derive

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/rs/zerolog"

	corederive "github.com/evstack/ev-derive/core/derive"
	"github.com/evstack/ev-derive/derive/internal/common"
	"github.com/evstack/ev-derive/derive/internal/ingest"
	"github.com/evstack/ev-derive/derive/internal/stages"
	"github.com/evstack/ev-derive/pkg/config"
	"github.com/evstack/ev-derive/pkg/state"
	"github.com/evstack/ev-derive/types"
)

var (
	// ErrPipelineClosed is returned once the consuming end of the pipeline
	// has been torn down.
	ErrPipelineClosed = errors.New("derivation pipeline closed")

	// ErrInvalidChainConfig is returned when a stage rejects the chain config.
	ErrInvalidChainConfig = errors.New("invalid chain config")
)

// Result is the outcome of pulling payload attributes from the pipeline.
type Result = corederive.Result[*types.PayloadAttributes]

// Pipeline is the derivation pipeline.
//
// Next, Peek and Purge must be called from a single goroutine.
// PushBatcherTransactions may be called from another one.
type Pipeline struct {
	sender     *ingest.Sender[stages.BatcherTransactionMessage]
	receiver   *ingest.Receiver[stages.BatcherTransactionMessage]
	attributes corederive.PurgeableIterator[*types.PayloadAttributes]

	// pending holds the result returned by Peek until the next Next. It is
	// only ever a Ready result or the zero NotReady result.
	pending Result
	closed  atomic.Bool

	logger  zerolog.Logger
	metrics *common.Metrics
}

var _ corederive.Iterator[*types.PayloadAttributes] = (*Pipeline)(nil)

// NewPipeline builds the ingestion channel and the four stages on top of it.
// seq is the sequence number of the safe head within its epoch.
func NewPipeline(st *state.Guard, cfg config.ChainConfig, seq uint64, opts ...Option) (*Pipeline, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if st == nil {
		return nil, errors.New("state is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidChainConfig, err)
	}

	sender, receiver := ingest.New[stages.BatcherTransactionMessage]()

	batcherTxs := stages.NewBatcherTransactions(receiver, cfg.MaxFrameLen, o.logger, o.metrics)
	channels, err := stages.NewChannels(batcherTxs, stages.ChannelsConfig{
		ChannelTimeout: cfg.ChannelTimeout,
		MaxChannelSize: cfg.MaxChannelSize,
	}, o.logger, o.metrics)
	if err != nil {
		return nil, fmt.Errorf("%w: channels: %w", ErrInvalidChainConfig, err)
	}
	batches, err := stages.NewBatches(channels, st, cfg, o.logger, o.metrics)
	if err != nil {
		return nil, fmt.Errorf("%w: batches: %w", ErrInvalidChainConfig, err)
	}
	attributes, err := stages.NewAttributes(batches, st, cfg, seq, o.logger, o.metrics)
	if err != nil {
		return nil, fmt.Errorf("%w: attributes: %w", ErrInvalidChainConfig, err)
	}

	var final corederive.PurgeableIterator[*types.PayloadAttributes] = attributes
	if o.tracing {
		final = withTracing(final)
	}

	return newPipeline(sender, receiver, final, o), nil
}

func newPipeline(
	sender *ingest.Sender[stages.BatcherTransactionMessage],
	receiver *ingest.Receiver[stages.BatcherTransactionMessage],
	attributes corederive.PurgeableIterator[*types.PayloadAttributes],
	o options,
) *Pipeline {
	return &Pipeline{
		sender:     sender,
		receiver:   receiver,
		attributes: attributes,
		logger:     o.logger.With().Str("component", "pipeline").Logger(),
		metrics:    o.metrics,
	}
}

// Next returns the pending attributes if Peek buffered some, otherwise it
// pulls once from the final stage. A NotReady result means more batcher
// transactions are needed; call again after pushing them.
func (p *Pipeline) Next() Result {
	if p.pending.IsReady() {
		res := p.pending
		p.pending = Result{}
		return res
	}
	return p.attributes.Next()
}

// Peek returns the attributes the next call to Next will return, without
// consuming them. Consecutive calls return the same attributes.
func (p *Pipeline) Peek() Result {
	if !p.pending.IsReady() {
		p.pending = p.attributes.Next()
	}
	return p.pending
}

// PushBatcherTransactions hands the batcher transactions observed in L1
// block l1Origin to the pipeline. The transactions must be in block order.
func (p *Pipeline) PushBatcherTransactions(txs [][]byte, l1Origin uint64) error {
	msg := stages.BatcherTransactionMessage{Txs: slices.Clone(txs), L1Origin: l1Origin}
	if err := p.sender.Send(msg); err != nil {
		return fmt.Errorf("%w: %w", ErrPipelineClosed, err)
	}
	p.metrics.L1Origin.Set(float64(l1Origin))
	return nil
}

// Purge resets every stage and drops the pending attributes. The ingestion
// channel stays open.
func (p *Pipeline) Purge() error {
	if p.closed.Load() {
		return ErrPipelineClosed
	}
	p.attributes.Purge()
	p.pending = Result{}
	p.metrics.Purges.Add(1)
	p.logger.Info().Msg("pipeline purged")
	return nil
}

// Close tears down the consuming end. Later pushes fail with ErrPipelineClosed.
func (p *Pipeline) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.receiver.Close()
	p.logger.Debug().Msg("pipeline closed")
}
