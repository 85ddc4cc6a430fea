package stages

import (
	"errors"
	"slices"

	"github.com/rs/zerolog"

	"github.com/evstack/ev-derive/core/derive"
	"github.com/evstack/ev-derive/pkg/config"
	"github.com/evstack/ev-derive/pkg/state"

	"github.com/evstack/ev-derive/derive/internal/common"
)

// BatchStatus is the outcome of validating a batch against the safe head.
type BatchStatus int

const (
	// BatchDrop rejects the batch for good.
	BatchDrop BatchStatus = iota
	// BatchAccept makes the batch the next L2 block.
	BatchAccept
	// BatchUndecided keeps the batch until the L1 data it needs is known.
	BatchUndecided
	// BatchFuture keeps the batch until the safe head reaches it.
	BatchFuture
)

func (s BatchStatus) String() string {
	switch s {
	case BatchDrop:
		return "drop"
	case BatchAccept:
		return "accept"
	case BatchUndecided:
		return "undecided"
	case BatchFuture:
		return "future"
	default:
		return "unknown"
	}
}

// Batches is the batch validation stage. It decodes channels into batches,
// orders them by timestamp and emits the one that extends the safe head.
//
// NotReady means no buffered batch extends the safe head yet. The stage
// re-evaluates on every pull, as the shared state moves forward.
type Batches struct {
	prev  derive.PurgeableIterator[Channel]
	state *state.Guard
	cfg   config.ChainConfig

	batches []Batch // ordered by timestamp

	logger  zerolog.Logger
	metrics *common.Metrics
}

var _ derive.PurgeableIterator[Batch] = (*Batches)(nil)

// NewBatches creates the batch validation stage.
func NewBatches(
	prev derive.PurgeableIterator[Channel],
	st *state.Guard,
	cfg config.ChainConfig,
	logger zerolog.Logger,
	metrics *common.Metrics,
) (*Batches, error) {
	var multiErr error
	if st == nil {
		multiErr = errors.Join(multiErr, errors.New("state is required"))
	}
	if cfg.BlockTime == 0 {
		multiErr = errors.Join(multiErr, errors.New("block time must be positive"))
	}
	if cfg.MaxRLPBytesPerChannel == 0 {
		multiErr = errors.Join(multiErr, errors.New("max rlp bytes per channel must be positive"))
	}
	if multiErr != nil {
		return nil, multiErr
	}

	return &Batches{
		prev:    prev,
		state:   st,
		cfg:     cfg,
		logger:  logger.With().Str("component", "batches").Logger(),
		metrics: metrics,
	}, nil
}

// Next returns the batch that extends the safe head, if any.
func (s *Batches) Next() derive.Result[Batch] {
	for _, ch := range derive.Drain(s.prev, 0) {
		decoded, err := DecodeChannel(ch, s.cfg.MaxRLPBytesPerChannel)
		if err != nil {
			s.metrics.BatchesDropped[common.BatchDropReasonDecode].Add(1)
			s.logger.Debug().Err(err).Stringer("channel", ch.ID).Int("decoded", len(decoded)).Msg("failed to decode channel")
		}
		for _, b := range decoded {
			s.insert(b)
		}
	}

	var (
		batch Batch
		found bool
	)
	s.state.View(func(r state.Reader) {
		batch, found = s.derive(r)
	})
	if !found {
		return derive.NotReady[Batch]()
	}
	return derive.Ready(batch)
}

// insert keeps batches ordered by timestamp; a batch with an equal timestamp
// goes after the ones already buffered.
func (s *Batches) insert(b Batch) {
	i, _ := slices.BinarySearchFunc(s.batches, b.Timestamp, func(e Batch, ts uint64) int {
		if e.Timestamp <= ts {
			return -1
		}
		return 1
	})
	s.batches = slices.Insert(s.batches, i, b)
}

func (s *Batches) derive(r state.Reader) (Batch, bool) {
	for i := 0; i < len(s.batches); {
		b := s.batches[i]
		status, reason := s.batchStatus(r, b)
		switch status {
		case BatchAccept:
			s.batches = slices.Delete(s.batches, i, i+1)
			s.metrics.BatchesAccepted.Add(1)
			return b, true
		case BatchDrop:
			s.logger.Debug().
				Uint64("timestamp", b.Timestamp).
				Uint64("epoch", b.EpochNum).
				Str("reason", string(reason)).
				Msg("dropping batch")
			s.metrics.BatchesDropped[reason].Add(1)
			s.batches = slices.Delete(s.batches, i, i+1)
		case BatchFuture:
			// later batches are ordered after this one and are in the future too
			return Batch{}, false
		case BatchUndecided:
			return Batch{}, false
		}
	}

	b, ok := s.emptyBatch(r)
	if ok {
		s.metrics.EmptyBatches.Add(1)
		s.logger.Debug().Uint64("timestamp", b.Timestamp).Uint64("epoch", b.EpochNum).Msg("generated empty batch")
	}
	return b, ok
}

func (s *Batches) batchStatus(r state.Reader, b Batch) (BatchStatus, common.BatchDropReason) {
	head := r.SafeHead()
	epoch := r.SafeEpoch()
	nextTimestamp := head.Timestamp + s.cfg.BlockTime

	switch {
	case b.Timestamp > nextTimestamp:
		return BatchFuture, ""
	case b.Timestamp < nextTimestamp:
		return BatchDrop, common.BatchDropReasonStaleTimestamp
	}

	if b.ParentHash != head.Hash {
		return BatchDrop, common.BatchDropReasonParentHash
	}
	if b.L1InclusionBlock > b.EpochNum+s.cfg.SeqWindowSize {
		return BatchDrop, common.BatchDropReasonSeqWindow
	}
	if b.EpochNum < epoch.Number || b.EpochNum > epoch.Number+1 {
		return BatchDrop, common.BatchDropReasonEpochRange
	}

	batchEpoch, ok := r.EpochByNumber(b.EpochNum)
	if !ok {
		return BatchUndecided, ""
	}
	if batchEpoch.Hash != b.EpochHash {
		return BatchDrop, common.BatchDropReasonEpochHash
	}
	if b.Timestamp < batchEpoch.Timestamp {
		return BatchDrop, common.BatchDropReasonEpochTimestamp
	}
	if b.Timestamp > batchEpoch.Timestamp+s.cfg.MaxSeqDrift && len(b.Transactions) > 0 {
		return BatchDrop, common.BatchDropReasonSeqDrift
	}

	for _, tx := range b.Transactions {
		if len(tx) == 0 || tx.IsDeposit() {
			return BatchDrop, common.BatchDropReasonInvalidTx
		}
	}
	return BatchAccept, ""
}

// emptyBatch builds the batch the safe head must advance to once the
// sequencing window of the safe epoch has passed without a valid batch.
func (s *Batches) emptyBatch(r state.Reader) (Batch, bool) {
	head := r.SafeHead()
	epoch := r.SafeEpoch()
	current := r.CurrentEpochNum()

	if current <= epoch.Number+s.cfg.SeqWindowSize {
		return Batch{}, false
	}
	nextEpoch, ok := r.EpochByNumber(epoch.Number + 1)
	if !ok {
		return Batch{}, false
	}

	nextTimestamp := head.Timestamp + s.cfg.BlockTime
	batchEpoch := epoch
	if nextTimestamp >= nextEpoch.Timestamp {
		batchEpoch = nextEpoch
	}
	return Batch{
		ParentHash:       head.Hash,
		EpochNum:         batchEpoch.Number,
		EpochHash:        batchEpoch.Hash,
		Timestamp:        nextTimestamp,
		L1InclusionBlock: current,
	}, true
}

// Purge purges the upstream and drops every buffered batch.
func (s *Batches) Purge() {
	s.prev.Purge()
	s.batches = nil
}
