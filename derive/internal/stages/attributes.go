package stages

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/evstack/ev-derive/core/derive"
	"github.com/evstack/ev-derive/pkg/config"
	"github.com/evstack/ev-derive/pkg/state"
	"github.com/evstack/ev-derive/types"

	dcommon "github.com/evstack/ev-derive/derive/internal/common"
)

// Attributes is the final stage. It turns accepted batches into payload
// attributes for the execution engine.
//
// NotReady means no batch is available, or the L1 block of the next batch's
// epoch is not known yet. In the latter case the batch is held and retried.
type Attributes struct {
	prev  derive.PurgeableIterator[Batch]
	state *state.Guard
	cfg   config.ChainConfig

	seqNumber uint64
	epochHash common.Hash
	held      *Batch

	encodeDeposit func(*DepositTx) ([]byte, error)

	logger  zerolog.Logger
	metrics *dcommon.Metrics
}

var _ derive.PurgeableIterator[*types.PayloadAttributes] = (*Attributes)(nil)

// NewAttributes creates the attributes stage. seqNumber is the sequence
// number of the safe head within its epoch.
func NewAttributes(
	prev derive.PurgeableIterator[Batch],
	st *state.Guard,
	cfg config.ChainConfig,
	seqNumber uint64,
	logger zerolog.Logger,
	metrics *dcommon.Metrics,
) (*Attributes, error) {
	if st == nil {
		return nil, errors.New("state is required")
	}
	if cfg.SystemConfig.GasLimit == 0 {
		return nil, errors.New("system config gas limit must be positive")
	}

	s := &Attributes{
		prev:      prev,
		state:     st,
		cfg:       cfg,
		seqNumber: seqNumber,

		encodeDeposit: (*DepositTx).MarshalBinary,

		logger:  logger.With().Str("component", "attributes").Logger(),
		metrics: metrics,
	}
	s.epochHash = s.safeEpochHash()
	return s, nil
}

// Next derives the attributes of the next L2 block.
func (s *Attributes) Next() derive.Result[*types.PayloadAttributes] {
	batch := s.held
	s.held = nil
	if batch == nil {
		b, ok := s.prev.Next().Get()
		if !ok {
			return derive.NotReady[*types.PayloadAttributes]()
		}
		batch = &b
	}

	var (
		info types.L1Info
		ok   bool
	)
	s.state.View(func(r state.Reader) {
		info, ok = r.L1InfoByHash(batch.EpochHash)
	})
	if !ok {
		s.logger.Debug().Uint64("epoch", batch.EpochNum).Stringer("epoch_hash", batch.EpochHash).Msg("waiting for L1 info of batch epoch")
		s.held = batch
		return derive.NotReady[*types.PayloadAttributes]()
	}

	seq := s.nextSequenceNumber(batch.EpochHash)
	attrs, err := s.build(*batch, info, seq)
	if err != nil {
		s.logger.Error().Err(err).Uint64("timestamp", batch.Timestamp).Msg("failed to build payload attributes")
		s.held = batch
		return derive.NotReady[*types.PayloadAttributes]()
	}
	s.seqNumber = seq
	s.epochHash = batch.EpochHash
	s.metrics.AttributesDerived.Add(1)
	return derive.Ready(attrs)
}

func (s *Attributes) nextSequenceNumber(epochHash common.Hash) uint64 {
	if s.epochHash != epochHash {
		return 0
	}
	return s.seqNumber + 1
}

func (s *Attributes) build(batch Batch, info types.L1Info, seq uint64) (*types.PayloadAttributes, error) {
	// watchers that do not track system config updates leave it zero
	if info.SystemConfig.GasLimit == 0 {
		info.SystemConfig = s.cfg.SystemConfig
	}

	deposit, err := s.encodeDeposit(L1InfoDeposit(info, seq, s.cfg.IsRegolith(batch.Timestamp)))
	if err != nil {
		return nil, err
	}

	txs := make([]types.RawTransaction, 0, 1+len(info.UserDeposits)+len(batch.Transactions))
	txs = append(txs, deposit)
	if seq == 0 {
		txs = append(txs, info.UserDeposits...)
	}
	txs = append(txs, batch.Transactions...)

	return &types.PayloadAttributes{
		Timestamp:             hexutil.Uint64(batch.Timestamp),
		PrevRandao:            info.BlockInfo.MixHash,
		SuggestedFeeRecipient: SequencerFeeVaultAddress,
		Transactions:          txs,
		NoTxPool:              true,
		GasLimit:              hexutil.Uint64(info.SystemConfig.GasLimit),
		Epoch:                 info.BlockInfo.Epoch(),
		L1InclusionBlock:      batch.L1InclusionBlock,
		SeqNumber:             seq,
	}, nil
}

func (s *Attributes) safeEpochHash() common.Hash {
	var h common.Hash
	s.state.View(func(r state.Reader) {
		h = r.SafeEpoch().Hash
	})
	return h
}

// Purge purges the upstream and rewinds the sequence number to the one of
// the safe head.
func (s *Attributes) Purge() {
	s.prev.Purge()
	s.state.View(func(r state.Reader) {
		s.seqNumber = r.SafeSeqNumber()
		s.epochHash = r.SafeEpoch().Hash
	})
	s.held = nil
}
