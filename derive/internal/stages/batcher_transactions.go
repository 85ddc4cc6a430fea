package stages

import (
	"github.com/rs/zerolog"

	"github.com/evstack/ev-derive/core/derive"
	"github.com/evstack/ev-derive/derive/internal/common"
	"github.com/evstack/ev-derive/derive/internal/ingest"
)

// BatcherTransactionMessage is a group of batcher transactions observed in
// one L1 block.
type BatcherTransactionMessage struct {
	Txs      [][]byte
	L1Origin uint64
}

// BatcherTransactions is the intake stage. It decodes the raw messages read
// from the ingestion channel into batcher transactions.
//
// NotReady means nothing is queued right now; more input may arrive at any time.
type BatcherTransactions struct {
	rx          *ingest.Receiver[BatcherTransactionMessage]
	txs         []BatcherTransaction
	maxFrameLen uint64

	logger  zerolog.Logger
	metrics *common.Metrics
}

var _ derive.PurgeableIterator[BatcherTransaction] = (*BatcherTransactions)(nil)

// NewBatcherTransactions creates the intake stage reading from rx.
func NewBatcherTransactions(
	rx *ingest.Receiver[BatcherTransactionMessage],
	maxFrameLen uint64,
	logger zerolog.Logger,
	metrics *common.Metrics,
) *BatcherTransactions {
	return &BatcherTransactions{
		rx:          rx,
		maxFrameLen: maxFrameLen,
		logger:      logger.With().Str("component", "batcher_transactions").Logger(),
		metrics:     metrics,
	}
}

// Next returns the oldest decoded batcher transaction.
func (s *BatcherTransactions) Next() derive.Result[BatcherTransaction] {
	for {
		msg, ok := s.rx.TryRecv()
		if !ok {
			break
		}
		s.ingest(msg)
	}
	s.metrics.PendingMessages.Set(float64(s.rx.Len()))

	if len(s.txs) == 0 {
		return derive.NotReady[BatcherTransaction]()
	}
	tx := s.txs[0]
	s.txs[0] = BatcherTransaction{}
	s.txs = s.txs[1:]
	return derive.Ready(tx)
}

func (s *BatcherTransactions) ingest(msg BatcherTransactionMessage) {
	for i, raw := range msg.Txs {
		tx, err := DecodeBatcherTransaction(raw, msg.L1Origin, s.maxFrameLen)
		if err != nil {
			s.metrics.MalformedTxs.Add(1)
			s.logger.Debug().Err(err).
				Uint64("l1_origin", msg.L1Origin).
				Int("index", i).
				Msg("dropping malformed batcher transaction")
			continue
		}
		s.metrics.FramesDecoded.Add(float64(len(tx.Frames)))
		s.txs = append(s.txs, tx)
	}
}

// Purge drops every queued message and decoded transaction.
func (s *BatcherTransactions) Purge() {
	dropped := s.rx.Drain()
	s.txs = nil
	s.metrics.PendingMessages.Set(0)
	s.logger.Debug().Int("dropped_messages", dropped).Msg("purged")
}
