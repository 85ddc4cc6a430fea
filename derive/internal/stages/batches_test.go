package stages

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evstack/ev-derive/pkg/config"
	"github.com/evstack/ev-derive/pkg/state"
	"github.com/evstack/ev-derive/test/mocks"
	"github.com/evstack/ev-derive/types"

	dcommon "github.com/evstack/ev-derive/derive/internal/common"
)

func newTestBatches(t *testing.T, cfg config.ChainConfig, st *state.Guard) (*Batches, *mocks.MockPurgeableIterator[Channel]) {
	t.Helper()
	prev := mocks.NewMockPurgeableIterator[Channel](t)
	stage, err := NewBatches(prev, st, cfg, zerolog.New(zerolog.NewTestWriter(t)), dcommon.NopMetrics())
	require.NoError(t, err)
	return stage, prev
}

// validBatch extends the devnet genesis within epoch 0.
func validBatch(cfg config.ChainConfig) Batch {
	return Batch{
		ParentHash:       cfg.L2Genesis.Hash,
		EpochNum:         0,
		EpochHash:        cfg.L1StartEpoch.Hash,
		Timestamp:        cfg.L2Genesis.Timestamp + cfg.BlockTime,
		Transactions:     []types.RawTransaction{{0x02, 0xaa}},
		L1InclusionBlock: 1,
	}
}

func channelOf(t *testing.T, l1Block uint64, batches ...Batch) Channel {
	return Channel{Data: mustEncodeChannel(t, batches...), L1InclusionBlock: l1Block}
}

func TestNewBatches_InvalidConfig(t *testing.T) {
	cfg := testChainConfig()
	cfg.BlockTime = 0
	_, err := NewBatches(nil, nil, cfg, zerolog.Nop(), dcommon.NopMetrics())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state is required")
	assert.Contains(t, err.Error(), "block time")
}

func TestBatches_AcceptsBatchExtendingSafeHead(t *testing.T) {
	cfg := testChainConfig()
	stage, prev := newTestBatches(t, cfg, newTestState(t, cfg, testL1Info(0, genesisTime)))

	want := validBatch(cfg)
	prev.ExpectValues(channelOf(t, 1, want))

	got, ok := stage.Next().Get()
	require.True(t, ok)
	assert.Equal(t, want.Timestamp, got.Timestamp)
	assert.Equal(t, want.ParentHash, got.ParentHash)
	assert.Equal(t, want.Transactions, got.Transactions)
	assert.Equal(t, uint64(1), got.L1InclusionBlock)
}

func TestBatches_OrderedByTimestampAndFuture(t *testing.T) {
	cfg := testChainConfig()
	st := newTestState(t, cfg, testL1Info(0, genesisTime))
	stage, prev := newTestBatches(t, cfg, st)

	first := validBatch(cfg)
	nextHead := types.BlockInfo{Hash: common.HexToHash("0x1234"), Number: 1, Timestamp: first.Timestamp}
	second := validBatch(cfg)
	second.ParentHash = nextHead.Hash
	second.Timestamp = first.Timestamp + cfg.BlockTime

	prev.ExpectValues(channelOf(t, 1, second, first))

	got, ok := stage.Next().Get()
	require.True(t, ok)
	assert.Equal(t, first.Timestamp, got.Timestamp)

	prev.ExpectValues()
	assert.False(t, stage.Next().IsReady(), "second batch is in the future until the safe head moves")
	assert.Len(t, stage.batches, 1)

	st.Update(func(s *state.State) { s.UpdateSafeHead(nextHead, cfg.L1StartEpoch, 1) })

	prev.ExpectValues()
	got, ok = stage.Next().Get()
	require.True(t, ok)
	assert.Equal(t, second.Timestamp, got.Timestamp)
}

func TestBatches_DropRules(t *testing.T) {
	specs := map[string]struct {
		mutate    func(*Batch)
		mutateCfg func(*config.ChainConfig)
	}{
		"stale timestamp":     {mutate: func(b *Batch) { b.Timestamp = genesisTime }},
		"parent mismatch":     {mutate: func(b *Batch) { b.ParentHash = common.HexToHash("0xdead") }},
		"outside seq window":  {mutate: func(b *Batch) { b.L1InclusionBlock = 5 }},
		"epoch too far ahead": {mutate: func(b *Batch) { b.EpochNum = 2; b.EpochHash = l1Hash(2) }},
		"epoch hash mismatch": {mutate: func(b *Batch) { b.EpochHash = common.HexToHash("0xbeef") }},
		"before epoch":        {mutate: func(b *Batch) { b.EpochNum = 1; b.EpochHash = l1Hash(1) }},
		"seq drift exceeded":  {mutate: func(b *Batch) {}, mutateCfg: func(c *config.ChainConfig) { c.MaxSeqDrift = 1 }},
		"deposit transaction": {mutate: func(b *Batch) { b.Transactions = []types.RawTransaction{{types.DepositTxType, 0x01}} }},
		"empty transaction":   {mutate: func(b *Batch) { b.Transactions = []types.RawTransaction{{}} }},
		"before genesis":      {mutate: func(b *Batch) { b.Timestamp = genesisTime - 2 }},
	}

	for name, spec := range specs {
		t.Run(name, func(t *testing.T) {
			cfg := testChainConfig()
			if spec.mutateCfg != nil {
				spec.mutateCfg(&cfg)
			}
			st := newTestState(t, cfg, testL1Info(0, genesisTime), testL1Info(1, genesisTime+12))
			stage, prev := newTestBatches(t, cfg, st)

			b := validBatch(cfg)
			spec.mutate(&b)
			prev.ExpectValues(channelOf(t, b.L1InclusionBlock, b))

			assert.False(t, stage.Next().IsReady())
			assert.Empty(t, stage.batches, "dropped batches are not kept")
		})
	}
}

func TestBatches_UndecidedUntilEpochKnown(t *testing.T) {
	cfg := testChainConfig()
	st := newTestState(t, cfg, testL1Info(0, genesisTime))
	stage, prev := newTestBatches(t, cfg, st)

	b := validBatch(cfg)
	b.EpochNum = 1
	b.EpochHash = l1Hash(1)
	prev.ExpectValues(channelOf(t, 1, b))

	assert.False(t, stage.Next().IsReady())
	assert.Len(t, stage.batches, 1)

	st.Update(func(s *state.State) { s.UpdateL1Info(testL1Info(1, b.Timestamp)) })

	prev.ExpectValues()
	got, ok := stage.Next().Get()
	require.True(t, ok)
	assert.Equal(t, uint64(1), got.EpochNum)
}

func TestBatches_EmptyBatchAfterSequencingWindow(t *testing.T) {
	cfg := testChainConfig()
	infos := []types.L1Info{testL1Info(0, genesisTime)}
	for n := uint64(1); n <= cfg.SeqWindowSize; n++ {
		infos = append(infos, testL1Info(n, genesisTime+n*12))
	}
	st := newTestState(t, cfg, infos...)
	stage, prev := newTestBatches(t, cfg, st)

	prev.ExpectValues()
	assert.False(t, stage.Next().IsReady(), "window has not passed yet")

	current := cfg.SeqWindowSize + 1
	st.Update(func(s *state.State) { s.UpdateL1Info(testL1Info(current, genesisTime+current*12)) })

	prev.ExpectValues()
	got, ok := stage.Next().Get()
	require.True(t, ok)
	assert.Equal(t, cfg.L2Genesis.Hash, got.ParentHash)
	assert.Equal(t, genesisTime+cfg.BlockTime, got.Timestamp)
	assert.Equal(t, uint64(0), got.EpochNum)
	assert.Empty(t, got.Transactions)
	assert.Equal(t, current, got.L1InclusionBlock)

	// once the next timestamp reaches epoch 1 the empty batch moves to it
	head := types.BlockInfo{Hash: common.HexToHash("0x99"), Number: 5, Timestamp: genesisTime + 10}
	st.Update(func(s *state.State) { s.UpdateSafeHead(head, cfg.L1StartEpoch, 1) })

	prev.ExpectValues()
	got, ok = stage.Next().Get()
	require.True(t, ok)
	assert.Equal(t, uint64(1), got.EpochNum)
	assert.Equal(t, l1Hash(1), got.EpochHash)
	assert.Equal(t, genesisTime+12, got.Timestamp)
}

func TestBatches_UndecodableChannel(t *testing.T) {
	cfg := testChainConfig()
	stage, prev := newTestBatches(t, cfg, newTestState(t, cfg, testL1Info(0, genesisTime)))

	prev.ExpectValues(Channel{Data: []byte{0x01, 0x02}})
	assert.False(t, stage.Next().IsReady())
}

func TestBatches_Purge(t *testing.T) {
	cfg := testChainConfig()
	stage, prev := newTestBatches(t, cfg, newTestState(t, cfg, testL1Info(0, genesisTime)))

	future := validBatch(cfg)
	future.Timestamp += 100
	prev.ExpectValues(channelOf(t, 1, future))
	assert.False(t, stage.Next().IsReady())
	require.Len(t, stage.batches, 1)

	prev.On("Purge").Return().Once()
	stage.Purge()
	assert.Empty(t, stage.batches)
}
