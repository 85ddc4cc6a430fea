package driver

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/evstack/ev-derive/derive"
	"github.com/evstack/ev-derive/pkg/config"
	"github.com/evstack/ev-derive/pkg/state"
	"github.com/evstack/ev-derive/pkg/store"
	"github.com/evstack/ev-derive/test/mocks"
	"github.com/evstack/ev-derive/types"
)

type fixture struct {
	t      *testing.T
	chain  config.ChainConfig
	state  *state.Guard
	store  *store.DefaultStore
	driver *Driver

	// hashes[n] is the dry-run hash of L2 block n.
	hashes map[uint64]common.Hash
}

func newFixture(t *testing.T, engine Engine) *fixture {
	t.Helper()
	chain := config.DevnetChainConfig()
	logger := zerolog.New(zerolog.NewTestWriter(t))

	st := state.NewGuard(state.New(chain.L2Genesis, chain.L1StartEpoch, 0, chain))
	p, err := derive.NewPipeline(st, chain, 0, derive.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(p.Close)

	s := store.New(store.NewInMemoryKVStore())
	start, err := StartingPoint(context.Background(), s, chain)
	require.NoError(t, err)

	cfg := config.DriverConfig{PollInterval: config.DurationWrapper{Duration: 10 * time.Millisecond}}
	return &fixture{
		t:      t,
		chain:  chain,
		state:  st,
		store:  s,
		driver: New(p, engine, st, s, start, cfg, logger, nil),
		hashes: map[uint64]common.Hash{chain.L2Genesis.Number: chain.L2Genesis.Hash},
	}
}

func (f *fixture) l1Info(number uint64, batcherTxs ...types.RawTransaction) types.L1Info {
	hash := f.chain.L1StartEpoch.Hash
	if number != f.chain.L1StartEpoch.Number {
		hash = common.BigToHash(new(big.Int).SetUint64(number + 5000))
	}
	return types.L1Info{
		BlockInfo: types.L1BlockInfo{
			Number:    number,
			Hash:      hash,
			Timestamp: f.chain.L1StartEpoch.Timestamp + number*12,
			BaseFee:   big.NewInt(1),
		},
		SystemConfig:        f.chain.SystemConfig,
		BatcherTransactions: batcherTxs,
	}
}

func (f *fixture) timestamp(number uint64) uint64 {
	return f.chain.L2Genesis.Timestamp + number*f.chain.BlockTime
}

// batches builds the batches of L2 blocks from..to in the start epoch.
// salt changes the transactions so replacement blocks hash differently.
func (f *fixture) batches(from, to uint64, salt byte) []derive.Batch {
	var out []derive.Batch
	for n := from; n <= to; n++ {
		parent, ok := f.hashes[n-1]
		require.True(f.t, ok, "parent of block %d unknown", n)
		out = append(out, derive.Batch{
			ParentHash:   parent,
			EpochNum:     f.chain.L1StartEpoch.Number,
			EpochHash:    f.chain.L1StartEpoch.Hash,
			Timestamp:    f.timestamp(n),
			Transactions: []types.RawTransaction{{0x02, salt, byte(n)}},
		})
		f.hashes[n] = DryRunBlockHash(parent, n, f.timestamp(n))
	}
	return out
}

func (f *fixture) batcherTx(id byte, batches []derive.Batch) types.RawTransaction {
	f.t.Helper()
	data, err := derive.EncodeChannel(batches...)
	require.NoError(f.t, err)
	raw, err := derive.BatcherTransaction{Frames: []derive.Frame{{
		ChannelID:   derive.ChannelID{id},
		FrameData:   data,
		IsLastFrame: true,
	}}}.MarshalBinary()
	require.NoError(f.t, err)
	return raw
}

func (f *fixture) handle(updates ...BlockUpdate) {
	f.t.Helper()
	for _, u := range updates {
		require.NoError(f.t, f.driver.HandleUpdate(context.Background(), u))
	}
}

func TestDriver_AppliesDerivedBlocks(t *testing.T) {
	f := newFixture(t, DryRunEngine{})
	ctx := context.Background()

	var seen []uint64
	f.driver.OnPayload = func(p Payload) {
		seen = append(seen, p.SeqNumber)
	}

	f.handle(
		NewBlock(f.l1Info(0)),
		NewBlock(f.l1Info(1, f.batcherTx(1, f.batches(1, 3, 0)))),
	)
	n, err := f.driver.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []uint64{1, 2, 3}, seen)

	safe := f.driver.SafeHead()
	assert.Equal(t, uint64(3), safe.Head.Number)
	assert.Equal(t, f.hashes[3], safe.Head.Hash)
	assert.Equal(t, uint64(1), safe.L1InclusionBlock)

	saved, err := f.store.LoadSafeHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, safe, saved)

	f.state.View(func(r state.Reader) {
		assert.Equal(t, safe.Head, r.SafeHead())
	})

	n, err = f.driver.Step(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDriver_MaxBlocksPerStep(t *testing.T) {
	f := newFixture(t, DryRunEngine{})
	f.driver.cfg.MaxBlocksPerStep = 2

	f.handle(
		NewBlock(f.l1Info(0)),
		NewBlock(f.l1Info(1, f.batcherTx(1, f.batches(1, 3, 0)))),
	)
	n, err := f.driver.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.driver.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDriver_Finalization(t *testing.T) {
	f := newFixture(t, DryRunEngine{})
	ctx := context.Background()

	f.handle(
		NewBlock(f.l1Info(0)),
		NewBlock(f.l1Info(1, f.batcherTx(1, f.batches(1, 2, 0)))),
		NewBlock(f.l1Info(2, f.batcherTx(2, f.batches(3, 3, 0)))),
	)
	_, err := f.driver.Step(ctx)
	require.NoError(t, err)

	_, err = f.store.LoadFinalizedHead(ctx)
	require.ErrorIs(t, err, store.ErrNotFound)

	f.handle(Finalized(1))
	assert.Equal(t, uint64(2), f.driver.FinalizedHead().Head.Number)
	finalized, err := f.store.LoadFinalizedHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.hashes[2], finalized.Head.Hash)

	// An older finalization notice is ignored.
	f.handle(Finalized(0))
	assert.Equal(t, uint64(2), f.driver.FinalizedHead().Head.Number)

	f.handle(Finalized(2))
	assert.Equal(t, uint64(3), f.driver.FinalizedHead().Head.Number)

	_, err = f.store.SafeHeadAt(ctx, 2)
	assert.ErrorIs(t, err, store.ErrNotFound, "history below the finalized head is pruned")
	_, err = f.store.SafeHeadAt(ctx, 3)
	assert.NoError(t, err)

	start, err := StartingPoint(ctx, f.store, f.chain)
	require.NoError(t, err)
	assert.Equal(t, f.driver.FinalizedHead(), start)
}

func TestDriver_BlocksFromFinalizedL1AreFinalizedImmediately(t *testing.T) {
	f := newFixture(t, DryRunEngine{})

	genesis := f.l1Info(0)
	genesis.Finalized = true
	block := f.l1Info(1, f.batcherTx(1, f.batches(1, 1, 0)))
	block.Finalized = true
	f.handle(NewBlock(genesis), NewBlock(block))

	_, err := f.driver.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.driver.FinalizedHead().Head.Number)
}

func TestDriver_ReorgRewindsToFinalizedHead(t *testing.T) {
	f := newFixture(t, DryRunEngine{})
	ctx := context.Background()

	f.handle(
		NewBlock(f.l1Info(0)),
		NewBlock(f.l1Info(1, f.batcherTx(1, f.batches(1, 3, 0)))),
	)
	_, err := f.driver.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), f.driver.SafeHead().Head.Number)

	f.handle(Reorg())
	assert.Equal(t, f.chain.L2Genesis, f.driver.SafeHead().Head)
	saved, err := f.store.LoadSafeHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.chain.L2Genesis, saved.Head)
	f.state.View(func(r state.Reader) {
		assert.Equal(t, f.chain.L2Genesis, r.SafeHead())
		assert.Zero(t, r.CurrentEpochNum())
	})

	f.handle(
		NewBlock(f.l1Info(0)),
		NewBlock(f.l1Info(1, f.batcherTx(2, f.batches(1, 2, 1)))),
	)
	n, err := f.driver.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, f.hashes[2], f.driver.SafeHead().Head.Hash)
	assert.Equal(t, uint64(2), f.driver.SafeHead().SeqNumber)
}

func TestDriver_ReorgKeepsSequenceNumberOfFinalizedHead(t *testing.T) {
	f := newFixture(t, DryRunEngine{})
	ctx := context.Background()

	f.handle(
		NewBlock(f.l1Info(0)),
		NewBlock(f.l1Info(1, f.batcherTx(1, f.batches(1, 2, 0)))),
	)
	_, err := f.driver.Step(ctx)
	require.NoError(t, err)
	f.handle(Finalized(1))
	require.Equal(t, uint64(2), f.driver.FinalizedHead().SeqNumber)

	f.handle(Reorg())

	var seen []uint64
	f.driver.OnPayload = func(p Payload) {
		seen = append(seen, p.SeqNumber)
	}
	f.handle(
		NewBlock(f.l1Info(0)),
		NewBlock(f.l1Info(1)),
		NewBlock(f.l1Info(2, f.batcherTx(2, f.batches(3, 3, 0)))),
	)
	n, err := f.driver.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uint64{3}, seen)
	assert.Equal(t, f.hashes[3], f.driver.SafeHead().Head.Hash)
}

func TestDriver_EngineFailureIsRetried(t *testing.T) {
	engine := mocks.NewMockEngine(t)
	f := newFixture(t, engine)
	ctx := context.Background()

	f.handle(
		NewBlock(f.l1Info(0)),
		NewBlock(f.l1Info(1, f.batcherTx(1, f.batches(1, 1, 0)))),
	)
	block := types.BlockInfo{Hash: f.hashes[1], Number: 1, ParentHash: f.chain.L2Genesis.Hash, Timestamp: f.timestamp(1)}

	errEngine := errors.New("engine unavailable")
	engine.On("Execute", mock.Anything, f.chain.L2Genesis, mock.Anything).Return(types.BlockInfo{}, errEngine).Once()
	engine.On("Execute", mock.Anything, f.chain.L2Genesis, mock.MatchedBy(func(a *types.PayloadAttributes) bool {
		return uint64(a.Timestamp) == f.timestamp(1)
	})).Return(block, nil).Once()

	n, err := f.driver.Step(ctx)
	require.ErrorIs(t, err, errEngine)
	assert.Zero(t, n)
	assert.Equal(t, f.chain.L2Genesis, f.driver.SafeHead().Head)

	n, err = f.driver.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, block, f.driver.SafeHead().Head)
}

func TestDriver_RunAppliesEverythingBeforeReturning(t *testing.T) {
	f := newFixture(t, DryRunEngine{})

	updates := make(chan BlockUpdate, 4)
	updates <- NewBlock(f.l1Info(0))
	updates <- NewBlock(f.l1Info(1, f.batcherTx(1, f.batches(1, 4, 0))))
	updates <- Finalized(1)
	close(updates)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.driver.Run(ctx, updates))
	assert.Equal(t, uint64(4), f.driver.SafeHead().Head.Number)
	assert.Equal(t, uint64(4), f.driver.FinalizedHead().Head.Number)
}

func TestDriver_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, DryRunEngine{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.driver.Run(ctx, make(chan BlockUpdate)) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("driver did not stop")
	}
}

func TestDriver_RejectsMalformedUpdate(t *testing.T) {
	f := newFixture(t, DryRunEngine{})
	assert.Error(t, f.driver.HandleUpdate(context.Background(), BlockUpdate{Kind: UpdateNewBlock}))
	assert.Error(t, f.driver.HandleUpdate(context.Background(), BlockUpdate{Kind: UpdateKind(9)}))
}
