package state

import (
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evstack/ev-derive/pkg/config"
	"github.com/evstack/ev-derive/types"
)

func l1Info(number uint64) types.L1Info {
	return types.L1Info{
		BlockInfo: types.L1BlockInfo{
			Number:    number,
			Hash:      common.BigToHash(new(big.Int).SetUint64(number + 1000)),
			Timestamp: 1_700_000_000 + number*12,
			BaseFee:   big.NewInt(7),
		},
	}
}

func TestState_UpdateL1Info(t *testing.T) {
	cfg := config.DevnetChainConfig()
	s := New(cfg.L2Genesis, cfg.L1StartEpoch, 0, cfg)

	info := l1Info(3)
	s.UpdateL1Info(info)

	assert.Equal(t, uint64(3), s.CurrentEpochNum())

	byNumber, ok := s.L1InfoByNumber(3)
	require.True(t, ok)
	assert.Equal(t, info.BlockInfo.Hash, byNumber.BlockInfo.Hash)

	epoch, ok := s.EpochByHash(info.BlockInfo.Hash)
	require.True(t, ok)
	assert.Equal(t, types.Epoch{Number: 3, Hash: info.BlockInfo.Hash, Timestamp: info.BlockInfo.Timestamp}, epoch)

	_, ok = s.EpochByNumber(4)
	assert.False(t, ok)
}

func TestState_PrunesOutsideSequencingWindow(t *testing.T) {
	cfg := config.DevnetChainConfig()
	cfg.SeqWindowSize = 4
	s := New(cfg.L2Genesis, cfg.L1StartEpoch, 0, cfg)

	for n := uint64(0); n < 10; n++ {
		s.UpdateL1Info(l1Info(n))
	}
	s.UpdateSafeHead(types.BlockInfo{Number: 5}, l1Info(8).BlockInfo.Epoch(), 0)
	s.UpdateL1Info(l1Info(10))

	_, ok := s.L1InfoByNumber(3)
	assert.False(t, ok, "blocks below safe epoch - window are pruned")
	_, ok = s.L1InfoByNumber(4)
	assert.True(t, ok)
	_, ok = s.L1InfoByNumber(10)
	assert.True(t, ok)
}

func TestState_Purge(t *testing.T) {
	cfg := config.DevnetChainConfig()
	s := New(cfg.L2Genesis, cfg.L1StartEpoch, 0, cfg)
	s.UpdateL1Info(l1Info(1))
	s.UpdateL1Info(l1Info(2))

	head := types.BlockInfo{Number: 9, Hash: common.HexToHash("0x09")}
	epoch := types.Epoch{Number: 1}
	s.Purge(head, epoch, 4)

	assert.Equal(t, uint64(0), s.CurrentEpochNum())
	_, ok := s.L1InfoByNumber(1)
	assert.False(t, ok)
	assert.Equal(t, head, s.SafeHead())
	assert.Equal(t, epoch, s.SafeEpoch())
	assert.Equal(t, uint64(4), s.SafeSeqNumber())
}

func TestGuard_ConcurrentReadersAndWriter(t *testing.T) {
	cfg := config.DevnetChainConfig()
	g := NewGuard(New(cfg.L2Genesis, cfg.L1StartEpoch, 0, cfg))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for n := uint64(0); n < 100; n++ {
			g.Update(func(s *State) { s.UpdateL1Info(l1Info(n)) })
		}
	}()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				g.View(func(r Reader) {
					if n := r.CurrentEpochNum(); n > 0 {
						_, ok := r.L1InfoByNumber(n)
						assert.True(t, ok)
					}
				})
			}
		}()
	}
	wg.Wait()

	g.View(func(r Reader) {
		assert.Equal(t, uint64(99), r.CurrentEpochNum())
	})
}
