// Package state holds the chain-sync state shared between the L1 watcher
// and the derivation pipeline.
package state

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/evstack/ev-derive/pkg/config"
	"github.com/evstack/ev-derive/types"
)

// Reader is the read-only view of the chain-sync state.
type Reader interface {
	L1InfoByHash(hash common.Hash) (types.L1Info, bool)
	L1InfoByNumber(number uint64) (types.L1Info, bool)
	EpochByHash(hash common.Hash) (types.Epoch, bool)
	EpochByNumber(number uint64) (types.Epoch, bool)
	SafeHead() types.BlockInfo
	SafeEpoch() types.Epoch
	SafeSeqNumber() uint64
	CurrentEpochNum() uint64
}

// State tracks the L1 blocks seen by the watcher and the current safe L2 head.
type State struct {
	l1Info   map[common.Hash]types.L1Info
	l1Hashes map[uint64]common.Hash

	safeHead        types.BlockInfo
	safeEpoch       types.Epoch
	safeSeqNumber   uint64
	currentEpochNum uint64

	seqWindowSize uint64
}

var _ Reader = (*State)(nil)

// New creates a state positioned at the given safe head. seq is the sequence
// number of the safe head within its epoch.
func New(safeHead types.BlockInfo, safeEpoch types.Epoch, seq uint64, cfg config.ChainConfig) *State {
	return &State{
		l1Info:        make(map[common.Hash]types.L1Info),
		l1Hashes:      make(map[uint64]common.Hash),
		safeHead:      safeHead,
		safeEpoch:     safeEpoch,
		safeSeqNumber: seq,
		seqWindowSize: cfg.SeqWindowSize,
	}
}

// L1InfoByHash returns the L1 info stored for a block hash.
func (s *State) L1InfoByHash(hash common.Hash) (types.L1Info, bool) {
	info, ok := s.l1Info[hash]
	return info, ok
}

// L1InfoByNumber returns the L1 info stored for a block number.
func (s *State) L1InfoByNumber(number uint64) (types.L1Info, bool) {
	hash, ok := s.l1Hashes[number]
	if !ok {
		return types.L1Info{}, false
	}
	return s.L1InfoByHash(hash)
}

// EpochByHash returns the epoch started by the L1 block with the given hash.
func (s *State) EpochByHash(hash common.Hash) (types.Epoch, bool) {
	info, ok := s.L1InfoByHash(hash)
	if !ok {
		return types.Epoch{}, false
	}
	return info.BlockInfo.Epoch(), true
}

// EpochByNumber returns the epoch started by the L1 block with the given number.
func (s *State) EpochByNumber(number uint64) (types.Epoch, bool) {
	info, ok := s.L1InfoByNumber(number)
	if !ok {
		return types.Epoch{}, false
	}
	return info.BlockInfo.Epoch(), true
}

// SafeHead returns the latest safe L2 block.
func (s *State) SafeHead() types.BlockInfo {
	return s.safeHead
}

// SafeEpoch returns the epoch of the latest safe L2 block.
func (s *State) SafeEpoch() types.Epoch {
	return s.safeEpoch
}

// SafeSeqNumber returns the sequence number of the safe head within its epoch.
func (s *State) SafeSeqNumber() uint64 {
	return s.safeSeqNumber
}

// CurrentEpochNum returns the number of the latest L1 block seen.
func (s *State) CurrentEpochNum() uint64 {
	return s.currentEpochNum
}

// UpdateL1Info records a new L1 block and prunes entries that fell out of the
// sequencing window of the safe epoch.
func (s *State) UpdateL1Info(info types.L1Info) {
	s.currentEpochNum = info.BlockInfo.Number
	s.l1Hashes[info.BlockInfo.Number] = info.BlockInfo.Hash
	s.l1Info[info.BlockInfo.Hash] = info
	s.prune()
}

// UpdateSafeHead moves the safe head forward.
func (s *State) UpdateSafeHead(head types.BlockInfo, epoch types.Epoch, seq uint64) {
	s.safeHead = head
	s.safeEpoch = epoch
	s.safeSeqNumber = seq
}

// Purge forgets every L1 block and resets the safe head, after an L1 reorg.
func (s *State) Purge(head types.BlockInfo, epoch types.Epoch, seq uint64) {
	s.currentEpochNum = 0
	clear(s.l1Info)
	clear(s.l1Hashes)
	s.UpdateSafeHead(head, epoch, seq)
}

func (s *State) prune() {
	if s.safeEpoch.Number < s.seqWindowSize {
		return
	}
	pruneUntil := s.safeEpoch.Number - s.seqWindowSize
	for number, hash := range s.l1Hashes {
		if number < pruneUntil {
			delete(s.l1Info, hash)
			delete(s.l1Hashes, number)
		}
	}
}

// Guard is a read/write guarded handle to a State.
//
// Any number of View calls may run at once; Update is exclusive with every
// other call. A view callback must not call Update on the same guard.
type Guard struct {
	mu    sync.RWMutex
	state *State
}

// NewGuard wraps a state.
func NewGuard(s *State) *Guard {
	return &Guard{state: s}
}

// View runs fn with shared access to the state.
func (g *Guard) View(fn func(Reader)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn(g.state)
}

// Update runs fn with exclusive access to the state.
func (g *Guard) Update(fn func(*State)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.state)
}
