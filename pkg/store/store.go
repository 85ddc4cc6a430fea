// Package store persists the derivation checkpoints: the safe head the
// driver reached and the finalized head it can safely rewind to.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/rlp"
	ds "github.com/ipfs/go-datastore"

	"github.com/evstack/ev-derive/types"
)

// ErrNotFound is returned when no checkpoint has been saved yet.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint is an L2 head with the derivation context needed to resume from it.
type Checkpoint struct {
	Head             types.BlockInfo
	Epoch            types.Epoch
	SeqNumber        uint64
	L1InclusionBlock uint64
}

// Store reads and writes checkpoints.
type Store interface {
	SaveSafeHead(ctx context.Context, cp Checkpoint) error
	LoadSafeHead(ctx context.Context) (Checkpoint, error)
	SaveFinalizedHead(ctx context.Context, cp Checkpoint) error
	LoadFinalizedHead(ctx context.Context) (Checkpoint, error)
	// SafeHeadAt returns the safe head checkpoint saved for an L2 block number.
	SafeHeadAt(ctx context.Context, number uint64) (Checkpoint, error)
	Close() error
}

// DefaultStore is the go-datastore backed Store.
type DefaultStore struct {
	db ds.Batching
}

var _ Store = (*DefaultStore)(nil)

// New returns a Store persisting into db under DerivePrefix.
func New(db ds.Batching) *DefaultStore {
	return &DefaultStore{db: NewDeriveKVStore(db)}
}

// SaveSafeHead records cp as the latest safe head and indexes it by number.
func (s *DefaultStore) SaveSafeHead(ctx context.Context, cp Checkpoint) error {
	blob, err := rlp.EncodeToBytes(&cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	batch, err := s.db.Batch(ctx)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	if err := batch.Put(ctx, ds.NewKey(SafeHeadKey), blob); err != nil {
		return fmt.Errorf("failed to put safe head: %w", err)
	}
	if err := batch.Put(ctx, ds.NewKey(getSafeHistoryKey(cp.Head.Number)), blob); err != nil {
		return fmt.Errorf("failed to index safe head: %w", err)
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit safe head: %w", err)
	}
	return nil
}

// LoadSafeHead returns the latest safe head.
func (s *DefaultStore) LoadSafeHead(ctx context.Context) (Checkpoint, error) {
	return s.load(ctx, SafeHeadKey)
}

// SafeHeadAt returns the safe head checkpoint saved for an L2 block number.
func (s *DefaultStore) SafeHeadAt(ctx context.Context, number uint64) (Checkpoint, error) {
	return s.load(ctx, getSafeHistoryKey(number))
}

// SaveFinalizedHead records cp as the finalized head and prunes the safe
// head history below it.
func (s *DefaultStore) SaveFinalizedHead(ctx context.Context, cp Checkpoint) error {
	blob, err := rlp.EncodeToBytes(&cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	stale, err := s.historyBelow(ctx, cp.Head.Number)
	if err != nil {
		return err
	}

	batch, err := s.db.Batch(ctx)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	if err := batch.Put(ctx, ds.NewKey(FinalizedHeadKey), blob); err != nil {
		return fmt.Errorf("failed to put finalized head: %w", err)
	}
	for _, key := range stale {
		if err := batch.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to prune %s: %w", key, err)
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit finalized head: %w", err)
	}
	return nil
}

// LoadFinalizedHead returns the finalized head.
func (s *DefaultStore) LoadFinalizedHead(ctx context.Context) (Checkpoint, error) {
	return s.load(ctx, FinalizedHeadKey)
}

// Close closes the underlying datastore.
func (s *DefaultStore) Close() error {
	return s.db.Close()
}

func (s *DefaultStore) load(ctx context.Context, key string) (Checkpoint, error) {
	blob, err := s.db.Get(ctx, ds.NewKey(key))
	if errors.Is(err, ds.ErrNotFound) {
		return Checkpoint{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to load %s: %w", key, err)
	}

	var cp Checkpoint
	if err := rlp.DecodeBytes(blob, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return cp, nil
}

func (s *DefaultStore) historyBelow(ctx context.Context, number uint64) ([]ds.Key, error) {
	results, err := GetPrefixEntries(ctx, s.db, "/"+safeHistoryPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query safe head history: %w", err)
	}
	defer results.Close()

	var keys []ds.Key
	for entry := range results.Next() {
		if entry.Error != nil {
			return nil, fmt.Errorf("failed to read safe head history: %w", entry.Error)
		}
		key := ds.NewKey(entry.Key)
		n, err := strconv.ParseUint(key.BaseNamespace(), 10, 64)
		if err != nil {
			continue
		}
		if n < number {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
