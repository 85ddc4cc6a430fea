package driver

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/evstack/ev-derive/types"
)

// ErrInvalidPayload is returned by an engine for attributes that cannot
// extend the given parent.
var ErrInvalidPayload = errors.New("invalid payload attributes")

// Engine builds L2 blocks from payload attributes.
type Engine interface {
	// Execute builds the block described by attrs on top of parent and
	// returns it.
	Execute(ctx context.Context, parent types.BlockInfo, attrs *types.PayloadAttributes) (types.BlockInfo, error)
}

// DryRunEngine builds blocks without executing them. Block hashes are
// derived from the parent hash, number and timestamp only.
type DryRunEngine struct{}

var _ Engine = DryRunEngine{}

// Execute implements Engine.
func (DryRunEngine) Execute(ctx context.Context, parent types.BlockInfo, attrs *types.PayloadAttributes) (types.BlockInfo, error) {
	if err := ctx.Err(); err != nil {
		return types.BlockInfo{}, err
	}
	if attrs == nil {
		return types.BlockInfo{}, fmt.Errorf("%w: nil attributes", ErrInvalidPayload)
	}
	ts := uint64(attrs.Timestamp)
	if ts <= parent.Timestamp {
		return types.BlockInfo{}, fmt.Errorf("%w: timestamp %d does not follow parent timestamp %d", ErrInvalidPayload, ts, parent.Timestamp)
	}
	if len(attrs.Transactions) == 0 || !attrs.Transactions[0].IsDeposit() {
		return types.BlockInfo{}, fmt.Errorf("%w: first transaction must be the L1 info deposit", ErrInvalidPayload)
	}

	return types.BlockInfo{
		Hash:       DryRunBlockHash(parent.Hash, parent.Number+1, ts),
		Number:     parent.Number + 1,
		ParentHash: parent.Hash,
		Timestamp:  ts,
	}, nil
}

// DryRunBlockHash is the hash DryRunEngine assigns to a block.
func DryRunBlockHash(parent common.Hash, number, timestamp uint64) common.Hash {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], number)
	binary.BigEndian.PutUint64(buf[8:], timestamp)
	return crypto.Keccak256Hash(parent.Bytes(), buf[:])
}
