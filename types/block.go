package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BlockInfo identifies an L2 block.
type BlockInfo struct {
	Hash       common.Hash `mapstructure:"hash" yaml:"hash" json:"hash"`
	Number     uint64      `mapstructure:"number" yaml:"number" json:"number"`
	ParentHash common.Hash `mapstructure:"parent_hash" yaml:"parent_hash" json:"parent_hash"`
	Timestamp  uint64      `mapstructure:"timestamp" yaml:"timestamp" json:"timestamp"`
}

// Epoch identifies the L1 block an L2 block derives its L1 context from.
type Epoch struct {
	Number    uint64      `mapstructure:"number" yaml:"number" json:"number"`
	Hash      common.Hash `mapstructure:"hash" yaml:"hash" json:"hash"`
	Timestamp uint64      `mapstructure:"timestamp" yaml:"timestamp" json:"timestamp"`
}

// L1BlockInfo is the subset of an L1 header the derivation needs.
type L1BlockInfo struct {
	Number    uint64      `json:"number"`
	Hash      common.Hash `json:"hash"`
	Timestamp uint64      `json:"timestamp"`
	BaseFee   *big.Int    `json:"base_fee"`
	MixHash   common.Hash `json:"mix_hash"`
}

// Epoch returns the epoch this L1 block starts.
func (b L1BlockInfo) Epoch() Epoch {
	return Epoch{Number: b.Number, Hash: b.Hash, Timestamp: b.Timestamp}
}

// SystemConfig holds the L1 system config values in effect for an L1 block.
type SystemConfig struct {
	BatchSender   common.Address `mapstructure:"batch_sender" yaml:"batch_sender" json:"batch_sender"`
	GasLimit      uint64         `mapstructure:"gas_limit" yaml:"gas_limit" json:"gas_limit"`
	L1FeeOverhead uint64         `mapstructure:"l1_fee_overhead" yaml:"l1_fee_overhead" json:"l1_fee_overhead"`
	L1FeeScalar   uint64         `mapstructure:"l1_fee_scalar" yaml:"l1_fee_scalar" json:"l1_fee_scalar"`
}

// BatcherHash is the batch sender address left-padded to 32 bytes.
func (c SystemConfig) BatcherHash() common.Hash {
	return common.BytesToHash(c.BatchSender.Bytes())
}

// L1Info is everything the watcher observed in a single L1 block.
type L1Info struct {
	BlockInfo    L1BlockInfo  `json:"block_info"`
	SystemConfig SystemConfig `json:"system_config"`
	// UserDeposits are the encoded deposit transactions emitted in this block.
	UserDeposits []RawTransaction `json:"user_deposits"`
	// BatcherTransactions are the calldata of transactions sent by the
	// batch sender to the batch inbox, in block order.
	BatcherTransactions []RawTransaction `json:"batcher_transactions"`
	// Finalized is set when the block was already finalized when observed.
	Finalized bool `json:"finalized"`
}
