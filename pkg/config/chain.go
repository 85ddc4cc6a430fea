package config

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/evstack/ev-derive/types"
)

const (
	// NetworkOptimism selects the OP Mainnet rollup parameters.
	NetworkOptimism = "optimism"
	// NetworkDevnet selects a small local rollup suited to replays and tests.
	NetworkDevnet = "devnet"
	// NetworkCustom keeps the parameters exactly as configured.
	NetworkCustom = "custom"
)

// ErrUnknownNetwork is returned when a chain preset name is not recognised.
var ErrUnknownNetwork = errors.New("unknown network")

// ChainConfig holds the rollup parameters the derivation depends on.
type ChainConfig struct {
	Network   string `mapstructure:"network" yaml:"network" comment:"Chain preset: optimism, devnet or custom"`
	L1ChainID uint64 `mapstructure:"l1_chain_id" yaml:"l1_chain_id" comment:"Chain ID of the L1"`
	L2ChainID uint64 `mapstructure:"l2_chain_id" yaml:"l2_chain_id" comment:"Chain ID of the rollup"`

	// L1StartEpoch is the L1 block the L2 genesis derives from.
	L1StartEpoch types.Epoch `mapstructure:"l1_start_epoch" yaml:"l1_start_epoch"`
	// L2Genesis is the first L2 block, considered safe from the start.
	L2Genesis types.BlockInfo `mapstructure:"l2_genesis" yaml:"l2_genesis"`
	// SystemConfig is the L1 system config at genesis.
	SystemConfig types.SystemConfig `mapstructure:"system_config" yaml:"system_config"`

	BatchInbox common.Address `mapstructure:"batch_inbox" yaml:"batch_inbox" comment:"Address batcher transactions are sent to"`

	BlockTime             uint64 `mapstructure:"block_time" yaml:"block_time" comment:"L2 block time in seconds"`
	ChannelTimeout        uint64 `mapstructure:"channel_timeout" yaml:"channel_timeout" comment:"Number of L1 blocks a channel may stay open"`
	SeqWindowSize         uint64 `mapstructure:"seq_window_size" yaml:"seq_window_size" comment:"Number of L1 blocks a batch may be included after its epoch"`
	MaxSeqDrift           uint64 `mapstructure:"max_seq_drift" yaml:"max_seq_drift" comment:"Maximum seconds an L2 timestamp may run ahead of its epoch"`
	MaxChannelSize        uint64 `mapstructure:"max_channel_size" yaml:"max_channel_size" comment:"Maximum bytes of frame data buffered across pending channels"`
	MaxFrameLen           uint64 `mapstructure:"max_frame_len" yaml:"max_frame_len" comment:"Maximum accepted frame data length in bytes"`
	MaxRLPBytesPerChannel uint64 `mapstructure:"max_rlp_bytes_per_channel" yaml:"max_rlp_bytes_per_channel" comment:"Maximum decompressed bytes read from one channel"`
	RegolithTime          uint64 `mapstructure:"regolith_time" yaml:"regolith_time" comment:"L2 timestamp at which the Regolith rules activate"`
}

// OptimismChainConfig returns the OP Mainnet rollup parameters.
func OptimismChainConfig() ChainConfig {
	return ChainConfig{
		Network:   NetworkOptimism,
		L1ChainID: 1,
		L2ChainID: 10,
		L1StartEpoch: types.Epoch{
			Number:    17422590,
			Hash:      common.HexToHash("0x438335a20d98863a4c0c97999eb2481921ccd28553eac6f913af7c12aec04108"),
			Timestamp: 1686068903,
		},
		L2Genesis: types.BlockInfo{
			Hash:       common.HexToHash("0xdbf6a80fef073de06add9b0d14026d6e5a86c85f6d102c36d3d8e9cf89c2afd3"),
			Number:     105235063,
			ParentHash: common.HexToHash("0x21a168dfa5e727926063a28ba16fd5ee84c814e847c81a699c7a0ea551e4ca50"),
			Timestamp:  1686068903,
		},
		SystemConfig: types.SystemConfig{
			BatchSender:   common.HexToAddress("0x6887246668a3b87f54deb3b94ba47a6f63f32985"),
			GasLimit:      30_000_000,
			L1FeeOverhead: 188,
			L1FeeScalar:   684_000,
		},
		BatchInbox:            common.HexToAddress("0xff00000000000000000000000000000000000010"),
		BlockTime:             2,
		ChannelTimeout:        300,
		SeqWindowSize:         3600,
		MaxSeqDrift:           600,
		MaxChannelSize:        100_000_000,
		MaxFrameLen:           1_000_000,
		MaxRLPBytesPerChannel: 10_000_000,
		RegolithTime:          0,
	}
}

// DevnetChainConfig returns a small local rollup with short windows.
func DevnetChainConfig() ChainConfig {
	return ChainConfig{
		Network:   NetworkDevnet,
		L1ChainID: 900,
		L2ChainID: 901,
		L1StartEpoch: types.Epoch{
			Number:    0,
			Hash:      common.HexToHash("0x01"),
			Timestamp: 1_700_000_000,
		},
		L2Genesis: types.BlockInfo{
			Hash:      common.HexToHash("0x02"),
			Number:    0,
			Timestamp: 1_700_000_000,
		},
		SystemConfig: types.SystemConfig{
			BatchSender:   common.HexToAddress("0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"),
			GasLimit:      30_000_000,
			L1FeeOverhead: 2100,
			L1FeeScalar:   1_000_000,
		},
		BatchInbox:            common.HexToAddress("0xff00000000000000000000000000000000000901"),
		BlockTime:             2,
		ChannelTimeout:        40,
		SeqWindowSize:         120,
		MaxSeqDrift:           300,
		MaxChannelSize:        100_000_000,
		MaxFrameLen:           1_000_000,
		MaxRLPBytesPerChannel: 10_000_000,
		RegolithTime:          0,
	}
}

// ChainConfigForNetwork resolves a preset name.
func ChainConfigForNetwork(network string) (ChainConfig, error) {
	switch network {
	case NetworkOptimism:
		return OptimismChainConfig(), nil
	case NetworkDevnet:
		return DevnetChainConfig(), nil
	default:
		return ChainConfig{}, fmt.Errorf("%w: %q", ErrUnknownNetwork, network)
	}
}

// Validate reports every invalid parameter at once.
func (c ChainConfig) Validate() error {
	var multiErr error
	if c.BlockTime == 0 {
		multiErr = errors.Join(multiErr, fmt.Errorf("block_time must be positive"))
	}
	if c.ChannelTimeout == 0 {
		multiErr = errors.Join(multiErr, fmt.Errorf("channel_timeout must be positive"))
	}
	if c.SeqWindowSize == 0 {
		multiErr = errors.Join(multiErr, fmt.Errorf("seq_window_size must be positive"))
	}
	if c.MaxChannelSize == 0 {
		multiErr = errors.Join(multiErr, fmt.Errorf("max_channel_size must be positive"))
	}
	if c.MaxFrameLen == 0 {
		multiErr = errors.Join(multiErr, fmt.Errorf("max_frame_len must be positive"))
	}
	if c.MaxRLPBytesPerChannel == 0 {
		multiErr = errors.Join(multiErr, fmt.Errorf("max_rlp_bytes_per_channel must be positive"))
	}
	if c.SystemConfig.GasLimit == 0 {
		multiErr = errors.Join(multiErr, fmt.Errorf("system_config.gas_limit must be positive"))
	}
	if c.L2Genesis.Timestamp < c.L1StartEpoch.Timestamp {
		multiErr = errors.Join(multiErr, fmt.Errorf("l2_genesis.timestamp (%d) precedes l1_start_epoch.timestamp (%d)",
			c.L2Genesis.Timestamp, c.L1StartEpoch.Timestamp))
	}
	return multiErr
}

// IsRegolith reports whether the Regolith rules apply at an L2 timestamp.
func (c ChainConfig) IsRegolith(timestamp uint64) bool {
	return timestamp >= c.RegolithTime
}
