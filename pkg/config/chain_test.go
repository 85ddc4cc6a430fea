package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainConfigForNetwork(t *testing.T) {
	for _, network := range []string{NetworkOptimism, NetworkDevnet} {
		cfg, err := ChainConfigForNetwork(network)
		require.NoError(t, err)
		assert.Equal(t, network, cfg.Network)
		assert.NoError(t, cfg.Validate())
	}

	_, err := ChainConfigForNetwork(NetworkCustom)
	assert.ErrorIs(t, err, ErrUnknownNetwork)
}

func TestChainConfig_ValidateReportsEveryField(t *testing.T) {
	cfg := ChainConfig{}
	cfg.L2Genesis.Timestamp = 1
	cfg.L1StartEpoch.Timestamp = 2

	err := cfg.Validate()
	require.Error(t, err)
	for _, field := range []string{
		"block_time", "channel_timeout", "seq_window_size", "max_channel_size",
		"max_frame_len", "max_rlp_bytes_per_channel", "system_config.gas_limit", "l2_genesis.timestamp",
	} {
		assert.ErrorContains(t, err, field)
	}
}

func TestChainConfig_IsRegolith(t *testing.T) {
	cfg := DevnetChainConfig()
	cfg.RegolithTime = 100
	assert.False(t, cfg.IsRegolith(99))
	assert.True(t, cfg.IsRegolith(100))
}
