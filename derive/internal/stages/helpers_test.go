package stages

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/evstack/ev-derive/pkg/config"
	"github.com/evstack/ev-derive/pkg/state"
	"github.com/evstack/ev-derive/types"
)

const genesisTime uint64 = 1_700_000_000

func testChainConfig() config.ChainConfig {
	cfg := config.DevnetChainConfig()
	cfg.SeqWindowSize = 4
	cfg.ChannelTimeout = 5
	return cfg
}

func testL1Info(number uint64, timestamp uint64) types.L1Info {
	return types.L1Info{
		BlockInfo: types.L1BlockInfo{
			Number:    number,
			Hash:      l1Hash(number),
			Timestamp: timestamp,
			BaseFee:   big.NewInt(1_000_000_000),
			MixHash:   common.BigToHash(big.NewInt(int64(number) + 7000)),
		},
		SystemConfig: testChainConfig().SystemConfig,
	}
}

// l1Hash keeps block 0 aligned with the devnet start epoch.
func l1Hash(number uint64) common.Hash {
	if number == 0 {
		return config.DevnetChainConfig().L1StartEpoch.Hash
	}
	return common.BigToHash(new(big.Int).SetUint64(number + 1000))
}

func newTestState(t *testing.T, cfg config.ChainConfig, infos ...types.L1Info) *state.Guard {
	t.Helper()
	s := state.New(cfg.L2Genesis, cfg.L1StartEpoch, 0, cfg)
	for _, info := range infos {
		s.UpdateL1Info(info)
	}
	return state.NewGuard(s)
}

func mustEncodeChannel(t *testing.T, batches ...Batch) []byte {
	t.Helper()
	data, err := EncodeChannel(batches...)
	require.NoError(t, err)
	return data
}

func mustMarshal(t *testing.T, tx BatcherTransaction) []byte {
	t.Helper()
	b, err := tx.MarshalBinary()
	require.NoError(t, err)
	return b
}

func channelID(b byte) ChannelID {
	var id ChannelID
	id[0] = b
	return id
}
