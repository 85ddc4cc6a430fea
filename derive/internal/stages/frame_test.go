package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evstack/ev-derive/derive/internal/common"
)

func TestDecodeBatcherTransaction(t *testing.T) {
	tx := BatcherTransaction{
		Version: BatcherTransactionVersion,
		Frames: []Frame{
			{ChannelID: channelID(1), FrameNumber: 0, FrameData: []byte("hello ")},
			{ChannelID: channelID(1), FrameNumber: 1, FrameData: []byte("world"), IsLastFrame: true},
		},
	}

	decoded, err := DecodeBatcherTransaction(mustMarshal(t, tx), 42, 1000)
	require.NoError(t, err)
	require.Len(t, decoded.Frames, 2)

	for i, f := range decoded.Frames {
		assert.Equal(t, tx.Frames[i].ChannelID, f.ChannelID)
		assert.Equal(t, tx.Frames[i].FrameNumber, f.FrameNumber)
		assert.Equal(t, tx.Frames[i].FrameData, f.FrameData)
		assert.Equal(t, tx.Frames[i].IsLastFrame, f.IsLastFrame)
		assert.Equal(t, uint64(42), f.L1InclusionBlock)
	}
}

func TestDecodeBatcherTransaction_Malformed(t *testing.T) {
	valid := mustMarshal(t, BatcherTransaction{Frames: []Frame{
		{ChannelID: channelID(2), FrameData: []byte{1, 2, 3}, IsLastFrame: true},
	}})

	badFlag := append([]byte(nil), valid...)
	badFlag[len(badFlag)-1] = 2

	unknownVersion := append([]byte(nil), valid...)
	unknownVersion[0] = 1

	specs := map[string]struct {
		data   []byte
		maxLen uint64
		expErr error
	}{
		"empty":           {data: nil, maxLen: 100, expErr: common.ErrTruncatedFrame},
		"unknown version": {data: unknownVersion, maxLen: 100, expErr: common.ErrUnknownBatcherVersion},
		"truncated":       {data: valid[:len(valid)-2], maxLen: 100, expErr: common.ErrTruncatedFrame},
		"short header":    {data: valid[:10], maxLen: 100, expErr: common.ErrTruncatedFrame},
		"bad last flag":   {data: badFlag, maxLen: 100, expErr: common.ErrInvalidLastFrameFlag},
		"frame too large": {data: valid, maxLen: 2, expErr: common.ErrFrameTooLarge},
	}

	for name, spec := range specs {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeBatcherTransaction(spec.data, 1, spec.maxLen)
			assert.ErrorIs(t, err, spec.expErr)
		})
	}
}

func TestChannelID_String(t *testing.T) {
	assert.Equal(t, "0a000000000000000000000000000000", channelID(10).String())
}
