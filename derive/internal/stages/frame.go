package stages

import (
	"encoding/binary"
	"fmt"

	"github.com/evstack/ev-derive/derive/internal/common"
)

// BatcherTransactionVersion is the only supported batcher transaction version.
const BatcherTransactionVersion = 0

// frameOverhead is the size of a frame without its data: channel id, frame
// number, data length and the is_last flag.
const frameOverhead = 16 + 2 + 4 + 1

// ChannelID identifies a channel across frames.
type ChannelID [16]byte

// String returns the hex encoding of the id.
func (id ChannelID) String() string {
	return fmt.Sprintf("%x", id[:])
}

// Frame is a chunk of channel data carried by a batcher transaction.
type Frame struct {
	ChannelID   ChannelID
	FrameNumber uint16
	FrameData   []byte
	IsLastFrame bool

	// L1InclusionBlock is the L1 block of the batcher transaction that
	// carried the frame.
	L1InclusionBlock uint64
}

// MarshalBinary encodes the frame in its wire format.
func (f Frame) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, frameOverhead+len(f.FrameData))
	out = append(out, f.ChannelID[:]...)
	out = binary.BigEndian.AppendUint16(out, f.FrameNumber)
	out = binary.BigEndian.AppendUint32(out, uint32(len(f.FrameData)))
	out = append(out, f.FrameData...)
	if f.IsLastFrame {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	return out, nil
}

// decodeFrame reads one frame starting at data[0] and returns it with the
// number of bytes consumed.
func decodeFrame(data []byte, maxFrameLen uint64) (Frame, int, error) {
	if len(data) < frameOverhead {
		return Frame{}, 0, fmt.Errorf("%w: %d bytes left, need at least %d", common.ErrTruncatedFrame, len(data), frameOverhead)
	}

	var f Frame
	copy(f.ChannelID[:], data[:16])
	f.FrameNumber = binary.BigEndian.Uint16(data[16:18])
	dataLen := binary.BigEndian.Uint32(data[18:22])
	if uint64(dataLen) > maxFrameLen {
		return Frame{}, 0, fmt.Errorf("%w: %d > %d", common.ErrFrameTooLarge, dataLen, maxFrameLen)
	}

	end := 22 + int(dataLen)
	if len(data) < end+1 {
		return Frame{}, 0, fmt.Errorf("%w: declared %d data bytes, %d available", common.ErrTruncatedFrame, dataLen, len(data)-22)
	}
	f.FrameData = append([]byte(nil), data[22:end]...)

	switch data[end] {
	case 0:
	case 1:
		f.IsLastFrame = true
	default:
		return Frame{}, 0, fmt.Errorf("%w: %d", common.ErrInvalidLastFrameFlag, data[end])
	}
	return f, end + 1, nil
}

// BatcherTransaction is a decoded batcher transaction.
type BatcherTransaction struct {
	Version byte
	Frames  []Frame
}

// MarshalBinary encodes the transaction as version ++ frames.
func (tx BatcherTransaction) MarshalBinary() ([]byte, error) {
	out := []byte{tx.Version}
	for _, f := range tx.Frames {
		b, err := f.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// DecodeBatcherTransaction decodes raw calldata posted to the batch inbox.
// Every frame is stamped with l1Origin.
func DecodeBatcherTransaction(data []byte, l1Origin uint64, maxFrameLen uint64) (BatcherTransaction, error) {
	if len(data) == 0 {
		return BatcherTransaction{}, fmt.Errorf("%w: empty transaction", common.ErrTruncatedFrame)
	}
	if data[0] != BatcherTransactionVersion {
		return BatcherTransaction{}, fmt.Errorf("%w: %d", common.ErrUnknownBatcherVersion, data[0])
	}

	tx := BatcherTransaction{Version: data[0]}
	rest := data[1:]
	for len(rest) > 0 {
		f, n, err := decodeFrame(rest, maxFrameLen)
		if err != nil {
			return BatcherTransaction{}, fmt.Errorf("frame %d: %w", len(tx.Frames), err)
		}
		f.L1InclusionBlock = l1Origin
		tx.Frames = append(tx.Frames, f)
		rest = rest[n:]
	}
	return tx, nil
}
