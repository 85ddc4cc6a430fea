package stages

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/klauspost/compress/zlib"

	"github.com/evstack/ev-derive/types"

	dcommon "github.com/evstack/ev-derive/derive/internal/common"
)

// SingularBatchType is the version byte of a singular batch.
const SingularBatchType = 0

// Batch is the list of L2 transactions of one L2 block, with its L1 context.
type Batch struct {
	ParentHash   common.Hash
	EpochNum     uint64
	EpochHash    common.Hash
	Timestamp    uint64
	Transactions []types.RawTransaction

	// L1InclusionBlock is the L1 block the batch's channel was completed in.
	L1InclusionBlock uint64 `rlp:"-"`
}

// MarshalBinary encodes the batch as version ++ rlp(batch).
func (b Batch) MarshalBinary() ([]byte, error) {
	payload, err := rlp.EncodeToBytes(&b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}
	return append([]byte{SingularBatchType}, payload...), nil
}

// UnmarshalBinary decodes version ++ rlp(batch).
func (b *Batch) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return dcommon.ErrEmptyBatchData
	}
	if data[0] != SingularBatchType {
		return fmt.Errorf("%w: %d", dcommon.ErrUnknownBatchVersion, data[0])
	}
	if err := rlp.DecodeBytes(data[1:], b); err != nil {
		return fmt.Errorf("failed to decode batch: %w", err)
	}
	return nil
}

// EncodeChannel compresses batches into channel data.
func EncodeChannel(batches ...Batch) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	for _, b := range batches {
		item, err := b.MarshalBinary()
		if err != nil {
			return nil, err
		}
		if err := rlp.Encode(w, item); err != nil {
			return nil, fmt.Errorf("failed to write batch: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush channel: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeChannel decompresses channel data and decodes its batches, reading at
// most maxRLPBytes of decompressed data. The batches decoded before an
// error are returned along with it.
func DecodeChannel(ch Channel, maxRLPBytes uint64) ([]Batch, error) {
	zr, err := zlib.NewReader(bytes.NewReader(ch.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	defer zr.Close()

	stream := rlp.NewStream(io.LimitReader(zr, int64(maxRLPBytes)), maxRLPBytes)
	var batches []Batch
	for {
		item, err := stream.Bytes()
		if errors.Is(err, io.EOF) {
			return batches, nil
		}
		if err != nil {
			return batches, fmt.Errorf("failed to read batch %d: %w", len(batches), err)
		}

		var b Batch
		if err := b.UnmarshalBinary(item); err != nil {
			return batches, fmt.Errorf("batch %d: %w", len(batches), err)
		}
		b.L1InclusionBlock = ch.L1InclusionBlock
		batches = append(batches, b)
	}
}
