package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/evstack/ev-derive/types"
)

// UpdateKind is the kind of a watcher update.
type UpdateKind int

const (
	// UpdateNewBlock reports a new L1 block.
	UpdateNewBlock UpdateKind = iota
	// UpdateReorg reports that the L1 chain reorganized.
	UpdateReorg
	// UpdateFinalized reports a new finalized L1 block number.
	UpdateFinalized
)

var updateKindNames = map[UpdateKind]string{
	UpdateNewBlock:  "new_block",
	UpdateReorg:     "reorg",
	UpdateFinalized: "finalized",
}

func (k UpdateKind) String() string {
	if name, ok := updateKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("UpdateKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k UpdateKind) MarshalText() ([]byte, error) {
	name, ok := updateKindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown update kind %d", int(k))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *UpdateKind) UnmarshalText(text []byte) error {
	for kind, name := range updateKindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown update kind %q", text)
}

// BlockUpdate is a notification from the L1 watcher.
type BlockUpdate struct {
	Kind UpdateKind `json:"type"`
	// Block is set for UpdateNewBlock.
	Block *types.L1Info `json:"block,omitempty"`
	// Number is set for UpdateFinalized.
	Number uint64 `json:"number,omitempty"`
}

// NewBlock builds an UpdateNewBlock update.
func NewBlock(info types.L1Info) BlockUpdate {
	return BlockUpdate{Kind: UpdateNewBlock, Block: &info}
}

// Reorg builds an UpdateReorg update.
func Reorg() BlockUpdate {
	return BlockUpdate{Kind: UpdateReorg}
}

// Finalized builds an UpdateFinalized update.
func Finalized(number uint64) BlockUpdate {
	return BlockUpdate{Kind: UpdateFinalized, Number: number}
}

// UpdateWriter writes updates as a stream of JSON documents, one per line.
type UpdateWriter struct {
	enc *json.Encoder
}

// NewUpdateWriter returns a writer encoding into w.
func NewUpdateWriter(w io.Writer) *UpdateWriter {
	return &UpdateWriter{enc: json.NewEncoder(w)}
}

// Write encodes one update.
func (w *UpdateWriter) Write(u BlockUpdate) error {
	return w.enc.Encode(u)
}

// ReadUpdates decodes the updates written by an UpdateWriter and sends them
// to out in order. It returns nil at the end of r and does not close out.
func ReadUpdates(ctx context.Context, r io.Reader, out chan<- BlockUpdate) error {
	dec := json.NewDecoder(r)
	for i := 0; ; i++ {
		var u BlockUpdate
		if err := dec.Decode(&u); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode update %d: %w", i, err)
		}
		select {
		case out <- u:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
