// Package fixture generates watcher update streams for replays and tests.
//
// The generated batches chain on the block hashes assigned by
// driver.DryRunEngine, so replaying a fixture with the dry-run engine derives
// every generated block.
package fixture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/evstack/ev-derive/derive"
	"github.com/evstack/ev-derive/pkg/config"
	"github.com/evstack/ev-derive/pkg/driver"
	"github.com/evstack/ev-derive/types"
)

// L1BlockTime is the L1 block time of generated chains, in seconds.
const L1BlockTime = 12

// Options configures Generate.
type Options struct {
	// Blocks is the number of L2 blocks after the genesis.
	Blocks uint64
	// TxsPerBlock is the number of user transactions in every L2 block.
	TxsPerBlock int
	// FrameSize splits channel data into frames of at most this many bytes.
	// Zero keeps one frame per channel.
	FrameSize int
	// Finalize appends a finalization of the last L1 block.
	Finalize bool
}

// Fixture is a generated update stream and the L2 chain it derives.
type Fixture struct {
	Updates []driver.BlockUpdate
	// Head is the last L2 block the updates derive.
	Head types.BlockInfo
}

// Generate builds a chain where the batches of epoch n are submitted in
// L1 block n+1.
func Generate(cfg config.ChainConfig, opts Options) (Fixture, error) {
	if cfg.BlockTime == 0 {
		return Fixture{}, errors.New("block time must be positive")
	}
	if opts.FrameSize < 0 || uint64(opts.FrameSize) > cfg.MaxFrameLen {
		return Fixture{}, fmt.Errorf("frame size %d outside [0, %d]", opts.FrameSize, cfg.MaxFrameLen)
	}

	g := &generator{cfg: cfg, opts: opts, head: cfg.L2Genesis}
	g.l1 = []types.L1Info{g.l1Block(cfg.L1StartEpoch.Number, cfg.L1StartEpoch.Hash)}

	batchesByEpoch := map[uint64][]derive.Batch{}
	for n := uint64(1); n <= opts.Blocks; n++ {
		b := g.nextBatch(n)
		batchesByEpoch[b.EpochNum] = append(batchesByEpoch[b.EpochNum], b)
	}

	var updates []driver.BlockUpdate
	lastEpoch := g.l1[len(g.l1)-1].BlockInfo.Number
	for epoch := cfg.L1StartEpoch.Number; epoch <= lastEpoch+1; epoch++ {
		info := g.l1At(epoch)
		if batches := batchesByEpoch[epoch-1]; epoch > cfg.L1StartEpoch.Number && len(batches) > 0 {
			txs, err := g.batcherTxs(epoch, batches)
			if err != nil {
				return Fixture{}, err
			}
			info.BatcherTransactions = txs
		}
		updates = append(updates, driver.NewBlock(info))
	}
	if opts.Finalize {
		updates = append(updates, driver.Finalized(lastEpoch+1))
	}

	return Fixture{Updates: updates, Head: g.head}, nil
}

type generator struct {
	cfg  config.ChainConfig
	opts Options
	l1   []types.L1Info
	head types.BlockInfo
}

func (g *generator) l1Block(number uint64, hash common.Hash) types.L1Info {
	return types.L1Info{
		BlockInfo: types.L1BlockInfo{
			Number:    number,
			Hash:      hash,
			Timestamp: g.cfg.L1StartEpoch.Timestamp + (number-g.cfg.L1StartEpoch.Number)*L1BlockTime,
			BaseFee:   big.NewInt(1_000_000_000),
			MixHash:   crypto.Keccak256Hash(hash.Bytes()),
		},
		SystemConfig: g.cfg.SystemConfig,
	}
}

// l1At returns L1 block number, extending the L1 chain as needed.
func (g *generator) l1At(number uint64) types.L1Info {
	for {
		last := g.l1[len(g.l1)-1]
		if last.BlockInfo.Number >= number {
			return g.l1[number-g.cfg.L1StartEpoch.Number]
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], last.BlockInfo.Number+1)
		g.l1 = append(g.l1, g.l1Block(last.BlockInfo.Number+1, crypto.Keccak256Hash(last.BlockInfo.Hash.Bytes(), buf[:])))
	}
}

// nextBatch builds the batch of L2 block n on top of the current head, in the
// latest L1 epoch not newer than its timestamp.
func (g *generator) nextBatch(n uint64) derive.Batch {
	ts := g.head.Timestamp + g.cfg.BlockTime
	epoch := g.l1At(g.cfg.L1StartEpoch.Number + (ts-g.cfg.L1StartEpoch.Timestamp)/L1BlockTime).BlockInfo

	txs := make([]types.RawTransaction, g.opts.TxsPerBlock)
	for i := range txs {
		tx := make(types.RawTransaction, 17)
		tx[0] = 0x02
		binary.BigEndian.PutUint64(tx[1:9], n)
		binary.BigEndian.PutUint64(tx[9:], uint64(i))
		txs[i] = tx
	}

	b := derive.Batch{
		ParentHash:   g.head.Hash,
		EpochNum:     epoch.Number,
		EpochHash:    epoch.Hash,
		Timestamp:    ts,
		Transactions: txs,
	}
	g.head = types.BlockInfo{
		Hash:       driver.DryRunBlockHash(g.head.Hash, g.head.Number+1, ts),
		Number:     g.head.Number + 1,
		ParentHash: g.head.Hash,
		Timestamp:  ts,
	}
	return b
}

// batcherTxs packs batches into one channel and returns one batcher
// transaction per frame.
func (g *generator) batcherTxs(l1Number uint64, batches []derive.Batch) ([]types.RawTransaction, error) {
	data, err := derive.EncodeChannel(batches...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode channel: %w", err)
	}

	var id derive.ChannelID
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], l1Number)
	copy(id[:], crypto.Keccak256(buf[:]))

	size := g.opts.FrameSize
	if size == 0 {
		size = len(data)
	}
	var txs []types.RawTransaction
	for number := 0; len(data) > 0 || number == 0; number++ {
		chunk := data[:min(size, len(data))]
		data = data[len(chunk):]
		raw, err := derive.BatcherTransaction{Frames: []derive.Frame{{
			ChannelID:   id,
			FrameNumber: uint16(number),
			FrameData:   chunk,
			IsLastFrame: len(data) == 0,
		}}}.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("failed to encode frame %d: %w", number, err)
		}
		txs = append(txs, raw)
	}
	return txs, nil
}
