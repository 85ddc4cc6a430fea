package stages

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/evstack/ev-derive/core/derive"
	"github.com/evstack/ev-derive/derive/internal/common"
)

// DefaultClosedChannelsCacheSize is the number of assembled channel ids
// remembered to ignore late frames.
const DefaultClosedChannelsCacheSize = 64

// Channel is the reassembled data of a channel.
type Channel struct {
	ID   ChannelID
	Data []byte
	// L1InclusionBlock is the highest L1 block among the channel's frames.
	L1InclusionBlock uint64
}

type pendingChannel struct {
	id        ChannelID
	frames    map[uint16]Frame
	lastFrame uint16
	hasLast   bool
	size      uint64

	// openedAt is the L1 block of the first frame received.
	openedAt  uint64
	highestL1 uint64
}

func (c *pendingChannel) complete() bool {
	if !c.hasLast {
		return false
	}
	for n := uint16(0); n <= c.lastFrame; n++ {
		if _, ok := c.frames[n]; !ok {
			return false
		}
		if n == c.lastFrame {
			break
		}
	}
	return true
}

func (c *pendingChannel) assemble() Channel {
	data := make([]byte, 0, c.size)
	for n := uint16(0); ; n++ {
		data = append(data, c.frames[n].FrameData...)
		if n == c.lastFrame {
			break
		}
	}
	return Channel{ID: c.id, Data: data, L1InclusionBlock: c.highestL1}
}

// ChannelsConfig bounds the channel reassembly.
type ChannelsConfig struct {
	ChannelTimeout uint64
	MaxChannelSize uint64
	// ClosedCacheSize defaults to DefaultClosedChannelsCacheSize when zero.
	ClosedCacheSize int
}

// Channels is the channel reassembly stage. It gathers frames per channel id
// and emits the channel data once every frame up to the last one arrived.
//
// NotReady means no channel is complete yet; later frames may complete one.
type Channels struct {
	prev derive.PurgeableIterator[BatcherTransaction]
	cfg  ChannelsConfig

	pending   []*pendingChannel // oldest first
	byID      map[ChannelID]*pendingChannel
	ready     []Channel
	totalSize uint64
	closed    *lru.Cache[ChannelID, struct{}]

	logger  zerolog.Logger
	metrics *common.Metrics
}

var _ derive.PurgeableIterator[Channel] = (*Channels)(nil)

// NewChannels creates the channel reassembly stage.
func NewChannels(
	prev derive.PurgeableIterator[BatcherTransaction],
	cfg ChannelsConfig,
	logger zerolog.Logger,
	metrics *common.Metrics,
) (*Channels, error) {
	var multiErr error
	if cfg.ChannelTimeout == 0 {
		multiErr = errors.Join(multiErr, errors.New("channel timeout must be positive"))
	}
	if cfg.MaxChannelSize == 0 {
		multiErr = errors.Join(multiErr, errors.New("max channel size must be positive"))
	}
	if multiErr != nil {
		return nil, multiErr
	}
	if cfg.ClosedCacheSize == 0 {
		cfg.ClosedCacheSize = DefaultClosedChannelsCacheSize
	}

	closed, err := lru.New[ChannelID, struct{}](cfg.ClosedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create closed channels cache: %w", err)
	}

	return &Channels{
		prev:    prev,
		cfg:     cfg,
		byID:    make(map[ChannelID]*pendingChannel),
		closed:  closed,
		logger:  logger.With().Str("component", "channels").Logger(),
		metrics: metrics,
	}, nil
}

// Next returns the oldest fully assembled channel.
func (s *Channels) Next() derive.Result[Channel] {
	for _, tx := range derive.Drain(s.prev, 0) {
		for _, f := range tx.Frames {
			s.pushFrame(f)
		}
	}
	s.metrics.PendingChannels.Set(float64(len(s.pending)))

	if len(s.ready) == 0 {
		return derive.NotReady[Channel]()
	}
	ch := s.ready[0]
	s.ready[0] = Channel{}
	s.ready = s.ready[1:]
	return derive.Ready(ch)
}

func (s *Channels) pushFrame(f Frame) {
	s.pruneTimedOut(f.L1InclusionBlock)

	if s.closed.Contains(f.ChannelID) {
		s.logger.Debug().Stringer("channel", f.ChannelID).Uint16("frame", f.FrameNumber).Msg("ignoring frame of closed channel")
		return
	}

	ch, ok := s.byID[f.ChannelID]
	if !ok {
		ch = &pendingChannel{
			id:       f.ChannelID,
			frames:   make(map[uint16]Frame),
			openedAt: f.L1InclusionBlock,
		}
		s.byID[f.ChannelID] = ch
		s.pending = append(s.pending, ch)
	}

	if !s.addFrame(ch, f) {
		return
	}

	if ch.complete() {
		s.removePending(ch)
		s.closed.Add(ch.id, struct{}{})
		s.ready = append(s.ready, ch.assemble())
		s.metrics.ChannelsAssembled.Add(1)
		return
	}

	for s.totalSize > s.cfg.MaxChannelSize && len(s.pending) > 0 {
		oldest := s.pending[0]
		s.logger.Debug().Stringer("channel", oldest.id).Uint64("buffered", s.totalSize).Msg("dropping oldest channel over size limit")
		s.removePending(oldest)
		s.metrics.ChannelsDropped[common.ChannelDropReasonSize].Add(1)
	}
}

// addFrame stores f in ch and reports whether it was kept.
func (s *Channels) addFrame(ch *pendingChannel, f Frame) bool {
	if _, dup := ch.frames[f.FrameNumber]; dup {
		return false
	}
	if ch.hasLast {
		if f.IsLastFrame || f.FrameNumber > ch.lastFrame {
			return false
		}
	}

	if f.IsLastFrame {
		ch.hasLast = true
		ch.lastFrame = f.FrameNumber
		// frames past the last one can never be part of the channel
		for n, stale := range ch.frames {
			if n > f.FrameNumber {
				ch.size -= uint64(len(stale.FrameData))
				s.totalSize -= uint64(len(stale.FrameData))
				delete(ch.frames, n)
			}
		}
	}

	ch.frames[f.FrameNumber] = f
	ch.size += uint64(len(f.FrameData))
	s.totalSize += uint64(len(f.FrameData))
	ch.highestL1 = max(ch.highestL1, f.L1InclusionBlock)
	return true
}

func (s *Channels) pruneTimedOut(l1Block uint64) {
	for i := 0; i < len(s.pending); {
		ch := s.pending[i]
		if l1Block > ch.openedAt+s.cfg.ChannelTimeout {
			s.logger.Debug().Stringer("channel", ch.id).Uint64("opened_at", ch.openedAt).Uint64("l1_block", l1Block).Msg("dropping timed out channel")
			s.removePending(ch)
			s.metrics.ChannelsDropped[common.ChannelDropReasonTimeout].Add(1)
			continue
		}
		i++
	}
}

func (s *Channels) removePending(ch *pendingChannel) {
	for i, p := range s.pending {
		if p == ch {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	delete(s.byID, ch.id)
	s.totalSize -= ch.size
}

// Purge purges the upstream and forgets every pending and assembled channel.
func (s *Channels) Purge() {
	s.prev.Purge()
	s.pending = nil
	s.byID = make(map[ChannelID]*pendingChannel)
	s.ready = nil
	s.totalSize = 0
	s.closed.Purge()
	s.metrics.PendingChannels.Set(0)
}
