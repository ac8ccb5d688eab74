package clock

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/opd-ai/audiolink/wire"
)

// ErrInvalidFrameDuration is returned for non-positive frame durations.
var ErrInvalidFrameDuration = errors.New("frame duration must be positive")

// PlayoutClock tracks the receiver's position in the audio stream.
//
// Position advances one frame per delivered frame, so deadlines derived from
// it follow the audio device's actual consumption rather than wall time. The
// clock is anchored at the first emitted sequence number; until then it
// reports no expirations.
//
// All methods are safe for concurrent use and never block, so the audio
// callback may call Advance while the processing context evaluates
// deadlines.
type PlayoutClock struct {
	frameDuration time.Duration
	started       atomic.Bool
	baseSeq       atomic.Uint32
	ticks         atomic.Uint64
	anchorTicks   atomic.Uint64
}

// NewPlayoutClock creates a clock for the given frame duration.
func NewPlayoutClock(frameDuration time.Duration) (*PlayoutClock, error) {
	if frameDuration <= 0 {
		return nil, ErrInvalidFrameDuration
	}
	return &PlayoutClock{frameDuration: frameDuration}, nil
}

// FrameDuration returns the playout cadence.
func (c *PlayoutClock) FrameDuration() time.Duration {
	return c.frameDuration
}

// Anchor fixes the sequence number playing at the current position. Frames
// delivered before the anchor (pre-roll silence) do not count against it.
// The first call wins; later calls are ignored until Reset.
func (c *PlayoutClock) Anchor(seq uint32) {
	if c.started.Load() {
		return
	}
	c.baseSeq.Store(seq)
	c.anchorTicks.Store(c.ticks.Load())
	c.started.Store(true)
}

// Started reports whether the clock has been anchored.
func (c *PlayoutClock) Started() bool {
	return c.started.Load()
}

// Advance moves the clock forward by one delivered frame. Concealment slots
// consume playout time the same as decoded frames.
func (c *PlayoutClock) Advance() {
	c.ticks.Add(1)
}

// Position returns the audio time delivered so far, pre-roll included.
func (c *PlayoutClock) Position() time.Duration {
	return time.Duration(c.ticks.Load()) * c.frameDuration
}

// PositionTicks returns the number of frames delivered so far.
func (c *PlayoutClock) PositionTicks() uint64 {
	return c.ticks.Load()
}

// TimeUntil returns how far ahead of the current position the given media
// sequence is expected to play. Negative results mean the slot is overdue.
// The result is meaningless before the clock is anchored.
func (c *PlayoutClock) TimeUntil(seq uint32) time.Duration {
	elapsed := int64(c.ticks.Load() - c.anchorTicks.Load())
	slots := int64(wire.SeqDiff(seq, c.baseSeq.Load())) - elapsed
	return time.Duration(slots) * c.frameDuration
}

// Expired reports whether the deadline "play time of seq minus margin" has
// passed. A negative margin extends the deadline beyond the play time, which
// is how jitter-buffer wait deadlines are expressed. Before the clock is
// anchored nothing is expired.
func (c *PlayoutClock) Expired(seq uint32, margin time.Duration) bool {
	if !c.started.Load() {
		return false
	}
	return c.TimeUntil(seq) <= margin
}

// Reset returns the clock to the unanchored state.
func (c *PlayoutClock) Reset() {
	c.started.Store(false)
	c.ticks.Store(0)
	c.anchorTicks.Store(0)
	c.baseSeq.Store(0)
}
