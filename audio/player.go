package audio

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiolink/clock"
)

// deadlineWarmup is how many frames must elapse before the meeting-deadline
// verdict is trusted.
const deadlineWarmup = 20

// DeadlineStats report whether frame production keeps up with the playout
// cadence. A frame misses its deadline when producing and sinking it took
// longer than one frame duration.
type DeadlineStats struct {
	Frames     uint64
	Misses     uint64
	MaxElapsed time.Duration
	Meeting    bool
}

// Player emulates the periodic callback of an audio device: it drives the
// stage at the frame cadence, hands each produced frame to the sink, and
// tracks whether production meets the real-time deadline. Sink errors are
// logged and the frame dropped; playout timing is never interrupted.
type Player struct {
	stage *Stage
	sink  Sink
	tp    clock.TimeProvider

	frames     atomic.Uint64
	misses     atomic.Uint64
	maxElapsed atomic.Int64
}

// NewPlayer creates a player over the stage and sink. A nil TimeProvider
// selects the real clock.
func NewPlayer(stage *Stage, sink Sink, tp clock.TimeProvider) *Player {
	return &Player{
		stage: stage,
		sink:  sink,
		tp:    clock.Provider(tp),
	}
}

// Run produces frames until the context is cancelled and returns the
// context's error.
func (p *Player) Run(ctx context.Context) error {
	budget := p.stage.Format().FrameDuration
	ticker := p.tp.NewTicker(budget)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.playOne(budget)
		}
	}
}

func (p *Player) playOne(budget time.Duration) {
	start := p.tp.Now()
	frame := p.stage.NextFrame()
	err := p.sink.Play(frame)
	p.observe(p.tp.Now().Sub(start), budget)

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "audio",
			"seq":       frame.Sequence,
			"error":     err,
		}).Debug("Sink rejected frame")
	}
}

func (p *Player) observe(elapsed, budget time.Duration) {
	p.frames.Add(1)
	if elapsed > budget {
		p.misses.Add(1)
	}
	for {
		cur := p.maxElapsed.Load()
		if int64(elapsed) <= cur || p.maxElapsed.CompareAndSwap(cur, int64(elapsed)) {
			return
		}
	}
}

// Deadline returns the real-time deadline accounting. Meeting stays true
// until enough frames have been produced to judge, then requires the miss
// rate to be at most one frame in twenty.
func (p *Player) Deadline() DeadlineStats {
	frames := p.frames.Load()
	misses := p.misses.Load()
	meeting := true
	if frames >= deadlineWarmup {
		meeting = misses*20 <= frames
	}
	return DeadlineStats{
		Frames:     frames,
		Misses:     misses,
		MaxElapsed: time.Duration(p.maxElapsed.Load()),
		Meeting:    meeting,
	}
}
