// Package jitter reorders incoming audio packets and releases them on the
// playout cadence, trading a bounded hold time for tolerance to network
// timing variation.
//
// The buffer moves through four states: it starts empty, fills until the
// configured target delay of audio is buffered, then delivers packets in
// sequence order until an underrun drains it, after which it refills before
// resuming. Missing packets are waited for up to the target delay past
// their slot and then skipped.
package jitter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiolink/clock"
	"github.com/opd-ai/audiolink/wire"
)

// BufferState identifies the buffer's position in its lifecycle.
type BufferState int

const (
	// StateEmpty means no packets are buffered and playback has not begun.
	StateEmpty BufferState = iota
	// StateFilling means packets are accumulating toward the target delay.
	StateFilling
	// StateReady means packets are being delivered on the playout cadence.
	StateReady
	// StateDraining means an underrun exhausted the buffer and it awaits
	// new packets.
	StateDraining
)

// String returns a human-readable state name.
func (s BufferState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateFilling:
		return "filling"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

const (
	stateEmpty    = "empty"
	stateFilling  = "filling"
	stateReady    = "ready"
	stateDraining = "draining"

	eventFill     = "fill"
	eventPrime    = "prime"
	eventUnderrun = "underrun"
	eventRefill   = "refill"
	eventReset    = "reset"
)

// PullResult tells the consumer what a Pull produced.
type PullResult int

const (
	// PullDelivered means a packet was returned.
	PullDelivered PullResult = iota
	// PullSilence means no stream is flowing; the consumer plays silence.
	PullSilence
	// PullWait means the next packet is missing but still inside its wait
	// deadline; the consumer conceals one frame.
	PullWait
	// PullUnderrun means the buffer just ran dry mid-stream.
	PullUnderrun
	// PullContended means the producer held the buffer; the consumer
	// conceals rather than block.
	PullContended
)

// String returns a human-readable result name.
func (r PullResult) String() string {
	switch r {
	case PullDelivered:
		return "delivered"
	case PullSilence:
		return "silence"
	case PullWait:
		return "wait"
	case PullUnderrun:
		return "underrun"
	case PullContended:
		return "contended"
	default:
		return "unknown"
	}
}

// Entry is one buffered packet and how it got here.
type Entry struct {
	Packet        *wire.Packet
	Reconstructed bool
}

// Stats is a point-in-time view of buffer activity.
type Stats struct {
	State           BufferState
	Depth           int
	Capacity        int
	TargetDelay     time.Duration
	Added           uint64
	Delivered       uint64
	LateDropped     uint64
	Duplicates      uint64
	OverflowDropped uint64
	GapSkips        uint64
	Underruns       uint64
	CapacityChanges uint64
}

// ErrNoClock is returned when a buffer is created without a playout clock.
var ErrNoClock = errors.New("jitter buffer requires a playout clock")

// Config controls buffer sizing.
type Config struct {
	// TargetDelay is the initial hold time before and during delivery.
	TargetDelay time.Duration

	// MaxCapacity bounds the buffer depth in packets.
	MaxCapacity int

	// Clock supplies the playout position for wait deadlines and is
	// anchored at the first delivered packet.
	Clock *clock.PlayoutClock
}

// DefaultConfig returns buffer parameters for the default stream format.
// The clock must still be supplied.
func DefaultConfig() Config {
	return Config{
		TargetDelay: 5 * time.Millisecond,
		MaxCapacity: 20,
	}
}

// Buffer is an adaptive reordering buffer between the processing context and
// the audio consumer.
//
// Add runs on the processing goroutine. Pull runs on the audio path and
// never blocks: it acquires the buffer opportunistically and reports
// contention instead of waiting, so the producer can never stall playback.
type Buffer struct {
	clk      *clock.PlayoutClock
	frameDur time.Duration

	mu           sync.Mutex
	machine      *fsm.FSM
	entries      map[uint32]*Entry
	nextSeq      uint32
	delivered    bool
	targetDelay  time.Duration
	targetFrames int
	capacity     int
	maxCapacity  int

	added           uint64
	deliveredCount  uint64
	lateDropped     uint64
	duplicates      uint64
	overflowDropped uint64
	gapSkips        uint64
	underruns       uint64
	capacityChanges uint64
}

// NewBuffer creates a buffer driven by the given playout clock.
func NewBuffer(cfg Config) (*Buffer, error) {
	if cfg.Clock == nil {
		return nil, ErrNoClock
	}
	if cfg.TargetDelay <= 0 {
		cfg.TargetDelay = DefaultConfig().TargetDelay
	}
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = DefaultConfig().MaxCapacity
	}

	b := &Buffer{
		clk:         cfg.Clock,
		frameDur:    cfg.Clock.FrameDuration(),
		entries:     make(map[uint32]*Entry),
		maxCapacity: cfg.MaxCapacity,
	}
	b.machine = fsm.NewFSM(
		stateEmpty,
		fsm.Events{
			{Name: eventFill, Src: []string{stateEmpty}, Dst: stateFilling},
			{Name: eventPrime, Src: []string{stateFilling}, Dst: stateReady},
			{Name: eventUnderrun, Src: []string{stateReady}, Dst: stateDraining},
			{Name: eventRefill, Src: []string{stateDraining}, Dst: stateFilling},
			{Name: eventReset, Src: []string{stateEmpty, stateFilling, stateReady, stateDraining}, Dst: stateEmpty},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				logrus.WithFields(logrus.Fields{
					"component": "jitter",
					"from":      e.Src,
					"to":        e.Dst,
				}).Debug("Buffer state changed")
			},
		},
	)
	b.applyTargetLocked(cfg.TargetDelay, 0)
	return b, nil
}

// State returns the buffer's current lifecycle state.
func (b *Buffer) State() BufferState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Buffer) stateLocked() BufferState {
	switch b.machine.Current() {
	case stateEmpty:
		return StateEmpty
	case stateFilling:
		return StateFilling
	case stateReady:
		return StateReady
	case stateDraining:
		return StateDraining
	default:
		return StateEmpty
	}
}

// TargetDelay returns the current hold time.
func (b *Buffer) TargetDelay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.targetDelay
}

// Capacity returns the current depth bound in packets.
func (b *Buffer) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// SetTargetDelay applies a new hold time and recommended depth, typically
// from the quality monitor. The change affects priming and wait deadlines
// from now on; already buffered audio is not rebased.
func (b *Buffer) SetTargetDelay(delay time.Duration, recommendedPackets int) {
	if delay <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	before := b.capacity
	b.applyTargetLocked(delay, recommendedPackets)
	if b.capacity != before {
		b.capacityChanges++
		logrus.WithFields(logrus.Fields{
			"component":    "jitter",
			"target_delay": delay,
			"capacity":     b.capacity,
		}).Debug("Buffer tuning applied")
	}
}

func (b *Buffer) applyTargetLocked(delay time.Duration, recommendedPackets int) {
	b.targetDelay = delay
	b.targetFrames = int((delay + b.frameDur - 1) / b.frameDur)
	if b.targetFrames < 1 {
		b.targetFrames = 1
	}

	capacity := 2 * b.targetFrames
	if recommendedPackets > capacity {
		capacity = recommendedPackets
	}
	if capacity < 1 {
		capacity = 1
	}
	if capacity > b.maxCapacity {
		capacity = b.maxCapacity
	}
	b.capacity = capacity
}

// Add inserts a packet from the processing context. Late packets and
// duplicates are dropped and counted; a full buffer drops its oldest entry
// to admit the new one.
func (b *Buffer) Add(pkt *wire.Packet, reconstructed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.delivered && !wire.SeqNewer(pkt.Sequence, b.nextSeq) && pkt.Sequence != b.nextSeq {
		b.lateDropped++
		return
	}
	if _, ok := b.entries[pkt.Sequence]; ok {
		b.duplicates++
		return
	}

	if len(b.entries) >= b.capacity {
		if oldest, ok := b.oldestLocked(); ok {
			delete(b.entries, oldest)
			b.overflowDropped++
		}
	}

	b.entries[pkt.Sequence] = &Entry{Packet: pkt, Reconstructed: reconstructed}
	b.added++

	switch b.stateLocked() {
	case StateEmpty:
		b.fireLocked(eventFill)
	case StateDraining:
		b.fireLocked(eventRefill)
	}
	if b.stateLocked() == StateFilling && b.primedLocked() {
		b.primeLocked()
	}
}

// Pull hands the consumer its next frame's worth of input. It never blocks;
// when the producer holds the buffer the result is PullContended and the
// consumer conceals the frame.
func (b *Buffer) Pull() (*Entry, PullResult) {
	if !b.mu.TryLock() {
		return nil, PullContended
	}
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case StateEmpty, StateFilling, StateDraining:
		return nil, PullSilence
	}

	if len(b.entries) == 0 {
		b.underruns++
		b.fireLocked(eventUnderrun)
		return nil, PullUnderrun
	}

	// Skip slots whose wait deadline has passed until a packet or an
	// unexpired gap is reached.
	for {
		if entry, ok := b.entries[b.nextSeq]; ok {
			delete(b.entries, b.nextSeq)
			b.deliverLocked(entry)
			return entry, PullDelivered
		}
		if !b.delivered {
			// Nothing has played yet, so no deadline applies; start at
			// the oldest packet held.
			next, _ := b.oldestLocked()
			if d := wire.SeqDiff(next, b.nextSeq); d > 0 {
				b.gapSkips += uint64(d)
			}
			b.nextSeq = next
			continue
		}
		if !b.clk.Expired(b.nextSeq, -b.targetDelay) {
			return nil, PullWait
		}
		b.gapSkips++
		b.nextSeq = wire.NextSeq(b.nextSeq)
	}
}

// Reset empties the buffer and returns it to the initial state.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = make(map[uint32]*Entry)
	b.delivered = false
	b.nextSeq = 0
	b.fireLocked(eventReset)
}

// Stats returns a snapshot of buffer counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		State:           b.stateLocked(),
		Depth:           len(b.entries),
		Capacity:        b.capacity,
		TargetDelay:     b.targetDelay,
		Added:           b.added,
		Delivered:       b.deliveredCount,
		LateDropped:     b.lateDropped,
		Duplicates:      b.duplicates,
		OverflowDropped: b.overflowDropped,
		GapSkips:        b.gapSkips,
		Underruns:       b.underruns,
		CapacityChanges: b.capacityChanges,
	}
}

func (b *Buffer) deliverLocked(entry *Entry) {
	if !b.delivered {
		b.delivered = true
		b.clk.Anchor(entry.Packet.Sequence)
	}
	b.nextSeq = wire.NextSeq(entry.Packet.Sequence)
	b.deliveredCount++
}

func (b *Buffer) primedLocked() bool {
	return len(b.entries) >= b.targetFrames
}

// primeLocked moves to delivery. Playback resumes at the oldest buffered
// packet; after an underrun, slots that went silent while draining are
// charged as skips and stale entries are discarded.
func (b *Buffer) primeLocked() {
	oldest, ok := b.oldestLocked()
	if !ok {
		return
	}

	if b.delivered {
		for seq := range b.entries {
			if b.clk.Expired(seq, -b.frameDur) {
				delete(b.entries, seq)
				b.lateDropped++
			}
		}
		next, ok := b.oldestLocked()
		if !ok {
			// Everything buffered was already stale.
			return
		}
		if d := wire.SeqDiff(next, b.nextSeq); d > 0 {
			b.gapSkips += uint64(d)
		}
		b.nextSeq = next
	} else {
		b.nextSeq = oldest
	}

	b.fireLocked(eventPrime)
}

func (b *Buffer) oldestLocked() (uint32, bool) {
	var oldest uint32
	found := false
	for seq := range b.entries {
		if !found || wire.SeqNewer(oldest, seq) {
			oldest = seq
			found = true
		}
	}
	return oldest, found
}

func (b *Buffer) fireLocked(event string) {
	if err := b.machine.Event(context.Background(), event); err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "jitter",
			"event":     event,
			"state":     b.machine.Current(),
			"error":     err,
		}).Debug("Buffer transition rejected")
	}
}
