package jitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/audiolink/clock"
	"github.com/opd-ai/audiolink/wire"
)

const testFrameDur = 2500 * time.Microsecond

func newTestBuffer(t *testing.T, targetDelay time.Duration) (*Buffer, *clock.PlayoutClock) {
	t.Helper()
	clk, err := clock.NewPlayoutClock(testFrameDur)
	require.NoError(t, err)

	b, err := NewBuffer(Config{TargetDelay: targetDelay, MaxCapacity: 20, Clock: clk})
	require.NoError(t, err)
	return b, clk
}

func pkt(seq uint32) *wire.Packet {
	return &wire.Packet{Sequence: seq, Timestamp: uint64(seq) * 2500, Payload: []byte{byte(seq)}}
}

// pullFrame mimics the audio path: every pull consumes one frame slot, so
// the clock advances whatever the result was.
func pullFrame(b *Buffer, clk *clock.PlayoutClock) (*Entry, PullResult) {
	entry, res := b.Pull()
	clk.Advance()
	return entry, res
}

func TestBufferRequiresClock(t *testing.T) {
	_, err := NewBuffer(Config{TargetDelay: 5 * time.Millisecond})
	assert.ErrorIs(t, err, ErrNoClock)
}

func TestBufferInitialState(t *testing.T) {
	b, _ := newTestBuffer(t, 5*time.Millisecond)

	assert.Equal(t, StateEmpty, b.State())

	entry, res := b.Pull()
	assert.Nil(t, entry)
	assert.Equal(t, PullSilence, res)
}

func TestBufferPrimesAtTargetDelay(t *testing.T) {
	b, clk := newTestBuffer(t, 5*time.Millisecond)

	b.Add(pkt(0), false)
	assert.Equal(t, StateFilling, b.State())
	_, res := b.Pull()
	assert.Equal(t, PullSilence, res)

	// 2 frames of 2.5ms reach the 5ms target.
	b.Add(pkt(1), false)
	assert.Equal(t, StateReady, b.State())

	entry, res := b.Pull()
	require.Equal(t, PullDelivered, res)
	assert.Equal(t, uint32(0), entry.Packet.Sequence)
	assert.True(t, clk.Started())
}

func TestBufferDeliversInSequenceOrder(t *testing.T) {
	b, clk := newTestBuffer(t, 5*time.Millisecond)

	for _, seq := range []uint32{2, 0, 3, 1} {
		b.Add(pkt(seq), false)
	}

	var got []uint32
	for i := 0; i < 4; i++ {
		entry, res := pullFrame(b, clk)
		require.Equal(t, PullDelivered, res)
		got = append(got, entry.Packet.Sequence)
	}
	assert.Equal(t, []uint32{0, 1, 2, 3}, got)
}

func TestBufferDropsLatePackets(t *testing.T) {
	b, clk := newTestBuffer(t, 5*time.Millisecond)

	b.Add(pkt(0), false)
	b.Add(pkt(1), false)
	entry, res := pullFrame(b, clk)
	require.Equal(t, PullDelivered, res)
	require.Equal(t, uint32(0), entry.Packet.Sequence)

	// Sequence 0 already played.
	b.Add(pkt(0), false)
	assert.Equal(t, uint64(1), b.Stats().LateDropped)
}

func TestBufferDropsDuplicates(t *testing.T) {
	b, _ := newTestBuffer(t, 5*time.Millisecond)

	b.Add(pkt(4), false)
	b.Add(pkt(4), false)

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.Duplicates)
	assert.Equal(t, 1, stats.Depth)
}

func TestBufferWaitsForGapThenSkips(t *testing.T) {
	b, clk := newTestBuffer(t, 5*time.Millisecond)

	b.Add(pkt(0), false)
	b.Add(pkt(1), false)
	b.Add(pkt(3), false)

	_, res := pullFrame(b, clk)
	require.Equal(t, PullDelivered, res)
	_, res = pullFrame(b, clk)
	require.Equal(t, PullDelivered, res)

	// Sequence 2 is missing: conceal up to the target delay past its slot.
	_, res = pullFrame(b, clk)
	assert.Equal(t, PullWait, res)
	_, res = pullFrame(b, clk)
	assert.Equal(t, PullWait, res)

	entry, res := pullFrame(b, clk)
	require.Equal(t, PullDelivered, res)
	assert.Equal(t, uint32(3), entry.Packet.Sequence)
	assert.Equal(t, uint64(1), b.Stats().GapSkips)
}

func TestBufferLateArrivalInsideWaitWindowPlays(t *testing.T) {
	b, clk := newTestBuffer(t, 5*time.Millisecond)

	b.Add(pkt(0), false)
	b.Add(pkt(1), false)
	b.Add(pkt(3), false)

	pullFrame(b, clk)
	pullFrame(b, clk)
	_, res := pullFrame(b, clk)
	require.Equal(t, PullWait, res)

	// The missing packet arrives before its wait deadline.
	b.Add(pkt(2), false)

	entry, res := pullFrame(b, clk)
	require.Equal(t, PullDelivered, res)
	assert.Equal(t, uint32(2), entry.Packet.Sequence)
	assert.Zero(t, b.Stats().GapSkips)
}

func TestBufferUnderrunAndRecovery(t *testing.T) {
	b, clk := newTestBuffer(t, 5*time.Millisecond)

	b.Add(pkt(0), false)
	b.Add(pkt(1), false)
	pullFrame(b, clk)
	pullFrame(b, clk)

	_, res := pullFrame(b, clk)
	assert.Equal(t, PullUnderrun, res)
	assert.Equal(t, StateDraining, b.State())

	_, res = pullFrame(b, clk)
	assert.Equal(t, PullSilence, res)

	// New packets refill and re-prime past the slots that went silent.
	b.Add(pkt(4), false)
	assert.Equal(t, StateFilling, b.State())
	b.Add(pkt(5), false)
	assert.Equal(t, StateReady, b.State())

	entry, res := pullFrame(b, clk)
	require.Equal(t, PullDelivered, res)
	assert.Equal(t, uint32(4), entry.Packet.Sequence)

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.Underruns)
	assert.Equal(t, uint64(2), stats.GapSkips)
}

func TestBufferOverflowDropsOldest(t *testing.T) {
	b, _ := newTestBuffer(t, 5*time.Millisecond)
	require.Equal(t, 4, b.Capacity())

	for seq := uint32(0); seq < 5; seq++ {
		b.Add(pkt(seq), false)
	}

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.OverflowDropped)
	assert.Equal(t, 4, stats.Depth)

	// Playback starts at the oldest surviving packet.
	entry, res := b.Pull()
	require.Equal(t, PullDelivered, res)
	assert.Equal(t, uint32(1), entry.Packet.Sequence)
}

func TestBufferSetTargetDelay(t *testing.T) {
	b, _ := newTestBuffer(t, 5*time.Millisecond)

	b.SetTargetDelay(10*time.Millisecond, 8)
	assert.Equal(t, 10*time.Millisecond, b.TargetDelay())
	assert.Equal(t, 8, b.Capacity())
	assert.Equal(t, uint64(1), b.Stats().CapacityChanges)

	// Unchanged tuning is not a capacity change.
	b.SetTargetDelay(10*time.Millisecond, 8)
	assert.Equal(t, uint64(1), b.Stats().CapacityChanges)

	// Extreme demands stay inside the hard bound.
	b.SetTargetDelay(100*time.Millisecond, 50)
	assert.Equal(t, 20, b.Capacity())
}

func TestBufferReconstructedFlagSurvives(t *testing.T) {
	b, _ := newTestBuffer(t, 5*time.Millisecond)

	b.Add(pkt(0), true)
	b.Add(pkt(1), false)

	entry, res := b.Pull()
	require.Equal(t, PullDelivered, res)
	assert.True(t, entry.Reconstructed)
}

func TestBufferReset(t *testing.T) {
	b, clk := newTestBuffer(t, 5*time.Millisecond)

	b.Add(pkt(0), false)
	b.Add(pkt(1), false)
	pullFrame(b, clk)

	b.Reset()
	assert.Equal(t, StateEmpty, b.State())
	assert.Zero(t, b.Stats().Depth)

	_, res := b.Pull()
	assert.Equal(t, PullSilence, res)
}
