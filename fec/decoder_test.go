package fec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/audiolink/clock"
	"github.com/opd-ai/audiolink/wire"
)

// encodeGroup runs a full group through an encoder and returns the media
// and redundancy packets separately.
func encodeGroup(t *testing.T, strategy Strategy, percent float64, payloads [][]byte) (media, redundancy []*wire.Packet) {
	t.Helper()

	e := NewEncoder(EncoderConfig{Span: len(payloads), RedundancyPercent: percent, Strategy: strategy})
	for i, payload := range payloads {
		pkt := &wire.Packet{Sequence: uint32(i), Timestamp: uint64(i) * 2500, Payload: payload}
		media = append(media, pkt)
		out, err := e.Push(pkt)
		require.NoError(t, err)
		redundancy = append(redundancy, out...)
	}
	return media, redundancy
}

func TestDecoderPassesMediaThrough(t *testing.T) {
	d := NewDecoder(DefaultConfig())

	pkt := mediaPacket(0, 1, 2, 3)
	out := d.Offer(pkt)

	require.Len(t, out, 1)
	assert.Same(t, pkt, out[0].Packet)
	assert.False(t, out[0].Reconstructed)
}

func TestDecoderRecoversSingleLossWithParity(t *testing.T) {
	media, redundancy := encodeGroup(t, ParityStrategy{}, 25.0, [][]byte{
		{1, 2, 3}, {4, 5}, {6, 7, 8, 9}, {10},
	})
	require.Len(t, redundancy, 1)

	d := NewDecoder(DefaultConfig())

	// Packet 2 is lost.
	var emitted []Emitted
	for i, pkt := range media {
		if i == 2 {
			continue
		}
		emitted = append(emitted, d.Offer(pkt)...)
	}
	emitted = append(emitted, d.Offer(redundancy[0])...)

	require.Len(t, emitted, 4)
	rec := emitted[3]
	assert.True(t, rec.Reconstructed)
	assert.Equal(t, media[2].Sequence, rec.Packet.Sequence)
	assert.Equal(t, media[2].Timestamp, rec.Packet.Timestamp)
	assert.Equal(t, media[2].Payload, rec.Packet.Payload)

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Recovered)
	assert.Zero(t, stats.ActiveGroups)
}

func TestDecoderRecoversWhenSymbolArrivesFirst(t *testing.T) {
	media, redundancy := encodeGroup(t, ParityStrategy{}, 25.0, [][]byte{
		{1}, {2}, {3}, {4},
	})

	d := NewDecoder(DefaultConfig())

	assert.Empty(t, d.Offer(redundancy[0]))
	assert.Len(t, d.Offer(media[0]), 1)
	assert.Len(t, d.Offer(media[1]), 1)

	// The third arrival leaves one slot missing, unlocking recovery.
	out := d.Offer(media[3])
	require.Len(t, out, 2)
	assert.False(t, out[0].Reconstructed)
	assert.True(t, out[1].Reconstructed)
	assert.Equal(t, uint32(2), out[1].Packet.Sequence)
}

func TestDecoderRecoversMultipleLossesWithCopies(t *testing.T) {
	media, redundancy := encodeGroup(t, CopyStrategy{}, 50.0, [][]byte{
		{1}, {2}, {3}, {4},
	})
	require.Len(t, redundancy, 2)

	d := NewDecoder(DefaultConfig())

	// The last two packets are lost; their copies arrive.
	var emitted []Emitted
	emitted = append(emitted, d.Offer(media[0])...)
	emitted = append(emitted, d.Offer(media[1])...)
	for _, rp := range redundancy {
		emitted = append(emitted, d.Offer(rp)...)
	}

	require.Len(t, emitted, 4)
	seqs := map[uint32]bool{}
	for _, e := range emitted[2:] {
		assert.True(t, e.Reconstructed)
		seqs[e.Packet.Sequence] = true
	}
	assert.True(t, seqs[2])
	assert.True(t, seqs[3])
	assert.Equal(t, uint64(2), d.Stats().Recovered)
}

func TestDecoderParityCannotCoverTwoLossesInOneClass(t *testing.T) {
	media, redundancy := encodeGroup(t, ParityStrategy{}, 25.0, [][]byte{
		{1}, {2}, {3}, {4},
	})

	d := NewDecoder(DefaultConfig())

	// Two losses against one parity symbol stay missing.
	d.Offer(media[0])
	d.Offer(media[1])
	out := d.Offer(redundancy[0])

	assert.Empty(t, out)
	assert.Zero(t, d.Stats().Recovered)
	assert.Equal(t, 1, d.Stats().ActiveGroups)
}

func TestDecoderSweepAbandonsExpiredGroups(t *testing.T) {
	clk, err := clock.NewPlayoutClock(2500 * time.Microsecond)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Clock = clk
	d := NewDecoder(cfg)

	media, redundancy := encodeGroup(t, ParityStrategy{}, 25.0, [][]byte{
		{1}, {2}, {3}, {4},
	})
	d.Offer(media[0])
	d.Offer(media[1])
	d.Offer(redundancy[0])
	require.Equal(t, 1, d.Stats().ActiveGroups)

	// Before the anchor nothing expires.
	d.Sweep()
	assert.Equal(t, 1, d.Stats().ActiveGroups)

	// Play past the group's deadline.
	clk.Anchor(0)
	for i := 0; i < 8; i++ {
		clk.Advance()
	}
	d.Sweep()

	stats := d.Stats()
	assert.Zero(t, stats.ActiveGroups)
	assert.Equal(t, uint64(2), stats.Unrecoverable)
	assert.Equal(t, uint64(1), stats.ExpiredGroups)

	// Media for an expired group still passes through without bookkeeping.
	out := d.Offer(media[2])
	require.Len(t, out, 1)
	assert.False(t, out[0].Reconstructed)
	assert.Zero(t, d.Stats().ActiveGroups)
}

func TestDecoderIgnoresTrailingSymbolForCompleteGroup(t *testing.T) {
	clk, err := clock.NewPlayoutClock(2500 * time.Microsecond)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Clock = clk
	d := NewDecoder(cfg)

	media, redundancy := encodeGroup(t, ParityStrategy{}, 25.0, [][]byte{
		{1}, {2}, {3}, {4},
	})

	// Nothing was lost: all media arrives, then the parity symbol the
	// sender emits after the group's last packet.
	for _, pkt := range media {
		d.Offer(pkt)
	}
	require.Zero(t, d.Stats().ActiveGroups)

	assert.Empty(t, d.Offer(redundancy[0]))
	assert.Zero(t, d.Stats().ActiveGroups)

	// Duplicate media must not reopen the finished group either.
	out := d.Offer(media[1])
	require.Len(t, out, 1)
	assert.Zero(t, d.Stats().ActiveGroups)

	// Play past the group's deadline: a lossless group leaves nothing for
	// the sweep to abandon.
	clk.Anchor(0)
	for i := 0; i < 8; i++ {
		clk.Advance()
	}
	d.Sweep()

	stats := d.Stats()
	assert.Zero(t, stats.Unrecoverable)
	assert.Zero(t, stats.ExpiredGroups)
	assert.Zero(t, stats.Recovered)
}

func TestDecoderDropsMalformedSymbols(t *testing.T) {
	d := NewDecoder(DefaultConfig())

	out := d.Offer(&wire.Packet{
		Sequence: wire.RedundancySequence(0),
		Payload:  []byte{1, 2, 3},
	})
	assert.Empty(t, out)

	// Valid sub-header, wrong span.
	sym := &wire.RedundancySymbol{Group: 0, Index: 0, Symbols: 1, Span: 8, Kind: wire.KindParity, Body: make([]byte, parityHeaderSize)}
	payload, err := sym.Serialize()
	require.NoError(t, err)
	out = d.Offer(&wire.Packet{Sequence: wire.RedundancySequence(0), Payload: payload})
	assert.Empty(t, out)

	stats := d.Stats()
	assert.Equal(t, uint64(2), stats.SymbolsReceived)
	assert.Equal(t, uint64(2), stats.SymbolErrors)
}

func TestDecoderBoundsTrackedGroups(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxGroups = 2
	d := NewDecoder(cfg)

	// One packet from each of three groups, all incomplete.
	d.Offer(mediaPacket(0, 1))
	d.Offer(mediaPacket(4, 2))
	d.Offer(mediaPacket(8, 3))

	stats := d.Stats()
	assert.Equal(t, 2, stats.ActiveGroups)
	assert.Equal(t, uint64(1), stats.EvictedGroups)
}

func TestDecoderReset(t *testing.T) {
	d := NewDecoder(DefaultConfig())

	d.Offer(mediaPacket(0, 1))
	require.Equal(t, 1, d.Stats().ActiveGroups)

	d.Reset()
	assert.Zero(t, d.Stats().ActiveGroups)
}

func TestDecoderDuplicateMediaPassesThrough(t *testing.T) {
	d := NewDecoder(DefaultConfig())

	pkt := mediaPacket(5, 1)
	assert.Len(t, d.Offer(pkt), 1)
	assert.Len(t, d.Offer(pkt), 1)
	assert.Equal(t, 1, d.Stats().ActiveGroups)
}
