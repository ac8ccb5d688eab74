// Package audio turns buffered packets into playable PCM frames.
//
// The decode stage pulls from the jitter buffer on the playout cadence,
// decodes payloads, conceals gaps and decode failures, and hands fixed-size
// frames to an audio sink. Every pull produces exactly one frame, so the
// playout clock advances uniformly whether the frame was decoded, concealed
// or silent.
package audio

import (
	"fmt"
	"time"
)

// Format describes the fixed PCM layout frames are delivered in.
type Format struct {
	// SampleRate in Hz.
	SampleRate uint32

	// Channels is 1 for mono or 2 for interleaved stereo.
	Channels int

	// FrameDuration is the audio time one frame covers.
	FrameDuration time.Duration
}

// DefaultFormat returns the stream format used throughout: 48kHz stereo in
// 2.5ms frames.
func DefaultFormat() Format {
	return Format{
		SampleRate:    48000,
		Channels:      2,
		FrameDuration: 2500 * time.Microsecond,
	}
}

// Validate checks the format is usable.
func (f Format) Validate() error {
	if f.SampleRate == 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels < 1 || f.Channels > 2 {
		return fmt.Errorf("unsupported channel count: %d (must be 1 or 2)", f.Channels)
	}
	if f.FrameDuration <= 0 {
		return fmt.Errorf("invalid frame duration: %v", f.FrameDuration)
	}
	if f.SamplesPerChannel() == 0 {
		return fmt.Errorf("frame duration %v too short for %dHz", f.FrameDuration, f.SampleRate)
	}
	return nil
}

// SamplesPerChannel returns the per-channel sample count of one frame.
func (f Format) SamplesPerChannel() int {
	return int(uint64(f.SampleRate) * uint64(f.FrameDuration) / uint64(time.Second))
}

// FrameSamples returns the total interleaved sample count of one frame.
func (f Format) FrameSamples() int {
	return f.SamplesPerChannel() * f.Channels
}

// Silence returns a zeroed frame buffer for the format.
func (f Format) Silence() []int16 {
	return make([]int16, f.FrameSamples())
}

// FrameOrigin records how a frame was produced.
type FrameOrigin int

const (
	// OriginDecoded frames came from a received or rebuilt packet.
	OriginDecoded FrameOrigin = iota
	// OriginConcealed frames were synthesized to cover a gap.
	OriginConcealed
	// OriginSilence frames filled pre-roll or idle slots.
	OriginSilence
)

// String returns a human-readable origin name.
func (o FrameOrigin) String() string {
	switch o {
	case OriginDecoded:
		return "decoded"
	case OriginConcealed:
		return "concealed"
	case OriginSilence:
		return "silence"
	default:
		return "unknown"
	}
}

// Frame is one playout frame of interleaved PCM.
type Frame struct {
	PCM        []int16
	SampleRate uint32
	Channels   int

	// Sequence is the media sequence the frame came from, meaningful only
	// for decoded frames.
	Sequence uint32

	// Reconstructed marks frames decoded from an FEC-rebuilt packet.
	Reconstructed bool

	Origin FrameOrigin
}
