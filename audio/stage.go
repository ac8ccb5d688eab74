package audio

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiolink/clock"
	"github.com/opd-ai/audiolink/jitter"
)

// StageStats counts the frames a stage has produced, broken down by how
// each frame was obtained.
type StageStats struct {
	Decoded      uint64
	Concealed    uint64
	Silence      uint64
	DecodeErrors uint64
}

// Stage turns jitter buffer pulls into playable frames. Every call to
// NextFrame consumes exactly one playout slot and always yields a full
// frame: decoded audio when a packet was delivered, concealment when the
// stream has a hole, silence while the buffer is still priming.
//
// NextFrame and Fill must be called from a single goroutine, typically
// the audio device callback.
type Stage struct {
	buf       *jitter.Buffer
	dec       Decoder
	clk       *clock.PlayoutClock
	format    Format
	concealer *Concealer

	resamplers map[uint32]*Resampler
	leftover   []int16

	decoded      atomic.Uint64
	concealed    atomic.Uint64
	silence      atomic.Uint64
	decodeErrors atomic.Uint64
}

// NewStage creates a playout stage over the given buffer and decoder.
func NewStage(buf *jitter.Buffer, dec Decoder, clk *clock.PlayoutClock, format Format) (*Stage, error) {
	if buf == nil {
		return nil, fmt.Errorf("nil jitter buffer")
	}
	if dec == nil {
		return nil, fmt.Errorf("nil decoder")
	}
	if clk == nil {
		return nil, fmt.Errorf("nil playout clock")
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return &Stage{
		buf:        buf,
		dec:        dec,
		clk:        clk,
		format:     format,
		concealer:  NewConcealer(format),
		resamplers: make(map[uint32]*Resampler),
	}, nil
}

// Format returns the stage output format.
func (s *Stage) Format() Format {
	return s.format
}

// NextFrame produces the next frame of playout audio and advances the
// playout clock by one slot. It never blocks and never returns nil.
func (s *Stage) NextFrame() *Frame {
	entry, res := s.buf.Pull()

	var frame *Frame
	switch res {
	case jitter.PullDelivered:
		frame = s.decodeEntry(entry)
	case jitter.PullSilence:
		s.silence.Add(1)
		frame = s.silenceFrame()
	default:
		// Wait, underrun and contention all play as concealment so the
		// device always gets a full frame on time.
		s.concealed.Add(1)
		frame = s.concealFrame()
	}

	s.clk.Advance()
	return frame
}

// Fill writes playout audio into out, producing frames as needed and
// carrying partial frames over to the next call. It always fills out
// completely and returns len(out).
func (s *Stage) Fill(out []int16) int {
	n := 0
	for n < len(out) {
		if len(s.leftover) == 0 {
			s.leftover = s.NextFrame().PCM
		}
		c := copy(out[n:], s.leftover)
		n += c
		s.leftover = s.leftover[c:]
	}
	return n
}

// Stats returns the frame production counters.
func (s *Stage) Stats() StageStats {
	return StageStats{
		Decoded:      s.decoded.Load(),
		Concealed:    s.concealed.Load(),
		Silence:      s.silence.Load(),
		DecodeErrors: s.decodeErrors.Load(),
	}
}

// Close releases the decoder and any resamplers the stage created.
func (s *Stage) Close() error {
	for _, rs := range s.resamplers {
		rs.Close()
	}
	return s.dec.Close()
}

func (s *Stage) decodeEntry(entry *jitter.Entry) *Frame {
	pcm, rate, channels, err := s.dec.Decode(entry.Packet.Payload)
	if err != nil {
		s.decodeErrors.Add(1)
		s.concealed.Add(1)
		logrus.WithFields(logrus.Fields{
			"component": "audio",
			"seq":       entry.Packet.Sequence,
			"error":     err,
		}).Debug("Decode failed, concealing frame")
		return s.concealFrame()
	}

	pcm = s.normalize(pcm, rate, channels)
	s.concealer.Observe(pcm)
	s.decoded.Add(1)

	return &Frame{
		PCM:           pcm,
		SampleRate:    s.format.SampleRate,
		Channels:      s.format.Channels,
		Sequence:      entry.Packet.Sequence,
		Reconstructed: entry.Reconstructed,
		Origin:        OriginDecoded,
	}
}

// normalize converts decoded audio to the stage output format: resample to
// the output rate, remap channels, then pad or trim to one frame.
func (s *Stage) normalize(pcm []int16, rate uint32, channels int) []int16 {
	if channels < 1 {
		channels = 1
	}
	if rate != 0 && rate != s.format.SampleRate {
		rs, err := s.resamplerFor(rate, channels)
		if err == nil {
			if converted, rerr := rs.Resample(pcm); rerr == nil {
				pcm = converted
			}
		}
	}
	pcm = remapChannels(pcm, channels, s.format.Channels)
	return fitFrame(pcm, s.format.FrameSamples())
}

func (s *Stage) resamplerFor(rate uint32, channels int) (*Resampler, error) {
	if rs, ok := s.resamplers[rate]; ok && rs.channels == channels {
		return rs, nil
	}
	rs, err := NewResampler(rate, s.format.SampleRate, channels)
	if err != nil {
		return nil, err
	}
	s.resamplers[rate] = rs
	return rs, nil
}

func (s *Stage) silenceFrame() *Frame {
	return &Frame{
		PCM:        s.format.Silence(),
		SampleRate: s.format.SampleRate,
		Channels:   s.format.Channels,
		Origin:     OriginSilence,
	}
}

func (s *Stage) concealFrame() *Frame {
	return &Frame{
		PCM:        s.concealer.Conceal(),
		SampleRate: s.format.SampleRate,
		Channels:   s.format.Channels,
		Origin:     OriginConcealed,
	}
}

// fitFrame pads or trims pcm to exactly want samples.
func fitFrame(pcm []int16, want int) []int16 {
	if len(pcm) == want {
		return pcm
	}
	out := make([]int16, want)
	copy(out, pcm)
	return out
}
