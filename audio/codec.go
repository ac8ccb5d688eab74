package audio

import (
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// Decoder converts one packet payload into PCM samples.
type Decoder interface {
	// Decode returns interleaved PCM, the sample rate and channel count of
	// the decoded audio.
	Decode(data []byte) ([]int16, uint32, int, error)
	// Close releases decoder resources.
	Close() error
}

// Encoder converts PCM samples into a packet payload.
type Encoder interface {
	// Encode converts interleaved PCM samples to payload bytes.
	Encode(pcm []int16, sampleRate uint32) ([]byte, error)
	// Close releases encoder resources.
	Close() error
}

// NewDecoder builds a decoder by codec name. Supported names are "opus"
// and "pcm".
func NewDecoder(codec string, format Format) (Decoder, error) {
	switch codec {
	case "opus":
		return NewOpusDecoder(), nil
	case "pcm":
		return NewPCMDecoder(format), nil
	default:
		return nil, fmt.Errorf("unsupported codec: %q", codec)
	}
}

// opusMaxFrameBytes holds a decoded 60ms stereo frame at 48kHz, the largest
// Opus produces.
const opusMaxFrameBytes = 2880 * 2 * 2

// OpusDecoder decodes Opus payloads using the pure Go pion decoder.
//
// The decoder reuses its output buffer, so it must not be shared across
// goroutines.
type OpusDecoder struct {
	decoder *opus.Decoder
	output  []byte
}

// NewOpusDecoder creates an Opus decoder.
func NewOpusDecoder() *OpusDecoder {
	decoder := opus.NewDecoder()
	logrus.WithFields(logrus.Fields{
		"component": "audio",
		"codec":     "opus",
	}).Info("Audio decoder initialized")

	return &OpusDecoder{
		decoder: &decoder,
		output:  make([]byte, opusMaxFrameBytes),
	}
}

// Decode decodes one Opus frame. The sample rate follows the frame's
// bandwidth and the channel count its stereo flag.
func (d *OpusDecoder) Decode(data []byte) ([]int16, uint32, int, error) {
	if len(data) == 0 {
		return nil, 0, 0, fmt.Errorf("empty audio data")
	}

	bandwidth, isStereo, err := d.decoder.Decode(data, d.output)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("opus decode failed: %w", err)
	}

	channels := 1
	if isStereo {
		channels = 2
	}

	sampleCount := len(d.output) / 2
	pcm := make([]int16, sampleCount)
	for i := 0; i < sampleCount; i++ {
		pcm[i] = int16(d.output[i*2]) | int16(d.output[i*2+1])<<8
	}

	return pcm, uint32(bandwidth.SampleRate()), channels, nil
}

// Close releases decoder resources.
func (d *OpusDecoder) Close() error {
	return nil
}

// PCMDecoder interprets payloads as raw little-endian PCM in the stream
// format, the counterpart of PCMEncoder.
type PCMDecoder struct {
	format Format
}

// NewPCMDecoder creates a passthrough decoder for the given format.
func NewPCMDecoder(format Format) *PCMDecoder {
	return &PCMDecoder{format: format}
}

// Decode converts payload bytes to interleaved samples.
func (d *PCMDecoder) Decode(data []byte) ([]int16, uint32, int, error) {
	if len(data) == 0 {
		return nil, 0, 0, fmt.Errorf("empty audio data")
	}
	if len(data)%2 != 0 {
		return nil, 0, 0, fmt.Errorf("pcm payload not sample aligned: %d bytes", len(data))
	}

	pcm := make([]int16, len(data)/2)
	for i := range pcm {
		pcm[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return pcm, d.format.SampleRate, d.format.Channels, nil
}

// Close releases decoder resources.
func (d *PCMDecoder) Close() error {
	return nil
}

// PCMEncoder packs PCM samples as little-endian bytes. It stands in for a
// real encoder on the send path, where this codebase only generates test
// streams.
type PCMEncoder struct {
	sampleRate uint32
}

// NewPCMEncoder creates a passthrough encoder expecting the given rate.
func NewPCMEncoder(sampleRate uint32) *PCMEncoder {
	return &PCMEncoder{sampleRate: sampleRate}
}

// Encode converts samples to payload bytes, validating the rate matches.
func (e *PCMEncoder) Encode(pcm []int16, sampleRate uint32) ([]byte, error) {
	if sampleRate != e.sampleRate {
		return nil, fmt.Errorf("sample rate mismatch: expected %d, got %d", e.sampleRate, sampleRate)
	}

	data := make([]byte, len(pcm)*2)
	for i, sample := range pcm {
		data[i*2] = byte(sample)
		data[i*2+1] = byte(sample >> 8)
	}
	return data, nil
}

// Close releases encoder resources.
func (e *PCMEncoder) Close() error {
	return nil
}
