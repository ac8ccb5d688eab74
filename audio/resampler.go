package audio

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Resampler converts PCM between sample rates by linear interpolation,
// carrying fractional position and boundary samples across calls so a
// continuous stream resamples without seams.
type Resampler struct {
	inputRate   uint32
	outputRate  uint32
	channels    int
	lastSamples []int16
	position    float64
}

// NewResampler creates a resampler from inputRate to outputRate.
func NewResampler(inputRate, outputRate uint32, channels int) (*Resampler, error) {
	if inputRate == 0 || outputRate == 0 {
		return nil, fmt.Errorf("invalid sample rates: input=%d, output=%d", inputRate, outputRate)
	}
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("unsupported channel count: %d (must be 1 or 2)", channels)
	}

	logrus.WithFields(logrus.Fields{
		"component":   "audio",
		"input_rate":  inputRate,
		"output_rate": outputRate,
		"channels":    channels,
	}).Debug("Resampler created")

	return &Resampler{
		inputRate:   inputRate,
		outputRate:  outputRate,
		channels:    channels,
		lastSamples: make([]int16, channels),
	}, nil
}

// InputRate returns the configured input sample rate.
func (r *Resampler) InputRate() uint32 {
	return r.inputRate
}

// Resample converts one batch of interleaved samples.
func (r *Resampler) Resample(input []int16) ([]int16, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("empty input samples")
	}
	if len(input)%r.channels != 0 {
		return nil, fmt.Errorf("input samples (%d) not aligned to channel count (%d)", len(input), r.channels)
	}

	if r.inputRate == r.outputRate {
		out := make([]int16, len(input))
		copy(out, input)
		return out, nil
	}

	inputFrames := len(input) / r.channels
	ratio := float64(r.inputRate) / float64(r.outputRate)
	outputFrames := int(float64(inputFrames)/ratio + 0.5)

	output := make([]int16, 0, outputFrames*r.channels)
	pos := r.position
	for i := 0; i < outputFrames; i++ {
		idx := int(pos)
		frac := pos - float64(idx)
		if idx >= inputFrames {
			break
		}
		for ch := 0; ch < r.channels; ch++ {
			output = append(output, r.interpolate(input, idx, frac, ch, inputFrames))
		}
		pos += ratio
	}

	// Carry state for the next batch.
	r.position = pos - float64(inputFrames)
	if r.position < 0 {
		r.position = 0
	}
	for ch := 0; ch < r.channels; ch++ {
		r.lastSamples[ch] = input[(inputFrames-1)*r.channels+ch]
	}

	return output, nil
}

func (r *Resampler) interpolate(input []int16, idx int, frac float64, ch, inputFrames int) int16 {
	if idx < 0 {
		return r.lastSamples[ch]
	}
	cur := float64(input[idx*r.channels+ch])
	if idx >= inputFrames-1 {
		return int16(cur)
	}
	next := float64(input[(idx+1)*r.channels+ch])
	return int16(cur + (next-cur)*frac)
}

// Close releases resampler resources.
func (r *Resampler) Close() error {
	return nil
}

// remapChannels converts between mono and interleaved stereo, returning the
// input unchanged when counts already match.
func remapChannels(pcm []int16, from, to int) []int16 {
	switch {
	case from == to:
		return pcm
	case from == 1 && to == 2:
		out := make([]int16, len(pcm)*2)
		for i, s := range pcm {
			out[i*2] = s
			out[i*2+1] = s
		}
		return out
	case from == 2 && to == 1:
		out := make([]int16, len(pcm)/2)
		for i := range out {
			left := int32(pcm[i*2])
			right := int32(pcm[i*2+1])
			out[i] = int16((left + right) / 2)
		}
		return out
	default:
		return pcm
	}
}
