package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDecoderSelectsCodec(t *testing.T) {
	format := DefaultFormat()

	dec, err := NewDecoder("opus", format)
	require.NoError(t, err)
	assert.IsType(t, &OpusDecoder{}, dec)
	require.NoError(t, dec.Close())

	dec, err = NewDecoder("pcm", format)
	require.NoError(t, err)
	assert.IsType(t, &PCMDecoder{}, dec)
	require.NoError(t, dec.Close())

	_, err = NewDecoder("vorbis", format)
	assert.Error(t, err)
}

func TestPCMRoundTrip(t *testing.T) {
	format := DefaultFormat()
	enc := NewPCMEncoder(format.SampleRate)
	dec := NewPCMDecoder(format)

	samples := make([]int16, format.FrameSamples())
	for i := range samples {
		samples[i] = int16(i*37 - 7000)
	}

	data, err := enc.Encode(samples, format.SampleRate)
	require.NoError(t, err)
	assert.Len(t, data, len(samples)*2)

	pcm, rate, channels, err := dec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, format.SampleRate, rate)
	assert.Equal(t, format.Channels, channels)
	assert.Equal(t, samples, pcm)
}

func TestPCMDecoderRejectsBadPayloads(t *testing.T) {
	dec := NewPCMDecoder(DefaultFormat())

	_, _, _, err := dec.Decode(nil)
	assert.Error(t, err)

	_, _, _, err = dec.Decode([]byte{0x01, 0x02, 0x03})
	assert.Error(t, err)
}

func TestPCMEncoderRejectsRateMismatch(t *testing.T) {
	enc := NewPCMEncoder(48000)

	_, err := enc.Encode([]int16{1, 2, 3, 4}, 44100)
	assert.Error(t, err)
}

func TestOpusDecoderRejectsEmptyInput(t *testing.T) {
	dec := NewOpusDecoder()
	defer dec.Close()

	_, _, _, err := dec.Decode(nil)
	assert.Error(t, err)
}
