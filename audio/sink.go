package audio

import (
	"sync"
)

// Sink is where playout frames go, typically an audio device adapter.
// Play is called once per frame interval and must not block; a sink that
// cannot keep up should drop the frame and return an error instead of
// stalling the playout path.
type Sink interface {
	// Play consumes one frame of playout audio.
	Play(frame *Frame) error
	// Close releases the sink.
	Close() error
}

// NullSink discards every frame. Useful when the engine runs headless.
type NullSink struct{}

// Play discards the frame.
func (NullSink) Play(*Frame) error { return nil }

// Close is a no-op.
func (NullSink) Close() error { return nil }

// DeviceSink adapts frames to a device before handing them on: optional
// linear resampling from the stream rate to the device rate, and a gain
// stage with clipping. It wraps any Sink.
type DeviceSink struct {
	inner Sink
	rs    *Resampler
	rate  uint32
	gain  float64
}

// NewDeviceSink wraps sink for a device at deviceRate. A zero deviceRate
// keeps the stream rate; a zero gain means unity.
func NewDeviceSink(sink Sink, format Format, deviceRate uint32, gain float64) (*DeviceSink, error) {
	d := &DeviceSink{inner: sink, rate: format.SampleRate, gain: gain}
	if d.gain == 0 {
		d.gain = 1.0
	}
	if deviceRate != 0 && deviceRate != format.SampleRate {
		rs, err := NewResampler(format.SampleRate, deviceRate, format.Channels)
		if err != nil {
			return nil, err
		}
		d.rs = rs
		d.rate = deviceRate
	}
	return d, nil
}

// Play converts the frame and forwards it to the wrapped sink.
func (d *DeviceSink) Play(frame *Frame) error {
	if d.rs != nil {
		if converted, err := d.rs.Resample(frame.PCM); err == nil {
			frame.PCM = converted
			frame.SampleRate = d.rate
		}
	}
	if d.gain != 1.0 {
		frame.PCM = applyGain(frame.PCM, d.gain)
	}
	return d.inner.Play(frame)
}

// Close releases the resampler and the wrapped sink.
func (d *DeviceSink) Close() error {
	if d.rs != nil {
		d.rs.Close()
	}
	return d.inner.Close()
}

// CaptureSink retains every frame it is handed. It exists for tests and
// diagnostics that need to inspect the playout output.
type CaptureSink struct {
	mu     sync.Mutex
	frames []*Frame
}

// NewCaptureSink creates an empty capture sink.
func NewCaptureSink() *CaptureSink {
	return &CaptureSink{}
}

// Play appends the frame to the captured list.
func (c *CaptureSink) Play(frame *Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	return nil
}

// Frames returns a snapshot of the captured frames.
func (c *CaptureSink) Frames() []*Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// Len returns how many frames have been captured.
func (c *CaptureSink) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// Close is a no-op.
func (c *CaptureSink) Close() error { return nil }
