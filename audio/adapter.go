package audio

// PullConfig tunes the device-facing pull adapter.
type PullConfig struct {
	// DeviceRate, when non-zero and different from the stream rate,
	// resamples output to the device rate on the pull path.
	DeviceRate uint32

	// Gain scales samples before hand-off, with clipping. Zero means unity.
	Gain float64
}

// PullAdapter bridges the stage to a pull-driven audio device. The device
// callback hands in its buffer and the adapter fills it completely, crossing
// frame boundaries as needed. It never blocks: slots with no audio ready
// come back as concealment or silence from the stage.
//
// Pull must be called from a single goroutine, the device callback.
type PullAdapter struct {
	stage    *Stage
	rs       *Resampler
	gain     float64
	leftover []int16
}

// NewPullAdapter creates an adapter over the stage.
func NewPullAdapter(stage *Stage, cfg PullConfig) (*PullAdapter, error) {
	a := &PullAdapter{stage: stage, gain: cfg.Gain}
	if a.gain == 0 {
		a.gain = 1.0
	}

	format := stage.Format()
	if cfg.DeviceRate != 0 && cfg.DeviceRate != format.SampleRate {
		rs, err := NewResampler(format.SampleRate, cfg.DeviceRate, format.Channels)
		if err != nil {
			return nil, err
		}
		a.rs = rs
	}
	return a, nil
}

// Pull fills out with device-ready samples and returns len(out).
func (a *PullAdapter) Pull(out []int16) int {
	n := 0
	for n < len(out) {
		if len(a.leftover) == 0 {
			a.leftover = a.render()
		}
		c := copy(out[n:], a.leftover)
		n += c
		a.leftover = a.leftover[c:]
	}
	return n
}

func (a *PullAdapter) render() []int16 {
	pcm := a.stage.NextFrame().PCM
	if a.rs != nil {
		if converted, err := a.rs.Resample(pcm); err == nil {
			pcm = converted
		}
	}
	if a.gain != 1.0 {
		pcm = applyGain(pcm, a.gain)
	}
	return pcm
}

func applyGain(pcm []int16, gain float64) []int16 {
	for i, s := range pcm {
		v := float64(s) * gain
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		pcm[i] = int16(v)
	}
	return pcm
}
