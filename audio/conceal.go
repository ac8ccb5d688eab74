package audio

// maxConcealRepeat is how many consecutive frames may be synthesized from
// the last good frame before the concealer falls back to silence.
const maxConcealRepeat = 8

// Concealer synthesizes replacement audio for frames that never arrived.
// It repeats the most recent good frame with progressive attenuation and
// decays to silence when losses persist, which sounds less jarring than an
// abrupt gap.
type Concealer struct {
	format      Format
	last        []int16
	consecutive int
}

// NewConcealer creates a concealer for the given output format.
func NewConcealer(format Format) *Concealer {
	return &Concealer{
		format: format,
		last:   make([]int16, format.FrameSamples()),
	}
}

// Observe records a good frame so later losses can be patched from it.
// It also resets the attenuation ramp.
func (c *Concealer) Observe(pcm []int16) {
	n := copy(c.last, pcm)
	for i := n; i < len(c.last); i++ {
		c.last[i] = 0
	}
	c.consecutive = 0
}

// Conceal produces one frame of replacement audio. Each consecutive call
// halves the amplitude again until the output reaches silence.
func (c *Concealer) Conceal() []int16 {
	out := make([]int16, c.format.FrameSamples())
	if c.consecutive >= maxConcealRepeat {
		return out
	}
	shift := uint(c.consecutive)
	for i, s := range c.last {
		out[i] = s >> shift
	}
	c.consecutive++
	return out
}

// Consecutive returns how many frames in a row have been concealed since
// the last good frame.
func (c *Concealer) Consecutive() int {
	return c.consecutive
}

// Reset clears the stored frame and the attenuation ramp.
func (c *Concealer) Reset() {
	for i := range c.last {
		c.last[i] = 0
	}
	c.consecutive = 0
}
