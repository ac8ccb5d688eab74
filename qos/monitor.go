package qos

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiolink/clock"
	"github.com/opd-ai/audiolink/wire"
)

// Config controls the monitoring window and the adaptation outputs.
type Config struct {
	// WindowSize is the number of recent packet arrivals kept for
	// statistics.
	WindowSize int

	// MinSamples is the number of window samples required before the
	// derived statistics are considered reliable.
	MinSamples int

	// PacketSpacing is the nominal inter-packet interval at the sender,
	// one audio frame duration.
	PacketSpacing time.Duration

	// RecomputeInterval forces a statistics recompute after this much
	// time even if few packets arrived.
	RecomputeInterval time.Duration

	// RecomputeEvery forces a statistics recompute after this many
	// observed packets.
	RecomputeEvery int

	// MinAdaptationInterval is the minimum time between changes to the
	// published tuning outputs.
	MinAdaptationInterval time.Duration

	// BaseDelay is the floor component of the target delay formula.
	BaseDelay time.Duration

	// DelayGain scales measured jitter, and the loss widening term, into
	// additional target delay.
	DelayGain float64

	// MinDelay and MaxDelay clamp the computed target delay.
	MinDelay time.Duration
	MaxDelay time.Duration

	// MinCapacity and MaxCapacity clamp the recommended buffer depth.
	MinCapacity int
	MaxCapacity int

	Thresholds QualityThresholds

	// TimeProvider is the time source. If nil the package default is used.
	TimeProvider clock.TimeProvider
}

// DefaultConfig returns monitoring parameters tuned for the 2.5ms frame
// cadence of the default stream format.
func DefaultConfig() Config {
	return Config{
		WindowSize:            100,
		MinSamples:            10,
		PacketSpacing:         2500 * time.Microsecond,
		RecomputeInterval:     500 * time.Millisecond,
		RecomputeEvery:        50,
		MinAdaptationInterval: 100 * time.Millisecond,
		BaseDelay:             5 * time.Millisecond,
		DelayGain:             4.0,
		MinDelay:              2500 * time.Microsecond,
		MaxDelay:              25 * time.Millisecond,
		MinCapacity:           3,
		MaxCapacity:           10,
		Thresholds:            DefaultQualityThresholds(),
	}
}

// Snapshot is an immutable view of the derived statistics and the tuning
// outputs current at publication time.
type Snapshot struct {
	// Jitter is the standard deviation of arrival spacing from the
	// nominal packet cadence.
	Jitter time.Duration

	// LossPercent is the estimated packet loss over the window.
	LossPercent float64

	// ReorderPercent is the share of window packets that arrived out of
	// sequence order.
	ReorderPercent float64

	// Quality is the classification derived from loss and jitter.
	Quality NetworkQuality

	// TargetDelay is the jitter buffer hold time the current conditions
	// call for.
	TargetDelay time.Duration

	// BufferPackets is the recommended jitter buffer depth.
	BufferPackets int

	// RedundancyPercent is the recommended FEC overhead for the sender.
	RedundancyPercent float64

	// Samples is the number of window samples behind the statistics.
	Samples int

	// Reliable reports whether Samples reached the configured minimum.
	Reliable bool

	// ComputedAt is when the statistics were last recomputed.
	ComputedAt time.Time
}

type arrivalSample struct {
	seq     uint32
	arrival time.Time
}

// Monitor tracks packet arrivals over a sliding window and periodically
// derives loss, jitter, reorder rate and the adaptation outputs from them.
//
// ObserveMedia is called once per received media packet and stays cheap; the
// heavier statistics pass runs only when the recompute thresholds trip.
// Snapshot is safe to call from any goroutine and never blocks.
type Monitor struct {
	cfg Config
	tp  clock.TimeProvider

	mu            sync.Mutex
	samples       []arrivalSample
	sinceRecomp   int
	lastRecompute time.Time
	lastAdapt     time.Time
	highestSeq    uint32
	haveHighest   bool

	snapshot  atomic.Pointer[Snapshot]
	reordered atomic.Uint64

	onQualityChange func(old, new NetworkQuality)
}

// NewMonitor creates a monitor with an initial neutral snapshot already
// published.
func NewMonitor(cfg Config) *Monitor {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultConfig().WindowSize
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultConfig().MinSamples
	}
	if cfg.PacketSpacing <= 0 {
		cfg.PacketSpacing = DefaultConfig().PacketSpacing
	}
	if cfg.RecomputeInterval <= 0 {
		cfg.RecomputeInterval = DefaultConfig().RecomputeInterval
	}
	if cfg.RecomputeEvery <= 0 {
		cfg.RecomputeEvery = DefaultConfig().RecomputeEvery
	}
	if cfg.MinAdaptationInterval <= 0 {
		cfg.MinAdaptationInterval = DefaultConfig().MinAdaptationInterval
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig().BaseDelay
	}
	if cfg.DelayGain <= 0 {
		cfg.DelayGain = DefaultConfig().DelayGain
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultConfig().MinDelay
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = DefaultConfig().MaxDelay
	}
	if cfg.MinCapacity <= 0 {
		cfg.MinCapacity = DefaultConfig().MinCapacity
	}
	if cfg.MaxCapacity < cfg.MinCapacity {
		cfg.MaxCapacity = cfg.MinCapacity
	}
	if cfg.Thresholds == (QualityThresholds{}) {
		cfg.Thresholds = DefaultQualityThresholds()
	}

	m := &Monitor{
		cfg:     cfg,
		tp:      clock.Provider(cfg.TimeProvider),
		samples: make([]arrivalSample, 0, cfg.WindowSize),
	}
	m.snapshot.Store(m.neutralSnapshot())
	return m
}

// OnQualityChange registers a callback invoked whenever the quality
// classification changes. The callback runs on its own goroutine.
func (m *Monitor) OnQualityChange(cb func(old, new NetworkQuality)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onQualityChange = cb
}

// ObserveMedia records the arrival of a media packet.
func (m *Monitor) ObserveMedia(seq uint32, arrival time.Time) {
	m.mu.Lock()

	if m.haveHighest && !wire.SeqNewer(seq, m.highestSeq) {
		m.reordered.Add(1)
	} else {
		m.highestSeq = seq
		m.haveHighest = true
	}

	if len(m.samples) == m.cfg.WindowSize {
		copy(m.samples, m.samples[1:])
		m.samples = m.samples[:m.cfg.WindowSize-1]
	}
	m.samples = append(m.samples, arrivalSample{seq: seq, arrival: arrival})

	m.sinceRecomp++
	due := m.sinceRecomp >= m.cfg.RecomputeEvery ||
		arrival.Sub(m.lastRecompute) >= m.cfg.RecomputeInterval
	if due {
		m.recomputeLocked(arrival)
	}
	m.mu.Unlock()
}

// Recompute forces an immediate statistics pass. The periodic recompute
// normally makes this unnecessary; it exists for shutdown reporting.
func (m *Monitor) Recompute() {
	m.mu.Lock()
	m.recomputeLocked(m.tp.Now())
	m.mu.Unlock()
}

// Snapshot returns the most recently published statistics. The result is
// never nil and must not be mutated.
func (m *Monitor) Snapshot() *Snapshot {
	return m.snapshot.Load()
}

// Reordered returns the total number of out-of-order arrivals observed.
func (m *Monitor) Reordered() uint64 {
	return m.reordered.Load()
}

// Reset clears the window and republishes a neutral snapshot, for use when
// the stream restarts.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.samples = m.samples[:0]
	m.sinceRecomp = 0
	m.lastRecompute = time.Time{}
	m.lastAdapt = time.Time{}
	m.haveHighest = false
	m.reordered.Store(0)
	m.snapshot.Store(m.neutralSnapshot())
	m.mu.Unlock()
}

func (m *Monitor) neutralSnapshot() *Snapshot {
	delay := m.clampDelay(m.cfg.BaseDelay)
	return &Snapshot{
		Quality:           NetworkExcellent,
		TargetDelay:       delay,
		BufferPackets:     m.cfg.MinCapacity,
		RedundancyPercent: RecommendedRedundancy(NetworkExcellent, 0),
	}
}

func (m *Monitor) recomputeLocked(now time.Time) {
	m.sinceRecomp = 0
	m.lastRecompute = now

	prev := m.snapshot.Load()
	jitter := m.jitterLocked()
	lossPercent, reorderPercent := m.lossReorderLocked()
	reliable := len(m.samples) >= m.cfg.MinSamples

	next := &Snapshot{
		Jitter:         jitter,
		LossPercent:    lossPercent,
		ReorderPercent: reorderPercent,
		Samples:        len(m.samples),
		Reliable:       reliable,
		ComputedAt:     now,
	}

	if !reliable {
		// Not enough evidence to steer by; keep the previous tuning.
		next.Quality = prev.Quality
		next.TargetDelay = prev.TargetDelay
		next.BufferPackets = prev.BufferPackets
		next.RedundancyPercent = prev.RedundancyPercent
		m.snapshot.Store(next)
		return
	}

	quality := m.cfg.Thresholds.Assess(lossPercent, jitter)
	delay := m.cfg.BaseDelay + time.Duration(m.cfg.DelayGain*float64(jitter))
	// Loss widens the hold even when the surviving arrivals keep perfect
	// cadence, so recovered and retransmitted packets still make playout.
	delay += time.Duration(lossPercent / 100 * m.cfg.DelayGain * float64(m.cfg.PacketSpacing))
	delay = m.clampDelay(delay)

	if now.Sub(m.lastAdapt) < m.cfg.MinAdaptationInterval {
		next.Quality = prev.Quality
		next.TargetDelay = prev.TargetDelay
		next.BufferPackets = prev.BufferPackets
		next.RedundancyPercent = prev.RedundancyPercent
		m.snapshot.Store(next)
		return
	}

	next.Quality = quality
	next.TargetDelay = delay
	next.BufferPackets = RecommendedCapacity(quality, jitter, m.cfg.MinCapacity, m.cfg.MaxCapacity)
	next.RedundancyPercent = RecommendedRedundancy(quality, lossPercent)

	if next.TargetDelay != prev.TargetDelay || next.Quality != prev.Quality ||
		next.BufferPackets != prev.BufferPackets {
		m.lastAdapt = now
	}

	m.snapshot.Store(next)

	if quality != prev.Quality {
		logrus.WithFields(logrus.Fields{
			"component":    "qos",
			"old_quality":  prev.Quality.String(),
			"new_quality":  quality.String(),
			"loss_percent": lossPercent,
			"jitter_ms":    float64(jitter) / float64(time.Millisecond),
			"target_delay": delay,
		}).Info("Network quality changed")
		if cb := m.onQualityChange; cb != nil {
			go cb(prev.Quality, quality)
		}
	}
}

// jitterLocked computes the standard deviation of the spacing between
// consecutive arrivals relative to the nominal cadence, scaled by the
// sequence distance so losses do not register as jitter.
func (m *Monitor) jitterLocked() time.Duration {
	if len(m.samples) < 2 {
		return 0
	}

	deviations := make([]float64, 0, len(m.samples)-1)
	for i := 1; i < len(m.samples); i++ {
		prev, cur := m.samples[i-1], m.samples[i]
		gap := wire.SeqDiff(cur.seq, prev.seq)
		if gap <= 0 {
			// Out-of-order arrival; spacing is meaningless here.
			continue
		}
		expected := time.Duration(gap) * m.cfg.PacketSpacing
		deviations = append(deviations, float64(cur.arrival.Sub(prev.arrival)-expected))
	}
	if len(deviations) < 2 {
		return 0
	}

	var sum float64
	for _, d := range deviations {
		sum += d
	}
	mean := sum / float64(len(deviations))

	var variance float64
	for _, d := range deviations {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(len(deviations))

	return time.Duration(math.Sqrt(variance))
}

// lossReorderLocked estimates loss from the gap between the sequence span
// and the number of packets actually seen, and computes the share of
// out-of-order arrivals. Every packet that fails to reach the monitor,
// whether dropped on the wire or evicted before processing, shows up in
// that gap exactly once.
func (m *Monitor) lossReorderLocked() (lossPercent, reorderPercent float64) {
	if len(m.samples) == 0 {
		return 0, 0
	}

	lowest, highest := m.samples[0].seq, m.samples[0].seq
	reordered := 0
	for i, s := range m.samples {
		if wire.SeqNewer(s.seq, highest) {
			highest = s.seq
		} else if i > 0 {
			reordered++
		}
		if wire.SeqNewer(lowest, s.seq) {
			lowest = s.seq
		}
	}

	span := int(wire.SeqDiff(highest, lowest)) + 1
	if span < len(m.samples) {
		span = len(m.samples)
	}
	missing := span - len(m.samples)

	if span > 0 {
		lossPercent = 100 * float64(missing) / float64(span)
	}
	reorderPercent = 100 * float64(reordered) / float64(len(m.samples))
	return lossPercent, reorderPercent
}

func (m *Monitor) clampDelay(d time.Duration) time.Duration {
	if m.cfg.MinDelay > 0 && d < m.cfg.MinDelay {
		d = m.cfg.MinDelay
	}
	if m.cfg.MaxDelay > 0 && d > m.cfg.MaxDelay {
		d = m.cfg.MaxDelay
	}
	return d
}
