// Package qos maintains rolling network statistics for the audio stream and
// publishes the tuning parameters the jitter buffer and FEC layers consume.
//
// Measurement is continuous but recomputation is periodic, keeping the
// per-packet hot path to a few appends and comparisons. Consumers read the
// latest published snapshot without blocking the producer.
package qos

import "time"

// NetworkQuality represents the current network condition assessment.
type NetworkQuality int

const (
	// NetworkExcellent indicates near-lossless, low-jitter conditions.
	NetworkExcellent NetworkQuality = iota
	// NetworkGood indicates minor loss or jitter.
	NetworkGood
	// NetworkFair indicates noticeable loss or jitter.
	NetworkFair
	// NetworkPoor indicates conditions that degrade playback audibly.
	NetworkPoor
)

// String returns a human-readable network quality description.
func (nq NetworkQuality) String() string {
	switch nq {
	case NetworkExcellent:
		return "excellent"
	case NetworkGood:
		return "good"
	case NetworkFair:
		return "fair"
	case NetworkPoor:
		return "poor"
	default:
		return "unknown"
	}
}

// QualityThresholds define the loss and jitter boundaries between quality
// classes. A measurement at or above a boundary falls into the worse class.
type QualityThresholds struct {
	GoodLossPercent float64
	FairLossPercent float64
	PoorLossPercent float64

	GoodJitter time.Duration
	FairJitter time.Duration
	PoorJitter time.Duration
}

// DefaultQualityThresholds returns thresholds tuned for sub-10ms audio
// streaming, where even small jitter consumes the latency budget.
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		GoodLossPercent: 1.0,
		FairLossPercent: 3.0,
		PoorLossPercent: 10.0,

		GoodJitter: 1 * time.Millisecond,
		FairJitter: 5 * time.Millisecond,
		PoorJitter: 20 * time.Millisecond,
	}
}

// Assess classifies network quality from loss and jitter, taking the worse
// of the two verdicts.
func (t QualityThresholds) Assess(lossPercent float64, jitter time.Duration) NetworkQuality {
	var byLoss NetworkQuality
	switch {
	case lossPercent >= t.PoorLossPercent:
		byLoss = NetworkPoor
	case lossPercent >= t.FairLossPercent:
		byLoss = NetworkFair
	case lossPercent >= t.GoodLossPercent:
		byLoss = NetworkGood
	default:
		byLoss = NetworkExcellent
	}

	var byJitter NetworkQuality
	switch {
	case jitter >= t.PoorJitter:
		byJitter = NetworkPoor
	case jitter >= t.FairJitter:
		byJitter = NetworkFair
	case jitter >= t.GoodJitter:
		byJitter = NetworkGood
	default:
		byJitter = NetworkExcellent
	}

	if byJitter > byLoss {
		return byJitter
	}
	return byLoss
}

// RecommendedCapacity maps a quality class to a jitter buffer depth in
// packets, biased upward under high jitter, clamped to [min, max].
func RecommendedCapacity(quality NetworkQuality, jitter time.Duration, min, max int) int {
	capacity := min
	switch quality {
	case NetworkExcellent:
		capacity = min
	case NetworkGood:
		capacity = min + 1
	case NetworkFair:
		capacity = min + 3
	case NetworkPoor:
		capacity = max
	}

	if jitter > 20*time.Millisecond {
		capacity += 2
	} else if jitter > 5*time.Millisecond {
		capacity++
	}

	if capacity < min {
		capacity = min
	}
	if capacity > max {
		capacity = max
	}
	return capacity
}

// RecommendedRedundancy maps a quality class to an FEC redundancy
// percentage, biased upward under heavy loss, clamped to [0, 50].
func RecommendedRedundancy(quality NetworkQuality, lossPercent float64) float64 {
	var redundancy float64
	switch quality {
	case NetworkExcellent:
		redundancy = 5.0
	case NetworkGood:
		redundancy = 10.0
	case NetworkFair:
		redundancy = 20.0
	case NetworkPoor:
		redundancy = 30.0
	}

	if lossPercent > 15.0 {
		redundancy += 10.0
	} else if lossPercent > 5.0 {
		redundancy += 5.0
	}

	if redundancy < 0 {
		redundancy = 0
	}
	if redundancy > 50.0 {
		redundancy = 50.0
	}
	return redundancy
}
