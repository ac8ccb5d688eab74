// Package clock provides the time sources the streaming engine measures
// against: a TimeProvider abstraction over wall time for testability, and a
// PlayoutClock that tracks position in the audio stream by frames delivered
// rather than by host scheduling.
package clock

import "time"

// TimeProvider abstracts the wall clock and its timers so tests can drive
// time by hand instead of sleeping through real intervals.
type TimeProvider interface {
	// Now returns the current time.
	Now() time.Time
	// NewTicker returns a ticker firing every d.
	NewTicker(d time.Duration) *time.Ticker
	// NewTimer returns a timer firing once after d.
	NewTimer(d time.Duration) *time.Timer
}

// RealTimeProvider is the production TimeProvider, backed by the system
// clock.
type RealTimeProvider struct{}

// Now returns the current system time.
func (RealTimeProvider) Now() time.Time {
	return time.Now()
}

// NewTicker returns a system ticker firing every d.
func (RealTimeProvider) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}

// NewTimer returns a system timer firing once after d.
func (RealTimeProvider) NewTimer(d time.Duration) *time.Timer {
	return time.NewTimer(d)
}

// defaultTimeProvider backs components constructed without an explicit
// provider.
var defaultTimeProvider TimeProvider = RealTimeProvider{}

// SetDefaultTimeProvider replaces the package-level provider, letting tests
// steer every component that did not get one explicitly. Passing nil
// restores the system clock.
func SetDefaultTimeProvider(tp TimeProvider) {
	if tp == nil {
		tp = RealTimeProvider{}
	}
	defaultTimeProvider = tp
}

// Provider returns the given TimeProvider if non-nil, otherwise the
// package-level default.
func Provider(tp TimeProvider) TimeProvider {
	if tp != nil {
		return tp
	}
	return defaultTimeProvider
}
