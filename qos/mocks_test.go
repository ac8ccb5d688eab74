package qos

import (
	"sync"
	"time"
)

// mockTimeProvider implements clock.TimeProvider with manually advanced time
// for deterministic tests.
type mockTimeProvider struct {
	mu      sync.Mutex
	current time.Time
}

func newMockTimeProvider(start time.Time) *mockTimeProvider {
	return &mockTimeProvider{current: start}
}

func (m *mockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *mockTimeProvider) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
	return m.current
}

func (m *mockTimeProvider) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}

func (m *mockTimeProvider) NewTimer(d time.Duration) *time.Timer {
	return time.NewTimer(d)
}
