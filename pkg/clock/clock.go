package clock

import (
	"sync"
	"time"
)

// Clock lets services take the current time from an injectable source.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Manual is a clock for tests. Every call to Now advances it by Step so
// consecutive reads are strictly ordered.
type Manual struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now
	m.now = m.now.Add(m.Step)
	return now
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
