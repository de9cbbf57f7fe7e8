package world

import "time"

// Clock abstracts wall time so ticks can be replayed in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ManualClock only moves when told to.
type ManualClock struct {
	t time.Time
}

// NewManualClock starts at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{t: t}
}

func (m *ManualClock) Now() time.Time { return m.t }

// Advance moves the clock forward by d.
func (m *ManualClock) Advance(d time.Duration) { m.t = m.t.Add(d) }
