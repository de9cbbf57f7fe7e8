package world

import "time"

// UpdateTicket is the per-tick budget token. It limits expensive parent
// searches and collects diagnostics for the tick.
type UpdateTicket struct {
	UpdatesRemaining int
	StartTime        time.Time

	Searches  int
	Orphans   int // "drift": parent not found
	Anomalies int // parent moved since the hash was recorded
	Spawned   int
	Destroyed int
	Errored   int

	ActiveLights       int
	VisibleLights      int
	ActiveMeshes       int
	VisibleMeshes      int
	ActiveDecorations  int
	VisibleDecorations int

	budget  int
	clock   Clock
	maxTime time.Duration
}

// NewUpdateTicket starts a ticket with budget searches and a wall clock cap.
func NewUpdateTicket(clock Clock, budget int, maxTime time.Duration) *UpdateTicket {
	return &UpdateTicket{
		UpdatesRemaining: budget,
		StartTime:        clock.Now(),
		budget:           budget,
		clock:            clock,
		maxTime:          maxTime,
	}
}

// HasUpdatesRemaining reports whether another search fits in this tick.
func (t *UpdateTicket) HasUpdatesRemaining() bool {
	if t.UpdatesRemaining <= 0 {
		return false
	}
	return !t.Overran()
}

// Overran reports whether the tick exceeded its wall clock budget.
func (t *UpdateTicket) Overran() bool {
	return t.maxTime > 0 && t.clock.Now().Sub(t.StartTime) >= t.maxTime
}

// Mark consumes one unit of budget.
func (t *UpdateTicket) Mark() {
	t.UpdatesRemaining--
}

// Budget is the budget the ticket started with.
func (t *UpdateTicket) Budget() int { return t.budget }

// Exhausted reports whether a non-zero budget was fully used or timed out.
func (t *UpdateTicket) Exhausted() bool {
	return t.budget > 0 && (t.UpdatesRemaining <= 0 || t.Overran())
}

func (t *UpdateTicket) countActive(kind Kind, visible bool) {
	switch kind {
	case KindLight:
		t.ActiveLights++
		if visible {
			t.VisibleLights++
		}
	case KindMesh:
		t.ActiveMeshes++
		if visible {
			t.VisibleMeshes++
		}
	case KindDecoration:
		t.ActiveDecorations++
		if visible {
			t.VisibleDecorations++
		}
	}
}
