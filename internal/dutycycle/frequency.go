package dutycycle

import (
	"math"
	"time"
)

// frequencyTolerance is how close two frequencies must be to share a source.
const frequencyTolerance = 0.001

// FrequencySource is flasher state shared by every global flasher with the
// same frequency.
type FrequencySource struct {
	Frequency float64
	on        bool
}

// On reports the phase computed by the last Registry.Tick.
func (s *FrequencySource) On() bool { return s.on }

func (s *FrequencySource) update(elapsed time.Duration) {
	s.on = halfPeriodOn(elapsed, s.Frequency)
}

// Registry owns shared frequency sources. It is not safe for concurrent use;
// the controller ticks it from its own loop.
type Registry struct {
	sources []*FrequencySource
	elapsed time.Duration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Source returns the shared source for frequency, creating it when no
// existing source is within tolerance.
func (r *Registry) Source(frequency float64) *FrequencySource {
	for _, s := range r.sources {
		if sameFrequency(s.Frequency, frequency) {
			return s
		}
	}
	s := &FrequencySource{Frequency: frequency}
	s.update(r.elapsed)
	r.sources = append(r.sources, s)
	return s
}

// Tick advances every shared source to elapsed.
func (r *Registry) Tick(elapsed time.Duration) {
	r.elapsed = elapsed
	for _, s := range r.sources {
		s.update(elapsed)
	}
}

// Len returns the number of shared sources.
func (r *Registry) Len() int { return len(r.sources) }

// Reset drops every source. Flashers parsed earlier keep their pointers but
// stop being advanced.
func (r *Registry) Reset() {
	r.sources = nil
	r.elapsed = 0
}

func sameFrequency(a, b float64) bool {
	return math.Abs(a-b) < frequencyTolerance
}
