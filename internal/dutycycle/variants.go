package dutycycle

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"
)

// Random flicker bounds.
const (
	FlickerMin = 25 * time.Millisecond
	FlickerMax = 500 * time.Millisecond
)

// MaxDuskOffset bounds the per-instance dusk/dawn jitter.
const MaxDuskOffset = 10 * time.Minute

// MaxSequencePeriod bounds the sum of Sequenced timings.
const MaxSequencePeriod = 24 * time.Hour

// Always is permanently on.
type Always struct{}

func (Always) Name() string        { return "Always" }
func (Always) Args() []string      { return nil }
func (a Always) String() string    { return format(a.Name(), nil) }
func (Always) On(ctx Context) bool { return true }

func parseAlways(args []string, _ parseEnv) (DutyCycle, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("expected no arguments, got %d", len(args))
	}
	return Always{}, nil
}

// DuskTillDawn is on during the night window, shifted per instance by a
// random offset so a street of lamps does not switch in one frame.
type DuskTillDawn struct {
	Offset time.Duration
}

// NewDuskTillDawn draws a random offset in [-MaxDuskOffset, MaxDuskOffset].
func NewDuskTillDawn(rng *rand.Rand) *DuskTillDawn {
	span := int64(2 * MaxDuskOffset)
	return &DuskTillDawn{Offset: time.Duration(rng.Int63n(span+1)) - MaxDuskOffset}
}

func (*DuskTillDawn) Name() string     { return "DuskTillDawn" }
func (*DuskTillDawn) Args() []string   { return nil }
func (d *DuskTillDawn) String() string { return format(d.Name(), nil) }

func (d *DuskTillDawn) On(ctx Context) bool {
	return IsNight(ctx.Hour + d.Offset.Hours())
}

func parseDuskTillDawn(args []string, env parseEnv) (DutyCycle, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("expected no arguments, got %d", len(args))
	}
	return NewDuskTillDawn(env.rand), nil
}

// Flashing blinks at Frequency Hz with a 50% duty. A global flasher reads a
// shared source so every light at that frequency blinks in sync.
type Flashing struct {
	Frequency float64
	Global    bool

	source  *FrequencySource
	start   time.Duration
	started bool
}

func (*Flashing) Name() string { return "Flashing" }

func (f *Flashing) Args() []string {
	args := []string{formatFloat(f.Frequency)}
	if f.Global {
		args = append(args, "true")
	}
	return args
}

func (f *Flashing) String() string { return format(f.Name(), f.Args()) }

func (f *Flashing) On(ctx Context) bool {
	if f.source != nil {
		return f.source.On()
	}
	if !f.started {
		f.start = ctx.Elapsed
		f.started = true
	}
	return halfPeriodOn(ctx.Elapsed-f.start, f.Frequency)
}

func parseFlashing(args []string, env parseEnv) (DutyCycle, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("expected 1 or 2 arguments, got %d", len(args))
	}
	freq, err := parseFrequency(args[0])
	if err != nil {
		return nil, err
	}
	f := &Flashing{Frequency: freq}
	if len(args) == 2 {
		if f.Global, err = strconv.ParseBool(args[1]); err != nil {
			return nil, err
		}
	}
	if f.Global {
		if env.registry == nil {
			return nil, errors.New("global flasher needs a registry")
		}
		f.source = env.registry.Source(freq)
	}
	return f, nil
}

// FlashingGlobal always shares its source and may run in antiphase.
type FlashingGlobal struct {
	Frequency float64
	Inverted  bool

	source *FrequencySource
}

func (*FlashingGlobal) Name() string { return "FlashingGlobal" }

func (f *FlashingGlobal) Args() []string {
	args := []string{formatFloat(f.Frequency)}
	if f.Inverted {
		args = append(args, "true")
	}
	return args
}

func (f *FlashingGlobal) String() string { return format(f.Name(), f.Args()) }

func (f *FlashingGlobal) On(ctx Context) bool {
	return f.source.On() != f.Inverted
}

func parseFlashingGlobal(args []string, env parseEnv) (DutyCycle, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("expected 1 or 2 arguments, got %d", len(args))
	}
	if env.registry == nil {
		return nil, errors.New("global flasher needs a registry")
	}
	freq, err := parseFrequency(args[0])
	if err != nil {
		return nil, err
	}
	f := &FlashingGlobal{Frequency: freq, source: env.registry.Source(freq)}
	if len(args) == 2 {
		if f.Inverted, err = strconv.ParseBool(args[1]); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Sequenced alternates on/off through Timings (seconds), starting on. The
// cycle period is the sum of the timings and repeats forever.
type Sequenced struct {
	Timings []float64

	steps   []time.Duration
	period  time.Duration
	start   time.Duration
	started bool
}

// NewSequenced validates the timings.
func NewSequenced(timings ...float64) (*Sequenced, error) {
	if len(timings) == 0 {
		return nil, errors.New("sequence is empty")
	}
	s := &Sequenced{Timings: append([]float64(nil), timings...)}
	for _, t := range timings {
		if math.IsNaN(t) || t < 0 {
			return nil, fmt.Errorf("invalid timing %v", t)
		}
		if t > (MaxSequencePeriod - s.period).Seconds() {
			return nil, fmt.Errorf("sequence longer than %v", MaxSequencePeriod)
		}
		d := time.Duration(t * float64(time.Second))
		s.steps = append(s.steps, d)
		s.period += d
	}
	if s.period <= 0 {
		return nil, errors.New("sequence period is zero")
	}
	return s, nil
}

func (*Sequenced) Name() string { return "Sequenced" }

func (s *Sequenced) Args() []string {
	args := make([]string, len(s.Timings))
	for i, t := range s.Timings {
		args[i] = formatFloat(t)
	}
	return args
}

func (s *Sequenced) String() string { return format(s.Name(), s.Args()) }

// Period is the length of one full cycle.
func (s *Sequenced) Period() time.Duration { return s.period }

// Restart makes the next On call the start of a fresh cycle.
func (s *Sequenced) Restart() { s.started = false }

func (s *Sequenced) On(ctx Context) bool {
	if !s.started {
		s.start = ctx.Elapsed
		s.started = true
	}
	t := (ctx.Elapsed - s.start) % s.period
	if t < 0 {
		t += s.period
	}
	var acc time.Duration
	for i, step := range s.steps {
		acc += step
		if t < acc {
			return i%2 == 0
		}
	}
	return false
}

func parseSequenced(args []string, _ parseEnv) (DutyCycle, error) {
	timings := make([]float64, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, err
		}
		timings = append(timings, v)
	}
	return NewSequenced(timings...)
}

// Random flickers, holding each state for a random 25 to 500ms. With
// NightOnly it stays dark during the day.
type Random struct {
	NightOnly bool

	on          bool
	next        time.Duration
	initialised bool
}

func (*Random) Name() string { return "Random" }

func (r *Random) Args() []string {
	if r.NightOnly {
		return []string{"true"}
	}
	return nil
}

func (r *Random) String() string { return format(r.Name(), r.Args()) }

func (r *Random) On(ctx Context) bool {
	if r.NightOnly && !IsNight(ctx.Hour) {
		return false
	}
	if !r.initialised || ctx.Elapsed >= r.next {
		if r.initialised {
			r.on = !r.on
		} else {
			r.on = true
			r.initialised = true
		}
		r.next = ctx.Elapsed + flicker(ctx)
	}
	return r.on
}

func flicker(ctx Context) time.Duration {
	span := int64(FlickerMax - FlickerMin)
	if ctx.Rand == nil {
		return FlickerMin + time.Duration(span/2)
	}
	return FlickerMin + time.Duration(ctx.Rand.Int63n(span+1))
}

func parseRandom(args []string, _ parseEnv) (DutyCycle, error) {
	switch len(args) {
	case 0:
		return &Random{}, nil
	case 1:
		night, err := strconv.ParseBool(args[0])
		if err != nil {
			return nil, err
		}
		return &Random{NightOnly: night}, nil
	}
	return nil, fmt.Errorf("expected 0 or 1 arguments, got %d", len(args))
}

func parseFrequency(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, fmt.Errorf("frequency must be positive and finite, got %v", f)
	}
	if time.Duration(float64(time.Second)/f) <= 0 {
		return 0, fmt.Errorf("frequency %v is too high", f)
	}
	return f, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func halfPeriodOn(elapsed time.Duration, frequency float64) bool {
	period := time.Duration(float64(time.Second) / frequency)
	if period <= 0 {
		return true
	}
	t := elapsed % period
	if t < 0 {
		t += period
	}
	return t < period/2
}
