// Package dutycycle provides the on/off timing strategies attached to lights
// and decorations.
//
// A duty cycle is serialised as "Name(arg,arg,...)" and parsed back through a
// closed table of variant tags. Variants that share state between instances
// (the global flashers) draw it from a Registry owned by the caller.
package dutycycle

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Night window in host hours.
const (
	Dusk = 19.0
	Dawn = 6.0
)

// ErrUnknown is returned for an unregistered variant tag.
var ErrUnknown = errors.New("dutycycle: unknown variant")

// ErrSyntax is returned for strings that are not "Name(args)".
var ErrSyntax = errors.New("dutycycle: malformed")

// Context is the per-tick input of a duty cycle.
type Context struct {
	Elapsed time.Duration // monotonic time since the controller started
	Hour    float64
	Rand    *rand.Rand
}

// DutyCycle decides whether its owner is on for the current tick.
// Implementations may keep per-instance phase state.
type DutyCycle interface {
	Name() string
	Args() []string
	String() string
	On(ctx Context) bool
}

// IsNight reports whether hour falls in the dusk-till-dawn window.
func IsNight(hour float64) bool {
	for hour < 0 {
		hour += 24
	}
	for hour >= 24 {
		hour -= 24
	}
	return hour >= Dusk || hour < Dawn
}

type parseEnv struct {
	registry *Registry
	rand     *rand.Rand
}

type parser func(args []string, env parseEnv) (DutyCycle, error)

// variants is the closed tag table used by Parse.
var variants = map[string]parser{
	"Always":         parseAlways,
	"DuskTillDawn":   parseDuskTillDawn,
	"Flashing":       parseFlashing,
	"FlashingGlobal": parseFlashingGlobal,
	"Sequenced":      parseSequenced,
	"Random":         parseRandom,
}

// Names lists the registered variant tags.
func Names() []string {
	return []string{"Always", "DuskTillDawn", "Flashing", "FlashingGlobal", "Sequenced", "Random"}
}

// Parse turns "Name(arg,...)" back into a duty cycle. An empty string parses
// as Always. reg may be nil when no shared flashers are expected; rng may be
// nil to use a time-seeded source.
func Parse(s string, reg *Registry, rng *rand.Rand) (DutyCycle, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Always{}, nil
	}
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	name := strings.TrimSpace(s[:open])
	body := strings.TrimSpace(s[open+1 : len(s)-1])

	var args []string
	if body != "" {
		for _, a := range strings.Split(body, ",") {
			args = append(args, strings.TrimSpace(a))
		}
	}

	p, ok := variants[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	dc, err := p(args, parseEnv{registry: reg, rand: rng})
	if err != nil {
		return nil, fmt.Errorf("dutycycle: parse %s: %w", name, err)
	}
	return dc, nil
}

// Equivalent compares two duty cycles by serialised form. Shared flashers
// compare by frequency proximity instead of exact text.
func Equivalent(a, b DutyCycle) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Name() != b.Name() {
		return false
	}
	switch x := a.(type) {
	case *Flashing:
		y := b.(*Flashing)
		return x.Global == y.Global && sameFrequency(x.Frequency, y.Frequency)
	case *FlashingGlobal:
		y := b.(*FlashingGlobal)
		return x.Inverted == y.Inverted && sameFrequency(x.Frequency, y.Frequency)
	}
	return a.String() == b.String()
}

func format(name string, args []string) string {
	return name + "(" + strings.Join(args, ",") + ")"
}
