package world

import (
	"fmt"
	"math/rand"
	"regexp"

	"lightsniper/internal/dutycycle"
	"lightsniper/internal/scene"
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// LightProperties are the paintable settings of a light.
type LightProperties struct {
	Type      string  `json:"type"` // "point" or "spot"
	Color     string  `json:"color"`
	Intensity float64 `json:"intensity"`
	Range     float64 `json:"range"`
	SpotAngle float64 `json:"spotAngle,omitempty"`
	DutyCycle string  `json:"dutyCycle,omitempty"`
}

// Validate rejects settings a host light cannot take.
func (p LightProperties) Validate() error {
	switch p.Type {
	case "", "point", "spot":
	default:
		return fmt.Errorf("unknown light type %q", p.Type)
	}
	if p.Color != "" && !colorPattern.MatchString(p.Color) {
		return fmt.Errorf("bad color %q, want #rrggbb", p.Color)
	}
	if p.Intensity < 0 || p.Range < 0 {
		return fmt.Errorf("intensity and range must not be negative")
	}
	return nil
}

func (p LightProperties) properties() map[string]any {
	m := map[string]any{
		"type":      p.Type,
		"color":     p.Color,
		"intensity": p.Intensity,
		"range":     p.Range,
	}
	if p.Type == "spot" {
		m["spotAngle"] = p.SpotAngle
	}
	return m
}

type lightBehavior struct {
	props    LightProperties
	duty     dutycycle.DutyCycle
	emitting bool
	known    bool
}

func newLightBehavior(props LightProperties, reg *dutycycle.Registry, rng *rand.Rand) (*lightBehavior, error) {
	if err := props.Validate(); err != nil {
		return nil, err
	}
	duty, err := dutycycle.Parse(props.DutyCycle, reg, rng)
	if err != nil {
		return nil, err
	}
	if props.DutyCycle != "" {
		props.DutyCycle = duty.String()
	}
	return &lightBehavior{props: props, duty: duty}, nil
}

func (l *lightBehavior) Kind() Kind { return KindLight }

func (l *lightBehavior) spawn(s *Spawner, ctx *tickContext, parent scene.Object) (scene.Instance, error) {
	inst, err := s.instantiate(ctx.c, parent, scene.Blueprint{Properties: l.props.properties()})
	if err != nil {
		return nil, err
	}
	l.known = false
	if seq, ok := l.duty.(*dutycycle.Sequenced); ok {
		seq.Restart()
	}
	return inst, nil
}

func (l *lightBehavior) tick(s *Spawner, ctx *tickContext, visible bool) error {
	on := l.duty.On(ctx.duty)
	if !l.known || on != l.emitting {
		s.instance.SetEmitting(on)
		l.emitting = on
		l.known = true
	}
	return nil
}

// Light returns the light settings when s is a light.
func (s *Spawner) Light() (LightProperties, bool) {
	l, ok := s.behavior.(*lightBehavior)
	if !ok {
		return LightProperties{}, false
	}
	return l.props, true
}

// configureLight swaps the light settings and respawns the instance.
// Returns the previous settings.
func (s *Spawner) configureLight(c *Controller, props LightProperties) (LightProperties, error) {
	l, ok := s.behavior.(*lightBehavior)
	if !ok {
		return LightProperties{}, fmt.Errorf("%s is not a light", s.Name())
	}
	next, err := newLightBehavior(props, c.duty, c.rng)
	if err != nil {
		return LightProperties{}, err
	}
	prev := l.props
	s.behavior = next
	s.destroy(c)
	s.ForceUpdate = true
	s.Dirty = true
	return prev, nil
}
