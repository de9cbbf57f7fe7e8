package world

import (
	"fmt"
	"math/rand"

	"lightsniper/internal/dutycycle"
	"lightsniper/internal/scene"
)

// decorationReplaceDistance is how close two decorations of one asset may sit
// before the newer one replaces the older.
const decorationReplaceDistance = 0.5

// DecorationProperties reference a decorative asset, optionally switched by
// a duty cycle.
type DecorationProperties struct {
	Bundle    string  `json:"bundle"`
	Asset     string  `json:"asset"`
	Scale     float64 `json:"scale,omitempty"`
	DutyCycle string  `json:"dutyCycle,omitempty"`
}

// Validate requires an asset reference.
func (p DecorationProperties) Validate() error {
	return MeshProperties{Bundle: p.Bundle, Asset: p.Asset, Scale: p.Scale}.Validate()
}

type decorationBehavior struct {
	props DecorationProperties
	duty  dutycycle.DutyCycle
	res   resourceLoader
	shown bool
	known bool
}

func newDecorationBehavior(props DecorationProperties, reg *dutycycle.Registry, rng *rand.Rand) (*decorationBehavior, error) {
	if err := props.Validate(); err != nil {
		return nil, err
	}
	duty, err := dutycycle.Parse(props.DutyCycle, reg, rng)
	if err != nil {
		return nil, fmt.Errorf("decoration duty cycle: %w", err)
	}
	if props.DutyCycle != "" {
		props.DutyCycle = duty.String()
	}
	return &decorationBehavior{props: props, duty: duty}, nil
}

func (d *decorationBehavior) Kind() Kind { return KindDecoration }

func (d *decorationBehavior) spawn(s *Spawner, ctx *tickContext, parent scene.Object) (scene.Instance, error) {
	if err := d.res.ensure(s, ctx, d.props.Bundle, d.props.Asset); err != nil {
		return nil, err
	}
	d.known = false
	return s.instantiate(ctx.c, parent, scene.Blueprint{
		Bundle:     d.props.Bundle,
		Asset:      d.props.Asset,
		LocalScale: d.props.Scale,
	})
}

func (d *decorationBehavior) tick(s *Spawner, ctx *tickContext, visible bool) error {
	on := d.duty.On(ctx.duty)
	if !d.known || on != d.shown {
		s.instance.SetEmitting(on)
		d.shown = on
		d.known = true
	}
	return nil
}

// Decoration returns the decoration settings when s is a decoration.
func (s *Spawner) Decoration() (DecorationProperties, bool) {
	d, ok := s.behavior.(*decorationBehavior)
	if !ok {
		return DecorationProperties{}, false
	}
	return d.props, true
}
