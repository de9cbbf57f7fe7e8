package world

import (
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"

	"lightsniper/internal/scene"
)

// MeshProperties reference a mesh asset in a bundle.
type MeshProperties struct {
	Bundle string  `json:"bundle"`
	Asset  string  `json:"asset"`
	Scale  float64 `json:"scale,omitempty"`
}

// Validate requires an asset reference.
func (p MeshProperties) Validate() error {
	if p.Bundle == "" || p.Asset == "" {
		return fmt.Errorf("bundle and asset are required")
	}
	if p.Scale < 0 {
		return fmt.Errorf("scale must not be negative")
	}
	return nil
}

// resourceLoader retries a missing bundle asset with exponential backoff and
// gives up after MaxResourceAttempts.
type resourceLoader struct {
	loaded   bool
	failed   bool
	attempts int
	retryAt  time.Time
	backoff  *backoff.ExponentialBackOff
}

func (r *resourceLoader) ensure(s *Spawner, ctx *tickContext, bundle, asset string) error {
	if r.loaded {
		return nil
	}
	if r.failed {
		return errResourceFailed
	}
	if ctx.now.Before(r.retryAt) {
		return errResourcePending
	}
	err := ctx.c.assets.Load(bundle, asset)
	if err == nil {
		r.loaded = true
		return nil
	}

	r.attempts++
	if r.attempts >= MaxResourceAttempts {
		r.failed = true
		log.Printf("⚠️ Giving up on %s/%s for %s after %d attempts: %v", bundle, asset, s.Name(), r.attempts, err)
		ctx.c.journal.Emit(ctx.now, JournalMissingResource, s.Name(), ctx.c.regionYard(s),
			fmt.Sprintf("%s/%s: %v", bundle, asset, err))
		return errResourceFailed
	}
	if r.backoff == nil {
		r.backoff = backoff.NewExponentialBackOff()
		r.backoff.InitialInterval = time.Second
		r.backoff.MaxInterval = 30 * time.Second
		r.backoff.Reset()
	}
	r.retryAt = ctx.now.Add(r.backoff.NextBackOff())
	return errResourcePending
}

type meshBehavior struct {
	props MeshProperties
	res   resourceLoader
}

func (m *meshBehavior) Kind() Kind { return KindMesh }

func (m *meshBehavior) spawn(s *Spawner, ctx *tickContext, parent scene.Object) (scene.Instance, error) {
	if err := m.res.ensure(s, ctx, m.props.Bundle, m.props.Asset); err != nil {
		return nil, err
	}
	return s.instantiate(ctx.c, parent, scene.Blueprint{
		Bundle:     m.props.Bundle,
		Asset:      m.props.Asset,
		LocalScale: m.props.Scale,
	})
}

func (m *meshBehavior) tick(*Spawner, *tickContext, bool) error { return nil }

// Mesh returns the mesh settings when s is a mesh.
func (s *Spawner) Mesh() (MeshProperties, bool) {
	m, ok := s.behavior.(*meshBehavior)
	if !ok {
		return MeshProperties{}, false
	}
	return m.props, true
}
