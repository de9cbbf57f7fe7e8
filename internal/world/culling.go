package world

import (
	"math/rand"
	"time"

	"lightsniper/internal/scene"
)

// fade maps a player distance to a pre-cull fade and a culled flag.
func (c CullConfig) fade(dist float64) (float64, bool) {
	if c.Radius <= 0 {
		return 1, false
	}
	if dist > c.Radius {
		return 0, true
	}
	start := c.Radius * c.FadeStart
	if dist <= start || start >= c.Radius {
		return 1, false
	}
	return (c.Radius - dist) / (c.Radius - start), false
}

// inhibit is how long far spawners skip their next distance check.
func (c CullConfig) inhibit(dist float64, rng *rand.Rand) time.Duration {
	if c.Radius <= 0 || dist <= c.Radius*c.InhibitNear {
		return 0
	}
	w := c.InhibitMin
	if span := c.InhibitMax - c.InhibitMin; span > 0 {
		w += time.Duration(rng.Int63n(int64(span)))
	}
	if dist > c.Radius*c.InhibitFar {
		w *= 2
	}
	return w
}

func (s *Spawner) resetCulling() {
	s.cullChecked = false
	s.cullInhibitUntil = time.Time{}
	s.Culled = false
	s.PreCullFade = 1
}

// updateCulling applies distance culling and returns visibility. A global
// spawner beyond its CullDistance is despawned outright.
func (s *Spawner) updateCulling(ctx *tickContext) bool {
	if s.instance == nil {
		return false
	}
	if s.cullChecked && (ctx.player == s.cullPlayer || ctx.now.Before(s.cullInhibitUntil)) {
		return !s.Culled
	}
	s.cullChecked = true
	s.cullPlayer = ctx.player

	c := ctx.c
	pos := scene.MapPosition(c.graph, s.instance.Position())
	s.lastMapPosition = pos
	dist := pos.Sub(ctx.player).Len()

	if s.IsGlobal() && s.CullDistance > 0 && dist > s.CullDistance {
		s.destroy(c)
		return false
	}

	cfg := c.cfg.Culling
	fade, culled := cfg.fade(dist)
	if culled != s.Culled {
		s.instance.SetActive(!culled)
		s.Culled = culled
	}
	if fade != s.PreCullFade {
		s.instance.SetFade(fade)
		s.PreCullFade = fade
	}
	s.cullInhibitUntil = ctx.now.Add(cfg.inhibit(dist, c.rng))
	return !culled
}
