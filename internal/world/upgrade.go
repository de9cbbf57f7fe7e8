package world

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"lightsniper/internal/scene"
)

// migration lifts one spawner from schema version from to from+1. up may
// need the parent, which is resolved lazily and at most once per attempt.
type migration struct {
	from int
	up   func(c *Controller, s *Spawner, parent func() scene.Object) error
	down func(s *Spawner)
}

var migrations = []migration{
	{from: 1, up: upgradeEuler, down: downgradeEuler},
	{from: 2, up: upgradeHash, down: downgradeHash},
}

// pendingUpgrades returns the migrations a document of version needs.
func pendingUpgrades(version int) []migration {
	if version <= 0 {
		version = 1
	}
	var out []migration
	for _, m := range migrations {
		if m.from >= version {
			out = append(out, m)
		}
	}
	return out
}

// runUpgrades applies every pending migration in order. On failure the steps
// already applied are reverted so the spawner is retried from scratch.
func (s *Spawner) runUpgrades(c *Controller, parent func() scene.Object) error {
	for i, m := range s.upgrades {
		if err := m.up(c, s, parent); err != nil {
			for j := i - 1; j >= 0; j-- {
				s.upgrades[j].down(s)
			}
			return fmt.Errorf("upgrade v%d to v%d: %w", m.from, m.from+1, err)
		}
	}
	s.upgrades = nil
	s.Dirty = true
	return nil
}

// upgradeEuler converts legacy Euler degrees (applied Z, X, then Y) to a
// quaternion.
func upgradeEuler(_ *Controller, s *Spawner, _ func() scene.Object) error {
	e := s.legacy.euler
	if e == nil {
		return nil
	}
	prev := *e
	s.legacy.undoEuler = &prev
	s.Rotation = eulerQuat(*e)
	s.legacy.euler = nil
	return nil
}

func downgradeEuler(s *Spawner) {
	if s.legacy.undoEuler == nil {
		return
	}
	s.legacy.euler = s.legacy.undoEuler
	s.legacy.undoEuler = nil
	s.Rotation = mgl64.QuatIdent()
}

// upgradeHash splits the legacy combined hash. The parent half is taken from
// the live parent, the legacy value becomes the spawned half.
func upgradeHash(c *Controller, s *Spawner, parent func() scene.Object) error {
	if s.Hash.Parent != 0 {
		return nil
	}
	p := parent()
	if p == nil {
		return ErrMissingParent
	}
	s.legacy.undoHash = s.legacy.hash
	s.Hash = Hash{Parent: parentHash(c.graph, p), Spawned: s.legacy.hash}
	s.legacy.hash = 0
	return nil
}

func downgradeHash(s *Spawner) {
	s.legacy.hash = s.legacy.undoHash
	s.legacy.undoHash = 0
	s.Hash = Hash{}
}

// eulerQuat builds R = Rz * Rx * Ry from degrees.
func eulerQuat(e mgl64.Vec3) mgl64.Quat {
	qx := mgl64.QuatRotate(mgl64.DegToRad(e[0]), mgl64.Vec3{1, 0, 0})
	qy := mgl64.QuatRotate(mgl64.DegToRad(e[1]), mgl64.Vec3{0, 1, 0})
	qz := mgl64.QuatRotate(mgl64.DegToRad(e[2]), mgl64.Vec3{0, 0, 1})
	return qz.Mul(qx).Mul(qy).Normalize()
}

// eulerDegrees converts a quaternion back to Z-X-Y Euler degrees, the form
// version 1 documents store.
func eulerDegrees(q mgl64.Quat) mgl64.Vec3 {
	m := q.Normalize().Mat4()
	// Row-major reading of R = Rz * Rx * Ry.
	sx := m.At(2, 1)
	if sx > 1 {
		sx = 1
	} else if sx < -1 {
		sx = -1
	}
	x := math.Asin(sx)
	var y, z float64
	if math.Abs(sx) < 0.9999 {
		y = math.Atan2(-m.At(2, 0), m.At(2, 2))
		z = math.Atan2(-m.At(0, 1), m.At(1, 1))
	} else {
		y = 0
		z = math.Atan2(m.At(1, 0), m.At(0, 0))
	}
	return mgl64.Vec3{mgl64.RadToDeg(x), mgl64.RadToDeg(y), mgl64.RadToDeg(z)}
}
