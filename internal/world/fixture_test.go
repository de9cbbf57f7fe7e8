package world

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"lightsniper/internal/scene/memscene"
	"lightsniper/internal/store"
)

// stationCenter is where the test station sits in map space.
var stationCenter = mgl64.Vec3{2048, 0, 2048}

var testLight = LightProperties{Type: "point", Color: "#ffffff", Intensity: 1, Range: 5}

// fixture is a controller over an in-memory scene with one station "HB".
type fixture struct {
	t     *testing.T
	scene *memscene.Scene
	clock *ManualClock
	dir   string
	disk  *store.Disk
	packs *store.Packs
	cfg   Config
	c     *Controller
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		t:     t,
		scene: memscene.New(),
		clock: NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		dir:   dir,
		disk:  store.NewDisk(dir, ""),
	}
	f.cfg = DefaultConfig()
	f.cfg.Seed = 42
	f.cfg.AutosaveInterval = time.Hour
	f.cfg.Stations = []Station{{Yard: "HB", Location: stationCenter}}
	for _, m := range mutate {
		m(&f.cfg)
	}
	f.scene.SetPlayer(stationCenter)
	return f
}

// start builds the controller. Documents and packs must be in place first.
func (f *fixture) start() *fixture {
	f.t.Helper()
	c, err := New(f.cfg, f.scene.Host(), f.disk, f.packs, WithClock(f.clock))
	if err != nil {
		f.t.Fatalf("New failed: %v", err)
	}
	f.c = c
	return f
}

func (f *fixture) station() *Region { return f.c.Region(0) }

func (f *fixture) tick() UpdateTicket {
	f.t.Helper()
	return f.c.Tick(context.Background())
}

// pole adds a root object with a collider at a map space position.
func (f *fixture) pole(name string, x, z float64) *memscene.Node {
	n := f.scene.Add(nil, name, mgl64.Vec3{x, 0, z}, "")
	n.SetCollider(1)
	return n
}

// addLight puts a light straight into the station's default group, bypassing
// the placement path so it is subject to the normal rate limits.
func (f *fixture) addLight(parent string, pos mgl64.Vec3) *Spawner {
	f.t.Helper()
	b, err := newLightBehavior(testLight, f.c.duty, f.c.rng)
	if err != nil {
		f.t.Fatalf("newLightBehavior: %v", err)
	}
	s := newSpawner(b, parent, pos, mgl64.QuatIdent())
	f.c.register(s)
	f.station().DefaultGroup().Add(f.c, s)
	return s
}

// settle advances past the per-spawner search interval.
func (f *fixture) settle() {
	f.clock.Advance(f.cfg.SpawnerUpdateRate + time.Millisecond)
}

func node(t *testing.T, s *Spawner) *memscene.Node {
	t.Helper()
	n, ok := s.Instance().(*memscene.Node)
	if !ok || n == nil {
		t.Fatalf("spawner %s has no live instance", s.Name())
	}
	return n
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func approxVec(a, b mgl64.Vec3) bool { return a.ApproxEqualThreshold(b, 1e-6) }
