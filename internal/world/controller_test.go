package world

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"lightsniper/internal/scene"
)

// TestNewBuildsRegions verifies stations come first and tiles cover the map
func TestNewBuildsRegions(t *testing.T) {
	f := newFixture(t).start()

	if got, want := len(f.c.regions), 1+TileCount*TileCount; got != want {
		t.Fatalf("Expected %d regions, got %d", want, got)
	}
	if f.station().Yard != "HB" || f.station().IsTile() {
		t.Errorf("Expected station HB first, got %s", f.station().Yard)
	}
	for _, r := range f.c.regions {
		if r.DefaultGroup() == nil || r.CurrentGroup() != r.DefaultGroup() {
			t.Fatalf("Region %s has no current default group", r.Yard)
		}
		if r.DefaultGroup().Name != DefaultGroupName {
			t.Errorf("Expected default group %q, got %q", DefaultGroupName, r.DefaultGroup().Name)
		}
	}
}

// TestNewRejectsIncompleteHost verifies missing collaborators fail fast
func TestNewRejectsIncompleteHost(t *testing.T) {
	f := newFixture(t)
	host := f.scene.Host()
	host.Assets = nil
	if _, err := New(f.cfg, host, f.disk, nil); err == nil {
		t.Error("Expected error for host without assets")
	}
}

// TestRegionFor verifies stations win over tiles and the map edge is enforced
func TestRegionFor(t *testing.T) {
	f := newFixture(t).start()

	tests := []struct {
		name string
		p    mgl64.Vec3
		yard string
	}{
		{"station centre", stationCenter, "HB"},
		{"inside station radius", stationCenter.Add(mgl64.Vec3{1000, 0, 0}), "HB"},
		{"first tile", mgl64.Vec3{100, 0, 100}, "tile_0_0"},
		{"tile past station radius", mgl64.Vec3{3100, 0, 2048}, "tile_3_2"},
		{"last tile", mgl64.Vec3{16383, 0, 16383}, "tile_15_15"},
		{"negative", mgl64.Vec3{-1, 0, 0}, ""},
		{"past the edge", mgl64.Vec3{TileSize * TileCount, 0, 0}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := f.c.RegionFor(tt.p)
			got := ""
			if r != nil {
				got = r.Yard
			}
			if got != tt.yard {
				t.Errorf("RegionFor(%v) = %q, want %q", tt.p, got, tt.yard)
			}
		})
	}
}

// TestRegionContains verifies core and tick radius tests
func TestRegionContains(t *testing.T) {
	f := newFixture(t).start()
	st := f.station()
	p := stationCenter.Add(mgl64.Vec3{1200, 0, 0})

	if st.Contains(p, false, false) {
		t.Error("Point at 1200 should be outside the core radius")
	}
	if !st.Contains(p, true, false) {
		t.Error("Point at 1200 should be inside the tick radius")
	}
	if st.Contains(p, true, true) {
		t.Error("radiusOnly should force the core radius")
	}

	tile := f.c.RegionFor(mgl64.Vec3{100, 0, 100})
	if !tile.Contains(mgl64.Vec3{-100, 0, 100}, true, false) {
		t.Error("Tile tick area should extend past its edge")
	}
	if tile.Contains(mgl64.Vec3{-100, 0, 100}, false, false) {
		t.Error("Tile core area should stop at its edge")
	}
}

// TestTickSpawnsUnderParent verifies a light appears under its anchor
func TestTickSpawnsUnderParent(t *testing.T) {
	f := newFixture(t).start()
	pole := f.pole("Pole", 2060, 2048)
	s := f.addLight("Pole", mgl64.Vec3{0, 3, 0})

	ticket := f.tick()

	if ticket.Spawned != 1 || ticket.Searches != 1 {
		t.Fatalf("Expected 1 search and 1 spawn, got %d/%d", ticket.Searches, ticket.Spawned)
	}
	n := node(t, s)
	if n.Parent() != pole {
		t.Error("Instance should be a child of the pole")
	}
	if n.Name() != "LS_HB_user_Light_1" {
		t.Errorf("Unexpected instance name %q", n.Name())
	}
	if got := f.scene.PathOf(n); got != "Pole/LS_HB_user_Light_1" {
		t.Errorf("Unexpected path %q", got)
	}
	if s.Hash.Parent == 0 || s.Hash.Spawned == 0 {
		t.Error("Both hashes should be recorded after the first spawn")
	}
	if !s.Dirty {
		t.Error("Recording hashes should dirty the spawner")
	}
	if p, ok := s.MapPosition(); !ok || !approxVec(p, mgl64.Vec3{2060, 3, 2048}) {
		t.Errorf("Unexpected map position %v", p)
	}
}

// TestTicketBudgetAndBackoff verifies an exhausted budget pauses searches
func TestTicketBudgetAndBackoff(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.AllowedUpdates = 2 }).start()
	for _, name := range []string{"A", "B", "C"} {
		f.pole(name, 2060, 2048)
		f.addLight(name, mgl64.Vec3{})
	}

	// A parented spawn costs its search plus one extra mark.
	first := f.tick()
	if first.Spawned != 1 || first.Searches != 1 {
		t.Fatalf("Expected one search and spawn with a budget of 2, got %d/%d", first.Searches, first.Spawned)
	}
	if !first.Exhausted() {
		t.Error("Ticket should be exhausted")
	}
	if !f.c.Stats().BackingOff {
		t.Error("Controller should be backing off")
	}

	second := f.tick()
	if second.Budget() != 0 || second.Searches != 0 {
		t.Errorf("Expected no budget while backing off, got budget %d searches %d", second.Budget(), second.Searches)
	}

	f.clock.Advance(f.cfg.BackoffTime)
	third := f.tick()
	if third.Budget() != 2 || third.Spawned != 1 {
		t.Errorf("Expected budget restored and one spawn, got budget %d spawned %d", third.Budget(), third.Spawned)
	}
}

// TestTicketBudgetDefersSearches verifies a budget of 2 performs exactly 2
// searches among 5 eligible spawners and leaves the rest for later ticks
func TestTicketBudgetDefersSearches(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.AllowedUpdates = 2 }).start()
	var lights []*Spawner
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		lights = append(lights, f.addLight("Missing"+name, mgl64.Vec3{}))
	}

	first := f.tick()
	if first.Searches != 2 || first.Orphans != 2 {
		t.Fatalf("Expected 2 searches with a budget of 2, got %d searches %d orphans", first.Searches, first.Orphans)
	}
	if !first.Exhausted() {
		t.Error("Ticket should be exhausted")
	}

	f.clock.Advance(f.cfg.BackoffTime)
	second := f.tick()
	if second.Searches != 2 {
		t.Errorf("Expected 2 deferred searches, got %d", second.Searches)
	}

	f.clock.Advance(f.cfg.BackoffTime)
	third := f.tick()
	if third.Searches != 1 || third.Exhausted() {
		t.Errorf("Expected the last deferred search with budget to spare, got %d searches", third.Searches)
	}
	for _, s := range lights {
		if s.Active() || s.Deleted {
			t.Errorf("Orphan %s should stay waiting", s.Name())
		}
	}
}

// TestSpawnerRateLimit verifies an orphan is searched at most once per interval
func TestSpawnerRateLimit(t *testing.T) {
	f := newFixture(t).start()
	f.addLight("Missing", mgl64.Vec3{})

	if tk := f.tick(); tk.Searches != 1 || tk.Orphans != 1 {
		t.Fatalf("Expected 1 search and 1 orphan, got %d/%d", tk.Searches, tk.Orphans)
	}
	f.clock.Advance(time.Second)
	if tk := f.tick(); tk.Searches != 0 {
		t.Errorf("Expected the spawner to be rate limited, got %d searches", tk.Searches)
	}
	f.settle()
	if tk := f.tick(); tk.Searches != 1 {
		t.Errorf("Expected a search after the interval, got %d", tk.Searches)
	}
}

// TestUpdateLimitsTickRate verifies Update honors the tick rate
func TestUpdateLimitsTickRate(t *testing.T) {
	f := newFixture(t).start()
	ctx := context.Background()

	if !f.c.Update(ctx) {
		t.Fatal("First update should tick")
	}
	if f.c.Update(ctx) {
		t.Error("Second update at the same instant should be skipped")
	}
	f.clock.Advance(time.Second/time.Duration(f.cfg.TickRate) + time.Millisecond)
	if !f.c.Update(ctx) {
		t.Error("Update after one tick period should tick")
	}
	if got := f.c.Stats().Totals.Ticks; got != 2 {
		t.Errorf("Expected 2 ticks, got %d", got)
	}
}

// TestHashAnomalyAndFreeOrphans verifies moved parents are refused until
// free orphans is active
func TestHashAnomalyAndFreeOrphans(t *testing.T) {
	f := newFixture(t).start()
	pole := f.pole("Pole", 2060, 2048)
	s := f.addLight("Pole", mgl64.Vec3{})
	f.tick()
	recorded := s.Hash.Parent

	pole.SetLocal(mgl64.Vec3{2070, 0, 2048})
	f.scene.Destroy(s.Instance())
	f.settle()

	tk := f.tick()
	if tk.Anomalies != 1 {
		t.Fatalf("Expected an anomaly, got %d", tk.Anomalies)
	}
	if s.Active() {
		t.Error("Spawner should not respawn on a moved parent")
	}
	if s.Hash.Parent != recorded {
		t.Error("Parent hash should be unchanged after an anomaly")
	}

	if res := f.c.FreeOrphans(time.Minute); !res.Success {
		t.Fatalf("FreeOrphans failed: %s", res.Message)
	}
	f.settle()
	tk = f.tick()
	if tk.Anomalies != 0 || !s.Active() {
		t.Fatalf("Expected adoption, got anomalies %d active %v", tk.Anomalies, s.Active())
	}
	if s.Hash.Parent == recorded {
		t.Error("Adoption should record the new parent hash")
	}

	var adopted bool
	for _, e := range f.c.Journal().Recent(0) {
		if e.Kind == JournalAdopted && e.Spawner == s.Name() {
			adopted = true
		}
	}
	if !adopted {
		t.Error("Expected an adopted journal entry")
	}
}

// TestKillOrphans verifies orphans are deleted while the window is open
func TestKillOrphans(t *testing.T) {
	f := newFixture(t).start()
	s := f.addLight("Missing", mgl64.Vec3{})

	f.c.KillOrphans(time.Minute)
	if st := f.c.Stats(); !st.KillOrphans || st.FreeOrphans {
		t.Errorf("Expected only kill orphans active, got %+v", st)
	}
	f.tick()
	if !s.Deleted {
		t.Fatal("Orphan should be deleted")
	}

	// Opening the other window closes this one.
	f.c.FreeOrphans(time.Minute)
	if st := f.c.Stats(); st.KillOrphans || !st.FreeOrphans {
		t.Errorf("Expected only free orphans active, got %+v", st)
	}
}

// TestKillOrphansTakesMeshLights verifies a killed mesh takes its attached
// lights with it even when they were not searched this tick
func TestKillOrphansTakesMeshLights(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.AllowedUpdates = 1 }).start()
	pole := f.pole("Pole", 2060, 2048)
	placed := f.snipe(meshTemplate(1))
	mesh := f.c.spawner(placed.Spawners[0])
	light := f.c.spawner(placed.Spawners[1])
	mesh.ForceUpdate, light.ForceUpdate = false, false
	f.scene.Destroy(pole)

	f.c.KillOrphans(time.Minute)
	tk := f.tick()
	if tk.Searches != 1 {
		t.Fatalf("Expected only the mesh to be searched, got %d", tk.Searches)
	}
	if !mesh.Deleted {
		t.Fatal("Orphaned mesh should be deleted")
	}
	if !light.Deleted {
		t.Error("Attached light should be deleted with its mesh")
	}
	if got := f.station().DefaultGroup().Count(KindLight); got != 0 {
		t.Errorf("Expected no live lights, got %d", got)
	}
}

// TestOrphanMarker verifies a marker is raised where the orphan was last seen
func TestOrphanMarker(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.ShowOrphans = true }).start()
	pole := f.pole("Pole", 2060, 2048)
	s := f.addLight("Pole", mgl64.Vec3{})
	f.tick()

	f.scene.Destroy(pole)
	f.settle()
	if tk := f.tick(); tk.Orphans != 1 {
		t.Fatalf("Expected an orphan, got %d", tk.Orphans)
	}
	if s.marker == nil || !s.marker.Alive() {
		t.Fatal("Expected a live orphan marker")
	}
	if !strings.HasPrefix(s.marker.Name(), "LS_orphan_") {
		t.Errorf("Unexpected marker name %q", s.marker.Name())
	}
	if len(f.c.markers) != 1 {
		t.Errorf("Expected the marker to be indexed, got %d", len(f.c.markers))
	}

	f.pole("Pole", 2060, 2048)
	f.settle()
	f.tick()
	if s.marker != nil || len(f.c.markers) != 0 {
		t.Error("Marker should be cleared once the parent is back")
	}
}

// faultyBehavior spawns fine and then fails every tick.
type faultyBehavior struct {
	panics bool
}

func (faultyBehavior) Kind() Kind { return KindLight }

func (faultyBehavior) spawn(s *Spawner, ctx *tickContext, parent scene.Object) (scene.Instance, error) {
	return s.instantiate(ctx.c, parent, scene.Blueprint{})
}

func (b faultyBehavior) tick(*Spawner, *tickContext, bool) error {
	if b.panics {
		panic("bulb exploded")
	}
	return errors.New("bulb exploded")
}

// TestErroredSpawnerDeleted verifies failing spawners are removed after the tick
func TestErroredSpawnerDeleted(t *testing.T) {
	for _, panics := range []bool{false, true} {
		f := newFixture(t).start()
		f.pole("Pole", 2060, 2048)
		s := newSpawner(faultyBehavior{panics: panics}, "Pole", mgl64.Vec3{}, mgl64.QuatIdent())
		f.c.register(s)
		f.station().DefaultGroup().Add(f.c, s)

		f.tick()
		if !s.Active() {
			t.Fatalf("panics=%v: expected spawn on the first tick", panics)
		}
		tk := f.tick()
		if tk.Errored != 1 {
			t.Errorf("panics=%v: expected 1 errored, got %d", panics, tk.Errored)
		}
		if !s.Deleted || s.Active() {
			t.Errorf("panics=%v: errored spawner should be deleted and despawned", panics)
		}
	}
}

// TestMissingResourceGivesUp verifies bounded asset retries
func TestMissingResourceGivesUp(t *testing.T) {
	f := newFixture(t).start()
	f.pole("Pole", 2060, 2048)
	f.scene.SetMissing("props", "lamp", true)

	res := f.c.Snipe(context.Background(), mgl64.Vec3{2048, 0, 2048}, mgl64.Vec3{1, 0, 0}, Template{
		Mesh: &MeshProperties{Bundle: "props", Asset: "lamp"},
	})
	if !res.Success {
		t.Fatalf("Snipe failed: %s", res.Message)
	}

	for i := 0; i < 3*MaxResourceAttempts; i++ {
		f.tick()
		f.clock.Advance(time.Minute)
	}
	if got := f.scene.LoadCount(); got != MaxResourceAttempts {
		t.Errorf("Expected %d load attempts, got %d", MaxResourceAttempts, got)
	}
	s := f.c.spawner(res.Spawners[0])
	if s.Active() || s.Deleted {
		t.Errorf("Mesh should stay inactive but kept, active=%v deleted=%v", s.Active(), s.Deleted)
	}
}

// TestLoadingScreenPausesSpawning verifies nothing spawns while loading
func TestLoadingScreenPausesSpawning(t *testing.T) {
	f := newFixture(t).start()
	f.pole("Pole", 2060, 2048)
	s := f.addLight("Pole", mgl64.Vec3{})

	f.scene.SetLoading(true)
	if tk := f.tick(); tk.Searches != 0 {
		t.Errorf("Expected no searches while loading, got %d", tk.Searches)
	}
	f.scene.SetLoading(false)
	f.tick()
	if !s.Active() {
		t.Error("Spawner should spawn once loading ends")
	}
}

// TestOriginShiftKeepsHashes verifies hashes are taken in map space
func TestOriginShiftKeepsHashes(t *testing.T) {
	f := newFixture(t).start()
	f.pole("Pole", 2060, 2048)
	s := f.addLight("Pole", mgl64.Vec3{})
	f.tick()
	recorded := s.Hash.Parent

	f.scene.ShiftOrigin(mgl64.Vec3{-1000, 0, 500})
	f.scene.Destroy(s.Instance())
	f.settle()
	tk := f.tick()

	if tk.Anomalies != 0 || !s.Active() {
		t.Fatalf("Expected a clean respawn after an origin shift, anomalies %d", tk.Anomalies)
	}
	if s.Hash.Parent != recorded {
		t.Error("Parent hash should survive an origin shift")
	}
}

// TestCloseSavesDirtyGroups verifies Close writes pending changes
func TestCloseSavesDirtyGroups(t *testing.T) {
	f := newFixture(t).start()
	f.pole("Pole", 2060, 2048)
	f.addLight("Pole", mgl64.Vec3{})

	if err := f.c.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := f.disk.Read("HB", DefaultGroupName); err != nil {
		t.Errorf("Expected the default group on disk: %v", err)
	}
	if f.station().DefaultGroup().IsDirty() {
		t.Error("Group should be clean after Close")
	}
}

// TestStartStop verifies the loop can start and stop without panics
func TestStartStop(t *testing.T) {
	f := newFixture(t).start()
	f.c.Start()
	f.c.Start()
	time.Sleep(20 * time.Millisecond)
	f.c.Stop()
	f.c.Stop()
}
