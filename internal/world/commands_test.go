package world

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"lightsniper/internal/scene"
	"lightsniper/internal/store"
)

var (
	aimOrigin = mgl64.Vec3{2048, 0, 2048}
	aimEast   = mgl64.Vec3{1, 0, 0}
)

// snipe aims east from the station centre at the pole placed at x=2060.
func (f *fixture) snipe(tpl Template) ActionResult {
	f.t.Helper()
	return f.c.Snipe(context.Background(), aimOrigin, aimEast, tpl)
}

func lightTemplate() Template {
	p := testLight
	return Template{Name: "lamp", Light: &p}
}

func meshTemplate(lights int) Template {
	tpl := Template{Name: "post", Mesh: &MeshProperties{Bundle: "props", Asset: "post"}}
	for i := 0; i < lights; i++ {
		tpl.Lights = append(tpl.Lights, AttachedLight{
			Offset:     mgl64.Vec3{0, float64(2 + i), 0},
			Properties: testLight,
		})
	}
	return tpl
}

func decorationTemplate() Template {
	return Template{Name: "flag", Decoration: &DecorationProperties{Bundle: "props", Asset: "flag"}}
}

// writePack builds a zip content pack in dir
func writePack(t *testing.T, dir, id string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, id+store.PackExt))
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, body := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

// withPack mounts a pack carrying one decoration on the pole in yard HB
func (f *fixture) withPack() *fixture {
	f.t.Helper()
	dir := f.t.TempDir()
	writePack(f.t, dir, "content", map[string]string{
		"HB/fixtures.json": `{
  "version": 3,
  "lights": [],
  "meshes": [],
  "decorations": [
    {"id": 1, "parent": "Pole", "position": [-1, 0, 0], "decoration": {"bundle": "props", "asset": "flag"}}
  ]
}`,
	})
	packs, err := store.MountDir(dir)
	if err != nil {
		f.t.Fatalf("MountDir: %v", err)
	}
	f.t.Cleanup(func() { packs.Close() })
	f.packs = packs
	return f
}

// TestSnipeRejections verifies the failure messages of a placement
func TestSnipeRejections(t *testing.T) {
	f := newFixture(t).start()
	f.pole("Pole", 2060, 2048)
	f.pole("Beyond", -50, -50)

	tests := []struct {
		name      string
		origin    mgl64.Vec3
		direction mgl64.Vec3
		tpl       Template
		message   string
		color     string
	}{
		{"empty template", aimOrigin, aimEast, Template{Name: "nothing"}, "Selected template is empty", ColorError},
		{"no target", aimOrigin, mgl64.Vec3{0, 1, 0}, lightTemplate(), "No Target", ColorWarning},
		{"outside the map", mgl64.Vec3{-40, 0, -50}, mgl64.Vec3{-1, 0, 0}, lightTemplate(), "Outside the map", ColorWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.c.Snipe(context.Background(), tt.origin, tt.direction, tt.tpl)
			if res.Success {
				t.Fatal("Expected failure")
			}
			if res.Message != tt.message || res.Color != tt.color {
				t.Errorf("Got %q (%s), want %q (%s)", res.Message, res.Color, tt.message, tt.color)
			}
		})
	}
}

// TestSnipeLight verifies a light lands on the hit surface and spawns
func TestSnipeLight(t *testing.T) {
	f := newFixture(t).start()
	f.pole("Pole", 2060, 2048)

	res := f.snipe(lightTemplate())
	if !res.Success || len(res.Spawners) != 1 {
		t.Fatalf("Snipe failed: %+v", res)
	}
	s := f.c.spawner(res.Spawners[0])
	if s.ParentPath != "Pole" {
		t.Errorf("Expected parent Pole, got %q", s.ParentPath)
	}
	if !approxVec(s.Position, mgl64.Vec3{-1, 0, 0}) {
		t.Errorf("Expected local position on the pole surface, got %v", s.Position)
	}
	if s.Hash.Parent == 0 {
		t.Error("Placement should record the parent hash")
	}

	f.tick()
	p, _ := s.MapPosition()
	if !s.Active() || !approxVec(p, mgl64.Vec3{2059, 0, 2048}) {
		t.Errorf("Expected an active light at the hit point, got active=%v at %v", s.Active(), p)
	}
	info, ok := f.c.Nearest(KindLight, mgl64.Vec3{2059, 0, 2048}, 5)
	if !ok || info.ID != s.ID {
		t.Errorf("Nearest should find the light, got %+v", info)
	}
	if _, ok := f.c.Nearest(KindMesh, mgl64.Vec3{2059, 0, 2048}, 5); ok {
		t.Error("Nearest mesh should find nothing")
	}
	if f.c.UndoSteps() != 1 {
		t.Errorf("Expected 1 undo step, got %d", f.c.UndoSteps())
	}
}

// TestSnipeClimbsToSuitableAncestor verifies a stretched child hands the
// placement to its uniformly scaled parent
func TestSnipeClimbsToSuitableAncestor(t *testing.T) {
	f := newFixture(t).start()
	building := f.scene.Add(nil, "Building", mgl64.Vec3{2060, 0, 2048}, "")
	beam := f.scene.Add(building, "Beam", mgl64.Vec3{}, "")
	beam.SetLocalScale(mgl64.Vec3{1, 5, 1})
	beam.SetCollider(1)

	res := f.snipe(lightTemplate())
	if !res.Success {
		t.Fatalf("Snipe failed: %s", res.Message)
	}
	s := f.c.spawner(res.Spawners[0])
	if s.ParentPath != "Building" {
		t.Errorf("Expected parent Building, got %q", s.ParentPath)
	}
	if s.IsGlobal() {
		t.Error("Placement should not fall back to global")
	}

	f.tick()
	if n := node(t, s); n.Parent() != scene.Object(building) {
		t.Error("Light should spawn under Building")
	}
}

// TestSnipeGlobal verifies global placements use map space and the anchor
func TestSnipeGlobal(t *testing.T) {
	f := newFixture(t).start()
	f.pole("Pole", 2060, 2048)
	tpl := lightTemplate()
	tpl.Global = true
	tpl.CullDistance = 300

	res := f.snipe(tpl)
	if !res.Success {
		t.Fatalf("Snipe failed: %s", res.Message)
	}
	s := f.c.spawner(res.Spawners[0])
	if !s.IsGlobal() || s.CullDistance != 300 {
		t.Fatalf("Expected a global light with cull distance, got %q %v", s.ParentPath, s.CullDistance)
	}
	f.tick()
	if n := node(t, s); n.Parent() != f.scene.WorldAnchor() {
		t.Error("Global light should hang off the world anchor")
	}
}

// TestSnipeMeshWithLights verifies attached lights follow their mesh
func TestSnipeMeshWithLights(t *testing.T) {
	f := newFixture(t).start()
	f.pole("Pole", 2060, 2048)

	res := f.snipe(meshTemplate(2))
	if !res.Success || len(res.Spawners) != 3 {
		t.Fatalf("Expected mesh and 2 lights, got %+v", res)
	}
	mesh := f.c.spawner(res.Spawners[0])
	light := f.c.spawner(res.Spawners[1])
	if want := "Pole/" + GroupToken + "Mesh_1"; light.ParentPath != want {
		t.Errorf("Expected light parent %q, got %q", want, light.ParentPath)
	}
	if !light.dependsOn(mesh) {
		t.Error("Light should depend on its mesh")
	}

	f.tick()
	if !mesh.Active() || !light.Active() {
		t.Fatalf("Expected mesh and light to spawn in one tick, got %v/%v", mesh.Active(), light.Active())
	}
	if node(t, light).Parent() != node(t, mesh) {
		t.Error("Light instance should be a child of the mesh instance")
	}
}

// TestDeleteMeshCascadesAndUndo verifies attached lights go with their mesh
// and come back together
func TestDeleteMeshCascadesAndUndo(t *testing.T) {
	f := newFixture(t).start()
	f.pole("Pole", 2060, 2048)
	placed := f.snipe(meshTemplate(1))
	f.tick()
	mesh := f.c.spawner(placed.Spawners[0])
	light := f.c.spawner(placed.Spawners[1])

	res := f.c.Delete(context.Background(), mesh.ID)
	if !res.Success || len(res.Spawners) != 2 {
		t.Fatalf("Expected mesh and light deleted, got %+v", res)
	}
	if !mesh.Deleted || !light.Deleted || mesh.Active() || light.Active() {
		t.Fatal("Mesh and light should be deleted and despawned")
	}
	if got := f.station().DefaultGroup().Count(KindLight); got != 0 {
		t.Errorf("Expected no live lights, got %d", got)
	}

	if res := f.c.Undo(context.Background()); !res.Success || len(res.Spawners) != 2 {
		t.Fatalf("Undo should restore both, got %+v", res)
	}
	f.tick()
	if !mesh.Active() || !light.Active() {
		t.Error("Mesh and light should respawn after undo")
	}
	if f.c.UndoSteps() != 1 {
		t.Errorf("Expected the placement step left, got %d", f.c.UndoSteps())
	}

	f.c.Undo(context.Background())
	if !mesh.Deleted || !light.Deleted {
		t.Error("Undoing the placement should delete both")
	}
	if res := f.c.Undo(context.Background()); res.Success || res.Message != "Nothing to undo" {
		t.Errorf("Expected nothing to undo, got %+v", res)
	}
}

// TestPaintAndUndo verifies painting respawns with new settings and undo
// restores them
func TestPaintAndUndo(t *testing.T) {
	f := newFixture(t).start()
	f.pole("Pole", 2060, 2048)
	placed := f.snipe(lightTemplate())
	f.tick()
	s := f.c.spawner(placed.Spawners[0])

	red := testLight
	red.Color = "#ff0000"
	if res := f.c.Paint(context.Background(), s.ID, red); !res.Success {
		t.Fatalf("Paint failed: %s", res.Message)
	}
	if s.Active() {
		t.Error("Painting should despawn the old instance")
	}
	f.tick()
	if got := node(t, s).Blueprint.Properties["color"]; got != "#ff0000" {
		t.Errorf("Expected red light, got %v", got)
	}

	f.c.Undo(context.Background())
	f.tick()
	if got := node(t, s).Blueprint.Properties["color"]; got != "#ffffff" {
		t.Errorf("Expected white light after undo, got %v", got)
	}
}

// TestPaintTargets verifies which spawners can be painted
func TestPaintTargets(t *testing.T) {
	f := newFixture(t).start()
	f.pole("Pole", 2060, 2048)
	meshOnly := f.snipe(meshTemplate(0))
	withLights := f.snipe(meshTemplate(2))
	deco := f.snipe(decorationTemplate())

	if res := f.c.Paint(context.Background(), meshOnly.Spawners[0], testLight); res.Message != "Mesh has no lights" {
		t.Errorf("Expected mesh without lights to be declined, got %q", res.Message)
	}
	res := f.c.Paint(context.Background(), withLights.Spawners[0], testLight)
	if !res.Success || len(res.Spawners) != 2 {
		t.Errorf("Expected both attached lights painted, got %+v", res)
	}
	if res := f.c.Paint(context.Background(), deco.Spawners[0], testLight); res.Message != "Only lights can be painted" {
		t.Errorf("Expected decoration to be declined, got %q", res.Message)
	}
	bad := testLight
	bad.Color = "red"
	if res := f.c.Paint(context.Background(), withLights.Spawners[1], bad); res.Success {
		t.Error("Expected invalid color to fail")
	}
	if res := f.c.Paint(context.Background(), SpawnerID(9999), testLight); res.Message != "No Target" {
		t.Errorf("Expected unknown id to be declined, got %q", res.Message)
	}
}

// TestDecorationReplace verifies a decoration on the same spot replaces the
// old one in a single undo step
func TestDecorationReplace(t *testing.T) {
	f := newFixture(t).start()
	f.pole("Pole", 2060, 2048)

	first := f.snipe(decorationTemplate())
	second := f.snipe(decorationTemplate())
	if !second.Success || !strings.HasPrefix(second.Message, "Replaced decoration") {
		t.Fatalf("Expected replacement, got %+v", second)
	}
	old := f.c.spawner(first.Spawners[0])
	cur := f.c.spawner(second.Spawners[0])
	if !old.Deleted || cur.Deleted {
		t.Fatal("Old decoration should be deleted and the new one kept")
	}

	f.c.Undo(context.Background())
	if old.Deleted || !cur.Deleted {
		t.Error("Undo should swap them back")
	}
}

// TestDecorationReplaceBlockedByPack verifies pack decorations cannot be
// replaced
func TestDecorationReplaceBlockedByPack(t *testing.T) {
	f := newFixture(t).withPack().start()
	f.pole("Pole", 2060, 2048)

	res := f.snipe(decorationTemplate())
	if res.Success || res.Message != "Could not remove existing decoration" {
		t.Errorf("Expected the pack decoration to block, got %+v", res)
	}
}

// TestPackGroupsAreReadOnly verifies pack groups refuse edits and keep
// their enable state as an override
func TestPackGroupsAreReadOnly(t *testing.T) {
	f := newFixture(t).withPack().start()
	f.pole("Pole", 2060, 2048)

	g := f.station().FindGroup("fixtures")
	if g == nil {
		t.Fatal("Expected the pack group to be loaded")
	}
	if g.Editable() || g.Pack != "content" {
		t.Fatalf("Expected read-only group from pack content, got pack %q", g.Pack)
	}
	if err := g.Save(f.c); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly, got %v", err)
	}
	if res := f.c.BeginGroup("fixtures"); res.Success {
		t.Error("BeginGroup on a pack group should fail")
	}

	f.tick()
	deco := g.Spawners(KindDecoration)[0]
	if !deco.Active() {
		t.Fatal("Pack decoration should spawn")
	}
	if res := f.c.Delete(context.Background(), deco.ID); res.Success || res.Message != "Group is read-only" {
		t.Errorf("Expected delete to be refused, got %+v", res)
	}

	if res := f.c.EnableGroups("fix*", false); !res.Success {
		t.Fatalf("EnableGroups failed: %s", res.Message)
	}
	if g.Enabled() || deco.Active() {
		t.Error("Disabling should despawn the pack group")
	}
	if err := f.c.Save(context.Background()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	o, err := f.disk.LoadOverrides("content")
	if err != nil {
		t.Fatal(err)
	}
	if enabled, ok := o["HB/fixtures"]; !ok || enabled {
		t.Errorf("Expected a disabled override, got %v", o)
	}

	// A fresh controller picks the override up again.
	f2 := newFixture(t)
	f2.disk, f2.packs = f.disk, f.packs
	f2.start()
	if f2.station().FindGroup("fixtures").Enabled() {
		t.Error("Override should survive a restart")
	}
}

// TestBeginEndGroup verifies placements follow the current group
func TestBeginEndGroup(t *testing.T) {
	f := newFixture(t).start()
	f.pole("Pole", 2060, 2048)

	if res := f.c.BeginGroup("lamps"); !res.Success {
		t.Fatalf("BeginGroup failed: %s", res.Message)
	}
	placed := f.snipe(lightTemplate())
	if name := f.c.spawner(placed.Spawners[0]).Name(); name != "LS_HB_lamps_Light_1" {
		t.Errorf("Expected placement in lamps, got %s", name)
	}

	f.c.EndGroup()
	placed = f.snipe(lightTemplate())
	if name := f.c.spawner(placed.Spawners[0]).Name(); name != "LS_HB_user_Light_1" {
		t.Errorf("Expected placement in the default group, got %s", name)
	}

	if res := f.c.EnableGroups("nomatch*", true); res.Success {
		t.Error("Expected no match to be declined")
	}
}

// TestEnableGroupsRespawns verifies re-enabling brings spawners back
func TestEnableGroupsRespawns(t *testing.T) {
	f := newFixture(t).start()
	f.pole("Pole", 2060, 2048)
	placed := f.snipe(lightTemplate())
	f.tick()
	s := f.c.spawner(placed.Spawners[0])

	f.c.EnableGroups(DefaultGroupName, false)
	if s.Active() {
		t.Fatal("Disabled group should despawn")
	}
	f.tick()
	if s.Active() {
		t.Error("Disabled group should not tick")
	}
	f.c.EnableGroups(DefaultGroupName, true)
	f.tick()
	if !s.Active() {
		t.Error("Re-enabled group should respawn without waiting for the rate limit")
	}
}

// TestRescan verifies documents added after startup are picked up once
func TestRescan(t *testing.T) {
	f := newFixture(t).start()
	doc := `{"version": 3, "lights": [{"id": 1, "parent": "Pole", "position": [0, 0, 0], "light": {"type": "point", "color": "#00ff00", "intensity": 1, "range": 3}}], "meshes": [], "decorations": []}`
	if err := f.disk.Write("HB", "extra", []byte(doc)); err != nil {
		t.Fatal(err)
	}
	if n := f.c.Rescan(); n != 1 {
		t.Fatalf("Expected 1 new group, got %d", n)
	}
	if n := f.c.Rescan(); n != 0 {
		t.Errorf("Second rescan should add nothing, got %d", n)
	}
	if g := f.station().FindGroup("extra"); g == nil || g.Count(KindLight) != 1 {
		t.Error("Expected the extra group with one light")
	}
}
