package world

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"lightsniper/internal/scene"
)

// MaxSnipeDistance is the raycast range of a placement.
const MaxSnipeDistance = 500.0

// AttachedLight is a light placed relative to a template mesh.
type AttachedLight struct {
	Offset     mgl64.Vec3      `json:"offset"`
	Properties LightProperties `json:"properties"`
}

// Template describes what a placement creates. Exactly one of Light, Mesh
// or Decoration is used, in the order Mesh, Decoration, Light.
type Template struct {
	Name         string                `json:"name"`
	Light        *LightProperties      `json:"light,omitempty"`
	Mesh         *MeshProperties       `json:"mesh,omitempty"`
	Lights       []AttachedLight       `json:"lights,omitempty"` // attached to Mesh
	Decoration   *DecorationProperties `json:"decoration,omitempty"`
	Offset       float64               `json:"offset,omitempty"`       // along the surface normal
	Global       bool                  `json:"global,omitempty"`       // skip the anchor search
	CullDistance float64               `json:"cullDistance,omitempty"` // for global placements
}

func (t Template) empty() bool {
	return t.Light == nil && t.Mesh == nil && t.Decoration == nil
}

// placement is the resolved pose of a snipe.
type placement struct {
	region *Region
	group  *Group
	parent scene.Object
	path   string // tokenized parent path, empty for global
	pos    mgl64.Vec3
	rot    mgl64.Quat
}

// Snipe casts a ray from origin and places the template where it lands.
func (c *Controller) Snipe(ctx context.Context, origin, direction mgl64.Vec3, tpl Template) ActionResult {
	_, span := c.tracer.Start(ctx, "controller.snipe")
	defer span.End()
	span.SetAttributes(attribute.String("template", tpl.Name))

	c.mu.Lock()
	defer c.mu.Unlock()

	if tpl.empty() {
		return fail("Selected template is empty")
	}
	hit, ok := c.physics.Raycast(origin, direction, MaxSnipeDistance)
	if !ok {
		return decline("No Target")
	}
	pl, res := c.place(hit, tpl)
	if !res.Success {
		return res
	}

	now := c.clock.Now()
	var out ActionResult
	switch {
	case tpl.Mesh != nil:
		out = c.snipeMesh(pl, tpl)
	case tpl.Decoration != nil:
		out = c.snipeDecoration(pl, tpl)
	default:
		out = c.snipeLight(pl, tpl)
	}
	if out.Success {
		c.journal.Emit(now, JournalCommand, "", pl.region.Yard, out.Message)
	}
	return out
}

func (c *Controller) place(hit scene.Hit, tpl Template) (placement, ActionResult) {
	mapPoint := scene.MapPosition(c.graph, hit.Point)
	r := c.RegionFor(mapPoint)
	if r == nil {
		return placement{}, decline("Outside the map")
	}
	g := r.current
	if !g.Editable() {
		return placement{}, fail("Group is read-only")
	}

	point := hit.Point
	if n := hit.Normal; n.Len() > 0 && tpl.Offset != 0 {
		point = point.Add(n.Normalize().Mul(tpl.Offset))
	}
	rot := surfaceRotation(hit.Normal)

	pl := placement{region: r, group: g}
	var parent scene.Object
	var path string
	if !tpl.Global {
		parent, path = c.FindParentTransform(hit, r, g)
	}
	if parent == nil {
		pl.parent = c.graph.WorldAnchor()
		pl.pos = scene.MapPosition(c.graph, point)
		pl.rot = rot
		return pl, succeed("")
	}
	pl.parent = parent
	pl.path = tokenize(path, g)
	pl.pos, pl.rot = localTransform(parent, point, rot)
	return pl, succeed("")
}

// add registers s in the arena and the placement group.
func (c *Controller) add(pl placement, s *Spawner) {
	c.register(s)
	pl.group.Add(c, s)
	s.Dirty = true
	s.ForceUpdate = true
}

func (c *Controller) snipeLight(pl placement, tpl Template) ActionResult {
	b, err := newLightBehavior(*tpl.Light, c.duty, c.rng)
	if err != nil {
		return fail(err.Error())
	}
	s := newSpawner(b, pl.path, pl.pos, pl.rot)
	if pl.path == "" {
		s.CullDistance = tpl.CullDistance
	}
	s.Hash.Parent = parentHash(c.graph, pl.parent)
	c.add(pl, s)
	c.undo.push(undoEntry{step: uuid.New(), kind: undoCreate, spawner: s.ID})
	return succeed(fmt.Sprintf("Placed %s", s.Name()), s.ID)
}

func (c *Controller) snipeMesh(pl placement, tpl Template) ActionResult {
	if err := tpl.Mesh.Validate(); err != nil {
		return fail(err.Error())
	}
	lights := make([]*lightBehavior, 0, len(tpl.Lights))
	for _, al := range tpl.Lights {
		b, err := newLightBehavior(al.Properties, c.duty, c.rng)
		if err != nil {
			return fail(err.Error())
		}
		lights = append(lights, b)
	}

	mesh := newSpawner(&meshBehavior{props: *tpl.Mesh}, pl.path, pl.pos, pl.rot)
	if pl.path == "" {
		mesh.CullDistance = tpl.CullDistance
	}
	mesh.Hash.Parent = parentHash(c.graph, pl.parent)
	c.add(pl, mesh)

	step := uuid.New()
	entries := []undoEntry{{step: step, kind: undoCreate, spawner: mesh.ID}}
	ids := []SpawnerID{mesh.ID}

	meshParent := pl.path
	if meshParent == "" {
		meshParent = c.graph.PathOf(c.graph.WorldAnchor())
	}
	lightPath := scene.JoinPath(meshParent, GroupToken+mesh.BaseName())
	for i, b := range lights {
		l := newSpawner(b, lightPath, tpl.Lights[i].Offset, mgl64.QuatIdent())
		c.add(pl, l)
		entries = append(entries, undoEntry{step: step, kind: undoCreate, spawner: l.ID})
		ids = append(ids, l.ID)
	}
	c.undo.push(entries...)
	return succeed(fmt.Sprintf("Placed %s with %d lights", mesh.Name(), len(lights)), ids...)
}

func (c *Controller) snipeDecoration(pl placement, tpl Template) ActionResult {
	b, err := newDecorationBehavior(*tpl.Decoration, c.duty, c.rng)
	if err != nil {
		return fail(err.Error())
	}

	resolved := strings.ReplaceAll(pl.path, GroupToken, pl.group.Prefix())
	var replace []*Spawner
	for _, g := range pl.region.groups {
		for _, d := range g.decorations {
			if d.Deleted || d.ResolvedParentPath() != resolved {
				continue
			}
			props, _ := d.Decoration()
			if props.Bundle != b.props.Bundle || props.Asset != b.props.Asset {
				continue
			}
			if d.Position.Sub(pl.pos).Len() > decorationReplaceDistance {
				continue
			}
			if !g.Editable() {
				return decline("Could not remove existing decoration")
			}
			replace = append(replace, d)
		}
	}

	step := uuid.New()
	var entries []undoEntry
	for _, d := range replace {
		d.Delete(c)
		entries = append(entries, undoEntry{step: step, kind: undoDelete, spawner: d.ID})
	}

	s := newSpawner(b, pl.path, pl.pos, pl.rot)
	if pl.path == "" {
		s.CullDistance = tpl.CullDistance
	}
	s.Hash.Parent = parentHash(c.graph, pl.parent)
	c.add(pl, s)
	entries = append(entries, undoEntry{step: step, kind: undoCreate, spawner: s.ID})
	c.undo.push(entries...)

	msg := fmt.Sprintf("Placed %s", s.Name())
	if len(replace) > 0 {
		msg = fmt.Sprintf("Replaced decoration with %s", s.Name())
	}
	return succeed(msg, s.ID)
}

// editable resolves a live, editable spawner for a command.
func (c *Controller) editable(id SpawnerID) (*Spawner, *Group, ActionResult) {
	s := c.spawner(id)
	if s == nil || s.Deleted {
		return nil, nil, decline("No Target")
	}
	g := c.Group(s.group)
	if g == nil || !g.Editable() {
		return nil, nil, fail("Group is read-only")
	}
	return s, g, succeed("")
}

// Paint applies light settings to a light, or to every light attached to a
// mesh.
func (c *Controller) Paint(ctx context.Context, id SpawnerID, props LightProperties) ActionResult {
	_, span := c.tracer.Start(ctx, "controller.paint")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	s, _, res := c.editable(id)
	if !res.Success {
		return res
	}
	var targets []*Spawner
	switch s.Kind() {
	case KindLight:
		targets = []*Spawner{s}
	case KindMesh:
		for _, g := range c.regionOf(s).groups {
			for _, l := range g.dependents(s) {
				if g.Editable() {
					targets = append(targets, l)
				}
			}
		}
		if len(targets) == 0 {
			return decline("Mesh has no lights")
		}
	default:
		return decline("Only lights can be painted")
	}

	if err := props.Validate(); err != nil {
		return fail(err.Error())
	}
	step := uuid.New()
	var entries []undoEntry
	ids := make([]SpawnerID, 0, len(targets))
	for _, l := range targets {
		prev, err := l.configureLight(c, props)
		if err != nil {
			// Roll back lights already painted in this step.
			for i := len(entries) - 1; i >= 0; i-- {
				c.spawner(entries[i].spawner).configureLight(c, entries[i].light)
			}
			return fail(err.Error())
		}
		entries = append(entries, undoEntry{step: step, kind: undoPaint, spawner: l.ID, light: prev})
		ids = append(ids, l.ID)
	}
	c.undo.push(entries...)
	return succeed(fmt.Sprintf("Painted %d lights", len(ids)), ids...)
}

// Delete removes a spawner. Deleting a mesh deletes its attached lights.
func (c *Controller) Delete(ctx context.Context, id SpawnerID) ActionResult {
	_, span := c.tracer.Start(ctx, "controller.delete")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	s, _, res := c.editable(id)
	if !res.Success {
		return res
	}
	step := uuid.New()
	s.Delete(c)
	entries := []undoEntry{{step: step, kind: undoDelete, spawner: s.ID}}
	ids := []SpawnerID{s.ID}
	if s.Kind() == KindMesh {
		for _, l := range c.onMeshRemoved(s) {
			entries = append(entries, undoEntry{step: step, kind: undoDelete, spawner: l.ID})
			ids = append(ids, l.ID)
		}
	}
	c.undo.push(entries...)
	c.journal.Emit(c.clock.Now(), JournalCommand, s.Name(), c.regionYard(s), "deleted")
	return succeed(fmt.Sprintf("Deleted %s", s.Name()), ids...)
}

// Undo reverts the most recent step as a whole.
func (c *Controller) Undo(ctx context.Context) ActionResult {
	_, span := c.tracer.Start(ctx, "controller.undo")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.undo.pop()
	if len(entries) == 0 {
		return decline("Nothing to undo")
	}
	ids := make([]SpawnerID, 0, len(entries))
	for _, e := range entries {
		s := c.spawner(e.spawner)
		if s == nil {
			continue
		}
		switch e.kind {
		case undoCreate:
			s.Delete(c)
			if s.Kind() == KindMesh {
				c.onMeshRemoved(s)
			}
		case undoDelete:
			s.Undelete()
		case undoPaint:
			s.configureLight(c, e.light)
		}
		ids = append(ids, s.ID)
	}
	return succeed(fmt.Sprintf("Undid %d changes", len(ids)), ids...)
}

// UndoSteps is the number of steps Undo can revert.
func (c *Controller) UndoSteps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.undo.Steps()
}

// Nearest returns the closest live spawner of kind to a world point.
func (c *Controller) Nearest(kind Kind, worldPoint mgl64.Vec3, maxRange float64) (SpawnerInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := scene.MapPosition(c.graph, worldPoint)
	var best *Spawner
	bestDist := maxRange
	for _, r := range c.regions {
		if !r.Contains(p, true, false) {
			continue
		}
		if s, d := r.nearest(kind, p, bestDist); s != nil && (best == nil || d < bestDist) {
			best, bestDist = s, d
		}
	}
	if best == nil {
		return SpawnerInfo{}, false
	}
	return c.info(best), true
}

// playerRegion is the region the player stands in.
func (c *Controller) playerRegion() *Region {
	return c.RegionFor(scene.MapPosition(c.graph, c.env.PlayerPosition()))
}

// BeginGroup directs new placements in the player's region to name.
func (c *Controller) BeginGroup(name string) ActionResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.playerRegion()
	if r == nil {
		return decline("Outside the map")
	}
	g, err := r.BeginGroup(c, name)
	if err != nil {
		if errors.Is(err, ErrReadOnly) {
			return fail(fmt.Sprintf("Group %s is read-only", name))
		}
		return fail(err.Error())
	}
	return succeed(fmt.Sprintf("Placing into %s/%s", r.Yard, g.Name))
}

// EndGroup returns placements in the player's region to the default group.
func (c *Controller) EndGroup() ActionResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.playerRegion()
	if r == nil {
		return decline("Outside the map")
	}
	r.EndGroup()
	return succeed(fmt.Sprintf("Placing into %s/%s", r.Yard, r.defaultGroup.Name))
}

// EnableGroups toggles every group matching a glob pattern in all regions.
func (c *Controller) EnableGroups(pattern string, enabled bool) ActionResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, r := range c.regions {
		n += r.EnableGroups(c, pattern, enabled)
	}
	if n == 0 {
		return decline(fmt.Sprintf("No group matches %q", pattern))
	}
	state := "Disabled"
	if enabled {
		state = "Enabled"
	}
	return succeed(fmt.Sprintf("%s %d groups", state, n))
}

// KillOrphans deletes every orphan found during the next d.
func (c *Controller) KillOrphans(d time.Duration) ActionResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.killOrphansUntil = now.Add(d)
	c.freeOrphansUntil = time.Time{}
	c.journal.Emit(now, JournalCommand, "", "", fmt.Sprintf("kill orphans for %v", d))
	return succeed(fmt.Sprintf("Deleting orphans for %v", d))
}

// FreeOrphans lets spawners adopt moved parents during the next d.
func (c *Controller) FreeOrphans(d time.Duration) ActionResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.freeOrphansUntil = now.Add(d)
	c.killOrphansUntil = time.Time{}
	c.journal.Emit(now, JournalCommand, "", "", fmt.Sprintf("free orphans for %v", d))
	return succeed(fmt.Sprintf("Adopting moved parents for %v", d))
}

// Rescan loads documents added to disk or packs since startup.
func (c *Controller) Rescan() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, r := range c.regions {
		n += r.Scan(c)
	}
	return n
}
