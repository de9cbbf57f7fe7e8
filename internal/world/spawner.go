package world

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/time/rate"

	"lightsniper/internal/dutycycle"
	"lightsniper/internal/scene"
)

// SpawnerID indexes the controller's spawner arena.
type SpawnerID uint64

// GroupID indexes the controller's group arena.
type GroupID int32

// RegionID indexes the controller's region arena.
type RegionID int32

// NoGroup marks a spawner that belongs to no group.
const NoGroup GroupID = -1

var (
	errResourcePending = errors.New("resource pending")
	errResourceFailed  = errors.New("resource unavailable")
)

// tickContext is the per-tick state threaded through regions, groups and
// spawners.
type tickContext struct {
	c       *Controller
	ticket  *UpdateTicket
	now     time.Time
	player  mgl64.Vec3 // map space
	loading bool
	duty    dutycycle.Context
}

// behavior is the per-kind capability set of a spawner.
type behavior interface {
	Kind() Kind
	spawn(s *Spawner, ctx *tickContext, parent scene.Object) (scene.Instance, error)
	tick(s *Spawner, ctx *tickContext, visible bool) error
}

// legacyFields carry values from older documents until an upgrade consumes
// them. The undo copies let a failed upgrade chain roll back.
type legacyFields struct {
	euler     *mgl64.Vec3 // degrees, version 1
	hash      uint64      // combined hash, version 2
	undoEuler *mgl64.Vec3
	undoHash  uint64
}

// Spawner is a persistent record that materializes one object into the host
// scene once its anchor can be found.
type Spawner struct {
	ID           SpawnerID
	ParentPath   string     // empty for global spawners
	Position     mgl64.Vec3 // local to the parent, map space for globals
	Rotation     mgl64.Quat
	Hash         Hash
	CullDistance float64 // hard despawn distance for globals, 0 disables
	PreCullFade  float64

	Culled      bool
	Deleted     bool
	Errored     bool
	Dirty       bool
	ForceUpdate bool

	behavior behavior
	group    GroupID
	prefix   string
	seq      int

	instance        scene.Instance
	livePath        string
	marker          scene.Instance
	lastMapPosition mgl64.Vec3
	seen            bool

	limiter  *rate.Limiter
	upgrades []migration
	legacy   legacyFields

	cullChecked      bool
	cullPlayer       mgl64.Vec3
	cullInhibitUntil time.Time
}

func newSpawner(b behavior, parentPath string, pos mgl64.Vec3, rot mgl64.Quat) *Spawner {
	if rot == (mgl64.Quat{}) {
		rot = mgl64.QuatIdent()
	}
	return &Spawner{
		ParentPath:  parentPath,
		Position:    pos,
		Rotation:    rot,
		PreCullFade: 1,
		behavior:    b,
		group:       NoGroup,
	}
}

// Kind is the spawner subtype.
func (s *Spawner) Kind() Kind { return s.behavior.Kind() }

// Group is the owning group or NoGroup.
func (s *Spawner) Group() GroupID { return s.group }

// BaseName is the name without the group prefix.
func (s *Spawner) BaseName() string {
	return s.Kind().String() + "_" + strconv.Itoa(s.seq)
}

// Name is the deterministic instance name.
func (s *Spawner) Name() string { return s.prefix + s.BaseName() }

// IsGlobal reports whether the spawner hangs off the world anchor.
func (s *Spawner) IsGlobal() bool { return s.ParentPath == "" }

// Active reports whether an instance is live.
func (s *Spawner) Active() bool { return s.instance != nil }

// Instance returns the live instance or nil.
func (s *Spawner) Instance() scene.Instance { return s.instance }

// ResolvedParentPath substitutes the group token with the group prefix.
func (s *Spawner) ResolvedParentPath() string {
	return strings.ReplaceAll(s.ParentPath, GroupToken, s.prefix)
}

// MapPosition is the last known map space position of the instance.
func (s *Spawner) MapPosition() (mgl64.Vec3, bool) {
	if s.IsGlobal() {
		return s.Position, true
	}
	return s.lastMapPosition, s.seen
}

func (s *Spawner) rateLimiter(c *Controller) *rate.Limiter {
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Every(c.cfg.SpawnerUpdateRate), 1)
	}
	return s.limiter
}

// TryUpdate advances the spawner one tick. Unspawned spawners search for
// their parent when both the per-spawner rate and the ticket allow it.
func (s *Spawner) TryUpdate(ctx *tickContext) {
	if s.Deleted {
		return
	}
	if s.instance != nil && !s.instance.Alive() {
		// Host destroyed it, usually with its parent.
		s.destroy(ctx.c)
	}
	if s.instance != nil {
		s.activeTick(ctx)
		return
	}
	if ctx.loading {
		return
	}
	if s.IsGlobal() && s.CullDistance > 0 && s.Position.Sub(ctx.player).Len() > s.CullDistance {
		return
	}

	if s.ForceUpdate {
		s.ForceUpdate = false
	} else {
		if !ctx.ticket.HasUpdatesRemaining() {
			return
		}
		if !s.rateLimiter(ctx.c).AllowN(ctx.now, 1) {
			return
		}
	}
	s.spawnerTick(ctx)
}

// spawnerTick runs upgrades, finds the parent, verifies its hash and spawns.
func (s *Spawner) spawnerTick(ctx *tickContext) {
	c := ctx.c
	ctx.ticket.Searches++
	ctx.ticket.Mark()

	var parent scene.Object
	searched := false
	findParent := func() scene.Object {
		if !searched {
			parent = c.findParent(s)
			searched = true
		}
		return parent
	}

	if len(s.upgrades) > 0 {
		if err := s.runUpgrades(c, findParent); err != nil {
			if errors.Is(err, ErrMissingParent) {
				s.orphaned(ctx)
				return
			}
			log.Printf("⚠️ Upgrade of %s failed: %v", s.Name(), err)
			c.journal.Emit(ctx.now, JournalUpgrade, s.Name(), c.regionYard(s), err.Error())
			return
		}
	}

	if findParent() == nil {
		s.orphaned(ctx)
		return
	}
	s.clearMarker(c)

	ph := parentHash(c.graph, parent)
	switch {
	case s.Hash.Parent == 0:
		s.Hash.Parent = ph
		s.Dirty = true
	case s.Hash.Parent != ph:
		if !c.freeOrphansActive(ctx.now) {
			ctx.ticket.Anomalies++
			c.journal.Emit(ctx.now, JournalAnomaly, s.Name(), c.regionYard(s),
				fmt.Sprintf("parent %s moved since placement", s.ResolvedParentPath()))
			return
		}
		s.Hash.Parent = ph
		s.Dirty = true
		c.journal.Emit(ctx.now, JournalAdopted, s.Name(), c.regionYard(s), "adopted moved parent")
	}

	inst, err := s.behavior.spawn(s, ctx, parent)
	if err != nil {
		if !errors.Is(err, errResourcePending) && !errors.Is(err, errResourceFailed) {
			log.Printf("⚠️ Spawn of %s under %s failed: %v", s.Name(), s.ResolvedParentPath(), err)
		}
		return
	}
	s.instance = inst
	s.livePath = c.graph.PathOf(inst)
	s.lastMapPosition = scene.MapPosition(c.graph, inst.Position())
	s.seen = true
	if h := transformHash(s.lastMapPosition, inst.Rotation()); h != s.Hash.Spawned {
		s.Hash.Spawned = h
		s.Dirty = true
	}
	if !s.IsGlobal() {
		ctx.ticket.Mark()
	}
	c.noteSpawned(s)
	s.updateCulling(ctx)
}

func (s *Spawner) orphaned(ctx *tickContext) {
	c := ctx.c
	ctx.ticket.Orphans++
	if c.killOrphansActive(ctx.now) {
		s.Delete(c)
		if s.Kind() == KindMesh {
			c.onMeshRemoved(s)
		}
		c.journal.Emit(ctx.now, JournalKilled, s.Name(), c.regionYard(s), "orphan deleted")
		return
	}
	c.journal.Emit(ctx.now, JournalOrphan, s.Name(), c.regionYard(s),
		fmt.Sprintf("parent %q not found", s.ResolvedParentPath()))
	if c.cfg.ShowOrphans {
		s.raiseMarker(c)
	}
}

func (s *Spawner) activeTick(ctx *tickContext) {
	if ctx.loading {
		return
	}
	visible := s.updateCulling(ctx)
	if s.instance == nil {
		return
	}
	ctx.ticket.countActive(s.Kind(), visible)
	if err := s.safeTick(ctx, visible); err != nil {
		s.Errored = true
		log.Printf("❌ Spawner %s errored: %v", s.Name(), err)
		ctx.c.journal.Emit(ctx.now, JournalErrored, s.Name(), ctx.c.regionYard(s), err.Error())
	}
}

func (s *Spawner) safeTick(ctx *tickContext, visible bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s tick: %v", s.Kind(), r)
		}
	}()
	return s.behavior.tick(s, ctx, visible)
}

// destroy removes the live instance. Reports whether there was one.
func (s *Spawner) destroy(c *Controller) bool {
	if s.instance == nil {
		return false
	}
	c.forget(s)
	if s.instance.Alive() {
		c.graph.Destroy(s.instance)
	}
	s.instance = nil
	s.resetCulling()
	return true
}

// Delete marks the spawner deleted and removes its instance. It stays in its
// group so Undelete can restore it.
func (s *Spawner) Delete(c *Controller) {
	if s.Deleted {
		return
	}
	s.Deleted = true
	s.Dirty = true
	s.destroy(c)
	s.clearMarker(c)
}

// Undelete restores a deleted spawner and schedules an immediate spawn.
func (s *Spawner) Undelete() {
	if !s.Deleted {
		return
	}
	s.Deleted = false
	s.Errored = false
	s.Dirty = true
	s.ForceUpdate = true
}

func (s *Spawner) raiseMarker(c *Controller) {
	if (s.marker != nil && s.marker.Alive()) || !s.seen {
		return
	}
	m, err := c.graph.Instantiate(c.graph.WorldAnchor(), scene.Blueprint{
		Kind:          scene.KindMarker,
		Name:          "LS_orphan_" + s.Name(),
		LocalPosition: s.lastMapPosition,
		LocalRotation: mgl64.QuatIdent(),
	})
	if err != nil {
		return
	}
	s.marker = m
	c.markers[c.graph.PathOf(m)] = true
}

func (s *Spawner) clearMarker(c *Controller) {
	if s.marker == nil {
		return
	}
	delete(c.markers, c.graph.PathOf(s.marker))
	if s.marker.Alive() {
		c.graph.Destroy(s.marker)
	}
	s.marker = nil
}

// instantiate fills the common blueprint fields and asks the host for an object.
func (s *Spawner) instantiate(c *Controller, parent scene.Object, bp scene.Blueprint) (scene.Instance, error) {
	bp.Kind = s.Kind().sceneKind()
	bp.Name = s.Name()
	bp.LocalPosition = s.Position
	bp.LocalRotation = s.Rotation
	return c.graph.Instantiate(parent, bp)
}

// dependsOn reports whether a light's parent path names mesh as a segment.
func (s *Spawner) dependsOn(mesh *Spawner) bool {
	if s.Kind() != KindLight || s.IsGlobal() {
		return false
	}
	name := mesh.Name()
	for _, seg := range strings.Split(s.ResolvedParentPath(), scene.PathSeparator) {
		if seg == name {
			return true
		}
	}
	return false
}
