// Package world is the spawner runtime: regions own groups, groups own
// spawners, and the controller ticks them on a budget against a host scene.
package world

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"lightsniper/internal/dutycycle"
	"lightsniper/internal/scene"
	"lightsniper/internal/store"
)

// Option customizes a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithJournal replaces the diagnostic journal.
func WithJournal(j *Journal) Option {
	return func(c *Controller) { c.journal = j }
}

// Controller owns every region, group and spawner and drives them from a
// single tick. All state is guarded by mu; host callbacks run under it.
type Controller struct {
	mu sync.Mutex

	cfg     Config
	graph   scene.Graph
	physics scene.Physics
	env     scene.Environment
	assets  scene.Assets
	clock   Clock

	disk      *store.Disk
	packs     *store.Packs
	overrides map[string]store.Overrides
	dirtyPack map[string]bool

	// Arenas. Ids are indices and never reused.
	regions  []*Region
	tiles    [TileCount][TileCount]*Region
	groups   []*Group
	spawners []*Spawner

	live    map[string]*Spawner // instance path -> spawner
	markers map[string]bool     // orphan marker paths

	duty *dutycycle.Registry
	rng  *rand.Rand

	tickLimiter      *rate.Limiter
	started          time.Time
	backoffUntil     time.Time
	lastAutosave     time.Time
	killOrphansUntil time.Time
	freeOrphansUntil time.Time

	current    *UpdateTicket
	lastTicket UpdateTicket
	meshEvents []*Spawner // spawned meshes, handled at the end of the tick
	totals     Totals

	undo    *undoBuffer
	journal *Journal
	tracer  trace.Tracer

	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}
}

// Totals are lifetime counters.
type Totals struct {
	Ticks     uint64 `json:"ticks"`
	Spawned   uint64 `json:"spawned"`
	Destroyed uint64 `json:"destroyed"`
	Saves     uint64 `json:"saves"`
}

// New creates a controller, builds every region and loads its groups.
func New(cfg Config, host scene.Host, disk *store.Disk, packs *store.Packs, opts ...Option) (*Controller, error) {
	if host.Graph == nil || host.Physics == nil || host.Environment == nil || host.Assets == nil {
		return nil, errors.New("world: incomplete host")
	}
	if cfg.TickRate <= 0 {
		return nil, fmt.Errorf("world: tick rate must be positive, got %d", cfg.TickRate)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	c := &Controller{
		cfg:         cfg,
		graph:       host.Graph,
		physics:     host.Physics,
		env:         host.Environment,
		assets:      host.Assets,
		clock:       systemClock{},
		disk:        disk,
		packs:       packs,
		overrides:   make(map[string]store.Overrides),
		dirtyPack:   make(map[string]bool),
		live:        make(map[string]*Spawner),
		markers:     make(map[string]bool),
		duty:        dutycycle.NewRegistry(),
		rng:         rand.New(rand.NewSource(seed)),
		tickLimiter: rate.NewLimiter(rate.Limit(cfg.TickRate), 1),
		undo:        newUndoBuffer(cfg.UndoSteps),
		journal:     NewJournal(),
		tracer:      otel.Tracer("lightsniper/world"),
		stopChan:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.started = c.clock.Now()
	c.lastAutosave = c.started

	for _, p := range packs.All() {
		o, err := disk.LoadOverrides(p.ID())
		if err != nil {
			log.Printf("⚠️ Ignoring overrides of pack %s: %v", p.ID(), err)
			o = store.Overrides{}
		}
		c.overrides[p.ID()] = o
	}

	for _, st := range cfg.Stations {
		c.regions = append(c.regions, newStationRegion(RegionID(len(c.regions)), st))
	}
	for x := 0; x < TileCount; x++ {
		for z := 0; z < TileCount; z++ {
			r := newTileRegion(RegionID(len(c.regions)), x, z)
			c.tiles[x][z] = r
			c.regions = append(c.regions, r)
		}
	}
	for _, r := range c.regions {
		if err := r.load(c); err != nil {
			return nil, err
		}
	}

	loaded := 0
	for _, g := range c.groups {
		loaded += g.Count(KindLight) + g.Count(KindMesh) + g.Count(KindDecoration)
	}
	log.Printf("💡 Loaded %d spawners in %d groups across %d regions", loaded, len(c.groups), len(c.regions))
	return c, nil
}

// Start begins the tick loop
func (c *Controller) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	if err := c.journal.Start(c.cfg.JournalPath); err != nil {
		log.Printf("⚠️ Journal disabled: %v", err)
	}
	c.ticker = time.NewTicker(time.Second / time.Duration(c.cfg.TickRate))

	go func() {
		for {
			select {
			case <-c.ticker.C:
				c.Update(context.Background())
			case <-c.stopChan:
				return
			}
		}
	}()

	log.Printf("🎮 Spawner controller started at %d ticks/sec", c.cfg.TickRate)
}

// Stop halts the tick loop
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.running = false
	if c.ticker != nil {
		c.ticker.Stop()
	}
	close(c.stopChan)
	log.Println("🛑 Spawner controller stopped")
}

// Close stops the loop, saves every dirty group and flushes the journal.
func (c *Controller) Close(ctx context.Context) error {
	c.Stop()
	c.mu.Lock()
	err := c.autosave(ctx, c.clock.Now())
	c.duty.Reset()
	c.mu.Unlock()
	c.journal.Stop()
	return err
}

// Update ticks if the tick-rate limiter allows it. Hosts that call this
// every frame get at most TickRate ticks per second.
func (c *Controller) Update(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if !c.tickLimiter.AllowN(now, 1) {
		return false
	}
	c.tick(ctx, now)
	return true
}

// Tick runs one tick unconditionally and returns its ticket.
func (c *Controller) Tick(ctx context.Context) UpdateTicket {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick(ctx, c.clock.Now())
	return c.lastTicket
}

func (c *Controller) tick(ctx context.Context, now time.Time) {
	ctx, span := c.tracer.Start(ctx, "controller.tick")
	defer span.End()
	start := time.Now()

	budget := 0
	if !now.Before(c.backoffUntil) {
		budget = c.cfg.AllowedUpdates
	}
	ticket := NewUpdateTicket(c.clock, budget, c.cfg.MaxUpdateTime)
	c.current = ticket

	elapsed := now.Sub(c.started)
	c.duty.Tick(elapsed)
	tc := &tickContext{
		c:       c,
		ticket:  ticket,
		now:     now,
		player:  scene.MapPosition(c.graph, c.env.PlayerPosition()),
		loading: c.env.Loading(),
		duty:    dutycycle.Context{Elapsed: elapsed, Hour: c.env.Hour(), Rand: c.rng},
	}

	activeRegions := 0
	for _, r := range c.regions {
		r.Tick(tc)
		if r.active {
			activeRegions++
		}
	}
	c.drainMeshEvents()

	backedOff := ticket.Exhausted()
	if backedOff {
		c.backoffUntil = now.Add(c.cfg.BackoffTime)
	}
	if now.Sub(c.lastAutosave) >= c.cfg.AutosaveInterval {
		if err := c.autosave(ctx, now); err != nil {
			log.Printf("⚠️ Autosave failed: %v", err)
		}
	}

	c.current = nil
	c.lastTicket = *ticket
	c.totals.Ticks++
	recordTick(ticket, time.Since(start), backedOff)
	span.SetAttributes(
		attribute.Int("ticket.budget", budget),
		attribute.Int("ticket.searches", ticket.Searches),
		attribute.Int("ticket.orphans", ticket.Orphans),
		attribute.Int("ticket.spawned", ticket.Spawned),
		attribute.Int("regions.active", activeRegions),
	)
}

// autosave writes dirty user groups and pack overrides.
func (c *Controller) autosave(ctx context.Context, now time.Time) error {
	_, span := c.tracer.Start(ctx, "controller.autosave")
	defer span.End()
	start := time.Now()
	c.lastAutosave = now

	var errs []error
	saved := 0
	for _, g := range c.groups {
		ok, err := g.AutoSave(c)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			saved++
		}
	}
	for id := range c.dirtyPack {
		if err := c.disk.SaveOverrides(id, c.packOverrides(id)); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(c.dirtyPack, id)
	}
	if saved > 0 {
		c.totals.Saves += uint64(saved)
		log.Printf("💾 Saved %d groups", saved)
		c.journal.Emit(now, JournalSave, "", "", fmt.Sprintf("saved %d groups", saved))
	}
	c.journal.Flush()
	recordAutosave(time.Since(start), saved)
	span.SetAttributes(attribute.Int("groups.saved", saved))
	return errors.Join(errs...)
}

// Save forces an autosave pass now.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autosave(ctx, c.clock.Now())
}

func (c *Controller) packOverrides(id string) store.Overrides {
	o := store.Overrides{}
	for _, g := range c.groups {
		if g.Pack == id && g.override != nil {
			o[g.overrideKey()] = *g.override
		}
	}
	c.overrides[id] = o
	return o
}

func (c *Controller) markOverrideDirty(packID string) { c.dirtyPack[packID] = true }

// register places a new spawner in the arena.
func (c *Controller) register(s *Spawner) {
	s.ID = SpawnerID(len(c.spawners))
	c.spawners = append(c.spawners, s)
}

// Group returns a group by id or nil.
func (c *Controller) Group(id GroupID) *Group {
	if id < 0 || int(id) >= len(c.groups) {
		return nil
	}
	return c.groups[id]
}

// Region returns a region by id or nil.
func (c *Controller) Region(id RegionID) *Region {
	if id < 0 || int(id) >= len(c.regions) {
		return nil
	}
	return c.regions[id]
}

func (c *Controller) spawner(id SpawnerID) *Spawner {
	if int(id) >= len(c.spawners) {
		return nil
	}
	return c.spawners[id]
}

func (c *Controller) regionOf(s *Spawner) *Region {
	if g := c.Group(s.group); g != nil {
		return c.Region(g.region)
	}
	return nil
}

func (c *Controller) regionYard(s *Spawner) string {
	if r := c.regionOf(s); r != nil {
		return r.Yard
	}
	return ""
}

// RegionFor returns the region owning a map space point: the containing
// station with the nearest centre, else the containing tile.
func (c *Controller) RegionFor(p mgl64.Vec3) *Region {
	var best *Region
	bestDist := 0.0
	for _, r := range c.regions {
		if r.IsTile() || !r.Contains(p, false, false) {
			continue
		}
		d := r.WorldLocation.Sub(p).LenSqr()
		if best == nil || d < bestDist {
			best, bestDist = r, d
		}
	}
	if best != nil {
		return best
	}
	x, z := int(p[0]/TileSize), int(p[2]/TileSize)
	if p[0] < 0 || p[2] < 0 || x >= TileCount || z >= TileCount {
		return nil
	}
	return c.tiles[x][z]
}

// findParent resolves the anchor of s: the world anchor for globals, then
// the host graph, then our own live instances.
func (c *Controller) findParent(s *Spawner) scene.Object {
	if s.IsGlobal() {
		return c.graph.WorldAnchor()
	}
	path := s.ResolvedParentPath()
	if o := c.graph.Find(path); o != nil && o.Alive() {
		return o
	}
	if sib := c.live[path]; sib != nil && sib.instance != nil && sib.instance.Alive() {
		return sib.instance
	}
	return nil
}

func (c *Controller) noteSpawned(s *Spawner) {
	c.live[s.livePath] = s
	c.totals.Spawned++
	spawnedTotal.WithLabelValues(s.Kind().String()).Inc()
	if c.current != nil {
		c.current.Spawned++
	}
	if s.Kind() == KindMesh {
		c.meshEvents = append(c.meshEvents, s)
	}
}

// forget drops s from the live index before its instance is destroyed.
func (c *Controller) forget(s *Spawner) {
	if c.live[s.livePath] == s {
		delete(c.live, s.livePath)
	}
	s.livePath = ""
	c.totals.Destroyed++
	destroyedTotal.WithLabelValues(s.Kind().String()).Inc()
	if c.current != nil {
		c.current.Destroyed++
	}
}

// drainMeshEvents lets lights attached to freshly spawned meshes skip their
// rate limit on the next tick.
func (c *Controller) drainMeshEvents() {
	for _, mesh := range c.meshEvents {
		r := c.regionOf(mesh)
		if r == nil || mesh.instance == nil {
			continue
		}
		for _, g := range r.groups {
			for _, l := range g.dependents(mesh) {
				if l.instance == nil {
					l.ForceUpdate = true
				}
			}
		}
	}
	c.meshEvents = c.meshEvents[:0]
}

// onMeshRemoved deletes lights attached to mesh in every group of its region.
func (c *Controller) onMeshRemoved(mesh *Spawner) []*Spawner {
	r := c.regionOf(mesh)
	if r == nil {
		return nil
	}
	var out []*Spawner
	for _, g := range r.groups {
		out = append(out, g.OnMeshRemoved(c, mesh)...)
	}
	return out
}

func (c *Controller) killOrphansActive(now time.Time) bool {
	return now.Before(c.killOrphansUntil)
}

func (c *Controller) freeOrphansActive(now time.Time) bool {
	return now.Before(c.freeOrphansUntil)
}

// Journal exposes the diagnostic journal.
func (c *Controller) Journal() *Journal { return c.journal }
