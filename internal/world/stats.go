package world

import (
	"time"

	"lightsniper/internal/scene"
	"lightsniper/internal/world/spatial"
)

// SpawnerInfo describes one spawner for the API and overlay.
type SpawnerInfo struct {
	ID         SpawnerID  `json:"id"`
	Name       string     `json:"name"`
	Kind       string     `json:"kind"`
	Group      string     `json:"group"`
	Region     string     `json:"region"`
	ParentPath string     `json:"parentPath"`
	Position   [3]float64 `json:"position"` // map space, zero when never seen
	Euler      [3]float64 `json:"euler"`    // local rotation in degrees
	Active     bool       `json:"active"`
	Culled     bool       `json:"culled"`
	Deleted    bool       `json:"deleted"`
	Global     bool       `json:"global"`
	Fade       float64    `json:"fade"`
}

// GroupInfo summarizes a group.
type GroupInfo struct {
	ID          GroupID `json:"id"`
	Name        string  `json:"name"`
	Pack        string  `json:"pack,omitempty"`
	Priority    int     `json:"priority"`
	Enabled     bool    `json:"enabled"`
	Editable    bool    `json:"editable"`
	Current     bool    `json:"current"`
	Dirty       bool    `json:"dirty"`
	Lights      int     `json:"lights"`
	Meshes      int     `json:"meshes"`
	Decorations int     `json:"decorations"`
}

// RegionInfo summarizes a region.
type RegionInfo struct {
	ID     RegionID          `json:"id"`
	Yard   string            `json:"yard"`
	Tile   bool              `json:"tile"`
	Center [3]float64        `json:"center"`
	Area   Rect              `json:"area"`
	Active bool              `json:"active"`
	Grid   spatial.GridStats `json:"grid"`
	Groups []GroupInfo       `json:"groups"`
}

// Stats is the controller status served by /api/stats.
type Stats struct {
	Totals      Totals       `json:"totals"`
	LastTicket  TicketStats  `json:"lastTicket"`
	Regions     int          `json:"regions"`
	Active      int          `json:"activeRegions"`
	Groups      int          `json:"groups"`
	Spawners    int          `json:"spawners"`
	Live        int          `json:"live"`
	Frequencies int          `json:"frequencies"`
	UndoSteps   int          `json:"undoSteps"`
	BackingOff  bool         `json:"backingOff"`
	KillOrphans bool         `json:"killOrphans"`
	FreeOrphans bool         `json:"freeOrphans"`
	Uptime      string       `json:"uptime"`
	Journal     JournalStats `json:"journal"`
}

// TicketStats is the JSON view of an UpdateTicket.
type TicketStats struct {
	Budget             int `json:"budget"`
	Remaining          int `json:"remaining"`
	Searches           int `json:"searches"`
	Orphans            int `json:"orphans"`
	Anomalies          int `json:"anomalies"`
	Spawned            int `json:"spawned"`
	Destroyed          int `json:"destroyed"`
	Errored            int `json:"errored"`
	ActiveLights       int `json:"activeLights"`
	VisibleLights      int `json:"visibleLights"`
	ActiveMeshes       int `json:"activeMeshes"`
	VisibleMeshes      int `json:"visibleMeshes"`
	ActiveDecorations  int `json:"activeDecorations"`
	VisibleDecorations int `json:"visibleDecorations"`
}

func (t UpdateTicket) stats() TicketStats {
	return TicketStats{
		Budget:             t.budget,
		Remaining:          t.UpdatesRemaining,
		Searches:           t.Searches,
		Orphans:            t.Orphans,
		Anomalies:          t.Anomalies,
		Spawned:            t.Spawned,
		Destroyed:          t.Destroyed,
		Errored:            t.Errored,
		ActiveLights:       t.ActiveLights,
		VisibleLights:      t.VisibleLights,
		ActiveMeshes:       t.ActiveMeshes,
		VisibleMeshes:      t.VisibleMeshes,
		ActiveDecorations:  t.ActiveDecorations,
		VisibleDecorations: t.VisibleDecorations,
	}
}

// Stats returns a consistent status snapshot.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	active := 0
	for _, r := range c.regions {
		if r.active {
			active++
		}
	}
	return Stats{
		Totals:      c.totals,
		LastTicket:  c.lastTicket.stats(),
		Regions:     len(c.regions),
		Active:      active,
		Groups:      len(c.groups),
		Spawners:    len(c.spawners),
		Live:        len(c.live),
		Frequencies: c.duty.Len(),
		UndoSteps:   c.undo.Steps(),
		BackingOff:  now.Before(c.backoffUntil),
		KillOrphans: c.killOrphansActive(now),
		FreeOrphans: c.freeOrphansActive(now),
		Uptime:      now.Sub(c.started).Truncate(time.Second).String(),
		Journal:     c.journal.Stats(),
	}
}

func (c *Controller) groupInfo(r *Region, g *Group) GroupInfo {
	return GroupInfo{
		ID:          g.ID,
		Name:        g.Name,
		Pack:        g.Pack,
		Priority:    g.Priority,
		Enabled:     g.Enabled(),
		Editable:    g.Editable(),
		Current:     r.current == g,
		Dirty:       g.IsDirty(),
		Lights:      g.Count(KindLight),
		Meshes:      g.Count(KindMesh),
		Decorations: g.Count(KindDecoration),
	}
}

func (c *Controller) regionInfo(r *Region) RegionInfo {
	info := RegionInfo{
		ID:     r.ID,
		Yard:   r.Yard,
		Tile:   r.IsTile(),
		Center: [3]float64(r.Center()),
		Area:   r.Area,
		Active: r.active,
		Grid:   r.GridStats(),
		Groups: make([]GroupInfo, 0, len(r.groups)),
	}
	for _, g := range r.groups {
		info.Groups = append(info.Groups, c.groupInfo(r, g))
	}
	return info
}

// Regions lists regions. With populatedOnly, regions that hold nothing but
// an empty default group are skipped.
func (c *Controller) Regions(populatedOnly bool) []RegionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]RegionInfo, 0, len(c.regions))
	for _, r := range c.regions {
		if populatedOnly && !r.populated() && !r.active {
			continue
		}
		out = append(out, c.regionInfo(r))
	}
	return out
}

func (r *Region) populated() bool {
	if len(r.groups) > 1 {
		return true
	}
	for _, g := range r.groups {
		for _, k := range Kinds {
			if len(g.Spawners(k)) > 0 {
				return true
			}
		}
	}
	return false
}

func (c *Controller) info(s *Spawner) SpawnerInfo {
	info := SpawnerInfo{
		ID:         s.ID,
		Name:       s.Name(),
		Kind:       s.Kind().String(),
		ParentPath: s.ResolvedParentPath(),
		Euler:      [3]float64(eulerDegrees(s.Rotation)),
		Active:     s.Active(),
		Culled:     s.Culled,
		Deleted:    s.Deleted,
		Global:     s.IsGlobal(),
		Fade:       s.PreCullFade,
	}
	if p, ok := s.MapPosition(); ok {
		info.Position = [3]float64(p)
	}
	if g := c.Group(s.group); g != nil {
		info.Group = g.Name
		info.Region = g.yard
	}
	return info
}

// Spawner returns the description of one spawner.
func (c *Controller) Spawner(id SpawnerID) (SpawnerInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.spawner(id)
	if s == nil {
		return SpawnerInfo{}, ErrNotFound
	}
	return c.info(s), nil
}

// MapSnapshot is what the debug minimap draws.
type MapSnapshot struct {
	Player   [3]float64    `json:"player"`
	Regions  []RegionInfo  `json:"regions"`
	Spawners []SpawnerInfo `json:"spawners"`
}

// Snapshot collects regions and every spawner with a known position.
func (c *Controller) Snapshot() MapSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := MapSnapshot{Player: [3]float64(scene.MapPosition(c.graph, c.env.PlayerPosition()))}
	for _, r := range c.regions {
		if r.populated() || r.active {
			snap.Regions = append(snap.Regions, c.regionInfo(r))
		}
	}
	for _, s := range c.spawners {
		if s.Deleted || s.group == NoGroup {
			continue
		}
		if _, ok := s.MapPosition(); ok {
			snap.Spawners = append(snap.Spawners, c.info(s))
		}
	}
	return snap
}
