package world

import (
	"fmt"
	"log"
	"math"
	"path"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"lightsniper/internal/store"
	"lightsniper/internal/world/spatial"
)

// gridCellSize is the cell size of the per-region nearest-spawner index.
const gridCellSize = 64.0

// Rect is an axis-aligned rectangle on the XZ plane.
type Rect struct {
	MinX, MinZ, MaxX, MaxZ float64
}

// Contains reports whether (x, z) lies inside, min edges inclusive.
func (r Rect) Contains(x, z float64) bool {
	return x >= r.MinX && x < r.MaxX && z >= r.MinZ && z < r.MaxZ
}

// Pad grows the rectangle by d on every side.
func (r Rect) Pad(d float64) Rect {
	return Rect{r.MinX - d, r.MinZ - d, r.MaxX + d, r.MaxZ + d}
}

// Region is a spatial partition owning groups. Station regions are circles
// of RegionRadius around WorldLocation; tiles are TileSize squares.
type Region struct {
	ID            RegionID
	Yard          string
	WorldLocation mgl64.Vec3 // map space centre, zero for tiles
	Area          Rect
	AnchorPath    string

	groups       []*Group
	defaultGroup *Group
	current      *Group
	resources    map[string]bool

	grid    *spatial.SpatialGrid
	indexed []*Spawner
	active  bool
}

func newStationRegion(id RegionID, st Station) *Region {
	r := &Region{
		ID:            id,
		Yard:          st.Yard,
		WorldLocation: st.Location,
		AnchorPath:    st.Anchor,
		Area: Rect{
			MinX: st.Location[0] - RegionRadius, MinZ: st.Location[2] - RegionRadius,
			MaxX: st.Location[0] + RegionRadius, MaxZ: st.Location[2] + RegionRadius,
		},
		resources: make(map[string]bool),
	}
	return r
}

func newTileRegion(id RegionID, x, z int) *Region {
	r := &Region{
		ID:   id,
		Yard: fmt.Sprintf("tile_%d_%d", x, z),
		Area: Rect{
			MinX: float64(x) * TileSize, MinZ: float64(z) * TileSize,
			MaxX: float64(x+1) * TileSize, MaxZ: float64(z+1) * TileSize,
		},
		resources: make(map[string]bool),
	}
	return r
}

// initGrid allocates the index on first use; most tiles never need one.
func (r *Region) initGrid() {
	a := r.TickArea()
	r.grid = spatial.NewSpatialGrid(a.MinX, a.MinZ, a.MaxX-a.MinX, a.MaxZ-a.MinZ, gridCellSize, 256)
}

// IsTile reports whether the region is a wilderness tile.
func (r *Region) IsTile() bool { return r.WorldLocation == (mgl64.Vec3{}) }

// TickArea is the area padded out to the tick radius.
func (r *Region) TickArea() Rect {
	return r.Area.Pad(math.Max(0, RegionTickRadius-RegionRadius))
}

// Center is the map space centre.
func (r *Region) Center() mgl64.Vec3 {
	if !r.IsTile() {
		return r.WorldLocation
	}
	return mgl64.Vec3{(r.Area.MinX + r.Area.MaxX) / 2, 0, (r.Area.MinZ + r.Area.MaxZ) / 2}
}

// Contains tests a map space point. tickRadius widens the test to the tick
// radius; radiusOnly forces the core radius even when tickRadius is set.
func (r *Region) Contains(p mgl64.Vec3, tickRadius, radiusOnly bool) bool {
	useTick := tickRadius && !radiusOnly
	if !r.IsTile() {
		dx, dz := p[0]-r.WorldLocation[0], p[2]-r.WorldLocation[2]
		d := dx*dx + dz*dz
		if useTick {
			return d < TickRadiusSq
		}
		return d < RegionRadiusSq
	}
	if useTick {
		return r.TickArea().Contains(p[0], p[2])
	}
	return r.Area.Contains(p[0], p[2])
}

// Groups returns the groups in tick order.
func (r *Region) Groups() []*Group { return r.groups }

// DefaultGroup returns the eagerly created user group.
func (r *Region) DefaultGroup() *Group { return r.defaultGroup }

// CurrentGroup is where new spawners go.
func (r *Region) CurrentGroup() *Group { return r.current }

// Active reports whether the last tick ran the region fully.
func (r *Region) Active() bool { return r.active }

func (r *Region) addGroup(g *Group) {
	r.groups = append(r.groups, g)
	r.resources[g.ResourceID()] = true
	r.sortGroups()
}

// sortGroups orders by ascending priority, then name, user before pack.
func (r *Region) sortGroups() {
	sort.SliceStable(r.groups, func(i, j int) bool {
		a, b := r.groups[i], r.groups[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Pack < b.Pack
	})
}

// load creates the default group and loads every document for the yard.
func (r *Region) load(c *Controller) error {
	def, err := c.loadGroup(r, c.disk, DefaultGroupName)
	if err != nil {
		return fmt.Errorf("region %s: %w", r.Yard, err)
	}
	r.addGroup(def)
	r.defaultGroup = def
	r.current = def
	r.Scan(c)
	return nil
}

// Scan loads documents not loaded yet from disk and every mounted pack.
// Returns how many groups were added.
func (r *Region) Scan(c *Controller) int {
	sources := []store.Source{c.disk}
	for _, p := range c.packs.All() {
		sources = append(sources, p)
	}
	added := 0
	for _, src := range sources {
		names, err := src.List(r.Yard)
		if err != nil {
			log.Printf("⚠️ Cannot list %s for %s: %v", src.ID(), r.Yard, err)
			continue
		}
		for _, name := range names {
			if r.resources[store.ResourceID(src.ID(), r.Yard, name)] {
				continue
			}
			g, err := c.loadGroup(r, src, name)
			if err != nil {
				log.Printf("⚠️ Cannot load group %s: %v", store.ResourceID(src.ID(), r.Yard, name), err)
				continue
			}
			r.addGroup(g)
			added++
		}
	}
	return added
}

// FindGroup returns the group called name, preferring user groups.
func (r *Region) FindGroup(name string) *Group {
	var found *Group
	for _, g := range r.groups {
		if g.Name != name {
			continue
		}
		if g.Editable() {
			return g
		}
		if found == nil {
			found = g
		}
	}
	return found
}

// BeginGroup makes name the current group, creating a user group if needed.
func (r *Region) BeginGroup(c *Controller, name string) (*Group, error) {
	if name == "" {
		return nil, fmt.Errorf("group name is empty")
	}
	g := r.FindGroup(name)
	if g != nil && !g.Editable() {
		return nil, fmt.Errorf("group %s: %w", name, ErrReadOnly)
	}
	if g == nil {
		g = &Group{
			ID:      GroupID(len(c.groups)),
			Name:    name,
			Version: BuildVersion,
			region:  r.ID,
			yard:    r.Yard,
			enabled: true,
			dirty:   true,
		}
		c.groups = append(c.groups, g)
		r.addGroup(g)
	}
	r.current = g
	return g, nil
}

// EndGroup returns to the default group.
func (r *Region) EndGroup() {
	r.current = r.defaultGroup
}

// EnableGroups toggles every group whose name matches the glob pattern.
func (r *Region) EnableGroups(c *Controller, pattern string, enabled bool) int {
	n := 0
	for _, g := range r.groups {
		if ok, _ := path.Match(pattern, g.Name); !ok {
			continue
		}
		if g.Enabled() != enabled {
			g.SetEnabled(c, enabled)
		}
		n++
	}
	return n
}

// Tick fully updates the region when the player is inside its tick radius
// and only maintains global spawners otherwise.
func (r *Region) Tick(ctx *tickContext) {
	r.active = r.Contains(ctx.player, true, false)
	if !r.active {
		for _, g := range r.groups {
			g.GlobalUpdate(ctx)
		}
		if len(r.indexed) > 0 {
			r.grid.Clear()
			r.indexed = r.indexed[:0]
		}
		return
	}
	for _, g := range r.groups {
		g.Tick(ctx)
	}
	r.rebuildIndex()
}

// rebuildIndex refreshes the nearest-spawner grid from live instances.
func (r *Region) rebuildIndex() {
	if r.grid == nil {
		r.initGrid()
	}
	r.grid.Clear()
	r.indexed = r.indexed[:0]
	for _, g := range r.groups {
		for _, kind := range Kinds {
			for _, s := range g.Spawners(kind) {
				if s.Deleted || s.instance == nil {
					continue
				}
				p, _ := s.MapPosition()
				r.grid.Insert(uint32(len(r.indexed)), p[0], p[2])
				r.indexed = append(r.indexed, s)
			}
		}
	}
}

// nearest returns the closest live spawner of kind within maxRange.
func (r *Region) nearest(kind Kind, p mgl64.Vec3, maxRange float64) (*Spawner, float64) {
	var best *Spawner
	bestDist := maxRange
	if r.grid == nil {
		return nil, bestDist
	}
	for _, id := range r.grid.QueryRadius(p[0], p[2], maxRange) {
		s := r.indexed[id]
		if s.Kind() != kind || s.Deleted || s.instance == nil {
			continue
		}
		pos, _ := s.MapPosition()
		if d := pos.Sub(p).Len(); d <= bestDist {
			best, bestDist = s, d
		}
	}
	return best, bestDist
}

// GridStats reports the nearest-spawner index.
func (r *Region) GridStats() spatial.GridStats {
	if r.grid == nil {
		return spatial.GridStats{}
	}
	return r.grid.Stats()
}
