package world

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"lightsniper/internal/scene"
	"lightsniper/internal/store"
)

// Group is a named, persistable collection of spawners inside one region.
// Groups from content packs are read-only apart from their enabled flag,
// which is stored as a pack-scoped override.
type Group struct {
	ID       GroupID
	Name     string
	Pack     string // empty for user groups
	Priority int
	Version  int

	region   RegionID
	yard     string
	enabled  bool
	override *bool
	dirty    bool

	meshes      []*Spawner
	lights      []*Spawner
	decorations []*Spawner
	nextSeq     int
}

// Editable reports whether the group may be changed and saved.
func (g *Group) Editable() bool { return g.Pack == "" }

// Enabled reports the effective enabled state.
func (g *Group) Enabled() bool {
	if g.override != nil {
		return *g.override
	}
	return g.enabled
}

// Region returns the owning region.
func (g *Group) Region() RegionID { return g.region }

// Prefix is prepended to every instance name the group creates.
func (g *Group) Prefix() string {
	return "LS_" + g.yard + "_" + sanitizeName(g.Name) + "_"
}

// ResourceID identifies the backing document.
func (g *Group) ResourceID() string {
	return store.ResourceID(g.Pack, g.yard, g.Name)
}

func (g *Group) overrideKey() string { return g.yard + "/" + g.Name }

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', '$':
			return '-'
		}
		return r
	}, s)
}

func (g *Group) list(kind Kind) *[]*Spawner {
	switch kind {
	case KindMesh:
		return &g.meshes
	case KindLight:
		return &g.lights
	default:
		return &g.decorations
	}
}

// Spawners returns the spawners of kind, including deleted ones.
func (g *Group) Spawners(kind Kind) []*Spawner { return *g.list(kind) }

// Count returns the number of live (not deleted) spawners of kind.
func (g *Group) Count(kind Kind) int {
	n := 0
	for _, s := range *g.list(kind) {
		if !s.Deleted {
			n++
		}
	}
	return n
}

func (g *Group) attach(s *Spawner) {
	if s.seq == 0 {
		g.nextSeq++
		s.seq = g.nextSeq
	} else if s.seq > g.nextSeq {
		g.nextSeq = s.seq
	}
	s.group = g.ID
	s.prefix = g.Prefix()
	*g.list(s.Kind()) = append(*g.list(s.Kind()), s)
}

// Add moves s into g. A mesh brings along lights that depend on it; any
// other spawner keeps pointing at its old anchor.
func (g *Group) Add(c *Controller, s *Spawner) {
	if s.group == g.ID {
		return
	}
	var deps []*Spawner
	oldBase := s.BaseName()
	if old := c.Group(s.group); old != nil {
		if s.Kind() == KindMesh {
			deps = old.dependents(s)
		} else {
			s.ParentPath = s.ResolvedParentPath()
		}
		old.Remove(c, s)
		for _, d := range deps {
			old.Remove(c, d)
		}
		s.seq = 0
		s.Dirty = true
	}
	g.attach(s)
	for _, d := range deps {
		d.ParentPath = replaceSegment(d.ParentPath, GroupToken+oldBase, GroupToken+s.BaseName())
		d.seq = 0
		d.Dirty = true
		g.attach(d)
	}
	g.dirty = true
}

// SetPriority changes the tick order of g within its region. Pack groups
// keep their priority in memory only.
func (g *Group) SetPriority(c *Controller, priority int) {
	if g.Priority == priority {
		return
	}
	g.Priority = priority
	if g.Editable() {
		g.dirty = true
	}
	if r := c.Region(g.region); r != nil {
		r.sortGroups()
	}
}

func replaceSegment(path, old, repl string) string {
	segs := strings.Split(path, scene.PathSeparator)
	for i, seg := range segs {
		if seg == old {
			segs[i] = repl
		}
	}
	return strings.Join(segs, scene.PathSeparator)
}

// Remove detaches s from g and destroys its instance. Its group becomes
// NoGroup.
func (g *Group) Remove(c *Controller, s *Spawner) bool {
	list := g.list(s.Kind())
	for i, cur := range *list {
		if cur == s {
			*list = append((*list)[:i], (*list)[i+1:]...)
			s.destroy(c)
			s.clearMarker(c)
			s.group = NoGroup
			s.prefix = ""
			g.dirty = true
			return true
		}
	}
	return false
}

// dependents returns live lights whose parent path runs through mesh.
func (g *Group) dependents(mesh *Spawner) []*Spawner {
	var out []*Spawner
	for _, l := range g.lights {
		if !l.Deleted && l.dependsOn(mesh) {
			out = append(out, l)
		}
	}
	return out
}

// OnMeshRemoved deletes every light attached to mesh and returns them.
func (g *Group) OnMeshRemoved(c *Controller, mesh *Spawner) []*Spawner {
	deps := g.dependents(mesh)
	for _, l := range deps {
		l.Delete(c)
	}
	return deps
}

// Find returns the spawner of kind whose instance lives at path.
func (g *Group) Find(kind Kind, path string) *Spawner {
	for _, s := range *g.list(kind) {
		if s.Deleted {
			continue
		}
		if s.livePath == path {
			return s
		}
	}
	return nil
}

// Tick updates every spawner: meshes, then lights, then decorations.
// Spawners that errored this tick are deleted afterwards.
func (g *Group) Tick(ctx *tickContext) {
	if !g.Enabled() {
		return
	}
	for _, kind := range Kinds {
		for _, s := range *g.list(kind) {
			s.TryUpdate(ctx)
		}
	}
	for _, kind := range Kinds {
		for _, s := range *g.list(kind) {
			if !s.Errored || s.Deleted {
				continue
			}
			ctx.ticket.Errored++
			s.Delete(ctx.c)
			if s.Kind() == KindMesh {
				ctx.c.onMeshRemoved(s)
			}
			log.Printf("🗑️ Deleted errored spawner %s", s.Name())
		}
	}
}

// GlobalUpdate runs outside the tick radius: only already spawned global
// spawners are culled and counted.
func (g *Group) GlobalUpdate(ctx *tickContext) {
	if !g.Enabled() || ctx.loading {
		return
	}
	for _, kind := range Kinds {
		for _, s := range *g.list(kind) {
			if s.Deleted || s.instance == nil || !s.IsGlobal() {
				continue
			}
			if !s.instance.Alive() {
				s.destroy(ctx.c)
				continue
			}
			visible := s.updateCulling(ctx)
			if s.instance != nil {
				ctx.ticket.countActive(kind, visible)
			}
		}
	}
}

// despawnAll destroys every live instance.
func (g *Group) despawnAll(c *Controller) {
	for _, kind := range Kinds {
		for _, s := range *g.list(kind) {
			s.destroy(c)
			s.clearMarker(c)
		}
	}
}

// SetEnabled toggles the group. Pack groups record an override instead.
func (g *Group) SetEnabled(c *Controller, enabled bool) {
	if g.Editable() {
		g.enabled = enabled
		g.dirty = true
	} else {
		g.override = &enabled
		c.markOverrideDirty(g.Pack)
	}
	if !g.Enabled() {
		g.despawnAll(c)
	} else {
		for _, kind := range Kinds {
			for _, s := range *g.list(kind) {
				if !s.Deleted {
					s.ForceUpdate = true
				}
			}
		}
	}
}

// IsDirty reports unsaved changes.
func (g *Group) IsDirty() bool {
	if g.dirty {
		return true
	}
	for _, kind := range Kinds {
		for _, s := range *g.list(kind) {
			if s.Dirty {
				return true
			}
		}
	}
	return false
}

func (g *Group) document() groupDocument {
	version := BuildVersion
	doc := groupDocument{Priority: g.Priority}
	if !g.enabled {
		f := false
		doc.Enabled = &f
	}
	add := func(dst *[]spawnerRecord, list []*Spawner) {
		*dst = make([]spawnerRecord, 0, len(list))
		for _, s := range list {
			if s.Deleted {
				continue
			}
			if len(s.upgrades) > 0 && g.Version < version {
				version = g.Version
			}
			*dst = append(*dst, s.record())
		}
	}
	add(&doc.Meshes, g.meshes)
	add(&doc.Lights, g.lights)
	add(&doc.Decorations, g.decorations)
	doc.Version = version
	return doc
}

// Save writes the group document. Pack groups fail with ErrReadOnly.
func (g *Group) Save(c *Controller) error {
	if !g.Editable() {
		return ErrReadOnly
	}
	doc := g.document()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode group %s: %w", g.Name, err)
	}
	if err := c.disk.Write(g.yard, g.Name, data); err != nil {
		return fmt.Errorf("save group %s: %w", g.Name, err)
	}
	g.Version = doc.Version
	g.dirty = false
	for _, kind := range Kinds {
		for _, s := range *g.list(kind) {
			s.Dirty = false
		}
	}
	return nil
}

// AutoSave saves the group when it is editable and dirty.
func (g *Group) AutoSave(c *Controller) (bool, error) {
	if !g.Editable() || !g.IsDirty() {
		return false, nil
	}
	if err := g.Save(c); err != nil {
		return false, err
	}
	return true, nil
}

// loadGroup reads a document from src. A missing user document yields an
// empty group.
func (c *Controller) loadGroup(r *Region, src store.Source, name string) (*Group, error) {
	g := &Group{
		ID:      GroupID(len(c.groups)),
		Name:    name,
		Pack:    src.ID(),
		Version: BuildVersion,
		region:  r.ID,
		yard:    r.Yard,
		enabled: true,
	}

	data, err := src.Read(r.Yard, name)
	switch {
	case errors.Is(err, store.ErrNotFound) && g.Editable():
		c.groups = append(c.groups, g)
		return g, nil
	case err != nil:
		return nil, err
	}

	doc, err := decodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", g.ResourceID(), err)
	}
	g.Version = doc.Version
	g.Priority = doc.Priority
	if doc.Enabled != nil {
		g.enabled = *doc.Enabled
	}
	if !g.Editable() {
		if o, ok := c.overrides[g.Pack][g.overrideKey()]; ok {
			g.override = &o
		}
	}

	c.groups = append(c.groups, g)
	for _, set := range []struct {
		kind Kind
		recs []spawnerRecord
	}{{KindMesh, doc.Meshes}, {KindLight, doc.Lights}, {KindDecoration, doc.Decorations}} {
		for _, rec := range set.recs {
			s, err := c.spawnerFromRecord(set.kind, rec, doc.Version)
			if err != nil {
				log.Printf("⚠️ Skipping record in %s: %v", g.ResourceID(), err)
				continue
			}
			c.register(s)
			g.attach(s)
		}
	}
	return g, nil
}
