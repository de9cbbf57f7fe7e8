// Package memscene is an in-memory host scene used by tests and the
// standalone server. It implements every collaborator interface of package
// scene with plain Go structures.
package memscene

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"lightsniper/internal/scene"

	"github.com/go-gl/mathgl/mgl64"
)

// AnchorName is the root the world anchor lives at.
const AnchorName = "WorldAnchor"

// ErrDeadParent is returned when instantiating under a destroyed object.
var ErrDeadParent = errors.New("memscene: parent destroyed")

// Node is a scene object.
type Node struct {
	scene    *Scene
	name     string
	parent   *Node
	children []*Node

	local    mgl64.Vec3
	rotation mgl64.Quat
	scale    mgl64.Vec3
	category string
	active   bool
	alive    bool
	collider float64

	// Instance state, only meaningful for nodes created by Instantiate.
	Blueprint scene.Blueprint
	Fade      float64
	Emitting  bool
}

func (n *Node) Name() string { return n.name }

func (n *Node) Parent() scene.Object {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *Node) Position() mgl64.Vec3 {
	if n.parent == nil {
		return n.local
	}
	ps := n.parent.Scale()
	scaled := mgl64.Vec3{n.local[0] * ps[0], n.local[1] * ps[1], n.local[2] * ps[2]}
	return n.parent.Position().Add(n.parent.Rotation().Rotate(scaled))
}

func (n *Node) Rotation() mgl64.Quat {
	if n.parent == nil {
		return n.rotation
	}
	return n.parent.Rotation().Mul(n.rotation).Normalize()
}

func (n *Node) Scale() mgl64.Vec3 {
	if n.parent == nil {
		return n.scale
	}
	ps := n.parent.Scale()
	return mgl64.Vec3{n.scale[0] * ps[0], n.scale[1] * ps[1], n.scale[2] * ps[2]}
}

func (n *Node) Category() string { return n.category }
func (n *Node) Active() bool     { return n.active }
func (n *Node) SetActive(a bool) { n.active = a }
func (n *Node) Alive() bool      { return n.alive }

func (n *Node) SetFade(f float64)   { n.Fade = f }
func (n *Node) SetEmitting(on bool) { n.Emitting = on }

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// SetLocal moves the node relative to its parent.
func (n *Node) SetLocal(p mgl64.Vec3) { n.local = p }

// SetLocalScale changes the node's own scale.
func (n *Node) SetLocalScale(s mgl64.Vec3) { n.scale = s }

// SetCollider gives the node a sphere collider for raycasts and overlaps.
func (n *Node) SetCollider(radius float64) { n.collider = radius }

// Scene is an in-memory scene graph plus environment.
type Scene struct {
	roots  []*Node
	anchor *Node

	mu      sync.RWMutex
	player  mgl64.Vec3
	loading bool
	hour    float64
	missing map[string]bool
	loads   int
}

// New creates a scene with a world anchor at the origin.
func New() *Scene {
	s := &Scene{hour: 12, missing: make(map[string]bool)}
	s.anchor = s.Add(nil, AnchorName, mgl64.Vec3{}, "")
	return s
}

// Add creates a plain object. A nil parent creates a root.
func (s *Scene) Add(parent *Node, name string, local mgl64.Vec3, category string) *Node {
	n := &Node{
		scene:    s,
		name:     name,
		parent:   parent,
		local:    local,
		rotation: mgl64.QuatIdent(),
		scale:    mgl64.Vec3{1, 1, 1},
		category: category,
		active:   true,
		alive:    true,
		Fade:     1,
	}
	if parent == nil {
		s.roots = append(s.roots, n)
	} else {
		parent.children = append(parent.children, n)
	}
	return n
}

// Find resolves a slash-delimited path, returning the first match.
func (s *Scene) Find(path string) scene.Object {
	if n := s.find(path); n != nil {
		return n
	}
	return nil
}

func (s *Scene) find(path string) *Node {
	parts := strings.Split(strings.Trim(path, scene.PathSeparator), scene.PathSeparator)
	if len(parts) == 0 || parts[0] == "" {
		return nil
	}
	candidates := s.roots
	var cur *Node
	for _, part := range parts {
		cur = nil
		for _, c := range candidates {
			if c.alive && c.name == part {
				cur = c
				break
			}
		}
		if cur == nil {
			return nil
		}
		candidates = cur.children
	}
	return cur
}

// PathOf returns the slash-delimited path of o.
func (s *Scene) PathOf(o scene.Object) string {
	n, ok := o.(*Node)
	if !ok || n == nil {
		return ""
	}
	var parts []string
	for cur := n; cur != nil; cur = cur.parent {
		parts = append(parts, cur.name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, scene.PathSeparator)
}

// Instantiate creates a child node described by a blueprint.
func (s *Scene) Instantiate(parent scene.Object, bp scene.Blueprint) (scene.Instance, error) {
	p, ok := parent.(*Node)
	if !ok || p == nil {
		return nil, fmt.Errorf("memscene: unsupported parent %T", parent)
	}
	if !p.alive {
		return nil, ErrDeadParent
	}
	n := s.Add(p, bp.Name, bp.LocalPosition, "spawned:"+bp.Kind.String())
	if bp.LocalRotation != (mgl64.Quat{}) {
		n.rotation = bp.LocalRotation
	}
	if bp.LocalScale > 0 {
		n.scale = mgl64.Vec3{bp.LocalScale, bp.LocalScale, bp.LocalScale}
	}
	n.Blueprint = bp
	return n, nil
}

// Destroy kills o and its subtree and detaches it from its parent.
func (s *Scene) Destroy(o scene.Object) {
	n, ok := o.(*Node)
	if !ok || n == nil || !n.alive {
		return
	}
	kill(n)
	if n.parent != nil {
		n.parent.children = remove(n.parent.children, n)
	} else {
		s.roots = remove(s.roots, n)
	}
}

func kill(n *Node) {
	n.alive = false
	for _, c := range n.children {
		kill(c)
	}
}

func remove(list []*Node, n *Node) []*Node {
	for i, c := range list {
		if c == n {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// WorldAnchor returns the origin-shift object.
func (s *Scene) WorldAnchor() scene.Object { return s.anchor }

// Anchor returns the origin-shift node.
func (s *Scene) Anchor() *Node { return s.anchor }

// ShiftOrigin moves every root by delta the way a floating-origin host does.
// Map-space positions are unchanged.
func (s *Scene) ShiftOrigin(delta mgl64.Vec3) {
	for _, r := range s.roots {
		r.local = r.local.Add(delta)
	}
	s.mu.Lock()
	s.player = s.player.Add(delta)
	s.mu.Unlock()
}

// Raycast returns the nearest collider hit along the ray.
func (s *Scene) Raycast(origin, direction mgl64.Vec3, maxDistance float64) (scene.Hit, bool) {
	if direction.Len() == 0 {
		return scene.Hit{}, false
	}
	dir := direction.Normalize()
	best := scene.Hit{Distance: math.Inf(1)}
	found := false
	s.walk(func(n *Node) {
		if n.collider <= 0 {
			return
		}
		center := n.Position()
		oc := origin.Sub(center)
		b := oc.Dot(dir)
		c := oc.Dot(oc) - n.collider*n.collider
		disc := b*b - c
		if disc < 0 {
			return
		}
		t := -b - math.Sqrt(disc)
		if t < 0 {
			t = -b + math.Sqrt(disc)
		}
		if t < 0 || t > maxDistance || t >= best.Distance {
			return
		}
		point := origin.Add(dir.Mul(t))
		normal := point.Sub(center)
		if normal.Len() > 0 {
			normal = normal.Normalize()
		}
		best = scene.Hit{Point: point, Normal: normal, Distance: t, Object: n}
		found = true
	})
	return best, found
}

// OverlapSphere returns every collider intersecting the sphere.
func (s *Scene) OverlapSphere(center mgl64.Vec3, radius float64) []scene.Object {
	var out []scene.Object
	s.walk(func(n *Node) {
		if n.collider <= 0 {
			return
		}
		if n.Position().Sub(center).Len() <= radius+n.collider {
			out = append(out, n)
		}
	})
	return out
}

func (s *Scene) walk(fn func(*Node)) {
	var visit func(n *Node)
	visit = func(n *Node) {
		if !n.alive {
			return
		}
		fn(n)
		for _, c := range n.children {
			visit(c)
		}
	}
	for _, r := range s.roots {
		visit(r)
	}
}

// SetPlayer places the player in world space.
func (s *Scene) SetPlayer(p mgl64.Vec3) {
	s.mu.Lock()
	s.player = p
	s.mu.Unlock()
}

func (s *Scene) PlayerPosition() mgl64.Vec3 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.player
}

// SetLoading toggles the loading-screen flag.
func (s *Scene) SetLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
}

func (s *Scene) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// SetHour sets the time of day.
func (s *Scene) SetHour(h float64) {
	s.mu.Lock()
	s.hour = h
	s.mu.Unlock()
}

func (s *Scene) Hour() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hour
}

// SetMissing marks an asset as unloadable.
func (s *Scene) SetMissing(bundle, asset string, missing bool) {
	s.mu.Lock()
	s.missing[bundle+"/"+asset] = missing
	s.mu.Unlock()
}

// Load fails for assets marked missing.
func (s *Scene) Load(bundle, asset string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.missing[bundle+"/"+asset] {
		return fmt.Errorf("memscene: asset %s/%s not found", bundle, asset)
	}
	return nil
}

// LoadCount returns how many asset loads were attempted.
func (s *Scene) LoadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loads
}

// Host returns the scene wrapped as every collaborator.
func (s *Scene) Host() scene.Host {
	return scene.Host{Graph: s, Physics: s, Environment: s, Assets: s}
}
