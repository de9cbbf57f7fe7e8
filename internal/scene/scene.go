// Package scene defines the host collaborators the spawner runtime talks to.
//
// The host engine owns the real scene graph, physics and asset pipeline. This
// package only describes the narrow surface the runtime needs from them so the
// world package can be driven by any host (or by memscene in tests).
package scene

import (
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// PathSeparator delimits hierarchical object paths ("Station/Roof/Beam").
const PathSeparator = "/"

// Kind tells the host what sort of object Instantiate should build.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindLight
	KindMesh
	KindDecoration
	KindMarker
)

func (k Kind) String() string {
	switch k {
	case KindLight:
		return "light"
	case KindMesh:
		return "mesh"
	case KindDecoration:
		return "decoration"
	case KindMarker:
		return "marker"
	default:
		return "empty"
	}
}

// Object is a node of the host scene graph.
type Object interface {
	Name() string
	Parent() Object
	Position() mgl64.Vec3 // world space
	Rotation() mgl64.Quat // world space
	Scale() mgl64.Vec3    // lossy world scale
	Category() string     // host tag used to reject unsuitable anchors
	Active() bool
	SetActive(active bool)
	// Alive reports false once the host destroyed the object (directly or via
	// its parent).
	Alive() bool
}

// Instance is an object the runtime created through Graph.Instantiate.
type Instance interface {
	Object
	// SetFade applies the pre-cull fade factor (1 fully visible, 0 invisible).
	SetFade(fade float64)
	// SetEmitting switches the light or decoration output on and off.
	SetEmitting(on bool)
}

// Blueprint describes an object to instantiate under a parent.
type Blueprint struct {
	Kind          Kind
	Name          string
	LocalPosition mgl64.Vec3
	LocalRotation mgl64.Quat
	LocalScale    float64
	Bundle        string
	Asset         string
	Properties    map[string]any
}

// Hit is the result of a raycast.
type Hit struct {
	Point    mgl64.Vec3
	Normal   mgl64.Vec3
	Distance float64
	Object   Object
}

// Graph resolves and mutates the host hierarchy.
type Graph interface {
	// Find resolves a slash-delimited path. Returns nil when missing.
	Find(path string) Object
	// PathOf returns the path of an object. The path is unique when
	// Find(PathOf(o)) == o.
	PathOf(o Object) string
	Instantiate(parent Object, bp Blueprint) (Instance, error)
	Destroy(o Object)
	// WorldAnchor is the origin-shift object. World = map + anchor position.
	WorldAnchor() Object
}

// Physics answers spatial queries against host colliders.
type Physics interface {
	Raycast(origin, direction mgl64.Vec3, maxDistance float64) (Hit, bool)
	OverlapSphere(center mgl64.Vec3, radius float64) []Object
}

// Environment exposes player and session state.
type Environment interface {
	PlayerPosition() mgl64.Vec3 // world space
	// Loading is true during loading screens and fast travel.
	Loading() bool
	// Hour is the in-game time of day in [0, 24).
	Hour() float64
}

// Assets loads binary bundles referenced by mesh and decoration spawners.
type Assets interface {
	Load(bundle, asset string) error
}

// Host bundles every collaborator the controller needs.
type Host struct {
	Graph       Graph
	Physics     Physics
	Environment Environment
	Assets      Assets
}

// JoinPath joins path segments, skipping empty ones.
func JoinPath(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, PathSeparator)
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, PathSeparator)
}

// MapPosition converts a world position to map space using the anchor.
func MapPosition(g Graph, world mgl64.Vec3) mgl64.Vec3 {
	anchor := g.WorldAnchor()
	if anchor == nil {
		return world
	}
	return world.Sub(anchor.Position())
}

// WorldPosition converts a map position to world space using the anchor.
func WorldPosition(g Graph, m mgl64.Vec3) mgl64.Vec3 {
	anchor := g.WorldAnchor()
	if anchor == nil {
		return m
	}
	return m.Add(anchor.Position())
}
