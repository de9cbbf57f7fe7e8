package world

import (
	"math"
	"slices"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"lightsniper/internal/scene"
)

// uniformScaleTolerance is the relative spread allowed between scale axes.
const uniformScaleTolerance = 1e-3

// FindParentTransform picks the anchor for a placement at hit. It prefers
// the hit object or its nearest suitable ancestor, then the closest suitable
// object around the hit, then the region anchor. An empty path with a nil
// parent means the placement is global.
func (c *Controller) FindParentTransform(hit scene.Hit, r *Region, g *Group) (scene.Object, string) {
	for o := hit.Object; o != nil; o = o.Parent() {
		if c.suitableAnchor(o, r, g) {
			return o, c.graph.PathOf(o)
		}
	}

	for _, radius := range []float64{RegionRadius, RegionTickRadius} {
		var best scene.Object
		bestDist := math.Inf(1)
		for _, o := range c.physics.OverlapSphere(hit.Point, radius) {
			if !c.suitableAnchor(o, r, g) {
				continue
			}
			if d := o.Position().Sub(hit.Point).Len(); d < bestDist {
				best, bestDist = o, d
			}
		}
		if best != nil {
			return best, c.graph.PathOf(best)
		}
	}

	if r != nil && r.AnchorPath != "" {
		if o := c.graph.Find(r.AnchorPath); o != nil && o.Alive() {
			return o, r.AnchorPath
		}
	}
	return nil, ""
}

// suitableAnchor reports whether o can carry spawners of group g.
func (c *Controller) suitableAnchor(o scene.Object, r *Region, g *Group) bool {
	if o == nil || !o.Alive() {
		return false
	}
	if anchor := c.graph.WorldAnchor(); anchor != nil && o == anchor {
		return false
	}
	if slices.Contains(c.cfg.ExcludedCategories, o.Category()) {
		return false
	}
	path := c.graph.PathOf(o)
	if path == "" || c.markers[path] {
		return false
	}
	if own := c.live[path]; own != nil {
		if own.Kind() != KindMesh {
			return false
		}
		if g == nil || (own.group != g.ID && (r == nil || r.defaultGroup == nil || own.group != r.defaultGroup.ID)) {
			return false
		}
	}
	if !uniformScale(o.Scale()) {
		return false
	}
	return c.graph.Find(path) == o
}

func uniformScale(v mgl64.Vec3) bool {
	lo := math.Min(v[0], math.Min(v[1], v[2]))
	hi := math.Max(v[0], math.Max(v[1], v[2]))
	if hi <= 0 {
		return false
	}
	return (hi-lo)/hi <= uniformScaleTolerance
}

// localTransform expresses a world pose relative to parent.
func localTransform(parent scene.Object, world mgl64.Vec3, rot mgl64.Quat) (mgl64.Vec3, mgl64.Quat) {
	inv := parent.Rotation().Inverse()
	local := inv.Rotate(world.Sub(parent.Position()))
	if s := parent.Scale()[0]; s != 0 {
		local = local.Mul(1 / s)
	}
	return local, inv.Mul(rot).Normalize()
}

// tokenize swaps the group prefix for the group token so paths survive a
// rename of the group.
func tokenize(path string, g *Group) string {
	return strings.ReplaceAll(path, g.Prefix(), GroupToken)
}

// surfaceRotation turns +Y onto normal.
func surfaceRotation(normal mgl64.Vec3) mgl64.Quat {
	if normal.Len() == 0 {
		return mgl64.QuatIdent()
	}
	return mgl64.QuatBetweenVectors(mgl64.Vec3{0, 1, 0}, normal.Normalize())
}
