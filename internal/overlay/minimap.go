// Package overlay renders the debug minimap served at /api/debug/map.png.
package overlay

import (
	"fmt"
	"image/color"
	"io"

	"github.com/fogleman/gg"

	"lightsniper/internal/world"
)

// Options control the minimap image.
type Options struct {
	Size   int     // output width and height in pixels
	Span   float64 // map units shown edge to edge; 0 fits the whole tile grid
	Center bool    // centre on the player instead of the map origin
}

// DefaultOptions draws the full tile grid at 512px.
func DefaultOptions() Options {
	return Options{Size: 512}
}

var (
	background  = color.RGBA{12, 12, 28, 255}
	gridColor   = color.RGBA{30, 30, 45, 255}
	tileActive  = color.RGBA{40, 60, 90, 255}
	stationRing = color.RGBA{120, 160, 255, 255}
	playerColor = color.RGBA{255, 255, 255, 255}
	culledColor = color.RGBA{90, 90, 100, 255}
	meshColor   = color.RGBA{80, 200, 120, 255}
	decoColor   = color.RGBA{200, 120, 255, 255}
)

// projection maps map-space x/z to pixels.
type projection struct {
	originX, originZ float64
	scale            float64
}

func (p projection) point(x, z float64) (float64, float64) {
	return (x - p.originX) * p.scale, (z - p.originZ) * p.scale
}

func newProjection(snap world.MapSnapshot, opts Options) projection {
	span := opts.Span
	if span <= 0 {
		span = world.TileCount * world.TileSize
	}
	p := projection{scale: float64(opts.Size) / span}
	if opts.Center {
		p.originX = snap.Player[0] - span/2
		p.originZ = snap.Player[2] - span/2
	}
	return p
}

// Render draws regions, spawners and the player as a PNG.
func Render(w io.Writer, snap world.MapSnapshot, opts Options) error {
	if opts.Size <= 0 {
		return fmt.Errorf("overlay: size must be positive, got %d", opts.Size)
	}
	dc := gg.NewContext(opts.Size, opts.Size)
	proj := newProjection(snap, opts)

	dc.SetColor(background)
	dc.DrawRectangle(0, 0, float64(opts.Size), float64(opts.Size))
	dc.Fill()

	drawRegions(dc, proj, snap.Regions)
	drawSpawners(dc, proj, snap.Spawners)

	px, pz := proj.point(snap.Player[0], snap.Player[2])
	dc.SetColor(playerColor)
	dc.DrawCircle(px, pz, 4)
	dc.Fill()

	return dc.EncodePNG(w)
}

func drawRegions(dc *gg.Context, proj projection, regions []world.RegionInfo) {
	dc.SetLineWidth(1)
	for _, r := range regions {
		if !r.Tile {
			continue
		}
		x0, z0 := proj.point(r.Area.MinX, r.Area.MinZ)
		x1, z1 := proj.point(r.Area.MaxX, r.Area.MaxZ)
		if r.Active {
			dc.SetColor(tileActive)
			dc.DrawRectangle(x0, z0, x1-x0, z1-z0)
			dc.Fill()
		}
		dc.SetColor(gridColor)
		dc.DrawRectangle(x0, z0, x1-x0, z1-z0)
		dc.Stroke()
	}

	// Stations go on top of the tiles they overlap.
	dc.SetLineWidth(2)
	for _, r := range regions {
		if r.Tile {
			continue
		}
		cx, cz := proj.point(r.Center[0], r.Center[2])
		dc.SetColor(stationRing)
		dc.DrawCircle(cx, cz, world.RegionRadius*proj.scale)
		dc.Stroke()
	}
}

func drawSpawners(dc *gg.Context, proj projection, spawners []world.SpawnerInfo) {
	for _, s := range spawners {
		x, z := proj.point(s.Position[0], s.Position[2])
		dc.SetColor(spawnerColor(s))
		switch s.Kind {
		case world.KindMesh.String():
			dc.DrawRectangle(x-1.5, z-1.5, 3, 3)
		default:
			dc.DrawCircle(x, z, 1.5)
		}
		dc.Fill()
	}
}

func spawnerColor(s world.SpawnerInfo) color.Color {
	if s.Culled || !s.Active {
		return culledColor
	}
	switch s.Kind {
	case world.KindMesh.String():
		return meshColor
	case world.KindDecoration.String():
		return decoColor
	}
	return color.NRGBA{255, 200, 80, uint8(80 + 175*s.Fade)}
}
