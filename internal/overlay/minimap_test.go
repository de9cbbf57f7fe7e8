package overlay

import (
	"bytes"
	"image/png"
	"testing"

	"lightsniper/internal/world"
)

func testSnapshot() world.MapSnapshot {
	return world.MapSnapshot{
		Player: [3]float64{2048, 0, 2048},
		Regions: []world.RegionInfo{
			{Yard: "HB", Center: [3]float64{2048, 0, 2048}},
			{Yard: "tile_2_2", Tile: true, Active: true, Area: world.Rect{MinX: 2048, MinZ: 2048, MaxX: 3072, MaxZ: 3072}},
		},
		Spawners: []world.SpawnerInfo{
			{Kind: "Mesh", Position: [3]float64{4096, 0, 4096}, Active: true, Fade: 1},
			{Kind: "Light", Position: [3]float64{8192, 0, 8192}, Active: true, Fade: 1},
		},
	}
}

// TestRenderProducesPNG verifies the image size and the player marker
func TestRenderProducesPNG(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, testSnapshot(), DefaultOptions()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("Output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 512 || b.Dy() != 512 {
		t.Fatalf("Expected 512x512, got %v", b)
	}

	// 16384 map units over 512 pixels puts the player at (64, 64).
	r, g, b, _ := img.At(64, 64).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Errorf("Expected a white player marker, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
	r, g, b, _ = img.At(128, 128).RGBA()
	if r>>8 != uint32(meshColor.R) || g>>8 != uint32(meshColor.G) || b>>8 != uint32(meshColor.B) {
		t.Errorf("Expected the mesh marker at (128, 128), got %d,%d,%d", r>>8, g>>8, b>>8)
	}
	r, g, b, _ = img.At(500, 10).RGBA()
	if r>>8 != uint32(background.R) || g>>8 != uint32(background.G) || b>>8 != uint32(background.B) {
		t.Errorf("Expected background in an empty corner, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

// TestRenderCentersOnPlayer verifies the centred projection
func TestRenderCentersOnPlayer(t *testing.T) {
	opts := Options{Size: 200, Span: 400, Center: true}
	proj := newProjection(testSnapshot(), opts)
	x, z := proj.point(2048, 2048)
	if x != 100 || z != 100 {
		t.Errorf("Expected the player in the middle, got %v,%v", x, z)
	}
}

// TestRenderRejectsBadSize verifies invalid options fail
func TestRenderRejectsBadSize(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, world.MapSnapshot{}, Options{}); err == nil {
		t.Error("Expected an error for a zero size")
	}
}
