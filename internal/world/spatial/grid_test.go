package spatial

import (
	"slices"
	"testing"
)

// TestQueryRadiusOffsetOrigin verifies queries honour the grid origin
func TestQueryRadiusOffsetOrigin(t *testing.T) {
	g := NewSpatialGrid(1000, 2000, 512, 512, 64, 16)
	g.Insert(1, 1010, 2010)
	g.Insert(2, 1400, 2400)
	g.Insert(3, 1020, 2030)

	got := g.QueryRadius(1015, 2015, 20)
	if !slices.Contains(got, 1) || !slices.Contains(got, 3) {
		t.Errorf("expected ids 1 and 3 near origin, got %v", got)
	}
	if slices.Contains(got, 2) {
		t.Errorf("id 2 is several cells away, got %v", got)
	}
}

// TestInsertClampsOutOfBounds verifies points outside land in border cells
func TestInsertClampsOutOfBounds(t *testing.T) {
	g := NewSpatialGrid(0, 0, 128, 128, 64, 4)
	g.Insert(7, -50, -50)
	g.Insert(8, 9999, 9999)

	if got := g.QueryRadius(0, 0, 1); !slices.Contains(got, 7) {
		t.Errorf("expected clamped id 7 in corner cell, got %v", got)
	}
	if got := g.QueryRadius(127, 127, 1); !slices.Contains(got, 8) {
		t.Errorf("expected clamped id 8 in far cell, got %v", got)
	}
}

// TestClearKeepsCapacity verifies Clear resets counts
func TestClearKeepsCapacity(t *testing.T) {
	g := NewSpatialGrid(0, 0, 256, 256, 64, 64)
	for i := uint32(0); i < 10; i++ {
		g.Insert(i, float64(i*20), 10)
	}
	if g.Len() != 10 || g.Stats().TotalEntities != 10 {
		t.Fatalf("expected 10 entities, got %d", g.Len())
	}
	g.Clear()
	if g.Len() != 0 || len(g.QueryRadius(128, 128, 512)) != 0 {
		t.Error("expected empty grid after Clear")
	}
	if g.Stats().TotalCells != 16 {
		t.Errorf("TotalCells = %d, want 16", g.Stats().TotalCells)
	}
}
