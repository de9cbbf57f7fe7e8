// Package spatial provides a uniform grid for nearest-spawner queries.
//
// The grid stores integer indices (not pointers) into the caller's slice so it
// can be rebuilt every tick without allocating.
package spatial

import (
	"math"
)

// SpatialGrid buckets points on the XZ plane into fixed-size cells covering
// a rectangle with its minimum corner at (originX, originZ).
//
// Memory layout: cells are stored in row-major order (cells[row*cols+col])
type SpatialGrid struct {
	originX, originZ float64
	cellSize         float64
	invCellSize      float64 // 1/cellSize for faster division
	cols, rows       int
	cells            [][]uint32 // cells[row*cols+col] = list of entity indices
	scratch          []uint32   // reusable buffer for query results
	count            int
}

// NewSpatialGrid creates a grid over [originX, originX+width) x
// [originZ, originZ+depth). maxEntities is used to preallocate cell capacity.
func NewSpatialGrid(originX, originZ, width, depth, cellSize float64, maxEntities int) *SpatialGrid {
	cols := int(math.Ceil(width / cellSize))
	rows := int(math.Ceil(depth / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	cells := make([][]uint32, cols*rows)
	avgPerCell := maxEntities / len(cells)
	if avgPerCell < 4 {
		avgPerCell = 4
	}
	for i := range cells {
		cells[i] = make([]uint32, 0, avgPerCell)
	}

	return &SpatialGrid{
		originX:     originX,
		originZ:     originZ,
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		cols:        cols,
		rows:        rows,
		cells:       cells,
		scratch:     make([]uint32, 0, 64),
	}
}

// Clear resets all cells without deallocating underlying memory.
func (g *SpatialGrid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
	g.count = 0
}

// Len is the number of inserted entities.
func (g *SpatialGrid) Len() int { return g.count }

// Insert adds an entity at (x, z). Points outside the grid clamp to the
// border cells.
func (g *SpatialGrid) Insert(entityID uint32, x, z float64) {
	idx := g.cellIndex(x, z)
	g.cells[idx] = append(g.cells[idx], entityID)
	g.count++
}

func (g *SpatialGrid) clampCol(col int) int {
	if col < 0 {
		return 0
	}
	if col >= g.cols {
		return g.cols - 1
	}
	return col
}

func (g *SpatialGrid) clampRow(row int) int {
	if row < 0 {
		return 0
	}
	if row >= g.rows {
		return g.rows - 1
	}
	return row
}

func (g *SpatialGrid) cellIndex(x, z float64) int {
	col := g.clampCol(int(math.Floor((x - g.originX) * g.invCellSize)))
	row := g.clampRow(int(math.Floor((z - g.originZ) * g.invCellSize)))
	return row*g.cols + col
}

// QueryRadius returns all entity IDs potentially within radius of (cx, cz).
//
// IMPORTANT: The returned slice is reused on subsequent calls.
// The caller must perform a precise distance check (narrow phase).
func (g *SpatialGrid) QueryRadius(cx, cz, radius float64) []uint32 {
	g.scratch = g.scratch[:0]

	minCol := g.clampCol(int(math.Floor((cx - radius - g.originX) * g.invCellSize)))
	maxCol := g.clampCol(int(math.Floor((cx + radius - g.originX) * g.invCellSize)))
	minRow := g.clampRow(int(math.Floor((cz - radius - g.originZ) * g.invCellSize)))
	maxRow := g.clampRow(int(math.Floor((cz + radius - g.originZ) * g.invCellSize)))

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			g.scratch = append(g.scratch, g.cells[row*g.cols+col]...)
		}
	}
	return g.scratch
}

// Stats returns grid statistics for debugging.
func (g *SpatialGrid) Stats() GridStats {
	var maxInCell, nonEmpty int
	for _, cell := range g.cells {
		n := len(cell)
		if n > maxInCell {
			maxInCell = n
		}
		if n > 0 {
			nonEmpty++
		}
	}
	avg := 0.0
	if nonEmpty > 0 {
		avg = float64(g.count) / float64(nonEmpty)
	}
	return GridStats{
		TotalCells:     len(g.cells),
		NonEmptyCells:  nonEmpty,
		TotalEntities:  g.count,
		MaxInCell:      maxInCell,
		AvgPerNonEmpty: avg,
	}
}

// GridStats contains grid statistics for debugging.
type GridStats struct {
	TotalCells     int     `json:"totalCells"`
	NonEmptyCells  int     `json:"nonEmptyCells"`
	TotalEntities  int     `json:"totalEntities"`
	MaxInCell      int     `json:"maxInCell"`
	AvgPerNonEmpty float64 `json:"avgPerNonEmpty"`
}
