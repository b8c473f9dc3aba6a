package prediction

import (
	"fmt"
	"math"
)

// Bounds is the rectangular forecast area.
type Bounds struct {
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
	LonMin float64 `json:"lon_min"`
	LonMax float64 `json:"lon_max"`
}

// Contains reports whether the point falls inside the box (inclusive).
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.LatMin && lat <= b.LatMax && lon >= b.LonMin && lon <= b.LonMax
}

// Cell is one grid tile, addressed by row/col with its center coordinates.
type Cell struct {
	Latitude  float64
	Longitude float64
	Row       int
	Col       int
}

// Grid tiles a bounding box into fixed-size half-open cells. It is a pure
// value: the same bounds and cell size always enumerate the same centers, so
// feature building and prediction generation share one definition.
type Grid struct {
	Bounds   Bounds
	CellSize float64
	rows     int
	cols     int
}

// epsilon absorbs float error when the span is an exact multiple of the cell
// size, e.g. 12.0/0.2 must yield 60 cells, not 59.
const gridEpsilon = 1e-9

// NewGrid validates the bounds and computes the tiling.
func NewGrid(b Bounds, cellSize float64) (Grid, error) {
	if cellSize <= 0 {
		return Grid{}, fmt.Errorf("grid size must be positive, got %v", cellSize)
	}
	if b.LatMin >= b.LatMax || b.LonMin >= b.LonMax {
		return Grid{}, fmt.Errorf("degenerate bounds %+v", b)
	}
	rows := int(math.Floor((b.LatMax-b.LatMin)/cellSize + gridEpsilon))
	cols := int(math.Floor((b.LonMax-b.LonMin)/cellSize + gridEpsilon))
	if rows == 0 || cols == 0 {
		return Grid{}, fmt.Errorf("bounds %+v smaller than one %v cell", b, cellSize)
	}
	return Grid{Bounds: b, CellSize: cellSize, rows: rows, cols: cols}, nil
}

// Rows returns the number of latitude rows.
func (g Grid) Rows() int { return g.rows }

// Cols returns the number of longitude columns.
func (g Grid) Cols() int { return g.cols }

// CellCount returns the total number of cells enumerated by Cells.
func (g Grid) CellCount() int { return g.rows * g.cols }

// CellAt returns the cell for a row/col pair. Centers sit at
// min + (i+0.5)*size.
func (g Grid) CellAt(row, col int) Cell {
	return Cell{
		Latitude:  g.Bounds.LatMin + (float64(row)+0.5)*g.CellSize,
		Longitude: g.Bounds.LonMin + (float64(col)+0.5)*g.CellSize,
		Row:       row,
		Col:       col,
	}
}

// Cells enumerates every cell in deterministic row-major order.
func (g Grid) Cells() []Cell {
	cells := make([]Cell, 0, g.rows*g.cols)
	for row := 0; row < g.rows; row++ {
		for col := 0; col < g.cols; col++ {
			cells = append(cells, g.CellAt(row, col))
		}
	}
	return cells
}

// IndexOf maps a point to its containing cell, reporting false for points
// outside the tiled area.
func (g Grid) IndexOf(lat, lon float64) (int, int, bool) {
	row := int(math.Floor((lat - g.Bounds.LatMin) / g.CellSize))
	col := int(math.Floor((lon - g.Bounds.LonMin) / g.CellSize))
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols {
		return 0, 0, false
	}
	return row, col, true
}
