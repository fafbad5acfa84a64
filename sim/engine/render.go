package engine

import "strings"

// Render symbols
const (
	SymbolAir    = '.'
	SymbolRock   = '#'
	SymbolSand   = 'o'
	SymbolSource = '+'
)

// ViewBounds returns the rectangle drawn by Render: every occupied cell, the
// source and, under FloorSaturation, the floor row.
func ViewBounds(run *Run) Bounds {
	b, ok := run.Occupancy.Bounds()
	if !ok {
		b = Bounds{Min: run.Source, Max: run.Source}
	}
	b = b.Extend(run.Source)
	if run.Policy.HasFloor() {
		b = b.Extend(Position{X: b.Min.X, Y: run.FloorLevel + FloorOffset})
	}
	return b
}

// Render draws the run one string per row
func Render(run *Run) []string {
	b := ViewBounds(run)
	floorY := run.FloorLevel + FloorOffset
	rows := make([]string, 0, b.Height())
	var sb strings.Builder
	for y := b.Min.Y; y <= b.Max.Y; y++ {
		sb.Reset()
		for x := b.Min.X; x <= b.Max.X; x++ {
			sb.WriteRune(CellSymbol(run, Position{X: x, Y: y}, floorY))
		}
		rows = append(rows, sb.String())
	}
	return rows
}

// CellSymbol returns the render symbol of a single cell
func CellSymbol(run *Run, p Position, floorY int) rune {
	if k, ok := run.Occupancy.Kind(p); ok {
		if k == Sand {
			return SymbolSand
		}
		return SymbolRock
	}
	if p == run.Source {
		return SymbolSource
	}
	if run.Policy.HasFloor() && p.Y == floorY {
		return SymbolRock
	}
	return SymbolAir
}
