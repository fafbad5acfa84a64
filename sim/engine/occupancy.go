package engine

import (
	"encoding/json"
	"sort"
)

// OccupancyMap is the sparse set of blocked cells. Cells are only ever added.
type OccupancyMap struct {
	cells map[Position]Kind
}

// NewOccupancyMap returns an empty map
func NewOccupancyMap() *OccupancyMap {
	return &OccupancyMap{cells: make(map[Position]Kind)}
}

// NewRockMap seeds a map with rock at every given position
func NewRockMap(rocks []Position) *OccupancyMap {
	m := &OccupancyMap{cells: make(map[Position]Kind, len(rocks))}
	for _, p := range rocks {
		m.cells[p] = Rock
	}
	return m
}

// Contains reports whether p is occupied
func (m *OccupancyMap) Contains(p Position) bool {
	_, ok := m.cells[p]
	return ok
}

// Insert marks p as occupied and reports whether it was previously free.
// An existing entry keeps its original kind.
func (m *OccupancyMap) Insert(p Position, kind Kind) bool {
	if m.cells == nil {
		m.cells = make(map[Position]Kind)
	}
	if _, ok := m.cells[p]; ok {
		return false
	}
	m.cells[p] = kind
	return true
}

// Count returns the number of occupied cells
func (m *OccupancyMap) Count() int {
	return len(m.cells)
}

// Kind returns the kind stored at p
func (m *OccupancyMap) Kind(p Position) (Kind, bool) {
	k, ok := m.cells[p]
	return k, ok
}

// CountKind returns how many cells hold the given kind
func (m *OccupancyMap) CountKind(kind Kind) int {
	n := 0
	for _, k := range m.cells {
		if k == kind {
			n++
		}
	}
	return n
}

// Cells returns every occupied cell ordered by (y, x)
func (m *OccupancyMap) Cells() []Cell {
	cells := make([]Cell, 0, len(m.cells))
	for p, k := range m.cells {
		cells = append(cells, Cell{X: p.X, Y: p.Y, Kind: k})
	}
	sort.Slice(cells, func(i, j int) bool {
		return cells[i].Position().Less(cells[j].Position())
	})
	return cells
}

// Bounds returns the smallest rectangle containing every occupied cell.
// ok is false for an empty map.
func (m *OccupancyMap) Bounds() (b Bounds, ok bool) {
	for p := range m.cells {
		if !ok {
			b = Bounds{Min: p, Max: p}
			ok = true
			continue
		}
		b = b.Extend(p)
	}
	return b, ok
}

// Clone returns an independent copy
func (m *OccupancyMap) Clone() *OccupancyMap {
	c := &OccupancyMap{cells: make(map[Position]Kind, len(m.cells))}
	for p, k := range m.cells {
		c.cells[p] = k
	}
	return c
}

// MarshalJSON encodes the map as an ordered list of cells
func (m *OccupancyMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Cells())
}

// UnmarshalJSON decodes a list of cells
func (m *OccupancyMap) UnmarshalJSON(data []byte) error {
	var cells []Cell
	if err := json.Unmarshal(data, &cells); err != nil {
		return err
	}
	m.cells = make(map[Position]Kind, len(cells))
	for _, c := range cells {
		m.cells[c.Position()] = c.Kind
	}
	return nil
}
