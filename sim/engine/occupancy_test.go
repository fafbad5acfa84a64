package engine

import (
	"encoding/json"
	"testing"
)

func TestOccupancyInsert(t *testing.T) {
	m := NewOccupancyMap()
	p := Position{X: 500, Y: 8}

	if m.Contains(p) {
		t.Error("Expected empty map not to contain position")
	}
	if !m.Insert(p, Sand) {
		t.Error("Expected first insert to report a new cell")
	}
	if m.Insert(p, Rock) {
		t.Error("Expected second insert to report an existing cell")
	}
	if k, _ := m.Kind(p); k != Sand {
		t.Errorf("Expected kind to stay %s, got %s", Sand, k)
	}
	if m.Count() != 1 {
		t.Errorf("Expected count 1, got %d", m.Count())
	}
}

func TestOccupancyZeroValueInsert(t *testing.T) {
	var m OccupancyMap
	if !m.Insert(Position{X: 1, Y: 1}, Rock) {
		t.Error("Expected insert into zero value map to succeed")
	}
	if m.Count() != 1 {
		t.Errorf("Expected count 1, got %d", m.Count())
	}
}

func TestOccupancyCellsOrdered(t *testing.T) {
	m := NewRockMap([]Position{{X: 3, Y: 2}, {X: 1, Y: 2}, {X: 9, Y: 0}})
	m.Insert(Position{X: 5, Y: 1}, Sand)

	cells := m.Cells()
	want := []Position{{X: 9, Y: 0}, {X: 5, Y: 1}, {X: 1, Y: 2}, {X: 3, Y: 2}}
	if len(cells) != len(want) {
		t.Fatalf("Expected %d cells, got %d", len(want), len(cells))
	}
	for i, c := range cells {
		if c.Position() != want[i] {
			t.Errorf("Cell %d: expected %v, got %v", i, want[i], c.Position())
		}
	}
	if m.CountKind(Rock) != 3 || m.CountKind(Sand) != 1 {
		t.Errorf("Unexpected kind counts: rock=%d sand=%d", m.CountKind(Rock), m.CountKind(Sand))
	}
}

func TestOccupancyBounds(t *testing.T) {
	if _, ok := NewOccupancyMap().Bounds(); ok {
		t.Error("Expected no bounds for empty map")
	}

	m := NewRockMap([]Position{{X: 498, Y: 4}, {X: 494, Y: 9}, {X: 503, Y: 4}})
	b, ok := m.Bounds()
	if !ok {
		t.Fatal("Expected bounds")
	}
	want := Bounds{Min: Position{X: 494, Y: 4}, Max: Position{X: 503, Y: 9}}
	if b != want {
		t.Errorf("Expected %+v, got %+v", want, b)
	}
	if b.Width() != 10 || b.Height() != 6 {
		t.Errorf("Expected 10x6, got %dx%d", b.Width(), b.Height())
	}
}

func TestOccupancyClone(t *testing.T) {
	m := NewRockMap([]Position{{X: 1, Y: 1}})
	c := m.Clone()
	c.Insert(Position{X: 2, Y: 2}, Sand)
	if m.Count() != 1 {
		t.Error("Expected clone to be independent")
	}
}

func TestOccupancyJSON(t *testing.T) {
	m := NewRockMap([]Position{{X: 500, Y: 9}})
	m.Insert(Position{X: 500, Y: 8}, Sand)

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `[{"x":500,"y":8,"kind":"sand"},{"x":500,"y":9,"kind":"rock"}]`
	if string(data) != want {
		t.Errorf("Expected %s, got %s", want, data)
	}

	var decoded OccupancyMap
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if k, ok := decoded.Kind(Position{X: 500, Y: 8}); !ok || k != Sand {
		t.Errorf("Expected sand at 500,8 after decode, got %v %v", k, ok)
	}
}
