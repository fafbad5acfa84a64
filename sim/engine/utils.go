package engine

// Bounds is an inclusive rectangle of cells
type Bounds struct {
	Min Position `json:"min"`
	Max Position `json:"max"`
}

// Extend grows the rectangle to include p
func (b Bounds) Extend(p Position) Bounds {
	if p.X < b.Min.X {
		b.Min.X = p.X
	}
	if p.Y < b.Min.Y {
		b.Min.Y = p.Y
	}
	if p.X > b.Max.X {
		b.Max.X = p.X
	}
	if p.Y > b.Max.Y {
		b.Max.Y = p.Y
	}
	return b
}

// Width returns the number of columns covered
func (b Bounds) Width() int {
	return b.Max.X - b.Min.X + 1
}

// Height returns the number of rows covered
func (b Bounds) Height() int {
	return b.Max.Y - b.Min.Y + 1
}

// Contains reports whether p lies inside the rectangle
func (b Bounds) Contains(p Position) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// abs returns the absolute value of an integer
func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sign(x int) int {
	switch {
	case x < 0:
		return -1
	case x > 0:
		return 1
	}
	return 0
}
