package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// PathSeparator joins the vertices of a polyline in the text format
const PathSeparator = "->"

// Path is an ordered list of polyline vertices
type Path []Position

// ParsePoint parses a single "x,y" vertex
func ParsePoint(s string) (Position, error) {
	xs, ys, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return Position{}, fmt.Errorf("%w: vertex %q is not of the form x,y", ErrMalformedInput, s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return Position{}, fmt.Errorf("%w: vertex %q has invalid x", ErrMalformedInput, s)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return Position{}, fmt.Errorf("%w: vertex %q has invalid y", ErrMalformedInput, s)
	}
	if y < 0 {
		return Position{}, fmt.Errorf("%w: vertex %q lies above the cave (negative y)", ErrMalformedInput, s)
	}
	return Position{X: x, Y: y}, nil
}

// ParsePath parses one "x,y -> x,y -> ..." line. A path needs at least two vertices.
func ParsePath(line string) (Path, error) {
	parts := strings.Split(line, PathSeparator)
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: path %q needs at least two vertices", ErrMalformedInput, strings.TrimSpace(line))
	}
	path := make(Path, 0, len(parts))
	for _, part := range parts {
		p, err := ParsePoint(part)
		if err != nil {
			return nil, err
		}
		path = append(path, p)
	}
	return path, nil
}

// ParsePaths parses every non-blank line of the input
func ParsePaths(input string) ([]Path, error) {
	var paths []Path
	for i, line := range strings.Split(input, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		path, err := ParsePath(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// PointsBetween returns every cell on the segment from a to b, both ends included
func PointsBetween(a, b Position) []Position {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx := sign(b.X - a.X)
	sy := sign(b.Y - a.Y)
	e := dx + dy

	points := make([]Position, 0, max(dx, -dy)+1)
	p := a
	for {
		points = append(points, p)
		if p == b {
			return points
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			p.X += sx
		}
		if e2 <= dx {
			e += dx
			p.Y += sy
		}
	}
}

// Rasterize returns the cells covered by the path's segments, without duplicates
func (p Path) Rasterize() []Position {
	return Rasterize([]Path{p})
}

// Rasterize returns the union of cells covered by every path, in first-seen order
func Rasterize(paths []Path) []Position {
	seen := make(map[Position]bool)
	var out []Position
	for _, path := range paths {
		for i := 1; i < len(path); i++ {
			for _, c := range PointsBetween(path[i-1], path[i]) {
				if !seen[c] {
					seen[c] = true
					out = append(out, c)
				}
			}
		}
	}
	return out
}

// RocksFromLines parses and rasterizes a list of textual polylines
func RocksFromLines(lines []string) ([]Position, error) {
	paths := make([]Path, 0, len(lines))
	for i, line := range lines {
		path, err := ParsePath(line)
		if err != nil {
			return nil, fmt.Errorf("path %d: %w", i+1, err)
		}
		paths = append(paths, path)
	}
	rocks := Rasterize(paths)
	if len(rocks) == 0 {
		return nil, fmt.Errorf("%w: no rock paths", ErrMalformedInput)
	}
	return rocks, nil
}

// RocksFromText parses and rasterizes a multi-line description
func RocksFromText(input string) ([]Position, error) {
	paths, err := ParsePaths(input)
	if err != nil {
		return nil, err
	}
	rocks := Rasterize(paths)
	if len(rocks) == 0 {
		return nil, fmt.Errorf("%w: no rock paths", ErrMalformedInput)
	}
	return rocks, nil
}
