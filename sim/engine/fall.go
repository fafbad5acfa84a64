package engine

import "fmt"

// fallOrder is the strict priority a grain tries each step: down, down-left, down-right
var fallOrder = [...]struct{ dx, dy int }{
	{0, 1},
	{-1, 1},
	{1, 1},
}

// FallRule computes where a single grain comes to rest against an occupancy map
type FallRule struct {
	Occupancy  *OccupancyMap
	FloorLevel int
	Policy     Policy
}

// Blocked reports whether a grain cannot enter p. The floor under
// FloorSaturation is a predicate and never appears in the map.
func (r FallRule) Blocked(p Position) bool {
	if r.Occupancy.Contains(p) {
		return true
	}
	return r.Policy == FloorSaturation && p.Y == r.FloorLevel+FloorOffset
}

// Next returns the first free cell in fall order below p
func (r FallRule) Next(p Position) (Position, bool) {
	for _, d := range fallOrder {
		c := p.Add(d.dx, d.dy)
		if !r.Blocked(c) {
			return c, true
		}
	}
	return p, false
}

// Settle follows a grain from start until it rests or overflows. The
// overflow check runs before each descent so the loop always terminates.
// Occupancy is not modified.
func (r FallRule) Settle(start Position) (Fall, error) {
	if r.Blocked(start) {
		return Fall{}, fmt.Errorf("%w: %s is already occupied", ErrSourceBlocked, start)
	}
	limit := r.FloorLevel + FloorOffset
	p := start
	steps := 0
	for {
		if r.Policy == VoidOverflow && p.Y > r.FloorLevel {
			return Fall{Rest: p, Outcome: OutcomeOverflowed, Steps: steps}, nil
		}
		if p.Y >= limit {
			return Fall{}, fmt.Errorf("%w: grain reached y=%d under %s", ErrNonTermination, p.Y, r.Policy)
		}
		next, ok := r.Next(p)
		if !ok {
			return Fall{Rest: p, Outcome: OutcomeRested, Steps: steps}, nil
		}
		p = next
		steps++
	}
}
