package engine

import (
	"errors"
	"testing"
)

func TestFallRulePriority(t *testing.T) {
	start := Position{X: 500, Y: 0}
	tests := []struct {
		name    string
		blocked []Position
		want    Position
		ok      bool
	}{
		{"down first", nil, Position{X: 500, Y: 1}, true},
		{"down-left second", []Position{{X: 500, Y: 1}}, Position{X: 499, Y: 1}, true},
		{"down-right third", []Position{{X: 500, Y: 1}, {X: 499, Y: 1}}, Position{X: 501, Y: 1}, true},
		{"down-left before down-right", []Position{{X: 500, Y: 1}, {X: 501, Y: 1}}, Position{X: 499, Y: 1}, true},
		{"rests when all blocked", []Position{{X: 500, Y: 1}, {X: 499, Y: 1}, {X: 501, Y: 1}}, start, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := FallRule{Occupancy: NewRockMap(tt.blocked), FloorLevel: 10, Policy: VoidOverflow}
			got, ok := rule.Next(start)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Next(%v) = %v, %v; expected %v, %v", start, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFallRuleSettleIdempotent(t *testing.T) {
	rocks, err := RocksFromLines(ExamplePaths)
	if err != nil {
		t.Fatalf("RocksFromLines() error = %v", err)
	}
	occ := NewRockMap(rocks)
	rule := FallRule{Occupancy: occ, FloorLevel: 9, Policy: VoidOverflow}

	first, err := rule.Settle(DefaultSource)
	if err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	second, err := rule.Settle(DefaultSource)
	if err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if first != second {
		t.Errorf("Expected identical falls, got %+v and %+v", first, second)
	}
	if first.Rest != (Position{X: 500, Y: 8}) || first.Outcome != OutcomeRested {
		t.Errorf("Expected first grain to rest at 500,8, got %+v", first)
	}
	if first.Steps != 8 {
		t.Errorf("Expected 8 steps, got %d", first.Steps)
	}
	if occ.Count() != len(rocks) {
		t.Error("Settle must not modify occupancy")
	}
}

func TestFallRuleOverflow(t *testing.T) {
	rule := FallRule{Occupancy: NewRockMap([]Position{{X: 400, Y: 5}}), FloorLevel: 5, Policy: VoidOverflow}
	fall, err := rule.Settle(DefaultSource)
	if err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if fall.Outcome != OutcomeOverflowed {
		t.Errorf("Expected overflow, got %s", fall.Outcome)
	}
	if fall.Rest.Y != 6 {
		t.Errorf("Expected overflow reported just past the floor level, got y=%d", fall.Rest.Y)
	}
}

func TestFallRuleVirtualFloor(t *testing.T) {
	occ := NewRockMap([]Position{{X: 400, Y: 5}})
	rule := FallRule{Occupancy: occ, FloorLevel: 5, Policy: FloorSaturation}

	if !rule.Blocked(Position{X: 12345, Y: 7}) {
		t.Error("Expected floor row to be blocked everywhere")
	}
	if rule.Blocked(Position{X: 12345, Y: 6}) {
		t.Error("Expected row above the floor to be free")
	}

	fall, err := rule.Settle(DefaultSource)
	if err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if fall.Rest != (Position{X: 500, Y: 6}) || fall.Outcome != OutcomeRested {
		t.Errorf("Expected grain to rest on the floor at 500,6, got %+v", fall)
	}
	if occ.Count() != 1 {
		t.Error("The floor must never be materialised")
	}
}

func TestFallRuleSourceBlocked(t *testing.T) {
	rule := FallRule{Occupancy: NewRockMap([]Position{DefaultSource}), FloorLevel: 5, Policy: VoidOverflow}
	if _, err := rule.Settle(DefaultSource); !errors.Is(err, ErrSourceBlocked) {
		t.Errorf("Expected ErrSourceBlocked, got %v", err)
	}
}

func TestFallRuleNonTerminationGuard(t *testing.T) {
	rule := FallRule{Occupancy: NewOccupancyMap(), FloorLevel: 5, Policy: Policy("unbounded")}
	if _, err := rule.Settle(DefaultSource); !errors.Is(err, ErrNonTermination) {
		t.Errorf("Expected ErrNonTermination, got %v", err)
	}
}

func TestNextStatus(t *testing.T) {
	tests := []struct {
		name string
		fall Fall
		want RunStatus
	}{
		{"overflow", Fall{Rest: Position{X: 500, Y: 10}, Outcome: OutcomeOverflowed}, StatusHaltedVoid},
		{"rest at source", Fall{Rest: DefaultSource, Outcome: OutcomeRested}, StatusHaltedSaturated},
		{"rest elsewhere", Fall{Rest: Position{X: 500, Y: 8}, Outcome: OutcomeRested}, StatusDropping},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextStatus(tt.fall, DefaultSource); got != tt.want {
				t.Errorf("NextStatus() = %s, expected %s", got, tt.want)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", VoidOverflow, false},
		{"void_overflow", VoidOverflow, false},
		{"VOID", VoidOverflow, false},
		{"part2", FloorSaturation, false},
		{" floor_saturation ", FloorSaturation, false},
		{"sideways", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %s, expected %s", tt.in, got, tt.want)
		}
	}
}
