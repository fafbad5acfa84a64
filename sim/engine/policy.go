package engine

import (
	"fmt"
	"strings"
)

// Policies lists the supported termination policies
var Policies = []Policy{VoidOverflow, FloorSaturation}

// ParsePolicy accepts a policy name or one of its short aliases
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(VoidOverflow), "void", "overflow", "part1":
		return VoidOverflow, nil
	case string(FloorSaturation), "floor", "saturation", "part2":
		return FloorSaturation, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
}

// Valid reports whether p is one of the supported policies
func (p Policy) Valid() bool {
	return p == VoidOverflow || p == FloorSaturation
}

// HasFloor reports whether the policy adds the virtual floor
func (p Policy) HasFloor() bool {
	return p == FloorSaturation
}

// NextStatus maps a grain's fall to the next run status. A grain resting on
// the source halts either policy.
func NextStatus(fall Fall, source Position) RunStatus {
	switch {
	case fall.Outcome == OutcomeOverflowed:
		return StatusHaltedVoid
	case fall.Rest == source:
		return StatusHaltedSaturated
	}
	return StatusDropping
}

// Halted reports whether the status is terminal
func (s RunStatus) Halted() bool {
	return s == StatusHaltedVoid || s == StatusHaltedSaturated
}
