package traffic

import (
	"fmt"
	"strings"
)

// Basis selects which trip times are compared against the time filter.
type Basis string

const (
	// BasisStartOrEnd keeps a trip when either its start or its end is in the window.
	BasisStartOrEnd Basis = "START_OR_END"

	// BasisStart keeps a trip only when its start is in the window.
	BasisStart Basis = "START"
)

// Default window settings.
const (
	DefaultToleranceMinutes   = 60
	StartOnlyToleranceMinutes = 30
)

// Window is the tolerance window used when filtering trips by time of day.
type Window struct {
	// Tolerance is the inclusive distance in minutes from the filter value.
	Tolerance int

	// Basis selects the trip times compared.
	Basis Basis
}

// DefaultWindow compares both start and end within 60 minutes.
var DefaultWindow = Window{Tolerance: DefaultToleranceMinutes, Basis: BasisStartOrEnd}

// StartOnlyWindow compares only the start time within 30 minutes.
var StartOnlyWindow = Window{Tolerance: StartOnlyToleranceMinutes, Basis: BasisStart}

// ParseBasis parses a basis name, case-insensitively.
func ParseBasis(s string) (Basis, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(BasisStartOrEnd):
		return BasisStartOrEnd, nil
	case string(BasisStart):
		return BasisStart, nil
	default:
		return "", fmt.Errorf("unknown window basis %q", s)
	}
}

// Validate checks the window configuration.
func (w Window) Validate() error {
	if w.Tolerance < 0 {
		return fmt.Errorf("window tolerance must not be negative, got %d", w.Tolerance)
	}
	if w.Basis != BasisStartOrEnd && w.Basis != BasisStart {
		return fmt.Errorf("unknown window basis %q", w.Basis)
	}
	return nil
}

// Matches reports whether trip falls within the window around target.
func (w Window) Matches(trip *Trip, target int) bool {
	if abs(trip.StartedMinutes()-target) <= w.Tolerance {
		return true
	}
	if w.Basis == BasisStart {
		return false
	}
	return abs(trip.EndedMinutes()-target) <= w.Tolerance
}

// Filter returns the trips within the window around target minutes since midnight.
// NoFilter returns trips unchanged.
func (w Window) Filter(trips []Trip, target int) ([]Trip, error) {
	if err := ValidateTimeFilter(target); err != nil {
		return nil, err
	}
	if target == NoFilter {
		return trips, nil
	}

	filtered := make([]Trip, 0, len(trips))
	for i := range trips {
		if w.Matches(&trips[i], target) {
			filtered = append(filtered, trips[i])
		}
	}
	return filtered, nil
}

// FilterTripsByTime filters trips using DefaultWindow.
func FilterTripsByTime(trips []Trip, target int) ([]Trip, error) {
	return DefaultWindow.Filter(trips, target)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
