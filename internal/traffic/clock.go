package traffic

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesSinceMidnight returns the wall-clock minutes of t in [0, 1439].
// Seconds are truncated and the location of t is used as-is.
func MinutesSinceMidnight(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// ParseClock parses "HH:MM" or "HH:MM:SS" into minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: clock %q", ErrMalformedData, s)
	}

	limits := []int{23, 59, 59}
	values := make([]int, len(parts))
	for i, p := range parts {
		if p == "" || len(p) > 2 || !isDigits(p) {
			return 0, fmt.Errorf("%w: clock %q", ErrMalformedData, s)
		}
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > limits[i] {
			return 0, fmt.Errorf("%w: clock %q", ErrMalformedData, s)
		}
		values[i] = v
	}

	return values[0]*60 + values[1], nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatMinutes renders minutes since midnight as a 12-hour label, e.g. "3:04 PM".
func FormatMinutes(minutes int) string {
	t := time.Date(0, 1, 1, 0, minutes, 0, 0, time.UTC)
	return t.Format("3:04 PM")
}

// ParseTimeFilter parses a user supplied time filter.
// Empty, "-1" and "any" mean NoFilter; otherwise either integer minutes or HH:MM.
func ParseTimeFilter(s string) (int, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "-1", "any":
		return NoFilter, nil
	}

	if strings.Contains(s, ":") {
		m, err := ParseClock(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFilter, s)
		}
		return m, nil
	}

	if !isDigits(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFilter, s)
	}
	m, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFilter, s)
	}
	if err := ValidateTimeFilter(m); err != nil {
		return 0, err
	}
	return m, nil
}

// ValidateTimeFilter checks that m is NoFilter or within [0, 1439].
func ValidateTimeFilter(m int) error {
	if m == NoFilter || (m >= 0 && m < MinutesPerDay) {
		return nil
	}
	return fmt.Errorf("%w: %d is outside [0, %d]", ErrInvalidTimeFilter, m, MinutesPerDay-1)
}
