// Package sheet turns wide spreadsheet grids into long-format time series points.
package sheet

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var headerPattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})[-_ ]?(\d{2})(\d{2})$`)

// ParseHeader reads a "MM/DD[-_ ]HHMM" column header as a UTC instant in
// yearHint. Anything else, including impossible calendar values, is no match.
func ParseHeader(raw string, yearHint int) (time.Time, bool) {
	m := headerPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return time.Time{}, false
	}

	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	hour, _ := strconv.Atoi(m[3])
	minute, _ := strconv.Atoi(m[4])
	if month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	t := time.Date(yearHint, time.Month(month), day, hour, minute, 0, 0, time.UTC)
	// time.Date normalizes Feb 30 into March
	if t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// InferYear picks the year headers resolve into: the received year when
// known, otherwise the current UTC year.
func InferYear(receivedAt *time.Time, now time.Time) int {
	if receivedAt != nil && !receivedAt.IsZero() {
		return receivedAt.UTC().Year()
	}
	return now.UTC().Year()
}
