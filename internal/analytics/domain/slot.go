package domain

import (
	"strings"
)

var allowedSlots = []string{"01:30:00", "09:30:00", "17:30:00"}

// AllowedSlots lists the snapshot time slots, in UTC.
func AllowedSlots() []string {
	out := make([]string, len(allowedSlots))
	copy(out, allowedSlots)
	return out
}

// NormalizeSlot maps "0930", "930", "9:30", "09:30" and "09:30:00" to
// "09:30:00". Anything that is not an allowed slot is no match.
func NormalizeSlot(s string) (string, bool) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return "", false
	}

	if isDigits(raw) && (len(raw) == 3 || len(raw) == 4) {
		raw = zeroPad(raw, 4)
		raw = raw[:2] + ":" + raw[2:]
	}

	if strings.Contains(raw, ":") && len(raw) <= 5 {
		parts := strings.Split(raw, ":")
		if len(parts) == 2 && isDigits(parts[0]) && isDigits(parts[1]) {
			raw = zeroPad(parts[0], 2) + ":" + zeroPad(parts[1], 2) + ":00"
		}
	}

	for _, slot := range allowedSlots {
		if raw == slot {
			return slot, true
		}
	}
	return "", false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func zeroPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
