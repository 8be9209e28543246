package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSlot(t *testing.T) {
	cases := map[string]string{
		"0930":     "09:30:00",
		"930":      "09:30:00",
		"9:30":     "09:30:00",
		"09:30":    "09:30:00",
		"09:30:00": "09:30:00",
		" 1730 ":   "17:30:00",
		"130":      "01:30:00",
		"1:30":     "01:30:00",
	}
	for in, want := range cases {
		got, ok := NormalizeSlot(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "10:15", "0931", "9.30", "09:30:01", "24:00", "abcd", "09:3"} {
		_, ok := NormalizeSlot(in)
		assert.False(t, ok, in)
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError(ErrInvalidTimeSlot, "bad slot", AllowedSlots()...)

	assert.True(t, errors.Is(err, ErrInvalidTimeSlot))
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, []string{"01:30:00", "09:30:00", "17:30:00"}, vErr.Allowed)
	assert.Contains(t, err.Error(), "allowed: 01:30:00, 09:30:00, 17:30:00")
}
