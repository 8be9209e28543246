package workbook

import (
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
)

var (
	ErrInvalidHandle = errors.New("invalid_workbook_handle")
	ErrNotFound      = errors.New("workbook_not_found")
)

// Handle names one stored workbook.
type Handle string

func NewHandle() Handle {
	return Handle(ulid.Make().String())
}

func ParseHandle(raw string) (Handle, error) {
	id, err := ulid.ParseStrict(strings.TrimSpace(raw))
	if err != nil {
		return "", ErrInvalidHandle
	}
	return Handle(id.String()), nil
}

func (h Handle) String() string {
	return string(h)
}
