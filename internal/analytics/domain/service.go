package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Service interface {
	ComputeStats(ctx context.Context, req StatsRequest) (*StatsResult, error)
	SnapshotAt(ctx context.Context, req SnapshotRequest) (*SnapshotResult, error)
	Latest(ctx context.Context, req LatestRequest) (*LatestResult, error)
	Workspaces(ctx context.Context, req WorkspacesRequest) (*WorkspacesResult, error)
	Combinations(ctx context.Context, req CombinationsRequest) (*CombinationsResult, error)
}

type StatsRequest struct {
	Client    string `form:"client"`
	Workspace string `form:"workspace"`
	Region    string `form:"region"`
	Basis     string `form:"basis"`
	N         int    `form:"n"`
}

type SnapshotRequest struct {
	Client    string `form:"client"`
	Workspace string `form:"workspace"`
	Region    string `form:"region"`
	Date      string `form:"date"`
	TimeSlot  string `form:"time_slot"`
	Sheet     string `form:"sheet"`
}

type LatestRequest struct {
	Client    string `form:"client"`
	Workspace string `form:"workspace"`
	Region    string `form:"region"`
	Mode      string `form:"mode"`
}

type WorkspacesRequest struct {
	Client string `form:"client"`
	Region string `form:"region"`
}

type CombinationsRequest struct {
	Workspace string `form:"workspace"`
}

const (
	BasisDays   = "days"
	BasisMonths = "months"

	ModeAligned      = "aligned"
	ModePerParameter = "per-parameter"

	// DefaultWindow applies when n is omitted.
	DefaultWindow = 2
	MaxDays       = 7
	MaxMonths     = 6

	NoDataNote = "No data for selected range"
)

var (
	ErrInvalidClient    = errors.New("invalid_client")
	ErrInvalidWorkspace = errors.New("invalid_workspace")
	ErrInvalidDate      = errors.New("invalid_date")
	ErrInvalidTimeSlot  = errors.New("invalid_time_slot")
	ErrInvalidBasis     = errors.New("invalid_basis")
	ErrInvalidMode      = errors.New("invalid_mode")
)

// ValidationError rejects a request and names the values that would be accepted.
type ValidationError struct {
	Err     error
	Reason  string
	Allowed []string
}

func (e *ValidationError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("%s: %s", e.Err, e.Reason)
	}
	return fmt.Sprintf("%s: %s (allowed: %s)", e.Err, e.Reason, strings.Join(e.Allowed, ", "))
}

func (e *ValidationError) Unwrap() error { return e.Err }

func NewValidationError(err error, reason string, allowed ...string) error {
	return &ValidationError{Err: err, Reason: reason, Allowed: allowed}
}
