package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// ListSeries returns every row for the selector ordered by ts_utc.
	ListSeries(ctx context.Context, db *gorm.DB, sel Selector) ([]Row, error)
	// MaxTimestamp returns "" when the selector has no rows.
	MaxTimestamp(ctx context.Context, db *gorm.DB, sel Selector) (string, error)
	// ListAt returns rows at exactly ts, optionally limited to one sheet.
	ListAt(ctx context.Context, db *gorm.DB, sel Selector, ts string, sheet *string) ([]Row, error)
	// ListLatestPerParameter returns each parameter's rows at its own max ts_utc.
	ListLatestPerParameter(ctx context.Context, db *gorm.DB, sel Selector) ([]Row, error)
	// ListWorkspaces returns the distinct stored workspaces of one client stream.
	ListWorkspaces(ctx context.Context, db *gorm.DB, client string, region *string) ([]string, error)
	ListCombinations(ctx context.Context, db *gorm.DB, workspace string) ([]Combination, error)
}
