package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// Upsert writes points whose identities are already unique, in the given order.
	Upsert(ctx context.Context, db *gorm.DB, points []Point) error
	PurgeOlderThan(ctx context.Context, db *gorm.DB, cutoff string) (int64, error)
}
