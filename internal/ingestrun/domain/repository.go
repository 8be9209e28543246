package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, run *Run) error
	// List returns up to limit runs with id below beforeID (0 = newest), newest first.
	List(ctx context.Context, db *gorm.DB, client string, region *string, beforeID snowflake.ID, limit int) ([]Run, error)
	CountSucceeded(ctx context.Context, db *gorm.DB, client string, region *string, messageID string) (int64, error)
}
