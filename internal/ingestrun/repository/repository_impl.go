package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	rundomain "github.com/smallbiznis/sheetseries/internal/ingestrun/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() rundomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, run *rundomain.Run) error {
	return db.WithContext(ctx).Create(run).Error
}

func scopeStream(q *gorm.DB, client string, region *string) *gorm.DB {
	q = q.Where("client = ?", client)
	if region != nil {
		return q.Where("region = ?", *region)
	}
	return q.Where("(region IS NULL OR region = '')")
}

func (r *repo) List(ctx context.Context, db *gorm.DB, client string, region *string, beforeID snowflake.ID, limit int) ([]rundomain.Run, error) {
	q := scopeStream(db.WithContext(ctx).Model(&rundomain.Run{}), client, region)
	if beforeID != 0 {
		q = q.Where("id < ?", beforeID)
	}

	var runs []rundomain.Run
	if err := q.Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *repo) CountSucceeded(ctx context.Context, db *gorm.DB, client string, region *string, messageID string) (int64, error) {
	var count int64
	err := scopeStream(db.WithContext(ctx).Model(&rundomain.Run{}), client, region).
		Where("message_id = ? AND status IN ?", messageID, []string{rundomain.StatusSuccess, rundomain.StatusPartial}).
		Count(&count).Error
	return count, err
}
