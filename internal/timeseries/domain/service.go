package domain

import (
	"context"
	"errors"
)

// Service is the ingestion store.
type Service interface {
	// Append upserts a batch in one transaction.
	Append(ctx context.Context, batch []Point) (rowsWritten, uniqueParameters int, err error)
	Purge(ctx context.Context, req PurgeRequest) (*PurgeResult, error)
}

type PurgeRequest struct {
	Months int `json:"months"`
}

type PurgeResult struct {
	Cutoff  string `json:"cutoff"`
	Deleted int64  `json:"deleted"`
}

const (
	MinRetentionMonths = 1
	MaxRetentionMonths = 120
)

var (
	ErrInvalidClient = errors.New("invalid_client")
	ErrInvalidMonths = errors.New("invalid_months")
	ErrPersistence   = errors.New("persistence_error")
)
