package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/sheetseries/pkg/db/pagination"
)

type Service interface {
	Record(ctx context.Context, req RecordRequest) (*Run, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	// Succeeded reports whether a message was already ingested for the stream.
	Succeeded(ctx context.Context, client string, region *string, messageID string) (bool, error)
}

type RecordRequest struct {
	Source           string
	Client           string
	Region           *string
	Sender           string
	MessageID        string
	Subject          string
	ReceivedAt       *time.Time
	Status           string
	RowsWritten      int
	UniqueParameters int
	SheetsTotal      int
	SheetsSkipped    []string
	WorkbookHandle   string
	Err              error
}

type ListRequest struct {
	Client string `form:"client"`
	Region string `form:"region"`
	pagination.Pagination
}

type ListResponse struct {
	Runs     []Run                `json:"runs"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

var (
	ErrInvalidClient = errors.New("invalid_client")
	ErrInvalidSource = errors.New("invalid_source")
	ErrInvalidStatus = errors.New("invalid_status")
)

// StatusFor classifies an ingestion outcome.
func StatusFor(err error, rowsWritten, sheetsSkipped int) string {
	switch {
	case err != nil:
		return StatusFailed
	case rowsWritten == 0:
		return StatusEmpty
	case sheetsSkipped > 0:
		return StatusPartial
	default:
		return StatusSuccess
	}
}
