package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/sheetseries/internal/sheet"
)

type Service interface {
	// IngestWorkbook normalizes every sheet of wb and appends the points as one batch.
	IngestWorkbook(ctx context.Context, wb *sheet.Workbook, req WorkbookRequest) (*Result, error)
	// IngestFile stores, parses and ingests one workbook file and records the run.
	IngestFile(ctx context.Context, req FileRequest) (*Result, error)
	// IngestFromInbox fetches the newest attachment for a registered stream and ingests it.
	IngestFromInbox(ctx context.Context, req InboxRequest) (*Result, error)
}

// WorkbookRequest is the provenance shared by every sheet of one workbook.
type WorkbookRequest struct {
	Client     string
	Region     *string
	MessageID  *string
	ReceivedAt *time.Time
}

type FileRequest struct {
	Source     string
	Client     string
	Region     string
	FileName   string
	Data       []byte
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt *time.Time
}

type InboxRequest struct {
	Source        string `json:"-"`
	Client        string `json:"client"`
	Region        string `json:"region"`
	SubjectHint   string `json:"subject_hint"`
	LookbackHours int    `json:"hours"`
	// SkipIngested returns early when the fetched message already has a successful run.
	SkipIngested bool `json:"-"`
}

type Result struct {
	OK               bool     `json:"ok"`
	Client           string   `json:"client"`
	Region           *string  `json:"region"`
	RowsWritten      int      `json:"rows_written"`
	UniqueParameters int      `json:"unique_parameters"`
	SheetsTotal      int      `json:"sheets_total"`
	SheetsIngested   []string `json:"sheets_ingested"`
	SheetsSkipped    []string `json:"sheets_skipped"`
	Handle           string   `json:"workbook_handle,omitempty"`
	MessageID        string   `json:"message_id,omitempty"`
	Status           string   `json:"status,omitempty"`
	AlreadyIngested  bool     `json:"already_ingested,omitempty"`
}

var (
	ErrInvalidClient = errors.New("invalid_client")
	ErrEmptyFile     = errors.New("empty_file")
)
