package fetcher

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -destination=mockfetcher/mock_fetcher.go -package=mockfetcher . Fetcher

var ErrNoAttachment = errors.New("no_attachment")

// Fetcher pulls the newest workbook attachment delivered for one stream.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (*Attachment, error)
}

type FetchRequest struct {
	Client        string
	Region        *string
	Sender        string
	SubjectHint   string
	LookbackHours int
}

// Attachment is a fetched workbook plus the provenance of its message.
type Attachment struct {
	Path       string
	FileName   string
	Data       []byte
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt time.Time
}
