package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Run audits one workbook ingestion attempt.
type Run struct {
	ID               snowflake.ID      `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Source           string            `json:"source" gorm:"type:varchar(32);not null"`
	Client           string            `json:"client" gorm:"type:varchar(128);not null"`
	Region           *string           `json:"region" gorm:"type:varchar(128)"`
	Sender           *string           `json:"sender,omitempty" gorm:"type:varchar(256)"`
	MessageID        *string           `json:"message_id" gorm:"type:varchar(256)"`
	Subject          *string           `json:"subject,omitempty"`
	ReceivedAt       *time.Time        `json:"received_at,omitempty"`
	Status           string            `json:"status" gorm:"type:varchar(16);not null"`
	RowsWritten      int               `json:"rows_written" gorm:"not null;default:0"`
	UniqueParameters int               `json:"unique_parameters" gorm:"not null;default:0"`
	SheetsTotal      int               `json:"sheets_total" gorm:"not null;default:0"`
	SheetsSkipped    int               `json:"sheets_skipped" gorm:"not null;default:0"`
	WorkbookHandle   *string           `json:"workbook_handle,omitempty" gorm:"type:varchar(32)"`
	ErrorText        *string           `json:"error_text,omitempty"`
	Metadata         datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Run) TableName() string { return "ingest_runs" }

const (
	SourceUpload    = "upload"
	SourceInbox     = "inbox"
	SourceCLI       = "cli"
	SourceScheduler = "scheduler"
)

const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusEmpty   = "empty"
	StatusFailed  = "failed"
)
