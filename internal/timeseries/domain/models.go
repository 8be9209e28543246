// Package domain contains the canonical long-format time series model.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Point is one (parameter, timestamp, value) observation for a client stream.
type Point struct {
	ID          snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Client      string       `gorm:"type:varchar(128);not null"`
	Region      *string      `gorm:"type:varchar(128)"`
	Workspace   string       `gorm:"type:varchar(64)"`
	SheetName   string       `gorm:"type:varchar(191);not null"`
	Parameter   string       `gorm:"type:varchar(191);not null"`
	TsUTC       string       `gorm:"column:ts_utc;type:varchar(32);not null"`
	Value       float64      `gorm:"not null"`
	MessageID   *string      `gorm:"type:varchar(256)"`
	ReceivedUTC *time.Time   `gorm:"column:received_utc"`
	CreatedAt   time.Time    `gorm:"not null"`
	UpdatedAt   time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (Point) TableName() string { return "timeseries_data" }

// IdentityKey is the uniqueness key of a point. Region participates only when present.
type IdentityKey struct {
	Client    string
	Region    string
	HasRegion bool
	SheetName string
	Parameter string
	TsUTC     string
}

// Identity derives the key a point is deduplicated and upserted on.
func (p Point) Identity() IdentityKey {
	key := IdentityKey{
		Client:    p.Client,
		SheetName: p.SheetName,
		Parameter: p.Parameter,
		TsUTC:     p.TsUTC,
	}
	if p.Region != nil {
		key.Region = *p.Region
		key.HasRegion = true
	}
	return key
}

// Less orders identity keys; batches are written in this order.
func (k IdentityKey) Less(o IdentityKey) bool {
	if k.Client != o.Client {
		return k.Client < o.Client
	}
	if k.HasRegion != o.HasRegion {
		return !k.HasRegion
	}
	if k.Region != o.Region {
		return k.Region < o.Region
	}
	if k.SheetName != o.SheetName {
		return k.SheetName < o.SheetName
	}
	if k.Parameter != o.Parameter {
		return k.Parameter < o.Parameter
	}
	return k.TsUTC < o.TsUTC
}

// NormalizeRegion maps blank regions to nil.
func NormalizeRegion(region *string) *string {
	return trimmedOrNil(region)
}

// NormalizeMessageID maps blank message ids to nil.
func NormalizeMessageID(id *string) *string {
	return trimmedOrNil(id)
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// NormalizeWorkspace derives the workspace label from a sheet name.
func NormalizeWorkspace(sheetName string) string {
	return strings.ToUpper(strings.TrimSpace(sheetName))
}

// TimestampLayout is the canonical textual form of ts_utc.
const TimestampLayout = "2006-01-02 15:04:05+00:00"

// FormatUTC renders t in the canonical ts_utc form.
func FormatUTC(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimestampLayout)
}

// ParseUTC parses a canonical ts_utc string.
func ParseUTC(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, strings.TrimSpace(s), time.UTC)
}
