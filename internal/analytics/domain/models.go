package domain

import (
	"encoding/json"
	"time"
)

// Row is one stored observation as read back by queries.
type Row struct {
	Parameter   string     `json:"parameter" gorm:"column:parameter"`
	Value       float64    `json:"value" gorm:"column:value"`
	TsUTC       string     `json:"ts_utc" gorm:"column:ts_utc"`
	SheetName   string     `json:"sheet_name" gorm:"column:sheet_name"`
	ReceivedUTC *time.Time `json:"received_utc,omitempty" gorm:"column:received_utc"`
	MessageID   *string    `json:"message_id" gorm:"column:message_id"`
}

// Selector scopes every query to one client stream and workspace.
type Selector struct {
	Client string
	// Region nil selects region-less rows.
	Region *string
	// Workspace is upper-cased.
	Workspace string
}

type Extreme struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

type DailyStat struct {
	Date string  `json:"date"`
	Avg  float64 `json:"avg"`
	Max  Extreme `json:"max"`
	Min  Extreme `json:"min"`
}

type DayValue struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type RollingDays struct {
	Avg    float64  `json:"avg"`
	MaxDay DayValue `json:"max_day"`
	MinDay DayValue `json:"min_day"`
}

type MonthlyStat struct {
	Month string  `json:"month"`
	Avg   float64 `json:"avg"`
}

type RollingMonths struct {
	OverallAvg float64     `json:"overall_avg"`
	MaxMonth   MonthlyStat `json:"max_month"`
	MinMonth   MonthlyStat `json:"min_month"`
}

// ParameterStats holds one parameter's window. Exactly one of the daily or
// monthly halves is populated, according to the basis.
type ParameterStats struct {
	// Window is the window label, e.g. "2d" or "3m".
	Window        string
	Daily         []DailyStat
	RollingDays   *RollingDays
	Monthly       []MonthlyStat
	RollingMonths *RollingMonths
}

// MarshalJSON renders {"<window>": {...}, "rolling_<window>": {...}}.
func (p ParameterStats) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, 2)
	if p.RollingMonths != nil || p.Monthly != nil {
		body[p.Window] = map[string]any{"months": nonNil(p.Monthly)}
		body["rolling_"+p.Window] = p.RollingMonths
	} else {
		body[p.Window] = map[string]any{"daily": nonNil(p.Daily)}
		body["rolling_"+p.Window] = p.RollingDays
	}
	return json.Marshal(body)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

type TimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type StatsResult struct {
	OK          bool                      `json:"ok"`
	NoData      bool                      `json:"-"`
	Note        string                    `json:"note,omitempty"`
	Client      string                    `json:"client,omitempty"`
	Region      *string                   `json:"region,omitempty"`
	Workspace   string                    `json:"workspace,omitempty"`
	Basis       string                    `json:"basis,omitempty"`
	N           int                       `json:"n,omitempty"`
	Range       *TimeRange                `json:"range,omitempty"`
	ByParameter map[string]ParameterStats `json:"by_parameter,omitempty"`
}

type SnapshotRow struct {
	Parameter string  `json:"parameter"`
	Value     float64 `json:"value"`
	TsUTC     string  `json:"ts_utc"`
	SheetName string  `json:"sheet_name"`
	MessageID *string `json:"message_id"`
}

type SnapshotResult struct {
	OK        bool          `json:"ok"`
	Found     bool          `json:"-"`
	Mode      string        `json:"mode,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Hint      string        `json:"hint,omitempty"`
	Client    string        `json:"client"`
	Region    *string       `json:"region"`
	Workspace string        `json:"workspace"`
	Sheet     *string       `json:"sheet"`
	Date      string        `json:"date,omitempty"`
	TimeSlot  string        `json:"time_slot,omitempty"`
	Ts        string        `json:"ts"`
	Rows      []SnapshotRow `json:"rows,omitempty"`
	Count     int           `json:"count"`
}

type LatestResult struct {
	OK         bool    `json:"ok"`
	Mode       string  `json:"mode"`
	Client     string  `json:"client"`
	Region     *string `json:"region"`
	Workspace  string  `json:"workspace"`
	LatestTs   *string `json:"latest_ts"`
	LatestDate *string `json:"latest_date"`
	Count      int     `json:"count"`
	Rows       []Row   `json:"rows"`
}

// Combination is one stored (client, region, workspace) stream. Region is
// "" for region-less rows.
type Combination struct {
	Client    string `json:"client" gorm:"column:client"`
	Region    string `json:"region" gorm:"column:region"`
	Workspace string `json:"workspace" gorm:"column:workspace"`
}

type WorkspacesResult struct {
	OK         bool     `json:"ok"`
	Client     string   `json:"client"`
	Region     *string  `json:"region"`
	Count      int      `json:"count"`
	Workspaces []string `json:"workspaces"`
}

type CombinationsResult struct {
	OK              bool          `json:"ok"`
	Count           int           `json:"count"`
	Combinations    []Combination `json:"combinations"`
	WorkspaceFilter *string       `json:"workspace_filter"`
}
