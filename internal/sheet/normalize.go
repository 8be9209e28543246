package sheet

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/sheetseries/internal/timeseries/domain"
)

// Meta carries the provenance stamped onto every point of one sheet.
type Meta struct {
	Client    string
	Region    *string
	SheetName string
	// Workspace defaults to the upper-cased sheet name.
	Workspace  string
	MessageID  *string
	ReceivedAt *time.Time
	// Now resolves the header year when ReceivedAt is unknown.
	Now time.Time
}

type timestampColumn struct {
	index int
	ts    string
}

// Normalize reshapes a wide grid into points. The first non-empty row is the
// header, the first non-empty column holds parameter labels. Unusable labels,
// headers and cells are skipped; a sheet with no timestamp column yields nil.
func Normalize(grid Grid, meta Meta) []domain.Point {
	g := grid.Compact()
	if len(g) < 2 {
		return nil
	}

	now := meta.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	year := InferYear(meta.ReceivedAt, now)

	header := g[0]
	var columns []timestampColumn
	for c := 1; c < len(header); c++ {
		t, ok := ParseHeader(header[c], year)
		if !ok {
			continue
		}
		columns = append(columns, timestampColumn{index: c, ts: domain.FormatUTC(t)})
	}
	if len(columns) == 0 {
		return nil
	}

	workspace := strings.TrimSpace(meta.Workspace)
	if workspace == "" {
		workspace = meta.SheetName
	}
	workspace = domain.NormalizeWorkspace(workspace)
	region := domain.NormalizeRegion(meta.Region)
	messageID := domain.NormalizeMessageID(meta.MessageID)
	var received *time.Time
	if meta.ReceivedAt != nil && !meta.ReceivedAt.IsZero() {
		r := meta.ReceivedAt.UTC().Truncate(time.Second)
		received = &r
	}

	var out []domain.Point
	for r := 1; r < len(g); r++ {
		parameter := strings.TrimSpace(g.Cell(r, 0))
		if parameter == "" {
			continue
		}
		for _, col := range columns {
			value, ok := ParseValue(g.Cell(r, col.index))
			if !ok {
				continue
			}
			out = append(out, domain.Point{
				Client:      meta.Client,
				Region:      region,
				Workspace:   workspace,
				SheetName:   meta.SheetName,
				Parameter:   parameter,
				TsUTC:       col.ts,
				Value:       value,
				MessageID:   messageID,
				ReceivedUTC: received,
			})
		}
	}
	return out
}

// ParseValue coerces a cell to a finite decimal float. Go literal forms
// (digit separators, hex mantissas) are not cell values.
func ParseValue(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.ContainsRune(s, '_') {
		return 0, false
	}
	digits := strings.TrimLeft(s, "+-")
	if len(digits) > 1 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
