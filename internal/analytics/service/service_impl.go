package service

import (
	"context"
	"strings"
	"time"

	analyticsdomain "github.com/smallbiznis/sheetseries/internal/analytics/domain"
	"github.com/smallbiznis/sheetseries/internal/observability/metrics"
	tsdomain "github.com/smallbiznis/sheetseries/internal/timeseries/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    analyticsdomain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    analyticsdomain.Repository
	metrics *metrics.Metrics
}

func New(p Params) analyticsdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("analytics.service"),
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) selector(client, workspace, region string) (analyticsdomain.Selector, error) {
	client = strings.TrimSpace(client)
	if client == "" {
		return analyticsdomain.Selector{}, analyticsdomain.NewValidationError(analyticsdomain.ErrInvalidClient, "client is required")
	}
	workspace = strings.ToUpper(strings.TrimSpace(workspace))
	if workspace == "" {
		return analyticsdomain.Selector{}, analyticsdomain.NewValidationError(analyticsdomain.ErrInvalidWorkspace, "workspace is required")
	}
	return analyticsdomain.Selector{
		Client:    client,
		Region:    tsdomain.NormalizeRegion(&region),
		Workspace: workspace,
	}, nil
}

func (s *Service) ComputeStats(ctx context.Context, req analyticsdomain.StatsRequest) (*analyticsdomain.StatsResult, error) {
	sel, err := s.selector(req.Client, req.Workspace, req.Region)
	if err != nil {
		return nil, err
	}

	basis := strings.ToLower(strings.TrimSpace(req.Basis))
	if basis == "" {
		basis = analyticsdomain.BasisDays
	}
	want := req.N
	if want == 0 {
		want = analyticsdomain.DefaultWindow
	}
	var (
		n   int
		key func(time.Time) string
	)
	switch basis {
	case analyticsdomain.BasisDays:
		n = clamp(want, 1, analyticsdomain.MaxDays)
		key = dayKey
	case analyticsdomain.BasisMonths:
		n = clamp(want, 1, analyticsdomain.MaxMonths)
		key = monthKey
	default:
		return nil, analyticsdomain.NewValidationError(analyticsdomain.ErrInvalidBasis,
			"basis must be 'days' or 'months'", analyticsdomain.BasisDays, analyticsdomain.BasisMonths)
	}

	rows, err := s.repo.ListSeries(ctx, s.db, sel)
	if err != nil {
		return nil, err
	}

	obs := parseSeries(rows)
	obs = filterBuckets(obs, lastBuckets(obs, n, key), key)
	if len(obs) == 0 {
		s.metrics.RecordQuery(ctx, "stats", false)
		return &analyticsdomain.StatsResult{OK: true, NoData: true, Note: analyticsdomain.NoDataNote}, nil
	}

	window := windowLabel(n, basis)
	groups, names := groupByParameter(obs)
	byParameter := make(map[string]analyticsdomain.ParameterStats, len(names))
	for _, name := range names {
		stats := analyticsdomain.ParameterStats{Window: window}
		if basis == analyticsdomain.BasisMonths {
			stats.Monthly = monthlyStats(groups[name])
			stats.RollingMonths = rollingMonths(stats.Monthly)
		} else {
			stats.Daily = dailyStats(groups[name])
			stats.RollingDays = rollingDays(stats.Daily)
		}
		byParameter[name] = stats
	}

	s.metrics.RecordQuery(ctx, "stats", true)
	return &analyticsdomain.StatsResult{
		OK:          true,
		Client:      sel.Client,
		Region:      sel.Region,
		Workspace:   strings.TrimSpace(req.Workspace),
		Basis:       basis,
		N:           n,
		Range:       timeRange(obs),
		ByParameter: byParameter,
	}, nil
}

func (s *Service) SnapshotAt(ctx context.Context, req analyticsdomain.SnapshotRequest) (*analyticsdomain.SnapshotResult, error) {
	sel, err := s.selector(req.Client, req.Workspace, req.Region)
	if err != nil {
		return nil, err
	}

	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.Date), time.UTC)
	if err != nil {
		return nil, analyticsdomain.NewValidationError(analyticsdomain.ErrInvalidDate, "Invalid date. Use YYYY-MM-DD.")
	}

	slot, ok := analyticsdomain.NormalizeSlot(req.TimeSlot)
	if !ok {
		return nil, analyticsdomain.NewValidationError(analyticsdomain.ErrInvalidTimeSlot,
			"Invalid time_slot. Allowed: 01:30, 09:30, 17:30 (UTC).", analyticsdomain.AllowedSlots()...)
	}
	clock, _ := time.Parse("15:04:05", slot)
	at := day.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute)

	var sheet *string
	if trimmed := strings.TrimSpace(req.Sheet); trimmed != "" {
		sheet = &trimmed
	}
	var sheetFilter *string
	if sheet != nil {
		upper := strings.ToUpper(*sheet)
		sheetFilter = &upper
	}

	rows, err := s.repo.ListAt(ctx, s.db, sel, tsdomain.FormatUTC(at), sheetFilter)
	if err != nil {
		return nil, err
	}

	result := &analyticsdomain.SnapshotResult{
		Client:    sel.Client,
		Region:    sel.Region,
		Workspace: strings.TrimSpace(req.Workspace),
		Sheet:     sheet,
		Ts:        at.Format(isoLayout),
	}
	if len(rows) == 0 {
		s.metrics.RecordQuery(ctx, "snapshot", false)
		result.Reason = "No data for given timestamp"
		result.Hint = "Check that this exact date+time exists in DB (UTC) or try another slot."
		return result, nil
	}

	result.OK = true
	result.Found = true
	result.Mode = "by-date-slot"
	result.Date = strings.TrimSpace(req.Date)
	result.TimeSlot = slot
	result.Rows = make([]analyticsdomain.SnapshotRow, 0, len(rows))
	for _, r := range rows {
		result.Rows = append(result.Rows, analyticsdomain.SnapshotRow{
			Parameter: r.Parameter,
			Value:     r.Value,
			TsUTC:     r.TsUTC,
			SheetName: r.SheetName,
			MessageID: r.MessageID,
		})
	}
	result.Count = len(result.Rows)

	s.metrics.RecordQuery(ctx, "snapshot", true)
	return result, nil
}

func (s *Service) Latest(ctx context.Context, req analyticsdomain.LatestRequest) (*analyticsdomain.LatestResult, error) {
	sel, err := s.selector(req.Client, req.Workspace, req.Region)
	if err != nil {
		return nil, err
	}

	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = analyticsdomain.ModeAligned
	}

	var rows []analyticsdomain.Row
	switch mode {
	case analyticsdomain.ModeAligned:
		maxTs, err := s.repo.MaxTimestamp(ctx, s.db, sel)
		if err != nil {
			return nil, err
		}
		if maxTs != "" {
			rows, err = s.repo.ListAt(ctx, s.db, sel, maxTs, nil)
			if err != nil {
				return nil, err
			}
		}
	case analyticsdomain.ModePerParameter:
		rows, err = s.repo.ListLatestPerParameter(ctx, s.db, sel)
		if err != nil {
			return nil, err
		}
	default:
		return nil, analyticsdomain.NewValidationError(analyticsdomain.ErrInvalidMode,
			"mode must be 'aligned' or 'per-parameter'", analyticsdomain.ModeAligned, analyticsdomain.ModePerParameter)
	}

	result := &analyticsdomain.LatestResult{
		OK:        true,
		Mode:      mode,
		Client:    sel.Client,
		Region:    sel.Region,
		Workspace: strings.TrimSpace(req.Workspace),
		Count:     len(rows),
		Rows:      rows,
	}
	if result.Rows == nil {
		result.Rows = []analyticsdomain.Row{}
	}

	var latest string
	for _, r := range rows {
		if r.TsUTC > latest {
			latest = r.TsUTC
		}
	}
	if latest != "" {
		date := latest
		if i := strings.IndexByte(latest, ' '); i > 0 {
			date = latest[:i]
		} else if len(latest) > 10 {
			date = latest[:10]
		}
		result.LatestTs = &latest
		result.LatestDate = &date
	}

	s.metrics.RecordQuery(ctx, "latest_"+mode, len(rows) > 0)
	return result, nil
}

func (s *Service) Workspaces(ctx context.Context, req analyticsdomain.WorkspacesRequest) (*analyticsdomain.WorkspacesResult, error) {
	client := strings.TrimSpace(req.Client)
	if client == "" {
		return nil, analyticsdomain.NewValidationError(analyticsdomain.ErrInvalidClient, "client is required")
	}
	region := tsdomain.NormalizeRegion(&req.Region)

	workspaces, err := s.repo.ListWorkspaces(ctx, s.db, client, region)
	if err != nil {
		return nil, err
	}
	if workspaces == nil {
		workspaces = []string{}
	}

	s.metrics.RecordQuery(ctx, "workspaces", len(workspaces) > 0)
	return &analyticsdomain.WorkspacesResult{
		OK:         true,
		Client:     client,
		Region:     region,
		Count:      len(workspaces),
		Workspaces: workspaces,
	}, nil
}

func (s *Service) Combinations(ctx context.Context, req analyticsdomain.CombinationsRequest) (*analyticsdomain.CombinationsResult, error) {
	workspace := strings.ToUpper(strings.TrimSpace(req.Workspace))

	combos, err := s.repo.ListCombinations(ctx, s.db, workspace)
	if err != nil {
		return nil, err
	}
	if combos == nil {
		combos = []analyticsdomain.Combination{}
	}

	result := &analyticsdomain.CombinationsResult{
		OK:           true,
		Count:        len(combos),
		Combinations: combos,
	}
	if workspace != "" {
		result.WorkspaceFilter = &workspace
	}

	s.metrics.RecordQuery(ctx, "combinations", len(combos) > 0)
	return result, nil
}
