package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/sheetseries/internal/clock"
	"github.com/smallbiznis/sheetseries/internal/config"
	"github.com/smallbiznis/sheetseries/internal/fetcher"
	ingestdomain "github.com/smallbiznis/sheetseries/internal/ingestion/domain"
	rundomain "github.com/smallbiznis/sheetseries/internal/ingestrun/domain"
	obslogger "github.com/smallbiznis/sheetseries/internal/observability/logger"
	"github.com/smallbiznis/sheetseries/internal/observability/metrics"
	"github.com/smallbiznis/sheetseries/internal/sheet"
	tsdomain "github.com/smallbiznis/sheetseries/internal/timeseries/domain"
	"github.com/smallbiznis/sheetseries/internal/workbook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Points    tsdomain.Service
	Runs      rundomain.Service
	Workbooks workbook.Store
	Registry  *config.ClientRegistry
	Fetcher   fetcher.Fetcher  `optional:"true"`
	Metrics   *metrics.Metrics `optional:"true"`
	Clock     clock.Clock      `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	points    tsdomain.Service
	runs      rundomain.Service
	workbooks workbook.Store
	registry  *config.ClientRegistry
	fetcher   fetcher.Fetcher
	metrics   *metrics.Metrics
	clock     clock.Clock
}

func New(p Params) ingestdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		log:       p.Log.Named("ingestion.service"),
		points:    p.Points,
		runs:      p.Runs,
		workbooks: p.Workbooks,
		registry:  p.Registry,
		fetcher:   p.Fetcher,
		metrics:   p.Metrics,
		clock:     clk,
	}
}

func (s *Service) IngestWorkbook(ctx context.Context, wb *sheet.Workbook, req ingestdomain.WorkbookRequest) (*ingestdomain.Result, error) {
	client := strings.TrimSpace(req.Client)
	if client == "" {
		return nil, ingestdomain.ErrInvalidClient
	}
	region := tsdomain.NormalizeRegion(req.Region)

	result := &ingestdomain.Result{
		OK:             true,
		Client:         client,
		Region:         region,
		SheetsIngested: []string{},
		SheetsSkipped:  []string{},
	}
	if wb == nil {
		return result, nil
	}
	result.SheetsTotal = len(wb.Sheets)

	log := obslogger.WithSelector(s.log, client, region)
	now := s.clock.Now().UTC()
	var batch []tsdomain.Point
	for _, sh := range wb.Sheets {
		points := sheet.Normalize(sh.Grid, sheet.Meta{
			Client:     client,
			Region:     region,
			SheetName:  sh.Name,
			Workspace:  tsdomain.NormalizeWorkspace(sh.Name),
			MessageID:  req.MessageID,
			ReceivedAt: req.ReceivedAt,
			Now:        now,
		})
		if len(points) == 0 {
			log.Debug("sheet has no usable rows", zap.String("sheet", sh.Name))
			result.SheetsSkipped = append(result.SheetsSkipped, sh.Name)
			continue
		}
		result.SheetsIngested = append(result.SheetsIngested, sh.Name)
		batch = append(batch, points...)
	}
	if len(batch) == 0 {
		return result, nil
	}

	rows, params, err := s.points.Append(ctx, batch)
	if err != nil {
		return nil, err
	}
	result.RowsWritten = rows
	result.UniqueParameters = params
	return result, nil
}

func (s *Service) IngestFile(ctx context.Context, req ingestdomain.FileRequest) (*ingestdomain.Result, error) {
	client := strings.TrimSpace(req.Client)
	if client == "" {
		return nil, ingestdomain.ErrInvalidClient
	}
	if len(req.Data) == 0 {
		return nil, ingestdomain.ErrEmptyFile
	}
	if !sheet.IsSupported(req.FileName) {
		return nil, fmt.Errorf("%w: %q", sheet.ErrUnsupportedFormat, req.FileName)
	}
	client, region, err := s.resolve(client, req.Region)
	if err != nil {
		return nil, err
	}

	record := rundomain.RecordRequest{
		Source:     req.Source,
		Client:     client,
		Region:     region,
		Sender:     req.Sender,
		MessageID:  req.MessageID,
		Subject:    req.Subject,
		ReceivedAt: req.ReceivedAt,
	}

	handle, err := s.workbooks.Put(ctx, req.FileName, req.Data)
	if err != nil {
		s.finish(ctx, record, nil, err)
		return nil, err
	}
	record.WorkbookHandle = handle.String()

	wb, err := sheet.Open(req.FileName, req.Data)
	if err != nil {
		s.finish(ctx, record, nil, err)
		return nil, err
	}
	record.SheetsTotal = len(wb.Sheets)

	result, err := s.IngestWorkbook(ctx, wb, ingestdomain.WorkbookRequest{
		Client:     client,
		Region:     region,
		MessageID:  tsdomain.NormalizeMessageID(&req.MessageID),
		ReceivedAt: req.ReceivedAt,
	})
	if err != nil {
		s.finish(ctx, record, nil, err)
		return nil, err
	}
	result.Handle = handle.String()
	result.MessageID = strings.TrimSpace(req.MessageID)
	result.Status = s.finish(ctx, record, result, nil)
	return result, nil
}

func (s *Service) IngestFromInbox(ctx context.Context, req ingestdomain.InboxRequest) (*ingestdomain.Result, error) {
	if s.fetcher == nil {
		return nil, errors.New("inbox fetcher not configured")
	}
	sel, err := s.registry.Get().Resolve(req.Client, req.Region)
	if err != nil {
		return nil, err
	}

	att, err := s.fetcher.Fetch(ctx, fetcher.FetchRequest{
		Client:        sel.Client,
		Region:        sel.Region,
		Sender:        sel.Sender,
		SubjectHint:   req.SubjectHint,
		LookbackHours: req.LookbackHours,
	})
	if err != nil {
		if errors.Is(err, fetcher.ErrNoAttachment) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", metrics.ErrFetchFailed, err)
	}

	if req.SkipIngested && att.MessageID != "" {
		done, err := s.runs.Succeeded(ctx, sel.Client, sel.Region, att.MessageID)
		if err != nil {
			return nil, err
		}
		if done {
			return &ingestdomain.Result{
				OK:              true,
				Client:          sel.Client,
				Region:          sel.Region,
				SheetsIngested:  []string{},
				SheetsSkipped:   []string{},
				MessageID:       att.MessageID,
				AlreadyIngested: true,
			}, nil
		}
	}

	source := req.Source
	if source == "" {
		source = rundomain.SourceInbox
	}
	region := ""
	if sel.Region != nil {
		region = *sel.Region
	}
	received := att.ReceivedAt
	return s.IngestFile(ctx, ingestdomain.FileRequest{
		Source:     source,
		Client:     sel.Client,
		Region:     region,
		FileName:   att.FileName,
		Data:       att.Data,
		MessageID:  att.MessageID,
		Subject:    att.Subject,
		Sender:     att.Sender,
		ReceivedAt: &received,
	})
}

// resolve canonicalizes a stream against the registry. Clients missing from
// the registry pass through with their region as given.
func (s *Service) resolve(client, region string) (string, *string, error) {
	if s.registry != nil {
		sel, err := s.registry.Get().Resolve(client, region)
		if err == nil {
			return sel.Client, sel.Region, nil
		}
		if !errors.Is(err, config.ErrUnknownClient) {
			return "", nil, err
		}
	}
	r := strings.TrimSpace(region)
	return client, tsdomain.NormalizeRegion(&r), nil
}

// finish records the run and emits metrics. Audit failures never fail the ingestion.
func (s *Service) finish(ctx context.Context, record rundomain.RecordRequest, result *ingestdomain.Result, ingestErr error) string {
	if record.Source == "" {
		record.Source = rundomain.SourceUpload
	}
	record.Err = ingestErr
	if result != nil {
		record.RowsWritten = result.RowsWritten
		record.UniqueParameters = result.UniqueParameters
		record.SheetsTotal = result.SheetsTotal
		record.SheetsSkipped = result.SheetsSkipped
	}
	status := rundomain.StatusFor(ingestErr, record.RowsWritten, len(record.SheetsSkipped))
	record.Status = status

	log := obslogger.WithSelector(s.log, record.Client, record.Region)
	if _, err := s.runs.Record(context.WithoutCancel(ctx), record); err != nil {
		log.Warn("ingest run not recorded", zap.Error(err))
	}
	s.metrics.RecordIngest(ctx, record.Client, record.Source, status, record.RowsWritten, len(record.SheetsSkipped))

	fields := []zap.Field{
		zap.String("source", record.Source),
		zap.String("status", status),
		zap.Int("rows_written", record.RowsWritten),
		zap.Int("sheets_skipped", len(record.SheetsSkipped)),
	}
	if ingestErr != nil {
		log.Error("workbook ingest failed", append(fields, zap.Error(ingestErr))...)
	} else {
		log.Info("workbook ingested", fields...)
	}
	return status
}
