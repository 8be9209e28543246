package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sheetseries/internal/clock"
	rundomain "github.com/smallbiznis/sheetseries/internal/ingestrun/domain"
	tsdomain "github.com/smallbiznis/sheetseries/internal/timeseries/domain"
	"github.com/smallbiznis/sheetseries/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  rundomain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  rundomain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) rundomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ingestrun.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: clk,
	}
}

var validSources = map[string]struct{}{
	rundomain.SourceUpload:    {},
	rundomain.SourceInbox:     {},
	rundomain.SourceCLI:       {},
	rundomain.SourceScheduler: {},
}

var validStatuses = map[string]struct{}{
	rundomain.StatusSuccess: {},
	rundomain.StatusPartial: {},
	rundomain.StatusEmpty:   {},
	rundomain.StatusFailed:  {},
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (s *Service) Record(ctx context.Context, req rundomain.RecordRequest) (*rundomain.Run, error) {
	client := strings.TrimSpace(req.Client)
	if client == "" {
		return nil, rundomain.ErrInvalidClient
	}
	if _, ok := validSources[req.Source]; !ok {
		return nil, rundomain.ErrInvalidSource
	}
	status := req.Status
	if status == "" {
		status = rundomain.StatusFor(req.Err, req.RowsWritten, len(req.SheetsSkipped))
	}
	if _, ok := validStatuses[status]; !ok {
		return nil, rundomain.ErrInvalidStatus
	}

	run := &rundomain.Run{
		ID:               s.genID.Generate(),
		Source:           req.Source,
		Client:           client,
		Region:           tsdomain.NormalizeRegion(req.Region),
		Sender:           optional(req.Sender),
		MessageID:        optional(req.MessageID),
		Subject:          optional(req.Subject),
		ReceivedAt:       req.ReceivedAt,
		Status:           status,
		RowsWritten:      req.RowsWritten,
		UniqueParameters: req.UniqueParameters,
		SheetsTotal:      req.SheetsTotal,
		SheetsSkipped:    len(req.SheetsSkipped),
		WorkbookHandle:   optional(req.WorkbookHandle),
		CreatedAt:        s.clock.Now().UTC(),
	}
	if req.Err != nil {
		text := req.Err.Error()
		run.ErrorText = &text
	}
	if len(req.SheetsSkipped) > 0 {
		skipped := make([]any, 0, len(req.SheetsSkipped))
		for _, name := range req.SheetsSkipped {
			skipped = append(skipped, name)
		}
		run.Metadata = datatypes.JSONMap{"skipped_sheets": skipped}
	}

	if err := s.repo.Insert(ctx, s.db, run); err != nil {
		s.log.Warn("failed to record ingest run",
			zap.String("client", client),
			zap.String("status", status),
			zap.Error(err),
		)
		return nil, err
	}
	return run, nil
}

func (s *Service) List(ctx context.Context, req rundomain.ListRequest) (*rundomain.ListResponse, error) {
	client := strings.TrimSpace(req.Client)
	if client == "" {
		return nil, rundomain.ErrInvalidClient
	}

	var beforeID snowflake.ID
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, err
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		beforeID = id
	}

	limit := req.Size()
	region := req.Region
	runs, err := s.repo.List(ctx, s.db, client, tsdomain.NormalizeRegion(&region), beforeID, limit+1)
	if err != nil {
		return nil, err
	}

	runs, pageInfo := pagination.BuildCursorPageInfo(runs, limit, func(run rundomain.Run) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        strconv.FormatInt(run.ID.Int64(), 10),
			CreatedAt: run.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
		if err != nil {
			s.log.Warn("encode page token", zap.Error(err))
			return ""
		}
		return token
	})
	if runs == nil {
		runs = []rundomain.Run{}
	}
	return &rundomain.ListResponse{Runs: runs, PageInfo: pageInfo}, nil
}

func (s *Service) Succeeded(ctx context.Context, client string, region *string, messageID string) (bool, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return false, nil
	}
	count, err := s.repo.CountSucceeded(ctx, s.db, strings.TrimSpace(client), tsdomain.NormalizeRegion(region), messageID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
