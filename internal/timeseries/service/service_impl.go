package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sheetseries/internal/clock"
	tsdomain "github.com/smallbiznis/sheetseries/internal/timeseries/domain"
	"github.com/smallbiznis/sheetseries/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxAppendAttempts = 3

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  tsdomain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  tsdomain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) tsdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("timeseries.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: clk,
	}
}

func (s *Service) Append(ctx context.Context, batch []tsdomain.Point) (int, int, error) {
	if len(batch) == 0 {
		return 0, 0, nil
	}

	candidates := make([]tsdomain.Point, len(batch))
	copy(candidates, batch)

	parameters := make(map[string]struct{})
	latest := make(map[tsdomain.IdentityKey]int, len(candidates))
	for i := range candidates {
		if strings.TrimSpace(candidates[i].Client) == "" {
			return 0, 0, tsdomain.ErrInvalidClient
		}
		candidates[i].Region = tsdomain.NormalizeRegion(candidates[i].Region)
		parameters[candidates[i].Parameter] = struct{}{}
		// later occurrences overwrite earlier ones
		latest[candidates[i].Identity()] = i
	}

	keys := make([]tsdomain.IdentityKey, 0, len(latest))
	for key := range latest {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	now := s.clock.Now().UTC()
	rows := make([]tsdomain.Point, 0, len(keys))
	for _, key := range keys {
		p := candidates[latest[key]]
		p.ID = s.genID.Generate()
		p.CreatedAt = now
		p.UpdatedAt = now
		rows = append(rows, p)
	}

	var err error
	for attempt := 1; attempt <= maxAppendAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.repo.Upsert(ctx, tx, rows)
		})
		// a concurrent batch inserted one of our identities between the
		// lookup and the insert; the retry sees it and updates instead
		if err == nil || !db.IsDuplicateKeyErr(err) {
			break
		}
		s.log.Warn("append batch raced on identity, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	if err != nil {
		s.log.Error("append batch failed",
			zap.Int("rows", len(rows)),
			zap.Error(err),
		)
		return 0, 0, fmt.Errorf("%w: %w", tsdomain.ErrPersistence, err)
	}

	s.log.Debug("batch appended",
		zap.Int("candidates", len(batch)),
		zap.Int("rows_written", len(rows)),
		zap.Int("unique_parameters", len(parameters)),
	)
	return len(rows), len(parameters), nil
}

func (s *Service) Purge(ctx context.Context, req tsdomain.PurgeRequest) (*tsdomain.PurgeResult, error) {
	if req.Months < tsdomain.MinRetentionMonths || req.Months > tsdomain.MaxRetentionMonths {
		return nil, tsdomain.ErrInvalidMonths
	}

	cutoff := tsdomain.FormatUTC(s.clock.Now().UTC().AddDate(0, -req.Months, 0))
	deleted, err := s.repo.PurgeOlderThan(ctx, s.db, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tsdomain.ErrPersistence, err)
	}

	s.log.Info("purged old data",
		zap.Int("months", req.Months),
		zap.String("cutoff", cutoff),
		zap.Int64("deleted", deleted),
	)
	return &tsdomain.PurgeResult{Cutoff: cutoff, Deleted: deleted}, nil
}
