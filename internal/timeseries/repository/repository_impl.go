package repository

import (
	"context"
	"errors"

	tsdomain "github.com/smallbiznis/sheetseries/internal/timeseries/domain"
	"github.com/smallbiznis/sheetseries/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Strategy selects how identity conflicts are resolved.
type Strategy int

const (
	// StrategyAuto picks by dialect: partial-index upsert where available, pre-check otherwise.
	StrategyAuto Strategy = iota
	StrategyOnConflict
	StrategyPrecheck
)

const insertBatchSize = 500

var updatedColumns = []string{"value", "workspace", "message_id", "received_utc", "updated_at"}

type repo struct {
	strategy Strategy
}

func Provide() tsdomain.Repository {
	return &repo{strategy: StrategyAuto}
}

// NewWithStrategy pins the conflict strategy regardless of dialect.
func NewWithStrategy(s Strategy) tsdomain.Repository {
	return &repo{strategy: s}
}

func (r *repo) resolve(conn *gorm.DB) Strategy {
	if r.strategy != StrategyAuto {
		return r.strategy
	}
	if db.SupportsPartialIndexes(conn.Dialector.Name()) {
		return StrategyOnConflict
	}
	return StrategyPrecheck
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, points []tsdomain.Point) error {
	if len(points) == 0 {
		return nil
	}
	if r.resolve(db) == StrategyOnConflict {
		return r.upsertOnConflict(ctx, db, points)
	}
	return r.upsertPrecheck(ctx, db, points)
}

// A conflict target must name exactly one partial index, so regioned and
// regionless points go through separate statements.
func (r *repo) upsertOnConflict(ctx context.Context, db *gorm.DB, points []tsdomain.Point) error {
	var regioned, regionless []tsdomain.Point
	for _, p := range points {
		if p.Region != nil {
			regioned = append(regioned, p)
		} else {
			regionless = append(regionless, p)
		}
	}

	if len(regioned) > 0 {
		err := db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "client"}, {Name: "region"}, {Name: "sheet_name"}, {Name: "parameter"}, {Name: "ts_utc"},
			},
			TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "region IS NOT NULL"}}},
			DoUpdates:   clause.AssignmentColumns(updatedColumns),
		}).CreateInBatches(&regioned, insertBatchSize).Error
		if err != nil {
			return err
		}
	}

	if len(regionless) > 0 {
		err := db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "client"}, {Name: "sheet_name"}, {Name: "parameter"}, {Name: "ts_utc"},
			},
			TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "region IS NULL"}}},
			DoUpdates:   clause.AssignmentColumns(updatedColumns),
		}).CreateInBatches(&regionless, insertBatchSize).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// upsertPrecheck looks each identity up under a row lock and updates or
// inserts. It must run inside the caller's transaction.
func (r *repo) upsertPrecheck(ctx context.Context, db *gorm.DB, points []tsdomain.Point) error {
	lock := db.Dialector.Name() == "mysql"

	for i := range points {
		p := &points[i]

		q := db.WithContext(ctx).
			Model(&tsdomain.Point{}).
			Select("id").
			Where("client = ? AND sheet_name = ? AND parameter = ? AND ts_utc = ?", p.Client, p.SheetName, p.Parameter, p.TsUTC)
		if p.Region != nil {
			q = q.Where("region = ?", *p.Region)
		} else {
			q = q.Where("region IS NULL")
		}
		if lock {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var existing tsdomain.Point
		err := q.Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := db.WithContext(ctx).Create(p).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			err := db.WithContext(ctx).
				Model(&tsdomain.Point{}).
				Where("id = ?", existing.ID).
				Updates(map[string]any{
					"value":        p.Value,
					"workspace":    p.Workspace,
					"message_id":   p.MessageID,
					"received_utc": p.ReceivedUTC,
					"updated_at":   p.UpdatedAt,
				}).Error
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *repo) PurgeOlderThan(ctx context.Context, db *gorm.DB, cutoff string) (int64, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM timeseries_data WHERE ts_utc < ?`, cutoff)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
