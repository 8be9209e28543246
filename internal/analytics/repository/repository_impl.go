package repository

import (
	"context"

	analyticsdomain "github.com/smallbiznis/sheetseries/internal/analytics/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() analyticsdomain.Repository {
	return &repo{}
}

// scope renders the selector predicate.
func scope(alias string, sel analyticsdomain.Selector) (string, []any) {
	where, args := streamScope(alias, sel.Client, sel.Region)
	where += " AND UPPER(" + column(alias, "workspace") + ") = ?"
	return where, append(args, sel.Workspace)
}

// streamScope matches one client stream. A missing region matches NULL and
// the empty string so rows written before region normalization still count.
func streamScope(alias, client string, region *string) (string, []any) {
	where := column(alias, "client") + " = ?"
	args := []any{client}
	if region != nil {
		where += " AND " + column(alias, "region") + " = ?"
		args = append(args, *region)
	} else {
		where += " AND (" + column(alias, "region") + " IS NULL OR " + column(alias, "region") + " = '')"
	}
	return where, args
}

func column(alias, name string) string {
	if alias == "" {
		return name
	}
	return alias + "." + name
}

func (r *repo) ListSeries(ctx context.Context, db *gorm.DB, sel analyticsdomain.Selector) ([]analyticsdomain.Row, error) {
	where, args := scope("", sel)
	var rows []analyticsdomain.Row
	err := db.WithContext(ctx).Raw(
		`SELECT parameter, value, ts_utc, sheet_name, received_utc, message_id
		 FROM timeseries_data
		 WHERE `+where+`
		 ORDER BY ts_utc ASC, parameter ASC`,
		args...,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) MaxTimestamp(ctx context.Context, db *gorm.DB, sel analyticsdomain.Selector) (string, error) {
	where, args := scope("", sel)
	var maxTs *string
	err := db.WithContext(ctx).Raw(
		`SELECT MAX(ts_utc) FROM timeseries_data WHERE `+where,
		args...,
	).Row().Scan(&maxTs)
	if err != nil {
		return "", err
	}
	if maxTs == nil {
		return "", nil
	}
	return *maxTs, nil
}

func (r *repo) ListAt(ctx context.Context, db *gorm.DB, sel analyticsdomain.Selector, ts string, sheet *string) ([]analyticsdomain.Row, error) {
	where, args := scope("", sel)
	where += " AND ts_utc = ?"
	args = append(args, ts)
	if sheet != nil {
		where += " AND UPPER(sheet_name) = ?"
		args = append(args, *sheet)
	}

	var rows []analyticsdomain.Row
	err := db.WithContext(ctx).Raw(
		`SELECT parameter, value, ts_utc, sheet_name, received_utc, message_id
		 FROM timeseries_data
		 WHERE `+where+`
		 ORDER BY LOWER(parameter) ASC, parameter ASC, sheet_name ASC`,
		args...,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ListLatestPerParameter(ctx context.Context, db *gorm.DB, sel analyticsdomain.Selector) ([]analyticsdomain.Row, error) {
	inner, innerArgs := scope("", sel)
	outer, outerArgs := scope("t", sel)

	var rows []analyticsdomain.Row
	err := db.WithContext(ctx).Raw(
		`SELECT t.parameter, t.value, t.ts_utc, t.sheet_name, t.received_utc, t.message_id
		 FROM timeseries_data t
		 JOIN (
		   SELECT parameter, MAX(ts_utc) AS max_ts
		   FROM timeseries_data
		   WHERE `+inner+`
		   GROUP BY parameter
		 ) m ON t.parameter = m.parameter AND t.ts_utc = m.max_ts
		 WHERE `+outer+`
		 ORDER BY LOWER(t.parameter) ASC, t.parameter ASC, t.sheet_name ASC`,
		append(innerArgs, outerArgs...)...,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ListWorkspaces(ctx context.Context, db *gorm.DB, client string, region *string) ([]string, error) {
	where, args := streamScope("", client, region)
	var workspaces []string
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT workspace
		 FROM timeseries_data
		 WHERE `+where+` AND workspace <> ''
		 ORDER BY workspace ASC`,
		args...,
	).Scan(&workspaces).Error
	if err != nil {
		return nil, err
	}
	return workspaces, nil
}

// ListCombinations lists every stored stream, optionally for one upper-cased workspace.
func (r *repo) ListCombinations(ctx context.Context, db *gorm.DB, workspace string) ([]analyticsdomain.Combination, error) {
	where := "client <> '' AND workspace <> ''"
	var args []any
	if workspace != "" {
		where += " AND UPPER(workspace) = ?"
		args = append(args, workspace)
	}

	var combos []analyticsdomain.Combination
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT client, COALESCE(region, '') AS region, workspace
		 FROM timeseries_data
		 WHERE `+where+`
		 ORDER BY client ASC, region ASC, workspace ASC`,
		args...,
	).Scan(&combos).Error
	if err != nil {
		return nil, err
	}
	return combos, nil
}
