// Package report aggregates the transferred rows of a run and exports the result.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tigerroll/suicsync/pkg/batch/adapter/database"
	config "github.com/tigerroll/suicsync/pkg/batch/core/config"
	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

const moduleName = "report"

// Querier reads aggregated views of the destination table.
type Querier struct {
	dbResolver database.DBConnectionResolver
	dbName     string
	table      string
	dimensions [2]string
	measures   []string
}

// NewQuerier validates the configured dimensions and measures against columnSet.
func NewQuerier(dbResolver database.DBConnectionResolver, dbName, table string, columnSet model.ColumnSet, cfg config.ReportConfig) (*Querier, error) {
	if len(cfg.Dimensions) != 2 {
		return nil, exception.Validation(moduleName, "report needs exactly two dimensions, got %d", len(cfg.Dimensions))
	}
	if len(cfg.Measures) == 0 {
		return nil, exception.Validation(moduleName, "report needs at least one measure")
	}
	for _, col := range append(append([]string{}, cfg.Dimensions...), cfg.Measures...) {
		if !columnSet.Has(col) {
			return nil, exception.Validation(moduleName, "column %q is not part of column set %s", col, columnSet.Version)
		}
	}
	if cfg.Dimensions[0] == cfg.Dimensions[1] {
		return nil, exception.Validation(moduleName, "report dimensions must differ")
	}
	return &Querier{
		dbResolver: dbResolver,
		dbName:     dbName,
		table:      table,
		dimensions: [2]string{cfg.Dimensions[0], cfg.Dimensions[1]},
		measures:   append([]string(nil), cfg.Measures...),
	}, nil
}

// Query groups the rows of runID by both dimensions and sums every measure.
// Keys and TotalRows always describe the whole run; filter only narrows Groups.
func (q *Querier) Query(ctx context.Context, runID string, filter model.ReportFilter) (*model.ReportResult, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, exception.Validation(moduleName, "run id is required")
	}
	conn, err := q.dbResolver.ResolveDBConnection(ctx, q.dbName)
	if err != nil {
		if exception.KindOf(err) == nil {
			err = exception.NewBatchErrorf(moduleName, exception.ErrConnectivity, "failed to resolve DB connection '%s'", q.dbName, err)
		}
		return nil, err
	}

	result := &model.ReportResult{
		RunID:      runID,
		Dimensions: q.dimensions,
		Measures:   q.measures,
		Groups:     []model.ReportGroup{},
		Keys:       []string{},
	}
	if result.TotalRows, err = conn.Count(ctx, q.table, map[string]interface{}{"run_id": runID}); err != nil {
		return nil, exception.NewBatchErrorf(moduleName, exception.ErrQuery, "failed to count rows of run %s", runID, err)
	}
	if result.Keys, err = q.keys(ctx, conn, runID); err != nil {
		return nil, err
	}
	if result.Groups, err = q.groups(ctx, conn, runID, filter); err != nil {
		return nil, err
	}
	logger.Debugf("Report: run %s has %d rows in %d groups (%d keys).", runID, result.TotalRows, len(result.Groups), len(result.Keys))
	return result, nil
}

func (q *Querier) keys(ctx context.Context, conn database.DBConnection, runID string) ([]string, error) {
	dim := conn.QuoteIdentifier(q.dimensions[0])
	stmt := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE run_id = ? ORDER BY %s", dim, conn.QuoteIdentifier(q.table), dim)
	rows, err := conn.QueryRows(ctx, stmt, runID)
	if err != nil {
		return nil, exception.NewBatchErrorf(moduleName, exception.ErrQuery, "failed to read report keys of run %s", runID, err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key sql.NullString
		if err := rows.Scan(&key); err != nil {
			return nil, exception.NewBatchErrorf(moduleName, exception.ErrQuery, "failed to scan report key", err)
		}
		keys = append(keys, key.String)
	}
	if err := rows.Err(); err != nil {
		return nil, exception.NewBatchErrorf(moduleName, exception.ErrQuery, "failed to read report keys of run %s", runID, err)
	}
	return keys, nil
}

func (q *Querier) groups(ctx context.Context, conn database.DBConnection, runID string, filter model.ReportFilter) ([]model.ReportGroup, error) {
	dim1 := conn.QuoteIdentifier(q.dimensions[0])
	dim2 := conn.QuoteIdentifier(q.dimensions[1])
	selects := []string{dim1, dim2}
	for _, m := range q.measures {
		selects = append(selects, fmt.Sprintf("SUM(%s)", conn.QuoteIdentifier(m)))
	}
	selects = append(selects, "COUNT(*)")

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s WHERE run_id = ?", strings.Join(selects, ", "), conn.QuoteIdentifier(q.table))
	args := []interface{}{runID}
	if len(filter.Keys) > 0 {
		sb.WriteString(" AND " + dim1 + " IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(filter.Keys)), ", ") + ")")
		for _, k := range filter.Keys {
			args = append(args, k)
		}
	}
	fmt.Fprintf(&sb, " GROUP BY %s, %s ORDER BY %s, %s", dim1, dim2, dim1, dim2)

	rows, err := conn.QueryRows(ctx, sb.String(), args...)
	if err != nil {
		return nil, exception.NewBatchErrorf(moduleName, exception.ErrQuery, "failed to aggregate run %s", runID, err)
	}
	defer rows.Close()

	groups := []model.ReportGroup{}
	for rows.Next() {
		var d1, d2 sql.NullString
		sums := make([]sql.NullFloat64, len(q.measures))
		var count int64
		dest := []interface{}{&d1, &d2}
		for i := range sums {
			dest = append(dest, &sums[i])
		}
		dest = append(dest, &count)
		if err := rows.Scan(dest...); err != nil {
			return nil, exception.NewBatchErrorf(moduleName, exception.ErrQuery, "failed to scan report group", err)
		}
		group := model.ReportGroup{
			Dimensions: [2]string{d1.String, d2.String},
			Sums:       make(map[string]float64, len(q.measures)),
			Rows:       count,
		}
		for i, m := range q.measures {
			group.Sums[m] = sums[i].Float64
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, exception.NewBatchErrorf(moduleName, exception.ErrQuery, "failed to aggregate run %s", runID, err)
	}
	return groups, nil
}
