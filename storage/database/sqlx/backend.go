package sqlxrepos

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/pkg/errors"

	"github.com/trezcool/trainingops/core"
	"github.com/trezcool/trainingops/core/query"
)

const (
	dialectPostgres = "postgres"

	logMsgQueryCompleted = "query completed"
	logMsgQueryFailed    = "database query execution failed"
	logAttrQuery         = "query"
	logAttrDurationMS    = "duration_ms"
	logAttrRowsAffected  = "rows_affected"
)

var (
	ErrBuildingQuery  = errors.New("building query failed")
	ErrUnfilteredExec = errors.New("refusing to delete without a filter")
)

// Backend runs query.Query requests against Postgres, building SQL with goqu.
type Backend struct {
	exec    core.DBQuerier
	logger  core.Logger
	dialect goqu.DialectWrapper
}

var _ query.Backend = (*Backend)(nil) // interface compliance check

// NewBackend binds a backend to exec; logger is optional (SQL is logged at debug level).
func NewBackend(exec core.DBQuerier, logger core.Logger) *Backend {
	return &Backend{
		exec:    exec,
		logger:  logger,
		dialect: goqu.Dialect(dialectPostgres),
	}
}

func (b *Backend) where(filters []query.Filter) []exp.Expression {
	exprs := make([]exp.Expression, 0, len(filters))
	for _, f := range filters {
		col := goqu.C(f.Column)
		switch f.Op {
		case query.OpEq:
			exprs = append(exprs, col.Eq(f.Value))
		case query.OpNeq:
			exprs = append(exprs, col.Neq(f.Value))
		case query.OpIsNull:
			exprs = append(exprs, col.IsNull())
		case query.OpNotNull:
			exprs = append(exprs, col.IsNotNull())
		}
	}
	return exprs
}

// BuildSelect renders the select (or count, when q.Head) statement for q.
func (b *Backend) BuildSelect(q query.Query) (string, []interface{}, error) {
	ds := b.dialect.From(q.Table).Prepared(true)
	if filters := b.where(q.Filters); len(filters) > 0 {
		ds = ds.Where(filters...)
	}

	if q.Head {
		ds = ds.Select(goqu.COUNT(goqu.Star()))
	} else {
		if len(q.Columns) > 0 {
			cols := make([]interface{}, 0, len(q.Columns))
			for _, c := range q.Columns {
				cols = append(cols, c)
			}
			ds = ds.Select(cols...)
		}
		// nulls last in both directions (Postgres puts them first on DESC)
		for _, ord := range q.Order {
			if ord.Ascending {
				ds = ds.OrderAppend(goqu.I(ord.Field).Asc().NullsLast())
			} else {
				ds = ds.OrderAppend(goqu.I(ord.Field).Desc().NullsLast())
			}
		}
		if q.Limit > 0 {
			ds = ds.Limit(uint(q.Limit))
		}
	}

	sqlQuery, args, err := ds.ToSQL()
	if err != nil {
		return "", nil, errors.Wrap(ErrBuildingQuery, err.Error())
	}
	return sqlQuery, args, nil
}

// BuildDelete renders the delete statement for q; a filter is mandatory.
func (b *Backend) BuildDelete(q query.Query) (string, []interface{}, error) {
	filters := b.where(q.Filters)
	if len(filters) == 0 {
		return "", nil, ErrUnfilteredExec
	}
	sqlQuery, args, err := b.dialect.Delete(q.Table).Prepared(true).Where(filters...).ToSQL()
	if err != nil {
		return "", nil, errors.Wrap(ErrBuildingQuery, err.Error())
	}
	return sqlQuery, args, nil
}

func (b *Backend) Select(ctx context.Context, q query.Query) ([]query.Row, error) {
	q.Head = false
	sqlQuery, args, err := b.BuildSelect(q)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := b.exec.QueryxContext(ctx, sqlQuery, args...)
	if err != nil {
		b.logFailure(sqlQuery, err)
		return nil, errors.Wrap(err, "selecting rows")
	}
	defer func() { _ = rows.Close() }()

	result := make([]query.Row, 0)
	for rows.Next() {
		row := make(map[string]interface{})
		if err = rows.MapScan(row); err != nil {
			return nil, errors.Wrap(err, "scanning row")
		}
		result = append(result, normalize(row))
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating rows")
	}
	b.logCompleted(sqlQuery, time.Since(start), int64(len(result)))
	return result, nil
}

func (b *Backend) Count(ctx context.Context, q query.Query) (int, error) {
	q.Head = true
	sqlQuery, args, err := b.BuildSelect(q)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	var cnt int
	if err = b.exec.QueryRowxContext(ctx, sqlQuery, args...).Scan(&cnt); err != nil {
		b.logFailure(sqlQuery, err)
		return 0, errors.Wrap(err, "counting rows")
	}
	b.logCompleted(sqlQuery, time.Since(start), int64(cnt))
	return cnt, nil
}

func (b *Backend) Delete(ctx context.Context, q query.Query) (int64, error) {
	sqlQuery, args, err := b.BuildDelete(q)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	res, err := b.exec.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		b.logFailure(sqlQuery, err)
		return 0, errors.Wrap(err, "deleting rows")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "reading rows affected")
	}
	b.logCompleted(sqlQuery, time.Since(start), n)
	return n, nil
}

func (b *Backend) logCompleted(sqlQuery string, d time.Duration, n int64) {
	if b.logger == nil {
		return
	}
	b.logger.Debug(logMsgQueryCompleted, map[string]interface{}{
		logAttrQuery:        sqlQuery,
		logAttrDurationMS:   d.Milliseconds(),
		logAttrRowsAffected: n,
	})
}

func (b *Backend) logFailure(sqlQuery string, err error) {
	if b.logger == nil {
		return
	}
	b.logger.Error(logMsgQueryFailed, err, map[string]interface{}{logAttrQuery: sqlQuery})
}

// normalize turns driver byte slices (uuid, numeric, json with lib/pq) into strings.
func normalize(row map[string]interface{}) query.Row {
	r := make(query.Row, len(row))
	for k, v := range row {
		if bs, ok := v.([]byte); ok {
			r[k] = string(bs)
			continue
		}
		r[k] = v
	}
	return r
}
