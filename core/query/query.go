// Package query is the one reusable shape of the toolkit: given a table, a list of
// equality/null filters and an optional projection/limit, issue exactly one request to
// the backend and hand back either a row count or a row set.
package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/trainingops/core"
)

const (
	OpSelect = "select"
	OpCount  = "count"
	OpDelete = "delete"

	// IDColumn is the primary key of entity tables.
	IDColumn = "id"
)

// AllRowsSentinel is compared with `<key> neq` to express "every row" to a backend that refuses
// unfiltered deletes. No row ever carries the nil UUID.
var AllRowsSentinel = uuid.Nil.String()

type (
	// Row maps column name to value; its shape is defined by the remote schema.
	Row map[string]interface{}

	Query struct {
		Table   string            `name:"table" validate:"required,ident"`
		Filters []Filter          `name:"filters" validate:"dive"`
		Columns []string          `name:"columns" validate:"dive,ident"`
		Order   []core.DBOrdering `name:"-"`
		Limit   int               `name:"limit" validate:"gte=0"` // 0 means no limit
		Head    bool              `name:"-"`                      // count-only
	}

	Result struct {
		Head  bool
		Count int
		Rows  []Row
	}

	// Backend is the remote tabular data service.
	Backend interface {
		Select(ctx context.Context, q Query) ([]Row, error)
		Count(ctx context.Context, q Query) (int, error)
		Delete(ctx context.Context, q Query) (int64, error)
	}
)

// From starts a query on table.
func From(table string, filters ...Filter) Query {
	return Query{Table: table, Filters: filters}
}

func (q Query) Where(filters ...Filter) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), filters...)
	return q
}

func (q Query) Select(cols ...string) Query {
	q.Columns = cols
	return q
}

func (q Query) OrderBy(orderings ...core.DBOrdering) Query {
	q.Order = orderings
	return q
}

func (q Query) Take(limit int) Query {
	q.Limit = limit
	return q
}

func (q Query) CountOnly() Query {
	q.Head = true
	return q
}

func (q Query) Validate() error {
	if err := core.Validate.Struct(q); err != nil {
		msg := err.Error()
		if vErrs, ok := err.(validator.ValidationErrors); ok && len(vErrs) > 0 {
			msg = vErrs[0].Translate(core.Translator)
		}
		return core.NewArgumentError("invalid query on %q: %s", q.Table, msg)
	}
	for _, ord := range q.Order {
		if !core.IsIdent(ord.Field) {
			return core.NewArgumentError("invalid query on %q: bad ordering column %q", q.Table, ord.Field)
		}
	}
	return nil
}

// Run issues one request: a count when q.Head is set, a select otherwise.
// Backend failures come back as *core.QueryError.
func Run(ctx context.Context, backend Backend, q Query) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{}, err
	}

	if q.Head {
		cnt, err := backend.Count(ctx, q)
		if err != nil {
			return Result{}, asQueryError(OpCount, q.Table, err)
		}
		return Result{Head: true, Count: cnt}, nil
	}

	rows, err := backend.Select(ctx, q)
	if err != nil {
		return Result{}, asQueryError(OpSelect, q.Table, err)
	}
	if rows == nil {
		rows = []Row{}
	}
	return Result{Count: len(rows), Rows: rows}, nil
}

// Count is Run in count-only mode.
func Count(ctx context.Context, backend Backend, table string, filters ...Filter) (int, error) {
	res, err := Run(ctx, backend, From(table, filters...).CountOnly())
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

// CountOrNil counts and defaults to an absent count on failure.
func CountOrNil(ctx context.Context, backend Backend, q Query) (*int, error) {
	res, err := Run(ctx, backend, q.CountOnly())
	if err != nil {
		return nil, err
	}
	cnt := res.Count
	return &cnt, nil
}

// DeleteAll removes every row of table, matching them through `key neq AllRowsSentinel`.
// key must be a non-null column of the table. There is no transaction, no dry-run and no undo.
func DeleteAll(ctx context.Context, backend Backend, table, key string) (int64, error) {
	q := From(table, Neq(key, AllRowsSentinel))
	if err := q.Validate(); err != nil {
		return 0, err
	}
	n, err := backend.Delete(ctx, q)
	if err != nil {
		return 0, asQueryError(OpDelete, table, err)
	}
	return n, nil
}

func asQueryError(op, table string, err error) error {
	if core.IsQueryError(err) {
		return err
	}
	return core.NewQueryError(op, table, errors.Cause(err))
}

// Columns returns the column names of rows: the projection when given, else the sorted union of keys.
func Columns(rows []Row, projection []string) []string {
	if len(projection) > 0 {
		return projection
	}
	seen := make(map[string]bool)
	var cols []string
	for _, row := range rows {
		for col := range row {
			if !seen[col] {
				seen[col] = true
				cols = append(cols, col)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// valueString renders a filter value the way it is compared and printed.
func valueString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprint(v)
}

// ValueString is exported for backends and printers that compare or render values as text.
func ValueString(v interface{}) string { return valueString(v) }
