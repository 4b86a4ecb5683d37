package inmemdb

import (
	"context"
	"fmt"
	"sort"

	"github.com/trezcool/trainingops/core/query"
)

// Backend serves query.Backend requests from a DB with the same semantics as the SQL backend:
// a null column never compares equal or unequal to a value, eq/neq against nil mean is null/is not null,
// filters are ANDed and nulls sort last in both directions.
type Backend struct {
	db *DB
}

var _ query.Backend = (*Backend)(nil) // interface compliance check

func NewBackend(db *DB) *Backend {
	return &Backend{db: db}
}

func (b *Backend) lookup(q query.Query) (*table, error) {
	if err := b.db.fault(q); err != nil {
		return nil, err
	}
	tbl, ok := b.db.tables[q.Table]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", q.Table)
	}
	return tbl, nil
}

func (b *Backend) Select(ctx context.Context, q query.Query) ([]query.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.db.mutex.RLock()
	defer b.db.mutex.RUnlock()

	tbl, err := b.lookup(q)
	if err != nil {
		return nil, err
	}

	matched := make([]query.Row, 0)
	for _, row := range tbl.rows {
		if matchAll(row, q.Filters) {
			matched = append(matched, row)
		}
	}
	if len(q.Order) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, ord := range q.Order {
				vi, vj := matched[i][ord.Field], matched[j][ord.Field]
				if c := compare(vi, vj); c != 0 {
					// nulls last in both directions
					if vi == nil || vj == nil {
						return vj == nil
					}
					if ord.Ascending {
						return c < 0
					}
					return c > 0
				}
			}
			return false
		})
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	rows := make([]query.Row, 0, len(matched))
	for _, row := range matched {
		rows = append(rows, copyRow(row, q.Columns))
	}
	return rows, nil
}

func (b *Backend) Count(ctx context.Context, q query.Query) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.db.mutex.RLock()
	defer b.db.mutex.RUnlock()

	tbl, err := b.lookup(q)
	if err != nil {
		return 0, err
	}
	var cnt int
	for _, row := range tbl.rows {
		if matchAll(row, q.Filters) {
			cnt++
		}
	}
	return cnt, nil
}

func (b *Backend) Delete(ctx context.Context, q query.Query) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(q.Filters) == 0 {
		return 0, fmt.Errorf("DELETE requires a WHERE clause")
	}
	b.db.mutex.Lock()
	defer b.db.mutex.Unlock()

	tbl, err := b.lookup(q)
	if err != nil {
		return 0, err
	}
	kept := tbl.rows[:0]
	var deleted int64
	for _, row := range tbl.rows {
		if matchAll(row, q.Filters) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	tbl.rows = kept
	return deleted, nil
}

func matchAll(row query.Row, filters []query.Filter) bool {
	for _, f := range filters {
		if !match(row, f) {
			return false
		}
	}
	return true
}

func match(row query.Row, f query.Filter) bool {
	val := row[f.Column]
	switch f.Op {
	case query.OpIsNull:
		return val == nil
	case query.OpNotNull:
		return val != nil
	case query.OpEq:
		if f.Value == nil {
			return val == nil
		}
		return val != nil && query.ValueString(val) == query.ValueString(f.Value)
	case query.OpNeq:
		if f.Value == nil {
			return val != nil
		}
		return val != nil && query.ValueString(val) != query.ValueString(f.Value)
	}
	return false
}

// compare orders two values, numerically when both are numbers, else by their text.
func compare(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	sa, sb := query.ValueString(a), query.ValueString(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
