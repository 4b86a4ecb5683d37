package inmemdb

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/trainingops/core/query"
)

type (
	DB struct {
		mutex  sync.RWMutex
		tables map[string]*table
		faults []fault
	}

	table struct {
		rows    []query.Row // insertion order
		keyless bool        // association tables have no id column
	}

	fault struct {
		table  string
		column string
		value  string
		err    error
	}
)

func Open() (*DB, error) {
	db := &DB{
		tables: make(map[string]*table),
	}
	return db, nil
}

// CreateTable registers an empty table; inserting into an unknown table creates it too.
func (db *DB) CreateTable(names ...string) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for _, name := range names {
		if _, ok := db.tables[name]; !ok {
			db.tables[name] = &table{}
		}
	}
}

// CreateKeylessTable registers association tables: Insert leaves their rows without an id.
func (db *DB) CreateKeylessTable(names ...string) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for _, name := range names {
		if tbl, ok := db.tables[name]; ok {
			tbl.keyless = true
			continue
		}
		db.tables[name] = &table{keyless: true}
	}
}

// Insert copies rows into table, assigning a random UUID id to rows without one unless the table is keyless.
func (db *DB) Insert(name string, rows ...query.Row) []query.Row {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	tbl, ok := db.tables[name]
	if !ok {
		tbl = &table{}
		db.tables[name] = tbl
	}
	inserted := make([]query.Row, 0, len(rows))
	for _, row := range rows {
		r := copyRow(row, nil)
		if !tbl.keyless && r[query.IDColumn] == nil {
			r[query.IDColumn] = uuid.New().String()
		}
		tbl.rows = append(tbl.rows, r)
		inserted = append(inserted, copyRow(r, nil))
	}
	return inserted
}

// Tables lists table names in sorted order.
func (db *DB) Tables() []string {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FailOn makes every request against table whose filters contain `column eq value` fail with err.
// An empty column fails every request against the table.
func (db *DB) FailOn(table, column string, value interface{}, err error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.faults = append(db.faults, fault{table: table, column: column, value: query.ValueString(value), err: err})
}

func (db *DB) fault(q query.Query) error {
	for _, f := range db.faults {
		if f.table != q.Table {
			continue
		}
		if f.column == "" {
			return f.err
		}
		for _, flt := range q.Filters {
			if flt.Op == query.OpEq && flt.Column == f.column && query.ValueString(flt.Value) == f.value {
				return f.err
			}
		}
	}
	return nil
}

func copyRow(row query.Row, cols []string) query.Row {
	if len(cols) == 0 {
		r := make(query.Row, len(row))
		for k, v := range row {
			r[k] = v
		}
		return r
	}
	r := make(query.Row, len(cols))
	for _, col := range cols {
		r[col] = row[col]
	}
	return r
}
