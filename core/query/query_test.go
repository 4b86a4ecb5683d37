package query_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/trainingops/core"
	"github.com/trezcool/trainingops/core/query"
	"github.com/trezcool/trainingops/core/training"
	inmemdb "github.com/trezcool/trainingops/storage/database/inmem"
	"github.com/trezcool/trainingops/tests"
)

func setup(t *testing.T) (*inmemdb.DB, query.Backend) {
	db := testutil.SeedTraining(t)
	return db, inmemdb.NewBackend(db)
}

func TestQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		q       query.Query
		wantErr string
	}{
		{name: "ok", q: query.From("profiles", query.Eq("full_name", "Ann Smith")).Select("id", "name")},
		{name: "missing table", q: query.From(""), wantErr: `invalid query on "": table is required`},
		{name: "bad table", q: query.From("profiles; drop"), wantErr: `invalid query on "profiles; drop": table must be a plain SQL identifier`},
		{name: "bad column", q: query.From("profiles").Select("id", "x y"), wantErr: "must be a plain SQL identifier"},
		{name: "bad filter op", q: query.From("profiles", query.Filter{Column: "name", Op: "like"}), wantErr: "must be one of eq, neq, is-null, not-null"},
		{name: "bad filter column", q: query.From("profiles", query.Eq("", "x")), wantErr: "is required"},
		{name: "bad ordering", q: query.From("profiles").OrderBy(core.DBOrdering{Field: "1x"}), wantErr: `bad ordering column "1x"`},
		{name: "negative limit", q: query.From("profiles").Take(-1), wantErr: "invalid query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var argErr *core.ArgumentError
			require.ErrorAs(t, err, &argErr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestQuery_WhereDoesNotAlias(t *testing.T) {
	base := query.From("profiles", query.Eq("name", "Ann"))
	a := base.Where(query.NotNull("full_name"))
	b := base.Where(query.IsNull("full_name"))

	assert.Len(t, base.Filters, 1)
	assert.Equal(t, query.OpNotNull, a.Filters[1].Op)
	assert.Equal(t, query.OpIsNull, b.Filters[1].Op)
}

func TestRun(t *testing.T) {
	_, backend := setup(t)
	ctx := context.Background()

	t.Run("count only returns no rows", func(t *testing.T) {
		res, err := query.Run(ctx, backend, query.From(training.TableRecords).CountOnly())
		require.NoError(t, err)
		assert.True(t, res.Head)
		assert.Equal(t, testutil.RecordsTotal, res.Count)
		assert.Nil(t, res.Rows)
	})

	t.Run("count matches rows returned", func(t *testing.T) {
		filters := []query.Filter{query.Eq(training.ColCompletedAtLocationID, testutil.LocationNorth)}
		res, err := query.Run(ctx, backend, query.From(training.TableRecords, filters...))
		require.NoError(t, err)
		cnt, err := query.Count(ctx, backend, training.TableRecords, filters...)
		require.NoError(t, err)
		assert.Equal(t, cnt, len(res.Rows))
		assert.Equal(t, testutil.RecordsNorth, res.Count)
	})

	t.Run("projection", func(t *testing.T) {
		res, err := query.Run(ctx, backend, query.From(training.TableProfiles).Select("id"))
		require.NoError(t, err)
		require.Len(t, res.Rows, 2)
		for _, row := range res.Rows {
			assert.Equal(t, []string{"id"}, keys(row))
		}
	})

	t.Run("limit and order", func(t *testing.T) {
		res, err := query.Run(ctx, backend, query.From(training.TableRecords).
			OrderBy(core.DBOrdering{Field: training.ColCompletionDate, Ascending: true}).
			Take(2))
		require.NoError(t, err)
		require.Len(t, res.Rows, 2)
		assert.Equal(t, "r3", res.Rows[0]["id"])
		assert.Equal(t, "r1", res.Rows[1]["id"])
	})

	t.Run("empty result is not nil", func(t *testing.T) {
		res, err := query.Run(ctx, backend, query.From(training.TableProfiles, query.Eq("name", "Nobody")))
		require.NoError(t, err)
		assert.NotNil(t, res.Rows)
		assert.Empty(t, res.Rows)
	})

	t.Run("invalid query never reaches the backend", func(t *testing.T) {
		_, err := query.Run(ctx, failingBackend{}, query.From(""))
		var argErr *core.ArgumentError
		assert.ErrorAs(t, err, &argErr)
	})

	t.Run("backend failure is a query error", func(t *testing.T) {
		_, err := query.Run(ctx, backend, query.From("no_such_table"))
		var qErr *core.QueryError
		require.ErrorAs(t, err, &qErr)
		assert.Equal(t, query.OpSelect, qErr.Op)
		assert.Equal(t, "no_such_table", qErr.Table)
		assert.EqualError(t, err, `query failed: select no_such_table: relation "no_such_table" does not exist`)
	})
}

func TestNullFilters(t *testing.T) {
	_, backend := setup(t)
	ctx := context.Background()

	isNull, err := query.Count(ctx, backend, training.TableRecords, query.IsNull(training.ColCompletedAtLocationID))
	require.NoError(t, err)
	notNull, err := query.Count(ctx, backend, training.TableRecords, query.NotNull(training.ColCompletedAtLocationID))
	require.NoError(t, err)
	assert.Equal(t, testutil.RecordsUnassigned, isNull)
	assert.Equal(t, testutil.RecordsTotal, isNull+notNull)

	// neq never matches null
	neq, err := query.Count(ctx, backend, training.TableRecords, query.Neq(training.ColCompletedAtLocationID, testutil.LocationNorth))
	require.NoError(t, err)
	assert.Equal(t, testutil.RecordsSouth, neq)
}

func TestCountOrNil(t *testing.T) {
	db, backend := setup(t)
	ctx := context.Background()

	cnt, err := query.CountOrNil(ctx, backend, query.From(training.TableRecords))
	require.NoError(t, err)
	require.NotNil(t, cnt)
	assert.Equal(t, testutil.RecordsTotal, *cnt)

	db.FailOn(training.TableRecords, "", nil, errors.New("permission denied for table staff_training_matrix"))
	cnt, err = query.CountOrNil(ctx, backend, query.From(training.TableRecords))
	assert.Nil(t, cnt)
	assert.True(t, core.IsQueryError(err))
}

func TestDeleteAll(t *testing.T) {
	_, backend := setup(t)
	ctx := context.Background()

	n, err := query.DeleteAll(ctx, backend, training.TableRecords, query.IDColumn)
	require.NoError(t, err)
	assert.EqualValues(t, testutil.RecordsTotal, n)

	remaining, err := query.Count(ctx, backend, training.TableRecords)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	// other tables are untouched
	locs, err := query.Count(ctx, backend, training.TableLocations)
	require.NoError(t, err)
	assert.Equal(t, 2, locs)

	// deleting from an empty table is fine
	n, err = query.DeleteAll(ctx, backend, training.TableRecords, query.IDColumn)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteAll_BadKey(t *testing.T) {
	_, backend := setup(t)

	_, err := query.DeleteAll(context.Background(), backend, training.TableRecords, "id; --")
	var argErr *core.ArgumentError
	assert.ErrorAs(t, err, &argErr)
}

func TestDeleteAll_Failure(t *testing.T) {
	db, backend := setup(t)
	db.FailOn(training.TableCourses, "", nil, errors.New("new row violates row-level security policy"))

	_, err := query.DeleteAll(context.Background(), backend, training.TableCourses, query.IDColumn)
	var qErr *core.QueryError
	require.ErrorAs(t, err, &qErr)
	assert.Equal(t, query.OpDelete, qErr.Op)
}

func TestColumns(t *testing.T) {
	rows := []query.Row{{"b": 1, "a": 2}, {"c": nil}}
	assert.Equal(t, []string{"a", "b", "c"}, query.Columns(rows, nil))
	assert.Equal(t, []string{"c", "a"}, query.Columns(rows, []string{"c", "a"}))
	assert.Nil(t, query.Columns(nil, nil))
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "", query.ValueString(nil))
	assert.Equal(t, "2024-01-15", query.ValueString(testutil.Date(2024, 1, 15)))
	assert.Equal(t, "2024-01-15T10:30:00Z", query.ValueString(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)))
	assert.Equal(t, "12", query.ValueString(12))
	assert.Equal(t, "abc", query.ValueString([]byte("abc")))
}

type failingBackend struct{}

func (failingBackend) Select(context.Context, query.Query) ([]query.Row, error) {
	return nil, errors.New("unexpected call")
}

func (failingBackend) Count(context.Context, query.Query) (int, error) {
	return 0, errors.New("unexpected call")
}

func (failingBackend) Delete(context.Context, query.Query) (int64, error) {
	return 0, errors.New("unexpected call")
}

func keys(row query.Row) []string {
	ks := make([]string, 0, len(row))
	for k := range row {
		ks = append(ks, k)
	}
	return ks
}
