package sqlxrepos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/trainingops/core"
	"github.com/trezcool/trainingops/core/query"
)

func TestBackend_BuildSelect(t *testing.T) {
	b := NewBackend(nil, nil)

	tests := []struct {
		name     string
		q        query.Query
		contains []string
		excludes []string
		wantArgs []interface{}
	}{
		{
			name:     "select all",
			q:        query.From("locations"),
			contains: []string{`SELECT * FROM "locations"`},
			excludes: []string{"WHERE", "LIMIT"},
		},
		{
			name:     "count",
			q:        query.From("staff_training_matrix", query.Eq("completed_at_location_id", "loc-1")).CountOnly(),
			contains: []string{`SELECT COUNT(*) FROM "staff_training_matrix"`, `"completed_at_location_id" = $1`},
			wantArgs: []interface{}{"loc-1"},
		},
		{
			name:     "null filters",
			q:        query.From("staff_training_matrix", query.NotNull("completion_date"), query.IsNull("expiry_date")),
			contains: []string{`"completion_date" IS NOT NULL`, `"expiry_date" IS NULL`, " AND "},
		},
		{
			name:     "eq and neq nil",
			q:        query.From("staff_training_matrix", query.Eq("completed_at_location_id", nil), query.Neq("expiry_date", nil)),
			contains: []string{`"completed_at_location_id" IS NULL`, `"expiry_date" IS NOT NULL`},
			excludes: []string{"$1"},
		},
		{
			name:     "not equal",
			q:        query.From("courses", query.Neq("id", query.AllRowsSentinel)),
			contains: []string{`"id" != $1`},
			wantArgs: []interface{}{query.AllRowsSentinel},
		},
		{
			name: "projection, order and limit",
			q: query.From("locations").
				Select("id", "name").
				OrderBy(core.DBOrdering{Field: "name", Ascending: true}, core.DBOrdering{Field: "id"}).
				Take(5),
			contains: []string{`SELECT "id", "name" FROM "locations"`, `ORDER BY "name" ASC NULLS LAST, "id" DESC NULLS LAST`, "LIMIT"},
		},
		{
			name:     "count ignores order and limit",
			q:        query.From("locations").OrderBy(core.DBOrdering{Field: "name"}).Take(5).CountOnly(),
			contains: []string{"COUNT(*)"},
			excludes: []string{"ORDER BY", "LIMIT"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sqlQuery, args, err := b.BuildSelect(tt.q)
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, sqlQuery, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, sqlQuery, s)
			}
			if tt.wantArgs != nil {
				assert.Equal(t, tt.wantArgs, args)
			}
		})
	}
}

func TestBackend_BuildDelete(t *testing.T) {
	b := NewBackend(nil, nil)

	_, _, err := b.BuildDelete(query.From("courses"))
	assert.Equal(t, ErrUnfilteredExec, err)

	sqlQuery, args, err := b.BuildDelete(query.From("courses", query.Neq("id", query.AllRowsSentinel)))
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `DELETE FROM "courses"`)
	assert.Contains(t, sqlQuery, `"id" != $1`)
	assert.Equal(t, []interface{}{query.AllRowsSentinel}, args)
}

func TestNormalize(t *testing.T) {
	row := normalize(map[string]interface{}{"id": []byte("abc"), "n": int64(3), "x": nil})
	assert.Equal(t, query.Row{"id": "abc", "n": int64(3), "x": nil}, row)
}
