package training_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/trainingops/core"
	"github.com/trezcool/trainingops/core/query"
	"github.com/trezcool/trainingops/core/training"
	inmemdb "github.com/trezcool/trainingops/storage/database/inmem"
	"github.com/trezcool/trainingops/tests"
)

func setup(t *testing.T) (*training.Service, *inmemdb.DB, *bytes.Buffer) {
	var logs bytes.Buffer
	db := testutil.SeedTraining(t)
	svc := training.NewService(inmemdb.NewBackend(db), testutil.NewLogger(&logs))
	return svc, db, &logs
}

func TestService_CountsAreNonNegative(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	db.FailOn(training.TableProfiles, "", nil, errors.New("permission denied for table profiles"))

	for _, table := range training.Tables {
		cnt, err := query.CountOrNil(ctx, svc.Backend(), query.From(table))
		if table == training.TableProfiles {
			assert.Nil(t, cnt, table)
			assert.True(t, core.IsQueryError(err), table)
			continue
		}
		require.NoError(t, err, table)
		require.NotNil(t, cnt, table)
		assert.GreaterOrEqual(t, *cnt, 0, table)
	}
}

func TestService_CountRecords(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	n, err := svc.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, testutil.RecordsTotal, n)

	n, err = svc.CountRecords(ctx, query.Eq(training.ColStaffID, testutil.StaffAnn))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestService_Locations(t *testing.T) {
	svc, _, _ := setup(t)

	locs, err := svc.Locations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []training.Location{
		{ID: testutil.LocationNorth, Name: "North Clinic"},
		{ID: testutil.LocationSouth, Name: "South Clinic"},
	}, locs)
}

func TestService_CountByLocation(t *testing.T) {
	svc, _, _ := setup(t)

	b, err := svc.CountByLocation(context.Background())
	require.NoError(t, err)

	require.Len(t, b.Locations, 2)
	assert.Equal(t, "North Clinic", b.Locations[0].Location.Name)
	assert.Equal(t, testutil.RecordsNorth, *b.Locations[0].Count)
	assert.Equal(t, testutil.RecordsSouth, *b.Locations[1].Count)
	assert.Equal(t, testutil.RecordsUnassigned, *b.Unassigned)
	assert.Equal(t, testutil.RecordsTotal, *b.Total)
	assert.Equal(t, testutil.RecordsNorth+testutil.RecordsSouth, b.Sum())
	assert.Empty(t, b.Failed())
	assert.True(t, b.Consistent())
}

func TestService_CountByLocation_Partition(t *testing.T) {
	var logs bytes.Buffer
	db := testutil.OpenDB(t)
	db.Insert(training.TableLocations,
		query.Row{"id": "a", "name": "A"},
		query.Row{"id": "b", "name": "B"},
		query.Row{"id": "c", "name": "C"},
	)
	for _, loc := range []string{"a", "a", "b", "c", "c", "c"} {
		db.Insert(training.TableRecords, query.Row{"completed_at_location_id": loc})
	}
	svc := training.NewService(inmemdb.NewBackend(db), testutil.NewLogger(&logs))

	b, err := svc.CountByLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, *b.Total, b.Sum())
	assert.Zero(t, *b.Unassigned)
	assert.True(t, b.Consistent())
}

func TestService_CountByLocation_UnknownLocation(t *testing.T) {
	svc, db, _ := setup(t)
	db.Insert(training.TableRecords, query.Row{"completed_at_location_id": "deleted-location"})

	b, err := svc.CountByLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testutil.RecordsTotal+1, *b.Total)
	assert.False(t, b.Consistent())
}

func TestService_CountByLocation_FailedLocation(t *testing.T) {
	svc, db, logs := setup(t)
	db.FailOn(training.TableRecords, training.ColCompletedAtLocationID, testutil.LocationNorth,
		errors.New("canceling statement due to statement timeout"))

	b, err := svc.CountByLocation(context.Background())
	require.NoError(t, err)

	require.Len(t, b.Locations, 2)
	north, south := b.Locations[0], b.Locations[1]
	assert.Nil(t, north.Count)
	assert.True(t, core.IsQueryError(north.Err))
	// the loop carries on past the failure
	require.NotNil(t, south.Count)
	assert.Equal(t, testutil.RecordsSouth, *south.Count)

	assert.Len(t, b.Failed(), 1)
	assert.False(t, b.Consistent())
	assert.Contains(t, logs.String(), "counting records for location")
	assert.Contains(t, logs.String(), "statement timeout")
}

func TestService_CountByLocation_Deterministic(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	first, err := svc.CountByLocation(ctx)
	require.NoError(t, err)
	second, err := svc.CountByLocation(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("CountByLocation() mismatch (-first +second):\n%s", diff)
	}
}

func TestService_SampleRecords(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	rows, err := svc.SampleRecords(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = svc.SampleRecords(ctx, 0, query.IsNull(training.ColCompletedAtLocationID))
	require.NoError(t, err)
	assert.Len(t, rows, testutil.RecordsUnassigned)
}

func TestService_MissingExpiry(t *testing.T) {
	svc, _, _ := setup(t)

	items, err := svc.MissingExpiry(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, items, testutil.RecordsNoExpiry)

	for _, item := range items {
		assert.True(t, item.Record.CompletionDate.Valid, item.Record.ID)
		assert.False(t, item.Record.ExpiryDate.Valid, item.Record.ID)
	}

	// oldest completion first
	assert.Equal(t, "r3", items[0].Record.ID)
	assert.Equal(t, "Fire safety", items[0].Course.Name)
	assert.Equal(t, testutil.Date(2024, 6, 30), items[0].ExpectedExpiry)

	assert.Equal(t, "r4", items[1].Record.ID)
	assert.True(t, items[1].ExpectedExpiry.IsZero())
	assert.Nil(t, items[1].Row()["expected_expiry"])

	assert.Equal(t, "r2", items[2].Record.ID)
	assert.Equal(t, testutil.Date(2027, 3, 1), items[2].ExpectedExpiry)
	assert.Equal(t, query.Row{
		"id":              "r2",
		"staff_id":        testutil.StaffAnn,
		"course_id":       testutil.CourseManual,
		"completion_date": "2024-03-01",
		"expiry_months":   36,
		"expected_expiry": "2027-03-01",
	}, items[2].Row())

	limited, err := svc.MissingExpiry(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestService_MissingExpiry_UnknownCourse(t *testing.T) {
	svc, db, _ := setup(t)
	db.Insert(training.TableRecords, query.Row{
		"id":              "r6",
		"course_id":       "gone",
		"completion_date": testutil.Date(2020, 1, 1),
	})

	items, err := svc.MissingExpiry(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "r6", items[0].Record.ID)
	assert.Nil(t, items[0].Course)
}

func TestService_FindStaff(t *testing.T) {
	svc, db, logs := setup(t)
	ctx := context.Background()
	db.Insert(training.TableProfiles, query.Row{"id": "carol", "name": "Carol"})

	tests := []struct {
		name    string
		in      string
		wantIDs []string
		wantErr bool
	}{
		{name: "by full name", in: "Ann Smith", wantIDs: []string{testutil.StaffAnn}},
		{name: "trims input", in: "  Ann Smith ", wantIDs: []string{testutil.StaffAnn}},
		{name: "falls back to name", in: "Bob", wantIDs: []string{testutil.StaffBob}},
		{name: "name only profile", in: "Carol", wantIDs: []string{"carol"}},
		{name: "not found", in: "Nobody", wantIDs: []string{}},
		{name: "empty", in: " ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles, err := svc.FindStaff(ctx, tt.in)
			if tt.wantErr {
				var argErr *core.ArgumentError
				assert.ErrorAs(t, err, &argErr)
				return
			}
			require.NoError(t, err)
			ids := make([]string, 0, len(profiles))
			for _, p := range profiles {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}

	t.Run("schema without full name", func(t *testing.T) {
		db.FailOn(training.TableProfiles, training.ColFullName, "Carol", errors.New(`column "full_name" does not exist`))
		profiles, err := svc.FindStaff(ctx, "Carol")
		require.NoError(t, err)
		require.Len(t, profiles, 1)
		assert.Equal(t, "Carol", profiles[0].DisplayName())
		assert.Contains(t, logs.String(), "looking up profile by full name")
	})
}

func TestService_LocationCourses(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	details, err := svc.LocationCourses(ctx, testutil.LocationNorth)
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, "Fire safety", details[0].Course.Name)
	assert.Equal(t, query.Row{
		"location_id":   testutil.LocationNorth,
		"course_id":     testutil.CourseManual,
		"course_name":   "Manual handling",
		"expiry_months": 36,
	}, details[1].Row())

	details, err = svc.LocationCourses(ctx, "elsewhere")
	require.NoError(t, err)
	assert.Empty(t, details)

	_, err = svc.LocationCourses(ctx, "")
	var argErr *core.ArgumentError
	assert.ErrorAs(t, err, &argErr)
}

func TestService_Purge(t *testing.T) {
	svc, _, logs := setup(t)
	ctx := context.Background()

	res, err := svc.Purge(ctx, training.TableRecords)
	require.NoError(t, err)
	assert.EqualValues(t, testutil.RecordsTotal, res.Deleted)
	assert.Zero(t, res.Remaining)
	assert.True(t, res.Verified())
	assert.Contains(t, logs.String(), "purged table")

	// emptying an empty table
	res, err = svc.Purge(ctx, training.TableRecords)
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)
	assert.True(t, res.Verified())

	n, err := svc.CountRecords(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type deleteRecorder struct {
	query.Backend
	deletes []query.Query
}

func (r *deleteRecorder) Delete(ctx context.Context, q query.Query) (int64, error) {
	r.deletes = append(r.deletes, q)
	return r.Backend.Delete(ctx, q)
}

func TestService_Purge_KeyColumn(t *testing.T) {
	db := testutil.SeedTraining(t)
	backend := &deleteRecorder{Backend: inmemdb.NewBackend(db)}
	svc := training.NewService(backend, testutil.NewLogger(&bytes.Buffer{}))
	ctx := context.Background()

	res, err := svc.Purge(ctx, training.TableLocationCourses)
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Deleted)
	assert.True(t, res.Verified())

	_, err = svc.Purge(ctx, training.TableCourses)
	require.NoError(t, err)

	require.Len(t, backend.deletes, 2)
	assert.Equal(t, []query.Filter{query.Neq(training.ColLocationID, query.AllRowsSentinel)}, backend.deletes[0].Filters)
	assert.Equal(t, []query.Filter{query.Neq(training.ColID, query.AllRowsSentinel)}, backend.deletes[1].Filters)
}

func TestService_Purge_UnknownTable(t *testing.T) {
	svc, _, _ := setup(t)

	_, err := svc.Purge(context.Background(), "users")
	assert.Equal(t, training.ErrUnknownTable, pkgerrors.Cause(err))
}

func TestService_Purge_Failure(t *testing.T) {
	svc, db, _ := setup(t)
	db.FailOn(training.TableCourses, "", nil, errors.New("permission denied for table courses"))

	res, err := svc.Purge(context.Background(), training.TableCourses)
	assert.True(t, core.IsQueryError(err))
	assert.Zero(t, res.Deleted)
}

func TestService_Verify(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	got, err := svc.Verify(ctx, training.TableRecords, testutil.RecordsTotal)
	require.NoError(t, err)
	assert.Equal(t, testutil.RecordsTotal, got)

	got, err = svc.Verify(ctx, training.TableRecords, 0, query.IsNull(training.ColCompletionDate))
	assert.Equal(t, 1, got)
	assert.Equal(t, training.ErrVerifyMismatch, pkgerrors.Cause(err))
	assert.EqualError(t, err, "staff_training_matrix: got 1, want 0: row count does not match")
}
