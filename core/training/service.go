package training

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/trainingops/core"
	"github.com/trezcool/trainingops/core/query"
)

var (
	// errors
	ErrVerifyMismatch = errors.New("row count does not match")
	ErrUnknownTable   = errors.New("unknown table")
)

type (
	// LocationCount is one line of a per-location breakdown; Count is nil when the request failed.
	LocationCount struct {
		Location Location
		Count    *int
		Err      error
	}

	Breakdown struct {
		Locations  []LocationCount
		Total      *int // unfiltered
		Unassigned *int // completed_at_location_id is null
	}

	MissingExpiry struct {
		Record         TrainingRecord
		Course         *Course // nil when the course row is missing
		ExpectedExpiry time.Time
	}

	LocationCourseDetail struct {
		LocationCourse
		Course *Course
	}

	PurgeResult struct {
		Table     string
		Deleted   int64
		Remaining int
	}

	Service struct {
		backend query.Backend
		logger  core.Logger
	}
)

func NewService(backend query.Backend, logger core.Logger) *Service {
	return &Service{backend: backend, logger: logger}
}

// Sum adds up the per-location counts that succeeded.
func (b Breakdown) Sum() int {
	var sum int
	for _, lc := range b.Locations {
		if lc.Count != nil {
			sum += *lc.Count
		}
	}
	return sum
}

// Failed lists the locations whose count could not be fetched.
func (b Breakdown) Failed() []LocationCount {
	var failed []LocationCount
	for _, lc := range b.Locations {
		if lc.Count == nil {
			failed = append(failed, lc)
		}
	}
	return failed
}

// Consistent reports whether the per-location counts plus the unassigned rows account for the total.
// Rows pointing at unknown locations, or failed counts, make it false.
func (b Breakdown) Consistent() bool {
	if b.Total == nil || len(b.Failed()) > 0 {
		return false
	}
	unassigned := 0
	if b.Unassigned != nil {
		unassigned = *b.Unassigned
	}
	return b.Sum()+unassigned == *b.Total
}

func (p PurgeResult) Verified() bool { return p.Remaining == 0 }

// Row flattens the report line for printing.
func (m MissingExpiry) Row() query.Row {
	row := query.Row{
		"id":              m.Record.ID,
		"staff_id":        m.Record.StaffID,
		"course_id":       m.Record.CourseID,
		"completion_date": m.Record.CompletionDate.Time.Format("2006-01-02"),
		"expiry_months":   nil,
		"expected_expiry": nil,
	}
	if m.Course != nil && m.Course.ExpiryMonths.Valid {
		row["expiry_months"] = m.Course.ExpiryMonths.Int
		row["expected_expiry"] = m.ExpectedExpiry.Format("2006-01-02")
	}
	return row
}

func (d LocationCourseDetail) Row() query.Row {
	row := query.Row{
		"location_id":   d.LocationID,
		"course_id":     d.CourseID,
		"course_name":   nil,
		"expiry_months": nil,
	}
	if d.Course != nil {
		row["course_name"] = d.Course.Name
		if d.Course.ExpiryMonths.Valid {
			row["expiry_months"] = d.Course.ExpiryMonths.Int
		}
	}
	return row
}

func (svc *Service) Backend() query.Backend { return svc.backend }

// CountRecords counts training records matching filters.
func (svc *Service) CountRecords(ctx context.Context, filters ...query.Filter) (int, error) {
	return query.Count(ctx, svc.backend, TableRecords, filters...)
}

// Locations lists every location ordered by name.
func (svc *Service) Locations(ctx context.Context) ([]Location, error) {
	res, err := query.Run(ctx, svc.backend,
		query.From(TableLocations).
			Select(ColID, ColName).
			OrderBy(core.DBOrdering{Field: ColName, Ascending: true}))
	if err != nil {
		return nil, err
	}
	locs := make([]Location, 0, len(res.Rows))
	for _, row := range res.Rows {
		locs = append(locs, locationFromRow(row))
	}
	return locs, nil
}

// CountByLocation counts training records per location, one request per location, in order.
// A failed location is logged and left with a nil count; the loop carries on.
func (svc *Service) CountByLocation(ctx context.Context) (Breakdown, error) {
	locs, err := svc.Locations(ctx)
	if err != nil {
		return Breakdown{}, err
	}

	var b Breakdown
	for _, loc := range locs {
		cnt, err := query.CountOrNil(ctx, svc.backend,
			query.From(TableRecords, query.Eq(ColCompletedAtLocationID, loc.ID)))
		if err != nil {
			svc.logger.Error("counting records for location", err, map[string]interface{}{
				"location_id":   loc.ID,
				"location_name": loc.Name,
			})
		}
		b.Locations = append(b.Locations, LocationCount{Location: loc, Count: cnt, Err: err})
	}

	if b.Total, err = query.CountOrNil(ctx, svc.backend, query.From(TableRecords)); err != nil {
		svc.logger.Error("counting all records", err)
	}
	if b.Unassigned, err = query.CountOrNil(ctx, svc.backend,
		query.From(TableRecords, query.IsNull(ColCompletedAtLocationID))); err != nil {
		svc.logger.Error("counting unassigned records", err)
	}
	return b, nil
}

// SampleRecords returns up to limit raw training records.
func (svc *Service) SampleRecords(ctx context.Context, limit int, filters ...query.Filter) ([]query.Row, error) {
	res, err := query.Run(ctx, svc.backend, query.From(TableRecords, filters...).Take(limit))
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// Courses returns every course keyed by id.
func (svc *Service) Courses(ctx context.Context) (map[string]Course, error) {
	res, err := query.Run(ctx, svc.backend, query.From(TableCourses))
	if err != nil {
		return nil, err
	}
	courses := make(map[string]Course, len(res.Rows))
	for _, row := range res.Rows {
		c := courseFromRow(row)
		courses[c.ID] = c
	}
	return courses, nil
}

// MissingExpiry lists completed records that have no expiry date, with the expiry their course implies.
func (svc *Service) MissingExpiry(ctx context.Context, limit int) ([]MissingExpiry, error) {
	res, err := query.Run(ctx, svc.backend,
		query.From(TableRecords,
			query.NotNull(ColCompletionDate),
			query.IsNull(ColExpiryDate),
		).OrderBy(core.DBOrdering{Field: ColCompletionDate, Ascending: true}).Take(limit))
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return []MissingExpiry{}, nil
	}

	courses, err := svc.Courses(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]MissingExpiry, 0, len(res.Rows))
	for _, row := range res.Rows {
		rec := recordFromRow(row)
		item := MissingExpiry{Record: rec}
		if c, ok := courses[rec.CourseID]; ok {
			item.Course = &c
			if c.ExpiryMonths.Valid && rec.CompletionDate.Valid {
				item.ExpectedExpiry = rec.CompletionDate.Time.AddDate(0, c.ExpiryMonths.Int, 0)
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// FindStaff looks a profile up by exact full name, then by name.
func (svc *Service) FindStaff(ctx context.Context, name string) ([]Profile, error) {
	name = core.CleanString(name)
	if name == "" {
		return nil, core.NewArgumentError("staff name is required")
	}

	var profiles []Profile
	for _, col := range []string{ColFullName, ColName} {
		res, err := query.Run(ctx, svc.backend, query.From(TableProfiles, query.Eq(col, name)))
		if err != nil {
			if core.IsQueryError(err) && col == ColFullName {
				// schemas with only a name column
				svc.logger.Warn("looking up profile by full name", err)
				continue
			}
			return nil, err
		}
		for _, row := range res.Rows {
			profiles = append(profiles, profileFromRow(row))
		}
		if len(profiles) > 0 {
			break
		}
	}
	if profiles == nil {
		profiles = []Profile{}
	}
	return profiles, nil
}

// LocationCourses lists the courses assigned to a location.
func (svc *Service) LocationCourses(ctx context.Context, locationID string) ([]LocationCourseDetail, error) {
	locationID = core.CleanString(locationID)
	if locationID == "" {
		return nil, core.NewArgumentError("location id is required")
	}
	res, err := query.Run(ctx, svc.backend,
		query.From(TableLocationCourses, query.Eq(ColLocationID, locationID)))
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return []LocationCourseDetail{}, nil
	}

	courses, err := svc.Courses(ctx)
	if err != nil {
		return nil, err
	}
	details := make([]LocationCourseDetail, 0, len(res.Rows))
	for _, row := range res.Rows {
		d := LocationCourseDetail{LocationCourse: locationCourseFromRow(row)}
		if c, ok := courses[d.CourseID]; ok {
			d.Course = &c
		}
		details = append(details, d)
	}
	return details, nil
}

// Purge deletes every row of table, then counts what is left. Irreversible.
// The backend must be bound to the service-role credential.
func (svc *Service) Purge(ctx context.Context, table string) (PurgeResult, error) {
	if !IsKnownTable(table) {
		return PurgeResult{}, errors.Wrap(ErrUnknownTable, table)
	}
	res := PurgeResult{Table: table}

	deleted, err := query.DeleteAll(ctx, svc.backend, table, KeyColumn(table))
	if err != nil {
		return res, err
	}
	res.Deleted = deleted
	svc.logger.Info("purged table", map[string]interface{}{"table": table, "deleted": deleted})

	if res.Remaining, err = query.Count(ctx, svc.backend, table); err != nil {
		return res, err
	}
	if !res.Verified() {
		svc.logger.Warn("rows left after purge", map[string]interface{}{"table": table, "remaining": res.Remaining})
	}
	return res, nil
}

// Verify counts table rows matching filters and checks the count against want.
func (svc *Service) Verify(ctx context.Context, table string, want int, filters ...query.Filter) (int, error) {
	got, err := query.Count(ctx, svc.backend, table, filters...)
	if err != nil {
		return 0, err
	}
	if got != want {
		return got, errors.Wrapf(ErrVerifyMismatch, "%s: got %d, want %d", table, got, want)
	}
	return got, nil
}
