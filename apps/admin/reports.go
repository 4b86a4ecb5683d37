package main

import (
	"context"

	"github.com/trezcool/trainingops/core"
	"github.com/trezcool/trainingops/core/query"
	"github.com/trezcool/trainingops/core/training"
	reportsvc "github.com/trezcool/trainingops/services/report"
)

func (cli *commandLine) count(ctx context.Context, svc *training.Service, p *reportsvc.Printer, table string, filters []query.Filter) error {
	n, err := query.Count(ctx, svc.Backend(), table, filters...)
	if err != nil {
		p.Error(err)
		return err
	}
	label := table
	if len(filters) > 0 {
		fs := query.Filters(filters)
		label += " where " + fs.String()
	}
	return p.Count(label, n)
}

func (cli *commandLine) list(ctx context.Context, svc *training.Service, p *reportsvc.Printer, q query.Query) error {
	res, err := query.Run(ctx, svc.Backend(), q)
	if err != nil {
		p.Error(err)
		return err
	}
	return p.Rows(res.Rows, q.Columns)
}

func (cli *commandLine) breakdown(ctx context.Context, svc *training.Service, p *reportsvc.Printer) error {
	b, err := svc.CountByLocation(ctx)
	if err != nil {
		p.Error(err)
		return err
	}
	return p.Breakdown(b)
}

func (cli *commandLine) sample(ctx context.Context, svc *training.Service, p *reportsvc.Printer, limit int) error {
	rows, err := svc.SampleRecords(ctx, limit)
	if err != nil {
		p.Error(err)
		return err
	}
	return p.Rows(rows, nil)
}

var missingExpiryColumns = []string{"id", "staff_id", "course_id", "completion_date", "expiry_months", "expected_expiry"}

func (cli *commandLine) missingExpiry(ctx context.Context, svc *training.Service, p *reportsvc.Printer, limit int) error {
	items, err := svc.MissingExpiry(ctx, limit)
	if err != nil {
		p.Error(err)
		return err
	}
	rows := make([]query.Row, 0, len(items))
	for _, item := range items {
		rows = append(rows, item.Row())
	}
	return p.Rows(rows, missingExpiryColumns)
}

func (cli *commandLine) staff(ctx context.Context, svc *training.Service, p *reportsvc.Printer, name string) error {
	profiles, err := svc.FindStaff(ctx, name)
	if err != nil {
		p.Error(err)
		return err
	}
	rows := make([]query.Row, 0, len(profiles))
	for _, prof := range profiles {
		rows = append(rows, query.Row{"id": prof.ID, "full_name": prof.FullName, "name": prof.Name})
	}
	return p.Rows(rows, []string{"id", "full_name", "name"})
}

var locationCourseColumns = []string{"location_id", "course_id", "course_name", "expiry_months"}

func (cli *commandLine) locationCourses(ctx context.Context, svc *training.Service, p *reportsvc.Printer, locationID string) error {
	details, err := svc.LocationCourses(ctx, locationID)
	if err != nil {
		p.Error(err)
		return err
	}
	rows := make([]query.Row, 0, len(details))
	for _, d := range details {
		rows = append(rows, d.Row())
	}
	return p.Rows(rows, locationCourseColumns)
}

func (cli *commandLine) purge(ctx context.Context, svc *training.Service, p *reportsvc.Printer, table string) error {
	res, err := svc.Purge(ctx, table)
	if err != nil {
		p.Error(err)
		return err
	}
	p.Line("deleted %d rows from %s", res.Deleted, table)
	if err = p.Count(table+" remaining", res.Remaining); err != nil {
		return err
	}
	if !res.Verified() {
		err = training.ErrVerifyMismatch
		p.Error(err)
		return err
	}
	return nil
}

func (cli *commandLine) verify(ctx context.Context, svc *training.Service, p *reportsvc.Printer, table string, want int, filters []query.Filter) error {
	got, err := svc.Verify(ctx, table, want, filters...)
	if err != nil {
		if !core.IsQueryError(err) {
			_ = p.Count(table, got)
		}
		p.Error(err)
		return err
	}
	return p.Count(table, got)
}
