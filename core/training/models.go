package training

import (
	"strconv"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/trainingops/core/query"
)

// Tables owned by the backend service.
const (
	TableRecords         = "staff_training_matrix"
	TableLocations       = "locations"
	TableProfiles        = "profiles"
	TableCourses         = "courses"
	TableLocationCourses = "location_courses"
)

// Columns used by the reports.
const (
	ColID                    = "id"
	ColName                  = "name"
	ColFullName              = "full_name"
	ColStaffID               = "staff_id"
	ColCourseID              = "course_id"
	ColLocationID            = "location_id"
	ColCompletedAtLocationID = "completed_at_location_id"
	ColCompletionDate        = "completion_date"
	ColExpiryDate            = "expiry_date"
	ColExpiryMonths          = "expiry_months"
)

// Tables lists every table the toolkit knows about.
var Tables = []string{TableRecords, TableLocations, TableProfiles, TableCourses, TableLocationCourses}

// KeyColumn names a non-null column of table, used to match every row on purge.
// location_courses is an association without an id.
func KeyColumn(table string) string {
	if table == TableLocationCourses {
		return ColLocationID
	}
	return ColID
}

func IsKnownTable(name string) bool {
	for _, t := range Tables {
		if t == name {
			return true
		}
	}
	return false
}

type Location struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type TrainingRecord struct {
	ID                    string      `json:"id" yaml:"id"`
	StaffID               string      `json:"staff_id" yaml:"staff_id"`
	CourseID              string      `json:"course_id" yaml:"course_id"`
	CompletedAtLocationID null.String `json:"completed_at_location_id" yaml:"completed_at_location_id"` // weak reference to Location
	CompletionDate        null.Time   `json:"completion_date" yaml:"completion_date"`
	ExpiryDate            null.Time   `json:"expiry_date" yaml:"expiry_date"`
}

type Course struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	ExpiryMonths null.Int `json:"expiry_months" yaml:"expiry_months"`
}

type Profile struct {
	ID       string `json:"id" yaml:"id"`
	FullName string `json:"full_name" yaml:"full_name"`
	Name     string `json:"name" yaml:"name"`
}

// DisplayName prefers the full name.
func (p Profile) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Name
}

type LocationCourse struct {
	LocationID string `json:"location_id" yaml:"location_id"`
	CourseID   string `json:"course_id" yaml:"course_id"`
}

func locationFromRow(row query.Row) Location {
	return Location{
		ID:   rowString(row, ColID),
		Name: rowString(row, ColName),
	}
}

func recordFromRow(row query.Row) TrainingRecord {
	return TrainingRecord{
		ID:                    rowString(row, ColID),
		StaffID:               rowString(row, ColStaffID),
		CourseID:              rowString(row, ColCourseID),
		CompletedAtLocationID: rowNullString(row, ColCompletedAtLocationID),
		CompletionDate:        rowNullTime(row, ColCompletionDate),
		ExpiryDate:            rowNullTime(row, ColExpiryDate),
	}
}

func courseFromRow(row query.Row) Course {
	return Course{
		ID:           rowString(row, ColID),
		Name:         rowString(row, ColName),
		ExpiryMonths: rowNullInt(row, ColExpiryMonths),
	}
}

func profileFromRow(row query.Row) Profile {
	return Profile{
		ID:       rowString(row, ColID),
		FullName: rowString(row, ColFullName),
		Name:     rowString(row, ColName),
	}
}

func locationCourseFromRow(row query.Row) LocationCourse {
	return LocationCourse{
		LocationID: rowString(row, ColLocationID),
		CourseID:   rowString(row, ColCourseID),
	}
}

func rowString(row query.Row, col string) string {
	return query.ValueString(row[col])
}

func rowNullString(row query.Row, col string) null.String {
	if row[col] == nil {
		return null.String{}
	}
	return null.StringFrom(rowString(row, col))
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

func rowNullTime(row query.Row, col string) null.Time {
	switch v := row[col].(type) {
	case time.Time:
		return null.TimeFrom(v)
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return null.TimeFrom(t)
			}
		}
	}
	return null.Time{}
}

func rowNullInt(row query.Row, col string) null.Int {
	switch v := row[col].(type) {
	case int:
		return null.IntFrom(v)
	case int32:
		return null.IntFrom(int(v))
	case int64:
		return null.IntFrom(int(v))
	case float64:
		return null.IntFrom(int(v))
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return null.IntFrom(n)
		}
	}
	return null.Int{}
}
