package testutil

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/trezcool/trainingops/core"
	"github.com/trezcool/trainingops/core/query"
	"github.com/trezcool/trainingops/core/training"
	logsvc "github.com/trezcool/trainingops/services/logger"
	inmemdb "github.com/trezcool/trainingops/storage/database/inmem"
)

// Fixed ids of the seeded dataset.
const (
	LocationNorth = "6f1c2a0e-0000-4000-8000-000000000001"
	LocationSouth = "6f1c2a0e-0000-4000-8000-000000000002"

	CourseFire      = "c0a1b2c3-0000-4000-8000-000000000001" // 12 months
	CourseManual    = "c0a1b2c3-0000-4000-8000-000000000002" // 36 months
	CourseInduction = "c0a1b2c3-0000-4000-8000-000000000003" // never expires

	StaffAnn = "a11ce000-0000-4000-8000-000000000001"
	StaffBob = "b0b00000-0000-4000-8000-000000000002"
)

// Seeded counts.
const (
	RecordsTotal      = 5
	RecordsNorth      = 2
	RecordsSouth      = 1
	RecordsUnassigned = 2
	RecordsNoExpiry   = 3 // completed, without expiry date
)

// NewConfig returns a test configuration without reading the environment.
func NewConfig() *core.Config {
	return &core.Config{
		Env:      "TEST",
		Debug:    true,
		TestMode: true,
		Database: core.DatabaseConfig{Engine: "postgres", Host: "localhost", Port: 5432, Name: "postgres", User: "anon"},
		Server:   core.ServerConfig{Host: ":0", ShutdownTimeout: time.Second, RowLimit: 20},
		Report:   core.ReportConfig{Format: "text", SampleLimit: 5},
	}
}

// NewLogger returns a debug logger writing to w; nothing is forwarded to Rollbar.
func NewLogger(w io.Writer) *logsvc.RollbarLogger {
	return logsvc.NewRollbarLogger(log.New(w, "TEST : ", 0), NewConfig())
}

// Date returns midnight UTC of the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// OpenDB returns an empty in-memory database with every training table created.
func OpenDB(t *testing.T) *inmemdb.DB {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	db.CreateTable(training.Tables...)
	return db
}

// SeedTraining fills a fresh database with two locations, three courses, two staff profiles
// and five training records (two of them without a location).
func SeedTraining(t *testing.T) *inmemdb.DB {
	db := OpenDB(t)

	db.Insert(training.TableLocations,
		query.Row{"id": LocationSouth, "name": "South Clinic"},
		query.Row{"id": LocationNorth, "name": "North Clinic"},
	)
	db.Insert(training.TableCourses,
		query.Row{"id": CourseFire, "name": "Fire safety", "expiry_months": 12},
		query.Row{"id": CourseManual, "name": "Manual handling", "expiry_months": 36},
		query.Row{"id": CourseInduction, "name": "Induction", "expiry_months": nil},
	)
	db.Insert(training.TableProfiles,
		query.Row{"id": StaffAnn, "full_name": "Ann Smith", "name": "Ann"},
		query.Row{"id": StaffBob, "full_name": "Bob Jones", "name": "Bob"},
	)
	db.CreateKeylessTable(training.TableLocationCourses)
	db.Insert(training.TableLocationCourses,
		query.Row{"location_id": LocationNorth, "course_id": CourseFire},
		query.Row{"location_id": LocationNorth, "course_id": CourseManual},
		query.Row{"location_id": LocationSouth, "course_id": CourseFire},
	)
	db.Insert(training.TableRecords,
		record("r1", StaffAnn, CourseFire, LocationNorth, Date(2024, 1, 15), Date(2025, 1, 15)),
		record("r2", StaffAnn, CourseManual, LocationNorth, Date(2024, 3, 1), nil),
		record("r3", StaffBob, CourseFire, LocationSouth, Date(2023, 6, 30), nil),
		record("r4", StaffBob, CourseInduction, nil, Date(2024, 2, 10), nil),
		record("r5", StaffBob, CourseManual, nil, nil, nil),
	)
	return db
}

func record(id, staffID, courseID string, locationID, completion, expiry interface{}) query.Row {
	return query.Row{
		"id":                       id,
		"staff_id":                 staffID,
		"course_id":                courseID,
		"completed_at_location_id": locationID,
		"completion_date":          completion,
		"expiry_date":              expiry,
	}
}
