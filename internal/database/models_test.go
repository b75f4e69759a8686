package database

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sidingops/rakeserial/internal/serial"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	err = db.AutoMigrate(
		&LoadingSession{},
		&IndentHeader{},
		&WagonRow{},
		&DispatchRow{},
		&ActivityEntry{},
		&SerialCounter{},
		&SplitJob{},
		&SplitStep{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"session", LoadingSession{}.TableName(), "loading_sessions"},
		{"header", IndentHeader{}.TableName(), "indent_headers"},
		{"wagon", WagonRow{}.TableName(), "wagon_rows"},
		{"dispatch", DispatchRow{}.TableName(), "dispatch_rows"},
		{"activity", ActivityEntry{}.TableName(), "activity_entries"},
		{"counter", SerialCounter{}.TableName(), "serial_counters"},
		{"job", SplitJob{}.TableName(), "split_jobs"},
		{"step", SplitStep{}.TableName(), "split_steps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("TableName() = %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

func TestJSONB_ScanAndValue(t *testing.T) {
	var j JSONB
	if err := j.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) error: %v", err)
	}
	if j == nil || len(j) != 0 {
		t.Errorf("Scan(nil) = %v, want empty map", j)
	}

	if err := j.Scan([]byte(`{"changes":2}`)); err != nil {
		t.Fatalf("Scan([]byte) error: %v", err)
	}
	if j["changes"] != float64(2) {
		t.Errorf("changes = %v, want 2", j["changes"])
	}

	if err := j.Scan(`{"field":"seal_number"}`); err != nil {
		t.Fatalf("Scan(string) error: %v", err)
	}
	if j["field"] != "seal_number" {
		t.Errorf("field = %v, want seal_number", j["field"])
	}

	if err := j.Scan(42); err == nil {
		t.Error("Scan(int) expected error")
	}

	var empty JSONB
	v, err := empty.Value()
	if err != nil || v != nil {
		t.Errorf("nil JSONB Value() = %v, %v; want nil, nil", v, err)
	}
}

func TestHeaderStatus_InFlight(t *testing.T) {
	tests := []struct {
		status   HeaderStatus
		expected bool
	}{
		{StatusDraft, false},
		{StatusLoadingInProgress, true},
		{StatusPendingApproval, true},
		{StatusApproved, false},
		{StatusRejected, false},
		{StatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.InFlight(); got != tt.expected {
				t.Errorf("InFlight() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDispatchRow_CloneFor(t *testing.T) {
	placed := time.Date(2026, 2, 3, 8, 0, 0, 0, time.UTC)
	parent := DispatchRow{
		ID:              9,
		Serial:          "2025-26/02/001",
		Source:          "Yard A",
		VesselName:      "MV Example",
		RakePlacementAt: &placed,
		RRNumber:        "RR-1",
		CreatedAt:       placed,
	}

	clone := parent.CloneFor("2025-26/02/002", serial.Indent("B"))

	if clone.ID != 0 {
		t.Errorf("clone ID = %d, want 0", clone.ID)
	}
	if clone.Serial != "2025-26/02/002" {
		t.Errorf("clone Serial = %q", clone.Serial)
	}
	if clone.IndentNumber == nil || *clone.IndentNumber != "B" {
		t.Errorf("clone IndentNumber = %v, want B", clone.IndentNumber)
	}
	if clone.VesselName != "MV Example" || clone.RRNumber != "RR-1" || clone.RakePlacementAt != &placed {
		t.Error("clone lost dispatch facts")
	}
	if !clone.CreatedAt.IsZero() {
		t.Error("clone CreatedAt should be reset")
	}
	if parent.Serial != "2025-26/02/001" || parent.IndentNumber != nil {
		t.Error("CloneFor modified the source row")
	}
}

func TestSplitJob_PendingAndReassigned(t *testing.T) {
	job := SplitJob{Steps: []SplitStep{
		{IndentNumber: "A", SourceSerial: "S1", TargetSerial: "S2", Done: true},
		{IndentNumber: "B", SourceSerial: "S1", TargetSerial: "S1"},
		{IndentNumber: "C", SourceSerial: "S1", TargetSerial: "S3"},
	}}

	pending := job.Pending()
	if len(pending) != 2 {
		t.Fatalf("Pending() len = %d, want 2", len(pending))
	}
	if pending[0].IndentNumber != "B" || pending[1].IndentNumber != "C" {
		t.Errorf("Pending() = %+v", pending)
	}

	re := job.Reassigned()
	if re["A"] != "S2" || re["B"] != "S1" || re["C"] != "S3" {
		t.Errorf("Reassigned() = %v", re)
	}

	if job.Steps[1].Moves() {
		t.Error("step keeping its serial reported as moving")
	}
	if !job.Steps[0].Moves() {
		t.Error("step changing serial reported as not moving")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"gorm duplicated key", gorm.ErrDuplicatedKey, true},
		{"wrapped gorm duplicated key", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"pg foreign key violation", &pgconn.PgError{Code: "23503"}, false},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err); got != tt.expected {
				t.Errorf("IsUniqueViolation() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsUniqueViolation_SQLite(t *testing.T) {
	db := setupTestDB(t)

	if err := db.Create(&LoadingSession{Token: "TRAIN-1", Serial: "2025-26/02/001", WagonCount: 3}).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}
	err := db.Create(&LoadingSession{Token: "TRAIN-2", Serial: "2025-26/02/001", WagonCount: 3}).Error
	if !IsUniqueViolation(err) {
		t.Errorf("duplicate serial error %v not classified as unique violation", err)
	}
}

func TestSplitJob_OneActivePerSerial(t *testing.T) {
	db := setupTestDB(t)

	key := "2025-26/02/001"
	first := SplitJob{OriginalSerial: key, Mode: SplitUnique, Status: SplitJobInProgress, ActiveKey: &key}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("create first job: %v", err)
	}

	second := SplitJob{OriginalSerial: key, Mode: SplitUnique, Status: SplitJobInProgress, ActiveKey: &key}
	if err := db.Create(&second).Error; !IsUniqueViolation(err) {
		t.Fatalf("second active job error = %v, want unique violation", err)
	}

	// finished jobs release the key
	if err := db.Model(&first).Updates(map[string]interface{}{"status": SplitJobCompleted, "active_key": nil}).Error; err != nil {
		t.Fatalf("complete first job: %v", err)
	}
	third := SplitJob{OriginalSerial: key, Mode: SplitShared, Status: SplitJobInProgress, ActiveKey: &key}
	if err := db.Create(&third).Error; err != nil {
		t.Errorf("create job after release: %v", err)
	}
}
