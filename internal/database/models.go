package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sidingops/rakeserial/internal/serial"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// HeaderStatus is the workflow state of an indent header.
type HeaderStatus string

const (
	StatusDraft             HeaderStatus = "DRAFT"
	StatusLoadingInProgress HeaderStatus = "LOADING_IN_PROGRESS"
	StatusPendingApproval   HeaderStatus = "PENDING_APPROVAL"
	StatusApproved          HeaderStatus = "APPROVED"
	StatusRejected          HeaderStatus = "REJECTED"
	StatusCancelled         HeaderStatus = "CANCELLED"
)

// InFlight reports whether a draft save must keep this status instead of resetting to DRAFT.
func (s HeaderStatus) InFlight() bool {
	return s == StatusLoadingInProgress || s == StatusPendingApproval
}

// LoadingSession is the root record for one physical loading event.
// Only Serial changes after creation.
type LoadingSession struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Token      string    `gorm:"uniqueIndex;size:32;not null" json:"-"`
	Serial     string    `gorm:"uniqueIndex;size:32;not null" json:"serial"`
	WagonCount int       `gorm:"not null" json:"wagon_count"`
	Siding     string    `gorm:"size:128" json:"siding"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (LoadingSession) TableName() string {
	return "loading_sessions"
}

// IndentHeader is the per-indent (or parent) summary row of a serial.
// A NULL IndentNumber marks the unsplit parent.
type IndentHeader struct {
	ID                      uint         `gorm:"primaryKey" json:"id"`
	Serial                  string       `gorm:"size:32;not null;uniqueIndex:idx_indent_headers_serial_indent" json:"serial"`
	IndentNumber            *string      `gorm:"size:64;uniqueIndex:idx_indent_headers_serial_indent" json:"indent_number"`
	CustomerID              *uint        `json:"customer_id"`
	Commodity               string       `gorm:"size:128" json:"commodity"`
	Destination             string       `gorm:"size:128" json:"destination"`
	Status                  HeaderStatus `gorm:"size:32;not null" json:"status"`
	SingleIndent            bool         `json:"single_indent"`
	HLOnly                  bool         `gorm:"column:hl_only" json:"hl_only"`
	MultipleIndentConfirmed bool         `json:"multiple_indent_confirmed"`
	HasSequentialSerials    bool         `json:"has_sequential_serials"`
	AssignedReviewer        string       `gorm:"size:128" json:"assigned_reviewer"`
	Siding                  string       `gorm:"size:128" json:"siding"`
	CreatedAt               time.Time    `json:"created_at"`
	UpdatedAt               time.Time    `json:"updated_at"`
}

func (IndentHeader) TableName() string {
	return "indent_headers"
}

// Scope returns the indent scope of the header.
func (h IndentHeader) Scope() serial.Scope {
	return serial.FromPtr(h.IndentNumber)
}

// WagonRow is one wagon position of a serial. Operator columns are written by
// draft saves; bag counts and loading times only by the counting integration.
type WagonRow struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	Serial        string  `gorm:"size:32;not null;index:idx_wagon_rows_identity" json:"serial"`
	TowerPosition int     `gorm:"not null;index:idx_wagon_rows_identity" json:"tower_position"`
	IndentNumber  *string `gorm:"size:64;index:idx_wagon_rows_identity" json:"indent_number"`

	WagonNumber     string `gorm:"size:64" json:"wagon_number"`
	WagonType       string `gorm:"size:64" json:"wagon_type"`
	CCWeight        string `gorm:"column:cc_weight;size:32" json:"cc_weight"`
	SickBox         bool   `json:"sick_box"`
	TargetBagCount  int    `json:"target_bag_count"`
	SealNumber      string `gorm:"size:128" json:"seal_number"`
	StoppageMinutes int    `json:"stoppage_minutes"`
	Remarks         string `gorm:"type:text" json:"remarks"`
	LoadingComplete bool   `json:"loading_complete"`
	Commodity       string `gorm:"size:128" json:"commodity"`
	Destination     string `gorm:"size:128" json:"destination"`
	CustomerID      *uint  `json:"customer_id"`

	LoadedBagCount   int        `json:"loaded_bag_count"`
	UnloadedBagCount int        `json:"unloaded_bag_count"`
	LoadingStart     *time.Time `json:"loading_start"`
	LoadingEnd       *time.Time `json:"loading_end"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WagonRow) TableName() string {
	return "wagon_rows"
}

// Scope returns the indent scope of the wagon.
func (w WagonRow) Scope() serial.Scope {
	return serial.FromPtr(w.IndentNumber)
}

// Dispatch row statuses.
const (
	DispatchStatusDraft     = "DRAFT"
	DispatchStatusSubmitted = "SUBMITTED"
)

// DispatchRow holds dispatch facts for a serial or one of its indents.
// RakeLoadingStart and RakeLoadingEnd are derived from wagon rows on every read and save.
type DispatchRow struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	Serial       string  `gorm:"size:32;not null;uniqueIndex:idx_dispatch_rows_serial_indent" json:"serial"`
	IndentNumber *string `gorm:"size:64;uniqueIndex:idx_dispatch_rows_serial_indent" json:"indent_number"`

	Source              string     `gorm:"size:128" json:"source"`
	Siding              string     `gorm:"size:128" json:"siding"`
	IndentWagonCount    int        `json:"indent_wagon_count"`
	VesselName          string     `gorm:"size:128" json:"vessel_name"`
	RakeType            string     `gorm:"size:64" json:"rake_type"`
	Status              string     `gorm:"size:32" json:"status"`
	RakePlacementAt     *time.Time `json:"rake_placement_at"`
	RakeClearanceAt     *time.Time `json:"rake_clearance_at"`
	RakeIdleTime        string     `gorm:"size:32" json:"rake_idle_time"`
	LoadingStartRailway *time.Time `json:"loading_start_railway"`
	LoadingEndRailway   *time.Time `json:"loading_end_railway"`
	DoorClosingAt       *time.Time `json:"door_closing_at"`
	HaulOutAt           *time.Time `json:"haul_out_at"`
	RailwayOfficer      string     `gorm:"size:128" json:"railway_officer"`
	SidingOfficer       string     `gorm:"size:128" json:"siding_officer"`
	Remarks             string     `gorm:"type:text" json:"remarks"`
	RRNumber            string     `gorm:"column:rr_number;size:64" json:"rr_number"`
	SubmittedBy         string     `gorm:"size:128" json:"submitted_by"`
	SubmittedAt         *time.Time `json:"submitted_at"`

	RakeLoadingStart *time.Time `json:"rake_loading_start"`
	RakeLoadingEnd   *time.Time `json:"rake_loading_end"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DispatchRow) TableName() string {
	return "dispatch_rows"
}

// CloneFor copies the dispatch facts to a new serial and scope.
func (d DispatchRow) CloneFor(newSerial string, scope serial.Scope) DispatchRow {
	clone := d
	clone.ID = 0
	clone.Serial = newSerial
	clone.IndentNumber = scope.Ptr()
	clone.CreatedAt = time.Time{}
	clone.UpdatedAt = time.Time{}
	return clone
}

// SerialCounter is the claimed high-water mark for one fiscal year and month.
type SerialCounter struct {
	FiscalYear   string    `gorm:"primaryKey;size:7" json:"fiscal_year"`
	Month        int       `gorm:"primaryKey;autoIncrement:false" json:"month"`
	LastSequence int       `gorm:"not null" json:"last_sequence"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (SerialCounter) TableName() string {
	return "serial_counters"
}

// SplitMode selects how indents of a serial are separated.
type SplitMode string

const (
	// SplitUnique gives every indent its own serial.
	SplitUnique SplitMode = "unique"
	// SplitShared keeps one serial across all indents.
	SplitShared SplitMode = "shared"
)

// SplitJobStatus tracks a persisted split plan.
type SplitJobStatus string

const (
	SplitJobInProgress SplitJobStatus = "in_progress"
	SplitJobCompleted  SplitJobStatus = "completed"
)

// SplitJob is the persisted plan for splitting one serial. ActiveKey holds the
// original serial while the job runs; its unique index allows one active job per serial.
type SplitJob struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	OriginalSerial string         `gorm:"size:32;not null;index" json:"original_serial"`
	Mode           SplitMode      `gorm:"size:16;not null" json:"mode"`
	Status         SplitJobStatus `gorm:"size:16;not null;index" json:"status"`
	ActiveKey      *string        `gorm:"size:32;uniqueIndex" json:"-"`
	FirstStarter   string         `gorm:"size:64" json:"first_starter"`
	RequestedBy    string         `gorm:"size:128" json:"requested_by"`
	Steps          []SplitStep    `gorm:"foreignKey:JobID" json:"steps,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    *time.Time     `json:"completed_at"`
}

func (SplitJob) TableName() string {
	return "split_jobs"
}

// Pending returns the steps that have not finished migrating.
func (j SplitJob) Pending() []SplitStep {
	var pending []SplitStep
	for _, st := range j.Steps {
		if !st.Done {
			pending = append(pending, st)
		}
	}
	return pending
}

// Reassigned maps every indent of the job to its serial.
func (j SplitJob) Reassigned() map[string]string {
	out := make(map[string]string, len(j.Steps))
	for _, st := range j.Steps {
		out[st.IndentNumber] = st.TargetSerial
	}
	return out
}

// SplitStep is the migration of one indent. Done is the completion marker
// that gates retirement of the parent header.
type SplitStep struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	JobID        uint       `gorm:"not null;index" json:"job_id"`
	IndentNumber string     `gorm:"size:64;not null" json:"indent_number"`
	SourceSerial string     `gorm:"size:32;not null" json:"source_serial"`
	TargetSerial string     `gorm:"size:32;not null;index" json:"target_serial"`
	Position     int        `json:"position"`
	Done         bool       `json:"done"`
	CompletedAt  *time.Time `json:"completed_at"`
}

func (SplitStep) TableName() string {
	return "split_steps"
}

// Moves reports whether the step changes the serial of its indent.
func (s SplitStep) Moves() bool {
	return s.SourceSerial != s.TargetSerial
}

// ErrActivityImmutable is returned when code tries to change a logged activity.
var ErrActivityImmutable = errors.New("activity entries are append-only")
