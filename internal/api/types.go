package api

import (
	"time"

	"github.com/sidingops/rakeserial/internal/database"
	"github.com/sidingops/rakeserial/internal/serial"
	"github.com/sidingops/rakeserial/internal/services"
)

// ========== Rake Types ==========

// RakeResponse is a loading session with its headers and wagons.
type RakeResponse struct {
	Serial     string                  `json:"serial"`
	PathSerial string                  `json:"path_serial"`
	WagonCount int                     `json:"wagon_count"`
	Siding     string                  `json:"siding"`
	CreatedAt  time.Time               `json:"created_at"`
	Headers    []database.IndentHeader `json:"headers"`
	Wagons     []database.WagonRow     `json:"wagons"`
}

// CreateRakeResponse is returned once, on creation, and carries the session token.
type CreateRakeResponse struct {
	RakeResponse
	Token string `json:"token"`
}

// SplitUniqueRequest is the optional body of POST /api/rakes/{serial}/split/unique.
type SplitUniqueRequest struct {
	IndentNumbers []string `json:"indent_numbers" validate:"omitempty,dive,max=64"`
}

// ReviewRequest is the optional body of the reject and cancel review steps.
type ReviewRequest struct {
	Remarks string `json:"remarks" validate:"max=1000"`
}

// ReassignmentsResponse lists indents moved to new serials.
type ReassignmentsResponse struct {
	SinceSeconds int                     `json:"since_seconds"`
	Items        []services.Reassignment `json:"items"`
}

// BagCountBatch is the body of POST /webhook/bag-counts.
type BagCountBatch struct {
	Readings []services.BagCountUpdate `json:"readings" validate:"required,min=1,max=500,dive"`
}

// BagCountFailure names a reading of a batch that was not applied.
type BagCountFailure struct {
	Index int    `json:"index"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// BagCountResponse summarises a bag-count batch.
type BagCountResponse struct {
	Recorded int               `json:"recorded"`
	Failed   []BagCountFailure `json:"failed"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// ========== Pagination Types ==========

// PaginationMeta contains pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// PaginatedResponse wraps a list response with pagination metadata.
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

// RakeToResponse converts a session view to its API form.
func RakeToResponse(v services.SessionView) RakeResponse {
	headers, wagons := v.Headers, v.Wagons
	if headers == nil {
		headers = []database.IndentHeader{}
	}
	if wagons == nil {
		wagons = []database.WagonRow{}
	}
	return RakeResponse{
		Serial:     v.Session.Serial,
		PathSerial: serial.EncodePath(v.Session.Serial),
		WagonCount: v.Session.WagonCount,
		Siding:     v.Session.Siding,
		CreatedAt:  v.Session.CreatedAt,
		Headers:    headers,
		Wagons:     wagons,
	}
}
