package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sidingops/rakeserial/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Machine-readable error codes.
const (
	CodeNotFound          = "not_found"
	CodeInvalidSerial     = "invalid_serial"
	CodeNoIndents         = "no_indents"
	CodeAlreadySplit      = "already_split"
	CodeSplitInProgress   = "split_in_progress"
	CodePartialMigration  = "partial_migration"
	CodeSequenceExhaust   = "sequence_exhausted"
	CodeInvalidTransition = "invalid_transition"
	CodeNotAssignee       = "not_assignee"
	CodeValidation        = "validation_error"
	CodeBadRequest        = "bad_request"
	CodeForbidden         = "forbidden"
	CodeInternal          = "internal_error"
)

// RespondJSON writes data as a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			zap.L().Warn("failed to encode JSON response", zap.Error(err))
		}
	}
}

// RespondError writes a standard error response.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// RespondErrorWithCode writes an error response with a machine-readable code.
func RespondErrorWithCode(w http.ResponseWriter, status int, code, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// RespondValidationError writes field-level validation errors as a 422 response.
func RespondValidationError(w http.ResponseWriter, fieldErrors map[string]string) {
	RespondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "Validation failed",
		Code:    CodeValidation,
		Details: fieldErrors,
	})
}

// serviceErrors maps engine errors to HTTP status and code, checked in order.
var serviceErrors = []struct {
	target error
	status int
	code   string
}{
	{services.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{services.ErrInvalidSerial, http.StatusBadRequest, CodeInvalidSerial},
	{services.ErrNoIndents, http.StatusBadRequest, CodeNoIndents},
	{services.ErrAlreadySplit, http.StatusConflict, CodeAlreadySplit},
	{services.ErrSplitInProgress, http.StatusConflict, CodeSplitInProgress},
	{services.ErrPartialMigration, http.StatusConflict, CodePartialMigration},
	{services.ErrSequenceExhausted, http.StatusServiceUnavailable, CodeSequenceExhaust},
	{services.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition},
	{services.ErrNotAssignee, http.StatusForbidden, CodeNotAssignee},
}

// StatusFor returns the HTTP status and error code for an engine error.
func StatusFor(err error) (int, string) {
	for _, e := range serviceErrors {
		if errors.Is(err, e.target) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// RespondServiceError writes err with the status its kind maps to. Unmapped
// errors are logged and reported without their message.
func RespondServiceError(w http.ResponseWriter, err error) {
	status, code := StatusFor(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
		RespondErrorWithCode(w, status, code, "internal error")
		return
	}
	RespondErrorWithCode(w, status, code, err.Error())
}
