package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sidingops/rakeserial/internal/actor"
	"github.com/sidingops/rakeserial/internal/api"
	"github.com/sidingops/rakeserial/internal/services"
)

// defaultReassignmentWindow is used when since_seconds is absent.
const defaultReassignmentWindow = 10 * time.Minute

// APIHandler handles the rake endpoints used by the siding clients
type APIHandler struct {
	sessions *services.SessionService
	drafts   *services.DraftService
	split    *services.SplitService
	dispatch *services.DispatchService
	workflow *services.WorkflowService
	logger   *zap.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(sessions *services.SessionService, drafts *services.DraftService, split *services.SplitService, dispatch *services.DispatchService, workflow *services.WorkflowService, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		sessions: sessions,
		drafts:   drafts,
		split:    split,
		dispatch: dispatch,
		workflow: workflow,
		logger:   logger.Named("api"),
	}
}

// SetupRoutes sets up all API routes
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	// Sessions and drafts
	mux.HandleFunc("POST /api/rakes", h.handleCreateRake)
	mux.HandleFunc("GET /api/rakes/{serial}", h.handleGetRake)
	mux.HandleFunc("POST /api/rakes/{serial}/draft", h.handleSaveDraft)
	mux.HandleFunc("GET /api/rakes/{serial}/activity", h.handleActivity)

	// Splitting
	mux.HandleFunc("GET /api/rakes/{serial}/split-status", h.handleSplitStatus)
	mux.HandleFunc("POST /api/rakes/{serial}/split/unique", h.requireReviewer(h.handleSplitUnique))
	mux.HandleFunc("POST /api/rakes/{serial}/split/shared", h.requireReviewer(h.handleSplitShared))
	mux.HandleFunc("GET /api/rakes/reassignments", h.handleReassignments)

	// Dispatch
	mux.HandleFunc("GET /api/rakes/{serial}/dispatch", h.handleGetDispatch)
	mux.HandleFunc("POST /api/rakes/{serial}/dispatch", h.handleSaveDispatch)

	// Review workflow
	mux.HandleFunc("POST /api/rakes/{serial}/submit", h.handleSubmit)
	mux.HandleFunc("POST /api/rakes/{serial}/revoke", h.handleRevoke)
	mux.HandleFunc("POST /api/rakes/{serial}/review/assign", h.requireReviewer(h.handleAssign))
	mux.HandleFunc("POST /api/rakes/{serial}/review/approve", h.requireReviewer(h.handleApprove))
	mux.HandleFunc("POST /api/rakes/{serial}/review/reject", h.requireReviewer(h.handleReject))
	mux.HandleFunc("POST /api/rakes/{serial}/review/cancel", h.requireReviewer(h.handleCancel))
}

// requireReviewer rejects callers that are not reviewers.
func (h *APIHandler) requireReviewer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who := actor.FromContext(r.Context())
		if !who.IsReviewer() {
			h.logger.Info("reviewer route rejected",
				zap.String("user", who.Name()),
				zap.String("path", r.URL.Path))
			api.RespondErrorWithCode(w, http.StatusForbidden, api.CodeForbidden, "reviewer role required")
			return
		}
		next(w, r)
	}
}

// pathSerial reads the {serial} segment, writing the error response itself
// when it is malformed.
func pathSerial(w http.ResponseWriter, r *http.Request) (string, bool) {
	s, err := api.PathSerial(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return "", false
	}
	return s, true
}

// decodeAndValidate decodes the request body into dst and validates it,
// writing the error response itself on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := api.DecodeJSON(r, dst); err != nil {
		api.RespondErrorWithCode(w, http.StatusBadRequest, api.CodeBadRequest, err.Error())
		return false
	}
	if errs := api.Validate(dst); errs != nil {
		api.RespondValidationError(w, errs)
		return false
	}
	return true
}
