package handlers

import (
	"context"
	"net/http"

	"github.com/sidingops/rakeserial/internal/actor"
	"github.com/sidingops/rakeserial/internal/api"
	"github.com/sidingops/rakeserial/internal/database"
	"github.com/sidingops/rakeserial/internal/serial"
)

// reviewStep is one workflow call on the header addressed by a request.
type reviewStep func(ctx context.Context, rakeSerial string, scope serial.Scope, remarks string, who actor.Actor) (*database.IndentHeader, error)

// handleReviewStep runs step on {serial}[?indent_number=X] and responds with
// the updated header. The body is optional and only carries remarks.
func (h *APIHandler) handleReviewStep(step reviewStep) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rakeSerial, ok := pathSerial(w, r)
		if !ok {
			return
		}
		var req api.ReviewRequest
		if err := api.DecodeOptionalJSON(r, &req); err != nil {
			api.RespondErrorWithCode(w, http.StatusBadRequest, api.CodeBadRequest, err.Error())
			return
		}
		if errs := api.Validate(req); errs != nil {
			api.RespondValidationError(w, errs)
			return
		}
		header, err := step(r.Context(), rakeSerial, api.QueryScope(r), req.Remarks, actor.FromContext(r.Context()))
		if err != nil {
			api.RespondServiceError(w, err)
			return
		}
		api.RespondJSON(w, http.StatusOK, header)
	}
}

// handleSubmit handles POST /api/rakes/{serial}/submit
func (h *APIHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.handleReviewStep(func(ctx context.Context, s string, scope serial.Scope, _ string, who actor.Actor) (*database.IndentHeader, error) {
		return h.workflow.Submit(ctx, s, scope, who)
	})(w, r)
}

// handleRevoke handles POST /api/rakes/{serial}/revoke
func (h *APIHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	h.handleReviewStep(func(ctx context.Context, s string, scope serial.Scope, _ string, who actor.Actor) (*database.IndentHeader, error) {
		return h.workflow.Revoke(ctx, s, scope, who)
	})(w, r)
}

// handleAssign handles POST /api/rakes/{serial}/review/assign
func (h *APIHandler) handleAssign(w http.ResponseWriter, r *http.Request) {
	h.handleReviewStep(func(ctx context.Context, s string, scope serial.Scope, _ string, who actor.Actor) (*database.IndentHeader, error) {
		return h.workflow.Assign(ctx, s, scope, who)
	})(w, r)
}

// handleApprove handles POST /api/rakes/{serial}/review/approve
func (h *APIHandler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleReviewStep(func(ctx context.Context, s string, scope serial.Scope, _ string, who actor.Actor) (*database.IndentHeader, error) {
		return h.workflow.Approve(ctx, s, scope, who)
	})(w, r)
}

// handleReject handles POST /api/rakes/{serial}/review/reject
func (h *APIHandler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.handleReviewStep(h.workflow.Reject)(w, r)
}

// handleCancel handles POST /api/rakes/{serial}/review/cancel
func (h *APIHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.handleReviewStep(h.workflow.Cancel)(w, r)
}
