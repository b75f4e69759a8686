package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/sidingops/rakeserial/internal/actor"
	"github.com/sidingops/rakeserial/internal/api"
	"github.com/sidingops/rakeserial/internal/services"
)

// handleCreateRake handles POST /api/rakes
func (h *APIHandler) handleCreateRake(w http.ResponseWriter, r *http.Request) {
	var req services.CreateSessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	view, err := h.sessions.Create(r.Context(), req, actor.FromContext(r.Context()))
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, api.CreateRakeResponse{
		RakeResponse: api.RakeToResponse(*view),
		Token:        view.Session.Token,
	})
}

// handleGetRake handles GET /api/rakes/{serial}
func (h *APIHandler) handleGetRake(w http.ResponseWriter, r *http.Request) {
	rakeSerial, ok := pathSerial(w, r)
	if !ok {
		return
	}
	view, err := h.sessions.Get(r.Context(), rakeSerial)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.RakeToResponse(*view))
}

// handleSaveDraft handles POST /api/rakes/{serial}/draft[?indent_number=X].
// When recovery reassigned serials the payload is not applied and the
// response carries split_changed so the client can reload.
func (h *APIHandler) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	rakeSerial, ok := pathSerial(w, r)
	if !ok {
		return
	}
	var req services.DraftRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	who := actor.FromContext(r.Context())
	result, err := h.drafts.SaveDraft(r.Context(), rakeSerial, api.QueryScope(r), req, who)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	if result.SplitChanged {
		h.logger.Info("draft save skipped after recovery",
			zap.String("serial", rakeSerial),
			zap.String("by", who.Name()))
	}
	api.RespondJSON(w, http.StatusOK, result)
}

// handleActivity handles GET /api/rakes/{serial}/activity
func (h *APIHandler) handleActivity(w http.ResponseWriter, r *http.Request) {
	rakeSerial, ok := pathSerial(w, r)
	if !ok {
		return
	}
	entries, err := h.sessions.Activity(r.Context(), rakeSerial)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.Paginate(entries, api.ParsePagination(r)))
}
