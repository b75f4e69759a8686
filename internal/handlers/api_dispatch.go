package handlers

import (
	"net/http"

	"github.com/sidingops/rakeserial/internal/actor"
	"github.com/sidingops/rakeserial/internal/api"
	"github.com/sidingops/rakeserial/internal/services"
)

// handleGetDispatch handles GET /api/rakes/{serial}/dispatch[?indent_number=X]
func (h *APIHandler) handleGetDispatch(w http.ResponseWriter, r *http.Request) {
	rakeSerial, ok := pathSerial(w, r)
	if !ok {
		return
	}
	row, err := h.dispatch.Get(r.Context(), rakeSerial, api.QueryScope(r))
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, row)
}

// handleSaveDispatch handles POST /api/rakes/{serial}/dispatch[?indent_number=X].
// The rake loading window is always derived from the wagons.
func (h *APIHandler) handleSaveDispatch(w http.ResponseWriter, r *http.Request) {
	rakeSerial, ok := pathSerial(w, r)
	if !ok {
		return
	}
	var draft services.DispatchDraft
	if !decodeAndValidate(w, r, &draft) {
		return
	}
	row, err := h.dispatch.SaveDraft(r.Context(), rakeSerial, api.QueryScope(r), draft, actor.FromContext(r.Context()))
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, row)
}
