package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/sidingops/rakeserial/internal/actor"
	"github.com/sidingops/rakeserial/internal/api"
)

// handleSplitStatus handles GET /api/rakes/{serial}/split-status
func (h *APIHandler) handleSplitStatus(w http.ResponseWriter, r *http.Request) {
	rakeSerial, ok := pathSerial(w, r)
	if !ok {
		return
	}
	status, err := h.split.Status(r.Context(), rakeSerial)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, status)
}

// handleSplitUnique handles POST /api/rakes/{serial}/split/unique. The body
// is optional; listed indent numbers are added to those found on the wagons.
func (h *APIHandler) handleSplitUnique(w http.ResponseWriter, r *http.Request) {
	rakeSerial, ok := pathSerial(w, r)
	if !ok {
		return
	}
	var req api.SplitUniqueRequest
	if err := api.DecodeOptionalJSON(r, &req); err != nil {
		api.RespondErrorWithCode(w, http.StatusBadRequest, api.CodeBadRequest, err.Error())
		return
	}
	if errs := api.Validate(req); errs != nil {
		api.RespondValidationError(w, errs)
		return
	}

	who := actor.FromContext(r.Context())
	result, err := h.split.SplitUnique(r.Context(), rakeSerial, req.IndentNumbers, who)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	h.logger.Info("unique split",
		zap.String("serial", rakeSerial),
		zap.String("first_starter", result.FirstStarter),
		zap.Int("reassigned", len(result.Reassigned)),
		zap.String("by", who.Name()))
	api.RespondJSON(w, http.StatusOK, result)
}

// handleSplitShared handles POST /api/rakes/{serial}/split/shared
func (h *APIHandler) handleSplitShared(w http.ResponseWriter, r *http.Request) {
	rakeSerial, ok := pathSerial(w, r)
	if !ok {
		return
	}
	result, err := h.split.SplitShared(r.Context(), rakeSerial, actor.FromContext(r.Context()))
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, result)
}

// handleReassignments handles GET /api/rakes/reassignments?since_seconds=N
func (h *APIHandler) handleReassignments(w http.ResponseWriter, r *http.Request) {
	window := api.QuerySeconds(r, "since_seconds", defaultReassignmentWindow)
	items, err := h.split.RecentReassignments(r.Context(), window)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.ReassignmentsResponse{
		SinceSeconds: int(window.Seconds()),
		Items:        items,
	})
}
