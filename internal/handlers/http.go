package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sidingops/rakeserial/internal/api"
	"github.com/sidingops/rakeserial/internal/middleware"
	"github.com/sidingops/rakeserial/internal/services"
)

// HTTPHandler serves the health check and the bag-count webhook.
type HTTPHandler struct {
	db     *gorm.DB
	bags   *services.BagCountService
	apiKey *middleware.APIKeyMiddleware
	logger *zap.Logger
}

// NewHTTPHandler creates a new HTTP handler. apiKey guards the webhook; nil
// leaves it open.
func NewHTTPHandler(db *gorm.DB, bags *services.BagCountService, apiKey *middleware.APIKeyMiddleware, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{db: db, bags: bags, apiKey: apiKey, logger: logger.Named("http")}
}

// SetupRoutes configures all HTTP routes
func (h *HTTPHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)

	var webhook http.Handler = http.HandlerFunc(h.handleBagCounts)
	if h.apiKey != nil {
		webhook = h.apiKey.Wrap(webhook)
	}
	mux.Handle("POST /webhook/bag-counts", webhook)
}

// handleHealth reports whether the database answers.
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{Status: "ok", Database: "ok"}
	if err := h.ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		resp.Status, resp.Database = "degraded", "unreachable"
		api.RespondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	api.RespondJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) ping(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// handleBagCounts handles POST /webhook/bag-counts. Each reading is applied on
// its own; failures are reported per index and do not stop the batch.
func (h *HTTPHandler) handleBagCounts(w http.ResponseWriter, r *http.Request) {
	var req api.BagCountBatch
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondErrorWithCode(w, http.StatusBadRequest, api.CodeBadRequest, err.Error())
		return
	}
	if errs := api.Validate(req); errs != nil {
		api.RespondValidationError(w, errs)
		return
	}

	resp := api.BagCountResponse{Failed: []api.BagCountFailure{}}
	for i, reading := range req.Readings {
		if _, err := h.bags.Record(r.Context(), reading); err != nil {
			_, code := api.StatusFor(err)
			if code == api.CodeInternal {
				h.logger.Error("bag count failed",
					zap.String("serial", reading.Serial),
					zap.Int("tower_position", reading.TowerPosition),
					zap.Error(err))
				api.RespondServiceError(w, err)
				return
			}
			resp.Failed = append(resp.Failed, api.BagCountFailure{Index: i, Code: code, Error: err.Error()})
			continue
		}
		resp.Recorded++
	}

	status := http.StatusOK
	if resp.Recorded == 0 && len(resp.Failed) > 0 {
		status = http.StatusUnprocessableEntity
	}
	api.RespondJSON(w, status, resp)
}
