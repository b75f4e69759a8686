package handlers

import (
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sidingops/rakeserial/internal/middleware"
	"github.com/sidingops/rakeserial/internal/services"
	"github.com/sidingops/rakeserial/internal/testhelpers"
)

const (
	testAPIKey = "counter-key"
	original   = "2025-26/02/001"
	// originalPath is original as it appears in a URL path.
	originalPath = "2025-26_02_001"
)

// feb2026 falls in fiscal year 2025-26, month 02.
var feb2026 = time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

type testServer struct {
	db      *gorm.DB
	hub     *EventsWSHandler
	handler http.Handler
}

// newTestServer wires every handler the way serve does, with actor headers
// trusted so tests can act as reviewers.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testhelpers.SetupTestDB(t)
	log := zap.NewNop()

	hub := NewEventsWSHandler(log)
	t.Cleanup(hub.Close)

	seq := services.NewSequencer(db, log, 0).WithClock(testhelpers.FixedClock(feb2026))
	sessions := services.NewSessionService(db, seq, log, 0)
	split := services.NewSplitService(db, seq, log, 0).WithEvents(hub)
	recovery := services.NewRecoveryService(db, split, log)
	drafts := services.NewDraftService(db, recovery, log)
	dispatch := services.NewDispatchService(db, log)
	bags := services.NewBagCountService(db, log)
	workflow := services.NewWorkflowService(db, log).WithClock(testhelpers.FixedClock(feb2026))

	apiKeys := middleware.NewAPIKeyMiddleware(middleware.APIKeyConfig{Keys: []string{testAPIKey}}, log)
	actors := middleware.NewActorMiddleware(middleware.ActorConfig{TrustHeaders: true}, log)

	mux := http.NewServeMux()
	NewHTTPHandler(db, bags, apiKeys, log).SetupRoutes(mux)
	NewAPIHandler(sessions, drafts, split, dispatch, workflow, log).SetupRoutes(mux)
	hub.SetupRoutes(mux)

	return &testServer{
		db:      db,
		hub:     hub,
		handler: middleware.RequestIDMiddleware(actors.Wrap(mux)),
	}
}

func (ts *testServer) request(t *testing.T, method, path string) *testhelpers.HTTPTestContext {
	t.Helper()
	return testhelpers.NewHTTPTestContext(t, method, path, nil)
}

// seedThreeIndents seeds a rake with indents A (loading started), B and C.
func seedThreeIndents(t *testing.T, db *gorm.DB) {
	t.Helper()
	testhelpers.NewRakeBuilder(original).
		WithWagons("A", 2, 40).
		WithWagons("B", 2, 0).
		WithWagons("C", 1, 0).
		Seed(t, db)
}
