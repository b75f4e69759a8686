package testhelpers

import (
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sidingops/rakeserial/internal/database"
)

func TestHTTPTestContext_NewAndExecute(t *testing.T) {
	ctx := NewHTTPTestContext(t, http.MethodGet, "/test", nil)

	if ctx.Recorder == nil || ctx.Request == nil {
		t.Fatal("recorder and request should be set")
	}
	if ctx.Request.Method != http.MethodGet {
		t.Errorf("expected method GET, got %s", ctx.Request.Method)
	}

	ctx.Execute(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "ok")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"serial":"2025-26/02/001"}`))
	}))
	ctx.AssertStatus(http.StatusTeapot).
		AssertHeader("X-Test", "ok").
		AssertBodyContains("2025-26/02/001")
}

func TestHTTPTestContext_WithJSONBodyKeepsHeaders(t *testing.T) {
	ctx := NewHTTPTestContext(t, http.MethodPost, "/api/rakes", nil).
		WithReviewer("asha").
		WithJSONBody(map[string]int{"wagon_count": 3})

	if got := ctx.Request.Header.Get("X-Reviewer-Username"); got != "asha" {
		t.Errorf("reviewer header lost, got %q", got)
	}
	if got := ctx.Request.Header.Get("X-User-Role"); got != "REVIEWER" {
		t.Errorf("role header lost, got %q", got)
	}
	if got := ctx.Request.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("expected JSON content type, got %q", got)
	}
}

func TestHTTPTestContext_WithBearerToken(t *testing.T) {
	ctx := NewHTTPTestContext(t, http.MethodGet, "/test", nil).WithBearerToken("my-token")
	if got := ctx.Request.Header.Get("Authorization"); got != "Bearer my-token" {
		t.Errorf("expected bearer header, got %q", got)
	}
}

func TestHTTPTestContext_DecodeJSON(t *testing.T) {
	ctx := NewHTTPTestContext(t, http.MethodGet, "/test", nil)
	ctx.Execute(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"wagons":3}`))
	}))

	var out struct {
		Wagons int `json:"wagons"`
	}
	ctx.DecodeJSON(&out)
	if out.Wagons != 3 {
		t.Errorf("expected 3 wagons, got %d", out.Wagons)
	}
}

func TestSetupTestDB_MigratesSchema(t *testing.T) {
	db := SetupTestDB(t)
	for _, model := range []interface{}{
		&database.LoadingSession{}, &database.IndentHeader{}, &database.WagonRow{},
		&database.DispatchRow{}, &database.SerialCounter{}, &database.SplitJob{},
		&database.SplitStep{}, &database.ActivityEntry{},
	} {
		if !db.Migrator().HasTable(model) {
			t.Errorf("table for %T not migrated", model)
		}
	}
}

func TestFixedClock(t *testing.T) {
	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	clock := FixedClock(at)
	if !clock().Equal(at) || !clock().Equal(at) {
		t.Error("fixed clock should always report the same time")
	}
}

func TestMustCompleteWithin(t *testing.T) {
	ran := false
	MustCompleteWithin(t, time.Second, func() { ran = true })
	if !ran {
		t.Error("function should have run")
	}
}

func TestConcurrentTest(t *testing.T) {
	var calls atomic.Int32
	ConcurrentTest(t, 8, func(int) { calls.Add(1) })
	if calls.Load() != 8 {
		t.Errorf("expected 8 calls, got %d", calls.Load())
	}
}
