package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sidingops/rakeserial/internal/actor"
)

func captureActor(got *actor.Actor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = actor.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestActorMiddleware_BearerToken(t *testing.T) {
	m := NewActorMiddleware(ActorConfig{JWTSecret: "s3cret"}, zap.NewNop())
	token, err := m.GenerateToken("asha", "reviewer")
	require.NoError(t, err)

	var got actor.Actor
	req := httptest.NewRequest(http.MethodGet, "/api/rakes/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	m.Wrap(captureActor(&got)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, actor.Actor{Username: "asha", Role: actor.RoleReviewer}, got)
	assert.True(t, got.IsReviewer())
}

func TestActorMiddleware_RejectsBadTokens(t *testing.T) {
	m := NewActorMiddleware(ActorConfig{JWTSecret: "s3cret"}, zap.NewNop())
	other := NewActorMiddleware(ActorConfig{JWTSecret: "different"}, zap.NewNop())
	forged, err := other.GenerateToken("mallory", actor.RoleAdmin)
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, UserClaims{
		Username: "asha",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, token := range map[string]string{"forged": forged, "expired": expired, "garbage": "abc.def"} {
		t.Run(name, func(t *testing.T) {
			var got actor.Actor
			req := httptest.NewRequest(http.MethodGet, "/api/rakes/x", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			m.Wrap(captureActor(&got)).ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Empty(t, got.Username)
		})
	}
}

func TestActorMiddleware_TrustedHeaders(t *testing.T) {
	tests := []struct {
		name  string
		trust bool
		user  string
		role  string
		want  actor.Actor
	}{
		{"trusted reviewer", true, "asha", "reviewer", actor.Actor{Username: "asha", Role: actor.RoleReviewer}},
		{"trusted default role", true, "ravi", "", actor.Actor{Username: "ravi", Role: actor.RoleOperator}},
		{"untrusted ignored", false, "asha", "ADMIN", actor.Actor{Role: actor.RoleOperator}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewActorMiddleware(ActorConfig{TrustHeaders: tt.trust}, zap.NewNop())
			var got actor.Actor
			req := httptest.NewRequest(http.MethodPost, "/api/rakes", nil)
			req.Header.Set(ReviewerHeader, tt.user)
			req.Header.Set(RoleHeader, tt.role)
			m.Wrap(captureActor(&got)).ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestActorMiddleware_RequiredAndSkipPaths(t *testing.T) {
	m := NewActorMiddleware(ActorConfig{JWTSecret: "s3cret", Required: true, SkipPaths: []string{"/health", "/webhook/*"}}, zap.NewNop())
	var got actor.Actor
	h := m.Wrap(captureActor(&got))

	tests := []struct {
		path string
		want int
	}{
		{"/api/rakes", http.StatusUnauthorized},
		{"/health", http.StatusNoContent},
		{"/webhook/bag-counts", http.StatusNoContent},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Equal(t, tt.want, w.Code, tt.path)
	}
}

func TestActorMiddleware_GenerateTokenWithoutSecret(t *testing.T) {
	m := NewActorMiddleware(ActorConfig{}, zap.NewNop())
	_, err := m.GenerateToken("asha", actor.RoleReviewer)
	assert.Error(t, err)
}

func TestAPIKeyMiddleware(t *testing.T) {
	m := NewAPIKeyMiddleware(APIKeyConfig{Keys: []string{"k1", "k2"}}, zap.NewNop())
	h := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) }))

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"x-api-key", "X-API-Key", "k2", http.StatusAccepted},
		{"authorization scheme", "Authorization", "ApiKey k1", http.StatusAccepted},
		{"wrong key", "X-API-Key", "nope", http.StatusUnauthorized},
		{"missing", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook/bag-counts", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	m.SetKeys(nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/bag-counts", nil))
	assert.Equal(t, http.StatusAccepted, w.Code, "no keys configured disables the check")
}

func TestCORSMiddleware(t *testing.T) {
	c := NewCORSMiddleware("https://ops.example")
	h := c.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) }))

	req := httptest.NewRequest(http.MethodOptions, "/api/rakes", nil)
	req.Header.Set("Origin", "https://ops.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://ops.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), ReviewerHeader)

	req = httptest.NewRequest(http.MethodGet, "/api/rakes", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := RequestIDMiddleware(AccessLog(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusConflict)
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/rakes/x/split/unique", nil))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(http.StatusConflict), fields["status"])
	assert.Equal(t, "/api/rakes/x/split/unique", fields["path"])
	assert.NotEmpty(t, fields["request_id"])
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
}
