package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sidingops/rakeserial/internal/api"
)

// APIKeyConfig holds API key authentication configuration for machine clients
// such as the bag-counting integration.
type APIKeyConfig struct {
	// Keys are the accepted API keys. An empty list disables the check.
	Keys []string
}

// APIKeyMiddleware provides API key authentication
type APIKeyMiddleware struct {
	mu     sync.RWMutex
	keys   []string
	logger *zap.Logger
}

// NewAPIKeyMiddleware creates a new API key middleware
func NewAPIKeyMiddleware(config APIKeyConfig, logger *zap.Logger) *APIKeyMiddleware {
	return &APIKeyMiddleware{keys: config.Keys, logger: logger.Named("apikey")}
}

// Wrap wraps an http.Handler with API key authentication
func (m *APIKeyMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		key := extractAPIKey(r)
		if key == "" {
			w.Header().Set("WWW-Authenticate", `APIKey realm="API"`)
			api.RespondError(w, http.StatusUnauthorized, "Missing API key")
			return
		}
		if !m.validKey(key) {
			m.logger.Warn("invalid API key", zap.String("remote_addr", r.RemoteAddr), zap.String("path", r.URL.Path))
			api.RespondError(w, http.StatusUnauthorized, "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Enabled reports whether any key is configured.
func (m *APIKeyMiddleware) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys) > 0
}

// SetKeys replaces the accepted keys
func (m *APIKeyMiddleware) SetKeys(keys []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = keys
}

func (m *APIKeyMiddleware) validKey(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, valid := range m.keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
			return true
		}
	}
	return false
}

// extractAPIKey reads X-API-Key, falling back to an "ApiKey" Authorization scheme.
func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "ApiKey ") {
		return strings.TrimPrefix(auth, "ApiKey ")
	}
	return ""
}
