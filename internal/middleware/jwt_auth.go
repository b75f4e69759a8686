package middleware

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/sidingops/rakeserial/internal/actor"
	"github.com/sidingops/rakeserial/internal/api"
)

// Headers an upstream proxy may use to name the caller.
const (
	ReviewerHeader = "X-Reviewer-Username"
	RoleHeader     = "X-User-Role"
)

const tokenIssuer = "rakeserial"

// UserClaims represents the JWT claims for a user
type UserClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// ActorConfig holds caller identification configuration
type ActorConfig struct {
	// JWTSecret signs and verifies bearer tokens. Empty disables tokens.
	JWTSecret string

	// JWTExpiryHours is the lifetime of issued tokens
	JWTExpiryHours int

	// TrustHeaders accepts ReviewerHeader and RoleHeader from the request
	// when no bearer token is present.
	TrustHeaders bool

	// Required rejects requests that name no caller.
	Required bool

	// SkipPaths are paths that pass without identification. A trailing *
	// matches by prefix.
	SkipPaths []string
}

// ActorMiddleware resolves who is calling and stores it in the request context.
type ActorMiddleware struct {
	mu     sync.RWMutex
	config ActorConfig
	logger *zap.Logger
}

// NewActorMiddleware creates a new actor middleware
func NewActorMiddleware(config ActorConfig, logger *zap.Logger) *ActorMiddleware {
	if config.JWTExpiryHours <= 0 {
		config.JWTExpiryHours = 12
	}
	return &ActorMiddleware{config: config, logger: logger.Named("actor")}
}

// GenerateToken issues a signed token for a user and role.
func (m *ActorMiddleware) GenerateToken(username, role string) (string, error) {
	m.mu.RLock()
	secret := m.config.JWTSecret
	expiry := time.Duration(m.config.JWTExpiryHours) * time.Hour
	m.mu.RUnlock()

	if secret == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := UserClaims{
		Username: username,
		Role:     strings.ToUpper(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   username,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ValidateToken validates a JWT token and returns the claims
func (m *ActorMiddleware) ValidateToken(tokenString string) (*UserClaims, error) {
	m.mu.RLock()
	secret := m.config.JWTSecret
	m.mu.RUnlock()

	if secret == "" {
		return nil, errors.New("jwt secret not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*UserClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

// Wrap wraps an http.Handler with caller identification
func (m *ActorMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		cfg := m.config
		m.mu.RUnlock()

		if shouldSkip(cfg.SkipPaths, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		var who actor.Actor
		found := false
		if token := bearerToken(r); token != "" {
			claims, err := m.ValidateToken(token)
			if err != nil {
				m.logger.Info("invalid token", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
				w.Header().Set("WWW-Authenticate", `Bearer realm="API"`)
				api.RespondError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			who, found = actor.Actor{Username: claims.Username, Role: claims.Role}, true
		} else if cfg.TrustHeaders {
			if name := strings.TrimSpace(r.Header.Get(ReviewerHeader)); name != "" {
				role := strings.ToUpper(strings.TrimSpace(r.Header.Get(RoleHeader)))
				if role == "" {
					role = actor.RoleOperator
				}
				who, found = actor.Actor{Username: name, Role: role}, true
			}
		}

		if !found {
			if cfg.Required {
				w.Header().Set("WWW-Authenticate", `Bearer realm="API"`)
				api.RespondError(w, http.StatusUnauthorized, "Missing authentication token")
				return
			}
			who = actor.Actor{Role: actor.RoleOperator}
		}

		next.ServeHTTP(w, r.WithContext(actor.WithActor(r.Context(), who)))
	})
}

// SetTrustHeaders toggles header-based identification
func (m *ActorMiddleware) SetTrustHeaders(trust bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.TrustHeaders = trust
}

func shouldSkip(skipPaths []string, path string) bool {
	for _, p := range skipPaths {
		if p == path {
			return true
		}
		if prefix, ok := strings.CutSuffix(p, "*"); ok && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
