// Package actor carries the identity of whoever issued a request.
package actor

import (
	"context"
	"strings"
)

// Roles recognised by the engine.
const (
	RoleOperator = "OPERATOR"
	RoleReviewer = "REVIEWER"
	RoleAdmin    = "ADMIN"
)

// System is used for changes made by background jobs.
var System = Actor{Username: "system", Role: RoleAdmin}

// Actor is the user behind a request.
type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// IsReviewer reports whether edits by this actor are audited as reviewer edits.
func (a Actor) IsReviewer() bool {
	switch strings.ToUpper(a.Role) {
	case RoleReviewer, RoleAdmin:
		return true
	}
	return false
}

// IsAdmin reports whether the actor may approve on submit and revoke approvals.
func (a Actor) IsAdmin() bool {
	return strings.EqualFold(a.Role, RoleAdmin)
}

// Name returns the username or a placeholder for anonymous requests.
func (a Actor) Name() string {
	if a.Username == "" {
		return "anonymous"
	}
	return a.Username
}

type contextKey struct{}

// WithActor stores a in ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

// FromContext returns the actor stored in ctx, or an anonymous operator.
func FromContext(ctx context.Context) Actor {
	if a, ok := ctx.Value(contextKey{}).(Actor); ok {
		return a
	}
	return Actor{Role: RoleOperator}
}
