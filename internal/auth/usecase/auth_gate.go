package usecase

import (
	"context"
	"errors"

	"catalog-service/internal/auth/domain/model"
)

// DenyReason explains a denied gate decision.
type DenyReason string

const (
	ReasonNone     DenyReason = ""
	ReasonNoToken  DenyReason = "no_token"
	ReasonNotFound DenyReason = "not_found"
	ReasonExpired  DenyReason = "expired"
)

// Decision is the outcome of AuthGate.Check.
type Decision struct {
	Allowed bool
	Session *model.Session
	Reason  DenyReason
}

// SessionResolver is the part of SessionManager the gate needs.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*model.Session, error)
}

// AuthGate decides whether a request may reach a protected handler.
type AuthGate struct {
	sessions SessionResolver
}

func NewAuthGate(sessions SessionResolver) *AuthGate {
	return &AuthGate{sessions: sessions}
}

// Check allows the request only for a live session. Backend failures are
// returned as errors and never produce an allow.
func (g *AuthGate) Check(ctx context.Context, token string) (Decision, error) {
	if token == "" {
		return Decision{Reason: ReasonNoToken}, nil
	}
	session, err := g.sessions.Resolve(ctx, token)
	switch {
	case err == nil:
		return Decision{Allowed: true, Session: session}, nil
	case errors.Is(err, model.ErrSessionExpired):
		return Decision{Reason: ReasonExpired}, nil
	case errors.Is(err, model.ErrSessionNotFound):
		return Decision{Reason: ReasonNotFound}, nil
	default:
		return Decision{}, err
	}
}
