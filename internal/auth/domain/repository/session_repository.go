package repository

import (
	"context"
	"time"

	"catalog-service/internal/auth/domain/model"
)

// SessionRepository stores sessions. Every conditional write only matches a
// session that is still live at now.
type SessionRepository interface {
	// Insert stores a new session. A token collision is a DuplicateKey error.
	Insert(ctx context.Context, session *model.Session) error
	// FindByToken returns the stored record, expired or not, or nil.
	FindByToken(ctx context.Context, token string) (*model.Session, error)
	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	// ExtendExpiry moves expiresAt forward. false means no live session matched.
	ExtendExpiry(ctx context.Context, token string, now, expiresAt time.Time) (bool, error)
	// CompareAndSwap replaces the payload when the stored version equals version,
	// bumping it by one. false means the version moved or the session is gone.
	CompareAndSwap(ctx context.Context, token string, version int64, payload map[string]interface{}, now time.Time) (bool, error)
	// Increment atomically adds delta to an integer payload key.
	Increment(ctx context.Context, token, key string, delta int64, now time.Time) (int64, bool, error)
}
