package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog-service/internal/auth/domain/model"
	"catalog-service/internal/auth/domain/repository"
	apperrors "catalog-service/internal/shared/errors"
	"catalog-service/internal/shared/eventbus"
	"catalog-service/internal/shared/logger"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultCreateAttempts = 3

	defaultMutateInitialBackOff = 2 * time.Millisecond
	defaultMutateMaxBackOff     = 100 * time.Millisecond
)

// SessionManager owns the session lifecycle: ACTIVE until expiresAt passes
// (EXPIRED) or the session is destroyed.
type SessionManager struct {
	repo      repository.SessionRepository
	tokens    repository.TokenGenerator
	ttl       time.Duration
	sliding   bool
	now       func() time.Time
	logger    logger.Logger
	events    eventbus.Publisher
	maxCreate int

	mutateInitialBackOff time.Duration
	mutateMaxBackOff     time.Duration
}

// SessionOption customises a SessionManager.
type SessionOption func(*SessionManager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) { m.now = now }
}

// WithEventPublisher publishes session.created and session.destroyed.
func WithEventPublisher(p eventbus.Publisher) SessionOption {
	return func(m *SessionManager) { m.events = p }
}

// WithCreateAttempts bounds token regeneration on collisions.
func WithCreateAttempts(n int) SessionOption {
	return func(m *SessionManager) {
		if n > 0 {
			m.maxCreate = n
		}
	}
}

// WithMutateBackOff sets the jittered exponential wait between lost
// compare-and-swap rounds.
func WithMutateBackOff(initial, max time.Duration) SessionOption {
	return func(m *SessionManager) {
		if initial > 0 {
			m.mutateInitialBackOff = initial
		}
		if max >= initial {
			m.mutateMaxBackOff = max
		}
	}
}

// NewSessionManager creates a manager issuing sessions that live for ttl.
func NewSessionManager(repo repository.SessionRepository, tokens repository.TokenGenerator, ttl time.Duration, sliding bool, log logger.Logger, opts ...SessionOption) *SessionManager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	m := &SessionManager{
		repo:      repo,
		tokens:    tokens,
		ttl:       ttl,
		sliding:   sliding,
		now:       time.Now,
		logger:    log.WithComponent("session_manager"),
		maxCreate: defaultCreateAttempts,

		mutateInitialBackOff: defaultMutateInitialBackOff,
		mutateMaxBackOff:     defaultMutateMaxBackOff,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL is the default session lifetime.
func (m *SessionManager) TTL() time.Duration { return m.ttl }

// Sliding reports whether Touch should run on every authenticated request.
func (m *SessionManager) Sliding() bool { return m.sliding }

// Create starts a session for userID. A non-positive ttl means the default.
func (m *SessionManager) Create(ctx context.Context, userID string, ttl time.Duration) (*model.Session, error) {
	if userID == "" {
		return nil, apperrors.NewValidationError("session requires a user id")
	}
	if ttl <= 0 {
		ttl = m.ttl
	}

	var lastErr error
	for attempt := 0; attempt < m.maxCreate; attempt++ {
		token, err := m.tokens.NewToken()
		if err != nil {
			return nil, apperrors.NewInternalError("failed to generate session token").WithCause(err)
		}
		now := m.now().UTC()
		session := &model.Session{
			Token:     token,
			UserID:    userID,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
			Payload:   map[string]interface{}{},
		}
		err = m.repo.Insert(ctx, session)
		if err == nil {
			m.publish(ctx, eventbus.EventTypeSessionCreated, userID)
			return session, nil
		}
		if !apperrors.IsDuplicateKey(err) {
			return nil, err
		}
		m.logger.WithContext(ctx).Warnf("session token collision on attempt %d", attempt+1)
		lastErr = err
	}
	return nil, fmt.Errorf("create session after %d attempts: %w", m.maxCreate, lastErr)
}

// Resolve returns the live session for token. A stored but expired record
// yields ErrSessionExpired and is removed on a best-effort basis.
func (m *SessionManager) Resolve(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, model.ErrSessionNotFound
	}
	session, err := m.repo.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, model.ErrSessionNotFound
	}
	if session.IsExpired(m.now()) {
		if err := m.repo.Delete(ctx, token); err != nil {
			m.logger.WithContext(ctx).Warnf("failed to remove expired session: %v", err)
		}
		return nil, model.ErrSessionExpired
	}
	return session, nil
}

// Touch pushes expiresAt to now+ttl on a live session.
func (m *SessionManager) Touch(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.ttl
	}
	now := m.now().UTC()
	ok, err := m.repo.ExtendExpiry(ctx, token, now, now.Add(ttl))
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrSessionNotFound
	}
	return nil
}

// Destroy deletes the session. Unknown tokens are a no-op.
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.repo.Delete(ctx, token); err != nil {
		return err
	}
	m.publish(ctx, eventbus.EventTypeSessionDestroyed, "")
	return nil
}

// DestroyForUser removes every session owned by userID.
func (m *SessionManager) DestroyForUser(ctx context.Context, userID string) (int64, error) {
	n, err := m.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.publish(ctx, eventbus.EventTypeSessionDestroyed, userID)
	}
	return n, nil
}

// Mutate applies fn to a copy of the payload and stores it with
// compare-and-swap on the version. fn may run more than once: a lost race is
// retried after a jittered backoff until it lands or ctx is done. Only the
// latter yields ErrSessionConflict.
func (m *SessionManager) Mutate(ctx context.Context, token string, fn func(payload map[string]interface{}) error) (*model.Session, error) {
	session, err := backoff.Retry(ctx, func() (*model.Session, error) {
		session, err := m.Resolve(ctx, token)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		payload := session.ClonePayload()
		if err := fn(payload); err != nil {
			return nil, backoff.Permanent(err)
		}
		ok, err := m.repo.CompareAndSwap(ctx, token, session.Version, payload, m.now())
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if !ok {
			return nil, errVersionMoved
		}
		session.Payload = payload
		session.Version++
		return session, nil
	}, backoff.WithBackOff(m.mutateBackOff()))

	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, errVersionMoved):
		return nil, model.ErrSessionConflict
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		m.logger.WithContext(ctx).Warnf("session mutation abandoned: %v", err)
		return nil, fmt.Errorf("%w: %w", model.ErrSessionConflict, err)
	default:
		return nil, err
	}
}

var errVersionMoved = errors.New("session version moved")

func (m *SessionManager) mutateBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.mutateInitialBackOff
	b.MaxInterval = m.mutateMaxBackOff
	b.Reset()
	return b
}

// Increment atomically adds delta to an integer payload counter.
func (m *SessionManager) Increment(ctx context.Context, token, key string, delta int64) (int64, error) {
	n, found, err := m.repo.Increment(ctx, token, key, delta, m.now())
	if err != nil {
		return 0, err
	}
	if found {
		return n, nil
	}
	// Tell expired from missing.
	if _, err := m.Resolve(ctx, token); err != nil {
		return 0, err
	}
	return 0, model.ErrSessionNotFound
}

func (m *SessionManager) publish(ctx context.Context, eventType, userID string) {
	if m.events == nil {
		return
	}
	data := map[string]interface{}{}
	if userID != "" {
		data["user_id"] = userID
	}
	m.events.PublishAndForget(ctx, eventbus.NewBasicEvent(eventType, "session_manager", data))
}

// IsSessionMissing reports the errors that mean "no usable session".
func IsSessionMissing(err error) bool {
	return errors.Is(err, model.ErrSessionNotFound) || errors.Is(err, model.ErrSessionExpired)
}
