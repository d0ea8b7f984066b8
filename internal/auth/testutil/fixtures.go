// Package testutil builds in-memory auth stacks and fixtures for tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"catalog-service/internal/auth/adapter/persistence/mongodb"
	"catalog-service/internal/auth/adapter/security"
	"catalog-service/internal/auth/domain/model"
	"catalog-service/internal/auth/domain/repository"
	"catalog-service/internal/auth/usecase"
	"catalog-service/internal/shared/docstore/docstoretest"
	"catalog-service/internal/shared/logger"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// TestSecret is long enough for security.NewCookieSigner.
const TestSecret = "test-secret-0123456789abcdef"

// FakeClock is a settable time source safe for concurrent use.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ScriptedTokens hands out the given tokens in order, then numbered ones.
type ScriptedTokens struct {
	mu     sync.Mutex
	tokens []string
	n      int
}

func NewScriptedTokens(tokens ...string) *ScriptedTokens {
	return &ScriptedTokens{tokens: tokens}
}

func (g *ScriptedTokens) NewToken() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	if len(g.tokens) > 0 {
		t := g.tokens[0]
		g.tokens = g.tokens[1:]
		return t, nil
	}
	return fmt.Sprintf("token-%d", g.n), nil
}

// Stack is a fully wired auth context over in-memory collections.
type Stack struct {
	Clock       *FakeClock
	Users       *mongodb.MongoUserRepository
	Sessions    *mongodb.MongoSessionRepository
	UserColl    *docstoretest.MemoryCollection
	SessionColl *docstoretest.MemoryCollection
	Hasher      *security.BcryptHasher
	Signer      *security.CookieSigner
	Manager     *usecase.SessionManager
	Gate        *usecase.AuthGate
	Auth        *usecase.AuthUsecase
}

// StackOption tweaks NewStack.
type StackOption func(*stackConfig)

type stackConfig struct {
	ttl     time.Duration
	sliding bool
	tokens  repository.TokenGenerator
}

func WithTTL(ttl time.Duration) StackOption { return func(c *stackConfig) { c.ttl = ttl } }

func WithSliding() StackOption { return func(c *stackConfig) { c.sliding = true } }

func WithTokens(g repository.TokenGenerator) StackOption {
	return func(c *stackConfig) { c.tokens = g }
}

// NewStack wires repositories, bcrypt at its minimum cost and the usecases.
func NewStack(t testing.TB, opts ...StackOption) *Stack {
	t.Helper()
	cfg := &stackConfig{ttl: time.Hour, tokens: security.NewRandomTokenGenerator()}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx := context.Background()
	log := logger.NewNopLogger()
	s := &Stack{
		Clock:       NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
		UserColl:    docstoretest.NewMemoryCollection(),
		SessionColl: docstoretest.NewMemoryCollection(),
		Hasher:      security.NewBcryptHasher(bcrypt.MinCost, log),
	}

	var err error
	s.Users, err = mongodb.NewMongoUserRepository(ctx, s.UserColl, log)
	require.NoError(t, err)
	s.Sessions, err = mongodb.NewMongoSessionRepository(ctx, s.SessionColl, log)
	require.NoError(t, err)
	s.Signer, err = security.NewCookieSigner(TestSecret, "catalog-service")
	require.NoError(t, err)

	s.Manager = usecase.NewSessionManager(s.Sessions, cfg.tokens, cfg.ttl, cfg.sliding, log,
		usecase.WithClock(s.Clock.Now))
	s.Gate = usecase.NewAuthGate(s.Manager)
	s.Auth = usecase.NewAuthUsecase(s.Users, s.Manager, s.Hasher, nil, log)
	return s
}

// RegisterAndLogin creates an account and returns it with a fresh session.
func (s *Stack) RegisterAndLogin(t testing.TB, username, password string) (*model.User, *model.Session) {
	t.Helper()
	ctx := context.Background()
	_, err := s.Auth.Register(ctx, usecase.RegisterRequest{Username: username, Password: password})
	require.NoError(t, err)
	user, session, err := s.Auth.Login(ctx, usecase.LoginRequest{Username: username, Password: password})
	require.NoError(t, err)
	return user, session
}

// Cookie seals a session token the way the HTTP layer does.
func (s *Stack) Cookie(t testing.TB, token string) string {
	t.Helper()
	value, err := s.Signer.Seal(token)
	require.NoError(t, err)
	return value
}

// UserFixture returns an unsaved user hashed at bcrypt.MinCost.
func UserFixture(username, password string) *model.User {
	hashed, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return &model.User{
		ID:           primitive.NewObjectID(),
		Username:     username,
		PasswordHash: string(hashed),
		CreatedAt:    time.Now().UTC(),
	}
}

// SessionFixture returns a session for userID expiring after ttl from now.
func SessionFixture(token, userID string, now time.Time, ttl time.Duration) *model.Session {
	return &model.Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Payload:   map[string]interface{}{},
	}
}
