package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	authredis "catalog-service/internal/auth/adapter/persistence/redis"
	"catalog-service/internal/auth/adapter/security"
	"catalog-service/internal/auth/domain/model"
	"catalog-service/internal/auth/testutil"
	"catalog-service/internal/auth/usecase"
	apperrors "catalog-service/internal/shared/errors"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SessionManagerTestSuite struct {
	suite.Suite
	stack *testutil.Stack
	ctx   context.Context
}

func (s *SessionManagerTestSuite) SetupTest() {
	s.stack = testutil.NewStack(s.T(), testutil.WithTTL(time.Hour))
	s.ctx = context.Background()
}

func (s *SessionManagerTestSuite) create(userID string) *model.Session {
	session, err := s.stack.Manager.Create(s.ctx, userID, 0)
	s.Require().NoError(err)
	return session
}

func (s *SessionManagerTestSuite) TestCreateAndResolve() {
	session := s.create("user-1")
	s.NotEmpty(session.Token)
	s.Equal(s.stack.Clock.Now().Add(time.Hour), session.ExpiresAt)

	got, err := s.stack.Manager.Resolve(s.ctx, session.Token)
	s.Require().NoError(err)
	s.Equal("user-1", got.UserID)
}

func (s *SessionManagerTestSuite) TestCreateRequiresUser() {
	_, err := s.stack.Manager.Create(s.ctx, "", 0)
	s.True(apperrors.IsValidation(err))
}

func (s *SessionManagerTestSuite) TestCreateHonoursExplicitTTL() {
	session, err := s.stack.Manager.Create(s.ctx, "user-1", time.Minute)
	s.Require().NoError(err)
	s.Equal(s.stack.Clock.Now().Add(time.Minute), session.ExpiresAt)
}

func (s *SessionManagerTestSuite) TestResolveAbsentOnceExpired() {
	session := s.create("user-1")

	s.stack.Clock.Advance(time.Hour - time.Second)
	_, err := s.stack.Manager.Resolve(s.ctx, session.Token)
	s.NoError(err)

	s.stack.Clock.Advance(time.Second)
	_, err = s.stack.Manager.Resolve(s.ctx, session.Token)
	s.ErrorIs(err, model.ErrSessionExpired)
	s.Equal(0, s.stack.SessionColl.Len(), "expired record is removed lazily")

	_, err = s.stack.Manager.Resolve(s.ctx, session.Token)
	s.ErrorIs(err, model.ErrSessionNotFound)
}

func (s *SessionManagerTestSuite) TestDestroy() {
	session := s.create("user-1")

	s.NoError(s.stack.Manager.Destroy(s.ctx, session.Token))
	_, err := s.stack.Manager.Resolve(s.ctx, session.Token)
	s.ErrorIs(err, model.ErrSessionNotFound)

	s.NoError(s.stack.Manager.Destroy(s.ctx, "never-issued"))
	s.NoError(s.stack.Manager.Destroy(s.ctx, ""))
}

func (s *SessionManagerTestSuite) TestDestroyForUser() {
	a := s.create("user-1")
	s.create("user-1")
	other := s.create("user-2")

	n, err := s.stack.Manager.DestroyForUser(s.ctx, "user-1")
	s.NoError(err)
	s.Equal(int64(2), n)

	_, err = s.stack.Manager.Resolve(s.ctx, a.Token)
	s.ErrorIs(err, model.ErrSessionNotFound)
	_, err = s.stack.Manager.Resolve(s.ctx, other.Token)
	s.NoError(err)
}

func (s *SessionManagerTestSuite) TestTouchSlidesExpiry() {
	session := s.create("user-1")

	s.stack.Clock.Advance(30 * time.Minute)
	s.Require().NoError(s.stack.Manager.Touch(s.ctx, session.Token, 0))

	s.stack.Clock.Advance(45 * time.Minute)
	got, err := s.stack.Manager.Resolve(s.ctx, session.Token)
	s.Require().NoError(err)
	s.Equal(s.stack.Clock.Now().Add(15*time.Minute), got.ExpiresAt)
}

func (s *SessionManagerTestSuite) TestTouchDoesNotRevive() {
	session := s.create("user-1")
	s.stack.Clock.Advance(2 * time.Hour)

	err := s.stack.Manager.Touch(s.ctx, session.Token, 0)
	s.ErrorIs(err, model.ErrSessionNotFound)
}

func (s *SessionManagerTestSuite) TestMutate() {
	session := s.create("user-1")

	updated, err := s.stack.Manager.Mutate(s.ctx, session.Token, func(p map[string]interface{}) error {
		p["theme"] = "dark"
		return nil
	})
	s.Require().NoError(err)
	s.Equal("dark", updated.Payload["theme"])
	s.Equal(int64(1), updated.Version)

	got, err := s.stack.Manager.Resolve(s.ctx, session.Token)
	s.Require().NoError(err)
	s.Equal("dark", got.Payload["theme"])
}

func (s *SessionManagerTestSuite) TestMutateRetriesAfterConcurrentWrite() {
	session := s.create("user-1")
	calls := 0

	updated, err := s.stack.Manager.Mutate(s.ctx, session.Token, func(p map[string]interface{}) error {
		calls++
		if calls == 1 {
			_, err := s.stack.Manager.Increment(s.ctx, session.Token, "visits", 1)
			s.Require().NoError(err)
		}
		p["seen"] = true
		return nil
	})
	s.Require().NoError(err)
	s.Equal(2, calls)
	s.Equal(true, updated.Payload["seen"])
	s.Equal(int64(1), updated.Counter("visits"), "the concurrent increment survives")
}

func (s *SessionManagerTestSuite) TestMutateStopsOnCallbackError() {
	session := s.create("user-1")
	boom := errors.New("boom")

	_, err := s.stack.Manager.Mutate(s.ctx, session.Token, func(map[string]interface{}) error { return boom })
	s.ErrorIs(err, boom)
}

func (s *SessionManagerTestSuite) TestIncrement() {
	session := s.create("user-1")

	for i := 1; i <= 3; i++ {
		n, err := s.stack.Manager.Increment(s.ctx, session.Token, "visits", 1)
		s.Require().NoError(err)
		s.Equal(int64(i), n)
	}

	_, err := s.stack.Manager.Increment(s.ctx, "unknown", "visits", 1)
	s.ErrorIs(err, model.ErrSessionNotFound)

	s.stack.Clock.Advance(2 * time.Hour)
	_, err = s.stack.Manager.Increment(s.ctx, session.Token, "visits", 1)
	s.ErrorIs(err, model.ErrSessionExpired)
}

func (s *SessionManagerTestSuite) TestConcurrentIncrements() {
	session := s.create("user-1")
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.stack.Manager.Increment(s.ctx, session.Token, "visits", 1)
			assert.NoError(s.T(), err)
		}()
	}
	wg.Wait()

	got, err := s.stack.Manager.Resolve(s.ctx, session.Token)
	s.Require().NoError(err)
	s.Equal(int64(n), got.Counter("visits"))
}

func (s *SessionManagerTestSuite) TestConcurrentMutateLosesNoUpdates() {
	session := s.create("user-1")
	assertConcurrentMutate(s.T(), s.stack.Manager, session.Token)
}

func (s *SessionManagerTestSuite) TestBackendFailureSurfaces() {
	session := s.create("user-1")
	s.stack.SessionColl.FailOn("FindOne", errors.New("connection reset"))

	_, err := s.stack.Manager.Resolve(s.ctx, session.Token)
	s.True(apperrors.IsBackendUnavailable(err))
}

func TestSessionManagerTestSuite(t *testing.T) {
	suite.Run(t, new(SessionManagerTestSuite))
}

func TestSessionManager_RegeneratesCollidingToken(t *testing.T) {
	tokens := testutil.NewScriptedTokens("same", "same", "fresh")
	stack := testutil.NewStack(t, testutil.WithTokens(tokens))
	ctx := context.Background()

	first, err := stack.Manager.Create(ctx, "user-1", 0)
	require.NoError(t, err)
	second, err := stack.Manager.Create(ctx, "user-2", 0)
	require.NoError(t, err)

	assert.Equal(t, "same", first.Token)
	assert.Equal(t, "fresh", second.Token)
}

func TestSessionManager_GivesUpAfterRepeatedCollisions(t *testing.T) {
	tokens := testutil.NewScriptedTokens("same", "same", "same", "same")
	stack := testutil.NewStack(t, testutil.WithTokens(tokens))
	ctx := context.Background()

	_, err := stack.Manager.Create(ctx, "user-1", 0)
	require.NoError(t, err)
	_, err = stack.Manager.Create(ctx, "user-2", 0)
	assert.True(t, apperrors.IsDuplicateKey(err))
}

func TestSessionManager_MutateRetriesUntilContextDone(t *testing.T) {
	repo := new(mockSessionRepository)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	live := testutil.SessionFixture("tok", "user-1", now, time.Hour)

	repo.On("FindByToken", mock.Anything, "tok").Return(live, nil)
	repo.On("CompareAndSwap", mock.Anything, "tok", int64(0), mock.Anything, now).Return(false, nil)

	manager := usecase.NewSessionManager(repo, testutil.NewScriptedTokens(), time.Hour, false, nil,
		usecase.WithClock(func() time.Time { return now }),
		usecase.WithMutateBackOff(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	_, err := manager.Mutate(ctx, "tok", func(p map[string]interface{}) error {
		p["k"] = "v"
		return nil
	})
	assert.ErrorIs(t, err, model.ErrSessionConflict)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, len(repo.Calls), 4, "lost rounds are retried, not capped")
}

func TestSessionManager_ResolveSurvivesFailedLazyDelete(t *testing.T) {
	repo := new(mockSessionRepository)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	dead := testutil.SessionFixture("tok", "user-1", now.Add(-2*time.Hour), time.Hour)

	repo.On("FindByToken", mock.Anything, "tok").Return(dead, nil)
	repo.On("Delete", mock.Anything, "tok").Return(apperrors.NewBackendUnavailableError("delete", errors.New("eof")))

	manager := usecase.NewSessionManager(repo, testutil.NewScriptedTokens(), time.Hour, false, nil,
		usecase.WithClock(func() time.Time { return now }))

	_, err := manager.Resolve(context.Background(), "tok")
	assert.ErrorIs(t, err, model.ErrSessionExpired)
	repo.AssertExpectations(t)
}

// assertConcurrentMutate runs read-modify-write increments that yield inside
// the callback so rounds overlap, then checks every one of them landed.
func assertConcurrentMutate(t *testing.T, manager *usecase.SessionManager, token string) {
	t.Helper()
	const workers = 64
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.Mutate(ctx, token, func(p map[string]interface{}) error {
				current := (&model.Session{Payload: p}).Counter("counter")
				time.Sleep(time.Millisecond)
				p["counter"] = current + 1
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	got, err := manager.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), got.Counter("counter"))
}

func TestSessionManager_ConcurrentMutateOnRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), PoolSize: 64})
	t.Cleanup(func() { _ = client.Close() })

	manager := usecase.NewSessionManager(authredis.NewRedisSessionRepository(client, nil),
		security.NewRandomTokenGenerator(), time.Hour, false, nil)

	session, err := manager.Create(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assertConcurrentMutate(t, manager, session.Token)
}
