package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"catalog-service/internal/auth/domain/model"
	apperrors "catalog-service/internal/shared/errors"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type RedisSessionRepoTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *goredis.Client
	repo   *RedisSessionRepository
	ctx    context.Context
	now    time.Time
}

func (s *RedisSessionRepoTestSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.client = goredis.NewClient(&goredis.Options{Addr: s.mr.Addr()})
	s.repo = NewRedisSessionRepository(s.client, nil)
	s.ctx = context.Background()
	s.now = time.Now().UTC().Truncate(time.Millisecond)
	s.mr.SetTime(s.now)
}

func (s *RedisSessionRepoTestSuite) TearDownTest() {
	_ = s.client.Close()
}

func (s *RedisSessionRepoTestSuite) insert(token, userID string, ttl time.Duration) {
	err := s.repo.Insert(s.ctx, &model.Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: s.now,
		ExpiresAt: s.now.Add(ttl),
		Payload:   map[string]interface{}{"theme": "dark"},
	})
	s.Require().NoError(err)
}

func (s *RedisSessionRepoTestSuite) TestInsertAndFind() {
	s.insert("tok", "user-1", time.Hour)

	got, err := s.repo.FindByToken(s.ctx, "tok")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal("user-1", got.UserID)
	s.Equal(s.now.Add(time.Hour), got.ExpiresAt)
	s.Equal("dark", got.Payload["theme"])
	s.Equal(int64(0), got.Version)

	s.True(s.mr.Exists("session:tok"))
	s.InDelta(time.Hour.Seconds(), s.mr.TTL("session:tok").Seconds(), 1)

	missing, err := s.repo.FindByToken(s.ctx, "nope")
	s.NoError(err)
	s.Nil(missing)
}

func (s *RedisSessionRepoTestSuite) TestDuplicateToken() {
	s.insert("tok", "user-1", time.Hour)
	err := s.repo.Insert(s.ctx, &model.Session{Token: "tok", UserID: "user-2", ExpiresAt: s.now.Add(time.Hour)})
	s.True(apperrors.IsDuplicateKey(err))
}

func (s *RedisSessionRepoTestSuite) TestKeyExpiresWithSession() {
	s.insert("tok", "user-1", time.Minute)
	s.mr.FastForward(time.Minute + time.Second)

	got, err := s.repo.FindByToken(s.ctx, "tok")
	s.NoError(err)
	s.Nil(got)
}

func (s *RedisSessionRepoTestSuite) TestDeleteAndDeleteByUser() {
	s.insert("a", "user-1", time.Hour)
	s.insert("b", "user-1", time.Hour)
	s.insert("c", "user-2", time.Hour)

	s.NoError(s.repo.Delete(s.ctx, "a"))
	s.NoError(s.repo.Delete(s.ctx, "a"))
	s.False(s.mr.Exists("session:a"))

	n, err := s.repo.DeleteByUser(s.ctx, "user-1")
	s.NoError(err)
	s.Equal(int64(1), n)
	s.False(s.mr.Exists("session:b"))
	s.True(s.mr.Exists("session:c"))

	n, err = s.repo.DeleteByUser(s.ctx, "nobody")
	s.NoError(err)
	s.Equal(int64(0), n)
}

func (s *RedisSessionRepoTestSuite) TestUserIndexExpiresWithLastSession() {
	s.insert("a", "user-1", time.Minute)
	s.InDelta(time.Minute.Seconds(), s.mr.TTL("user_sessions:user-1").Seconds(), 1)

	s.insert("b", "user-1", time.Hour)
	s.InDelta(time.Hour.Seconds(), s.mr.TTL("user_sessions:user-1").Seconds(), 1)

	s.insert("c", "user-1", time.Minute)
	s.InDelta(time.Hour.Seconds(), s.mr.TTL("user_sessions:user-1").Seconds(), 1, "a shorter session never shortens the index")

	ok, err := s.repo.ExtendExpiry(s.ctx, "b", s.now, s.now.Add(2*time.Hour))
	s.Require().NoError(err)
	s.True(ok)
	s.InDelta((2 * time.Hour).Seconds(), s.mr.TTL("user_sessions:user-1").Seconds(), 1)

	s.mr.FastForward(2*time.Hour + time.Second)
	s.False(s.mr.Exists("user_sessions:user-1"))
}

func (s *RedisSessionRepoTestSuite) TestExtendExpiry() {
	s.insert("tok", "user-1", time.Minute)

	ok, err := s.repo.ExtendExpiry(s.ctx, "tok", s.now, s.now.Add(time.Hour))
	s.NoError(err)
	s.True(ok)
	got, err := s.repo.FindByToken(s.ctx, "tok")
	s.Require().NoError(err)
	s.Equal(s.now.Add(time.Hour), got.ExpiresAt)

	ok, err = s.repo.ExtendExpiry(s.ctx, "tok", s.now.Add(2*time.Hour), s.now.Add(3*time.Hour))
	s.NoError(err)
	s.False(ok)

	ok, err = s.repo.ExtendExpiry(s.ctx, "missing", s.now, s.now.Add(time.Hour))
	s.NoError(err)
	s.False(ok)
}

func (s *RedisSessionRepoTestSuite) TestCompareAndSwap() {
	s.insert("tok", "user-1", time.Hour)

	ok, err := s.repo.CompareAndSwap(s.ctx, "tok", 0, map[string]interface{}{"lang": "en"}, s.now)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.repo.CompareAndSwap(s.ctx, "tok", 0, map[string]interface{}{"lang": "fr"}, s.now)
	s.Require().NoError(err)
	s.False(ok)

	got, err := s.repo.FindByToken(s.ctx, "tok")
	s.Require().NoError(err)
	s.Equal(int64(1), got.Version)
	s.Equal(map[string]interface{}{"lang": "en"}, got.Payload)
}

func (s *RedisSessionRepoTestSuite) TestIncrement() {
	s.insert("tok", "user-1", time.Hour)

	n, found, err := s.repo.Increment(s.ctx, "tok", "visits", 1, s.now)
	s.Require().NoError(err)
	s.True(found)
	s.Equal(int64(1), n)

	got, err := s.repo.FindByToken(s.ctx, "tok")
	s.Require().NoError(err)
	s.Equal(int64(1), got.Counter("visits"))
	s.Equal(int64(1), got.Version)

	_, found, err = s.repo.Increment(s.ctx, "tok", "visits", 1, s.now.Add(2*time.Hour))
	s.NoError(err)
	s.False(found)

	_, found, err = s.repo.Increment(s.ctx, "missing", "visits", 1, s.now)
	s.NoError(err)
	s.False(found)
}

func (s *RedisSessionRepoTestSuite) TestConcurrentIncrementsAreNotLost() {
	s.insert("tok", "user-1", time.Hour)
	const n = 40

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.repo.Increment(s.ctx, "tok", "visits", 1, s.now)
			assert.NoError(s.T(), err)
		}()
	}
	wg.Wait()

	got, err := s.repo.FindByToken(s.ctx, "tok")
	require.NoError(s.T(), err)
	s.Equal(int64(n), got.Counter("visits"))
}

func (s *RedisSessionRepoTestSuite) TestBackendDown() {
	s.mr.Close()
	_, err := s.repo.FindByToken(s.ctx, "tok")
	s.True(apperrors.IsBackendUnavailable(err))
}

func TestRedisSessionRepoTestSuite(t *testing.T) {
	suite.Run(t, new(RedisSessionRepoTestSuite))
}
