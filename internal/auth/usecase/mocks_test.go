package usecase_test

import (
	"context"
	"time"

	"catalog-service/internal/auth/domain/model"

	"github.com/stretchr/testify/mock"
)

type mockSessionRepository struct {
	mock.Mock
}

func (m *mockSessionRepository) Insert(ctx context.Context, session *model.Session) error {
	return m.Called(ctx, session).Error(0)
}

func (m *mockSessionRepository) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	args := m.Called(ctx, token)
	if s := args.Get(0); s != nil {
		return s.(*model.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessionRepository) Delete(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *mockSessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepository) ExtendExpiry(ctx context.Context, token string, now, expiresAt time.Time) (bool, error) {
	args := m.Called(ctx, token, now, expiresAt)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepository) CompareAndSwap(ctx context.Context, token string, version int64, payload map[string]interface{}, now time.Time) (bool, error) {
	args := m.Called(ctx, token, version, payload, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepository) Increment(ctx context.Context, token, key string, delta int64, now time.Time) (int64, bool, error) {
	args := m.Called(ctx, token, key, delta, now)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, token string) (*model.Session, error) {
	args := m.Called(ctx, token)
	if s := args.Get(0); s != nil {
		return s.(*model.Session), args.Error(1)
	}
	return nil, args.Error(1)
}
