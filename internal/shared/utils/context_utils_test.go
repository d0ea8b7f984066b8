package utils

import (
	"context"
	"testing"

	"catalog-service/internal/shared/contextkeys"

	"github.com/stretchr/testify/assert"
)

func TestGetSetContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithUserID(ctx, "user1")
	ctx = WithSessionToken(ctx, "tok1")
	ctx = WithRequestID(ctx, "req1")

	userID, err := GetUserIDFromContext(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "user1", userID)

	token, err := GetSessionTokenFromContext(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "tok1", token)

	reqID, err := GetRequestIDFromContext(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "req1", reqID)
	assert.Equal(t, "user1", GetUserIDOrDefault(ctx, "anon"))
}

func TestMissingAndMistypedValues(t *testing.T) {
	ctx := context.Background()
	_, err := GetUserIDFromContext(ctx)
	assert.ErrorIs(t, err, ErrUserIDNotFound)
	assert.Equal(t, "anon", GetUserIDOrDefault(ctx, "anon"))

	ctx = context.WithValue(ctx, contextkeys.UserIDKey, 42)
	_, err = GetUserIDFromContext(ctx)
	assert.ErrorIs(t, err, ErrUserIDNotString)
}
