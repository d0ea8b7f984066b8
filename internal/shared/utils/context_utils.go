package utils

import (
	"context"
	"errors"

	"catalog-service/internal/shared/contextkeys"
)

// Common context errors
var (
	ErrUserIDNotFound        = errors.New("userID not found in context")
	ErrUserIDNotString       = errors.New("userID in context is not a string")
	ErrSessionTokenNotFound  = errors.New("session token not found in context")
	ErrSessionTokenNotString = errors.New("session token in context is not a string")
	ErrRequestIDNotFound     = errors.New("requestID not found in context")
	ErrRequestIDNotString    = errors.New("requestID in context is not a string")
)

func stringValue(ctx context.Context, key interface{}, missing, notString error) (string, error) {
	val := ctx.Value(key)
	if val == nil {
		return "", missing
	}
	s, ok := val.(string)
	if !ok {
		return "", notString
	}
	return s, nil
}

// GetUserIDFromContext retrieves the user ID from the context.
func GetUserIDFromContext(ctx context.Context) (string, error) {
	return stringValue(ctx, contextkeys.UserIDKey, ErrUserIDNotFound, ErrUserIDNotString)
}

// GetSessionTokenFromContext retrieves the session token from the context.
func GetSessionTokenFromContext(ctx context.Context) (string, error) {
	return stringValue(ctx, contextkeys.SessionTokenKey, ErrSessionTokenNotFound, ErrSessionTokenNotString)
}

// GetRequestIDFromContext retrieves the request ID from the context.
func GetRequestIDFromContext(ctx context.Context) (string, error) {
	return stringValue(ctx, contextkeys.RequestIDKey, ErrRequestIDNotFound, ErrRequestIDNotString)
}

// Context builder functions

// WithUserID adds user ID to context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextkeys.UserIDKey, userID)
}

// WithSessionToken adds the session token to context
func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextkeys.SessionTokenKey, token)
}

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextkeys.RequestIDKey, requestID)
}

// WithComponent adds component name to context
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, contextkeys.ComponentKey, component)
}

// WithOperation adds operation name to context
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, contextkeys.OperationKey, operation)
}

// GetUserIDOrDefault retrieves the user ID from context or returns a default value
func GetUserIDOrDefault(ctx context.Context, def string) string {
	if v, err := GetUserIDFromContext(ctx); err == nil {
		return v
	}
	return def
}
