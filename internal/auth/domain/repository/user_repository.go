package repository

import (
	"context"

	"catalog-service/internal/auth/domain/model"
)

// UserRepository persists accounts. Lookups return (nil, nil) when nothing matches.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	Delete(ctx context.Context, id string) (int64, error)
}
