package mongodb

import (
	"context"
	"fmt"
	"time"

	"catalog-service/internal/auth/domain/model"
	"catalog-service/internal/shared/docstore"
	apperrors "catalog-service/internal/shared/errors"
	"catalog-service/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserSchema is the stored shape of model.User.
var UserSchema = docstore.Schema{
	Collection: "users",
	Fields: []docstore.Field{
		{Name: "username", Kind: docstore.KindString, Required: true},
		{Name: "password_hash", Kind: docstore.KindString, Required: true},
		{Name: "created_at", Kind: docstore.KindTime, Immutable: true},
	},
}

// MongoUserRepository implements repository.UserRepository on a docstore.
type MongoUserRepository struct {
	store *docstore.Store[model.User]
}

// NewMongoUserRepository wraps coll and ensures the unique username index.
func NewMongoUserRepository(ctx context.Context, coll docstore.CollectionInterface, log logger.Logger) (*MongoUserRepository, error) {
	repo := &MongoUserRepository{store: docstore.NewStore[model.User](coll, UserSchema, log)}

	usernameIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("username_unique"),
	}
	if err := repo.store.EnsureIndexes(ctx, usernameIndex); err != nil {
		return nil, fmt.Errorf("failed to create user indexes: %w", err)
	}
	return repo, nil
}

// Create inserts user and sets its ID.
func (r *MongoUserRepository) Create(ctx context.Context, user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	id, err := r.store.Create(ctx, *user)
	if err != nil {
		if apperrors.IsDuplicateKey(err) {
			return apperrors.NewDuplicateKeyError(model.ErrUsernameTaken.Error()).WithCause(model.ErrUsernameTaken)
		}
		return fmt.Errorf("create user: %w", err)
	}
	user.ID = id
	return nil
}

func (r *MongoUserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.store.FindOne(ctx, map[string]interface{}{"username": username})
}

func (r *MongoUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.store.FindByID(ctx, id)
}

func (r *MongoUserRepository) Delete(ctx context.Context, id string) (int64, error) {
	return r.store.DeleteByID(ctx, id)
}
