package mongodb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"catalog-service/internal/auth/domain/model"
	"catalog-service/internal/shared/docstore"
	apperrors "catalog-service/internal/shared/errors"
	"catalog-service/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SessionSchema is the stored shape of model.Session.
var SessionSchema = docstore.Schema{
	Collection: "sessions",
	Fields: []docstore.Field{
		{Name: "token", Kind: docstore.KindString, Required: true, Immutable: true},
		{Name: "user_id", Kind: docstore.KindString, Required: true, Immutable: true},
		{Name: "created_at", Kind: docstore.KindTime, Immutable: true},
		{Name: "expires_at", Kind: docstore.KindTime, Required: true},
		{Name: "payload", Kind: docstore.KindMap},
		{Name: "version", Kind: docstore.KindInt},
	},
}

// MongoSessionRepository implements repository.SessionRepository on a docstore.
// MongoDB's TTL monitor removes expired records eventually; reads still check
// expires_at themselves.
type MongoSessionRepository struct {
	store *docstore.Store[model.Session]
}

// NewMongoSessionRepository wraps coll and ensures the token, user and TTL indexes.
func NewMongoSessionRepository(ctx context.Context, coll docstore.CollectionInterface, log logger.Logger) (*MongoSessionRepository, error) {
	repo := &MongoSessionRepository{store: docstore.NewStore[model.Session](coll, SessionSchema, log)}

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("token_unique"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("user_id"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("expires_at_ttl"),
		},
	}
	if err := repo.store.EnsureIndexes(ctx, indexes...); err != nil {
		return nil, fmt.Errorf("failed to create session indexes: %w", err)
	}
	return repo, nil
}

func (r *MongoSessionRepository) Insert(ctx context.Context, session *model.Session) error {
	if session.Payload == nil {
		session.Payload = map[string]interface{}{}
	}
	id, err := r.store.Create(ctx, *session)
	if err != nil {
		return err
	}
	session.ID = id
	return nil
}

func (r *MongoSessionRepository) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	return r.store.FindOne(ctx, map[string]interface{}{"token": token})
}

func (r *MongoSessionRepository) Delete(ctx context.Context, token string) error {
	_, err := r.store.DeleteMany(ctx, bson.M{"token": token})
	return err
}

func (r *MongoSessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	return r.store.DeleteMany(ctx, bson.M{"user_id": userID})
}

func (r *MongoSessionRepository) ExtendExpiry(ctx context.Context, token string, now, expiresAt time.Time) (bool, error) {
	matched, err := r.store.UpdateOne(ctx,
		liveFilter(token, now),
		bson.M{"$set": bson.M{"expires_at": expiresAt}},
	)
	return matched > 0, err
}

func (r *MongoSessionRepository) CompareAndSwap(ctx context.Context, token string, version int64, payload map[string]interface{}, now time.Time) (bool, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	filter := liveFilter(token, now)
	filter["version"] = version

	matched, err := r.store.UpdateOne(ctx, filter, bson.M{
		"$set": bson.M{"payload": payload},
		"$inc": bson.M{"version": int64(1)},
	})
	return matched > 0, err
}

func (r *MongoSessionRepository) Increment(ctx context.Context, token, key string, delta int64, now time.Time) (int64, bool, error) {
	if err := validatePayloadKey(key); err != nil {
		return 0, false, err
	}
	updated, err := r.store.FindOneAndUpdate(ctx,
		liveFilter(token, now),
		bson.M{"$inc": bson.M{"payload." + key: delta, "version": int64(1)}},
		true,
	)
	if err != nil || updated == nil {
		return 0, false, err
	}
	return updated.Counter(key), true, nil
}

func liveFilter(token string, now time.Time) bson.M {
	return bson.M{
		"token":      token,
		"expires_at": bson.M{"$gt": now},
	}
}

func validatePayloadKey(key string) error {
	if key == "" || strings.ContainsAny(key, ".$") {
		return apperrors.NewValidationError(fmt.Sprintf("invalid payload key %q", key))
	}
	return nil
}
