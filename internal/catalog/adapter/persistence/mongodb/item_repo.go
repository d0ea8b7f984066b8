package mongodb

import (
	"context"
	"fmt"
	"time"

	"catalog-service/internal/catalog/domain/model"
	"catalog-service/internal/shared/docstore"
	"catalog-service/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ItemSchema returns the stored shape of model.Item in collection.
func ItemSchema(collection string) docstore.Schema {
	return docstore.Schema{
		Collection: collection,
		Fields: []docstore.Field{
			{Name: "title", Kind: docstore.KindString, Required: true},
			{Name: "artist", Kind: docstore.KindString},
			{Name: "created_at", Kind: docstore.KindTime, Immutable: true},
			{Name: "updated_at", Kind: docstore.KindTime},
		},
	}
}

// MongoItemRepository implements repository.ItemRepository on a docstore.
type MongoItemRepository struct {
	store *docstore.Store[model.Item]
	now   func() time.Time
}

// NewMongoItemRepository wraps coll and ensures the lookup indexes.
func NewMongoItemRepository(ctx context.Context, coll docstore.CollectionInterface, collection string, log logger.Logger) (*MongoItemRepository, error) {
	repo := &MongoItemRepository{
		store: docstore.NewStore[model.Item](coll, ItemSchema(collection), log),
		now:   time.Now,
	}
	err := repo.store.EnsureIndexes(ctx,
		mongo.IndexModel{Keys: bson.D{{Key: "title", Value: 1}}, Options: options.Index().SetName("title")},
		mongo.IndexModel{Keys: bson.D{{Key: "artist", Value: 1}}, Options: options.Index().SetName("artist")},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create item indexes: %w", err)
	}
	return repo, nil
}

func (r *MongoItemRepository) Create(ctx context.Context, item *model.Item) error {
	now := r.now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	id, err := r.store.Create(ctx, *item)
	if err != nil {
		return err
	}
	item.ID = id
	return nil
}

func (r *MongoItemRepository) List(ctx context.Context, query model.ListQuery) ([]model.Item, error) {
	var opts []docstore.FindOption
	if query.SortBy != "" {
		opts = append(opts, docstore.WithSort(query.SortBy, query.SortDesc))
	}
	if query.Limit > 0 {
		opts = append(opts, docstore.WithLimit(query.Limit))
	}
	return r.store.Find(ctx, query.Filter(), opts...)
}

func (r *MongoItemRepository) Count(ctx context.Context, query model.ListQuery) (int64, error) {
	return r.store.Count(ctx, query.Filter())
}

func (r *MongoItemRepository) Get(ctx context.Context, id string) (*model.Item, error) {
	return r.store.FindByID(ctx, id)
}

func (r *MongoItemRepository) Update(ctx context.Context, id string, fields map[string]interface{}) (int64, error) {
	if len(fields) == 0 {
		return r.store.UpdateByID(ctx, id, fields)
	}
	patch := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		patch[k] = v
	}
	patch["updated_at"] = r.now().UTC()
	return r.store.UpdateByID(ctx, id, patch)
}

func (r *MongoItemRepository) Delete(ctx context.Context, id string) (int64, error) {
	return r.store.DeleteByID(ctx, id)
}
