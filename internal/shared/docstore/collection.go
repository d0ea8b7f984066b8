package docstore

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionInterface is the slice of *mongo.Collection the stores depend on.
// Production code uses MongoCollectionAdapter; tests use docstoretest.MemoryCollection.
type CollectionInterface interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	InsertOne(ctx context.Context, doc interface{}) (interface{}, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) SingleResultInterface
	UpdateOne(ctx context.Context, filter interface{}, update interface{}) (UpdateResultInterface, error)
	DeleteOne(ctx context.Context, filter interface{}) (DeleteResultInterface, error)
	DeleteMany(ctx context.Context, filter interface{}) (DeleteResultInterface, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (CursorInterface, error)
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) SingleResultInterface
	EnsureIndexes(ctx context.Context, models []mongo.IndexModel) error
}

type SingleResultInterface interface {
	Decode(v interface{}) error
}
type UpdateResultInterface interface{ Matched() int64 }
type DeleteResultInterface interface{ Deleted() int64 }
type CursorInterface interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Close(ctx context.Context) error
	Err() error
}

// MongoCollectionAdapter makes *mongo.Collection satisfy CollectionInterface.
type MongoCollectionAdapter struct {
	col *mongo.Collection
}

func NewMongoCollectionAdapter(col *mongo.Collection) *MongoCollectionAdapter {
	return &MongoCollectionAdapter{col: col}
}

func (m *MongoCollectionAdapter) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return m.col.CountDocuments(ctx, filter, opts...)
}

func (m *MongoCollectionAdapter) InsertOne(ctx context.Context, doc interface{}) (interface{}, error) {
	res, err := m.col.InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	return res.InsertedID, nil
}

func (m *MongoCollectionAdapter) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) SingleResultInterface {
	return m.col.FindOne(ctx, filter, opts...)
}

func (m *MongoCollectionAdapter) UpdateOne(ctx context.Context, filter interface{}, update interface{}) (UpdateResultInterface, error) {
	res, err := m.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, err
	}
	return countResult(res.MatchedCount), nil
}

func (m *MongoCollectionAdapter) DeleteOne(ctx context.Context, filter interface{}) (DeleteResultInterface, error) {
	res, err := m.col.DeleteOne(ctx, filter)
	if err != nil {
		return nil, err
	}
	return countResult(res.DeletedCount), nil
}

func (m *MongoCollectionAdapter) DeleteMany(ctx context.Context, filter interface{}) (DeleteResultInterface, error) {
	res, err := m.col.DeleteMany(ctx, filter)
	if err != nil {
		return nil, err
	}
	return countResult(res.DeletedCount), nil
}

func (m *MongoCollectionAdapter) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (CursorInterface, error) {
	cur, err := m.col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (m *MongoCollectionAdapter) FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) SingleResultInterface {
	return m.col.FindOneAndUpdate(ctx, filter, update, opts...)
}

func (m *MongoCollectionAdapter) EnsureIndexes(ctx context.Context, models []mongo.IndexModel) error {
	if len(models) == 0 {
		return nil
	}
	_, err := m.col.Indexes().CreateMany(ctx, models)
	return err
}

// countResult carries the matched or deleted count of a write.
type countResult int64

func (c countResult) Matched() int64 { return int64(c) }
func (c countResult) Deleted() int64 { return int64(c) }
