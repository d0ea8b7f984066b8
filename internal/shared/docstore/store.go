package docstore

import (
	"context"
	"errors"
	"fmt"

	apperrors "catalog-service/internal/shared/errors"
	"catalog-service/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FindOption tunes a Find call.
type FindOption func(*findConfig)

type findConfig struct {
	sortField string
	sortDesc  bool
	limit     int64
}

// WithSort orders results by a declared field (or _id).
func WithSort(field string, desc bool) FindOption {
	return func(c *findConfig) {
		c.sortField = field
		c.sortDesc = desc
	}
}

// WithLimit caps the number of results. Zero means no limit.
func WithLimit(n int64) FindOption {
	return func(c *findConfig) { c.limit = n }
}

// Store is a typed CRUD layer over one collection with a fixed Schema.
type Store[T any] struct {
	coll   CollectionInterface
	schema Schema
	log    logger.Logger
}

// NewStore creates a Store for records of type T.
func NewStore[T any](coll CollectionInterface, schema Schema, log logger.Logger) *Store[T] {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store[T]{
		coll:   coll,
		schema: schema,
		log:    log.WithComponent("docstore").WithFields(map[string]interface{}{"collection": schema.Collection}),
	}
}

// Schema returns the store's schema.
func (s *Store[T]) Schema() Schema { return s.schema }

// EnsureIndexes creates the given indexes on the underlying collection.
func (s *Store[T]) EnsureIndexes(ctx context.Context, models ...mongo.IndexModel) error {
	if err := s.coll.EnsureIndexes(ctx, models); err != nil {
		return s.wrap("create indexes", err)
	}
	return nil
}

// Create validates record, assigns it a new id and inserts it.
func (s *Store[T]) Create(ctx context.Context, record T) (primitive.ObjectID, error) {
	doc, err := toDocument(record)
	if err != nil {
		return primitive.NilObjectID, apperrors.NewValidationError("record is not encodable").WithCause(err)
	}
	if err := s.schema.ValidateRecord(doc); err != nil {
		return primitive.NilObjectID, err
	}

	id := NewID()
	doc["_id"] = id
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return primitive.NilObjectID, s.wrap("insert", err)
	}
	return id, nil
}

// Find returns every record whose fields equal the filter values. An empty filter returns all records.
func (s *Store[T]) Find(ctx context.Context, filter map[string]interface{}, opts ...FindOption) ([]T, error) {
	if err := s.schema.ValidateFilter(filter); err != nil {
		return nil, err
	}
	cfg := findConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	findOpts := options.Find()
	if cfg.sortField != "" {
		if cfg.sortField != "_id" && !s.schema.HasField(cfg.sortField) {
			return nil, apperrors.NewValidationError(fmt.Sprintf("cannot sort by %q", cfg.sortField))
		}
		dir := 1
		if cfg.sortDesc {
			dir = -1
		}
		findOpts.SetSort(bson.D{{Key: cfg.sortField, Value: dir}})
	}
	if cfg.limit > 0 {
		findOpts.SetLimit(cfg.limit)
	}

	cur, err := s.coll.Find(ctx, bson.M(copyFilter(filter)), findOpts)
	if err != nil {
		return nil, s.wrap("find", err)
	}
	defer cur.Close(ctx)

	results := make([]T, 0)
	for cur.Next(ctx) {
		var rec T
		if err := cur.Decode(&rec); err != nil {
			return nil, s.wrap("decode", err)
		}
		results = append(results, rec)
	}
	if err := cur.Err(); err != nil {
		return nil, s.wrap("iterate", err)
	}
	return results, nil
}

// FindOne returns the first record matching filter, or nil.
func (s *Store[T]) FindOne(ctx context.Context, filter map[string]interface{}) (*T, error) {
	if err := s.schema.ValidateFilter(filter); err != nil {
		return nil, err
	}
	return s.decodeOne("find one", s.coll.FindOne(ctx, bson.M(copyFilter(filter))))
}

// FindByID parses rawID and returns the matching record, or nil when none exists.
func (s *Store[T]) FindByID(ctx context.Context, rawID string) (*T, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return nil, err
	}
	return s.decodeOne("find by id", s.coll.FindOne(ctx, bson.M{"_id": id}))
}

// UpdateByID sets the patch fields on the record with rawID and returns the
// number of records matched (0 or 1).
func (s *Store[T]) UpdateByID(ctx context.Context, rawID string, patch map[string]interface{}) (int64, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return 0, err
	}
	if err := s.schema.ValidatePatch(patch); err != nil {
		return 0, err
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M(patch)})
	if err != nil {
		return 0, s.wrap("update", err)
	}
	return res.Matched(), nil
}

// DeleteByID removes the record with rawID and returns the number removed (0 or 1).
func (s *Store[T]) DeleteByID(ctx context.Context, rawID string) (int64, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return 0, err
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, s.wrap("delete", err)
	}
	return res.Deleted(), nil
}

// Count returns the number of records matching an equality filter.
func (s *Store[T]) Count(ctx context.Context, filter map[string]interface{}) (int64, error) {
	if err := s.schema.ValidateFilter(filter); err != nil {
		return 0, err
	}
	n, err := s.coll.CountDocuments(ctx, bson.M(copyFilter(filter)))
	if err != nil {
		return 0, s.wrap("count", err)
	}
	return n, nil
}

// The raw primitives below take backend filters and update documents as-is.
// They are for trusted callers building atomic conditional writes.

// UpdateOne applies update to the first record matching filter and returns the matched count.
func (s *Store[T]) UpdateOne(ctx context.Context, filter, update interface{}) (int64, error) {
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, s.wrap("update one", err)
	}
	return res.Matched(), nil
}

// FindOneAndUpdate atomically updates the first match and returns it, as it is
// after the update when returnAfter is set. nil means nothing matched.
func (s *Store[T]) FindOneAndUpdate(ctx context.Context, filter, update interface{}, returnAfter bool) (*T, error) {
	opts := options.FindOneAndUpdate()
	if returnAfter {
		opts.SetReturnDocument(options.After)
	}
	return s.decodeOne("find one and update", s.coll.FindOneAndUpdate(ctx, filter, update, opts))
}

// FindOneRaw is FindOne with a backend filter.
func (s *Store[T]) FindOneRaw(ctx context.Context, filter interface{}) (*T, error) {
	return s.decodeOne("find one", s.coll.FindOne(ctx, filter))
}

// DeleteMany removes every record matching filter.
func (s *Store[T]) DeleteMany(ctx context.Context, filter interface{}) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, s.wrap("delete many", err)
	}
	return res.Deleted(), nil
}

func (s *Store[T]) decodeOne(op string, res SingleResultInterface) (*T, error) {
	var rec T
	if err := res.Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, s.wrap(op, err)
	}
	return &rec, nil
}

// wrap maps a backend error onto the application taxonomy.
func (s *Store[T]) wrap(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return apperrors.NewDuplicateKeyError(s.schema.Collection + ": duplicate key").
			WithCause(err).WithComponent("docstore")
	}
	s.log.WithFields(map[string]interface{}{"operation": op}).Errorf("backend error: %v", err)
	return apperrors.NewBackendUnavailableError(s.schema.Collection+" "+op, err).WithComponent("docstore")
}

func toDocument(v interface{}) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func copyFilter(filter map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(filter))
	for k, v := range filter {
		out[k] = v
	}
	return out
}
