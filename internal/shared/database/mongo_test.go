package database

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestConnect_RequiresURI(t *testing.T) {
	_, err := Connect(context.Background(), &MongoConfig{}, nil)
	assert.Error(t, err)

	_, err = Connect(context.Background(), nil, nil)
	assert.Error(t, err)
}

// MongoLiveTestSuite runs against MONGODB_URI and is skipped without one.
type MongoLiveTestSuite struct {
	suite.Suite
	mongo *Mongo
}

func (s *MongoLiveTestSuite) SetupSuite() {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		s.T().Skip("MONGODB_URI not set")
	}
	cfg := &MongoConfig{
		URI:               uri,
		DatabaseName:      "catalog_service_test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", ""),
		ConnectionTimeout: 3 * time.Second,
		MaxPoolSize:       10,
	}
	m, err := Connect(context.Background(), cfg, nil)
	if err != nil {
		s.T().Skipf("MongoDB not reachable: %v", err)
	}
	s.mongo = m
}

func (s *MongoLiveTestSuite) TearDownSuite() {
	if s.mongo == nil {
		return
	}
	ctx := context.Background()
	s.NoError(s.mongo.Database().Drop(ctx))
	s.NoError(s.mongo.Close(ctx))
}

func (s *MongoLiveTestSuite) TestPing() {
	s.NoError(s.mongo.Ping(context.Background()))
}

func (s *MongoLiveTestSuite) TestCollectionRoundTrip() {
	ctx := context.Background()
	coll := s.mongo.Collection("items")

	id, err := coll.InsertOne(ctx, bson.M{"title": "Blue in Green", "artist": "Bill Evans"})
	s.Require().NoError(err)

	var doc bson.M
	s.Require().NoError(coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc))
	s.Equal("Blue in Green", doc["title"])

	res, err := coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"title": "Peace Piece"}})
	s.Require().NoError(err)
	s.Equal(int64(1), res.Matched())

	n, err := coll.CountDocuments(ctx, bson.M{"title": "Peace Piece"})
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	cur, err := coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "title", Value: 1}}))
	s.Require().NoError(err)
	count := 0
	for cur.Next(ctx) {
		count++
	}
	s.NoError(cur.Err())
	s.NoError(cur.Close(ctx))
	s.Equal(1, count)

	del, err := coll.DeleteMany(ctx, bson.M{})
	s.Require().NoError(err)
	s.Equal(int64(1), del.Deleted())
}

func (s *MongoLiveTestSuite) TestUniqueIndex() {
	ctx := context.Background()
	coll := s.mongo.Collection("users")

	s.Require().NoError(coll.EnsureIndexes(ctx, []mongo.IndexModel{{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	}}))

	_, err := coll.InsertOne(ctx, bson.M{"username": "alice"})
	s.Require().NoError(err)
	_, err = coll.InsertOne(ctx, bson.M{"username": "alice"})
	s.True(mongo.IsDuplicateKeyError(err))
}

func (s *MongoLiveTestSuite) TestIncrementIsAtomic() {
	ctx := context.Background()
	coll := s.mongo.Collection("sessions")
	id, err := coll.InsertOne(ctx, bson.M{"payload": bson.M{}})
	s.Require().NoError(err)

	const workers = 20
	done := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"payload.visits": 1}})
			done <- err
		}()
	}
	for i := 0; i < workers; i++ {
		s.NoError(<-done)
	}

	var doc struct {
		Payload map[string]int64 `bson:"payload"`
	}
	s.Require().NoError(coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc))
	s.Equal(int64(workers), doc.Payload["visits"])
}

func TestMongoLiveTestSuite(t *testing.T) {
	suite.Run(t, new(MongoLiveTestSuite))
}
