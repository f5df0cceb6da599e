// internal/store/mongodb.go
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBStore persists entries in a MongoDB collection. Expiry uses a TTL
// index on expires_at, with a read-side check so entries the server has not
// swept yet are still treated as absent.
type MongoDBStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type mongoDocument struct {
	Key       string     `bson:"_id"`
	Value     []byte     `bson:"value"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty"`
}

// NewMongoDBStore connects to the given URI and prepares the collection.
func NewMongoDBStore(ctx context.Context, uri, database, collection string) (*MongoDBStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongodb connection string is required")
	}
	if database == "" {
		database = "resilientfetch"
	}
	if collection == "" {
		collection = "fallback_kv"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	coll := client.Database(database).Collection(collection)

	// Server-side sweep of expired documents.
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}
	if _, err := coll.Indexes().CreateOne(ctx, indexModel); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create TTL index: %w", err)
	}

	return &MongoDBStore{client: client, collection: coll}, nil
}

// Get returns the value for key, treating expired documents as absent.
func (s *MongoDBStore) Get(ctx context.Context, key string) ([]byte, error) {
	var doc mongoDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb get failed: %w", err)
	}

	if doc.ExpiresAt != nil && time.Now().After(*doc.ExpiresAt) {
		return nil, ErrNotFound
	}
	return doc.Value, nil
}

// Set upserts the value with an absolute expiry derived from ttl.
func (s *MongoDBStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	doc := mongoDocument{Key: key, Value: value}
	if ttl > 0 {
		expiresAt := time.Now().Add(ttl)
		doc.ExpiresAt = &expiresAt
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, opts); err != nil {
		return fmt.Errorf("mongodb set failed: %w", err)
	}
	return nil
}

// Delete removes key if present.
func (s *MongoDBStore) Delete(ctx context.Context, key string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("mongodb delete failed: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoDBStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
