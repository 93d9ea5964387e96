package persist

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectMongo connects to MongoDB at uri and verifies the connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	// Ping to verify connection
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

type sessionDocument struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStorage implements Storage on a MongoDB collection, one document per key.
// Namespace separates consoles sharing a collection.
type MongoStorage struct {
	Collection *mongo.Collection
	Namespace  string
	// client is set when the storage owns the connection.
	client *mongo.Client
}

// NewMongoStorage connects to uri and stores state in database.sessions.
func NewMongoStorage(ctx context.Context, uri, database, namespace string) (*MongoStorage, error) {
	client, err := ConnectMongo(ctx, uri)
	if err != nil {
		return nil, err
	}
	return &MongoStorage{
		Collection: client.Database(database).Collection("sessions"),
		Namespace:  namespace,
		client:     client,
	}, nil
}

func (m *MongoStorage) id(key string) string {
	if m.Namespace == "" {
		return key
	}
	return m.Namespace + ":" + key
}

func (m *MongoStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if m.Collection == nil {
		return "", false, fmt.Errorf("mongo collection is nil")
	}
	var doc sessionDocument
	err := m.Collection.FindOne(ctx, bson.M{"_id": m.id(key)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return doc.Value, true, nil
}

func (m *MongoStorage) Set(ctx context.Context, key, value string) error {
	if m.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := m.Collection.UpdateOne(ctx,
		bson.M{"_id": m.id(key)},
		bson.M{"$set": bson.M{"value": value, "updated_at": time.Now()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (m *MongoStorage) Delete(ctx context.Context, keys ...string) error {
	if m.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	if len(keys) == 0 {
		return nil
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, m.id(k))
	}
	_, err := m.Collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	return err
}

func (m *MongoStorage) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}
