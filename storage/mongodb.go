package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/johnwmail/pasta/internal/common"
	"github.com/johnwmail/pasta/models"
)

var _ MetadataIndex = (*MongoMetadataIndex)(nil)

// mongoArtifact is the stored document. Timestamps are kept as Unix
// nanoseconds because BSON dates only carry milliseconds.
type mongoArtifact struct {
	Identifier string `bson:"_id"`
	Filename   string `bson:"filename"`
	Extension  string `bson:"extension"`
	CreatedAt  int64  `bson:"created_at"`
	UpdatedAt  int64  `bson:"updated_at"`
	Seq        int64  `bson:"seq"`
}

func toMongoArtifact(a *models.Artifact) mongoArtifact {
	return mongoArtifact{
		Identifier: a.Identifier,
		Filename:   a.Filename,
		Extension:  a.Extension,
		CreatedAt:  a.CreatedAt.UnixNano(),
		UpdatedAt:  a.UpdatedAt.UnixNano(),
		Seq:        a.Seq,
	}
}

func (d mongoArtifact) toModel() models.Artifact {
	return models.Artifact{
		Identifier: d.Identifier,
		Filename:   d.Filename,
		Extension:  d.Extension,
		CreatedAt:  time.Unix(0, d.CreatedAt).UTC(),
		UpdatedAt:  time.Unix(0, d.UpdatedAt).UTC(),
		Seq:        d.Seq,
	}
}

// MongoMetadataIndex implements MetadataIndex using MongoDB
type MongoMetadataIndex struct {
	client     *mongo.Client
	collection *mongo.Collection
	seq        atomic.Int64
}

// NewMongoMetadataIndex connects, pings and ensures indexes exist.
func NewMongoMetadataIndex(ctx context.Context, uri, dbName, collection string) (*MongoMetadataIndex, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	// Test the connection
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	idx := &MongoMetadataIndex{
		client:     client,
		collection: client.Database(dbName).Collection(collection),
	}
	idx.seq.Store(time.Now().UnixNano())

	if err := idx.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return idx, nil
}

// createIndexes backs the List ordering.
func (m *MongoMetadataIndex) createIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "seq", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create mongodb indexes: %w", err)
	}
	return nil
}

func (m *MongoMetadataIndex) Insert(ctx context.Context, a *models.Artifact) error {
	a.Seq = m.seq.Add(1)
	_, err := m.collection.InsertOne(ctx, toMongoArtifact(a))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert artifact %s: %w", a.Identifier, ErrDuplicateIdentifier)
		}
		return fmt.Errorf("insert artifact %s: %w", a.Identifier, err)
	}
	return nil
}

func (m *MongoMetadataIndex) Get(ctx context.Context, id string) (*models.Artifact, error) {
	var doc mongoArtifact
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("get artifact %s: %w", id, err)
	}
	a := doc.toModel()
	return &a, nil
}

func (m *MongoMetadataIndex) Exists(ctx context.Context, id string) (bool, error) {
	n, err := m.collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check artifact %s: %w", id, err)
	}
	return n > 0, nil
}

func (m *MongoMetadataIndex) Update(ctx context.Context, a *models.Artifact) error {
	res, err := m.collection.UpdateOne(ctx,
		bson.M{"_id": a.Identifier},
		bson.M{"$set": bson.M{
			"filename":   a.Filename,
			"extension":  a.Extension,
			"updated_at": a.UpdatedAt.UnixNano(),
		}},
	)
	if err != nil {
		return fmt.Errorf("update artifact %s: %w", a.Identifier, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update artifact %s: %w", a.Identifier, common.ErrNotFound)
	}
	return nil
}

func (m *MongoMetadataIndex) Delete(ctx context.Context, id string) error {
	res, err := m.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete artifact %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete artifact %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (m *MongoMetadataIndex) List(ctx context.Context) ([]models.Artifact, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "seq", Value: 1}})
	cur, err := m.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoArtifact
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w", err)
	}
	artifacts := make([]models.Artifact, 0, len(docs))
	for _, d := range docs {
		artifacts = append(artifacts, d.toModel())
	}
	return artifacts, nil
}

// Close closes the MongoDB connection
func (m *MongoMetadataIndex) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return m.client.Disconnect(ctx)
}
