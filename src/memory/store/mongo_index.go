package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ctxmem/ctxmem/src/memory/model"
)

// MongoIndex implements VectorIndex on MongoDB. Similarity ranking happens in
// process after fetching candidate documents, which keeps the backend usable
// without an Atlas vector-search deployment.
type MongoIndex struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ VectorIndex = (*MongoIndex)(nil)

const mongoCloseTimeout = 5 * time.Second

type mongoEntry struct {
	ID        string         `bson:"_id"`
	Content   string         `bson:"content"`
	Embedding []float64      `bson:"embedding,omitempty"`
	Metadata  map[string]any `bson:"metadata,omitempty"`
	CreatedAt time.Time      `bson:"created_at"`
}

// NewMongoIndex connects to MongoDB and returns an index over the given
// collection.
func NewMongoIndex(ctx context.Context, uri, database, collection string) (*MongoIndex, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if collection == "" {
		return nil, errors.New("mongo collection name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w: %v", model.ErrBackendUnavailable, err)
	}
	return &MongoIndex{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// Add inserts a knowledge entry and returns its identifier.
func (m *MongoIndex) Add(ctx context.Context, content string, embedding []float32, metadata map[string]any) (string, error) {
	if m == nil || m.collection == nil {
		return "", model.ErrBackendUnavailable
	}
	if content == "" {
		return "", fmt.Errorf("%w: empty content", model.ErrMalformedItem)
	}
	entry := mongoEntry{
		ID:        "vec_" + uuid.NewString(),
		Content:   content,
		Embedding: float64s(embedding),
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := m.collection.InsertOne(ctx, entry); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// Search fetches documents carrying an embedding and ranks them by cosine
// similarity in process.
func (m *MongoIndex) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]model.KnowledgeHit, error) {
	if m == nil || m.collection == nil {
		return nil, model.ErrBackendUnavailable
	}
	if topK <= 0 {
		return nil, nil
	}
	cursor, err := m.collection.Find(ctx, bson.M{"embedding": bson.M{"$exists": true, "$ne": nil}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var hits []model.KnowledgeHit
	for cursor.Next(ctx) {
		var entry mongoEntry
		if err := cursor.Decode(&entry); err != nil {
			return nil, err
		}
		embedding := float32s(entry.Embedding)
		hits = append(hits, model.KnowledgeHit{
			VectorID:  entry.ID,
			Content:   entry.Content,
			Embedding: embedding,
			Metadata:  entry.Metadata,
			Score:     model.CosineSimilarity(queryEmbedding, embedding),
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK < len(hits) {
		hits = hits[:topK]
	}
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits, nil
}

// GetByID fetches a single entry.
func (m *MongoIndex) GetByID(ctx context.Context, id string) (model.KnowledgeHit, error) {
	if m == nil || m.collection == nil {
		return model.KnowledgeHit{}, model.ErrBackendUnavailable
	}
	var entry mongoEntry
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.KnowledgeHit{}, fmt.Errorf("vector entry %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.KnowledgeHit{}, err
	}
	return model.KnowledgeHit{
		VectorID:  entry.ID,
		Content:   entry.Content,
		Embedding: float32s(entry.Embedding),
		Metadata:  entry.Metadata,
	}, nil
}

// Delete removes an entry.
func (m *MongoIndex) Delete(ctx context.Context, id string) error {
	if m == nil || m.collection == nil {
		return model.ErrBackendUnavailable
	}
	_, err := m.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// Count reports the number of stored entries.
func (m *MongoIndex) Count(ctx context.Context) (int, error) {
	if m == nil || m.collection == nil {
		return 0, model.ErrBackendUnavailable
	}
	count, err := m.collection.CountDocuments(ctx, bson.M{})
	return int(count), err
}

// Clear removes every entry.
func (m *MongoIndex) Clear(ctx context.Context) error {
	if m == nil || m.collection == nil {
		return model.ErrBackendUnavailable
	}
	_, err := m.collection.DeleteMany(ctx, bson.M{})
	return err
}

// Close disconnects the client.
func (m *MongoIndex) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func float64s(in []float32) []float64 {
	if len(in) == 0 {
		return nil
	}
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func float32s(in []float64) []float32 {
	if len(in) == 0 {
		return nil
	}
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
