package export

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Record is the persisted metadata for one diagram export: which diagram
// and version were exported, and the object-storage key holding the XML.
type Record struct {
	ExportID  string    `bson:"exportId" json:"exportId"`
	DiagramID string    `bson:"diagramId" json:"diagramId"`
	Version   int64     `bson:"version" json:"version"`
	AuthorID  string    `bson:"authorId" json:"authorId"`
	ObjectKey string    `bson:"objectKey" json:"objectKey"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Store persists export metadata in a Mongo collection.
type Store struct {
	col *mongo.Collection
}

func NewStore(col *mongo.Collection) *Store {
	col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "exportId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return &Store{col: col}
}

// Save upserts an export record by exportId.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	filter := bson.M{"exportId": rec.ExportID}
	_, err := s.col.UpdateOne(ctx, filter, bson.M{"$set": rec}, options.Update().SetUpsert(true))
	return err
}

// Load fetches an export record by exportId. Returns nil when not found.
func (s *Store) Load(ctx context.Context, exportID string) (*Record, error) {
	var rec Record
	if err := s.col.FindOne(ctx, bson.M{"exportId": exportID}).Decode(&rec); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListByDiagram returns export records for a diagram, newest first.
func (s *Store) ListByDiagram(ctx context.Context, diagramID string) ([]Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := s.col.Find(ctx, bson.M{"diagramId": diagramID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []Record{}
	for cur.Next(ctx) {
		var rec Record
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, cur.Err()
}
