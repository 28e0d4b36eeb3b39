package access

import (
	"context"
	"time"

	"github.com/flowdeck/flowdeck/backend/go-services/internal/diagram"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoGrantStore stores collaborator grants in a Mongo collection keyed
// uniquely by (diagramId, principalId).
type MongoGrantStore struct {
	col *mongo.Collection
}

func NewMongoGrantStore(col *mongo.Collection) *MongoGrantStore {
	col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "diagramId", Value: 1}, {Key: "principalId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return &MongoGrantStore{col: col}
}

func (s *MongoGrantStore) GetGrant(ctx context.Context, diagramID, principalID string) (*diagram.Grant, error) {
	var g diagram.Grant
	err := s.col.FindOne(ctx, bson.M{"diagramId": diagramID, "principalId": principalID}).Decode(&g)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

func (s *MongoGrantStore) PutGrant(ctx context.Context, g *diagram.Grant) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	filter := bson.M{"diagramId": g.DiagramID, "principalId": g.PrincipalID}
	update := bson.M{"$set": bson.M{"role": g.Role, "createdAt": g.CreatedAt}}
	_, err := s.col.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (s *MongoGrantStore) RemoveGrant(ctx context.Context, diagramID, principalID string) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"diagramId": diagramID, "principalId": principalID})
	return err
}
