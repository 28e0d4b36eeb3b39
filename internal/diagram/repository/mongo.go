package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowdeck/flowdeck/backend/go-services/internal/diagram"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo persists diagrams and revisions in two collections. The
// version check in ApplyUpdate is a single conditional update whose filter
// includes the expected version; the revision insert runs in the same
// server-side transaction, so a Mongo replica set is required.
type MongoRepo struct {
	diagrams  *mongo.Collection
	revisions *mongo.Collection
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	diagrams := db.Collection("diagrams")
	revisions := db.Collection("revisions")
	// unique id lookup, and the (diagramId, revision) uniqueness invariant
	diagrams.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	revisions.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "diagramId", Value: 1}, {Key: "revision", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return &MongoRepo{diagrams: diagrams, revisions: revisions}
}

// liveFilter matches a non-deleted diagram by id.
func liveFilter(id string) bson.M {
	return bson.M{"id": id, "deletedAt": bson.M{"$exists": false}}
}

// wrapStoreErr maps driver timeouts onto the retryable error kind.
func wrapStoreErr(op string, err error) error {
	if mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, diagram.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (m *MongoRepo) withTxn(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	sess, err := m.diagrams.Database().Client().StartSession()
	if err != nil {
		return wrapStoreErr("start session", err)
	}
	defer sess.EndSession(ctx)
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (m *MongoRepo) Create(ctx context.Context, d *diagram.Diagram) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.Version = 1
	d.CreatedAt = now
	d.UpdatedAt = now
	if d.Visibility == "" {
		d.Visibility = diagram.VisibilityPrivate
	}
	rev := diagram.Revision{
		DiagramID: d.ID,
		Revision:  1,
		Payload:   d.Payload,
		Title:     d.Title,
		AuthorID:  d.OwnerID,
		CreatedAt: now,
	}
	err := m.withTxn(ctx, func(sc mongo.SessionContext) error {
		if _, err := m.diagrams.InsertOne(sc, d); err != nil {
			return err
		}
		_, err := m.revisions.InsertOne(sc, rev)
		return err
	})
	if err != nil {
		return wrapStoreErr("create diagram", err)
	}
	return nil
}

func (m *MongoRepo) Get(ctx context.Context, id string, includeDeleted bool) (*diagram.Diagram, error) {
	filter := liveFilter(id)
	if includeDeleted {
		filter = bson.M{"id": id}
	}
	var d diagram.Diagram
	if err := m.diagrams.FindOne(ctx, filter).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, diagram.ErrNotFound
		}
		return nil, wrapStoreErr("get diagram", err)
	}
	return &d, nil
}

func (m *MongoRepo) List(ctx context.Context, f diagram.ListFilter) (diagram.Page, error) {
	filter := bson.M{}
	if !f.IncludeDeleted {
		filter["deletedAt"] = bson.M{"$exists": false}
	}
	if f.OwnerID != "" {
		filter["ownerId"] = f.OwnerID
	}
	if f.ProjectID != "" {
		filter["projectId"] = f.ProjectID
	}
	if f.Cursor != "" {
		filter["id"] = bson.M{"$gt": f.Cursor}
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "id", Value: 1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"payload": 0})
	cur, err := m.diagrams.Find(ctx, filter, opts)
	if err != nil {
		return diagram.Page{}, wrapStoreErr("list diagrams", err)
	}
	defer cur.Close(ctx)

	page := diagram.Page{Items: []diagram.Summary{}}
	for cur.Next(ctx) {
		var d diagram.Diagram
		if err := cur.Decode(&d); err != nil {
			return diagram.Page{}, wrapStoreErr("decode diagram", err)
		}
		page.Items = append(page.Items, d.Summary())
	}
	if err := cur.Err(); err != nil {
		return diagram.Page{}, wrapStoreErr("list diagrams", err)
	}
	if len(page.Items) == limit {
		page.NextCursor = page.Items[len(page.Items)-1].ID
	}
	return page, nil
}

func (m *MongoRepo) ApplyUpdate(ctx context.Context, id string, in diagram.UpdateInput) (*diagram.Diagram, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if in.Title != nil {
		set["title"] = *in.Title
	}
	if in.Payload != nil {
		set["payload"] = *in.Payload
	}
	if in.Visibility != nil {
		set["visibility"] = *in.Visibility
	}
	filter := liveFilter(id)
	filter["version"] = in.ExpectedVersion
	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated diagram.Diagram
	err := m.withTxn(ctx, func(sc mongo.SessionContext) error {
		if err := m.diagrams.FindOneAndUpdate(sc, filter, update, opts).Decode(&updated); err != nil {
			return err
		}
		_, err := m.revisions.InsertOne(sc, diagram.Revision{
			DiagramID:     id,
			Revision:      updated.Version,
			Payload:       updated.Payload,
			Title:         updated.Title,
			AuthorID:      in.AuthorID,
			ChangeMessage: in.ChangeMessage,
			CreatedAt:     updated.UpdatedAt,
		})
		return err
	})
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, wrapStoreErr("apply update", err)
	}

	// The conditional update matched nothing: either the diagram is gone or
	// another writer won the race. Read the live row to tell them apart.
	cur, err := m.Get(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return nil, &diagram.ConflictError{
		CurrentVersion: cur.Version,
		CurrentPayload: cur.Payload,
		CurrentTitle:   cur.Title,
	}
}

func (m *MongoRepo) SoftDelete(ctx context.Context, id string) error {
	res, err := m.diagrams.UpdateOne(ctx, liveFilter(id), bson.M{
		"$set": bson.M{"deletedAt": time.Now().UTC(), "updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return wrapStoreErr("soft delete", err)
	}
	if res.MatchedCount == 0 {
		return diagram.ErrNotFound
	}
	return nil
}

func (m *MongoRepo) Restore(ctx context.Context, id string) error {
	res, err := m.diagrams.UpdateOne(ctx,
		bson.M{"id": id, "deletedAt": bson.M{"$exists": true}},
		bson.M{"$unset": bson.M{"deletedAt": ""}, "$set": bson.M{"updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return wrapStoreErr("restore", err)
	}
	if res.MatchedCount == 0 {
		return diagram.ErrNotFound
	}
	return nil
}

func (m *MongoRepo) ListRevisions(ctx context.Context, diagramID string) ([]diagram.Revision, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "revision", Value: 1}}).
		SetProjection(bson.M{"payload": 0})
	cur, err := m.revisions.Find(ctx, bson.M{"diagramId": diagramID}, opts)
	if err != nil {
		return nil, wrapStoreErr("list revisions", err)
	}
	defer cur.Close(ctx)
	out := []diagram.Revision{}
	for cur.Next(ctx) {
		var r diagram.Revision
		if err := cur.Decode(&r); err != nil {
			return nil, wrapStoreErr("decode revision", err)
		}
		out = append(out, r)
	}
	if err := cur.Err(); err != nil {
		return nil, wrapStoreErr("list revisions", err)
	}
	if len(out) == 0 {
		return nil, diagram.ErrNotFound
	}
	return out, nil
}

func (m *MongoRepo) GetRevision(ctx context.Context, diagramID string, rev int64) (*diagram.Revision, error) {
	var r diagram.Revision
	err := m.revisions.FindOne(ctx, bson.M{"diagramId": diagramID, "revision": rev}).Decode(&r)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, diagram.ErrRevisionNotFound
		}
		return nil, wrapStoreErr("get revision", err)
	}
	return &r, nil
}
