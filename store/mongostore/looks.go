package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type lookRepo struct {
	coll *mongo.Collection
}

func (r *lookRepo) Create(ctx context.Context, l *models.Look) error {
	if l.ID.IsZero() {
		l.ID = primitive.NewObjectID()
	}
	_, err := r.coll.InsertOne(ctx, l)
	return translate(err)
}

func (r *lookRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Look, error) {
	return findOne[models.Look](ctx, r.coll, bson.M{"_id": id})
}

func (r *lookRepo) GetByWorkflowBatch(ctx context.Context, workflowID string, batchIndex int) (*models.Look, error) {
	return findOne[models.Look](ctx, r.coll, bson.M{"workflow_id": workflowID, "batch_index": batchIndex})
}

func (r *lookRepo) ListByUser(ctx context.Context, userID primitive.ObjectID, skip, limit int64) ([]models.Look, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	opts.SetSkip(skip)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return findAll[models.Look](ctx, r.coll, bson.M{"user_id": userID}, opts)
}

func (r *lookRepo) CountByStatus(ctx context.Context, userID primitive.ObjectID) (store.StatusCounts, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user_id": userID}}},
		{{Key: "$group", Value: bson.M{"_id": "$generation_status", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := store.StatusCounts{}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *lookRepo) ItemIDsByUser(ctx context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error) {
	values, err := r.coll.Distinct(ctx, "item_ids", bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	out := make([]primitive.ObjectID, 0, len(values))
	for _, v := range values {
		if id, ok := v.(primitive.ObjectID); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *lookRepo) UpdateStatus(ctx context.Context, id primitive.ObjectID, status, errMsg string) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"generation_status": status,
		"error_message":     errMsg,
		"updated_at":        time.Now(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

type lookImageRepo struct {
	coll *mongo.Collection
}

func (r *lookImageRepo) Save(ctx context.Context, img *models.LookImage) error {
	existing, err := r.GetByLook(ctx, img.LookID)
	switch {
	case err == nil:
		img.ID = existing.ID
		img.CreatedAt = existing.CreatedAt
	case !errors.Is(err, store.ErrNotFound):
		return err
	case img.ID.IsZero():
		img.ID = primitive.NewObjectID()
	}

	_, err = r.coll.ReplaceOne(ctx, bson.M{"look_id": img.LookID}, img, options.Replace().SetUpsert(true))
	return translate(err)
}

func (r *lookImageRepo) GetByLook(ctx context.Context, lookID primitive.ObjectID) (*models.LookImage, error) {
	return findOne[models.LookImage](ctx, r.coll, bson.M{"look_id": lookID})
}
