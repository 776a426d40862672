package mongostore

import (
	"context"

	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type tryOnRepo struct {
	coll *mongo.Collection
}

func (r *tryOnRepo) Create(ctx context.Context, t *models.ItemTryOn) error {
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	_, err := r.coll.InsertOne(ctx, t)
	return translate(err)
}

func (r *tryOnRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.ItemTryOn, error) {
	return findOne[models.ItemTryOn](ctx, r.coll, bson.M{"_id": id})
}

func (r *tryOnRepo) ListByStatus(ctx context.Context, statuses ...string) ([]models.ItemTryOn, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return findAll[models.ItemTryOn](ctx, r.coll, bson.M{"status": bson.M{"$in": statuses}}, opts)
}

func (r *tryOnRepo) GetByItemUser(ctx context.Context, itemID, userID primitive.ObjectID) (*models.ItemTryOn, error) {
	return findOne[models.ItemTryOn](ctx, r.coll, bson.M{"item_id": itemID, "user_id": userID})
}

func (r *tryOnRepo) Update(ctx context.Context, t *models.ItemTryOn) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": t.ID}, t)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
