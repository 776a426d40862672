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

type itemRepo struct {
	coll *mongo.Collection
}

func (r *itemRepo) Create(ctx context.Context, item *models.Item) error {
	if item.ID.IsZero() {
		item.ID = primitive.NewObjectID()
	}
	_, err := r.coll.InsertOne(ctx, item)
	return translate(err)
}

func (r *itemRepo) UpsertBySourceURL(ctx context.Context, item *models.Item) error {
	existing, err := findOne[models.Item](ctx, r.coll, bson.M{"source_url": item.SourceURL})
	if errors.Is(err, store.ErrNotFound) {
		return r.Create(ctx, item)
	}
	if err != nil {
		return err
	}

	item.ID = existing.ID
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = time.Now()
	_, err = r.coll.ReplaceOne(ctx, bson.M{"_id": existing.ID}, item)
	return translate(err)
}

func (r *itemRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Item, error) {
	return findOne[models.Item](ctx, r.coll, bson.M{"_id": id})
}

func (r *itemRepo) GetMany(ctx context.Context, ids []primitive.ObjectID) ([]models.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := findAll[models.Item](ctx, r.coll, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}

	// keep the caller's order
	byID := make(map[primitive.ObjectID]models.Item, len(found))
	for _, it := range found {
		byID[it.ID] = it
	}
	out := make([]models.Item, 0, len(found))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func itemFilter(f store.ItemFilter) bson.M {
	filter := bson.M{}
	if f.ActiveOnly {
		filter["active"] = true
	}
	if f.Gender != "" {
		filter["gender"] = bson.M{"$in": []string{f.Gender, models.GenderUnisex}}
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if len(f.ExcludeIDs) > 0 {
		filter["_id"] = bson.M{"$nin": f.ExcludeIDs}
	}
	if f.Query != "" {
		filter["$text"] = bson.M{"$search": f.Query}
	}
	return filter
}

func (r *itemRepo) List(ctx context.Context, f store.ItemFilter) ([]models.Item, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if f.Skip > 0 {
		opts.SetSkip(f.Skip)
	}
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	return findAll[models.Item](ctx, r.coll, itemFilter(f), opts)
}

func (r *itemRepo) Count(ctx context.Context, f store.ItemFilter) (int64, error) {
	return r.coll.CountDocuments(ctx, itemFilter(f))
}
