package mongostore

import (
	"context"
	"strings"
	"time"

	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type userRepo struct {
	coll *mongo.Collection
}

func (r *userRepo) Create(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(u.Email)
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	_, err := r.coll.InsertOne(ctx, u)
	return translate(err)
}

func (r *userRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return findOne[models.User](ctx, r.coll, bson.M{"_id": id})
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return findOne[models.User](ctx, r.coll, bson.M{"email": strings.ToLower(email)})
}

func (r *userRepo) UpdateProfile(ctx context.Context, id primitive.ObjectID, p store.ProfileUpdate) error {
	set := bson.M{"updated_at": time.Now()}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.Gender != nil {
		set["gender"] = *p.Gender
	}
	if p.StylePreferences != nil {
		set["style_preferences"] = p.StylePreferences
	}
	if p.BudgetMin != nil {
		set["budget_min"] = *p.BudgetMin
	}
	if p.BudgetMax != nil {
		set["budget_max"] = *p.BudgetMax
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *userRepo) CompareAndSwapCredits(ctx context.Context, id primitive.ObjectID, expected, next models.Credits) (bool, error) {
	filter := bson.M{
		"_id":                    id,
		"credits.free_remaining": expected.FreeRemaining,
		"credits.free_per_week":  expected.FreePerWeek,
		"credits.purchased":      expected.Purchased,
		"credits.next_reset_at":  expected.NextResetAt,
	}
	update := bson.M{"$set": bson.M{"credits": next, "updated_at": time.Now()}}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	// distinguish a lost race from a missing user
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, store.ErrNotFound
	}
	return false, nil
}

type userImageRepo struct {
	coll *mongo.Collection
}

func (r *userImageRepo) Create(ctx context.Context, img *models.UserImage) error {
	if img.ID.IsZero() {
		img.ID = primitive.NewObjectID()
	}
	_, err := r.coll.InsertOne(ctx, img)
	return translate(err)
}

func (r *userImageRepo) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.UserImage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return findAll[models.UserImage](ctx, r.coll, bson.M{"user_id": userID}, opts)
}

func (r *userImageRepo) CountByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{"user_id": userID})
}

func (r *userImageRepo) GetPrimary(ctx context.Context, userID primitive.ObjectID) (*models.UserImage, error) {
	return findOne[models.UserImage](ctx, r.coll, bson.M{"user_id": userID, "is_primary": true})
}

func (r *userImageRepo) SetPrimary(ctx context.Context, userID, imageID primitive.ObjectID) error {
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": imageID, "user_id": userID})
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}

	if _, err := r.coll.UpdateMany(ctx,
		bson.M{"user_id": userID, "is_primary": true},
		bson.M{"$set": bson.M{"is_primary": false}},
	); err != nil {
		return err
	}
	_, err = r.coll.UpdateOne(ctx, bson.M{"_id": imageID}, bson.M{"$set": bson.M{"is_primary": true}})
	return err
}
