// Package mongostore implements store.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raushankrgupta/nima-backend/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection      = "users"
	userImagesCollection = "user_images"
	itemsCollection      = "items"
	looksCollection      = "looks"
	lookImagesCollection = "look_images"
	tryOnsCollection     = "item_tryons"
	runsCollection       = "workflow_runs"
	stepsCollection      = "workflow_steps"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.Store = (*Store)(nil)

// Connect initializes the MongoDB connection and makes sure the indexes exist.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s := &Store{client: client, db: client.Database(dbName)}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		userImagesCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "is_primary", Value: 1}}},
		},
		itemsCollection: {
			{Keys: bson.D{{Key: "name", Value: "text"}}},
			{Keys: bson.D{{Key: "active", Value: 1}, {Key: "gender", Value: 1}}},
			{Keys: bson.D{{Key: "source_url", Value: 1}}, Options: options.Index().SetSparse(true)},
		},
		looksCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "generation_status", Value: 1}}},
			{Keys: bson.D{{Key: "workflow_id", Value: 1}, {Key: "batch_index", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		lookImagesCollection: {
			{Keys: bson.D{{Key: "look_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		tryOnsCollection: {
			{Keys: bson.D{{Key: "item_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		runsCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		stepsCollection: {
			{Keys: bson.D{{Key: "workflow_id", Value: 1}, {Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}

	for coll, idx := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

func (s *Store) Users() store.UserRepository {
	return &userRepo{coll: s.db.Collection(usersCollection)}
}

func (s *Store) UserImages() store.UserImageRepository {
	return &userImageRepo{coll: s.db.Collection(userImagesCollection)}
}

func (s *Store) Items() store.ItemRepository {
	return &itemRepo{coll: s.db.Collection(itemsCollection)}
}

func (s *Store) Looks() store.LookRepository {
	return &lookRepo{coll: s.db.Collection(looksCollection)}
}

func (s *Store) LookImages() store.LookImageRepository {
	return &lookImageRepo{coll: s.db.Collection(lookImagesCollection)}
}

func (s *Store) TryOns() store.TryOnRepository {
	return &tryOnRepo{coll: s.db.Collection(tryOnsCollection)}
}

func (s *Store) Workflows() store.WorkflowRepository {
	return &workflowRepo{runs: s.db.Collection(runsCollection), steps: s.db.Collection(stepsCollection)}
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// translate maps driver errors onto the store sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	default:
		return err
	}
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []T
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOneOptions) (*T, error) {
	var out T
	if err := coll.FindOne(ctx, filter, opts...).Decode(&out); err != nil {
		return nil, translate(err)
	}
	return &out, nil
}
