package mongostore

import (
	"context"

	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type workflowRepo struct {
	runs  *mongo.Collection
	steps *mongo.Collection
}

func (r *workflowRepo) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	_, err := r.runs.InsertOne(ctx, run)
	return translate(err)
}

func (r *workflowRepo) GetRun(ctx context.Context, id string) (*models.WorkflowRun, error) {
	return findOne[models.WorkflowRun](ctx, r.runs, bson.M{"_id": id})
}

func (r *workflowRepo) UpdateRun(ctx context.Context, run *models.WorkflowRun) error {
	res, err := r.runs.ReplaceOne(ctx, bson.M{"_id": run.ID}, run)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *workflowRepo) ListRunsByStatus(ctx context.Context, status string) ([]models.WorkflowRun, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return findAll[models.WorkflowRun](ctx, r.runs, bson.M{"status": status}, opts)
}

func (r *workflowRepo) CountRunning(ctx context.Context, userID string) (int64, error) {
	return r.runs.CountDocuments(ctx, bson.M{"user_id": userID, "status": models.RunRunning})
}

func (r *workflowRepo) GetStep(ctx context.Context, workflowID, name string) (*models.WorkflowStep, error) {
	return findOne[models.WorkflowStep](ctx, r.steps, bson.M{"workflow_id": workflowID, "name": name})
}

func (r *workflowRepo) SaveStep(ctx context.Context, s *models.WorkflowStep) error {
	filter := bson.M{"workflow_id": s.WorkflowID, "name": s.Name}
	update := bson.M{
		"$set": bson.M{
			"input_hash": s.InputHash,
			"status":     s.Status,
			"output":     s.Output,
			"attempts":   s.Attempts,
			"error":      s.Error,
			"updated_at": s.UpdatedAt,
		},
		"$setOnInsert": bson.M{"created_at": s.CreatedAt},
	}
	_, err := r.steps.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return translate(err)
}

func (r *workflowRepo) ListSteps(ctx context.Context, workflowID string) ([]models.WorkflowStep, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "name", Value: 1}})
	return findAll[models.WorkflowStep](ctx, r.steps, bson.M{"workflow_id": workflowID}, opts)
}
