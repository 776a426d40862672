// Package store defines the document repositories the services depend on.
// mongostore is the production implementation; memstore mirrors its
// semantics in memory.
package store

import (
	"context"
	"errors"

	"github.com/raushankrgupta/nima-backend/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

type Store interface {
	Users() UserRepository
	UserImages() UserImageRepository
	Items() ItemRepository
	Looks() LookRepository
	LookImages() LookImageRepository
	TryOns() TryOnRepository
	Workflows() WorkflowRepository
	Close(ctx context.Context) error
}

type UserRepository interface {
	// Create assigns the ID. ErrDuplicate when the email is taken.
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, p ProfileUpdate) error
	// CompareAndSwapCredits replaces the credit fields only if they still
	// equal expected. It reports whether the swap happened.
	CompareAndSwapCredits(ctx context.Context, id primitive.ObjectID, expected, next models.Credits) (bool, error)
}

// ProfileUpdate holds the preference fields a user may change. Nil fields are left untouched.
type ProfileUpdate struct {
	Name             *string
	Gender           *string
	StylePreferences []string
	BudgetMin        *float64
	BudgetMax        *float64
}

type UserImageRepository interface {
	Create(ctx context.Context, img *models.UserImage) error
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.UserImage, error)
	CountByUser(ctx context.Context, userID primitive.ObjectID) (int64, error)
	GetPrimary(ctx context.Context, userID primitive.ObjectID) (*models.UserImage, error)
	// SetPrimary clears the flag on every image of the user, then sets it on imageID.
	SetPrimary(ctx context.Context, userID, imageID primitive.ObjectID) error
}

// ItemFilter selects catalog items. Gender matches the gender itself and unisex items.
type ItemFilter struct {
	Gender     string
	Category   string
	Query      string
	ExcludeIDs []primitive.ObjectID
	ActiveOnly bool
	Skip       int64
	Limit      int64
}

type ItemRepository interface {
	Create(ctx context.Context, item *models.Item) error
	// UpsertBySourceURL inserts or refreshes the item scraped from item.SourceURL.
	UpsertBySourceURL(ctx context.Context, item *models.Item) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Item, error)
	GetMany(ctx context.Context, ids []primitive.ObjectID) ([]models.Item, error)
	List(ctx context.Context, f ItemFilter) ([]models.Item, error)
	Count(ctx context.Context, f ItemFilter) (int64, error)
}

// StatusCounts is the number of looks of a user per generation status.
type StatusCounts map[string]int64

func (c StatusCounts) Total() int64 {
	var n int64
	for _, v := range c {
		n += v
	}
	return n
}

// InFlight is the number of looks still pending or processing.
func (c StatusCounts) InFlight() int64 {
	return c[models.StatusPending] + c[models.StatusProcessing]
}

type LookRepository interface {
	// Create returns ErrDuplicate when a look with the same (workflow id, batch index) exists.
	Create(ctx context.Context, l *models.Look) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Look, error)
	GetByWorkflowBatch(ctx context.Context, workflowID string, batchIndex int) (*models.Look, error)
	// ListByUser returns the user's looks newest first.
	ListByUser(ctx context.Context, userID primitive.ObjectID, skip, limit int64) ([]models.Look, error)
	CountByStatus(ctx context.Context, userID primitive.ObjectID) (StatusCounts, error)
	ItemIDsByUser(ctx context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status, errMsg string) error
}

type LookImageRepository interface {
	// Save inserts or replaces the image of img.LookID.
	Save(ctx context.Context, img *models.LookImage) error
	GetByLook(ctx context.Context, lookID primitive.ObjectID) (*models.LookImage, error)
}

type TryOnRepository interface {
	// Create returns ErrDuplicate when the user already has a try-on of the item.
	Create(ctx context.Context, t *models.ItemTryOn) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.ItemTryOn, error)
	GetByItemUser(ctx context.Context, itemID, userID primitive.ObjectID) (*models.ItemTryOn, error)
	Update(ctx context.Context, t *models.ItemTryOn) error
	// ListByStatus returns try-ons in any of the given states, oldest first.
	ListByStatus(ctx context.Context, statuses ...string) ([]models.ItemTryOn, error)
}

type WorkflowRepository interface {
	CreateRun(ctx context.Context, r *models.WorkflowRun) error
	GetRun(ctx context.Context, id string) (*models.WorkflowRun, error)
	UpdateRun(ctx context.Context, r *models.WorkflowRun) error
	ListRunsByStatus(ctx context.Context, status string) ([]models.WorkflowRun, error)
	// CountRunning counts the user's runs that have not finished.
	CountRunning(ctx context.Context, userID string) (int64, error)
	GetStep(ctx context.Context, workflowID, name string) (*models.WorkflowStep, error)
	// SaveStep upserts on (workflow id, name).
	SaveStep(ctx context.Context, s *models.WorkflowStep) error
	ListSteps(ctx context.Context, workflowID string) ([]models.WorkflowStep, error)
}
