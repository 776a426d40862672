// Package status answers the polling queries clients use to follow
// background generation. Image URLs are resolved when a record is read.
package status

import (
	"context"
	"errors"

	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/storage"
	"github.com/raushankrgupta/nima-backend/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotFound is returned for missing records and for records of another user.
var ErrNotFound = errors.New("not found")

// MaxLookPageSize caps the limit of a lookbook page.
const MaxLookPageSize = 50

type OnboardingStatus struct {
	HasLooks        bool  `json:"has_looks"`
	PendingCount    int64 `json:"pending_count"`
	ProcessingCount int64 `json:"processing_count"`
	CompletedCount  int64 `json:"completed_count"`
	FailedCount     int64 `json:"failed_count"`
	TotalCount      int64 `json:"total_count"`
	IsComplete      bool  `json:"is_complete"`
}

type LookDetail struct {
	models.Look
	Items []models.Item     `json:"items"`
	Image *models.LookImage `json:"image,omitempty"`
}

type LookPage struct {
	Looks       []LookDetail `json:"looks"`
	Total       int64        `json:"total"`
	CurrentPage int          `json:"current_page"`
	TotalPages  int          `json:"total_pages"`
}

type StepSummary struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

type WorkflowDetail struct {
	models.WorkflowRun
	Steps []StepSummary `json:"steps"`
}

type Query struct {
	store store.Store
	files storage.FileStore
}

func NewQuery(s store.Store, files storage.FileStore) *Query {
	return &Query{store: s, files: files}
}

func (q *Query) OnboardingStatus(ctx context.Context, userID primitive.ObjectID) (OnboardingStatus, error) {
	counts, err := q.store.Looks().CountByStatus(ctx, userID)
	if err != nil {
		return OnboardingStatus{}, err
	}

	s := OnboardingStatus{
		PendingCount:    counts[models.StatusPending],
		ProcessingCount: counts[models.StatusProcessing],
		CompletedCount:  counts[models.StatusCompleted],
		FailedCount:     counts[models.StatusFailed],
		TotalCount:      counts.Total(),
	}
	s.HasLooks = s.TotalCount > 0
	s.IsComplete = s.TotalCount > 0 && s.PendingCount == 0 && s.ProcessingCount == 0
	return s, nil
}

func (q *Query) Look(ctx context.Context, userID, lookID primitive.ObjectID) (*LookDetail, error) {
	look, err := q.store.Looks().GetByID(ctx, lookID)
	if err != nil {
		return nil, notFound(err)
	}
	if look.UserID != userID {
		return nil, ErrNotFound
	}
	return q.detail(ctx, *look)
}

func (q *Query) Looks(ctx context.Context, userID primitive.ObjectID, page, limit int) (*LookPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	limit = min(limit, MaxLookPageSize)

	counts, err := q.store.Looks().CountByStatus(ctx, userID)
	if err != nil {
		return nil, err
	}
	looks, err := q.store.Looks().ListByUser(ctx, userID, int64((page-1)*limit), int64(limit))
	if err != nil {
		return nil, err
	}

	out := &LookPage{
		Looks:       make([]LookDetail, 0, len(looks)),
		Total:       counts.Total(),
		CurrentPage: page,
		TotalPages:  int((counts.Total() + int64(limit) - 1) / int64(limit)),
	}
	for _, l := range looks {
		d, err := q.detail(ctx, l)
		if err != nil {
			return nil, err
		}
		out.Looks = append(out.Looks, *d)
	}
	return out, nil
}

func (q *Query) TryOn(ctx context.Context, userID, tryOnID primitive.ObjectID) (*models.ItemTryOn, error) {
	t, err := q.store.TryOns().GetByID(ctx, tryOnID)
	if err != nil {
		return nil, notFound(err)
	}
	if t.UserID != userID {
		return nil, ErrNotFound
	}
	if t.Status == models.StatusCompleted && t.StorageKey != "" {
		t.URL, _ = q.files.ResolveURL(ctx, t.StorageKey)
	}
	return t, nil
}

func (q *Query) Workflow(ctx context.Context, userID primitive.ObjectID, workflowID string) (*WorkflowDetail, error) {
	run, err := q.store.Workflows().GetRun(ctx, workflowID)
	if err != nil {
		return nil, notFound(err)
	}
	if run.UserID != userID.Hex() {
		return nil, ErrNotFound
	}

	steps, err := q.store.Workflows().ListSteps(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	d := &WorkflowDetail{WorkflowRun: *run, Steps: make([]StepSummary, 0, len(steps))}
	for _, s := range steps {
		d.Steps = append(d.Steps, StepSummary{Name: s.Name, Status: s.Status, Attempts: s.Attempts, Error: s.Error})
	}
	return d, nil
}

// ResolveItems fills ImageURLs of each item.
func (q *Query) ResolveItems(ctx context.Context, items []models.Item) []models.Item {
	for i := range items {
		items[i].ImageURLs = storage.ResolveAll(ctx, q.files, items[i].ImageKeys)
	}
	return items
}

func (q *Query) detail(ctx context.Context, look models.Look) (*LookDetail, error) {
	items, err := q.store.Items().GetMany(ctx, look.ItemIDs)
	if err != nil {
		return nil, err
	}
	d := &LookDetail{Look: look, Items: q.ResolveItems(ctx, items)}

	img, err := q.store.LookImages().GetByLook(ctx, look.ID)
	switch {
	case err == nil:
		if img.StorageKey != "" {
			img.URL, _ = q.files.ResolveURL(ctx, img.StorageKey)
		}
		d.Image = img
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	return d, nil
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
