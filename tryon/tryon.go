// Package tryon implements single-item virtual try-on requests.
//
// A try-on is unique per (item, user). Completed, pending and processing
// records are returned as they are; only a failed record is charged again
// and re-queued.
package tryon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raushankrgupta/nima-backend/credits"
	"github.com/raushankrgupta/nima-backend/generation"
	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/queue"
	"github.com/raushankrgupta/nima-backend/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const costPerTryOn = 1

var (
	ErrUserNotFound    = errors.New("User not found")
	ErrItemNotFound    = errors.New("Item not found")
	ErrItemUnavailable = errors.New("Item is no longer available")
	ErrNoPrimaryPhoto  = errors.New("No primary photo set")
)

type ImageRenderer interface {
	RenderTryOn(ctx context.Context, t *models.ItemTryOn) (string, error)
}

type Service struct {
	store      store.Store
	ledger     *credits.Ledger
	dispatcher queue.Dispatcher
	renderer   ImageRenderer
	policy     generation.RetryPolicy
	log        logging.Logger
	now        func() time.Time
}

func NewService(s store.Store, ledger *credits.Ledger, dispatcher queue.Dispatcher, renderer ImageRenderer, policy generation.RetryPolicy, log logging.Logger) *Service {
	return &Service{
		store:      s,
		ledger:     ledger,
		dispatcher: dispatcher,
		renderer:   renderer,
		policy:     policy,
		log:        log,
		now:        time.Now,
	}
}

// Start returns the user's try-on of the item, creating or retrying it when needed.
func (s *Service) Start(ctx context.Context, userID, itemID primitive.ObjectID, size, color string) (*models.ItemTryOn, error) {
	if err := s.checkPreconditions(ctx, userID, itemID); err != nil {
		return nil, err
	}

	existing, err := s.store.TryOns().GetByItemUser(ctx, itemID, userID)
	switch {
	case err == nil && existing.Status != models.StatusFailed:
		return existing, nil
	case err == nil:
		return s.retry(ctx, existing, size, color)
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	if _, err := s.ledger.Deduct(ctx, userID, costPerTryOn); err != nil {
		return nil, err
	}

	now := s.now()
	t := &models.ItemTryOn{
		ItemID:        itemID,
		UserID:        userID,
		SelectedSize:  size,
		SelectedColor: color,
		Status:        models.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.TryOns().Create(ctx, t); err != nil {
		s.refund(ctx, userID, "try-on not created")
		if errors.Is(err, store.ErrDuplicate) {
			// a concurrent request created it first
			return s.store.TryOns().GetByItemUser(ctx, itemID, userID)
		}
		return nil, err
	}

	return s.schedule(ctx, t)
}

func (s *Service) retry(ctx context.Context, t *models.ItemTryOn, size, color string) (*models.ItemTryOn, error) {
	if _, err := s.ledger.Deduct(ctx, t.UserID, costPerTryOn); err != nil {
		return nil, err
	}

	t.Status = models.StatusPending
	t.ErrorMessage = ""
	t.SelectedSize = size
	t.SelectedColor = color
	t.UpdatedAt = s.now()
	if err := s.store.TryOns().Update(ctx, t); err != nil {
		s.refund(ctx, t.UserID, "try-on retry not saved")
		return nil, err
	}

	s.log.Info(ctx, "try-on retried", "try_on_id", t.ID.Hex(), "attempts", t.Attempts)
	return s.schedule(ctx, t)
}

func (s *Service) schedule(ctx context.Context, t *models.ItemTryOn) (*models.ItemTryOn, error) {
	err := s.dispatcher.Dispatch(ctx, queue.Task{Kind: queue.KindTryOnGenerate, ID: t.ID.Hex()})
	if err == nil {
		return t, nil
	}

	t.Status = models.StatusFailed
	t.ErrorMessage = "could not schedule generation"
	t.UpdatedAt = s.now()
	if updErr := s.store.TryOns().Update(ctx, t); updErr != nil {
		s.log.Error(ctx, "failed to mark unscheduled try-on", "try_on_id", t.ID.Hex(), "error", updErr)
	}
	s.refund(ctx, t.UserID, "try-on not dispatched")
	return nil, fmt.Errorf("dispatch try-on: %w", err)
}

// ResumePending re-dispatches generation for try-ons that never finished,
// e.g. because the process stopped before a worker picked up the task.
func (s *Service) ResumePending(ctx context.Context) (int, error) {
	pending, err := s.store.TryOns().ListByStatus(ctx, models.StatusPending, models.StatusProcessing)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, t := range pending {
		if err := s.dispatcher.Dispatch(ctx, queue.Task{Kind: queue.KindTryOnGenerate, ID: t.ID.Hex()}); err != nil {
			s.log.Error(ctx, "failed to resume try-on", "try_on_id", t.ID.Hex(), "error", err)
			continue
		}
		resumed++
	}
	if resumed > 0 {
		s.log.Info(ctx, "resumed pending try-ons", "count", resumed)
	}
	return resumed, nil
}

func (s *Service) checkPreconditions(ctx context.Context, userID, itemID primitive.ObjectID) error {
	if _, err := s.store.Users().GetByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	item, err := s.store.Items().GetByID(ctx, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrItemNotFound
	}
	if err != nil {
		return err
	}
	if !item.Active {
		return ErrItemUnavailable
	}

	if _, err := s.store.UserImages().GetPrimary(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoPrimaryPhoto
		}
		return err
	}
	return nil
}

func (s *Service) refund(ctx context.Context, userID primitive.ObjectID, reason string) {
	_ = s.ledger.Refund(ctx, userID, costPerTryOn, reason)
}

// Generate is the tryon.generate task handler: it renders the image and
// moves the record to completed or failed.
func (s *Service) Generate(ctx context.Context, id string) error {
	tryOnID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid try-on id %q: %w", id, err)
	}

	t, err := s.store.TryOns().GetByID(ctx, tryOnID)
	if err != nil {
		return fmt.Errorf("load try-on %s: %w", id, err)
	}
	if t.Status != models.StatusPending && t.Status != models.StatusProcessing {
		return nil
	}

	t.Status = models.StatusProcessing
	t.UpdatedAt = s.now()
	if err := s.store.TryOns().Update(ctx, t); err != nil {
		return err
	}

	var key string
	attempts, err := s.policy.Do(ctx, func(ctx context.Context) error {
		var renderErr error
		key, renderErr = s.renderer.RenderTryOn(ctx, t)
		return renderErr
	})
	t.Attempts += attempts
	t.UpdatedAt = s.now()

	if err != nil {
		t.Status = models.StatusFailed
		t.ErrorMessage = err.Error()
		s.log.Warn(ctx, "try-on generation failed", "try_on_id", id, "attempts", t.Attempts, "error", err)
	} else {
		t.Status = models.StatusCompleted
		t.StorageKey = key
		t.ErrorMessage = ""
		s.log.Info(ctx, "try-on generated", "try_on_id", id, "storage_key", key)
	}
	return s.store.TryOns().Update(ctx, t)
}
