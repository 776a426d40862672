package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/raushankrgupta/nima-backend/credits"
	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/queue"
	"github.com/raushankrgupta/nima-backend/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Precondition failures. Their messages are shown to the user as is.
var (
	ErrUserNotFound          = errors.New("User not found")
	ErrNoPhotos              = errors.New("No photos uploaded")
	ErrGenerationInProgress  = errors.New("Looks are already being generated")
	ErrInsufficientInventory = errors.New("Not enough new items in the catalog to generate more looks")
)

// Reasons reported by ShouldStartOnboarding.
const (
	ReasonNoPhotos     = "no_photos"
	ReasonInProgress   = "generation_in_progress"
	ReasonLooksCreated = "looks_exist"
)

type ShouldStart struct {
	ShouldStart    bool   `json:"should_start"`
	Reason         string `json:"reason,omitempty"`
	PendingCount   int64  `json:"pending_count"`
	CompletedCount int64  `json:"completed_count"`
}

// Service validates generation requests, charges for them and schedules the
// workflow. It never waits for the workflow itself.
type Service struct {
	store         store.Store
	ledger        *credits.Ledger
	dispatcher    queue.Dispatcher
	log           logging.Logger
	looksPerBatch int
	minInventory  int
	now           func() time.Time
}

func NewService(s store.Store, ledger *credits.Ledger, dispatcher queue.Dispatcher, log logging.Logger, looksPerBatch, minInventory int) *Service {
	return &Service{
		store:         s,
		ledger:        ledger,
		dispatcher:    dispatcher,
		log:           log,
		looksPerBatch: looksPerBatch,
		minInventory:  minInventory,
		now:           time.Now,
	}
}

func (s *Service) ShouldStartOnboarding(ctx context.Context, userID primitive.ObjectID) (ShouldStart, error) {
	if _, err := s.loadUser(ctx, userID); err != nil {
		return ShouldStart{}, err
	}

	counts, err := s.store.Looks().CountByStatus(ctx, userID)
	if err != nil {
		return ShouldStart{}, err
	}
	res := ShouldStart{
		PendingCount:   counts.InFlight(),
		CompletedCount: counts[models.StatusCompleted],
	}

	photos, err := s.store.UserImages().CountByUser(ctx, userID)
	if err != nil {
		return ShouldStart{}, err
	}
	running, err := s.store.Workflows().CountRunning(ctx, userID.Hex())
	if err != nil {
		return ShouldStart{}, err
	}

	switch {
	case photos == 0:
		res.Reason = ReasonNoPhotos
	case counts.InFlight() > 0, running > 0:
		res.Reason = ReasonInProgress
	case counts.Total() > 0:
		res.Reason = ReasonLooksCreated
	default:
		res.ShouldStart = true
	}
	return res, nil
}

// StartOnboarding schedules the free first batch of looks.
func (s *Service) StartOnboarding(ctx context.Context, userID primitive.ObjectID) (string, error) {
	if _, err := s.loadUser(ctx, userID); err != nil {
		return "", err
	}
	if err := s.checkReady(ctx, userID); err != nil {
		return "", err
	}
	return s.launch(ctx, &models.WorkflowRun{UserID: userID.Hex(), Mode: models.ModeOnboarding})
}

// StartGenerateMore charges a batch and schedules looks built from items the
// user has not seen yet.
func (s *Service) StartGenerateMore(ctx context.Context, userID primitive.ObjectID, excludeItemIDs []string) (string, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := s.checkReady(ctx, userID); err != nil {
		return "", err
	}

	exclude, err := s.exclusionSet(ctx, userID, excludeItemIDs)
	if err != nil {
		return "", err
	}

	available, err := s.store.Items().Count(ctx, store.ItemFilter{
		Gender:     user.Gender,
		ExcludeIDs: exclude,
		ActiveOnly: true,
	})
	if err != nil {
		return "", err
	}
	if available < int64(s.minInventory) {
		s.log.Info(ctx, "generate-more rejected", "user_id", userID.Hex(), "available_items", available)
		return "", ErrInsufficientInventory
	}

	if _, err := s.ledger.Deduct(ctx, userID, s.looksPerBatch); err != nil {
		return "", err
	}

	excludeHex := make([]string, len(exclude))
	for i, id := range exclude {
		excludeHex[i] = id.Hex()
	}
	return s.launch(ctx, &models.WorkflowRun{
		UserID:         userID.Hex(),
		Mode:           models.ModeGenerateMore,
		ExcludeItemIDs: excludeHex,
		CreditsCharged: s.looksPerBatch,
	})
}

// ResumeRunning re-dispatches every run that has not finished, e.g. after a restart.
func (s *Service) ResumeRunning(ctx context.Context) (int, error) {
	runs, err := s.store.Workflows().ListRunsByStatus(ctx, models.RunRunning)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, run := range runs {
		if err := s.dispatcher.Dispatch(ctx, queue.Task{Kind: queue.KindWorkflowRun, ID: run.ID}); err != nil {
			s.log.Error(ctx, "failed to resume workflow", "workflow_id", run.ID, "error", err)
			continue
		}
		resumed++
	}
	if resumed > 0 {
		s.log.Info(ctx, "resumed running workflows", "count", resumed)
	}
	return resumed, nil
}

func (s *Service) loadUser(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	u, err := s.store.Users().GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// checkReady requires a reference photo and no looks still being generated.
// A run that is still curating has no looks yet, so running runs count too.
func (s *Service) checkReady(ctx context.Context, userID primitive.ObjectID) error {
	photos, err := s.store.UserImages().CountByUser(ctx, userID)
	if err != nil {
		return err
	}
	if photos == 0 {
		return ErrNoPhotos
	}

	counts, err := s.store.Looks().CountByStatus(ctx, userID)
	if err != nil {
		return err
	}
	if counts.InFlight() > 0 {
		return ErrGenerationInProgress
	}

	running, err := s.store.Workflows().CountRunning(ctx, userID.Hex())
	if err != nil {
		return err
	}
	if running > 0 {
		return ErrGenerationInProgress
	}
	return nil
}

// exclusionSet is every item already used in the user's looks plus the
// client-supplied ids. Malformed ids are ignored.
func (s *Service) exclusionSet(ctx context.Context, userID primitive.ObjectID, extra []string) ([]primitive.ObjectID, error) {
	used, err := s.store.Looks().ItemIDsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[primitive.ObjectID]bool, len(used)+len(extra))
	out := make([]primitive.ObjectID, 0, len(used)+len(extra))
	for _, id := range append(used, toObjectIDs(extra)...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Service) launch(ctx context.Context, run *models.WorkflowRun) (string, error) {
	now := s.now()
	run.ID = uuid.NewString()
	run.Status = models.RunRunning
	run.CreatedAt = now
	run.UpdatedAt = now

	if err := s.store.Workflows().CreateRun(ctx, run); err != nil {
		s.refund(ctx, run, "workflow not created")
		return "", fmt.Errorf("create workflow: %w", err)
	}

	if err := s.dispatcher.Dispatch(ctx, queue.Task{Kind: queue.KindWorkflowRun, ID: run.ID}); err != nil {
		run.Status = models.RunFailed
		run.Error = err.Error()
		run.UpdatedAt = s.now()
		if updErr := s.store.Workflows().UpdateRun(ctx, run); updErr != nil {
			s.log.Error(ctx, "failed to mark undispatched workflow", "workflow_id", run.ID, "error", updErr)
		}
		s.refund(ctx, run, "workflow not dispatched")
		return "", fmt.Errorf("dispatch workflow: %w", err)
	}

	s.log.Info(ctx, "workflow started", "workflow_id", run.ID, "user_id", run.UserID, "mode", run.Mode)
	return run.ID, nil
}

func (s *Service) refund(ctx context.Context, run *models.WorkflowRun, reason string) {
	if run.CreditsCharged == 0 {
		return
	}
	if userID, err := primitive.ObjectIDFromHex(run.UserID); err == nil {
		_ = s.ledger.Refund(ctx, userID, run.CreditsCharged, reason)
	}
}
