package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raushankrgupta/nima-backend/ai"
	"github.com/raushankrgupta/nima-backend/credits"
	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/notify"
	"github.com/raushankrgupta/nima-backend/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

const candidateLimit = 200

var ErrNoCompositions = errors.New("curation produced no usable looks")

// LookRenderer generates the image of one look.
type LookRenderer interface {
	RenderLook(ctx context.Context, lookID primitive.ObjectID) error
	MarkLookFailed(ctx context.Context, lookID primitive.ObjectID, reason string) error
}

// LookResult is the outcome of one look's image step.
type LookResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// LookGeneration curates a batch of looks for a user, persists them as
// pending and renders their images in parallel.
type LookGeneration struct {
	store         store.Store
	engine        *Engine
	curator       ai.Curator
	renderer      LookRenderer
	notifier      notify.Notifier
	ledger        *credits.Ledger
	log           logging.Logger
	looksPerBatch int
	now           func() time.Time
}

type LookGenerationDeps struct {
	Store         store.Store
	Engine        *Engine
	Curator       ai.Curator
	Renderer      LookRenderer
	Notifier      notify.Notifier
	Ledger        *credits.Ledger
	Log           logging.Logger
	LooksPerBatch int
}

func NewLookGeneration(d LookGenerationDeps) *LookGeneration {
	return &LookGeneration{
		store:         d.Store,
		engine:        d.Engine,
		curator:       d.Curator,
		renderer:      d.Renderer,
		notifier:      d.Notifier,
		ledger:        d.Ledger,
		log:           d.Log,
		looksPerBatch: d.LooksPerBatch,
		now:           time.Now,
	}
}

type curateInput struct {
	UserID  string   `json:"user_id"`
	Exclude []string `json:"exclude"`
	Count   int      `json:"count"`
}

// Run executes (or resumes) the run recorded under workflowID. Runs that
// already finished are left alone.
func (w *LookGeneration) Run(ctx context.Context, workflowID string) error {
	run, err := w.store.Workflows().GetRun(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("load workflow %s: %w", workflowID, err)
	}
	if run.Status != models.RunRunning {
		return nil
	}

	log := w.log.With("workflow_id", run.ID, "user_id", run.UserID, "mode", run.Mode)
	log.Info(ctx, "look generation started")

	userID, err := primitive.ObjectIDFromHex(run.UserID)
	if err != nil {
		return w.fail(ctx, run, fmt.Errorf("invalid user id: %w", err))
	}

	comps, err := Step(ctx, w.engine, run.ID, "curate",
		curateInput{UserID: run.UserID, Exclude: run.ExcludeItemIDs, Count: w.looksPerBatch},
		StepOptions{Retry: true},
		func(ctx context.Context) ([]ai.Composition, error) {
			return w.curate(ctx, userID, run.ExcludeItemIDs)
		})
	if err != nil {
		return w.fail(ctx, run, err)
	}

	user, err := w.store.Users().GetByID(ctx, userID)
	if err != nil {
		return w.fail(ctx, run, fmt.Errorf("load user: %w", err))
	}

	var (
		lookIDs  []string
		failures int
	)
	for i, comp := range comps {
		id, err := Step(ctx, w.engine, run.ID, fmt.Sprintf("persist:%d", i), comp, StepOptions{},
			func(ctx context.Context) (string, error) {
				return w.persistLook(ctx, run, user, i, comp)
			})
		if err != nil {
			log.Error(ctx, "failed to persist look", "batch_index", i, "error", err)
			failures++
			continue
		}
		lookIDs = append(lookIDs, id)
	}

	results := w.generateImages(ctx, run.ID, lookIDs)

	successes := 0
	for _, r := range results {
		if r.Success {
			successes++
		} else {
			failures++
		}
	}
	run.SuccessCount = successes
	run.FailureCount = failures
	log.Info(ctx, "look generation aggregated", "success_count", successes, "failure_count", failures)

	if run.Mode == models.ModeOnboarding && successes > 0 {
		_, err := Step(ctx, w.engine, run.ID, "notify", successes, StepOptions{},
			func(ctx context.Context) (bool, error) {
				return true, w.notifier.SendOnboardingLooksReady(ctx, user, successes)
			})
		if err != nil {
			log.Warn(ctx, "looks-ready notification failed", "error", err)
		}
	}

	run.Status = models.RunCompleted
	run.UpdatedAt = w.now()
	if err := w.store.Workflows().UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("complete workflow %s: %w", run.ID, err)
	}
	log.Info(ctx, "look generation completed")
	return nil
}

func (w *LookGeneration) curate(ctx context.Context, userID primitive.ObjectID, exclude []string) ([]ai.Composition, error) {
	user, err := w.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	candidates, err := w.store.Items().List(ctx, store.ItemFilter{
		Gender:     user.Gender,
		ExcludeIDs: toObjectIDs(exclude),
		ActiveOnly: true,
		Limit:      candidateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	comps, err := w.curator.CurateLooks(ctx, ai.CurationRequest{
		Profile:    ai.ProfileOf(user),
		Candidates: candidates,
		Count:      w.looksPerBatch,
	})
	if err != nil {
		return nil, err
	}

	comps = ai.FilterCompositions(comps, candidates)
	if len(comps) == 0 {
		return nil, ErrNoCompositions
	}
	if w.looksPerBatch > 0 && len(comps) > w.looksPerBatch {
		comps = comps[:w.looksPerBatch]
	}
	return comps, nil
}

func (w *LookGeneration) persistLook(ctx context.Context, run *models.WorkflowRun, user *models.User, index int, comp ai.Composition) (string, error) {
	if existing, err := w.store.Looks().GetByWorkflowBatch(ctx, run.ID, index); err == nil {
		return existing.ID.Hex(), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	itemIDs := toObjectIDs(comp.ItemIDs)
	items, err := w.store.Items().GetMany(ctx, itemIDs)
	if err != nil {
		return "", err
	}
	var total float64
	for _, it := range items {
		total += it.Price
	}

	now := w.now()
	look := &models.Look{
		UserID:           user.ID,
		ItemIDs:          itemIDs,
		Name:             comp.Name,
		StyleTags:        comp.StyleTags,
		Occasion:         comp.Occasion,
		Comment:          comp.Comment,
		TargetGender:     user.Gender,
		TargetBudget:     user.BudgetMax,
		TotalPrice:       total,
		GenerationStatus: models.StatusPending,
		WorkflowID:       run.ID,
		BatchIndex:       index,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := w.store.Looks().Create(ctx, look); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			existing, getErr := w.store.Looks().GetByWorkflowBatch(ctx, run.ID, index)
			if getErr != nil {
				return "", getErr
			}
			return existing.ID.Hex(), nil
		}
		return "", err
	}
	return look.ID.Hex(), nil
}

// generateImages renders every look concurrently. A failing look never
// cancels its siblings; the call returns once all of them are done.
func (w *LookGeneration) generateImages(ctx context.Context, workflowID string, lookIDs []string) map[string]LookResult {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make(map[string]LookResult, len(lookIDs))
	)

	for _, id := range lookIDs {
		g.Go(func() error {
			res := w.generateOne(ctx, workflowID, id)
			mu.Lock()
			results[id] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (w *LookGeneration) generateOne(ctx context.Context, workflowID, id string) LookResult {
	lookID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return LookResult{Error: err.Error()}
	}

	// terminal looks keep their outcome on resume
	look, err := w.store.Looks().GetByID(ctx, lookID)
	if err != nil {
		return LookResult{Error: err.Error()}
	}
	switch look.GenerationStatus {
	case models.StatusCompleted:
		return LookResult{Success: true}
	case models.StatusFailed:
		return LookResult{Error: look.ErrorMessage}
	}

	res, err := Step(ctx, w.engine, workflowID, "generate:"+id, id, StepOptions{Retry: true},
		func(ctx context.Context) (LookResult, error) {
			if err := w.renderer.RenderLook(ctx, lookID); err != nil {
				return LookResult{}, err
			}
			return LookResult{Success: true}, nil
		})
	if err != nil {
		if markErr := w.renderer.MarkLookFailed(ctx, lookID, err.Error()); markErr != nil {
			w.log.Error(ctx, "failed to mark look failed", "look_id", id, "error", markErr)
		}
		return LookResult{Error: err.Error()}
	}
	return res
}

// fail ends the run without looks and returns any credits it was charged.
func (w *LookGeneration) fail(ctx context.Context, run *models.WorkflowRun, cause error) error {
	run.Status = models.RunFailed
	run.Error = cause.Error()
	run.UpdatedAt = w.now()
	w.log.Error(ctx, "look generation failed", "workflow_id", run.ID, "error", cause)
	// An unrecorded failure leaves the run running; it is refunded once the
	// resumed run fails.
	if err := w.store.Workflows().UpdateRun(ctx, run); err != nil {
		w.log.Error(ctx, "failed to record workflow failure", "workflow_id", run.ID, "error", err)
		return errors.Join(cause, err)
	}

	if run.CreditsCharged > 0 && w.ledger != nil {
		if userID, err := primitive.ObjectIDFromHex(run.UserID); err == nil {
			_ = w.ledger.Refund(ctx, userID, run.CreditsCharged, "workflow failed")
		}
	}
	return cause
}

func toObjectIDs(hexIDs []string) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(hexIDs))
	for _, h := range hexIDs {
		if id, err := primitive.ObjectIDFromHex(h); err == nil {
			out = append(out, id)
		}
	}
	return out
}
