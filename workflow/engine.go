// Package workflow runs look generation as a durable, resumable workflow.
//
// Every step writes an entry to the step log keyed by (workflow id, step
// name). A completed step whose input hash still matches is never executed
// again: its checkpointed output is replayed. A run interrupted by a crash is
// therefore resumed by simply running it again.
package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/raushankrgupta/nima-backend/generation"
	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/store"
)

type Engine struct {
	steps  store.WorkflowRepository
	policy generation.RetryPolicy
	log    logging.Logger
	now    func() time.Time
}

func NewEngine(steps store.WorkflowRepository, policy generation.RetryPolicy, log logging.Logger) *Engine {
	return &Engine{steps: steps, policy: policy, log: log, now: time.Now}
}

// StepOptions controls how a step is executed.
type StepOptions struct {
	// Retry re-executes a failing step with backoff. Steps that create
	// records are not retried.
	Retry bool
}

// Step executes fn as the named step of workflowID, or replays its
// checkpoint. The output must round-trip through JSON.
func Step[T any](ctx context.Context, e *Engine, workflowID, name string, input any, opts StepOptions, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T

	hash, err := inputHash(input)
	if err != nil {
		return out, fmt.Errorf("hash input of step %s: %w", name, err)
	}

	log := e.log.With("workflow_id", workflowID, "step", name)

	prev, err := e.steps.GetStep(ctx, workflowID, name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return out, fmt.Errorf("load step %s: %w", name, err)
	}
	if prev != nil && prev.Status == models.StatusCompleted && prev.InputHash == hash {
		if err := json.Unmarshal(prev.Output, &out); err != nil {
			return out, fmt.Errorf("decode checkpoint of step %s: %w", name, err)
		}
		log.Info(ctx, "step replayed from checkpoint")
		return out, nil
	}

	record := &models.WorkflowStep{
		WorkflowID: workflowID,
		Name:       name,
		InputHash:  hash,
		CreatedAt:  e.now(),
	}
	if prev != nil {
		record.Attempts = prev.Attempts
		record.CreatedAt = prev.CreatedAt
	}

	run := func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	}

	var attempts int
	if opts.Retry {
		attempts, err = e.policy.Do(ctx, run)
	} else {
		attempts, err = 1, run(ctx)
	}
	record.Attempts += attempts
	record.UpdatedAt = e.now()

	if err != nil {
		record.Status = models.StatusFailed
		record.Error = err.Error()
		if saveErr := e.steps.SaveStep(ctx, record); saveErr != nil {
			log.Error(ctx, "failed to record step failure", "error", saveErr)
		}
		log.Warn(ctx, "step failed", "attempts", record.Attempts, "error", err)
		return out, err
	}

	record.Status = models.StatusCompleted
	record.Output, err = json.Marshal(out)
	if err != nil {
		return out, fmt.Errorf("encode output of step %s: %w", name, err)
	}
	if err := e.steps.SaveStep(ctx, record); err != nil {
		return out, fmt.Errorf("checkpoint step %s: %w", name, err)
	}

	log.Info(ctx, "step completed", "attempts", record.Attempts)
	return out, nil
}

func inputHash(input any) (string, error) {
	b, err := json.Marshal(input)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
