// Package credits owns every write to a user's credit balance.
//
// The weekly free allowance is reset lazily: the first read or write after
// next_reset_at restores free_remaining and moves next_reset_at forward in
// whole weeks. Writes are compare-and-swap on the credit fields so that
// concurrent deductions can never overspend.
package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrInvalidAmount       = errors.New("credit amount must be positive")
	ErrConflict            = errors.New("credit balance changed concurrently")
)

const (
	Week = 7 * 24 * time.Hour

	maxSwapAttempts = 8
)

type Ledger struct {
	users store.UserRepository
	log   logging.Logger
	now   func() time.Time
}

func NewLedger(users store.UserRepository, log logging.Logger) *Ledger {
	return &Ledger{users: users, log: log, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// ApplyWeeklyReset returns the balance as of now. If the reset boundary has
// passed, the free allowance is restored once and next_reset_at is advanced
// from its previous value until it lies in the future.
func ApplyWeeklyReset(c models.Credits, now time.Time) (models.Credits, bool) {
	if c.NextResetAt.IsZero() {
		c.NextResetAt = now.Add(Week)
		return c, true
	}
	if now.Before(c.NextResetAt) {
		return c, false
	}

	c.FreeRemaining = c.FreePerWeek
	weeks := now.Sub(c.NextResetAt)/Week + 1
	c.NextResetAt = c.NextResetAt.Add(weeks * Week)
	return c, true
}

// Balance returns the current balance, persisting a due weekly reset.
func (l *Ledger) Balance(ctx context.Context, userID primitive.ObjectID) (models.Credits, error) {
	return l.update(ctx, userID, func(c models.Credits) (models.Credits, error) {
		return c, nil
	})
}

// Deduct spends count credits, free allowance first. With too few credits it
// returns ErrInsufficientCredits and leaves the balance untouched.
func (l *Ledger) Deduct(ctx context.Context, userID primitive.ObjectID, count int) (models.Credits, error) {
	if count <= 0 {
		return models.Credits{}, ErrInvalidAmount
	}

	c, err := l.update(ctx, userID, func(c models.Credits) (models.Credits, error) {
		if c.Available() < count {
			return c, ErrInsufficientCredits
		}
		fromFree := min(count, c.FreeRemaining)
		c.FreeRemaining -= fromFree
		c.Purchased -= count - fromFree
		return c, nil
	})
	if err != nil {
		return c, err
	}

	l.log.Info(ctx, "credits deducted", "user_id", userID.Hex(), "count", count,
		"free_remaining", c.FreeRemaining, "purchased", c.Purchased)
	return c, nil
}

// Grant adds count credits to the purchased pool.
func (l *Ledger) Grant(ctx context.Context, userID primitive.ObjectID, count int) (models.Credits, error) {
	if count <= 0 {
		return models.Credits{}, ErrInvalidAmount
	}

	c, err := l.update(ctx, userID, func(c models.Credits) (models.Credits, error) {
		c.Purchased += count
		return c, nil
	})
	if err != nil {
		return c, err
	}

	l.log.Info(ctx, "credits granted", "user_id", userID.Hex(), "count", count, "purchased", c.Purchased)
	return c, nil
}

// Refund returns credits charged for work that was never scheduled.
func (l *Ledger) Refund(ctx context.Context, userID primitive.ObjectID, count int, reason string) error {
	if _, err := l.Grant(ctx, userID, count); err != nil {
		l.log.Error(ctx, "credit refund failed", "user_id", userID.Hex(), "count", count, "reason", reason, "error", err)
		return err
	}
	l.log.Info(ctx, "credits refunded", "user_id", userID.Hex(), "count", count, "reason", reason)
	return nil
}

// update runs a read-modify-write cycle guarded by compare-and-swap.
func (l *Ledger) update(ctx context.Context, userID primitive.ObjectID, mutate func(models.Credits) (models.Credits, error)) (models.Credits, error) {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		u, err := l.users.GetByID(ctx, userID)
		if err != nil {
			return models.Credits{}, fmt.Errorf("load user %s: %w", userID.Hex(), err)
		}

		current := u.Credits
		reset, _ := ApplyWeeklyReset(current, l.now())
		next, err := mutate(reset)
		if err != nil {
			return reset, err
		}
		if equal(current, next) {
			return next, nil
		}

		swapped, err := l.users.CompareAndSwapCredits(ctx, userID, current, next)
		if err != nil {
			return models.Credits{}, fmt.Errorf("write credits for %s: %w", userID.Hex(), err)
		}
		if swapped {
			return next, nil
		}
		if err := ctx.Err(); err != nil {
			return models.Credits{}, err
		}
	}
	return models.Credits{}, ErrConflict
}

func equal(a, b models.Credits) bool {
	return a.FreeRemaining == b.FreeRemaining &&
		a.FreePerWeek == b.FreePerWeek &&
		a.Purchased == b.Purchased &&
		a.NextResetAt.Equal(b.NextResetAt)
}
