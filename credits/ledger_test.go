package credits

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var baseTime = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func newLedger(t *testing.T, c models.Credits, now time.Time) (*Ledger, *memstore.Store, primitive.ObjectID) {
	t.Helper()
	s := memstore.New()
	u := &models.User{Email: "user@example.com", Credits: c}
	require.NoError(t, s.Users().Create(context.Background(), u))
	l := NewLedger(s.Users(), logging.Discard()).WithClock(func() time.Time { return now })
	return l, s, u.ID
}

func stored(t *testing.T, s *memstore.Store, id primitive.ObjectID) models.Credits {
	t.Helper()
	u, err := s.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	return u.Credits
}

func TestApplyWeeklyReset(t *testing.T) {
	c := models.Credits{FreeRemaining: 0, FreePerWeek: 5, NextResetAt: baseTime}

	t.Run("before boundary", func(t *testing.T) {
		got, changed := ApplyWeeklyReset(c, baseTime.Add(-time.Second))
		assert.False(t, changed)
		assert.Equal(t, c, got)
	})

	t.Run("one boundary crossed", func(t *testing.T) {
		got, changed := ApplyWeeklyReset(c, baseTime.Add(time.Hour))
		assert.True(t, changed)
		assert.Equal(t, 5, got.FreeRemaining)
		assert.Equal(t, baseTime.Add(Week), got.NextResetAt)

		// applying again in the same week is a no-op
		again, changed := ApplyWeeklyReset(got, baseTime.Add(2*time.Hour))
		assert.False(t, changed)
		assert.Equal(t, got, again)
	})

	t.Run("exactly at boundary", func(t *testing.T) {
		got, _ := ApplyWeeklyReset(c, baseTime)
		assert.Equal(t, baseTime.Add(Week), got.NextResetAt)
	})

	t.Run("several weeks skipped restore once", func(t *testing.T) {
		got, changed := ApplyWeeklyReset(c, baseTime.Add(3*Week+time.Hour))
		assert.True(t, changed)
		assert.Equal(t, 5, got.FreeRemaining)
		assert.Equal(t, baseTime.Add(4*Week), got.NextResetAt)
	})
}

func TestDeduct_FreeFirstThenPurchased(t *testing.T) {
	c := models.Credits{FreeRemaining: 2, FreePerWeek: 5, Purchased: 4, NextResetAt: baseTime.Add(Week)}
	l, s, id := newLedger(t, c, baseTime)

	got, err := l.Deduct(context.Background(), id, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, got.FreeRemaining)
	assert.Equal(t, 3, got.Purchased)
	assert.Equal(t, got, stored(t, s, id))
}

func TestDeduct_Insufficient(t *testing.T) {
	c := models.Credits{FreeRemaining: 2, FreePerWeek: 5, NextResetAt: baseTime.Add(Week)}
	l, s, id := newLedger(t, c, baseTime)

	_, err := l.Deduct(context.Background(), id, 3)
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Equal(t, "insufficient_credits", err.Error())

	after := stored(t, s, id)
	assert.Equal(t, 2, after.FreeRemaining)
	assert.Equal(t, 0, after.Purchased)
}

func TestDeduct_AppliesDueReset(t *testing.T) {
	c := models.Credits{FreeRemaining: 0, FreePerWeek: 5, NextResetAt: baseTime}
	l, s, id := newLedger(t, c, baseTime.Add(time.Minute))

	got, err := l.Deduct(context.Background(), id, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, got.FreeRemaining)
	assert.Equal(t, baseTime.Add(Week), stored(t, s, id).NextResetAt)
}

func TestDeduct_InvalidAmount(t *testing.T) {
	l, _, id := newLedger(t, models.NewCredits(5, baseTime), baseTime)

	_, err := l.Deduct(context.Background(), id, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDeduct_UnknownUser(t *testing.T) {
	l, _, _ := newLedger(t, models.NewCredits(5, baseTime), baseTime)

	_, err := l.Deduct(context.Background(), primitive.NewObjectID(), 1)
	assert.Error(t, err)
}

func TestDeduct_ConcurrentNeverOverspends(t *testing.T) {
	c := models.Credits{FreeRemaining: 3, FreePerWeek: 3, Purchased: 2, NextResetAt: baseTime.Add(Week)}
	l, s, id := newLedger(t, c, baseTime)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Deduct(context.Background(), id, 1)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, ErrInsufficientCredits) || errors.Is(err, ErrConflict), err)
		}()
	}
	wg.Wait()

	after := stored(t, s, id)
	assert.LessOrEqual(t, succeeded, 5)
	assert.Equal(t, 5-succeeded, after.Available())
	assert.GreaterOrEqual(t, after.FreeRemaining, 0)
	assert.GreaterOrEqual(t, after.Purchased, 0)
}

func TestGrantAndRefund(t *testing.T) {
	l, s, id := newLedger(t, models.NewCredits(5, baseTime), baseTime)
	ctx := context.Background()

	got, err := l.Grant(ctx, id, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Purchased)

	require.NoError(t, l.Refund(ctx, id, 3, "dispatch failed"))
	assert.Equal(t, 13, stored(t, s, id).Purchased)
}

func TestBalance_PersistsReset(t *testing.T) {
	c := models.Credits{FreeRemaining: 1, FreePerWeek: 5, NextResetAt: baseTime}
	l, s, id := newLedger(t, c, baseTime.Add(Week+time.Hour))

	got, err := l.Balance(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 5, got.FreeRemaining)
	assert.Equal(t, baseTime.Add(2*Week), stored(t, s, id).NextResetAt)
}
