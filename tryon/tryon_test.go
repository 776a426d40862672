package tryon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/raushankrgupta/nima-backend/credits"
	"github.com/raushankrgupta/nima-backend/generation"
	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/queue"
	"github.com/raushankrgupta/nima-backend/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []queue.Task
	err   error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, t queue.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.tasks = append(d.tasks, t)
	return nil
}

func (d *recordingDispatcher) Close() error { return nil }

type fakeRenderer struct {
	err   error
	calls int
}

func (r *fakeRenderer) RenderTryOn(_ context.Context, t *models.ItemTryOn) (string, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return "tryons/" + t.ID.Hex() + ".png", nil
}

type env struct {
	store      *memstore.Store
	dispatcher *recordingDispatcher
	renderer   *fakeRenderer
	service    *Service
	userID     primitive.ObjectID
	itemID     primitive.ObjectID
}

func newEnv(t *testing.T, free int) *env {
	t.Helper()
	ctx := context.Background()
	e := &env{store: memstore.New(), dispatcher: &recordingDispatcher{}, renderer: &fakeRenderer{}}

	u := &models.User{Email: "u@example.com", Credits: models.Credits{FreeRemaining: free, FreePerWeek: free, NextResetAt: time.Now().Add(credits.Week)}}
	require.NoError(t, e.store.Users().Create(ctx, u))
	e.userID = u.ID
	require.NoError(t, e.store.UserImages().Create(ctx, &models.UserImage{UserID: u.ID, StorageKey: "p.jpg", IsPrimary: true}))

	it := &models.Item{Name: "Jacket", Active: true}
	require.NoError(t, e.store.Items().Create(ctx, it))
	e.itemID = it.ID

	ledger := credits.NewLedger(e.store.Users(), logging.Discard())
	policy := generation.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond}
	e.service = NewService(e.store, ledger, e.dispatcher, e.renderer, policy, logging.Discard())
	return e
}

func (e *env) available(t *testing.T) int {
	t.Helper()
	u, err := e.store.Users().GetByID(context.Background(), e.userID)
	require.NoError(t, err)
	return u.Credits.Available()
}

func TestStart_NewTryOnChargesAndDispatches(t *testing.T) {
	e := newEnv(t, 3)

	got, err := e.service.Start(context.Background(), e.userID, e.itemID, "M", "black")
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, "M", got.SelectedSize)
	assert.Equal(t, 2, e.available(t))
	assert.Equal(t, []queue.Task{{Kind: queue.KindTryOnGenerate, ID: got.ID.Hex()}}, e.dispatcher.tasks)
}

func TestStart_CompletedIsCachedWithoutCharge(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()

	first, err := e.service.Start(ctx, e.userID, e.itemID, "", "")
	require.NoError(t, err)
	require.NoError(t, e.service.Generate(ctx, first.ID.Hex()))

	again, err := e.service.Start(ctx, e.userID, e.itemID, "L", "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, models.StatusCompleted, again.Status)
	assert.Equal(t, 2, e.available(t))
	assert.Len(t, e.dispatcher.tasks, 1)
}

func TestStart_PendingIsReturnedAsIs(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()

	first, err := e.service.Start(ctx, e.userID, e.itemID, "", "")
	require.NoError(t, err)
	again, err := e.service.Start(ctx, e.userID, e.itemID, "", "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 2, e.available(t))
}

func TestStart_RetryAfterFailureRechargesOnce(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()
	e.renderer.err = errors.New("model overloaded")

	first, err := e.service.Start(ctx, e.userID, e.itemID, "S", "")
	require.NoError(t, err)
	require.NoError(t, e.service.Generate(ctx, first.ID.Hex()))

	failed, err := e.store.TryOns().GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, failed.Status)
	assert.Equal(t, "model overloaded", failed.ErrorMessage)
	assert.Equal(t, 2, failed.Attempts)

	retried, err := e.service.Start(ctx, e.userID, e.itemID, "M", "blue")
	require.NoError(t, err)

	assert.Equal(t, first.ID, retried.ID)
	assert.Equal(t, models.StatusPending, retried.Status)
	assert.Empty(t, retried.ErrorMessage)
	assert.Equal(t, "M", retried.SelectedSize)
	assert.Equal(t, "blue", retried.SelectedColor)
	assert.Equal(t, 1, e.available(t))
	assert.Len(t, e.dispatcher.tasks, 2)
}

func TestStart_InsufficientCredits(t *testing.T) {
	e := newEnv(t, 0)

	_, err := e.service.Start(context.Background(), e.userID, e.itemID, "", "")
	assert.ErrorIs(t, err, credits.ErrInsufficientCredits)

	_, err = e.store.TryOns().GetByItemUser(context.Background(), e.itemID, e.userID)
	assert.Error(t, err, "nothing is persisted")
	assert.Empty(t, e.dispatcher.tasks)
}

func TestStart_RetryWithoutCreditsLeavesRecordFailed(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()
	e.renderer.err = errors.New("boom")

	first, err := e.service.Start(ctx, e.userID, e.itemID, "", "")
	require.NoError(t, err)
	require.NoError(t, e.service.Generate(ctx, first.ID.Hex()))

	_, err = e.service.Start(ctx, e.userID, e.itemID, "", "")
	assert.ErrorIs(t, err, credits.ErrInsufficientCredits)

	got, err := e.store.TryOns().GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)
}

func TestStart_Preconditions(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()

	_, err := e.service.Start(ctx, e.userID, primitive.NewObjectID(), "", "")
	assert.ErrorIs(t, err, ErrItemNotFound)

	inactive := &models.Item{Name: "Gone", Active: false}
	require.NoError(t, e.store.Items().Create(ctx, inactive))
	_, err = e.service.Start(ctx, e.userID, inactive.ID, "", "")
	assert.ErrorIs(t, err, ErrItemUnavailable)

	noPhoto := &models.User{Email: "nophoto@example.com", Credits: models.Credits{FreeRemaining: 3}}
	require.NoError(t, e.store.Users().Create(ctx, noPhoto))
	_, err = e.service.Start(ctx, noPhoto.ID, e.itemID, "", "")
	assert.ErrorIs(t, err, ErrNoPrimaryPhoto)

	assert.Equal(t, 3, e.available(t))
}

func TestStart_DispatchFailureRefunds(t *testing.T) {
	e := newEnv(t, 3)
	e.dispatcher.err = errors.New("queue down")

	_, err := e.service.Start(context.Background(), e.userID, e.itemID, "", "")
	assert.Error(t, err)
	assert.Equal(t, 3, e.available(t))
}

func TestGenerate_CompletesWithStorageKey(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()

	first, err := e.service.Start(ctx, e.userID, e.itemID, "", "")
	require.NoError(t, err)
	require.NoError(t, e.service.Generate(ctx, first.ID.Hex()))

	got, err := e.store.TryOns().GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, "tryons/"+first.ID.Hex()+".png", got.StorageKey)

	// finished records are not regenerated
	require.NoError(t, e.service.Generate(ctx, first.ID.Hex()))
	assert.Equal(t, 1, e.renderer.calls)
}

func TestResumePending_RedispatchesUnfinished(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()

	pending, err := e.service.Start(ctx, e.userID, e.itemID, "", "")
	require.NoError(t, err)

	other := &models.Item{Name: "Scarf", Active: true}
	require.NoError(t, e.store.Items().Create(ctx, other))
	stuck, err := e.service.Start(ctx, e.userID, other.ID, "", "")
	require.NoError(t, err)
	stuck.Status = models.StatusProcessing
	require.NoError(t, e.store.TryOns().Update(ctx, stuck))

	third := &models.Item{Name: "Boots", Active: true}
	require.NoError(t, e.store.Items().Create(ctx, third))
	done, err := e.service.Start(ctx, e.userID, third.ID, "", "")
	require.NoError(t, err)
	require.NoError(t, e.service.Generate(ctx, done.ID.Hex()))

	// tasks lost with the previous process
	e.dispatcher.tasks = nil

	n, err := e.service.ResumePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []queue.Task{
		{Kind: queue.KindTryOnGenerate, ID: pending.ID.Hex()},
		{Kind: queue.KindTryOnGenerate, ID: stuck.ID.Hex()},
	}, e.dispatcher.tasks)

	require.NoError(t, e.service.Generate(ctx, stuck.ID.Hex()))
	got, err := e.store.TryOns().GetByID(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, 0, e.available(t), "resuming does not charge again")
}
