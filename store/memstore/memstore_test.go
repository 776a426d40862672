package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestUsers_DuplicateEmail(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Users().Create(ctx, &models.User{Email: "a@b.c"}))
	err := s.Users().Create(ctx, &models.User{Email: "A@b.c"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestUsers_CompareAndSwapCredits(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	u := &models.User{Email: "a@b.c", Credits: models.NewCredits(5, now)}
	require.NoError(t, s.Users().Create(ctx, u))

	next := u.Credits
	next.FreeRemaining = 2

	ok, err := s.Users().CompareAndSwapCredits(ctx, u.ID, u.Credits, next)
	require.NoError(t, err)
	assert.True(t, ok)

	// stale expectation loses
	ok, err = s.Users().CompareAndSwapCredits(ctx, u.ID, u.Credits, next)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Credits.FreeRemaining)
}

func TestUserImages_SinglePrimary(t *testing.T) {
	s := New()
	ctx := context.Background()
	userID := primitive.NewObjectID()

	first := &models.UserImage{UserID: userID, StorageKey: "a", IsPrimary: true}
	second := &models.UserImage{UserID: userID, StorageKey: "b"}
	require.NoError(t, s.UserImages().Create(ctx, first))
	require.NoError(t, s.UserImages().Create(ctx, second))

	require.NoError(t, s.UserImages().SetPrimary(ctx, userID, second.ID))

	imgs, err := s.UserImages().ListByUser(ctx, userID)
	require.NoError(t, err)
	primaries := 0
	for _, img := range imgs {
		if img.IsPrimary {
			primaries++
			assert.Equal(t, second.ID, img.ID)
		}
	}
	assert.Equal(t, 1, primaries)

	err = s.UserImages().SetPrimary(ctx, primitive.NewObjectID(), first.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestItems_FilterAndSearch(t *testing.T) {
	s := New()
	ctx := context.Background()

	shirt := &models.Item{Name: "Linen Shirt", Gender: models.GenderMale, Active: true}
	dress := &models.Item{Name: "Summer Dress", Gender: models.GenderFemale, Active: true}
	hat := &models.Item{Name: "Cotton Cap", Gender: models.GenderUnisex, Active: true}
	old := &models.Item{Name: "Old Shirt", Gender: models.GenderMale, Active: false}
	for _, it := range []*models.Item{shirt, dress, hat, old} {
		require.NoError(t, s.Items().Create(ctx, it))
	}

	n, err := s.Items().Count(ctx, store.ItemFilter{Gender: models.GenderMale, ActiveOnly: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Items().Count(ctx, store.ItemFilter{Gender: models.GenderMale, ActiveOnly: true, ExcludeIDs: []primitive.ObjectID{hat.ID}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	found, err := s.Items().List(ctx, store.ItemFilter{Query: "shirt"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestLooks_UniqueWorkflowBatchAndCounts(t *testing.T) {
	s := New()
	ctx := context.Background()
	userID := primitive.NewObjectID()

	require.NoError(t, s.Looks().Create(ctx, &models.Look{UserID: userID, WorkflowID: "wf", BatchIndex: 0, GenerationStatus: models.StatusPending}))
	require.NoError(t, s.Looks().Create(ctx, &models.Look{UserID: userID, WorkflowID: "wf", BatchIndex: 1, GenerationStatus: models.StatusCompleted}))
	err := s.Looks().Create(ctx, &models.Look{UserID: userID, WorkflowID: "wf", BatchIndex: 0})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	counts, err := s.Looks().CountByStatus(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.Total())
	assert.Equal(t, int64(1), counts.InFlight())
}

func TestLooks_ListNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	userID := primitive.NewObjectID()
	base := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Looks().Create(ctx, &models.Look{UserID: userID, Name: string(rune('a' + i)), CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	looks, err := s.Looks().ListByUser(ctx, userID, 0, 2)
	require.NoError(t, err)
	require.Len(t, looks, 2)
	assert.Equal(t, "c", looks[0].Name)
	assert.Equal(t, "b", looks[1].Name)
}

func TestTryOns_UniquePerItemUser(t *testing.T) {
	s := New()
	ctx := context.Background()
	itemID, userID := primitive.NewObjectID(), primitive.NewObjectID()

	require.NoError(t, s.TryOns().Create(ctx, &models.ItemTryOn{ItemID: itemID, UserID: userID}))
	err := s.TryOns().Create(ctx, &models.ItemTryOn{ItemID: itemID, UserID: userID})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestWorkflows_StepUpsert(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Workflows().SaveStep(ctx, &models.WorkflowStep{WorkflowID: "wf", Name: "curate", Status: models.StatusFailed, Attempts: 1}))
	require.NoError(t, s.Workflows().SaveStep(ctx, &models.WorkflowStep{WorkflowID: "wf", Name: "curate", Status: models.StatusCompleted, Attempts: 2}))

	steps, err := s.Workflows().ListSteps(ctx, "wf")
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StatusCompleted, steps[0].Status)
}
