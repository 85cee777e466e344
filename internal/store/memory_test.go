// internal/store/memory_test.go
package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "poultry-workflow/internal/common/errors"
	"poultry-workflow/internal/models"
)

func seedApplication(t *testing.T, s Store, id, region string) *models.Application {
	t.Helper()
	now := time.Now().UTC()
	app := &models.Application{
		ID:           id,
		Kind:         models.KindFarmerScreening,
		Status:       models.StatusUnderReview,
		CurrentLevel: 1,
		Jurisdiction: models.Jurisdiction{Region: region, District: "d1", Constituency: "c1"},
		Snapshot:     map[string]interface{}{"fullName": "Ama Mensah"},
		SubmittedAt:  now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.CreateApplication(context.Background(), app))
	return app
}

func seedEntry(t *testing.T, s Store, id, appID string, level int) *models.QueueEntry {
	t.Helper()
	entry := &models.QueueEntry{
		ID:            id,
		ApplicationID: appID,
		Level:         level,
		Status:        models.QueuePending,
		SLADeadline:   time.Now().UTC().Add(72 * time.Hour),
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.InsertQueueEntry(context.Background(), entry))
	return entry
}

func TestMemory_ApplicationRoundTrip(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	app := seedApplication(t, s, "app-1", "ashanti")

	got, err := s.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, app.ID, got.ID)
	assert.Equal(t, models.StatusUnderReview, got.Status)

	// Mutating the returned copy must not leak into the store.
	got.Status = models.StatusApproved
	again, err := s.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, again.Status)

	_, err = s.GetApplication(ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeResourceNotFound))
}

func TestMemory_InsertQueueEntry_RejectsLiveDuplicate(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seedApplication(t, s, "app-1", "ashanti")
	seedEntry(t, s, "q-1", "app-1", 1)

	err := s.InsertQueueEntry(ctx, &models.QueueEntry{
		ID: "q-2", ApplicationID: "app-1", Level: 1, Status: models.QueuePending,
	})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDuplicateQueueEntry))

	// A completed entry frees the slot.
	entry, err := s.GetQueueEntry(ctx, "q-1")
	require.NoError(t, err)
	entry.Status = models.QueueCompleted
	require.NoError(t, s.UpdateQueueEntry(ctx, entry))

	err = s.InsertQueueEntry(ctx, &models.QueueEntry{
		ID: "q-3", ApplicationID: "app-1", Level: 1, Status: models.QueuePending,
	})
	assert.NoError(t, err)
}

func TestMemory_ClaimQueueEntry_ExactlyOneWinner(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seedApplication(t, s, "app-1", "ashanti")
	seedEntry(t, s, "q-1", "app-1", 1)

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan string, racers)
	losses := make(chan error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			reviewer := string(rune('a' + n))
			if _, err := s.ClaimQueueEntry(ctx, "q-1", reviewer, time.Now().UTC()); err != nil {
				losses <- err
			} else {
				wins <- reviewer
			}
		}(i)
	}
	wg.Wait()
	close(wins)
	close(losses)

	assert.Len(t, wins, 1)
	assert.Len(t, losses, racers-1)
	for err := range losses {
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAlreadyClaimed))
	}

	entry, err := s.GetQueueEntry(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, models.QueueClaimed, entry.Status)
	require.NotNil(t, entry.AssignedTo)
	require.NotNil(t, entry.ClaimedAt)
}

func TestMemory_ListQueueEntries_FiltersByJurisdiction(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seedApplication(t, s, "app-ash", "ashanti")
	seedApplication(t, s, "app-vol", "volta")
	seedEntry(t, s, "q-ash", "app-ash", 1)
	seedEntry(t, s, "q-vol", "app-vol", 1)

	all, err := s.ListQueueEntries(ctx, 1, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ashanti, err := s.ListQueueEntries(ctx, 1, ListFilter{Region: "ashanti"})
	require.NoError(t, err)
	require.Len(t, ashanti, 1)
	assert.Equal(t, "q-ash", ashanti[0].ID)

	none, err := s.ListQueueEntries(ctx, 2, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemory_Transact_RollsBackOnError(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seedApplication(t, s, "app-1", "ashanti")

	boom := apperrors.NewStorageError("test", assert.AnError)
	err := s.Transact(ctx, func(tx Store) error {
		app, err := tx.GetApplication(ctx, "app-1")
		if err != nil {
			return err
		}
		app.Status = models.StatusApproved
		if err := tx.UpdateApplication(ctx, app); err != nil {
			return err
		}
		if err := tx.AppendAction(ctx, &models.ReviewAction{
			ID: "a-1", ApplicationID: "app-1", Action: models.ActionApproved,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	app, err := s.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, app.Status)

	actions, err := s.ListActions(ctx, "app-1")
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestMemory_Transact_CommitsAndJoinsNested(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seedApplication(t, s, "app-1", "ashanti")

	err := s.Transact(ctx, func(tx Store) error {
		return tx.Transact(ctx, func(inner Store) error {
			app, err := inner.GetApplication(ctx, "app-1")
			if err != nil {
				return err
			}
			app.Status = models.StatusApproved
			return inner.UpdateApplication(ctx, app)
		})
	})
	require.NoError(t, err)

	app, err := s.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, app.Status)
}

func TestMemory_ListActions_PreservesAppendOrder(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seedApplication(t, s, "app-1", "ashanti")

	for i, action := range []models.ActionType{models.ActionSubmitted, models.ActionClaimed, models.ActionApproved} {
		require.NoError(t, s.AppendAction(ctx, &models.ReviewAction{
			ID:            string(rune('a' + i)),
			ApplicationID: "app-1",
			Action:        action,
			CreatedAt:     time.Now().UTC(),
		}))
	}

	actions, err := s.ListActions(ctx, "app-1")
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, models.ActionSubmitted, actions[0].Action)
	assert.Equal(t, models.ActionClaimed, actions[1].Action)
	assert.Equal(t, models.ActionApproved, actions[2].Action)
}
