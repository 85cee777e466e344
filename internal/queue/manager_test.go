// internal/queue/manager_test.go
package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poultry-workflow/internal/audit"
	apperrors "poultry-workflow/internal/common/errors"
	"poultry-workflow/internal/common/logger"
	"poultry-workflow/internal/models"
	"poultry-workflow/internal/priority"
	"poultry-workflow/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.Memory) {
	t.Helper()
	s := store.NewMemory()
	rec := audit.NewRecorder(nil, logger.NewTestLogger(t))
	m := NewManager(s, priority.NewRanker(priority.DefaultWeights()), rec, logger.NewTestLogger(t))
	return m, s
}

func newApp(t *testing.T, s store.Store, id string, submitted time.Time, snapshot map[string]interface{}) *models.Application {
	t.Helper()
	if snapshot == nil {
		snapshot = map[string]interface{}{}
	}
	app := &models.Application{
		ID:           id,
		Kind:         models.KindFarmerScreening,
		Status:       models.StatusUnderReview,
		CurrentLevel: 1,
		Jurisdiction: models.Jurisdiction{Region: "ashanti", District: "d1", Constituency: "c1"},
		Snapshot:     snapshot,
		SubmittedAt:  submitted,
		CreatedAt:    submitted,
		UpdatedAt:    submitted,
	}
	require.NoError(t, s.CreateApplication(context.Background(), app))
	return app
}

func TestEnqueue_SetsSLAAndInitialRank(t *testing.T) {
	m, s := newTestManager(t)
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	app := newApp(t, s, "app-1", now, map[string]interface{}{"identityVerified": true})

	var entry *models.QueueEntry
	err := s.Transact(context.Background(), func(tx store.Store) error {
		var err error
		entry, err = m.Enqueue(context.Background(), tx, app, 1, 3)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, models.QueuePending, entry.Status)
	assert.Equal(t, now.Add(72*time.Hour), entry.SLADeadline)
	assert.Equal(t, 10, entry.PriorityScore)
}

func TestEnqueue_RejectsSecondLiveEntry(t *testing.T) {
	m, s := newTestManager(t)
	app := newApp(t, s, "app-1", time.Now().UTC(), nil)
	ctx := context.Background()

	err := s.Transact(ctx, func(tx store.Store) error {
		_, err := m.Enqueue(ctx, tx, app, 1, 3)
		return err
	})
	require.NoError(t, err)

	err = s.Transact(ctx, func(tx store.Store) error {
		_, err := m.Enqueue(ctx, tx, app, 1, 3)
		return err
	})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDuplicateQueueEntry))
}

func TestClaim_ConcurrentReviewersExactlyOneWinner(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	app := newApp(t, s, "app-1", time.Now().UTC(), nil)

	var entry *models.QueueEntry
	require.NoError(t, s.Transact(ctx, func(tx store.Store) error {
		var err error
		entry, err = m.Enqueue(ctx, tx, app, 1, 3)
		return err
	}))

	const racers = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners []string
	var conflicts int

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			reviewer := fmt.Sprintf("rev-%d", n)
			_, err := m.Claim(ctx, entry.ID, reviewer)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, reviewer)
			} else if apperrors.HasCode(err, apperrors.ErrCodeAlreadyClaimed) {
				conflicts++
			} else {
				t.Errorf("unexpected claim error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, racers-1, conflicts)

	// Exactly one claimed action in the ledger.
	actions, err := s.ListActions(ctx, "app-1")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, models.ActionClaimed, actions[0].Action)
	require.NotNil(t, actions[0].ReviewerID)
	assert.Equal(t, winners[0], *actions[0].ReviewerID)
}

func TestRelease_OnlyAssigneeMayRelease(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	app := newApp(t, s, "app-1", time.Now().UTC(), nil)

	var entry *models.QueueEntry
	require.NoError(t, s.Transact(ctx, func(tx store.Store) error {
		var err error
		entry, err = m.Enqueue(ctx, tx, app, 1, 3)
		return err
	}))
	_, err := m.Claim(ctx, entry.ID, "rev-1")
	require.NoError(t, err)

	err = m.Release(ctx, entry.ID, "rev-2")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotClaimedByCaller))

	require.NoError(t, m.Release(ctx, entry.ID, "rev-1"))
	got, err := s.GetQueueEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueuePending, got.Status)
	assert.Nil(t, got.AssignedTo)
	assert.Nil(t, got.ClaimedAt)

	// Released entry is claimable again.
	_, err = m.Claim(ctx, entry.ID, "rev-2")
	assert.NoError(t, err)
}

func TestReassign_RequiresSupervisoryRole(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	app := newApp(t, s, "app-1", time.Now().UTC(), nil)

	var entry *models.QueueEntry
	require.NoError(t, s.Transact(ctx, func(tx store.Store) error {
		var err error
		entry, err = m.Enqueue(ctx, tx, app, 1, 3)
		return err
	}))
	_, err := m.Claim(ctx, entry.ID, "rev-1")
	require.NoError(t, err)

	peer := &models.Reviewer{ID: "rev-3", Role: models.RoleConstituencyOfficer}
	err = m.Reassign(ctx, entry.ID, peer, "rev-2")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnauthorizedReviewer))

	boss := &models.Reviewer{ID: "sup-1", Role: models.RoleSupervisor}
	require.NoError(t, m.Reassign(ctx, entry.ID, boss, "rev-2"))

	got, err := s.GetQueueEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, "rev-2", *got.AssignedTo)
}

func TestComplete_IsIdempotent(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	app := newApp(t, s, "app-1", time.Now().UTC(), nil)

	require.NoError(t, s.Transact(ctx, func(tx store.Store) error {
		_, err := m.Enqueue(ctx, tx, app, 1, 3)
		return err
	}))

	for i := 0; i < 3; i++ {
		err := s.Transact(ctx, func(tx store.Store) error {
			return m.Complete(ctx, tx, "app-1", 1)
		})
		require.NoError(t, err)
	}

	// Completed slot is free for a new entry.
	err := s.Transact(ctx, func(tx store.Store) error {
		_, err := m.Enqueue(ctx, tx, app, 1, 3)
		return err
	})
	assert.NoError(t, err)
}

func TestList_EqualRanksBrokenByEarliestSubmission(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	// Both rank 20: one from a 20-day wait, one from two verification bonuses.
	old := newApp(t, s, "app-old", now.Add(-20*24*time.Hour), nil)
	verified := newApp(t, s, "app-verified", now.Add(-1*time.Hour), map[string]interface{}{
		"identityVerified": true, "farmVerified": true,
	})
	plain := newApp(t, s, "app-plain", now.Add(-2*time.Hour), nil)

	for _, app := range []*models.Application{old, verified, plain} {
		app := app
		require.NoError(t, s.Transact(ctx, func(tx store.Store) error {
			_, err := m.Enqueue(ctx, tx, app, 1, 30)
			return err
		}))
	}

	items, err := m.List(ctx, 1, store.ListFilter{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, 20, items[0].Rank)
	assert.Equal(t, "app-old", items[0].Application.ID)
	assert.Equal(t, "app-verified", items[1].Application.ID)
	assert.Equal(t, "app-plain", items[2].Application.ID)
}

func TestList_OrderAndJurisdictionFilter(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	old := newApp(t, s, "app-old", now.Add(-40*24*time.Hour), nil) // capped wait bonus 30
	fresh := newApp(t, s, "app-fresh", now.Add(-1*time.Hour), map[string]interface{}{
		"identityVerified": true, // 10
	})

	for _, app := range []*models.Application{old, fresh} {
		app := app
		require.NoError(t, s.Transact(ctx, func(tx store.Store) error {
			_, err := m.Enqueue(ctx, tx, app, 1, 30)
			return err
		}))
	}

	items, err := m.List(ctx, 1, store.ListFilter{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "app-old", items[0].Application.ID)
	assert.Equal(t, 30, items[0].Rank)
	assert.Equal(t, "app-fresh", items[1].Application.ID)
	assert.Equal(t, 10, items[1].Rank)

	none, err := m.List(ctx, 1, store.ListFilter{Region: "volta"})
	require.NoError(t, err)
	assert.Empty(t, none)
}
