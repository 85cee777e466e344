// internal/queue/manager.go
// Package queue manages the per-level review queues: one live entry per
// (application, level), claims resolved by compare-and-swap, listings ranked
// on demand.
package queue

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"poultry-workflow/internal/audit"
	apperrors "poultry-workflow/internal/common/errors"
	"poultry-workflow/internal/common/logger"
	"poultry-workflow/internal/common/metrics"
	"poultry-workflow/internal/models"
	"poultry-workflow/internal/priority"
	"poultry-workflow/internal/store"
)

// Item is one ranked queue listing row.
type Item struct {
	Entry       *models.QueueEntry  `json:"entry"`
	Application *models.Application `json:"application"`
	Rank        int                 `json:"rank"`
}

// Manager owns queue entry lifecycle. Entry creation and completion happen
// inside the workflow engine's transactions; claim, release and reassign are
// reviewer-facing operations with their own transactions.
type Manager struct {
	store    store.Store
	ranker   *priority.Ranker
	recorder *audit.Recorder
	log      logger.Logger
	now      func() time.Time
}

func NewManager(s store.Store, ranker *priority.Ranker, recorder *audit.Recorder, log logger.Logger) *Manager {
	return &Manager{
		store:    s,
		ranker:   ranker,
		recorder: recorder,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the manager's clock. Test hook.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Enqueue creates the live entry for an application at a level, with the SLA
// deadline derived from the level's configured window. Runs inside the
// caller's transaction so a failed transition leaves no orphan entry.
func (m *Manager) Enqueue(ctx context.Context, tx store.Store, app *models.Application, level, slaDays int) (*models.QueueEntry, error) {
	now := m.now()
	entry := &models.QueueEntry{
		ID:            uuid.NewString(),
		ApplicationID: app.ID,
		Level:         level,
		Status:        models.QueuePending,
		SLADeadline:   now.Add(time.Duration(slaDays) * 24 * time.Hour),
		CreatedAt:     now,
	}
	entry.PriorityScore = m.ranker.Rank(app, entry, now)

	if err := tx.InsertQueueEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// List returns the live entries at a level, jurisdiction-filtered, ranked
// highest first with ties broken by earliest submission. Rank is recomputed
// at read time; the stored score is only the value at enqueue.
func (m *Manager) List(ctx context.Context, level int, filter store.ListFilter) ([]*Item, error) {
	entries, err := m.store.ListQueueEntries(ctx, level, filter)
	if err != nil {
		return nil, err
	}

	now := m.now()
	items := make([]*Item, 0, len(entries))
	for _, entry := range entries {
		app, err := m.store.GetApplication(ctx, entry.ApplicationID)
		if err != nil {
			return nil, err
		}
		items = append(items, &Item{
			Entry:       entry,
			Application: app,
			Rank:        m.ranker.Rank(app, entry, now),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return m.ranker.Less(items[i].Application, items[j].Application,
			items[i].Entry, items[j].Entry, now)
	})

	metrics.QueueDepth.WithLabelValues(strconv.Itoa(level)).Set(float64(len(items)))
	return items, nil
}

// Claim assigns a pending entry to a reviewer. Exactly one of any number of
// concurrent callers wins; losers get ALREADY_CLAIMED and should refresh
// their listing.
func (m *Manager) Claim(ctx context.Context, entryID, reviewerID string) (*models.QueueEntry, error) {
	var (
		claimed *models.QueueEntry
		action  *models.ReviewAction
	)
	err := m.store.Transact(ctx, func(tx store.Store) error {
		entry, err := tx.ClaimQueueEntry(ctx, entryID, reviewerID, m.now())
		if err != nil {
			return err
		}
		action, err = m.recorder.Append(ctx, tx, entry.ApplicationID, &reviewerID, entry.Level, models.ActionClaimed, "")
		if err != nil {
			return err
		}
		claimed = entry
		return nil
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeAlreadyClaimed) {
			metrics.QueueClaimConflicts.WithLabelValues(strconv.Itoa(m.entryLevel(ctx, entryID))).Inc()
		}
		return nil, err
	}

	metrics.QueueClaims.WithLabelValues(strconv.Itoa(claimed.Level)).Inc()
	m.recorder.Flush(action)
	m.log.Info("Queue entry claimed", map[string]interface{}{
		"entryId":    entryID,
		"reviewerId": reviewerID,
		"level":      claimed.Level,
	})
	return claimed, nil
}

// Release puts a claimed entry back into the pending pool. Only the current
// assignee may release.
func (m *Manager) Release(ctx context.Context, entryID, reviewerID string) error {
	var action *models.ReviewAction
	err := m.store.Transact(ctx, func(tx store.Store) error {
		entry, err := tx.GetQueueEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if !entry.Status.Live() || entry.AssignedTo == nil || *entry.AssignedTo != reviewerID {
			return apperrors.NewNotClaimedByCallerError(entryID, reviewerID)
		}

		entry.Status = models.QueuePending
		entry.AssignedTo = nil
		entry.ClaimedAt = nil
		if err := tx.UpdateQueueEntry(ctx, entry); err != nil {
			return err
		}
		action, err = m.recorder.Append(ctx, tx, entry.ApplicationID, &reviewerID, entry.Level, models.ActionReleased, "")
		return err
	})
	if err != nil {
		return err
	}
	m.recorder.Flush(action)
	return nil
}

// Reassign moves a claimed entry to another reviewer. Supervisory roles only.
func (m *Manager) Reassign(ctx context.Context, entryID string, supervisor *models.Reviewer, toReviewerID string) error {
	if !supervisor.Role.Supervisory() {
		return apperrors.NewUnauthorizedReviewerError(supervisor.ID, 0)
	}

	var action *models.ReviewAction
	err := m.store.Transact(ctx, func(tx store.Store) error {
		entry, err := tx.GetQueueEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if !entry.Status.Live() {
			return apperrors.NewInvalidTransitionError(entry.ApplicationID, string(entry.Status), "reassign")
		}

		now := m.now()
		entry.Status = models.QueueClaimed
		entry.AssignedTo = &toReviewerID
		entry.ClaimedAt = &now
		if err := tx.UpdateQueueEntry(ctx, entry); err != nil {
			return err
		}
		action, err = m.recorder.Append(ctx, tx, entry.ApplicationID, &supervisor.ID, entry.Level,
			models.ActionReassigned, "reassigned to "+toReviewerID)
		return err
	})
	if err != nil {
		return err
	}
	m.recorder.Flush(action)
	return nil
}

// Complete closes the live entry for an application at a level. Idempotent:
// completing an already-completed or absent slot is a no-op, so decision
// retries never fail here. Runs inside the caller's transaction.
func (m *Manager) Complete(ctx context.Context, tx store.Store, applicationID string, level int) error {
	entry, err := tx.LiveQueueEntry(ctx, applicationID, level)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeResourceNotFound) {
			return nil
		}
		return err
	}

	now := m.now()
	entry.Status = models.QueueCompleted
	entry.CompletedAt = &now
	return tx.UpdateQueueEntry(ctx, entry)
}

// Hold marks the live entry in progress while the application waits on
// requested changes, keeping the reviewer attached. Runs inside the caller's
// transaction.
func (m *Manager) Hold(ctx context.Context, tx store.Store, applicationID string, level int) error {
	entry, err := tx.LiveQueueEntry(ctx, applicationID, level)
	if err != nil {
		return err
	}
	entry.Status = models.QueueInProgress
	return tx.UpdateQueueEntry(ctx, entry)
}

// Reopen returns a held entry to the pending pool after a resubmission, with
// a fresh SLA window. Runs inside the caller's transaction.
func (m *Manager) Reopen(ctx context.Context, tx store.Store, applicationID string, level, slaDays int) error {
	entry, err := tx.LiveQueueEntry(ctx, applicationID, level)
	if err != nil {
		return err
	}
	now := m.now()
	entry.Status = models.QueuePending
	entry.AssignedTo = nil
	entry.ClaimedAt = nil
	entry.SLADeadline = now.Add(time.Duration(slaDays) * 24 * time.Hour)
	return tx.UpdateQueueEntry(ctx, entry)
}

// CompleteAll closes every live entry for an application. Used by withdraw
// and terminal decisions so no orphan work survives. Runs inside the caller's
// transaction.
func (m *Manager) CompleteAll(ctx context.Context, tx store.Store, applicationID string) error {
	entries, err := tx.LiveQueueEntries(ctx, applicationID)
	if err != nil {
		return err
	}
	now := m.now()
	for _, entry := range entries {
		entry.Status = models.QueueCompleted
		entry.CompletedAt = &now
		if err := tx.UpdateQueueEntry(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) entryLevel(ctx context.Context, entryID string) int {
	if entry, err := m.store.GetQueueEntry(ctx, entryID); err == nil {
		return entry.Level
	}
	return 0
}
