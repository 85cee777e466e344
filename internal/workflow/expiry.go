// internal/workflow/expiry.go
package workflow

import (
	"context"
	"fmt"
	"time"

	apperrors "poultry-workflow/internal/common/errors"
	"poultry-workflow/internal/common/metrics"
	"poultry-workflow/internal/models"
	"poultry-workflow/internal/store"
)

// ExpireOverdueChanges sweeps applications whose changes-requested deadline
// has elapsed and applies the configured policy: auto_reject closes them,
// escalate flags the held entry for a supervisor and extends the deadline by
// the grace window. Returns the number of applications acted on. Each
// application is handled in its own transaction so one failure does not stall
// the rest of the sweep.
func (e *Engine) ExpireOverdueChanges(ctx context.Context) (int, error) {
	policy := e.policy()
	now := e.now()

	waiting, err := e.store.ListApplicationsByStatus(ctx, models.StatusChangesRequested)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, candidate := range waiting {
		if candidate.ChangesDeadline == nil || !now.After(*candidate.ChangesDeadline) {
			continue
		}

		var (
			acted     bool
			expireErr error
		)
		switch policy.ChangesPolicy {
		case ChangesPolicyEscalate:
			acted, expireErr = e.escalateOverdue(ctx, candidate.ID, policy)
		default:
			acted, expireErr = e.autoRejectOverdue(ctx, candidate.ID)
		}
		if expireErr != nil {
			e.log.WithError(expireErr).Error("Changes-deadline sweep failed for application", map[string]interface{}{
				"applicationId": candidate.ID,
			})
			metrics.ChangesDeadlineSweeps.WithLabelValues("error").Inc()
			continue
		}
		if acted {
			processed++
		}
	}
	return processed, nil
}

func (e *Engine) autoRejectOverdue(ctx context.Context, applicationID string) (bool, error) {
	var (
		app     *models.Application
		actions []*models.ReviewAction
	)
	err := e.store.Transact(ctx, func(tx store.Store) error {
		var err error
		app, err = tx.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		// Re-check under the transaction: the applicant may have resubmitted
		// between the listing and now.
		now := e.now()
		if app.Status != models.StatusChangesRequested ||
			app.ChangesDeadline == nil || !now.After(*app.ChangesDeadline) {
			return errSwept
		}

		if err := e.queue.CompleteAll(ctx, tx, app.ID); err != nil {
			return err
		}

		rejected, err := e.recorder.Append(ctx, tx, app.ID, nil, app.CurrentLevel,
			models.ActionAutoRejected, "changes deadline elapsed")
		if err != nil {
			return err
		}
		actions = append(actions, rejected)

		app.Status = models.StatusRejected
		app.CurrentLevel = 0
		decidedAt := now
		app.FinalDecisionAt = &decidedAt
		app.UpdatedAt = now
		return tx.UpdateApplication(ctx, app)
	})
	if err == errSwept {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	e.recorder.Flush(actions...)
	metrics.ChangesDeadlineSweeps.WithLabelValues("auto_rejected").Inc()
	e.dispatch(app, models.ActionAutoRejected, "")
	return true, nil
}

func (e *Engine) escalateOverdue(ctx context.Context, applicationID string, policy Policy) (bool, error) {
	var (
		app     *models.Application
		actions []*models.ReviewAction
	)
	err := e.store.Transact(ctx, func(tx store.Store) error {
		var err error
		app, err = tx.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		now := e.now()
		if app.Status != models.StatusChangesRequested ||
			app.ChangesDeadline == nil || !now.After(*app.ChangesDeadline) {
			return errSwept
		}

		entry, err := tx.LiveQueueEntry(ctx, app.ID, app.CurrentLevel)
		if err != nil {
			return err
		}
		if entry.Escalated {
			// Already escalated once; leave it to the supervisor.
			return errSwept
		}
		entry.Escalated = true
		if err := tx.UpdateQueueEntry(ctx, entry); err != nil {
			return err
		}

		escalated, err := e.recorder.Append(ctx, tx, app.ID, nil, app.CurrentLevel,
			models.ActionEscalated,
			fmt.Sprintf("changes deadline elapsed, extended by %d days", policy.EscalationGraceDays))
		if err != nil {
			return err
		}
		actions = append(actions, escalated)

		extended := now.Add(time.Duration(policy.EscalationGraceDays) * 24 * time.Hour)
		app.ChangesDeadline = &extended
		app.UpdatedAt = now
		return tx.UpdateApplication(ctx, app)
	})
	if err == errSwept {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	e.recorder.Flush(actions...)
	metrics.ChangesDeadlineSweeps.WithLabelValues("escalated").Inc()
	return true, nil
}

// errSwept aborts a sweep transaction whose candidate no longer qualifies.
var errSwept = apperrors.NewInvalidTransitionError("", string(models.StatusChangesRequested), "sweep")
