// internal/workflow/engine.go
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"poultry-workflow/internal/audit"
	apperrors "poultry-workflow/internal/common/errors"
	"poultry-workflow/internal/common/logger"
	"poultry-workflow/internal/common/metrics"
	"poultry-workflow/internal/common/observability"
	"poultry-workflow/internal/common/validation"
	"poultry-workflow/internal/eligibility"
	"poultry-workflow/internal/issuer"
	"poultry-workflow/internal/models"
	"poultry-workflow/internal/notify"
	"poultry-workflow/internal/queue"
	"poultry-workflow/internal/resolver"
	"poultry-workflow/internal/store"
)

// TerminalFunc carries out a kind's closing action at final approval, such as
// enrollment or account activation. It runs inside the approval transaction
// and sees the application already approved and carrying its identifier; an
// error aborts the whole approval.
type TerminalFunc func(ctx context.Context, app *models.Application) error

// Engine drives every application state transition. All mutations run inside
// a single store transaction; the audit mirror and applicant notifications
// are fed strictly after commit and never undo a committed transition.
type Engine struct {
	store    store.Store
	queue    *queue.Manager
	recorder *audit.Recorder
	resolver resolver.Resolver
	issuer   issuer.Issuer
	notifier *notify.Dispatcher
	policy   func() Policy
	terminal map[models.Kind]TerminalFunc
	obs      *observability.Observability
	log      logger.Logger
	now      func() time.Time
}

func NewEngine(
	s store.Store,
	q *queue.Manager,
	recorder *audit.Recorder,
	res resolver.Resolver,
	iss issuer.Issuer,
	notifier *notify.Dispatcher,
	policy func() Policy,
	obs *observability.Observability,
	log logger.Logger,
) *Engine {
	return &Engine{
		store:    s,
		queue:    q,
		recorder: recorder,
		resolver: res,
		issuer:   iss,
		notifier: notifier,
		policy:   policy,
		terminal: make(map[models.Kind]TerminalFunc),
		obs:      obs,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the engine's clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// OnTerminal registers the closing action for one kind. Register before the
// engine starts serving decisions.
func (e *Engine) OnTerminal(kind models.Kind, fn TerminalFunc) {
	e.terminal[kind] = fn
}

// SubmitRequest carries one new application.
type SubmitRequest struct {
	Kind         models.Kind            `json:"kind"`
	Jurisdiction models.Jurisdiction    `json:"jurisdiction"`
	Snapshot     map[string]interface{} `json:"snapshot"`
}

// DecisionRequest carries one reviewer decision against a claimed entry.
type DecisionRequest struct {
	ApplicationID string `json:"applicationId"`
	ReviewerID    string `json:"reviewerId"`
	Level         int    `json:"level"`
	Notes         string `json:"notes,omitempty"`
}

// ResubmitRequest carries the corrected snapshot for a changes-requested
// application.
type ResubmitRequest struct {
	ApplicationID string                 `json:"applicationId"`
	Snapshot      map[string]interface{} `json:"snapshot"`
}

// Submit validates and scores a new application. A passing score enters the
// level-1 queue; a failing one is rejected immediately with the reason flags
// on the audit trail. The eligibility verdict is computed exactly once, here.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*models.Application, error) {
	start := e.now()
	policy := e.policy()

	levels, err := policy.Levels(req.Kind)
	if err != nil {
		e.observe(ctx, req.Kind, models.ActionSubmitted, start, err)
		return nil, err
	}

	problems, err := validation.ValidateSnapshot(req.Kind, req.Snapshot)
	if err != nil {
		err = apperrors.NewValidationFailedError(err.Error())
		e.observe(ctx, req.Kind, models.ActionSubmitted, start, err)
		return nil, err
	}
	if len(problems) > 0 {
		err = apperrors.NewValidationFailedError(strings.Join(problems, "; "))
		e.observe(ctx, req.Kind, models.ActionSubmitted, start, err)
		return nil, err
	}

	now := e.now()
	snapshot := make(map[string]interface{}, len(req.Snapshot)+1)
	for k, v := range req.Snapshot {
		snapshot[k] = v
	}
	snapshot["submittedAt"] = now.Format(time.RFC3339)

	verdict := eligibility.Score(snapshot, policy.Eligibility)

	app := &models.Application{
		ID:               uuid.NewString(),
		Kind:             req.Kind,
		Status:           models.StatusUnderReview,
		CurrentLevel:     1,
		Jurisdiction:     req.Jurisdiction,
		Snapshot:         snapshot,
		EligibilityScore: verdict.Score,
		EligibilityFlags: verdict.Flags,
		SubmittedAt:      now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	var actions []*models.ReviewAction
	finalAction := models.ActionSubmitted

	if !verdict.Passed {
		app.Status = models.StatusRejected
		app.CurrentLevel = 0
		decidedAt := now
		app.FinalDecisionAt = &decidedAt
		finalAction = models.ActionAutoRejected
	}

	err = e.store.Transact(ctx, func(tx store.Store) error {
		if err := tx.CreateApplication(ctx, app); err != nil {
			return err
		}
		submitted, err := e.recorder.Append(ctx, tx, app.ID, nil, 0, models.ActionSubmitted,
			fmt.Sprintf("score: %d", verdict.Score))
		if err != nil {
			return err
		}
		actions = append(actions, submitted)

		if !verdict.Passed {
			failed, err := e.recorder.Append(ctx, tx, app.ID, nil, 0, models.ActionEligibilityFailed,
				strings.Join(verdict.Flags, ", "))
			if err != nil {
				return err
			}
			rejected, err := e.recorder.Append(ctx, tx, app.ID, nil, 0, models.ActionAutoRejected,
				fmt.Sprintf("score %d below threshold %d", verdict.Score, policy.Eligibility.PassThreshold))
			if err != nil {
				return err
			}
			actions = append(actions, failed, rejected)
			return nil
		}

		_, err = e.queue.Enqueue(ctx, tx, app, 1, levels[0].SLADays)
		return err
	})
	if err != nil {
		e.observe(ctx, req.Kind, models.ActionSubmitted, start, err)
		return nil, err
	}

	e.recorder.Flush(actions...)
	e.observe(ctx, req.Kind, finalAction, start, nil)
	e.dispatch(app, finalAction, "")
	e.log.Info("Application submitted", map[string]interface{}{
		"applicationId": app.ID,
		"kind":          string(app.Kind),
		"score":         verdict.Score,
		"status":        string(app.Status),
	})
	return app.Clone(), nil
}

// Claim authorizes a reviewer for an entry's level and jurisdiction, then
// hands the compare-and-swap to the queue manager.
func (e *Engine) Claim(ctx context.Context, entryID, reviewerID string) (*models.QueueEntry, error) {
	reviewer, err := e.resolver.Resolve(ctx, reviewerID)
	if err != nil {
		return nil, err
	}

	entry, err := e.store.GetQueueEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	app, err := e.store.GetApplication(ctx, entry.ApplicationID)
	if err != nil {
		return nil, err
	}

	spec, err := e.policy().Level(app.Kind, entry.Level)
	if err != nil {
		return nil, err
	}
	if err := Authorize(reviewer, spec.RequiredRole, app, entry.Level); err != nil {
		e.recordViolation(ctx, app, reviewerID, entry.Level, err)
		return nil, err
	}

	return e.queue.Claim(ctx, entryID, reviewerID)
}

// Approve records a level approval. At intermediate levels the application
// advances and the next level's entry is created; at the final level the
// application closes approved and the program identifier is issued inside the
// same transaction, so an approval without an identifier can never commit.
func (e *Engine) Approve(ctx context.Context, req DecisionRequest) (*models.Application, error) {
	start := e.now()
	reviewer, err := e.resolver.Resolve(ctx, req.ReviewerID)
	if err != nil {
		return nil, err
	}
	policy := e.policy()

	var (
		app     *models.Application
		actions []*models.ReviewAction
	)
	err = e.store.Transact(ctx, func(tx store.Store) error {
		var err error
		app, err = e.checkDecision(ctx, tx, policy, req, reviewer, "approve")
		if err != nil {
			return err
		}
		levels, _ := policy.Levels(app.Kind)

		if err := e.queue.Complete(ctx, tx, app.ID, req.Level); err != nil {
			return err
		}

		approved, err := e.recorder.Append(ctx, tx, app.ID, &reviewer.ID, req.Level, models.ActionApproved, req.Notes)
		if err != nil {
			return err
		}
		actions = append(actions, approved)

		now := e.now()
		if req.Level == len(levels) {
			app.Status = models.StatusApproved
			app.CurrentLevel = 0
			decidedAt := now
			app.FinalDecisionAt = &decidedAt
			if app.Identifier == "" {
				id, err := e.issuer.Issue(ctx, app.ID)
				if err != nil {
					return err
				}
				app.Identifier = id
			}
			if fn := e.terminal[app.Kind]; fn != nil {
				if err := fn(ctx, app); err != nil {
					return err
				}
			}
		} else {
			app.CurrentLevel = req.Level + 1
			if _, err := e.queue.Enqueue(ctx, tx, app, app.CurrentLevel, levels[req.Level].SLADays); err != nil {
				return err
			}
		}
		app.UpdatedAt = now
		return tx.UpdateApplication(ctx, app)
	})
	if err != nil {
		e.failDecision(ctx, req, models.ActionApproved, start, err)
		return nil, err
	}

	e.recorder.Flush(actions...)
	e.observe(ctx, app.Kind, models.ActionApproved, start, nil)
	e.dispatch(app, models.ActionApproved, req.Notes)
	return app.Clone(), nil
}

// Reject closes the application at any level. Rejection is terminal; every
// live queue entry is completed so no orphan work remains.
func (e *Engine) Reject(ctx context.Context, req DecisionRequest) (*models.Application, error) {
	start := e.now()
	reviewer, err := e.resolver.Resolve(ctx, req.ReviewerID)
	if err != nil {
		return nil, err
	}
	policy := e.policy()

	var (
		app     *models.Application
		actions []*models.ReviewAction
	)
	err = e.store.Transact(ctx, func(tx store.Store) error {
		var err error
		app, err = e.checkDecision(ctx, tx, policy, req, reviewer, "reject")
		if err != nil {
			return err
		}

		if err := e.queue.CompleteAll(ctx, tx, app.ID); err != nil {
			return err
		}

		rejected, err := e.recorder.Append(ctx, tx, app.ID, &reviewer.ID, req.Level, models.ActionRejected, req.Notes)
		if err != nil {
			return err
		}
		actions = append(actions, rejected)

		now := e.now()
		app.Status = models.StatusRejected
		app.CurrentLevel = 0
		decidedAt := now
		app.FinalDecisionAt = &decidedAt
		app.UpdatedAt = now
		return tx.UpdateApplication(ctx, app)
	})
	if err != nil {
		e.failDecision(ctx, req, models.ActionRejected, start, err)
		return nil, err
	}

	e.recorder.Flush(actions...)
	e.observe(ctx, app.Kind, models.ActionRejected, start, nil)
	e.dispatch(app, models.ActionRejected, req.Notes)
	return app.Clone(), nil
}

// RequestChanges pauses review and gives the applicant a correction window.
// The application keeps its level; the queue entry is held in progress by the
// requesting reviewer until resubmission or expiry.
func (e *Engine) RequestChanges(ctx context.Context, req DecisionRequest) (*models.Application, error) {
	start := e.now()
	reviewer, err := e.resolver.Resolve(ctx, req.ReviewerID)
	if err != nil {
		return nil, err
	}
	policy := e.policy()

	var (
		app     *models.Application
		actions []*models.ReviewAction
	)
	err = e.store.Transact(ctx, func(tx store.Store) error {
		var err error
		app, err = e.checkDecision(ctx, tx, policy, req, reviewer, "request_changes")
		if err != nil {
			return err
		}

		if err := e.queue.Hold(ctx, tx, app.ID, req.Level); err != nil {
			return err
		}

		requested, err := e.recorder.Append(ctx, tx, app.ID, &reviewer.ID, req.Level, models.ActionChangesRequested, req.Notes)
		if err != nil {
			return err
		}
		actions = append(actions, requested)

		now := e.now()
		deadline := now.Add(time.Duration(policy.ChangesDeadlineDays) * 24 * time.Hour)
		app.Status = models.StatusChangesRequested
		app.ChangesDeadline = &deadline
		app.UpdatedAt = now
		return tx.UpdateApplication(ctx, app)
	})
	if err != nil {
		e.failDecision(ctx, req, models.ActionChangesRequested, start, err)
		return nil, err
	}

	e.recorder.Flush(actions...)
	e.observe(ctx, app.Kind, models.ActionChangesRequested, start, nil)
	e.dispatch(app, models.ActionChangesRequested, req.Notes)
	return app.Clone(), nil
}

// Resubmit replaces the snapshot of a changes-requested application and puts
// it back into its level's pending pool. The original eligibility verdict
// stands: scoring happens at first submission only.
func (e *Engine) Resubmit(ctx context.Context, req ResubmitRequest) (*models.Application, error) {
	start := e.now()
	policy := e.policy()

	var (
		app     *models.Application
		actions []*models.ReviewAction
	)
	err := e.store.Transact(ctx, func(tx store.Store) error {
		var err error
		app, err = tx.GetApplication(ctx, req.ApplicationID)
		if err != nil {
			return err
		}
		if app.Status.Terminal() {
			return apperrors.NewApplicationClosedError(app.ID, string(app.Status))
		}
		if app.Status != models.StatusChangesRequested {
			return apperrors.NewInvalidTransitionError(app.ID, string(app.Status), "resubmit")
		}
		now := e.now()
		if app.ChangesDeadline != nil && now.After(*app.ChangesDeadline) {
			return apperrors.NewDeadlineExpiredError(app.ID, *app.ChangesDeadline)
		}

		problems, err := validation.ValidateSnapshot(app.Kind, req.Snapshot)
		if err != nil {
			return apperrors.NewValidationFailedError(err.Error())
		}
		if len(problems) > 0 {
			return apperrors.NewValidationFailedError(strings.Join(problems, "; "))
		}

		spec, err := policy.Level(app.Kind, app.CurrentLevel)
		if err != nil {
			return err
		}
		if err := e.queue.Reopen(ctx, tx, app.ID, app.CurrentLevel, spec.SLADays); err != nil {
			return err
		}

		snapshot := make(map[string]interface{}, len(req.Snapshot)+1)
		for k, v := range req.Snapshot {
			snapshot[k] = v
		}
		// The submission timestamp is part of the original verdict, not the
		// correction.
		if stamp, ok := app.Snapshot["submittedAt"]; ok {
			snapshot["submittedAt"] = stamp
		}

		app.Snapshot = snapshot
		app.Status = models.StatusUnderReview
		app.ChangesDeadline = nil
		app.UpdatedAt = now
		if err := tx.UpdateApplication(ctx, app); err != nil {
			return err
		}

		resubmitted, err := e.recorder.Append(ctx, tx, app.ID, nil, app.CurrentLevel, models.ActionResubmitted, "")
		if err != nil {
			return err
		}
		actions = append(actions, resubmitted)
		return nil
	})
	if err != nil {
		e.observeFailure(ctx, models.ActionResubmitted, start, err)
		return nil, err
	}

	e.recorder.Flush(actions...)
	e.observe(ctx, app.Kind, models.ActionResubmitted, start, nil)
	e.dispatch(app, models.ActionResubmitted, "")
	return app.Clone(), nil
}

// Withdraw closes the application at the applicant's request, from any
// non-terminal state.
func (e *Engine) Withdraw(ctx context.Context, applicationID, notes string) (*models.Application, error) {
	start := e.now()

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
		if app.Status.Terminal() {
			return apperrors.NewApplicationClosedError(app.ID, string(app.Status))
		}

		if err := e.queue.CompleteAll(ctx, tx, app.ID); err != nil {
			return err
		}

		withdrawn, err := e.recorder.Append(ctx, tx, app.ID, nil, app.CurrentLevel, models.ActionWithdrawn, notes)
		if err != nil {
			return err
		}
		actions = append(actions, withdrawn)

		now := e.now()
		app.Status = models.StatusWithdrawn
		app.CurrentLevel = 0
		decidedAt := now
		app.FinalDecisionAt = &decidedAt
		app.UpdatedAt = now
		return tx.UpdateApplication(ctx, app)
	})
	if err != nil {
		e.observeFailure(ctx, models.ActionWithdrawn, start, err)
		return nil, err
	}

	e.recorder.Flush(actions...)
	e.observe(ctx, app.Kind, models.ActionWithdrawn, start, nil)
	e.dispatch(app, models.ActionWithdrawn, notes)
	return app.Clone(), nil
}

// Get returns the application's current state.
func (e *Engine) Get(ctx context.Context, applicationID string) (*models.Application, error) {
	return e.store.GetApplication(ctx, applicationID)
}

// ListQueue returns a level's work queue, ranked, optionally filtered by
// jurisdiction or assignee.
func (e *Engine) ListQueue(ctx context.Context, level int, filter store.ListFilter) ([]*queue.Item, error) {
	return e.queue.List(ctx, level, filter)
}

// History returns the application's audit trail.
func (e *Engine) History(ctx context.Context, applicationID string) ([]*models.ReviewAction, error) {
	return e.recorder.History(ctx, e.store, applicationID)
}

// checkDecision runs the guard chain every reviewer decision shares. Order
// matters: closed beats wrong-status beats wrong-level beats authorization
// beats claim ownership, so callers get the most fundamental problem first.
func (e *Engine) checkDecision(ctx context.Context, tx store.Store, policy Policy, req DecisionRequest, reviewer *models.Reviewer, operation string) (*models.Application, error) {
	app, err := tx.GetApplication(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if app.Status.Terminal() {
		return nil, apperrors.NewApplicationClosedError(app.ID, string(app.Status))
	}
	if app.Status != models.StatusUnderReview {
		return nil, apperrors.NewInvalidTransitionError(app.ID, string(app.Status), operation)
	}
	if req.Level != app.CurrentLevel {
		return nil, apperrors.NewLevelMismatchError(app.ID, req.Level, app.CurrentLevel)
	}

	spec, err := policy.Level(app.Kind, req.Level)
	if err != nil {
		return nil, err
	}
	if err := Authorize(reviewer, spec.RequiredRole, app, req.Level); err != nil {
		return nil, err
	}

	entry, err := tx.LiveQueueEntry(ctx, app.ID, req.Level)
	if err != nil {
		return nil, err
	}
	if entry.AssignedTo == nil || *entry.AssignedTo != reviewer.ID {
		return nil, apperrors.NewNotClaimedByCallerError(entry.ID, reviewer.ID)
	}
	return app, nil
}

// failDecision records metrics for a refused decision and, for policy
// violations, audits the attempt outside the rolled-back transaction so the
// trail survives.
func (e *Engine) failDecision(ctx context.Context, req DecisionRequest, action models.ActionType, start time.Time, cause error) {
	e.observeFailure(ctx, action, start, cause)
	if !apperrors.IsPolicyViolation(cause) {
		return
	}
	if app, err := e.store.GetApplication(ctx, req.ApplicationID); err == nil {
		e.recordViolation(ctx, app, req.ReviewerID, req.Level, cause)
	}
}

// recordViolation appends the unauthorized_attempt row on the main store,
// deliberately outside any failed transaction.
func (e *Engine) recordViolation(ctx context.Context, app *models.Application, reviewerID string, level int, cause error) {
	action, err := e.recorder.Append(ctx, e.store, app.ID, &reviewerID, level, models.ActionUnauthorizedAttempt, cause.Error())
	if err != nil {
		e.log.WithError(err).Error("Failed to audit policy violation", map[string]interface{}{
			"applicationId": app.ID,
			"reviewerId":    reviewerID,
		})
		return
	}
	e.recorder.Flush(action)
	e.log.Warn("Policy violation", map[string]interface{}{
		"applicationId": app.ID,
		"reviewerId":    reviewerID,
		"level":         level,
		"code":          string(apperrors.CodeOf(cause)),
	})
}

func (e *Engine) dispatch(app *models.Application, action models.ActionType, notes string) {
	if e.notifier == nil {
		return
	}
	e.notifier.Dispatch(notify.EventFromApplication(app, action, notes))
}

func (e *Engine) observe(ctx context.Context, kind models.Kind, action models.ActionType, start time.Time, err error) {
	if err != nil {
		metrics.WorkflowTransitionFailures.WithLabelValues(string(kind), string(action), string(apperrors.CodeOf(err))).Inc()
		if e.obs != nil {
			e.obs.RecordTransition(ctx, string(action), "failure")
		}
		return
	}
	metrics.WorkflowTransitions.WithLabelValues(string(kind), string(action)).Inc()
	if e.obs != nil {
		e.obs.RecordTransition(ctx, string(action), "success")
		e.obs.RecordOperationDuration(ctx, e.now().Sub(start), string(action))
	}
}

// observeFailure is observe for paths where the kind is unknown because the
// transaction failed before or while loading the application.
func (e *Engine) observeFailure(ctx context.Context, action models.ActionType, start time.Time, err error) {
	e.observe(ctx, "", action, start, err)
}
