// internal/store/store.go
// Package store persists applications, queue entries and the audit ledger.
// Two implementations exist: an in-memory store used by tests and a
// PostgreSQL store used in deployment. Both guarantee the same contract:
// ClaimQueueEntry is an atomic conditional transition, and Transact runs its
// body as a single atomic unit that either fully commits or leaves no trace.
package store

import (
	"context"
	"time"

	"poultry-workflow/internal/models"
)

// ListFilter narrows queue listings. Zero values mean "any".
type ListFilter struct {
	Region       string
	District     string
	Constituency string
	AssignedTo   string
}

// Store is the persistence contract shared by the queue manager and the
// workflow engine.
type Store interface {
	CreateApplication(ctx context.Context, app *models.Application) error
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	UpdateApplication(ctx context.Context, app *models.Application) error
	ListApplicationsByStatus(ctx context.Context, status models.Status) ([]*models.Application, error)

	// InsertQueueEntry fails with DUPLICATE_QUEUE_ENTRY when a live entry
	// already occupies the (application, level) slot.
	InsertQueueEntry(ctx context.Context, entry *models.QueueEntry) error
	GetQueueEntry(ctx context.Context, id string) (*models.QueueEntry, error)
	// LiveQueueEntry returns the single non-completed entry for the
	// application at the given level, or RESOURCE_NOT_FOUND.
	LiveQueueEntry(ctx context.Context, applicationID string, level int) (*models.QueueEntry, error)
	LiveQueueEntries(ctx context.Context, applicationID string) ([]*models.QueueEntry, error)
	UpdateQueueEntry(ctx context.Context, entry *models.QueueEntry) error
	// ClaimQueueEntry performs the compare-and-swap on status == pending.
	// Exactly one of N concurrent callers wins; the rest get ALREADY_CLAIMED.
	ClaimQueueEntry(ctx context.Context, entryID, reviewerID string, now time.Time) (*models.QueueEntry, error)
	// ListQueueEntries returns live entries at a level, jurisdiction- and
	// assignee-filtered, in storage order. Ranking happens in the caller.
	ListQueueEntries(ctx context.Context, level int, filter ListFilter) ([]*models.QueueEntry, error)

	AppendAction(ctx context.Context, action *models.ReviewAction) error
	ListActions(ctx context.Context, applicationID string) ([]*models.ReviewAction, error)

	// Transact runs fn atomically. The Store passed to fn must be used for
	// every access inside the transaction; nested Transact calls join the
	// enclosing transaction.
	Transact(ctx context.Context, fn func(Store) error) error
}
