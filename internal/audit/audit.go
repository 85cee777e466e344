// internal/audit/audit.go
// Package audit writes the append-only review action ledger. The ledger row
// goes through the caller's transaction; the search mirror is fed after commit
// and is strictly best-effort.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"poultry-workflow/internal/common/logger"
	"poultry-workflow/internal/models"
	"poultry-workflow/internal/store"
)

// Recorder builds and persists ledger rows.
type Recorder struct {
	mirror Mirror
	log    logger.Logger
}

func NewRecorder(mirror Mirror, log logger.Logger) *Recorder {
	if mirror == nil {
		mirror = NopMirror{}
	}
	return &Recorder{mirror: mirror, log: log}
}

// Append writes one ledger row through tx. reviewerID is nil for
// system-generated events. The returned row is what the caller hands to
// Flush once its transaction commits.
func (r *Recorder) Append(ctx context.Context, tx store.Store, applicationID string, reviewerID *string, level int, action models.ActionType, notes string) (*models.ReviewAction, error) {
	row := &models.ReviewAction{
		ID:            uuid.NewString(),
		ApplicationID: applicationID,
		ReviewerID:    reviewerID,
		Level:         level,
		Action:        action,
		Notes:         notes,
		CreatedAt:     time.Now().UTC(),
	}
	if err := tx.AppendAction(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// Flush mirrors committed ledger rows into the search index. Mirror failures
// never surface to the caller; the ledger in the primary store is the source
// of truth.
func (r *Recorder) Flush(actions ...*models.ReviewAction) {
	for _, action := range actions {
		if action == nil {
			continue
		}
		r.mirror.Mirror(action)
	}
}

// History returns the full ledger for one application in append order.
func (r *Recorder) History(ctx context.Context, s store.Store, applicationID string) ([]*models.ReviewAction, error) {
	return s.ListActions(ctx, applicationID)
}
