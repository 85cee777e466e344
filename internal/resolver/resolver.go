// internal/resolver/resolver.go
// Package resolver maps a reviewer ID to their role and jurisdiction scope.
// The authorization check in the workflow engine is only as good as this
// lookup, so deployments back it with the identity provider; tests and small
// installations use the config-declared static table.
package resolver

import (
	"context"

	apperrors "poultry-workflow/internal/common/errors"
	"poultry-workflow/internal/models"
)

// Resolver looks up the reviewing officer behind an ID.
type Resolver interface {
	Resolve(ctx context.Context, reviewerID string) (*models.Reviewer, error)
}

// Static resolves reviewers from a fixed table.
type Static struct {
	reviewers map[string]*models.Reviewer
}

func NewStatic(reviewers map[string]*models.Reviewer) *Static {
	if reviewers == nil {
		reviewers = map[string]*models.Reviewer{}
	}
	return &Static{reviewers: reviewers}
}

func (s *Static) Resolve(_ context.Context, reviewerID string) (*models.Reviewer, error) {
	reviewer, ok := s.reviewers[reviewerID]
	if !ok {
		return nil, apperrors.NewResourceNotFoundError("reviewer", reviewerID)
	}
	cp := *reviewer
	return &cp, nil
}
