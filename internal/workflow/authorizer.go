// internal/workflow/authorizer.go
package workflow

import (
	apperrors "poultry-workflow/internal/common/errors"
	"poultry-workflow/internal/models"
)

// Authorize checks that a reviewer may act at a level: their role must be the
// level's required reviewer class and their jurisdiction scope must contain
// the application's jurisdiction. National admins pass the role check
// everywhere; jurisdiction still applies for everyone below them.
func Authorize(reviewer *models.Reviewer, requiredRole string, app *models.Application, level int) error {
	if reviewer.Role != models.RoleNationalAdmin && string(reviewer.Role) != requiredRole {
		return apperrors.NewUnauthorizedReviewerError(reviewer.ID, level)
	}
	if !scopeContains(reviewer.Jurisdiction, app.Jurisdiction) {
		return apperrors.NewUnauthorizedReviewerError(reviewer.ID, level)
	}
	return nil
}

// scopeContains reports whether the reviewer's jurisdiction slice covers the
// application's. An empty field in the reviewer's scope is unbounded at that
// tier: a regional officer carries only a region and covers every district
// and constituency inside it.
func scopeContains(scope, target models.Jurisdiction) bool {
	if scope.Region != "" && scope.Region != target.Region {
		return false
	}
	if scope.District != "" && scope.District != target.District {
		return false
	}
	if scope.Constituency != "" && scope.Constituency != target.Constituency {
		return false
	}
	return true
}
