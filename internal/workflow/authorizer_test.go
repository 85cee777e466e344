// internal/workflow/authorizer_test.go
package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "poultry-workflow/internal/common/errors"
	"poultry-workflow/internal/models"
)

func TestAuthorize(t *testing.T) {
	app := &models.Application{
		ID:           "app-1",
		Jurisdiction: models.Jurisdiction{Region: "ashanti", District: "d1", Constituency: "c1"},
	}

	tests := []struct {
		name         string
		reviewer     models.Reviewer
		requiredRole string
		wantErr      bool
	}{
		{
			name: "exact role and full jurisdiction match",
			reviewer: models.Reviewer{ID: "r1", Role: models.RoleConstituencyOfficer,
				Jurisdiction: models.Jurisdiction{Region: "ashanti", District: "d1", Constituency: "c1"}},
			requiredRole: "constituency_officer",
		},
		{
			name: "regional officer covers all districts in region",
			reviewer: models.Reviewer{ID: "r2", Role: models.RoleRegionalOfficer,
				Jurisdiction: models.Jurisdiction{Region: "ashanti"}},
			requiredRole: "regional_officer",
		},
		{
			name: "wrong role",
			reviewer: models.Reviewer{ID: "r3", Role: models.RoleConstituencyOfficer,
				Jurisdiction: models.Jurisdiction{Region: "ashanti", District: "d1", Constituency: "c1"}},
			requiredRole: "district_officer",
			wantErr:      true,
		},
		{
			name: "right role, wrong constituency",
			reviewer: models.Reviewer{ID: "r4", Role: models.RoleConstituencyOfficer,
				Jurisdiction: models.Jurisdiction{Region: "ashanti", District: "d1", Constituency: "c2"}},
			requiredRole: "constituency_officer",
			wantErr:      true,
		},
		{
			name: "right role, wrong region",
			reviewer: models.Reviewer{ID: "r5", Role: models.RoleDistrictOfficer,
				Jurisdiction: models.Jurisdiction{Region: "volta", District: "d1"}},
			requiredRole: "district_officer",
			wantErr:      true,
		},
		{
			name:         "national admin passes any role check",
			reviewer:     models.Reviewer{ID: "r6", Role: models.RoleNationalAdmin},
			requiredRole: "constituency_officer",
		},
		{
			name: "national admin scoped to a region is still bounded by it",
			reviewer: models.Reviewer{ID: "r7", Role: models.RoleNationalAdmin,
				Jurisdiction: models.Jurisdiction{Region: "volta"}},
			requiredRole: "district_officer",
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(&tt.reviewer, tt.requiredRole, app, 1)
			if tt.wantErr {
				assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnauthorizedReviewer))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
