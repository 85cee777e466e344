// internal/models/application.go
package models

import "time"

// Kind discriminates the three review workflows that share the engine.
type Kind string

const (
	KindFarmerScreening   Kind = "farmer_screening"
	KindProgramEnrollment Kind = "program_enrollment"
	KindStaffInvitation   Kind = "staff_invitation"
)

// Status is the lifecycle state of an application.
type Status string

const (
	StatusUnderReview      Status = "under_review"
	StatusChangesRequested Status = "changes_requested"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
	StatusWithdrawn        Status = "withdrawn"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusWithdrawn
}

// Jurisdiction routes an application to the reviewer pools that may decide it.
type Jurisdiction struct {
	Region       string `json:"region"`
	District     string `json:"district"`
	Constituency string `json:"constituency"`
}

// Application is the subject entity of the review workflow.
//
// CurrentLevel is 1-based; zero means the application is not in any review
// level, which holds exactly when Status is terminal. Snapshot is the
// denormalized applicant/farm data being judged and is never mutated after
// submission except through an explicit resubmit.
type Application struct {
	ID               string                 `json:"id"`
	Kind             Kind                   `json:"kind"`
	Status           Status                 `json:"status"`
	CurrentLevel     int                    `json:"currentLevel"`
	Jurisdiction     Jurisdiction           `json:"jurisdiction"`
	Snapshot         map[string]interface{} `json:"snapshot"`
	EligibilityScore int                    `json:"eligibilityScore"`
	EligibilityFlags []string               `json:"eligibilityFlags"`
	Identifier       string                 `json:"identifier,omitempty"`
	SubmittedAt      time.Time              `json:"submittedAt"`
	ChangesDeadline  *time.Time             `json:"changesDeadline,omitempty"`
	FinalDecisionAt  *time.Time             `json:"finalDecisionAt,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

// Clone returns a deep copy so stores can hand out rows without aliasing.
func (a *Application) Clone() *Application {
	cp := *a
	if a.Snapshot != nil {
		cp.Snapshot = make(map[string]interface{}, len(a.Snapshot))
		for k, v := range a.Snapshot {
			cp.Snapshot[k] = v
		}
	}
	if a.EligibilityFlags != nil {
		cp.EligibilityFlags = append([]string(nil), a.EligibilityFlags...)
	}
	if a.ChangesDeadline != nil {
		d := *a.ChangesDeadline
		cp.ChangesDeadline = &d
	}
	if a.FinalDecisionAt != nil {
		d := *a.FinalDecisionAt
		cp.FinalDecisionAt = &d
	}
	return &cp
}
