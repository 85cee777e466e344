// internal/models/review.go
package models

import "time"

// ActionType enumerates every event the audit ledger records.
type ActionType string

const (
	ActionSubmitted           ActionType = "submitted"
	ActionResubmitted         ActionType = "resubmitted"
	ActionClaimed             ActionType = "claimed"
	ActionReleased            ActionType = "released"
	ActionReassigned          ActionType = "reassigned"
	ActionApproved            ActionType = "approved"
	ActionRejected            ActionType = "rejected"
	ActionChangesRequested    ActionType = "changes_requested"
	ActionWithdrawn           ActionType = "withdrawn"
	ActionEscalated           ActionType = "escalated"
	ActionEligibilityFailed   ActionType = "eligibility_failed"
	ActionAutoRejected        ActionType = "auto_rejected"
	ActionUnauthorizedAttempt ActionType = "unauthorized_attempt"
)

// ReviewAction is one immutable row of the audit ledger: who did what, at
// which level, when. ReviewerID is nil for system-generated events.
type ReviewAction struct {
	ID            string     `json:"id"`
	ApplicationID string     `json:"applicationId"`
	ReviewerID    *string    `json:"reviewerId,omitempty"`
	Level         int        `json:"level"`
	Action        ActionType `json:"action"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}
