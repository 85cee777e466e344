// internal/models/queue.go
package models

import "time"

// QueueStatus is the lifecycle state of a review queue entry.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueClaimed    QueueStatus = "claimed"
	QueueInProgress QueueStatus = "in_progress"
	QueueCompleted  QueueStatus = "completed"
)

// Live reports whether the entry still occupies its (application, level) slot.
func (s QueueStatus) Live() bool {
	return s != QueueCompleted
}

// QueueEntry is one unit of review work at a single level. At most one live
// entry exists per (application, level); completed entries are retained for
// audit and statistics, never deleted.
//
// PriorityScore is the rank stamped at enqueue time and is informational only:
// listing always re-ranks from current application state.
type QueueEntry struct {
	ID            string      `json:"id"`
	ApplicationID string      `json:"applicationId"`
	Level         int         `json:"level"`
	Status        QueueStatus `json:"status"`
	AssignedTo    *string     `json:"assignedTo,omitempty"`
	ClaimedAt     *time.Time  `json:"claimedAt,omitempty"`
	PriorityScore int         `json:"priorityScore"`
	SLADeadline   time.Time   `json:"slaDeadline"`
	Escalated     bool        `json:"escalated,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	CompletedAt   *time.Time  `json:"completedAt,omitempty"`
}

// Clone returns a copy safe to mutate.
func (e *QueueEntry) Clone() *QueueEntry {
	cp := *e
	if e.AssignedTo != nil {
		s := *e.AssignedTo
		cp.AssignedTo = &s
	}
	if e.ClaimedAt != nil {
		t := *e.ClaimedAt
		cp.ClaimedAt = &t
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
