// internal/common/errors/errors.go
// Package errors provides the standardized error taxonomy for the review
// workflow core.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Submission errors — recoverable, surfaced to the caller, no state change.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Concurrency / ordering conflicts — recoverable, caller should refresh
	// its view of the queue and retry.
	ErrCodeDuplicateQueueEntry ErrorCode = "DUPLICATE_QUEUE_ENTRY"
	ErrCodeAlreadyClaimed      ErrorCode = "ALREADY_CLAIMED"
	ErrCodeNotClaimedByCaller  ErrorCode = "NOT_CLAIMED_BY_CALLER"

	// Policy violations — never retried automatically, audited as
	// security-relevant events.
	ErrCodeLevelMismatch        ErrorCode = "LEVEL_MISMATCH"
	ErrCodeUnauthorizedReviewer ErrorCode = "UNAUTHORIZED_REVIEWER"

	// Lifecycle errors.
	ErrCodeDeadlineExpired    ErrorCode = "DEADLINE_EXPIRED"
	ErrCodeApplicationClosed  ErrorCode = "APPLICATION_CLOSED"
	ErrCodeResourceNotFound   ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeInvalidTransition  ErrorCode = "INVALID_TRANSITION"
	ErrCodeUnknownWorkflow    ErrorCode = "UNKNOWN_WORKFLOW_KIND"
	ErrCodeIdentifierIssuance ErrorCode = "IDENTIFIER_ISSUANCE_FAILED"

	// Infrastructure errors — retryable technical failures.
	ErrCodeStorageFailed ErrorCode = "STORAGE_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As chains.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// CodeOf extracts the ErrorCode from any error in the chain, or "" if the
// error is not a StandardError.
func CodeOf(err error) ErrorCode {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// ==========================
// Constructors
// ==========================

// NewValidationFailedError creates a non-retryable submission validation error.
func NewValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Application data validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicateQueueEntryError signals a live entry already occupies the
// (application, level) slot.
func NewDuplicateQueueEntryError(applicationID string, level int) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateQueueEntry,
		Message:   "A live queue entry already exists for this application and level",
		Details:   fmt.Sprintf("applicationId: %s, level: %d", applicationID, level),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAlreadyClaimedError signals a lost claim race; the caller should refresh
// the queue listing.
func NewAlreadyClaimedError(entryID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAlreadyClaimed,
		Message:   "Queue entry is no longer pending",
		Details:   fmt.Sprintf("entryId: %s", entryID),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotClaimedByCallerError signals a release attempt by a non-assignee.
func NewNotClaimedByCallerError(entryID, reviewerID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotClaimedByCaller,
		Message:   "Queue entry is not claimed by the calling reviewer",
		Details:   fmt.Sprintf("entryId: %s, reviewerId: %s", entryID, reviewerID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLevelMismatchError signals a decision submitted against the wrong review
// level.
func NewLevelMismatchError(applicationID string, got, want int) *StandardError {
	return &StandardError{
		Code:      ErrCodeLevelMismatch,
		Message:   "Decision level does not match the application's current review level",
		Details:   fmt.Sprintf("applicationId: %s, got: %d, current: %d", applicationID, got, want),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnauthorizedReviewerError signals a reviewer whose role or jurisdiction
// does not match the level's required reviewer class.
func NewUnauthorizedReviewerError(reviewerID string, level int) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnauthorizedReviewer,
		Message:   "Reviewer is not authorized for this review level",
		Details:   fmt.Sprintf("reviewerId: %s, level: %d", reviewerID, level),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDeadlineExpiredError signals a resubmission past its changes deadline.
func NewDeadlineExpiredError(applicationID string, deadline time.Time) *StandardError {
	return &StandardError{
		Code:      ErrCodeDeadlineExpired,
		Message:   "Resubmission deadline has elapsed",
		Details:   fmt.Sprintf("applicationId: %s, deadline: %s", applicationID, deadline.Format(time.RFC3339)),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewApplicationClosedError signals an operation against a terminal
// application.
func NewApplicationClosedError(applicationID, status string) *StandardError {
	return &StandardError{
		Code:      ErrCodeApplicationClosed,
		Message:   "Application is in a terminal state",
		Details:   fmt.Sprintf("applicationId: %s, status: %s", applicationID, status),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewResourceNotFoundError creates a non-retryable not-found error.
func NewResourceNotFoundError(resource, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeResourceNotFound,
		Message:   fmt.Sprintf("%s not found", resource),
		Details:   fmt.Sprintf("id: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidTransitionError signals an operation not permitted from the
// application's current status.
func NewInvalidTransitionError(applicationID, status, operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   fmt.Sprintf("Operation %q is not permitted from status %q", operation, status),
		Details:   fmt.Sprintf("applicationId: %s", applicationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnknownWorkflowError signals an application kind with no configured
// level chain.
func NewUnknownWorkflowError(kind string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownWorkflow,
		Message:   "No workflow is configured for this application kind",
		Details:   fmt.Sprintf("kind: %s", kind),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewIdentifierIssuanceError creates a retryable issuance error.
func NewIdentifierIssuanceError(applicationID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeIdentifierIssuance,
		Message:   "Program identifier issuance failed",
		Details:   fmt.Sprintf("applicationId: %s, error: %s", applicationID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewStorageError creates a retryable storage error wrapping the driver
// failure.
func NewStorageError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStorageFailed,
		Message:   "Storage operation failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// Utility Functions
// ==========================

// IsRetryable checks whether an error is worth retrying.
func IsRetryable(err error) bool {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsConflict reports whether the error is a concurrency/ordering conflict the
// caller can resolve by refreshing its view.
func IsConflict(err error) bool {
	switch CodeOf(err) {
	case ErrCodeDuplicateQueueEntry, ErrCodeAlreadyClaimed, ErrCodeNotClaimedByCaller:
		return true
	}
	return false
}

// IsPolicyViolation reports whether the error must be audited as a
// security-relevant event.
func IsPolicyViolation(err error) bool {
	switch CodeOf(err) {
	case ErrCodeLevelMismatch, ErrCodeUnauthorizedReviewer:
		return true
	}
	return false
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "CLAIM") || strings.Contains(codeStr, "QUEUE"):
		return "QUEUE"
	case strings.Contains(codeStr, "UNAUTHORIZED") || strings.Contains(codeStr, "LEVEL"):
		return "POLICY"
	case strings.Contains(codeStr, "STORAGE"):
		return "STORAGE"
	default:
		return "OTHER"
	}
}
