// internal/notify/notify.go
// Package notify tells applicants about workflow transitions. Delivery is
// strictly best-effort and happens after the transition commits: a notifier
// failure never rolls back or retries a state change.
package notify

import (
	"context"
	"fmt"

	"poultry-workflow/internal/common/logger"
	"poultry-workflow/internal/models"
)

// Event describes one committed transition worth telling the applicant about.
type Event struct {
	ApplicationID string
	Kind          models.Kind
	Action        models.ActionType
	Status        models.Status
	Identifier    string
	ApplicantName string
	Email         string
	Phone         string
	Notes         string
}

// EventFromApplication builds the notification event for a transition,
// pulling applicant contact details out of the submission snapshot.
func EventFromApplication(app *models.Application, action models.ActionType, notes string) Event {
	event := Event{
		ApplicationID: app.ID,
		Kind:          app.Kind,
		Action:        action,
		Status:        app.Status,
		Identifier:    app.Identifier,
		Notes:         notes,
	}
	if name, ok := app.Snapshot["fullName"].(string); ok {
		event.ApplicantName = name
	}
	if email, ok := app.Snapshot["email"].(string); ok {
		event.Email = email
	}
	if phone, ok := app.Snapshot["phone"].(string); ok {
		event.Phone = phone
	}
	return event
}

// Notifier delivers one event over one channel.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Dispatcher fans an event out to every configured channel in the
// background, logging failures and returning nothing.
type Dispatcher struct {
	channels []Notifier
	log      logger.Logger
}

func NewDispatcher(log logger.Logger, channels ...Notifier) *Dispatcher {
	return &Dispatcher{channels: channels, log: log}
}

// Dispatch fires the event to all channels without blocking the caller.
func (d *Dispatcher) Dispatch(event Event) {
	for _, channel := range d.channels {
		channel := channel
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := channel.Notify(ctx, event); err != nil {
				d.log.WithError(err).Warn("Notification delivery failed", map[string]interface{}{
					"applicationId": event.ApplicationID,
					"action":        string(event.Action),
					"channel":       fmt.Sprintf("%T", channel),
				})
			}
		}()
	}
}

// subject and body render the applicant-facing message for an event.
func subject(event Event) string {
	switch event.Action {
	case models.ActionApproved:
		if event.Status != models.StatusApproved {
			return "Your application has moved to the next review stage"
		}
		return "Your application has been approved"
	case models.ActionRejected, models.ActionAutoRejected:
		return "Update on your application"
	case models.ActionChangesRequested:
		return "Your application needs changes"
	case models.ActionSubmitted, models.ActionResubmitted:
		return "Your application has been received"
	case models.ActionWithdrawn:
		return "Your application has been withdrawn"
	default:
		return "Update on your application"
	}
}

func body(event Event) string {
	name := event.ApplicantName
	if name == "" {
		name = "Applicant"
	}

	switch event.Action {
	case models.ActionApproved:
		if event.Status != models.StatusApproved {
			return fmt.Sprintf("Dear %s, your application %s has cleared a review stage and moved to the next one.",
				name, event.ApplicationID)
		}
		if event.Identifier != "" {
			return fmt.Sprintf("Dear %s, your application %s has been approved. Your program identifier is %s.",
				name, event.ApplicationID, event.Identifier)
		}
		return fmt.Sprintf("Dear %s, your application %s has been approved.", name, event.ApplicationID)
	case models.ActionRejected:
		return fmt.Sprintf("Dear %s, your application %s was not approved. Reason: %s", name, event.ApplicationID, event.Notes)
	case models.ActionAutoRejected:
		return fmt.Sprintf("Dear %s, your application %s was closed because the requested changes were not submitted in time.",
			name, event.ApplicationID)
	case models.ActionChangesRequested:
		return fmt.Sprintf("Dear %s, a reviewer has requested changes to your application %s: %s",
			name, event.ApplicationID, event.Notes)
	case models.ActionSubmitted, models.ActionResubmitted:
		return fmt.Sprintf("Dear %s, your application %s has been received and is under review.", name, event.ApplicationID)
	case models.ActionWithdrawn:
		return fmt.Sprintf("Dear %s, your application %s has been withdrawn as requested.", name, event.ApplicationID)
	default:
		return fmt.Sprintf("Dear %s, the status of your application %s is now %s.", name, event.ApplicationID, event.Status)
	}
}
