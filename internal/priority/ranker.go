// internal/priority/ranker.go
// Package priority computes the queue ordering score for pending review work.
// Higher score means reviewed sooner. Ranking is a pure function of the
// application, its queue entry and the current time, so listings recompute it
// on demand instead of trusting a stored rank.
package priority

import (
	"time"

	"poultry-workflow/internal/models"
)

// Weights configures the ranking bonuses.
type Weights struct {
	SponsoredTrackBonus int
	SponsoredTracks     []string
	VerificationBonus   int
	WaitBonusPerDay     int
	WaitBonusCap        int
	UrgencyWindow       time.Duration
	UrgencyBonus        int
	BreachBonus         int
}

// DefaultWeights mirrors the ministry's triage guidance.
func DefaultWeights() Weights {
	return Weights{
		SponsoredTrackBonus: 50,
		VerificationBonus:   10,
		WaitBonusPerDay:     1,
		WaitBonusCap:        30,
		UrgencyWindow:       48 * time.Hour,
		UrgencyBonus:        20,
		BreachBonus:         40,
	}
}

// Ranker scores queue entries for listing order.
type Ranker struct {
	weights Weights
}

func NewRanker(weights Weights) *Ranker {
	return &Ranker{weights: weights}
}

// Rank computes the ordering score for one live queue entry.
func (r *Ranker) Rank(app *models.Application, entry *models.QueueEntry, now time.Time) int {
	score := 0

	if track, ok := app.Snapshot["programTrack"].(string); ok {
		for _, sponsored := range r.weights.SponsoredTracks {
			if track == sponsored {
				score += r.weights.SponsoredTrackBonus
				break
			}
		}
	}

	if verified, ok := app.Snapshot["identityVerified"].(bool); ok && verified {
		score += r.weights.VerificationBonus
	}
	if verified, ok := app.Snapshot["farmVerified"].(bool); ok && verified {
		score += r.weights.VerificationBonus
	}

	if !app.SubmittedAt.IsZero() && now.After(app.SubmittedAt) {
		daysWaited := int(now.Sub(app.SubmittedAt).Hours() / 24)
		waitBonus := daysWaited * r.weights.WaitBonusPerDay
		if waitBonus > r.weights.WaitBonusCap {
			waitBonus = r.weights.WaitBonusCap
		}
		score += waitBonus
	}

	if !entry.SLADeadline.IsZero() {
		switch {
		case now.After(entry.SLADeadline):
			score += r.weights.BreachBonus
		case entry.SLADeadline.Sub(now) <= r.weights.UrgencyWindow:
			score += r.weights.UrgencyBonus
		}
	}

	return score
}

// Less orders two entries for listing: rank descending, ties broken by
// earliest submission.
func (r *Ranker) Less(a, b *models.Application, ea, eb *models.QueueEntry, now time.Time) bool {
	ra, rb := r.Rank(a, ea, now), r.Rank(b, eb, now)
	if ra != rb {
		return ra > rb
	}
	return a.SubmittedAt.Before(b.SubmittedAt)
}
