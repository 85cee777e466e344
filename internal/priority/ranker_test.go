// internal/priority/ranker_test.go
package priority

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"poultry-workflow/internal/models"
)

func testApp(submitted time.Time, snapshot map[string]interface{}) *models.Application {
	if snapshot == nil {
		snapshot = map[string]interface{}{}
	}
	return &models.Application{
		ID:          "app-1",
		Kind:        models.KindFarmerScreening,
		Status:      models.StatusUnderReview,
		Snapshot:    snapshot,
		SubmittedAt: submitted,
	}
}

func TestRank(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	weights := DefaultWeights()
	weights.SponsoredTracks = []string{"layer"}
	ranker := NewRanker(weights)

	tests := []struct {
		name     string
		snapshot map[string]interface{}
		waited   time.Duration
		deadline time.Time
		want     int
	}{
		{
			name: "fresh unsponsored application scores zero",
			want: 0,
		},
		{
			name:     "sponsored track gets flat bonus",
			snapshot: map[string]interface{}{"programTrack": "layer"},
			want:     50,
		},
		{
			name: "verification bonuses stack",
			snapshot: map[string]interface{}{
				"identityVerified": true,
				"farmVerified":     true,
			},
			want: 20,
		},
		{
			name:   "wait bonus is linear",
			waited: 5 * 24 * time.Hour,
			want:   5,
		},
		{
			name:   "wait bonus is capped",
			waited: 90 * 24 * time.Hour,
			want:   30,
		},
		{
			name:     "approaching deadline adds urgency",
			deadline: now.Add(24 * time.Hour),
			want:     20,
		},
		{
			name:     "breached deadline adds more",
			deadline: now.Add(-1 * time.Hour),
			want:     40,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := testApp(now.Add(-tt.waited), tt.snapshot)
			entry := &models.QueueEntry{
				ApplicationID: app.ID,
				Level:         1,
				Status:        models.QueuePending,
				SLADeadline:   tt.deadline,
			}
			assert.Equal(t, tt.want, ranker.Rank(app, entry, now))
		})
	}
}

func TestLess_TieBrokenByEarliestSubmission(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	ranker := NewRanker(DefaultWeights())

	earlier := testApp(now.Add(-2*time.Hour), nil)
	later := testApp(now.Add(-1*time.Hour), nil)
	entry := &models.QueueEntry{Status: models.QueuePending}

	assert.True(t, ranker.Less(earlier, later, entry, entry, now))
	assert.False(t, ranker.Less(later, earlier, entry, entry, now))
}

func TestRank_NoSideEffects(t *testing.T) {
	now := time.Now().UTC()
	ranker := NewRanker(DefaultWeights())
	app := testApp(now.Add(-72*time.Hour), map[string]interface{}{"identityVerified": true})
	entry := &models.QueueEntry{SLADeadline: now.Add(12 * time.Hour)}

	first := ranker.Rank(app, entry, now)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ranker.Rank(app, entry, now))
	}
}
