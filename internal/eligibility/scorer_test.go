// internal/eligibility/scorer_test.go
package eligibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testRules() Rules {
	return Rules{
		PassThreshold:          50,
		TrackMatchBonus:        50,
		MissingDocumentPenalty: 40,
		AgePenalty:             30,
		LateSubmissionPenalty:  50,
		CapacityPenalty:        50,
		MinAge:                 18,
		MaxAge:                 70,
		SupportedTracks:        []string{"layer", "broiler"},
		RequiredDocuments:      []string{"national_id_copy", "land_certificate"},
	}
}

func cleanSnapshot() map[string]interface{} {
	return map[string]interface{}{
		"programTrack": "layer",
		"applicantAge": 35,
		"documents":    []interface{}{"national_id_copy", "land_certificate"},
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(map[string]interface{})
		rules      func(Rules) Rules
		wantScore  int
		wantPassed bool
		wantFlags  []string
	}{
		{
			name:       "clean application passes at threshold",
			mutate:     func(map[string]interface{}) {},
			wantScore:  50,
			wantPassed: true,
			wantFlags:  []string{},
		},
		{
			name: "missing mandatory document fails",
			mutate: func(s map[string]interface{}) {
				s["documents"] = []interface{}{"national_id_copy"}
			},
			wantScore:  10,
			wantPassed: false,
			wantFlags:  []string{"missing_document:land_certificate"},
		},
		{
			name: "unsupported track scores zero",
			mutate: func(s map[string]interface{}) {
				s["programTrack"] = "ostrich"
			},
			wantScore:  0,
			wantPassed: false,
			wantFlags:  []string{"track_mismatch"},
		},
		{
			name: "age outside window deducts",
			mutate: func(s map[string]interface{}) {
				s["applicantAge"] = 16
			},
			wantScore:  20,
			wantPassed: false,
			wantFlags:  []string{"age_out_of_range"},
		},
		{
			name:   "track at capacity deducts",
			mutate: func(map[string]interface{}) {},
			rules: func(r Rules) Rules {
				r.FullTracks = []string{"layer"}
				return r
			},
			wantScore:  0,
			wantPassed: false,
			wantFlags:  []string{"program_at_capacity"},
		},
		{
			name: "late submission deducts",
			mutate: func(s map[string]interface{}) {
				s["submittedAt"] = "2026-09-01T00:00:00Z"
			},
			rules: func(r Rules) Rules {
				r.SubmissionDeadline = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
				return r
			},
			wantScore:  0,
			wantPassed: false,
			wantFlags:  []string{"late_submission"},
		},
		{
			name: "score clamps at zero",
			mutate: func(s map[string]interface{}) {
				s["programTrack"] = "ostrich"
				s["documents"] = []interface{}{}
				s["applicantAge"] = 90
			},
			wantScore:  0,
			wantPassed: false,
			wantFlags: []string{
				"track_mismatch",
				"missing_document:national_id_copy",
				"missing_document:land_certificate",
				"age_out_of_range",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := cleanSnapshot()
			tt.mutate(snapshot)
			rules := testRules()
			if tt.rules != nil {
				rules = tt.rules(rules)
			}

			result := Score(snapshot, rules)

			assert.Equal(t, tt.wantScore, result.Score)
			assert.Equal(t, tt.wantPassed, result.Passed)
			assert.ElementsMatch(t, tt.wantFlags, result.Flags)
		})
	}
}

func TestScore_Deterministic(t *testing.T) {
	snapshot := cleanSnapshot()
	snapshot["documents"] = []interface{}{"national_id_copy"}
	rules := testRules()

	first := Score(snapshot, rules)
	for i := 0; i < 10; i++ {
		again := Score(snapshot, rules)
		assert.Equal(t, first.Score, again.Score)
		assert.Equal(t, first.Flags, again.Flags)
		assert.Equal(t, first.Passed, again.Passed)
	}
}

func TestScore_NilSnapshot(t *testing.T) {
	result := Score(nil, testRules())
	assert.False(t, result.Passed)
	assert.Equal(t, 0, result.Score)
}

func TestScore_NumericShapes(t *testing.T) {
	// JSON decoding hands ages over as float64.
	snapshot := cleanSnapshot()
	snapshot["applicantAge"] = float64(35)
	result := Score(snapshot, testRules())
	assert.True(t, result.Passed)

	snapshot["applicantAge"] = "35"
	result = Score(snapshot, testRules())
	assert.True(t, result.Passed)
}
