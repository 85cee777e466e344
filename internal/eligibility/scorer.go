// internal/eligibility/scorer.go
// Package eligibility computes the 0-100 suitability score that gates an
// application before any human review.
package eligibility

import (
	"fmt"
	"strconv"
	"time"
)

// Reason codes attached to the application alongside the score.
const (
	FlagTrackMismatch     = "track_mismatch"
	FlagMissingDocument   = "missing_document" // suffixed with :<name>
	FlagAgeOutOfRange     = "age_out_of_range"
	FlagLateSubmission    = "late_submission"
	FlagProgramAtCapacity = "program_at_capacity"
)

// Rules is the program rule table. Each rule contributes a signed point
// delta; the sum is clamped to [0,100] and compared against PassThreshold.
type Rules struct {
	PassThreshold          int
	TrackMatchBonus        int
	MissingDocumentPenalty int
	AgePenalty             int
	LateSubmissionPenalty  int
	CapacityPenalty        int
	MinAge                 int
	MaxAge                 int
	SupportedTracks        []string
	FullTracks             []string
	RequiredDocuments      []string
	SubmissionDeadline     time.Time // zero = no deadline
}

// Result is the scorer output.
type Result struct {
	Score  int
	Flags  []string
	Passed bool
}

// Score evaluates a submission snapshot against the program rules. It is
// deterministic and side-effect-free: identical inputs always produce the
// identical result regardless of call order or prior state.
//
// Snapshot keys read: programTrack, documents, applicantAge, submittedAt.
func Score(snapshot map[string]interface{}, rules Rules) Result {
	if snapshot == nil {
		snapshot = make(map[string]interface{})
	}

	score := 0
	flags := []string{}

	track := asString(snapshot["programTrack"])
	if containsString(rules.SupportedTracks, track) {
		score += rules.TrackMatchBonus
	} else {
		flags = append(flags, FlagTrackMismatch)
	}

	docs := asStringSlice(snapshot["documents"])
	for _, required := range rules.RequiredDocuments {
		if !containsString(docs, required) {
			score -= rules.MissingDocumentPenalty
			flags = append(flags, fmt.Sprintf("%s:%s", FlagMissingDocument, required))
		}
	}

	if age, ok := asInt(snapshot["applicantAge"]); ok {
		if age < rules.MinAge || age > rules.MaxAge {
			score -= rules.AgePenalty
			flags = append(flags, FlagAgeOutOfRange)
		}
	}

	if !rules.SubmissionDeadline.IsZero() {
		if submitted, ok := asTime(snapshot["submittedAt"]); ok && submitted.After(rules.SubmissionDeadline) {
			score -= rules.LateSubmissionPenalty
			flags = append(flags, FlagLateSubmission)
		}
	}

	if containsString(rules.FullTracks, track) {
		score -= rules.CapacityPenalty
		flags = append(flags, FlagProgramAtCapacity)
	}

	score = clamp(score, 0, 100)

	return Result{
		Score:  score,
		Flags:  flags,
		Passed: score >= rules.PassThreshold,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// asInt tolerates the numeric shapes JSON decoding produces.
func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func asStringSlice(v interface{}) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
