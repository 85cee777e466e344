// internal/workflow/policy.go
// Package workflow implements the multi-tier review state machine shared by
// farmer screening, program enrollment and staff invitation.
package workflow

import (
	"time"

	"poultry-workflow/internal/common/config"
	apperrors "poultry-workflow/internal/common/errors"
	"poultry-workflow/internal/eligibility"
	"poultry-workflow/internal/models"
)

// Changes-deadline policies.
const (
	ChangesPolicyAutoReject = "auto_reject"
	ChangesPolicyEscalate   = "escalate"
)

// Policy is the engine's decision table: the level chain per kind, the
// changes-deadline handling, and the eligibility rule set. The engine reads
// it through a provider function on every operation, so a config reload takes
// effect without a restart.
type Policy struct {
	Kinds               map[models.Kind][]config.LevelSpec
	ChangesPolicy       string
	ChangesDeadlineDays int
	EscalationGraceDays int
	Eligibility         eligibility.Rules
}

// PolicyFromConfig maps the loaded configuration into a Policy.
func PolicyFromConfig(cfg *config.Config) Policy {
	kinds := make(map[models.Kind][]config.LevelSpec, len(cfg.Workflow.Kinds))
	for name, spec := range cfg.Workflow.Kinds {
		kinds[models.Kind(name)] = spec.Levels
	}

	rules := eligibility.Rules{
		PassThreshold:          cfg.Eligibility.PassThreshold,
		TrackMatchBonus:        cfg.Eligibility.TrackMatchBonus,
		MissingDocumentPenalty: cfg.Eligibility.MissingDocumentPenalty,
		AgePenalty:             cfg.Eligibility.AgePenalty,
		LateSubmissionPenalty:  cfg.Eligibility.LateSubmissionPenalty,
		CapacityPenalty:        cfg.Eligibility.CapacityPenalty,
		MinAge:                 cfg.Eligibility.MinAge,
		MaxAge:                 cfg.Eligibility.MaxAge,
		SupportedTracks:        cfg.Eligibility.SupportedTracks,
		FullTracks:             cfg.Eligibility.FullTracks,
		RequiredDocuments:      cfg.Eligibility.RequiredDocuments,
	}
	if cfg.Eligibility.SubmissionDeadline != "" {
		// Validated at load time; a parse failure here leaves the zero value,
		// meaning no deadline.
		rules.SubmissionDeadline, _ = time.Parse(time.RFC3339, cfg.Eligibility.SubmissionDeadline)
	}

	return Policy{
		Kinds:               kinds,
		ChangesPolicy:       cfg.Workflow.ChangesPolicy,
		ChangesDeadlineDays: cfg.Workflow.ChangesDeadlineDays,
		EscalationGraceDays: cfg.Workflow.EscalationGraceDays,
		Eligibility:         rules,
	}
}

// Levels returns the approval chain for a kind.
func (p Policy) Levels(kind models.Kind) ([]config.LevelSpec, error) {
	levels, ok := p.Kinds[kind]
	if !ok || len(levels) == 0 {
		return nil, apperrors.NewUnknownWorkflowError(string(kind))
	}
	return levels, nil
}

// Level returns the configuration for one 1-based level of a kind.
func (p Policy) Level(kind models.Kind, level int) (config.LevelSpec, error) {
	levels, err := p.Levels(kind)
	if err != nil {
		return config.LevelSpec{}, err
	}
	if level < 1 || level > len(levels) {
		return config.LevelSpec{}, apperrors.NewUnknownWorkflowError(string(kind))
	}
	return levels[level-1], nil
}
