// internal/common/validation/schema.go
// Package validation checks submission snapshots against per-kind JSON
// schemas before the workflow engine accepts them.
package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"poultry-workflow/internal/models"
)

// snapshotSchemas holds the structural contract for each application kind.
// Schemas deliberately allow additional properties: the snapshot is a
// denormalized dump of applicant data and new CMS fields must not break
// submission.
var snapshotSchemas = map[models.Kind]map[string]interface{}{
	models.KindFarmerScreening: {
		"type": "object",
		"required": []interface{}{
			"fullName", "nationalId", "applicantAge", "programTrack", "farmLocation",
		},
		"properties": map[string]interface{}{
			"fullName":     map[string]interface{}{"type": "string", "minLength": 1},
			"nationalId":   map[string]interface{}{"type": "string", "minLength": 1},
			"applicantAge": map[string]interface{}{"type": "number"},
			"programTrack": map[string]interface{}{"type": "string", "minLength": 1},
			"farmLocation": map[string]interface{}{"type": "string", "minLength": 1},
			"email":        map[string]interface{}{"type": "string"},
			"phone":        map[string]interface{}{"type": "string"},
			"documents": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
		},
	},
	models.KindProgramEnrollment: {
		"type": "object",
		"required": []interface{}{
			"farmerId", "programTrack", "flockSize",
		},
		"properties": map[string]interface{}{
			"farmerId":     map[string]interface{}{"type": "string", "minLength": 1},
			"programTrack": map[string]interface{}{"type": "string", "minLength": 1},
			"flockSize":    map[string]interface{}{"type": "number", "minimum": float64(1)},
			"email":        map[string]interface{}{"type": "string"},
			"phone":        map[string]interface{}{"type": "string"},
			"documents": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
		},
	},
	models.KindStaffInvitation: {
		"type": "object",
		"required": []interface{}{
			"fullName", "email", "proposedRole",
		},
		"properties": map[string]interface{}{
			"fullName":     map[string]interface{}{"type": "string", "minLength": 1},
			"email":        map[string]interface{}{"type": "string", "minLength": 3},
			"proposedRole": map[string]interface{}{"type": "string", "minLength": 1},
			"phone":        map[string]interface{}{"type": "string"},
		},
	},
}

// ValidateSnapshot checks a snapshot against the schema for its kind and
// returns the list of field-level problems, empty when valid.
func ValidateSnapshot(kind models.Kind, snapshot map[string]interface{}) ([]string, error) {
	schemaMap, ok := snapshotSchemas[kind]
	if !ok {
		return nil, fmt.Errorf("no snapshot schema registered for kind %q", kind)
	}

	schemaLoader := gojsonschema.NewGoLoader(schemaMap)
	documentLoader := gojsonschema.NewGoLoader(snapshot)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	if result.Valid() {
		return nil, nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return problems, nil
}
