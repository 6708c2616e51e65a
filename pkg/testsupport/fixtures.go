package testsupport

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/goliatone/go-formflow/pkg/model"
)

// MustLoadTemplate reads a JSON template fixture, failing the test on error.
func MustLoadTemplate(t *testing.T, path string) model.FormTemplate {
	t.Helper()

	tpl, err := LoadTemplate(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	return tpl
}

// LoadTemplate reads a JSON template fixture without requiring testing.T.
func LoadTemplate(path string) (model.FormTemplate, error) {
	if path == "" {
		return model.FormTemplate{}, errors.New("testsupport: template path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.FormTemplate{}, fmt.Errorf("testsupport: read template: %w", err)
	}
	var out model.FormTemplate
	if err := json.Unmarshal(data, &out); err != nil {
		return model.FormTemplate{}, fmt.Errorf("testsupport: unmarshal template: %w", err)
	}
	return out, nil
}

// SnapshotDiff compares two snapshots treating nil and empty collections as
// equal, which is what a JSON round trip produces.
func SnapshotDiff(want, got model.FormData) string {
	return cmp.Diff(want, got, cmpopts.EquateEmpty())
}

// FixedClock returns a clock function pinned to t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// EmploymentTemplate is a small two-section template used across package
// tests: an always-visible personal section and an employment section whose
// employer fields depend on employment_status.
func EmploymentTemplate() model.FormTemplate {
	employed := []model.Condition{{
		Field:    "employment_status",
		Operator: model.OperatorEquals,
		Value:    model.String("employed"),
	}}

	return model.FormTemplate{
		ID:      "employment-intake",
		Version: "1.0.0",
		Title:   "Employment intake",
		Sections: []model.Section{
			{
				ID:    "personal",
				Title: "Personal details",
				Fields: []model.Field{
					{ID: "full_name", Type: model.FieldTypeText, Label: "Full name", Validation: model.ValidationRules{Required: true, MaxLength: model.IntPtr(80)}},
					{ID: "email", Type: model.FieldTypeEmail, Label: "Email"},
					{ID: "age", Type: model.FieldTypeNumber, Label: "Age", Validation: model.ValidationRules{Min: model.FloatPtr(18), Max: model.FloatPtr(120)}},
				},
			},
			{
				ID:    "employment",
				Title: "Employment",
				Fields: []model.Field{
					{
						ID:    "employment_status",
						Type:  model.FieldTypeSelect,
						Label: "Employment status",
						Options: []model.Option{
							{Value: "employed", Label: "Employed"},
							{Value: "unemployed", Label: "Unemployed"},
							{Value: "student", Label: "Student"},
						},
					},
					{ID: "employer_name", Type: model.FieldTypeText, Label: "Employer", ShowIf: employed, RequiredIf: employed},
					{ID: "employer_phone", Type: model.FieldTypeTel, Label: "Employer phone", ShowIf: employed},
				},
			},
		},
		Settings: model.Settings{
			AutoSave:         true,
			AutoSaveInterval: 30000,
			ShowProgress:     true,
		},
	}
}
