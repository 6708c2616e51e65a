package validation

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/testsupport"
)

func TestValidateFieldRequiredShortCircuits(t *testing.T) {
	t.Parallel()

	field := model.Field{
		ID:         "nickname",
		Type:       model.FieldTypeText,
		Label:      "Nickname",
		Validation: model.ValidationRules{Required: true, MinLength: model.IntPtr(3), Pattern: `^[a-z]+$`},
	}

	got := New().ValidateField(field, model.String(""))
	if diff := cmp.Diff([]string{"Nickname is required"}, got); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateFieldEmptyOptionalHasNoErrors(t *testing.T) {
	t.Parallel()

	field := model.Field{
		ID:         "age",
		Type:       model.FieldTypeNumber,
		Validation: model.ValidationRules{Min: model.FloatPtr(18)},
	}
	for _, value := range []model.Value{model.Null(), model.String(""), model.List()} {
		if got := New().ValidateField(field, value); len(got) != 0 {
			t.Fatalf("expected no errors for %v, got %v", value, got)
		}
	}
}

func TestValidateFieldRules(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		field model.Field
		value model.Value
		want  []string
	}{
		{
			name:  "min number",
			field: model.Field{ID: "age", Type: model.FieldTypeNumber, Validation: model.ValidationRules{Min: model.FloatPtr(18), Max: model.FloatPtr(120)}},
			value: model.Number(16),
			want:  []string{"Must be at least 18"},
		},
		{
			name:  "number from string",
			field: model.Field{ID: "age", Type: model.FieldTypeNumber, Validation: model.ValidationRules{Max: model.FloatPtr(120)}},
			value: model.String("121"),
			want:  []string{"Must be at most 120"},
		},
		{
			name:  "number shape",
			field: model.Field{ID: "age", Type: model.FieldTypeNumber, Validation: model.ValidationRules{Min: model.FloatPtr(18)}},
			value: model.String("twelve"),
			want:  []string{"Enter a valid number"},
		},
		{
			name:  "number rejects infinity and hex",
			field: model.Field{ID: "age", Type: model.FieldTypeNumber, Validation: model.ValidationRules{Max: model.FloatPtr(120)}},
			value: model.String("0x10"),
			want:  []string{"Enter a valid number"},
		},
		{
			name:  "email shape",
			field: model.Field{ID: "email", Type: model.FieldTypeEmail},
			value: model.String("not-an-email"),
			want:  []string{"Enter a valid email address"},
		},
		{
			name:  "valid email",
			field: model.Field{ID: "email", Type: model.FieldTypeEmail},
			value: model.String("ada@example.com"),
		},
		{
			name:  "tel shape",
			field: model.Field{ID: "phone", Type: model.FieldTypeTel},
			value: model.String("call me"),
			want:  []string{"Enter a valid phone number"},
		},
		{
			name:  "date shape",
			field: model.Field{ID: "dob", Type: model.FieldTypeDate},
			value: model.String("31/12/1990"),
			want:  []string{"Enter a valid date (YYYY-MM-DD)"},
		},
		{
			name:  "datetime local layout",
			field: model.Field{ID: "appointment", Type: model.FieldTypeDateTime},
			value: model.String("2024-05-01T09:30"),
		},
		{
			name:  "select membership",
			field: model.Field{ID: "status", Type: model.FieldTypeSelect, Options: []model.Option{{Value: "a"}, {Value: "b"}}},
			value: model.String("c"),
			want:  []string{"Choose one of the available options"},
		},
		{
			name:  "checkbox list membership",
			field: model.Field{ID: "langs", Type: model.FieldTypeCheckbox, Options: []model.Option{{Value: "go"}, {Value: "rust"}}},
			value: model.List("go", "cobol"),
			want:  []string{`"cobol" is not one of the available options`},
		},
		{
			name:  "checkbox bool",
			field: model.Field{ID: "agree", Type: model.FieldTypeCheckbox},
			value: model.Bool(true),
		},
		{
			name:  "length counts runes",
			field: model.Field{ID: "name", Type: model.FieldTypeText, Validation: model.ValidationRules{MinLength: model.IntPtr(2), MaxLength: model.IntPtr(3)}},
			value: model.String("김철수"),
		},
		{
			name:  "max length",
			field: model.Field{ID: "name", Type: model.FieldTypeText, Validation: model.ValidationRules{MaxLength: model.IntPtr(3)}},
			value: model.String("abcd"),
			want:  []string{"Must be at most 3 characters"},
		},
		{
			name:  "pattern message override",
			field: model.Field{ID: "zip", Type: model.FieldTypeText, Validation: model.ValidationRules{Pattern: `^\d{5}$`, Message: "Use five digits"}},
			value: model.String("12a45"),
			want:  []string{"Use five digits"},
		},
		{
			name:  "pattern default message",
			field: model.Field{ID: "zip", Type: model.FieldTypeText, Validation: model.ValidationRules{Pattern: `^\d{5}$`}},
			value: model.String("1234"),
			want:  []string{"Invalid format"},
		},
		{
			name:  "errors accumulate in order",
			field: model.Field{ID: "code", Type: model.FieldTypeText, Validation: model.ValidationRules{MinLength: model.IntPtr(4), Pattern: `^[A-Z]+$`, Custom: ValidatorHealthInsuranceNumber}},
			value: model.String("ab"),
			want:  []string{"Must be at least 4 characters", "Invalid format", "Enter a valid health insurance number"},
		},
		{
			name:  "unknown custom is a no-op",
			field: model.Field{ID: "x", Type: model.FieldTypeText, Validation: model.ValidationRules{Custom: "doesNotExist"}},
			value: model.String("anything"),
		},
	}

	v := New()
	for _, tc := range cases {
		got := v.ValidateField(tc.field, tc.value)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("%s: errors mismatch (-want +got):\n%s", tc.name, diff)
		}
	}
}

func TestInvalidPatternIsSkippedAndLogged(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	v := New(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	field := model.Field{ID: "broken", Type: model.FieldTypeText, Validation: model.ValidationRules{Pattern: `([a-z`}}

	for i := 0; i < 2; i++ {
		if got := v.ValidateField(field, model.String("abc")); len(got) != 0 {
			t.Fatalf("expected invalid pattern to be skipped, got %v", got)
		}
	}
	if strings.Count(buf.String(), "invalid pattern") != 1 {
		t.Fatalf("expected a single log line for the bad pattern, got %q", buf.String())
	}
}

func TestValidateFormUsesVisibilityAndRequiredIf(t *testing.T) {
	t.Parallel()

	tpl := testsupport.EmploymentTemplate()
	v := New()

	data := model.FormData{Values: map[string]model.Value{
		"full_name":         model.String("Ada"),
		"employment_status": model.String("employed"),
	}}
	result := v.ValidateForm(tpl, data)
	if result.Valid {
		t.Fatalf("expected form to be invalid while employer_name is missing")
	}
	want := map[string][]string{"employer_name": {"Employer is required"}}
	if diff := cmp.Diff(want, result.Errors); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}

	data.Values["employment_status"] = model.String("student")
	data.Values["employer_phone"] = model.String("not a phone")
	result = v.ValidateForm(tpl, data)
	if !result.Valid {
		t.Fatalf("hidden fields must not be validated, got %v", result.Errors)
	}
}

func TestValidateFormLowConfidenceWarnings(t *testing.T) {
	t.Parallel()

	tpl := testsupport.EmploymentTemplate()
	data := model.FormData{
		Values: map[string]model.Value{
			"full_name": model.String("Ada"),
			"email":     model.String("ada@example.com"),
		},
		Confidences: map[string]float64{"full_name": 0.45, "email": 0.92},
	}

	result := New().ValidateForm(tpl, data)
	if !result.Valid {
		t.Fatalf("warnings must not affect validity, got %v", result.Errors)
	}
	if len(result.Warnings["full_name"]) != 1 {
		t.Fatalf("expected one warning for full_name, got %v", result.Warnings)
	}
	if _, ok := result.Warnings["email"]; ok {
		t.Fatalf("did not expect a warning above the threshold")
	}

	result = New(WithLowConfidenceThreshold(0.95)).ValidateForm(tpl, data)
	if len(result.Warnings) != 2 {
		t.Fatalf("expected a raised threshold to warn on both answers, got %v", result.Warnings)
	}
}

func TestValidateFormReportsErrorsAndWarningsTogether(t *testing.T) {
	t.Parallel()

	data := model.FormData{
		Values: map[string]model.Value{
			"full_name": model.String("Ada"),
			"email":     model.String("ada at example"),
		},
		Confidences: map[string]float64{"email": 0.3},
	}
	result := New().ValidateForm(testsupport.EmploymentTemplate(), data)
	if result.Valid {
		t.Fatalf("expected the malformed email to invalidate the form")
	}
	if diff := cmp.Diff(map[string][]string{"email": {"Enter a valid email address"}}, result.Errors); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
	if len(result.Warnings["email"]) != 1 || len(result.Warnings) != 1 {
		t.Fatalf("expected one low-confidence warning for email, got %v", result.Warnings)
	}
}

func TestPerValidatorRegistries(t *testing.T) {
	t.Parallel()

	field := model.Field{ID: "member", Type: model.FieldTypeText, Validation: model.ValidationRules{Custom: "memberCode"}}

	tenantA := New()
	tenantA.Registry().MustRegister("memberCode", func(value model.Value) error {
		if s, _ := value.AsString(); !strings.HasPrefix(s, "A-") {
			return errors.New("Member codes start with A-")
		}
		return nil
	})
	tenantB := New()

	if got := tenantA.ValidateField(field, model.String("B-1")); len(got) != 1 {
		t.Fatalf("expected tenant A to reject, got %v", got)
	}
	if got := tenantB.ValidateField(field, model.String("B-1")); len(got) != 0 {
		t.Fatalf("expected tenant B to ignore unregistered validator, got %v", got)
	}
}

func TestMergeResultsDeduplicates(t *testing.T) {
	t.Parallel()

	a := model.NewValidationResult()
	a.Errors["email"] = []string{"Enter a valid email address"}
	b := model.NewValidationResult()
	b.Errors["email"] = []string{" Enter a valid email address ", "Already registered"}
	b.Warnings["name"] = []string{"  "}

	merged := MergeResults(a, b)
	if merged.Valid {
		t.Fatalf("expected merged result to be invalid")
	}
	if diff := cmp.Diff([]string{"Enter a valid email address", "Already registered"}, merged.Errors["email"]); diff != "" {
		t.Fatalf("merged errors mismatch (-want +got):\n%s", diff)
	}
	if len(merged.Warnings) != 0 {
		t.Fatalf("expected blank warnings dropped, got %v", merged.Warnings)
	}
}
