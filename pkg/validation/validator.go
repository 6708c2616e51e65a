package validation

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/visibility"
)

// DefaultLowConfidenceThreshold is the canonical cut-off below which a
// voice-originated answer produces a verification warning.
const DefaultLowConfidenceThreshold = 0.7

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	telPattern   = regexp.MustCompile(`^\+?[0-9][0-9\s\-().]{5,19}$`)

	dateTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}
)

// Option configures a Validator.
type Option func(*Validator)

// WithRegistry replaces the custom validator registry.
func WithRegistry(reg *Registry) Option {
	return func(v *Validator) {
		if reg != nil {
			v.registry = reg
		}
	}
}

// WithEvaluator sets the evaluator used by ValidateForm to skip hidden fields.
func WithEvaluator(eval *visibility.Evaluator) Option {
	return func(v *Validator) {
		if eval != nil {
			v.evaluator = eval
		}
	}
}

// WithLowConfidenceThreshold overrides DefaultLowConfidenceThreshold.
func WithLowConfidenceThreshold(threshold float64) Option {
	return func(v *Validator) {
		if threshold >= 0 && threshold <= 1 {
			v.threshold = threshold
		}
	}
}

// WithLogger routes diagnostics (bad patterns) to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// Validator checks field values against their rules. It never returns errors
// as Go errors: every failure is data in the result.
type Validator struct {
	registry  *Registry
	evaluator *visibility.Evaluator
	threshold float64
	logger    *slog.Logger

	patterns sync.Map // pattern -> *regexp.Regexp, or nil when invalid
}

// New constructs a Validator with the built-in registry and evaluator.
func New(options ...Option) *Validator {
	v := &Validator{
		threshold: DefaultLowConfidenceThreshold,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range options {
		if opt != nil {
			opt(v)
		}
	}
	if v.registry == nil {
		v.registry = NewRegistry()
	}
	if v.evaluator == nil {
		v.evaluator = visibility.New(visibility.WithLogger(v.logger))
	}
	return v
}

// Registry exposes the custom validator registry for runtime registration.
func (v *Validator) Registry() *Registry {
	return v.registry
}

// LowConfidenceThreshold reports the active warning threshold.
func (v *Validator) LowConfidenceThreshold() float64 {
	return v.threshold
}

// ValidateField checks value against field's own rules, using
// field.Validation.Required for the required check.
func (v *Validator) ValidateField(field model.Field, value model.Value) []string {
	return v.validateField(field, value, field.Validation.Required)
}

// ValidateForm validates the visible fields of tpl against data. Required-ness
// comes from the evaluator so requiredIf conditions participate. Low
// confidence answers produce warnings, which never affect Valid.
func (v *Validator) ValidateForm(tpl model.FormTemplate, data model.FormData) model.ValidationResult {
	state := v.evaluator.Evaluate(tpl, data.Values)
	return MergeResults(
		v.ruleErrors(tpl, data, state),
		v.confidenceWarnings(data, state),
	)
}

func (v *Validator) ruleErrors(tpl model.FormTemplate, data model.FormData, state visibility.Result) model.ValidationResult {
	result := model.NewValidationResult()
	index := tpl.FieldIndex()
	for _, id := range state.VisibleFields {
		field, ok := index[id]
		if !ok {
			continue
		}
		if errs := v.validateField(field, data.Value(id), state.IsRequired(id)); len(errs) > 0 {
			result.Errors[id] = errs
		}
	}
	return result
}

// confidenceWarnings flags visible, non-empty answers whose confidence is
// below the threshold.
func (v *Validator) confidenceWarnings(data model.FormData, state visibility.Result) model.ValidationResult {
	result := model.NewValidationResult()
	for _, id := range state.VisibleFields {
		confidence, ok := data.Confidence(id)
		if ok && !data.Value(id).IsEmpty() && confidence < v.threshold {
			result.Warnings[id] = []string{lowConfidenceMessage(confidence)}
		}
	}
	return result
}

func (v *Validator) validateField(field model.Field, value model.Value, required bool) []string {
	if value.IsEmpty() {
		if required {
			return []string{requiredMessage(field)}
		}
		return nil
	}

	var errs []string
	errs = append(errs, v.checkShape(field, value)...)
	errs = append(errs, checkLength(field.Validation, value)...)
	if field.Type == model.FieldTypeNumber {
		errs = append(errs, checkRange(field.Validation, value)...)
	}
	errs = append(errs, v.checkPattern(field, value)...)
	errs = append(errs, v.checkCustom(field, value)...)
	return normalizeMessages(errs)
}

// checkShape dispatches on the closed FieldType set.
func (v *Validator) checkShape(field model.Field, value model.Value) []string {
	switch field.Type {
	case model.FieldTypeText, model.FieldTypeTextarea, model.FieldTypeFile:
		return nil
	case model.FieldTypeNumber:
		if _, ok := numeric(value); !ok {
			return []string{"Enter a valid number"}
		}
		return nil
	case model.FieldTypeEmail:
		if s, ok := value.AsString(); !ok || !emailPattern.MatchString(strings.TrimSpace(s)) {
			return []string{"Enter a valid email address"}
		}
		return nil
	case model.FieldTypeTel:
		if s, ok := value.AsString(); !ok || !telPattern.MatchString(strings.TrimSpace(s)) {
			return []string{"Enter a valid phone number"}
		}
		return nil
	case model.FieldTypeDate:
		s, ok := value.AsString()
		if !ok {
			return []string{"Enter a valid date (YYYY-MM-DD)"}
		}
		if _, err := time.Parse("2006-01-02", strings.TrimSpace(s)); err != nil {
			return []string{"Enter a valid date (YYYY-MM-DD)"}
		}
		return nil
	case model.FieldTypeDateTime:
		s, ok := value.AsString()
		if !ok || !parsesAsDateTime(strings.TrimSpace(s)) {
			return []string{"Enter a valid date and time"}
		}
		return nil
	case model.FieldTypeSelect, model.FieldTypeRadio:
		s, ok := value.AsString()
		if !ok {
			return []string{"Choose one of the available options"}
		}
		if len(field.Options) > 0 && !field.HasOption(s) {
			return []string{"Choose one of the available options"}
		}
		return nil
	case model.FieldTypeCheckbox:
		return checkCheckbox(field, value)
	default:
		return []string{fmt.Sprintf("Unsupported field type %q", field.Type)}
	}
}

func checkCheckbox(field model.Field, value model.Value) []string {
	switch value.Kind() {
	case model.KindBool:
		return nil
	case model.KindString:
		s, _ := value.AsString()
		if len(field.Options) > 0 && !field.HasOption(s) {
			return []string{"Choose one of the available options"}
		}
		return nil
	case model.KindList:
		if len(field.Options) == 0 {
			return nil
		}
		items, _ := value.AsList()
		for _, item := range items {
			if !field.HasOption(item) {
				return []string{fmt.Sprintf("%q is not one of the available options", item)}
			}
		}
		return nil
	default:
		return []string{"Choose one of the available options"}
	}
}

func checkLength(rules model.ValidationRules, value model.Value) []string {
	s, ok := value.AsString()
	if !ok {
		return nil
	}
	length := utf8.RuneCountInString(s)
	var errs []string
	if rules.MinLength != nil && length < *rules.MinLength {
		errs = append(errs, fmt.Sprintf("Must be at least %d characters", *rules.MinLength))
	}
	if rules.MaxLength != nil && length > *rules.MaxLength {
		errs = append(errs, fmt.Sprintf("Must be at most %d characters", *rules.MaxLength))
	}
	return errs
}

func checkRange(rules model.ValidationRules, value model.Value) []string {
	n, ok := numeric(value)
	if !ok {
		return nil
	}
	var errs []string
	if rules.Min != nil && n < *rules.Min {
		errs = append(errs, fmt.Sprintf("Must be at least %s", formatNumber(*rules.Min)))
	}
	if rules.Max != nil && n > *rules.Max {
		errs = append(errs, fmt.Sprintf("Must be at most %s", formatNumber(*rules.Max)))
	}
	return errs
}

func (v *Validator) checkPattern(field model.Field, value model.Value) []string {
	pattern := strings.TrimSpace(field.Validation.Pattern)
	if pattern == "" {
		return nil
	}
	s, ok := value.AsString()
	if !ok {
		return nil
	}
	re := v.compile(field.ID, pattern)
	if re == nil || re.MatchString(s) {
		return nil
	}
	if msg := strings.TrimSpace(field.Validation.Message); msg != "" {
		return []string{msg}
	}
	return []string{"Invalid format"}
}

func (v *Validator) checkCustom(field model.Field, value model.Value) []string {
	name := strings.TrimSpace(field.Validation.Custom)
	if name == "" {
		return nil
	}
	fn, ok := v.registry.Lookup(name)
	if !ok {
		return nil
	}
	if err := fn(value); err != nil {
		return []string{err.Error()}
	}
	return nil
}

func (v *Validator) compile(fieldID, pattern string) *regexp.Regexp {
	if cached, ok := v.patterns.Load(pattern); ok {
		re, _ := cached.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		v.logger.Warn("validation: skipping invalid pattern", "field", fieldID, "pattern", pattern, "error", err)
		v.patterns.Store(pattern, (*regexp.Regexp)(nil))
		return nil
	}
	v.patterns.Store(pattern, re)
	return re
}

func numeric(value model.Value) (float64, bool) {
	switch value.Kind() {
	case model.KindNumber:
		n, _ := value.AsNumber()
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case model.KindString:
		s, _ := value.AsString()
		return visibility.ParseNumber(s)
	default:
		return 0, false
	}
}

func parsesAsDateTime(s string) bool {
	for _, layout := range dateTimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func requiredMessage(field model.Field) string {
	label := strings.TrimSpace(field.Label)
	if label == "" {
		label = field.ID
	}
	return fmt.Sprintf("%s is required", label)
}

func lowConfidenceMessage(confidence float64) string {
	return fmt.Sprintf("Low confidence voice answer (%.0f%%); please verify", confidence*100)
}
