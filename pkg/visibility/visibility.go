package visibility

import (
	"io"
	"log/slog"

	"github.com/goliatone/go-formflow/pkg/model"
)

// Result is the evaluator output for one template/value pair. Ids keep
// template order.
type Result struct {
	VisibleFields  []string `json:"visibleFields"`
	RequiredFields []string `json:"requiredFields"`
	HiddenSections []string `json:"hiddenSections"`

	visible  map[string]struct{}
	required map[string]struct{}
	hidden   map[string]struct{}
}

// IsVisible reports whether the field is currently shown.
func (r Result) IsVisible(fieldID string) bool {
	_, ok := r.visible[fieldID]
	return ok
}

// IsRequired reports whether the field is visible and currently required.
func (r Result) IsRequired(fieldID string) bool {
	_, ok := r.required[fieldID]
	return ok
}

// IsSectionHidden reports whether the section's showIf failed.
func (r Result) IsSectionHidden(sectionID string) bool {
	_, ok := r.hidden[sectionID]
	return ok
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger routes diagnostics (unknown operators) to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Evaluator computes visible fields, required fields and hidden sections. It
// holds no mutable state and is safe to call on every keystroke from any
// goroutine.
type Evaluator struct {
	logger *slog.Logger
}

// New constructs an Evaluator.
func New(options ...Option) *Evaluator {
	e := &Evaluator{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range options {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Evaluate walks sections in template order. A hidden section hides all of
// its fields regardless of their own conditions; a visible field is required
// when its rules say so or its requiredIf holds.
func (e *Evaluator) Evaluate(tpl model.FormTemplate, values map[string]model.Value) Result {
	result := Result{
		VisibleFields:  []string{},
		RequiredFields: []string{},
		HiddenSections: []string{},
		visible:        make(map[string]struct{}),
		required:       make(map[string]struct{}),
		hidden:         make(map[string]struct{}),
	}

	for _, section := range tpl.Sections {
		if !e.EvalConditions(section.ShowIf, values) {
			result.HiddenSections = append(result.HiddenSections, section.ID)
			result.hidden[section.ID] = struct{}{}
			continue
		}
		for _, field := range section.Fields {
			if !e.EvalConditions(field.ShowIf, values) {
				continue
			}
			if _, seen := result.visible[field.ID]; seen {
				continue
			}
			result.VisibleFields = append(result.VisibleFields, field.ID)
			result.visible[field.ID] = struct{}{}

			if field.Validation.Required || (len(field.RequiredIf) > 0 && e.EvalConditions(field.RequiredIf, values)) {
				result.RequiredFields = append(result.RequiredFields, field.ID)
				result.required[field.ID] = struct{}{}
			}
		}
	}
	return result
}

// EvalConditions AND-combines conds. An empty list is vacuously true.
func (e *Evaluator) EvalConditions(conds []model.Condition, values map[string]model.Value) bool {
	for _, cond := range conds {
		if !e.EvalCondition(cond, values) {
			return false
		}
	}
	return true
}

// EvalCondition evaluates one predicate. Missing fields read as null. Unknown
// operators are logged and treated as satisfied so a bad gate never locks a
// user out of a field.
func (e *Evaluator) EvalCondition(cond model.Condition, values map[string]model.Value) bool {
	var actual model.Value
	if values != nil {
		actual = values[cond.Field]
	}

	switch cond.Operator {
	case model.OperatorEquals:
		return actual.Equal(cond.Value)
	case model.OperatorNotEquals:
		return !actual.Equal(cond.Value)
	case model.OperatorContains:
		return contains(actual, cond.Value)
	case model.OperatorGreaterThan:
		return compareNumbers(actual, cond.Value, func(a, b float64) bool { return a > b })
	case model.OperatorLessThan:
		return compareNumbers(actual, cond.Value, func(a, b float64) bool { return a < b })
	case model.OperatorIsEmpty:
		return actual.IsEmpty()
	case model.OperatorIsNotEmpty:
		return !actual.IsEmpty()
	default:
		if e != nil && e.logger != nil {
			e.logger.Warn("visibility: unknown condition operator, treating as satisfied",
				"operator", string(cond.Operator),
				"field", cond.Field,
			)
		}
		return true
	}
}

// KnownOperator reports whether op is one of the supported operators.
func KnownOperator(op model.Operator) bool {
	switch op {
	case model.OperatorEquals, model.OperatorNotEquals, model.OperatorContains,
		model.OperatorGreaterThan, model.OperatorLessThan,
		model.OperatorIsEmpty, model.OperatorIsNotEmpty:
		return true
	default:
		return false
	}
}
