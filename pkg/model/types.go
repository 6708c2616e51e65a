package model

import (
	"time"
)

// FieldType is the closed enumeration of input kinds a template can declare.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeNumber   FieldType = "number"
	FieldTypeEmail    FieldType = "email"
	FieldTypeTel      FieldType = "tel"
	FieldTypeDate     FieldType = "date"
	FieldTypeDateTime FieldType = "datetime"
	FieldTypeSelect   FieldType = "select"
	FieldTypeRadio    FieldType = "radio"
	FieldTypeCheckbox FieldType = "checkbox"
	FieldTypeTextarea FieldType = "textarea"
	FieldTypeFile     FieldType = "file"
)

// FieldTypes lists every supported field type in declaration order.
var FieldTypes = []FieldType{
	FieldTypeText,
	FieldTypeNumber,
	FieldTypeEmail,
	FieldTypeTel,
	FieldTypeDate,
	FieldTypeDateTime,
	FieldTypeSelect,
	FieldTypeRadio,
	FieldTypeCheckbox,
	FieldTypeTextarea,
	FieldTypeFile,
}

// Valid reports whether t is one of the declared field types.
func (t FieldType) Valid() bool {
	for _, known := range FieldTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Enumerable reports whether the type draws its values from Options.
func (t FieldType) Enumerable() bool {
	return t == FieldTypeSelect || t == FieldTypeRadio || t == FieldTypeCheckbox
}

// FreeText reports whether the type accepts arbitrary user-typed text.
func (t FieldType) FreeText() bool {
	return t == FieldTypeText || t == FieldTypeTextarea
}

// Operator names a condition predicate.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorContains    Operator = "contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorIsEmpty     Operator = "is_empty"
	OperatorIsNotEmpty  Operator = "is_not_empty"
)

// Width is the layout hint for a field.
type Width string

const (
	WidthFull  Width = "full"
	WidthHalf  Width = "half"
	WidthThird Width = "third"
)

// Condition is a single predicate over another field's current value.
// Condition lists are AND-combined; an empty list is always satisfied.
type Condition struct {
	Field    string   `json:"field" yaml:"field" validate:"required"`
	Operator Operator `json:"operator" yaml:"operator" validate:"required"`
	Value    Value    `json:"value" yaml:"value"`
}

// ValidationRules holds the per-field constraints. Pointer bounds distinguish
// "unset" from zero.
type ValidationRules struct {
	Required  bool     `json:"required,omitempty" yaml:"required,omitempty"`
	MinLength *int     `json:"minLength,omitempty" yaml:"minLength,omitempty" validate:"omitempty,min=0"`
	MaxLength *int     `json:"maxLength,omitempty" yaml:"maxLength,omitempty" validate:"omitempty,min=0"`
	Min       *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Pattern   string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Custom    string   `json:"custom,omitempty" yaml:"custom,omitempty"`
	Message   string   `json:"message,omitempty" yaml:"message,omitempty"`
}

// Option is a selectable choice for enumerable field types.
type Option struct {
	Value string `json:"value" yaml:"value" validate:"required"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Field is a single input. IDs are unique across the whole template; section
// nesting is presentational only.
type Field struct {
	ID           string          `json:"id" yaml:"id" validate:"required"`
	Type         FieldType       `json:"type" yaml:"type" validate:"required"`
	Label        string          `json:"label" yaml:"label"`
	Placeholder  string          `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	HelpText     string          `json:"helpText,omitempty" yaml:"helpText,omitempty"`
	Validation   ValidationRules `json:"validation" yaml:"validation"`
	Options      []Option        `json:"options,omitempty" yaml:"options,omitempty" validate:"dive"`
	ShowIf       []Condition     `json:"showIf,omitempty" yaml:"showIf,omitempty" validate:"dive"`
	RequiredIf   []Condition     `json:"requiredIf,omitempty" yaml:"requiredIf,omitempty" validate:"dive"`
	DefaultValue *Value          `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	Width        Width           `json:"width,omitempty" yaml:"width,omitempty" validate:"omitempty,oneof=full half third"`
	VoiceEnabled bool            `json:"voiceEnabled,omitempty" yaml:"voiceEnabled,omitempty"`
}

// HasOption reports whether value is one of the declared option values.
func (f Field) HasOption(value string) bool {
	for _, opt := range f.Options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

// Section groups fields for presentation and can be hidden as a whole.
type Section struct {
	ID          string      `json:"id" yaml:"id" validate:"required"`
	Title       string      `json:"title" yaml:"title"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Fields      []Field     `json:"fields" yaml:"fields" validate:"dive"`
	ShowIf      []Condition `json:"showIf,omitempty" yaml:"showIf,omitempty" validate:"dive"`
}

// Settings are template-wide behaviour switches.
type Settings struct {
	AutoSave               bool  `json:"autoSave" yaml:"autoSave"`
	AutoSaveInterval       int64 `json:"autoSaveInterval,omitempty" yaml:"autoSaveInterval,omitempty" validate:"min=0"`
	AllowPartialSubmission bool  `json:"allowPartialSubmission" yaml:"allowPartialSubmission"`
	ShowProgress           bool  `json:"showProgress" yaml:"showProgress"`
}

// Interval returns AutoSaveInterval (milliseconds) as a duration, or zero when
// unset.
func (s Settings) Interval() time.Duration {
	if s.AutoSaveInterval <= 0 {
		return 0
	}
	return time.Duration(s.AutoSaveInterval) * time.Millisecond
}

// SubmissionConfig describes where a completed form goes. The engine only
// carries it; delivery belongs to the caller.
type SubmissionConfig struct {
	Endpoint       string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Method         string `json:"method,omitempty" yaml:"method,omitempty"`
	SuccessMessage string `json:"successMessage,omitempty" yaml:"successMessage,omitempty"`
	RedirectURL    string `json:"redirectUrl,omitempty" yaml:"redirectUrl,omitempty"`
}

// FormTemplate is one version of a form schema. Stored templates are treated
// as immutable; edits produce a new version.
type FormTemplate struct {
	ID          string            `json:"id" yaml:"id" validate:"required"`
	Version     string            `json:"version" yaml:"version"`
	Title       string            `json:"title" yaml:"title"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Sections    []Section         `json:"sections" yaml:"sections" validate:"dive"`
	Settings    Settings          `json:"settings" yaml:"settings"`
	Submission  SubmissionConfig  `json:"submission" yaml:"submission"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Fields flattens every field in section order.
func (t FormTemplate) Fields() []Field {
	var out []Field
	for _, section := range t.Sections {
		out = append(out, section.Fields...)
	}
	return out
}

// Field looks up a field by id.
func (t FormTemplate) Field(id string) (Field, bool) {
	for _, section := range t.Sections {
		for _, field := range section.Fields {
			if field.ID == id {
				return field, true
			}
		}
	}
	return Field{}, false
}

// FieldIndex returns an id -> field map. When ids collide the first wins.
func (t FormTemplate) FieldIndex() map[string]Field {
	out := make(map[string]Field)
	for _, section := range t.Sections {
		for _, field := range section.Fields {
			if _, exists := out[field.ID]; exists {
				continue
			}
			out[field.ID] = field
		}
	}
	return out
}

// Clone returns a deep copy so stored versions never alias caller memory.
func (t FormTemplate) Clone() FormTemplate {
	out := t
	if t.Metadata != nil {
		out.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	if t.Sections != nil {
		out.Sections = make([]Section, len(t.Sections))
		for i, section := range t.Sections {
			out.Sections[i] = section.clone()
		}
	}
	return out
}

func (s Section) clone() Section {
	out := s
	out.ShowIf = cloneConditions(s.ShowIf)
	if s.Fields != nil {
		out.Fields = make([]Field, len(s.Fields))
		for i, field := range s.Fields {
			out.Fields[i] = field.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the field.
func (f Field) Clone() Field {
	out := f
	out.Validation = f.Validation.clone()
	out.ShowIf = cloneConditions(f.ShowIf)
	out.RequiredIf = cloneConditions(f.RequiredIf)
	if f.Options != nil {
		out.Options = append([]Option(nil), f.Options...)
	}
	if f.DefaultValue != nil {
		v := f.DefaultValue.clone()
		out.DefaultValue = &v
	}
	return out
}

func (r ValidationRules) clone() ValidationRules {
	out := r
	if r.MinLength != nil {
		v := *r.MinLength
		out.MinLength = &v
	}
	if r.MaxLength != nil {
		v := *r.MaxLength
		out.MaxLength = &v
	}
	if r.Min != nil {
		v := *r.Min
		out.Min = &v
	}
	if r.Max != nil {
		v := *r.Max
		out.Max = &v
	}
	return out
}

func cloneConditions(conds []Condition) []Condition {
	if conds == nil {
		return nil
	}
	out := make([]Condition, len(conds))
	for i, cond := range conds {
		out[i] = cond
		out[i].Value = cond.Value.clone()
	}
	return out
}

func (v Value) clone() Value {
	if v.kind == KindList {
		v.list = append([]string{}, v.list...)
	}
	return v
}

// TemplateVersion is one entry in a template's append-only history.
type TemplateVersion struct {
	Version   string       `json:"version"`
	Template  FormTemplate `json:"template"`
	CreatedAt time.Time    `json:"createdAt"`
	CreatedBy string       `json:"createdBy"`
	Changelog []string     `json:"changelog"`
	IsActive  bool         `json:"isActive"`
}

// IntPtr and FloatPtr help build ValidationRules literals.
func IntPtr(v int) *int { return &v }

func FloatPtr(v float64) *float64 { return &v }

// ValuePtr returns a pointer to v, for DefaultValue literals.
func ValuePtr(v Value) *Value { return &v }
