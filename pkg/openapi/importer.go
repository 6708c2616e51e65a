package openapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-formflow/pkg/loader"
	"github.com/goliatone/go-formflow/pkg/model"
)

var (
	// ErrOperationNotFound is returned when no operation matches the requested id.
	ErrOperationNotFound = errors.New("openapi: operation not found")
	// ErrNoRequestBody is returned when the operation has no usable object schema.
	ErrNoRequestBody = errors.New("openapi: operation has no object request body")
)

// textareaThreshold is the maxLength above which string properties become
// multi-line inputs.
const textareaThreshold = 255

// mainSection holds top-level scalar properties.
const mainSection = "main"

// Option configures ImportTemplate.
type Option func(*importer)

// WithTemplateID overrides the generated template id (the operation id).
func WithTemplateID(id string) Option {
	return func(im *importer) {
		im.templateID = strings.TrimSpace(id)
	}
}

// WithVersion overrides the template version taken from info.version.
func WithVersion(version string) Option {
	return func(im *importer) {
		im.version = strings.TrimSpace(version)
	}
}

// WithLabeler replaces Label for property names without a title.
func WithLabeler(fn func(string) string) Option {
	return func(im *importer) {
		if fn != nil {
			im.label = fn
		}
	}
}

// WithExternalRefs allows $ref values that point outside the document.
func WithExternalRefs(allow bool) Option {
	return func(im *importer) {
		im.externalRefs = allow
	}
}

// WithLogger routes importer diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(im *importer) {
		if logger != nil {
			im.logger = logger
		}
	}
}

type importer struct {
	templateID   string
	version      string
	label        func(string) string
	externalRefs bool
	logger       *slog.Logger
}

// Operations lists the operation ids in raw, sorted. Operations without an
// operationId are listed as "<method>:<path>".
func Operations(ctx context.Context, raw []byte) ([]string, error) {
	doc, err := load(ctx, raw, false)
	if err != nil {
		return nil, err
	}
	var ids []string
	walkOperations(doc, func(id, _, _ string, _ *openapi3.Operation) bool {
		ids = append(ids, id)
		return true
	})
	sort.Strings(ids)
	return ids, nil
}

// ImportTemplate loads an OpenAPI document and converts the request body of
// operationID into a FormTemplate. Top-level scalar properties land in a
// "main" section; nested objects become sections of their own with field ids
// prefixed by the property name. The result passes loader.Check.
func ImportTemplate(ctx context.Context, raw []byte, operationID string, opts ...Option) (model.FormTemplate, error) {
	im := &importer{
		label:  Label,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(im)
		}
	}

	doc, err := load(ctx, raw, im.externalRefs)
	if err != nil {
		return model.FormTemplate{}, err
	}

	var (
		op             *openapi3.Operation
		method, opPath string
	)
	walkOperations(doc, func(id, m, p string, candidate *openapi3.Operation) bool {
		if id == operationID {
			op, method, opPath = candidate, m, p
			return false
		}
		return true
	})
	if op == nil {
		return model.FormTemplate{}, fmt.Errorf("%w: %q", ErrOperationNotFound, operationID)
	}

	schema := requestSchema(op)
	if schema == nil || len(collectProperties(schema)) == 0 {
		return model.FormTemplate{}, fmt.Errorf("%w: %q", ErrNoRequestBody, operationID)
	}

	tpl := model.FormTemplate{
		ID:          firstNonEmpty(im.templateID, operationID),
		Version:     im.templateVersion(doc),
		Title:       firstNonEmpty(op.Summary, schema.Title, im.label(operationID)),
		Description: op.Description,
		Settings: model.Settings{
			AutoSave:     true,
			ShowProgress: true,
		},
		Submission: model.SubmissionConfig{
			Endpoint: opPath,
			Method:   method,
		},
		Metadata: map[string]string{"source": "openapi", "operationId": operationID},
	}
	tpl.Sections = im.sections(schema)

	if err := loader.New().Check(tpl, "openapi:"+operationID); err != nil {
		return model.FormTemplate{}, err
	}
	im.logger.Info("openapi: imported template",
		"operation", operationID, "template", tpl.ID, "fields", len(tpl.Fields()))
	return tpl, nil
}

func load(ctx context.Context, raw []byte, externalRefs bool) (*openapi3.T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, errors.New("openapi: document is empty")
	}
	l := &openapi3.Loader{Context: ctx, IsExternalRefsAllowed: externalRefs}
	doc, err := l.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("openapi: load document: %w", err)
	}
	if doc.Paths == nil || doc.Paths.Len() == 0 {
		return nil, errors.New("openapi: document does not contain any paths")
	}
	return doc, nil
}

// walkOperations visits operations in path then method order until visit
// returns false.
func walkOperations(doc *openapi3.T, visit func(id, method, path string, op *openapi3.Operation) bool) {
	paths := doc.Paths.Map()
	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}
	sort.Strings(keys)
	for _, p := range keys {
		item := paths[p]
		if item == nil {
			continue
		}
		ops := item.Operations()
		methods := make([]string, 0, len(ops))
		for m := range ops {
			methods = append(methods, m)
		}
		sort.Strings(methods)
		for _, m := range methods {
			op := ops[m]
			if op == nil {
				continue
			}
			id := op.OperationID
			if id == "" {
				id = strings.ToLower(m) + ":" + p
			}
			if !visit(id, strings.ToUpper(m), p, op) {
				return
			}
		}
	}
}

func requestSchema(op *openapi3.Operation) *openapi3.Schema {
	if op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil
	}
	content := op.RequestBody.Value.Content
	for _, mediaType := range []string{"application/json", "application/x-www-form-urlencoded", "multipart/form-data"} {
		if mt, ok := content[mediaType]; ok && mt.Schema != nil {
			return mt.Schema.Value
		}
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if mt := content[k]; mt != nil && mt.Schema != nil {
			return mt.Schema.Value
		}
	}
	return nil
}

type property struct {
	name     string
	schema   *openapi3.Schema
	required bool
}

// collectProperties flattens properties declared directly and through allOf,
// sorted by name. Read-only properties are skipped.
func collectProperties(schema *openapi3.Schema) []property {
	byName := make(map[string]*openapi3.Schema)
	required := make(map[string]bool)
	var visit func(s *openapi3.Schema)
	visit = func(s *openapi3.Schema) {
		if s == nil {
			return
		}
		for _, name := range s.Required {
			required[name] = true
		}
		for name, ref := range s.Properties {
			if ref == nil || ref.Value == nil || ref.Value.ReadOnly {
				continue
			}
			byName[name] = ref.Value
		}
		for _, ref := range s.AllOf {
			if ref != nil {
				visit(ref.Value)
			}
		}
	}
	visit(schema)

	out := make([]property, 0, len(byName))
	for name, s := range byName {
		out = append(out, property{name: name, schema: s, required: required[name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (im *importer) sections(schema *openapi3.Schema) []model.Section {
	main := model.Section{ID: mainSection, Title: firstNonEmpty(schema.Title, "Details")}
	var nested []model.Section

	for _, prop := range collectProperties(schema) {
		if schemaType(prop.schema) == openapi3.TypeObject {
			section := model.Section{
				ID:          prop.name,
				Title:       firstNonEmpty(prop.schema.Title, im.label(prop.name)),
				Description: prop.schema.Description,
			}
			for _, child := range collectProperties(prop.schema) {
				if schemaType(child.schema) == openapi3.TypeObject {
					im.logger.Debug("openapi: skipping deeply nested object", "property", prop.name+"."+child.name)
					continue
				}
				section.Fields = append(section.Fields, im.field(prop.name+"_"+child.name, child))
			}
			if len(section.Fields) > 0 {
				nested = append(nested, section)
			}
			continue
		}
		main.Fields = append(main.Fields, im.field(prop.name, prop))
	}

	var out []model.Section
	if len(main.Fields) > 0 {
		out = append(out, main)
	}
	return append(out, nested...)
}

func (im *importer) field(id string, prop property) model.Field {
	s := prop.schema
	field := model.Field{
		ID:       id,
		Label:    firstNonEmpty(s.Title, im.label(prop.name)),
		HelpText: s.Description,
		Validation: model.ValidationRules{
			Required: prop.required,
			Pattern:  s.Pattern,
		},
		VoiceEnabled: true,
	}

	switch schemaType(s) {
	case openapi3.TypeInteger, openapi3.TypeNumber:
		field.Type = model.FieldTypeNumber
		field.Validation.Min = cloneFloat(s.Min)
		field.Validation.Max = cloneFloat(s.Max)
	case openapi3.TypeBoolean:
		field.Type = model.FieldTypeCheckbox
	case openapi3.TypeArray:
		field.Type = model.FieldTypeCheckbox
		if s.Items != nil && s.Items.Value != nil {
			field.Options = options(s.Items.Value.Enum)
		}
		if len(field.Options) == 0 {
			field.Type = model.FieldTypeTextarea
		}
	default:
		field.Type = stringFieldType(s)
		if s.MinLength > 0 {
			field.Validation.MinLength = model.IntPtr(int(s.MinLength))
		}
		if s.MaxLength != nil {
			field.Validation.MaxLength = model.IntPtr(int(*s.MaxLength))
		}
	}

	if field.Validation.Pattern != "" {
		if _, err := regexp.Compile(field.Validation.Pattern); err != nil {
			im.logger.Warn("openapi: dropping unsupported pattern", "field", id, "pattern", field.Validation.Pattern, "error", err)
			field.Validation.Pattern = ""
		}
	}

	if len(s.Enum) > 0 && field.Type != model.FieldTypeCheckbox {
		field.Type = model.FieldTypeSelect
		field.Options = options(s.Enum)
	}

	if s.Default != nil {
		if value, err := model.FromAny(s.Default); err == nil {
			field.DefaultValue = &value
		} else {
			im.logger.Warn("openapi: ignoring unsupported default", "field", id, "error", err)
		}
	}
	return field
}

func stringFieldType(s *openapi3.Schema) model.FieldType {
	switch strings.ToLower(s.Format) {
	case "email":
		return model.FieldTypeEmail
	case "date":
		return model.FieldTypeDate
	case "date-time":
		return model.FieldTypeDateTime
	case "tel", "phone":
		return model.FieldTypeTel
	case "binary", "byte":
		return model.FieldTypeFile
	}
	if s.MaxLength != nil && *s.MaxLength > textareaThreshold {
		return model.FieldTypeTextarea
	}
	return model.FieldTypeText
}

func options(enum []any) []model.Option {
	if len(enum) == 0 {
		return nil
	}
	out := make([]model.Option, 0, len(enum))
	for _, raw := range enum {
		var value string
		switch typed := raw.(type) {
		case string:
			value = typed
		case float64:
			value = strconv.FormatFloat(typed, 'f', -1, 64)
		case bool:
			value = strconv.FormatBool(typed)
		case nil:
			continue
		default:
			value = fmt.Sprint(typed)
		}
		out = append(out, model.Option{Value: value, Label: Label(value)})
	}
	return out
}

// schemaType returns the first non-null type, inferring object when only
// properties are declared.
func schemaType(s *openapi3.Schema) string {
	if s.Type != nil {
		for _, t := range s.Type.Slice() {
			if t != openapi3.TypeNull {
				return t
			}
		}
	}
	if len(s.Properties) > 0 {
		return openapi3.TypeObject
	}
	return openapi3.TypeString
}

func (im *importer) templateVersion(doc *openapi3.T) string {
	if im.version != "" {
		return im.version
	}
	if doc.Info != nil && model.ValidVersion(doc.Info.Version) {
		return model.NormalizeVersion(doc.Info.Version)
	}
	return model.DefaultVersion
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
