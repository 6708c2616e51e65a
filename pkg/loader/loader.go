// Package loader reads form templates from JSON or YAML documents and rejects
// templates that are structurally unsound before they reach the engine.
package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/visibility"
)

// Error collects every structural problem found in one template document.
type Error struct {
	Source   string
	Problems []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("loader: %s: %s", e.Source, strings.Join(e.Problems, "; "))
}

// Loader parses and checks templates. The zero value is not usable; call New.
type Loader struct {
	validate *validator.Validate
}

var defaultLoader = New()

// New constructs a Loader.
func New() *Loader {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return &Loader{validate: v}
}

// Parse decodes a template document with the default loader.
func Parse(data []byte, source string) (model.FormTemplate, error) {
	return defaultLoader.Parse(data, source)
}

// LoadFile reads and parses path with the default loader.
func LoadFile(path string) (model.FormTemplate, error) {
	return defaultLoader.LoadFile(path)
}

// LoadFS loads every template in fsys with the default loader.
func LoadFS(fsys fs.FS) ([]model.FormTemplate, error) {
	return defaultLoader.LoadFS(fsys)
}

// Parse decodes data as JSON, falling back to YAML, and checks the result.
// source names the document in error messages.
func (l *Loader) Parse(data []byte, source string) (model.FormTemplate, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return model.FormTemplate{}, fmt.Errorf("loader: file %s is empty", source)
	}

	var tpl model.FormTemplate
	jsonErr := json.Unmarshal(data, &tpl)
	if jsonErr != nil {
		tpl = model.FormTemplate{}
		if yamlErr := yaml.Unmarshal(data, &tpl); yamlErr != nil {
			if looksLikeJSON(data) {
				return model.FormTemplate{}, fmt.Errorf("loader: parse %s: %w", source, jsonErr)
			}
			return model.FormTemplate{}, fmt.Errorf("loader: parse %s: %w", source, yamlErr)
		}
	}

	if err := l.Check(tpl, source); err != nil {
		return model.FormTemplate{}, err
	}
	return tpl, nil
}

// LoadFile reads path and parses it.
func (l *Loader) LoadFile(path string) (model.FormTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.FormTemplate{}, fmt.Errorf("loader: read %s: %w", path, err)
	}
	return l.Parse(data, path)
}

// LoadFS walks fsys and parses every .json, .yaml and .yml file. Template ids
// must be unique across the tree. Results are sorted by id.
func (l *Loader) LoadFS(fsys fs.FS) ([]model.FormTemplate, error) {
	if fsys == nil {
		return nil, nil
	}
	var out []model.FormTemplate
	sources := make(map[string]string)

	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !IsTemplateFile(path) {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("loader: read %s: %w", path, err)
		}
		tpl, err := l.Parse(data, path)
		if err != nil {
			return err
		}
		if prev, exists := sources[tpl.ID]; exists {
			return fmt.Errorf("loader: duplicate template %q (files %s and %s)", tpl.ID, prev, path)
		}
		sources[tpl.ID] = path
		out = append(out, tpl)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Check runs the structural rules: struct tags, field types, operators,
// unique ids, condition references, option lists, versions and patterns.
func (l *Loader) Check(tpl model.FormTemplate, source string) error {
	var problems []string

	if err := l.validate.Struct(tpl); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("loader: validate %s: %w", source, err)
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}

	if tpl.Version != "" && !model.ValidVersion(tpl.Version) {
		problems = append(problems, fmt.Sprintf("version %q is not a semantic version", tpl.Version))
	}

	fieldIDs := make(map[string]struct{})
	sectionIDs := make(map[string]struct{})
	for _, section := range tpl.Sections {
		if _, dup := sectionIDs[section.ID]; dup && section.ID != "" {
			problems = append(problems, fmt.Sprintf("duplicate section id %q", section.ID))
		}
		sectionIDs[section.ID] = struct{}{}
		for _, field := range section.Fields {
			if _, dup := fieldIDs[field.ID]; dup && field.ID != "" {
				problems = append(problems, fmt.Sprintf("duplicate field id %q", field.ID))
			}
			fieldIDs[field.ID] = struct{}{}
		}
	}

	checkConditions := func(owner string, conds []model.Condition) {
		for _, cond := range conds {
			if cond.Operator != "" && !visibility.KnownOperator(cond.Operator) {
				problems = append(problems, fmt.Sprintf("%s: unknown operator %q", owner, cond.Operator))
			}
			if _, ok := fieldIDs[cond.Field]; cond.Field != "" && !ok {
				problems = append(problems, fmt.Sprintf("%s: condition references unknown field %q", owner, cond.Field))
			}
		}
	}

	for _, section := range tpl.Sections {
		checkConditions(fmt.Sprintf("section %q showIf", section.ID), section.ShowIf)
		for _, field := range section.Fields {
			if field.Type != "" && !field.Type.Valid() {
				problems = append(problems, fmt.Sprintf("field %q: unknown type %q", field.ID, field.Type))
			}
			if (field.Type == model.FieldTypeSelect || field.Type == model.FieldTypeRadio) && len(field.Options) == 0 {
				problems = append(problems, fmt.Sprintf("field %q: %s fields need options", field.ID, field.Type))
			}
			if pattern := field.Validation.Pattern; pattern != "" {
				if _, err := regexp.Compile(pattern); err != nil {
					problems = append(problems, fmt.Sprintf("field %q: invalid pattern: %v", field.ID, err))
				}
			}
			rules := field.Validation
			if rules.MinLength != nil && rules.MaxLength != nil && *rules.MinLength > *rules.MaxLength {
				problems = append(problems, fmt.Sprintf("field %q: minLength exceeds maxLength", field.ID))
			}
			if rules.Min != nil && rules.Max != nil && *rules.Min > *rules.Max {
				problems = append(problems, fmt.Sprintf("field %q: min exceeds max", field.ID))
			}
			checkConditions(fmt.Sprintf("field %q showIf", field.ID), field.ShowIf)
			checkConditions(fmt.Sprintf("field %q requiredIf", field.ID), field.RequiredIf)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &Error{Source: source, Problems: problems}
}

// IsTemplateFile reports whether path has a template extension.
func IsTemplateFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func describe(fe validator.FieldError) string {
	path := fe.Namespace()
	if idx := strings.Index(path, "."); idx >= 0 {
		path = path[idx+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", path)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", path, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", path, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", path, fe.Tag())
	}
}

func looksLikeJSON(data []byte) bool {
	trimmed := strings.TrimSpace(string(data))
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}
