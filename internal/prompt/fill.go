package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/visibility"
)

// maxAttempts bounds re-prompts for a field that keeps failing validation.
const maxAttempts = 3

// Session is the part of session.Session that Fill drives.
type Session interface {
	Template() model.FormTemplate
	Evaluate() visibility.Result
	Snapshot() model.FormData
	UpdateField(id string, value model.Value, confidence *float64) error
	ClearField(id string) error
	SetCurrentField(id string) error
	Validate() model.ValidationResult
	Progress() float64
}

// Fill walks the template in section order and prompts for every visible
// field. Visibility is re-evaluated after each answer, so fields revealed by
// earlier answers are asked in the same pass. Answers that fail validation are
// re-prompted up to three times.
func Fill(ctx context.Context, sess Session, driver Driver) error {
	tpl := sess.Template()
	for _, section := range tpl.Sections {
		if sess.Evaluate().IsSectionHidden(section.ID) {
			continue
		}
		if section.Title != "" {
			if err := driver.Info(ctx, "== "+section.Title+" =="); err != nil {
				return err
			}
		}
		for _, field := range section.Fields {
			state := sess.Evaluate()
			if !state.IsVisible(field.ID) {
				continue
			}
			if err := fillField(ctx, sess, driver, field, state.IsRequired(field.ID)); err != nil {
				return err
			}
		}
	}
	if tpl.Settings.ShowProgress {
		return driver.Info(ctx, fmt.Sprintf("Progress: %.0f%%", sess.Progress()))
	}
	return nil
}

func fillField(ctx context.Context, sess Session, driver Driver, field model.Field, required bool) error {
	if err := sess.SetCurrentField(field.ID); err != nil {
		return err
	}
	message := field.Label
	if message == "" {
		message = field.ID
	}
	if required {
		message += " *"
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		current := sess.Snapshot().Value(field.ID)
		value, err := ask(ctx, driver, field, message, current)
		if err != nil {
			return err
		}
		if value.IsEmpty() {
			err = sess.ClearField(field.ID)
		} else {
			err = sess.UpdateField(field.ID, value, nil)
		}
		if err != nil {
			return err
		}

		errs := sess.Validate().FieldErrors(field.ID)
		if len(errs) == 0 {
			return nil
		}
		for _, msg := range errs {
			if err := driver.Info(ctx, "  ! "+msg); err != nil {
				return err
			}
		}
	}
	return nil
}

func ask(ctx context.Context, driver Driver, field model.Field, message string, current model.Value) (model.Value, error) {
	switch field.Type {
	case model.FieldTypeSelect, model.FieldTypeRadio:
		labels, values := optionLists(field)
		cfg := SelectConfig{Message: message, Options: labels, Help: field.HelpText, DefaultIndex: -1}
		if s, ok := current.AsString(); ok {
			cfg.DefaultIndex = indexOf(values, s)
		}
		idx, err := driver.Select(ctx, cfg)
		if err != nil {
			return model.Null(), err
		}
		if idx < 0 || idx >= len(values) {
			return model.Null(), nil
		}
		return model.String(values[idx]), nil

	case model.FieldTypeCheckbox:
		if len(field.Options) == 0 {
			def, _ := current.AsBool()
			ok, err := driver.Confirm(ctx, message, def)
			if err != nil {
				return model.Null(), err
			}
			return model.Bool(ok), nil
		}
		labels, values := optionLists(field)
		cfg := SelectConfig{Message: message, Options: labels, Help: field.HelpText}
		if items, ok := current.AsList(); ok {
			for _, item := range items {
				if idx := indexOf(values, item); idx >= 0 {
					cfg.Defaults = append(cfg.Defaults, idx)
				}
			}
		}
		picked, err := driver.MultiSelect(ctx, cfg)
		if err != nil {
			return model.Null(), err
		}
		var out []string
		for _, idx := range picked {
			if idx >= 0 && idx < len(values) {
				out = append(out, values[idx])
			}
		}
		if len(out) == 0 {
			return model.Null(), nil
		}
		return model.List(out...), nil

	case model.FieldTypeTextarea:
		text, err := driver.TextArea(ctx, InputConfig{Message: message, Default: current.String(), Help: field.HelpText})
		if err != nil {
			return model.Null(), err
		}
		return model.String(text), nil

	case model.FieldTypeNumber:
		text, err := driver.Input(ctx, InputConfig{Message: message, Default: current.String(), Help: field.HelpText})
		if err != nil {
			return model.Null(), err
		}
		text = strings.TrimSpace(text)
		if n, ok := visibility.ParseNumber(text); ok {
			return model.Number(n), nil
		}
		// left as text so validation reports it
		return model.String(text), nil

	default:
		text, err := driver.Input(ctx, InputConfig{Message: message, Default: current.String(), Help: field.HelpText})
		if err != nil {
			return model.Null(), err
		}
		return model.String(strings.TrimSpace(text)), nil
	}
}

func optionLists(field model.Field) (labels, values []string) {
	for _, opt := range field.Options {
		label := opt.Label
		if label == "" {
			label = opt.Value
		}
		labels = append(labels, label)
		values = append(values, opt.Value)
	}
	return labels, values
}
