package session

import (
	"html"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/goliatone/go-formflow/pkg/model"
)

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

// DefaultSanitizer strips every tag from free-text answers.
func DefaultSanitizer() *bluemonday.Policy {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return textPolicy
}

// sanitizeValue cleans string answers to free-text fields. The policy escapes
// entities; they are decoded again so "Tom & Jerry" round-trips as typed.
func sanitizeValue(policy *bluemonday.Policy, field model.Field, value model.Value) model.Value {
	if policy == nil || !field.Type.FreeText() {
		return value
	}
	raw, ok := value.AsString()
	if !ok || raw == "" {
		return value
	}
	return model.String(html.UnescapeString(policy.Sanitize(raw)))
}
