package validation

import (
	"strings"

	"github.com/goliatone/go-formflow/pkg/model"
)

// MergeResults combines field-keyed messages from several results (for
// example client checks and server feedback), trimming and de-duplicating
// messages while preserving order.
func MergeResults(results ...model.ValidationResult) model.ValidationResult {
	merged := model.NewValidationResult()
	for _, result := range results {
		for id, msgs := range result.Errors {
			merged.Errors[id] = append(merged.Errors[id], msgs...)
		}
		for id, msgs := range result.Warnings {
			merged.Warnings[id] = append(merged.Warnings[id], msgs...)
		}
	}
	for id, msgs := range merged.Errors {
		if clean := normalizeMessages(msgs); clean != nil {
			merged.Errors[id] = clean
		} else {
			delete(merged.Errors, id)
		}
	}
	for id, msgs := range merged.Warnings {
		if clean := normalizeMessages(msgs); clean != nil {
			merged.Warnings[id] = clean
		} else {
			delete(merged.Warnings, id)
		}
	}
	merged.Valid = len(merged.Errors) == 0
	return merged
}

func normalizeMessages(messages []string) []string {
	if len(messages) == 0 {
		return nil
	}

	out := make([]string, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))

	for _, message := range messages {
		trimmed := strings.TrimSpace(message)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
