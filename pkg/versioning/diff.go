package versioning

import (
	"fmt"
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/goliatone/go-formflow/pkg/model"
)

// FieldChange holds both sides of a modified field.
type FieldChange struct {
	Before model.Field `json:"before"`
	After  model.Field `json:"after"`
}

// Diff describes field-level changes between two templates. Ids are sorted.
type Diff struct {
	Added        []string               `json:"added"`
	Removed      []string               `json:"removed"`
	Modified     []string               `json:"modified"`
	FieldChanges map[string]FieldChange `json:"fieldChanges,omitempty"`
}

// HasChanges reports whether any field was added, removed or modified.
func (d Diff) HasChanges() bool {
	return len(d.Added)+len(d.Removed)+len(d.Modified) > 0
}

// Changelog renders the diff as human-readable lines.
func (d Diff) Changelog() []string {
	var out []string
	for _, id := range d.Added {
		out = append(out, fmt.Sprintf("Added field %q", id))
	}
	for _, id := range d.Removed {
		out = append(out, fmt.Sprintf("Removed field %q", id))
	}
	for _, id := range d.Modified {
		out = append(out, fmt.Sprintf("Modified field %q", id))
	}
	return out
}

var fieldEquality = cmp.Options{cmpopts.EquateEmpty()}

// CompareTemplates diffs the flattened fields of a and b. Section moves are
// not changes; a field's identity is its id.
func CompareTemplates(a, b model.FormTemplate) Diff {
	before := a.FieldIndex()
	after := b.FieldIndex()

	diff := Diff{FieldChanges: make(map[string]FieldChange)}
	for id, field := range after {
		prev, ok := before[id]
		switch {
		case !ok:
			diff.Added = append(diff.Added, id)
		case !cmp.Equal(prev, field, fieldEquality):
			diff.Modified = append(diff.Modified, id)
			diff.FieldChanges[id] = FieldChange{Before: prev.Clone(), After: field.Clone()}
		}
	}
	for id := range before {
		if _, ok := after[id]; !ok {
			diff.Removed = append(diff.Removed, id)
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Modified)
	if len(diff.FieldChanges) == 0 {
		diff.FieldChanges = nil
	}
	return diff
}
