package model

import (
	"sort"
	"time"
)

// AutoSaveMeta records persistence bookkeeping for a session snapshot.
type AutoSaveMeta struct {
	LastSave  time.Time `json:"lastSave"`
	SaveCount int       `json:"saveCount"`
	Conflicts []string  `json:"conflicts,omitempty"`
}

// FormData is the mutable answer set of one form session. A serialized copy is
// a snapshot.
type FormData struct {
	TemplateID      string             `json:"templateId"`
	TemplateVersion string             `json:"templateVersion"`
	SessionID       string             `json:"sessionId"`
	Values          map[string]Value   `json:"values"`
	Confidences     map[string]float64 `json:"confidences,omitempty"`
	CompletedFields []string           `json:"completedFields,omitempty"`
	CurrentField    string             `json:"currentField,omitempty"`
	Progress        float64            `json:"progress"`
	StartedAt       time.Time          `json:"startedAt"`
	LastSavedAt     time.Time          `json:"lastSavedAt"`
	CompletedAt     *time.Time         `json:"completedAt,omitempty"`
	AutoSave        AutoSaveMeta       `json:"autosave"`
}

// Value returns the current value for id, or null when unset.
func (d FormData) Value(id string) Value {
	if d.Values == nil {
		return Null()
	}
	return d.Values[id]
}

// Confidence returns the confidence recorded for id, if any.
func (d FormData) Confidence(id string) (float64, bool) {
	if d.Confidences == nil {
		return 0, false
	}
	c, ok := d.Confidences[id]
	return c, ok
}

// IsCompleted reports whether id is in CompletedFields.
func (d FormData) IsCompleted(id string) bool {
	idx := sort.SearchStrings(d.CompletedFields, id)
	return idx < len(d.CompletedFields) && d.CompletedFields[idx] == id
}

// Clone returns a deep copy of the snapshot.
func (d FormData) Clone() FormData {
	out := d
	if d.Values != nil {
		out.Values = make(map[string]Value, len(d.Values))
		for k, v := range d.Values {
			out.Values[k] = v.clone()
		}
	}
	if d.Confidences != nil {
		out.Confidences = make(map[string]float64, len(d.Confidences))
		for k, v := range d.Confidences {
			out.Confidences[k] = v
		}
	}
	if d.CompletedFields != nil {
		out.CompletedFields = append([]string(nil), d.CompletedFields...)
	}
	if d.CompletedAt != nil {
		t := *d.CompletedAt
		out.CompletedAt = &t
	}
	if d.AutoSave.Conflicts != nil {
		out.AutoSave.Conflicts = append([]string(nil), d.AutoSave.Conflicts...)
	}
	return out
}

// SortedSet returns ids deduplicated and sorted, or nil when empty.
func SortedSet(ids ...[]string) []string {
	seen := make(map[string]struct{})
	for _, group := range ids {
		for _, id := range group {
			if id == "" {
				continue
			}
			seen[id] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
