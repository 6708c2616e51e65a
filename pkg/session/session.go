// Package session owns one in-progress FormData and keeps its derived state
// (completed fields, progress) consistent with the template's conditions on
// every mutation.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/goliatone/go-formflow/pkg/autosave"
	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/validation"
	"github.com/goliatone/go-formflow/pkg/visibility"
)

var (
	// ErrUnknownField is returned when a mutation names a field the template
	// does not declare.
	ErrUnknownField = errors.New("session: unknown field")
	// ErrInvalidConfidence is returned for confidences outside [0, 1].
	ErrInvalidConfidence = errors.New("session: confidence must be within [0, 1]")
	// ErrInvalid is returned by Submit when the form has validation errors and
	// the template does not allow partial submission.
	ErrInvalid = errors.New("session: form has validation errors")
	// ErrTemplateMismatch is returned by Resume when the snapshot is bound to a
	// different template or version.
	ErrTemplateMismatch = errors.New("session: snapshot does not match template")
)

// Option configures a Session.
type Option func(*Session)

// WithEvaluator sets the condition evaluator.
func WithEvaluator(eval *visibility.Evaluator) Option {
	return func(s *Session) {
		if eval != nil {
			s.evaluator = eval
		}
	}
}

// WithValidator sets the validator used by Validate and Submit.
func WithValidator(v *validation.Validator) Option {
	return func(s *Session) {
		if v != nil {
			s.validator = v
		}
	}
}

// WithAutoSave attaches an autosave manager. Every mutation queues a snapshot.
func WithAutoSave(m *autosave.Manager) Option {
	return func(s *Session) {
		s.autosave = m
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger routes session diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSanitizer replaces the policy applied to free-text answers. Passing nil
// disables sanitization.
func WithSanitizer(policy *bluemonday.Policy) Option {
	return func(s *Session) {
		s.sanitizer = policy
		s.sanitizerSet = true
	}
}

// WithSessionID fixes the id of a new session instead of generating one.
func WithSessionID(id string) Option {
	return func(s *Session) {
		s.sessionID = id
	}
}

// Session is safe for concurrent use. A value and its confidence are always
// written together under one lock.
type Session struct {
	mu   sync.RWMutex
	tpl  model.FormTemplate
	data model.FormData

	evaluator    *visibility.Evaluator
	validator    *validation.Validator
	autosave     *autosave.Manager
	now          func() time.Time
	logger       *slog.Logger
	sanitizer    *bluemonday.Policy
	sanitizerSet bool
	sessionID    string
}

func build(tpl model.FormTemplate, opts []Option) *Session {
	s := &Session{
		tpl:    tpl.Clone(),
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.evaluator == nil {
		s.evaluator = visibility.New(visibility.WithLogger(s.logger))
	}
	if s.validator == nil {
		s.validator = validation.New(validation.WithEvaluator(s.evaluator), validation.WithLogger(s.logger))
	}
	if !s.sanitizerSet {
		s.sanitizer = DefaultSanitizer()
	}
	return s
}

// New starts a fresh session against tpl. Declared defaults are seeded as
// initial values.
func New(tpl model.FormTemplate, opts ...Option) (*Session, error) {
	if tpl.ID == "" {
		return nil, errors.New("session: template id is required")
	}
	s := build(tpl, opts)
	id := s.sessionID
	if id == "" {
		id = uuid.NewString()
	}
	s.data = model.FormData{
		TemplateID:      tpl.ID,
		TemplateVersion: tpl.Version,
		SessionID:       id,
		Values:          make(map[string]model.Value),
		StartedAt:       s.now().UTC(),
	}
	for _, field := range s.tpl.Fields() {
		if field.DefaultValue != nil {
			s.data.Values[field.ID] = sanitizeValue(s.sanitizer, field, *field.Clone().DefaultValue)
		}
	}
	s.recomputeLocked()
	return s, nil
}

// Resume rebinds a stored snapshot to tpl. The snapshot must already be at
// tpl's version; migrate stale snapshots first.
func Resume(data model.FormData, tpl model.FormTemplate, opts ...Option) (*Session, error) {
	if data.TemplateID != tpl.ID || model.NormalizeVersion(data.TemplateVersion) != model.NormalizeVersion(tpl.Version) {
		return nil, fmt.Errorf("%w: snapshot %s@%s, template %s@%s",
			ErrTemplateMismatch, data.TemplateID, data.TemplateVersion, tpl.ID, tpl.Version)
	}
	s := build(tpl, opts)
	s.data = data.Clone()
	if s.data.Values == nil {
		s.data.Values = make(map[string]model.Value)
	}
	s.recomputeLocked()
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.SessionID
}

// Template returns a copy of the bound template.
func (s *Session) Template() model.FormTemplate {
	return s.tpl.Clone()
}

// UpdateField sets the value of id. A non-nil confidence marks the value as
// voice-originated; a nil confidence is a manual edit and removes any
// confidence previously recorded for the field.
func (s *Session) UpdateField(id string, value model.Value, confidence *float64) error {
	field, ok := s.tpl.Field(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, id)
	}
	if confidence != nil && (math.IsNaN(*confidence) || *confidence < 0 || *confidence > 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidConfidence, *confidence)
	}
	value = sanitizeValue(s.sanitizer, field, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Values[id] = value
	if confidence == nil {
		delete(s.data.Confidences, id)
	} else {
		if s.data.Confidences == nil {
			s.data.Confidences = make(map[string]float64)
		}
		s.data.Confidences[id] = *confidence
	}
	s.data.CurrentField = id
	s.recomputeLocked()
	s.queueLocked()
	return nil
}

// ClearField removes the value and confidence of id.
func (s *Session) ClearField(id string) error {
	if _, ok := s.tpl.Field(id); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.Values, id)
	delete(s.data.Confidences, id)
	s.recomputeLocked()
	s.queueLocked()
	return nil
}

// SetCurrentField records which field has focus.
func (s *Session) SetCurrentField(id string) error {
	if _, ok := s.tpl.Field(id); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.CurrentField = id
	s.queueLocked()
	return nil
}

// Evaluate returns the current visibility state.
func (s *Session) Evaluate() visibility.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evaluator.Evaluate(s.tpl, s.data.Values)
}

// Validate validates the current answers.
func (s *Session) Validate() model.ValidationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validator.ValidateForm(s.tpl, s.data)
}

// Progress returns the completed share of visible fields, 0 to 100.
func (s *Session) Progress() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Progress
}

// Snapshot returns a deep copy of the session's FormData.
func (s *Session) Snapshot() model.FormData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// MarkSaved copies save metadata from a persisted snapshot. Wire it as the
// autosave manager's saved handler.
func (s *Session) MarkSaved(saved model.FormData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if saved.SessionID != "" && saved.SessionID != s.data.SessionID {
		return
	}
	s.data.LastSavedAt = saved.LastSavedAt
	s.data.AutoSave.LastSave = saved.AutoSave.LastSave
	s.data.AutoSave.SaveCount = saved.AutoSave.SaveCount
	s.data.AutoSave.Conflicts = model.SortedSet(s.data.AutoSave.Conflicts, saved.AutoSave.Conflicts)
}

// Start begins background autosaving.
func (s *Session) Start() {
	if s.autosave != nil {
		s.autosave.Start()
	}
}

// Close writes a final snapshot and stops autosaving. Closing twice is a
// no-op.
func (s *Session) Close(ctx context.Context) error {
	if s.autosave == nil {
		return nil
	}
	err := s.autosave.SaveNow(ctx, s.Snapshot())
	s.autosave.Stop()
	if errors.Is(err, autosave.ErrStopped) {
		return nil
	}
	return err
}

// Submit validates the form, stamps CompletedAt and saves immediately. When
// the form is invalid and partial submission is not allowed it returns the
// result with ErrInvalid and leaves the session untouched.
func (s *Session) Submit(ctx context.Context) (model.ValidationResult, error) {
	s.mu.Lock()
	result := s.validator.ValidateForm(s.tpl, s.data)
	if !result.Valid && !s.tpl.Settings.AllowPartialSubmission {
		s.mu.Unlock()
		return result, ErrInvalid
	}
	completed := s.now().UTC()
	s.data.CompletedAt = &completed
	snapshot := s.data.Clone()
	s.mu.Unlock()

	s.logger.Info("session: submitted",
		"session", snapshot.SessionID, "template", snapshot.TemplateID, "valid", result.Valid)
	if s.autosave == nil {
		return result, nil
	}
	if err := s.autosave.SaveNow(ctx, snapshot); err != nil {
		return result, err
	}
	return result, nil
}

// recomputeLocked refreshes CompletedFields and Progress. A field is completed
// when it is visible and holds a non-empty value.
func (s *Session) recomputeLocked() {
	state := s.evaluator.Evaluate(s.tpl, s.data.Values)
	var completed []string
	for _, id := range state.VisibleFields {
		if !s.data.Value(id).IsEmpty() {
			completed = append(completed, id)
		}
	}
	s.data.CompletedFields = model.SortedSet(completed)
	if len(state.VisibleFields) == 0 {
		s.data.Progress = 0
		return
	}
	s.data.Progress = float64(len(s.data.CompletedFields)) / float64(len(state.VisibleFields)) * 100
}

func (s *Session) queueLocked() {
	if s.autosave != nil {
		s.autosave.Queue(s.data)
	}
}
