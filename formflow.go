// Package formflow wires the form runtime together: template versions, a
// persistence store, condition evaluation, validation and autosaving sessions.
package formflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-formflow/pkg/autosave"
	"github.com/goliatone/go-formflow/pkg/loader"
	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/session"
	"github.com/goliatone/go-formflow/pkg/storage"
	"github.com/goliatone/go-formflow/pkg/storage/memory"
	"github.com/goliatone/go-formflow/pkg/validation"
	"github.com/goliatone/go-formflow/pkg/versioning"
	"github.com/goliatone/go-formflow/pkg/visibility"
)

// ErrSessionNotFound is returned by Resume when no snapshot is stored for the
// session.
var ErrSessionNotFound = errors.New("formflow: session not found")

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the backend for template histories and session snapshots.
// Defaults to an in-memory store.
func WithStore(store storage.Store) Option {
	return func(e *Engine) {
		if store != nil {
			e.store = store
		}
	}
}

// WithLogger routes every component's diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithAutoSaveInterval is used for templates that do not set their own
// autoSaveInterval.
func WithAutoSaveInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithLowConfidenceThreshold sets the confidence below which answers carry a
// verification warning.
func WithLowConfidenceThreshold(threshold float64) Option {
	return func(e *Engine) {
		e.threshold = &threshold
	}
}

// WithRegistry supplies custom validators.
func WithRegistry(registry *validation.Registry) Option {
	return func(e *Engine) {
		e.registry = registry
	}
}

// WithMetrics records autosave metrics for every session.
func WithMetrics(metrics *autosave.Metrics) Option {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithResolver replaces last-writer-wins during Reconcile.
func WithResolver(resolver autosave.Resolver) Option {
	return func(e *Engine) {
		e.resolver = resolver
	}
}

// WithSaveErrorHandler receives autosave failures from every session.
func WithSaveErrorHandler(fn func(error)) Option {
	return func(e *Engine) {
		e.onSaveError = fn
	}
}

// WithClock overrides time.Now across components.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine hands out sessions bound to the active version of a template.
type Engine struct {
	store       storage.Store
	logger      *slog.Logger
	interval    time.Duration
	threshold   *float64
	registry    *validation.Registry
	metrics     *autosave.Metrics
	resolver    autosave.Resolver
	onSaveError func(error)
	now         func() time.Time

	evaluator *visibility.Evaluator
	validator *validation.Validator
	versions  *versioning.Manager
	checker   *loader.Loader
}

// New constructs an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		interval: autosave.DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.store == nil {
		e.store = memory.New()
	}

	e.evaluator = visibility.New(visibility.WithLogger(e.logger))
	validatorOpts := []validation.Option{
		validation.WithEvaluator(e.evaluator),
		validation.WithLogger(e.logger),
	}
	if e.registry != nil {
		validatorOpts = append(validatorOpts, validation.WithRegistry(e.registry))
	}
	if e.threshold != nil {
		validatorOpts = append(validatorOpts, validation.WithLowConfidenceThreshold(*e.threshold))
	}
	e.validator = validation.New(validatorOpts...)
	e.versions = versioning.New(
		versioning.WithStore(e.store),
		versioning.WithLogger(e.logger),
		versioning.WithClock(e.now),
	)
	e.checker = loader.New()
	return e
}

// Versions exposes the version manager.
func (e *Engine) Versions() *versioning.Manager {
	return e.versions
}

// Validator exposes the validator shared by every session.
func (e *Engine) Validator() *validation.Validator {
	return e.validator
}

// Store returns the backing store.
func (e *Engine) Store() storage.Store {
	return e.store
}

// Publish checks tpl and records it as the new active version of its
// template.
func (e *Engine) Publish(ctx context.Context, tpl model.FormTemplate, changelog []string, author string) (model.TemplateVersion, error) {
	if err := e.checker.Check(tpl, tpl.ID); err != nil {
		return model.TemplateVersion{}, err
	}
	if _, ok := e.versions.Active(tpl.ID); !ok {
		// pick up history written by an earlier process
		if err := e.versions.Restore(ctx, tpl.ID); err != nil && !errors.Is(err, versioning.ErrTemplateNotFound) {
			return model.TemplateVersion{}, err
		}
	}
	return e.versions.AddVersion(ctx, tpl.ID, tpl, changelog, author)
}

// Start opens a new session on the active version of templateID. Autosave
// starts immediately when the template enables it.
func (e *Engine) Start(ctx context.Context, templateID string, opts ...session.Option) (*session.Session, error) {
	active, err := e.active(ctx, templateID)
	if err != nil {
		return nil, err
	}
	sessionID := uuid.NewString()
	tpl := active.Template

	var sess *session.Session
	mgr, err := e.autosaveFor(tpl, sessionID, func(saved model.FormData) {
		if sess != nil {
			sess.MarkSaved(saved)
		}
	})
	if err != nil {
		return nil, err
	}

	sess, err = session.New(tpl, append(e.sessionOptions(mgr, session.WithSessionID(sessionID)), opts...)...)
	if err != nil {
		return nil, err
	}
	if tpl.Settings.AutoSave {
		sess.Start()
	}
	e.logger.Info("formflow: session started",
		"template", tpl.ID, "version", tpl.Version, "session", sessionID)
	return sess, nil
}

// Resume reopens a stored session. Snapshots taken against an older template
// version are migrated to the active version and queued for saving.
func (e *Engine) Resume(ctx context.Context, templateID, sessionID string, opts ...session.Option) (*session.Session, error) {
	active, err := e.active(ctx, templateID)
	if err != nil {
		return nil, err
	}

	var sess *session.Session
	mgr, err := e.autosaveFor(active.Template, sessionID, func(saved model.FormData) {
		if sess != nil {
			sess.MarkSaved(saved)
		}
	})
	if err != nil {
		return nil, err
	}
	stored, ok, err := mgr.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrSessionNotFound, templateID, sessionID)
	}
	return e.resume(stored, active, mgr, &sess, opts)
}

// Reconcile merges a locally held snapshot with the stored one for the same
// session and resumes the winner. Conflicting fields are reported in the
// resolution and recorded on the snapshot.
func (e *Engine) Reconcile(ctx context.Context, local model.FormData, opts ...session.Option) (*session.Session, autosave.Resolution, error) {
	if local.SessionID == "" {
		return nil, autosave.Resolution{}, errors.New("formflow: snapshot has no session id")
	}
	active, err := e.active(ctx, local.TemplateID)
	if err != nil {
		return nil, autosave.Resolution{}, err
	}

	var sess *session.Session
	mgr, err := e.autosaveFor(active.Template, local.SessionID, func(saved model.FormData) {
		if sess != nil {
			sess.MarkSaved(saved)
		}
	})
	if err != nil {
		return nil, autosave.Resolution{}, err
	}
	res, err := mgr.Reconcile(ctx, local)
	if err != nil {
		return nil, autosave.Resolution{}, err
	}
	if len(res.Conflicts) > 0 {
		e.logger.Warn("formflow: resolved conflicting snapshots",
			"session", local.SessionID, "winner", res.Winner, "conflicts", res.Conflicts)
	}
	resumed, err := e.resume(res.Data, active, mgr, &sess, opts)
	if err != nil {
		return nil, autosave.Resolution{}, err
	}
	// the merged result differs from at least one side
	mgr.Queue(resumed.Snapshot())
	return resumed, res, nil
}

func (e *Engine) resume(data model.FormData, active model.TemplateVersion, mgr *autosave.Manager, out **session.Session, opts []session.Option) (*session.Session, error) {
	migrated, err := e.versions.MigrateToActive(data)
	if err != nil {
		return nil, err
	}
	sess, err := session.Resume(migrated, active.Template, append(e.sessionOptions(mgr), opts...)...)
	if err != nil {
		return nil, err
	}
	*out = sess
	if model.NormalizeVersion(data.TemplateVersion) != active.Version {
		mgr.Queue(sess.Snapshot())
	}
	if active.Template.Settings.AutoSave {
		sess.Start()
	}
	e.logger.Info("formflow: session resumed",
		"template", active.Template.ID, "version", active.Version, "session", migrated.SessionID,
		"migrated_from", data.TemplateVersion)
	return sess, nil
}

func (e *Engine) active(ctx context.Context, templateID string) (model.TemplateVersion, error) {
	if active, ok := e.versions.Active(templateID); ok {
		return active, nil
	}
	if err := e.versions.Restore(ctx, templateID); err != nil {
		return model.TemplateVersion{}, err
	}
	active, ok := e.versions.Active(templateID)
	if !ok {
		return model.TemplateVersion{}, fmt.Errorf("formflow: %s has no active version: %w", templateID, versioning.ErrTemplateNotFound)
	}
	return active, nil
}

func (e *Engine) autosaveFor(tpl model.FormTemplate, sessionID string, onSaved func(model.FormData)) (*autosave.Manager, error) {
	interval := tpl.Settings.Interval()
	if interval <= 0 {
		interval = e.interval
	}
	opts := []autosave.Option{
		autosave.WithInterval(interval),
		autosave.WithLogger(e.logger),
		autosave.WithClock(e.now),
		autosave.WithMigrator(e.versions),
		autosave.WithSavedHandler(onSaved),
		autosave.WithMetrics(e.metrics),
	}
	if e.resolver != nil {
		opts = append(opts, autosave.WithResolver(e.resolver))
	}
	if e.onSaveError != nil {
		opts = append(opts, autosave.WithErrorHandler(e.onSaveError))
	}
	return autosave.New(e.store, storage.SessionKey(tpl.ID, sessionID), opts...)
}

func (e *Engine) sessionOptions(mgr *autosave.Manager, extra ...session.Option) []session.Option {
	return append([]session.Option{
		session.WithEvaluator(e.evaluator),
		session.WithValidator(e.validator),
		session.WithAutoSave(mgr),
		session.WithLogger(e.logger),
		session.WithClock(e.now),
	}, extra...)
}
