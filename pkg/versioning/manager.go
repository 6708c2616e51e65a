// Package versioning keeps the append-only version history of form templates,
// diffs versions, and migrates answer data between them.
package versioning

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/storage"
)

var tracer = otel.Tracer("github.com/goliatone/go-formflow/pkg/versioning")

// Option configures a Manager.
type Option func(*Manager)

// WithStore persists each template's history under storage.TemplateKey.
func WithStore(store storage.Store) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithLogger routes diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides time.Now for CreatedAt and ExportedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager holds version histories keyed by template id. Histories are kept
// sorted by semantic version and at most one entry per template is active.
type Manager struct {
	mu        sync.RWMutex
	histories map[string][]model.TemplateVersion

	// persistMu guards persistLocks; a template's lock is held from export
	// through Save so the store never ends up behind memory.
	persistMu    sync.Mutex
	persistLocks map[string]*sync.Mutex

	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// New constructs an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		histories:    make(map[string][]model.TemplateVersion),
		persistLocks: make(map[string]*sync.Mutex),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// AddVersion records tpl as the next version of templateID and makes it the
// only active one. The first version takes the template's own version when it
// is valid, otherwise model.DefaultVersion; later versions bump the patch of
// the highest recorded version. An empty changelog is generated from the diff
// against the previously active version.
//
// The version is recorded in memory even when persisting it fails; the error
// is still returned.
func (m *Manager) AddVersion(ctx context.Context, templateID string, tpl model.FormTemplate, changelog []string, author string) (model.TemplateVersion, error) {
	templateID = strings.TrimSpace(templateID)
	if templateID == "" {
		return model.TemplateVersion{}, ErrTemplateIDRequired
	}

	m.mu.Lock()
	history := m.histories[templateID]

	version := model.DefaultVersion
	if len(history) == 0 {
		if model.ValidVersion(tpl.Version) {
			version = model.NormalizeVersion(tpl.Version)
		}
	} else {
		next, err := model.NextPatch(history[len(history)-1].Version)
		if err != nil {
			m.mu.Unlock()
			return model.TemplateVersion{}, fmt.Errorf("versioning: next version for %s: %w", templateID, err)
		}
		version = next
	}

	stored := tpl.Clone()
	stored.ID = templateID
	stored.Version = version

	if len(changelog) == 0 {
		changelog = generateChangelog(history, stored)
	}

	for i := range history {
		history[i].IsActive = false
	}
	entry := model.TemplateVersion{
		Version:   version,
		Template:  stored,
		CreatedAt: m.now().UTC(),
		CreatedBy: author,
		Changelog: append([]string(nil), changelog...),
		IsActive:  true,
	}
	history = append(history, entry)
	m.histories[templateID] = history
	m.mu.Unlock()

	m.logger.Info("versioning: added template version",
		"template", templateID, "version", version, "author", author)

	if err := m.persist(ctx, templateID); err != nil {
		return cloneVersion(entry), err
	}
	return cloneVersion(entry), nil
}

// Rollback makes version the only active version of templateID. It reports
// false when the version does not exist. A persistence failure is logged and
// does not undo the in-memory change.
func (m *Manager) Rollback(ctx context.Context, templateID, version string) bool {
	version = model.NormalizeVersion(version)

	m.mu.Lock()
	history := m.histories[templateID]
	idx := indexOf(history, version)
	if idx < 0 {
		m.mu.Unlock()
		return false
	}
	for i := range history {
		history[i].IsActive = i == idx
	}
	m.mu.Unlock()

	m.logger.Info("versioning: rolled back template", "template", templateID, "version", version)
	if err := m.persist(ctx, templateID); err != nil {
		m.logger.Error("versioning: persist rollback failed", "template", templateID, "version", version, "error", err)
	}
	return true
}

// Active returns the active version of templateID.
func (m *Manager) Active(templateID string) (model.TemplateVersion, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.histories[templateID] {
		if v.IsActive {
			return cloneVersion(v), true
		}
	}
	return model.TemplateVersion{}, false
}

// Get returns a specific version of templateID.
func (m *Manager) Get(templateID, version string) (model.TemplateVersion, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.histories[templateID]
	idx := indexOf(history, model.NormalizeVersion(version))
	if idx < 0 {
		return model.TemplateVersion{}, false
	}
	return cloneVersion(history[idx]), true
}

// History returns every version of templateID, oldest first.
func (m *Manager) History(templateID string) []model.TemplateVersion {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.histories[templateID]
	if len(history) == 0 {
		return nil
	}
	out := make([]model.TemplateVersion, len(history))
	for i, v := range history {
		out[i] = cloneVersion(v)
	}
	return out
}

// Templates lists the ids with at least one version, sorted.
func (m *Manager) Templates() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.histories))
	for id, history := range m.histories {
		if len(history) > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Compare diffs two recorded versions of templateID.
func (m *Manager) Compare(templateID, v1, v2 string) (Diff, error) {
	a, ok := m.Get(templateID, v1)
	if !ok {
		return Diff{}, fmt.Errorf("versioning: compare %s@%s: %w", templateID, v1, ErrVersionNotFound)
	}
	b, ok := m.Get(templateID, v2)
	if !ok {
		return Diff{}, fmt.Errorf("versioning: compare %s@%s: %w", templateID, v2, ErrVersionNotFound)
	}
	return CompareTemplates(a.Template, b.Template), nil
}

// persist writes the current history of templateID. Writers for one template
// are serialized and each exports the history only once it holds the lock, so
// the last write to land always carries the newest state.
func (m *Manager) persist(ctx context.Context, templateID string) error {
	if m.store == nil {
		return nil
	}
	lock := m.persistLock(templateID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	doc := m.exportDocLocked(templateID)
	m.mu.RUnlock()

	payload, err := encodeDoc(doc)
	if err != nil {
		return err
	}
	if err := m.store.Save(context.WithoutCancel(ctx), storage.TemplateKey(templateID), payload); err != nil {
		return fmt.Errorf("versioning: persist %s: %w", templateID, err)
	}
	return nil
}

func (m *Manager) persistLock(templateID string) *sync.Mutex {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	lock, ok := m.persistLocks[templateID]
	if !ok {
		lock = &sync.Mutex{}
		m.persistLocks[templateID] = lock
	}
	return lock
}

func generateChangelog(history []model.TemplateVersion, next model.FormTemplate) []string {
	var previous *model.TemplateVersion
	for i := range history {
		if history[i].IsActive {
			previous = &history[i]
		}
	}
	if previous == nil && len(history) > 0 {
		previous = &history[len(history)-1]
	}
	if previous == nil {
		return []string{"Initial version"}
	}
	lines := CompareTemplates(previous.Template, next).Changelog()
	if len(lines) == 0 {
		return []string{"No field changes"}
	}
	return lines
}

func indexOf(history []model.TemplateVersion, version string) int {
	for i, v := range history {
		if v.Version == version {
			return i
		}
	}
	return -1
}

func sortHistory(history []model.TemplateVersion) {
	sort.SliceStable(history, func(i, j int) bool {
		return model.CompareVersions(history[i].Version, history[j].Version) < 0
	})
}

func cloneVersion(v model.TemplateVersion) model.TemplateVersion {
	out := v
	out.Template = v.Template.Clone()
	if v.Changelog != nil {
		out.Changelog = append([]string(nil), v.Changelog...)
	}
	return out
}
