// Package autosave persists form snapshots in the background. Writes are
// coalesced so at most one is in flight, unchanged snapshots are skipped, and
// failures are retried on the next tick.
package autosave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/storage"
)

// DefaultInterval is used when neither the option nor the template sets one.
const DefaultInterval = 30 * time.Second

var tracer = otel.Tracer("github.com/goliatone/go-formflow/pkg/autosave")

// State describes where the manager is in its save cycle.
type State int

const (
	StateStopped State = iota
	StateScheduled
	StateSaving
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateScheduled:
		return "scheduled"
	case StateSaving:
		return "saving"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Migrator upgrades a snapshot between template versions. The versioning
// manager satisfies it.
type Migrator interface {
	Migrate(data model.FormData, from, to string) (model.FormData, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithInterval sets the tick between background flushes.
func WithInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger routes manager diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithErrorHandler is called with every *PersistenceError.
func WithErrorHandler(fn func(error)) Option {
	return func(m *Manager) {
		m.onError = fn
	}
}

// WithSavedHandler is called with the stamped snapshot after each write.
func WithSavedHandler(fn func(model.FormData)) Option {
	return func(m *Manager) {
		m.onSaved = fn
	}
}

// WithMetrics records save outcomes and conflicts.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMigrator enables cross-version reconciliation.
func WithMigrator(migrator Migrator) Option {
	return func(m *Manager) {
		m.migrator = migrator
	}
}

// WithResolver replaces the last-writer-wins policy.
func WithResolver(resolver Resolver) Option {
	return func(m *Manager) {
		m.resolver = resolver
	}
}

// Manager owns the save schedule for a single snapshot key.
type Manager struct {
	store    storage.Store
	key      string
	interval time.Duration
	logger   *slog.Logger
	onError  func(error)
	onSaved  func(model.FormData)
	metrics  *Metrics
	now      func() time.Time
	migrator Migrator
	resolver Resolver

	// writeMu is held for the whole of a flush.
	writeMu sync.Mutex

	mu          sync.Mutex
	pending     *model.FormData
	lastWritten []byte
	saveCount   int
	state       State
	running     bool
	closed      bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// New constructs a stopped Manager writing to store under key.
func New(store storage.Store, key string, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	if err := storage.ValidateKey(key); err != nil {
		return nil, err
	}
	m := &Manager{
		store:    store,
		key:      key,
		interval: DefaultInterval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Key returns the storage key the manager writes to.
func (m *Manager) Key() string {
	return m.key
}

// State reports the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start launches the background ticker. Calling Start on a running or stopped
// manager is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running || m.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	m.state = StateScheduled
	go m.loop(ctx, m.done)
}

// Stop disposes the manager: it cancels the schedule and waits for the loop
// and any in-flight write to finish. Once Stop returns nothing is written;
// Queue is ignored and Flush reports ErrStopped. Stop is idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.closed = true
	running := m.running
	m.running = false
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if running {
		cancel()
		<-done
	}

	// wait out a SaveNow racing with Stop
	m.writeMu.Lock()
	m.mu.Lock()
	m.state = StateStopped
	m.mu.Unlock()
	m.writeMu.Unlock()
}

// Queue replaces the pending snapshot. The newest snapshot always wins.
func (m *Manager) Queue(snapshot model.FormData) {
	clone := snapshot.Clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		m.logger.Debug("autosave: ignoring snapshot queued after stop", "key", m.key)
		return
	}
	m.pending = &clone
}

// Pending reports whether a snapshot is waiting to be written.
func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}

// SaveNow queues snapshot and flushes immediately. It returns ErrStopped
// after Stop.
func (m *Manager) SaveNow(ctx context.Context, snapshot model.FormData) error {
	m.Queue(snapshot)
	return m.Flush(ctx)
}

// Flush writes the most recent pending snapshot, if any. Concurrent callers
// are serialized; a caller that finds nothing pending returns nil. Once a
// write starts it runs to completion even if ctx is cancelled.
func (m *Manager) Flush(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrStopped
	}
	pending := m.pending
	m.pending = nil
	if pending != nil {
		m.state = StateSaving
	}
	m.mu.Unlock()
	if pending == nil {
		return nil
	}
	defer m.settle()

	started := time.Now()
	canonical, err := canonicalize(*pending)
	if err != nil {
		perr := &PersistenceError{Op: "encode", Key: m.key, Err: err}
		m.metrics.observeSave(resultError, time.Since(started))
		m.report(perr)
		return perr
	}

	m.mu.Lock()
	unchanged := m.lastWritten != nil && bytes.Equal(canonical, m.lastWritten)
	count := m.saveCount
	m.mu.Unlock()
	if unchanged {
		m.metrics.observeSave(resultSkipped, 0)
		m.logger.Debug("autosave: snapshot unchanged, skipping write", "key", m.key)
		return nil
	}

	snapshot := *pending
	stamp := m.now().UTC()
	snapshot.LastSavedAt = stamp
	snapshot.AutoSave.LastSave = stamp
	snapshot.AutoSave.SaveCount = max(count, snapshot.AutoSave.SaveCount) + 1

	payload, err := json.Marshal(snapshot)
	if err != nil {
		perr := &PersistenceError{Op: "encode", Key: m.key, Err: err}
		m.metrics.observeSave(resultError, time.Since(started))
		m.report(perr)
		return perr
	}

	if err := m.write(ctx, payload, snapshot.AutoSave.SaveCount); err != nil {
		perr := &PersistenceError{Op: "save", Key: m.key, Err: err}
		m.metrics.observeSave(resultError, time.Since(started))
		m.requeue(*pending)
		m.logger.Warn("autosave: write failed, will retry", "key", m.key, "error", err)
		m.report(perr)
		return perr
	}

	m.mu.Lock()
	m.lastWritten = canonical
	m.saveCount = snapshot.AutoSave.SaveCount
	m.mu.Unlock()

	m.metrics.observeSave(resultSaved, time.Since(started))
	m.logger.Debug("autosave: snapshot written", "key", m.key, "save_count", snapshot.AutoSave.SaveCount)
	if m.onSaved != nil {
		m.onSaved(snapshot.Clone())
	}
	return nil
}

// Load reads the stored snapshot. The bool is false when nothing is stored.
// A successful load becomes the baseline for the dirty check.
func (m *Manager) Load(ctx context.Context) (model.FormData, bool, error) {
	raw, err := m.store.Load(ctx, m.key)
	if errors.Is(err, storage.ErrNotFound) {
		return model.FormData{}, false, nil
	}
	if err != nil {
		return model.FormData{}, false, &PersistenceError{Op: "load", Key: m.key, Err: err}
	}
	var data model.FormData
	if err := json.Unmarshal(raw, &data); err != nil {
		return model.FormData{}, false, &PersistenceError{Op: "decode", Key: m.key, Err: err}
	}
	if canonical, err := canonicalize(data); err == nil {
		m.mu.Lock()
		m.lastWritten = canonical
		m.saveCount = max(m.saveCount, data.AutoSave.SaveCount)
		m.mu.Unlock()
	}
	return data, true, nil
}

func (m *Manager) write(ctx context.Context, payload []byte, saveCount int) error {
	ctx, span := tracer.Start(context.WithoutCancel(ctx), "autosave.write",
		trace.WithAttributes(
			attribute.String("autosave.key", m.key),
			attribute.Int("autosave.bytes", len(payload)),
			attribute.Int("autosave.save_count", saveCount),
		),
	)
	defer span.End()

	if err := m.store.Save(ctx, m.key, payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (m *Manager) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// errors are already reported through the handler
			_ = m.Flush(ctx)
		}
	}
}

// requeue restores a failed snapshot unless a newer one has been queued.
func (m *Manager) requeue(snapshot model.FormData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		m.pending = &snapshot
	}
}

func (m *Manager) settle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.state = StateScheduled
	} else {
		m.state = StateStopped
	}
}

func (m *Manager) report(err error) {
	if m.onError != nil {
		m.onError(err)
	}
}

// canonicalize serializes data with save metadata cleared, so snapshots that
// differ only in when they were saved compare equal.
func canonicalize(data model.FormData) ([]byte, error) {
	data.LastSavedAt = time.Time{}
	data.AutoSave.LastSave = time.Time{}
	data.AutoSave.SaveCount = 0
	return json.Marshal(data)
}
