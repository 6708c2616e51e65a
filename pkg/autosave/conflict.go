package autosave

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-formflow/pkg/model"
)

// Winner names the snapshot a Resolution was built from.
type Winner string

const (
	WinnerLocal  Winner = "local"
	WinnerRemote Winner = "remote"
	WinnerCustom Winner = "custom"
)

// Resolution is the outcome of reconciling a local and a remote snapshot.
type Resolution struct {
	Data      model.FormData
	Conflicts []string
	Winner    Winner
}

// Resolver replaces the default last-writer-wins policy. It receives both
// snapshots (already migrated to a common version) and the conflicting ids.
type Resolver func(local, remote model.FormData, conflicts []string) (model.FormData, error)

// DetectConflicts returns, sorted, the ids where both snapshots hold a
// non-empty value and the values differ.
func DetectConflicts(local, remote model.FormData) []string {
	var conflicts []string
	for id, lv := range local.Values {
		if lv.IsEmpty() {
			continue
		}
		rv, ok := remote.Values[id]
		if !ok || rv.IsEmpty() {
			continue
		}
		if !lv.Equal(rv) {
			conflicts = append(conflicts, id)
		}
	}
	sort.Strings(conflicts)
	return conflicts
}

// Resolve reconciles local against remote. When the template versions differ
// and a Migrator is configured, the older snapshot is migrated first. Without
// a Resolver the snapshot with the later LastSavedAt wins in full and ties go
// to local. Conflicting ids are recorded on the winner's AutoSave.Conflicts.
func (m *Manager) Resolve(ctx context.Context, local, remote model.FormData) (Resolution, error) {
	_, span := tracer.Start(ctx, "autosave.resolve",
		trace.WithAttributes(
			attribute.String("autosave.key", m.key),
			attribute.String("autosave.local_version", local.TemplateVersion),
			attribute.String("autosave.remote_version", remote.TemplateVersion),
		),
	)
	defer span.End()

	local, remote, err := m.alignVersions(local, remote)
	if err != nil {
		span.RecordError(err)
		return Resolution{}, err
	}

	conflicts := DetectConflicts(local, remote)
	span.SetAttributes(attribute.Int("autosave.conflicts", len(conflicts)))
	m.metrics.addConflicts(len(conflicts))

	var (
		data   model.FormData
		winner Winner
	)
	switch {
	case m.resolver != nil:
		data, err = m.resolver(local.Clone(), remote.Clone(), append([]string(nil), conflicts...))
		if err != nil {
			span.RecordError(err)
			return Resolution{}, err
		}
		winner = WinnerCustom
	case remote.LastSavedAt.After(local.LastSavedAt):
		data, winner = remote.Clone(), WinnerRemote
	default:
		data, winner = local.Clone(), WinnerLocal
	}

	data.AutoSave.Conflicts = model.SortedSet(data.AutoSave.Conflicts, conflicts)
	if len(conflicts) > 0 {
		m.logger.Info("autosave: resolved conflicting snapshots",
			"key", m.key, "winner", string(winner), "conflicts", conflicts)
	}
	return Resolution{Data: data, Conflicts: conflicts, Winner: winner}, nil
}

// Reconcile loads the stored snapshot and resolves it against local. With
// nothing stored, local wins unchanged.
func (m *Manager) Reconcile(ctx context.Context, local model.FormData) (Resolution, error) {
	remote, ok, err := m.Load(ctx)
	if err != nil {
		return Resolution{}, err
	}
	if !ok {
		return Resolution{Data: local.Clone(), Winner: WinnerLocal}, nil
	}
	return m.Resolve(ctx, local, remote)
}

func (m *Manager) alignVersions(local, remote model.FormData) (model.FormData, model.FormData, error) {
	if m.migrator == nil || local.TemplateVersion == remote.TemplateVersion {
		return local, remote, nil
	}
	if local.TemplateVersion == "" || remote.TemplateVersion == "" {
		return local, remote, nil
	}
	if model.CompareVersions(local.TemplateVersion, remote.TemplateVersion) < 0 {
		migrated, err := m.migrator.Migrate(local, local.TemplateVersion, remote.TemplateVersion)
		if err != nil {
			return local, remote, err
		}
		return migrated, remote, nil
	}
	migrated, err := m.migrator.Migrate(remote, remote.TemplateVersion, local.TemplateVersion)
	if err != nil {
		return local, remote, err
	}
	return local, migrated, nil
}
