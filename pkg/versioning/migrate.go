package versioning

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-formflow/pkg/model"
)

// Migrate moves data from one version of its template to another. Values,
// confidences and completion marks of removed fields are dropped; added fields
// with a default are seeded when absent; modified fields are left alone. The
// template version is updated last.
func (m *Manager) Migrate(data model.FormData, from, to string) (model.FormData, error) {
	from = model.NormalizeVersion(from)
	to = model.NormalizeVersion(to)

	_, span := tracer.Start(context.Background(), "versioning.migrate",
		trace.WithAttributes(
			attribute.String("versioning.template", data.TemplateID),
			attribute.String("versioning.from", from),
			attribute.String("versioning.to", to),
		),
	)
	defer span.End()

	source, ok := m.Get(data.TemplateID, from)
	if !ok {
		err := &MigrationError{TemplateID: data.TemplateID, From: from, To: to, Err: ErrVersionNotFound}
		span.RecordError(err)
		return model.FormData{}, err
	}
	target, ok := m.Get(data.TemplateID, to)
	if !ok {
		err := &MigrationError{TemplateID: data.TemplateID, From: from, To: to, Err: ErrVersionNotFound}
		span.RecordError(err)
		return model.FormData{}, err
	}

	out := data.Clone()
	if out.Values == nil {
		out.Values = make(map[string]model.Value)
	}

	diff := CompareTemplates(source.Template, target.Template)
	span.SetAttributes(
		attribute.Int("versioning.added", len(diff.Added)),
		attribute.Int("versioning.removed", len(diff.Removed)),
	)

	for _, id := range diff.Removed {
		delete(out.Values, id)
		delete(out.Confidences, id)
	}
	if len(diff.Removed) > 0 {
		out.CompletedFields = without(out.CompletedFields, diff.Removed)
	}

	index := target.Template.FieldIndex()
	for _, id := range diff.Added {
		field := index[id]
		if field.DefaultValue == nil {
			continue
		}
		if _, present := out.Values[id]; present {
			continue
		}
		out.Values[id] = *field.Clone().DefaultValue
	}

	out.TemplateVersion = to
	m.logger.Debug("versioning: migrated form data",
		"template", data.TemplateID, "from", from, "to", to,
		"removed", len(diff.Removed), "added", len(diff.Added))
	return out, nil
}

// MigrateToActive migrates data to the active version of its template. Data
// already at the active version is returned as a copy.
func (m *Manager) MigrateToActive(data model.FormData) (model.FormData, error) {
	active, ok := m.Active(data.TemplateID)
	if !ok {
		return model.FormData{}, &MigrationError{
			TemplateID: data.TemplateID,
			From:       data.TemplateVersion,
			Err:        ErrTemplateNotFound,
		}
	}
	if model.NormalizeVersion(data.TemplateVersion) == active.Version {
		return data.Clone(), nil
	}
	return m.Migrate(data, data.TemplateVersion, active.Version)
}

func without(ids, drop []string) []string {
	if len(ids) == 0 {
		return ids
	}
	dropped := make(map[string]struct{}, len(drop))
	for _, id := range drop {
		dropped[id] = struct{}{}
	}
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := dropped[id]; !ok {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
