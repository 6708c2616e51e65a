package versioning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/storage"
)

// exportDoc is the interchange format for a template's history.
type exportDoc struct {
	TemplateID string                  `json:"templateId"`
	Versions   []model.TemplateVersion `json:"versions"`
	ExportedAt time.Time               `json:"exportedAt"`
}

// Export serializes the full history of templateID.
func (m *Manager) Export(templateID string) ([]byte, error) {
	m.mu.RLock()
	if len(m.histories[templateID]) == 0 {
		m.mu.RUnlock()
		return nil, fmt.Errorf("versioning: export %s: %w", templateID, ErrTemplateNotFound)
	}
	doc := m.exportDocLocked(templateID)
	m.mu.RUnlock()
	return encodeDoc(doc)
}

// Import replaces the history of the template named in raw. Documents with
// duplicate or invalid versions, or more than one active version, are
// rejected and leave the manager unchanged.
func (m *Manager) Import(raw []byte) error {
	doc, err := decodeDoc(raw)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.histories[doc.TemplateID] = doc.Versions
	m.mu.Unlock()

	m.logger.Info("versioning: imported template history",
		"template", doc.TemplateID, "versions", len(doc.Versions))
	return m.persist(context.Background(), doc.TemplateID)
}

// Restore reloads the history of templateID from the configured store.
func (m *Manager) Restore(ctx context.Context, templateID string) error {
	if m.store == nil {
		return ErrNoStore
	}
	raw, err := m.store.Load(ctx, storage.TemplateKey(templateID))
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("versioning: restore %s: %w", templateID, ErrTemplateNotFound)
	}
	if err != nil {
		return fmt.Errorf("versioning: restore %s: %w", templateID, err)
	}
	doc, err := decodeDoc(raw)
	if err != nil {
		return err
	}
	if doc.TemplateID != templateID {
		return fmt.Errorf("versioning: restore %s: stored history belongs to %q", templateID, doc.TemplateID)
	}

	m.mu.Lock()
	m.histories[templateID] = doc.Versions
	m.mu.Unlock()
	return nil
}

func (m *Manager) exportDocLocked(templateID string) exportDoc {
	history := m.histories[templateID]
	versions := make([]model.TemplateVersion, len(history))
	for i, v := range history {
		versions[i] = cloneVersion(v)
	}
	return exportDoc{
		TemplateID: templateID,
		Versions:   versions,
		ExportedAt: m.now().UTC(),
	}
}

func encodeDoc(doc exportDoc) ([]byte, error) {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("versioning: encode %s: %w", doc.TemplateID, err)
	}
	return payload, nil
}

func decodeDoc(raw []byte) (exportDoc, error) {
	var doc exportDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return exportDoc{}, fmt.Errorf("versioning: decode history: %w", err)
	}
	doc.TemplateID = strings.TrimSpace(doc.TemplateID)
	if doc.TemplateID == "" {
		return exportDoc{}, ErrTemplateIDRequired
	}
	if len(doc.Versions) == 0 {
		return exportDoc{}, fmt.Errorf("versioning: history for %s has no versions", doc.TemplateID)
	}

	seen := make(map[string]struct{}, len(doc.Versions))
	active := 0
	for i := range doc.Versions {
		v := &doc.Versions[i]
		if !model.ValidVersion(v.Version) {
			return exportDoc{}, fmt.Errorf("versioning: history for %s: invalid version %q", doc.TemplateID, v.Version)
		}
		v.Version = model.NormalizeVersion(v.Version)
		if _, dup := seen[v.Version]; dup {
			return exportDoc{}, fmt.Errorf("versioning: history for %s: duplicate version %s", doc.TemplateID, v.Version)
		}
		seen[v.Version] = struct{}{}
		v.Template.ID = doc.TemplateID
		v.Template.Version = v.Version
		if v.IsActive {
			active++
		}
	}
	if active > 1 {
		return exportDoc{}, fmt.Errorf("versioning: history for %s: %w", doc.TemplateID, ErrMultipleActive)
	}
	sortHistory(doc.Versions)
	return doc, nil
}
