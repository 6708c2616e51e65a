package versioning

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionNotFound is returned when a version is missing from a
	// template's history.
	ErrVersionNotFound = errors.New("versioning: version not found")
	// ErrTemplateNotFound is returned when a template has no history.
	ErrTemplateNotFound = errors.New("versioning: template not found")
	// ErrTemplateIDRequired is returned for blank template ids.
	ErrTemplateIDRequired = errors.New("versioning: template id is required")
	// ErrMultipleActive is returned by Import when a document marks more than
	// one version active.
	ErrMultipleActive = errors.New("versioning: more than one active version")
	// ErrNoStore is returned by Restore when no store is configured.
	ErrNoStore = errors.New("versioning: store is not configured")
)

// MigrationError reports a failed FormData migration between two versions.
type MigrationError struct {
	TemplateID string
	From       string
	To         string
	Err        error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("versioning: migrate %s from %q to %q: %v", e.TemplateID, e.From, e.To, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}
