// Package storage defines the persistence port used by autosave and
// versioning, plus key helpers shared by every backend.
package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Load when no value is stored under key.
var ErrNotFound = errors.New("storage: not found")

// Store persists opaque byte payloads by key. Implementations must be safe for
// concurrent use.
type Store interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

const keyPrefix = "formflow"

// SessionKey is the key under which a session's FormData snapshot is stored.
func SessionKey(templateID, sessionID string) string {
	return join("session", templateID, sessionID)
}

// TemplateKey is the key under which a template's version history is stored.
func TemplateKey(templateID string) string {
	return join("template", templateID)
}

// ValidateKey rejects blank keys.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("storage: key is required")
	}
	return nil
}

func join(parts ...string) string {
	out := make([]string, 0, len(parts)+1)
	out = append(out, keyPrefix)
	for _, part := range parts {
		out = append(out, strings.TrimSpace(part))
	}
	return strings.Join(out, ":")
}
