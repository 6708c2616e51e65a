package autosave

import (
	"errors"
	"fmt"
)

var (
	// ErrNoStore is returned when a Manager is built without a store.
	ErrNoStore = errors.New("autosave: store is required")
	// ErrStopped is returned by Flush and SaveNow once the manager has been
	// stopped.
	ErrStopped = errors.New("autosave: manager is stopped")
)

// PersistenceError reports a failed read or write against the store. The
// manager keeps the snapshot and retries on the next tick.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("autosave: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
