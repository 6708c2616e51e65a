// Package storagetest holds a conformance suite every storage.Store backend
// runs from its own tests.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formflow/pkg/storage"
)

// Run exercises store against the storage.Store contract.
func Run(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := store.Load(ctx, storage.SessionKey("tpl", "missing"))
		assert.True(t, errors.Is(err, storage.ErrNotFound), "expected ErrNotFound, got %v", err)
	})

	t.Run("round trip", func(t *testing.T) {
		key := storage.SessionKey("tpl", "round-trip")
		require.NoError(t, store.Save(ctx, key, []byte(`{"a":1}`)))
		got, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1}`, string(got))
	})

	t.Run("overwrite", func(t *testing.T) {
		key := storage.TemplateKey("overwrite")
		require.NoError(t, store.Save(ctx, key, []byte("first")))
		require.NoError(t, store.Save(ctx, key, []byte("second")))
		got, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "second", string(got))
	})

	t.Run("blank key", func(t *testing.T) {
		assert.Error(t, store.Save(ctx, "  ", []byte("x")))
	})

	t.Run("concurrent writers", func(t *testing.T) {
		key := storage.SessionKey("tpl", "concurrent")
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, store.Save(ctx, key, []byte("payload")))
			}()
		}
		wg.Wait()
		got, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(got))
	})
}
