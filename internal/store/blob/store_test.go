package blob_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/store/blob"
)

func exerciseStore(t *testing.T, store blob.Store) {
	t.Helper()
	ctx := context.Background()

	ref, err := store.Put(ctx, []byte("png-bytes"))
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	other, err := store.Put(ctx, []byte("png-bytes"))
	require.NoError(t, err)
	assert.NotEqual(t, ref, other, "every put yields a fresh reference")

	got, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), got)

	require.NoError(t, store.Delete(ctx, ref))
	_, err = store.Get(ctx, ref)
	assert.ErrorIs(t, err, blob.ErrNotFound)

	require.NoError(t, store.Delete(ctx, "never-stored"))

	got, err = store.Get(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), got)
}

func TestMemoryStore(t *testing.T) {
	store := blob.NewMemoryStore()
	exerciseStore(t, store)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreCopiesPayload(t *testing.T) {
	store := blob.NewMemoryStore()
	data := []byte("abc")
	ref, err := store.Put(context.Background(), data)
	require.NoError(t, err)
	data[0] = 'z'

	got, err := store.Get(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestPebbleStore(t *testing.T) {
	store, err := blob.OpenPebble(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	exerciseStore(t, store)
}
