package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalChunkStoreWriteAssemble(t *testing.T) {
	store, err := NewLocalChunkStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	parts := [][]byte{[]byte("hello "), []byte("chunked "), []byte("world")}
	for i, p := range parts {
		require.NoError(t, store.WriteChunk(ctx, "upl_abc", i, p))
	}

	rc, err := store.Assemble(ctx, "upl_abc", len(parts))
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello chunked world", string(got))
}

func TestLocalChunkStoreWriteOverwritesSameIndex(t *testing.T) {
	store, err := NewLocalChunkStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.WriteChunk(ctx, "upl_abc", 0, []byte("first")))
	require.NoError(t, store.WriteChunk(ctx, "upl_abc", 0, []byte("second")))

	rc, err := store.Assemble(ctx, "upl_abc", 1)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "second", string(got))
}

func TestLocalChunkStoreAssembleMissingChunk(t *testing.T) {
	store, err := NewLocalChunkStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.WriteChunk(ctx, "upl_abc", 0, []byte("only")))

	_, err = store.Assemble(ctx, "upl_abc", 2)
	require.Error(t, err)
	require.ErrorContains(t, err, "missing chunk 1")
}

func TestLocalChunkStoreRemove(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalChunkStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.WriteChunk(ctx, "upl_abc", 0, []byte("x")))
	require.NoError(t, store.Remove(ctx, "upl_abc"))

	_, err = os.Stat(filepath.Join(dir, "upl_abc"))
	require.True(t, os.IsNotExist(err))

	// Removing a session that was never written is not an error.
	require.NoError(t, store.Remove(ctx, "upl_unknown"))
}
