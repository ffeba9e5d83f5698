package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemStoreRoundTrip(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	err = store.Save(ctx, "acl_entries", []byte(`[{"entry_id":"e-1"}]`))
	require.NoError(t, err)

	data, err := store.Load(ctx, "acl_entries")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"entry_id":"e-1"}]`, string(data))
}

func TestFilesystemStoreLoadMissing(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	data, err := store.Load(context.Background(), "never_saved")
	assert.NoError(t, err)
	assert.Nil(t, data)
}

func TestFilesystemStoreOverwrite(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFilesystemStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "quota_usage", []byte(`[1]`)))
	require.NoError(t, store.Save(ctx, "quota_usage", []byte(`[1,2]`)))

	data, err := store.Load(ctx, "quota_usage")
	require.NoError(t, err)
	assert.Equal(t, "[1,2]", string(data))

	// one document per table on disk
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "quota_usage.json", filepath.Base(entries[0].Name()))
}

func TestNewFilesystemStoreCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "dir")
	_, err := NewFilesystemStore(root)
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
