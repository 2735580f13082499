package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnwmail/pasta/internal/common"
)

func newTestFilesystemStore(t *testing.T) (*FilesystemContentStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewFilesystemContentStore(dir, nil)
	require.NoError(t, err)
	return store, dir
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNewFilesystemContentStore_CreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	_, err := NewFilesystemContentStore(dir, nil)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewFilesystemContentStore_EmptyDir(t *testing.T) {
	_, err := NewFilesystemContentStore("", nil)
	assert.Error(t, err)
}

func TestFilesystemContentStore_WriteRead(t *testing.T) {
	store, dir := newTestFilesystemStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "abc123", "md", []byte("# hello")))

	got, err := store.Read(ctx, "abc123", "md")
	require.NoError(t, err)
	assert.Equal(t, "# hello", string(got))

	// No temp files are left behind.
	assert.Equal(t, []string{"abc123.md"}, listDir(t, dir))
}

func TestFilesystemContentStore_WriteReplaces(t *testing.T) {
	store, _ := newTestFilesystemStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "abc123", "txt", []byte("first")))
	require.NoError(t, store.Write(ctx, "abc123", "txt", []byte("second")))

	got, err := store.Read(ctx, "abc123", "txt")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestFilesystemContentStore_ReadMissing(t *testing.T) {
	store, _ := newTestFilesystemStore(t)

	_, err := store.Read(context.Background(), "nope", "txt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContentNotFound))
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestFilesystemContentStore_Rename(t *testing.T) {
	store, dir := newTestFilesystemStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "abc123", "txt", []byte("print(1)")))
	require.NoError(t, store.Rename(ctx, "abc123", "txt", "py"))

	assert.Equal(t, []string{"abc123.py"}, listDir(t, dir))
	got, err := store.Read(ctx, "abc123", "py")
	require.NoError(t, err)
	assert.Equal(t, "print(1)", string(got))
}

func TestFilesystemContentStore_RenameSameExtension(t *testing.T) {
	store, dir := newTestFilesystemStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "abc123", "txt", []byte("x")))
	require.NoError(t, store.Rename(ctx, "abc123", "txt", "txt"))
	assert.Equal(t, []string{"abc123.txt"}, listDir(t, dir))
}

func TestFilesystemContentStore_RenameMissingSource(t *testing.T) {
	store, dir := newTestFilesystemStore(t)

	err := store.Rename(context.Background(), "ghost", "txt", "md")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContentNotFound))
	assert.Empty(t, listDir(t, dir))
}

func TestFilesystemContentStore_DeleteIdempotent(t *testing.T) {
	store, dir := newTestFilesystemStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "abc123", "txt", []byte("x")))
	require.NoError(t, store.Delete(ctx, "abc123", "txt"))
	require.NoError(t, store.Delete(ctx, "abc123", "txt"))
	assert.Empty(t, listDir(t, dir))
}

func TestFilesystemContentStore_CanceledContext(t *testing.T) {
	store, dir := newTestFilesystemStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Write(ctx, "abc123", "txt", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, listDir(t, dir))
}

func TestFilesystemContentStore_RejectsKeysOutsideDir(t *testing.T) {
	store, dir := newTestFilesystemStore(t)
	ctx := context.Background()

	for _, ext := range []string{"d/../../escape", `d\x`, "a\x00b"} {
		err := store.Write(ctx, "abc123", ext, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidContentKey, ext)

		_, err = store.Read(ctx, "abc123", ext)
		assert.ErrorIs(t, err, ErrInvalidContentKey, ext)

		assert.ErrorIs(t, store.Delete(ctx, "abc123", ext), ErrInvalidContentKey, ext)
	}
	assert.ErrorIs(t, store.Write(ctx, "", "txt", []byte("x")), ErrInvalidContentKey)
	assert.Empty(t, listDir(t, dir))
}

func TestFilesystemContentStore_UnusualExtension(t *testing.T) {
	store, dir := newTestFilesystemStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "abc123", "2 notes", []byte("x")))
	require.NoError(t, store.Rename(ctx, "abc123", "2 notes", "txt~"))

	got, err := store.Read(ctx, "abc123", "txt~")
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
	assert.Equal(t, []string{"abc123.txt~"}, listDir(t, dir))
}
