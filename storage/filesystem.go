package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/johnwmail/pasta/models"
)

// FilesystemContentStore stores each artifact as {identifier}.{extension}
// in a single directory.
type FilesystemContentStore struct {
	dataDir string
	logger  *slog.Logger
}

// NewFilesystemContentStore creates dataDir if needed and returns a store rooted there.
func NewFilesystemContentStore(dataDir string, logger *slog.Logger) (*FilesystemContentStore, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory must not be empty")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dataDir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FilesystemContentStore{dataDir: dataDir, logger: logger}, nil
}

func (fs *FilesystemContentStore) path(id, ext string) (string, error) {
	key := models.ContentKey(id, ext)
	if id == "" || strings.ContainsAny(key, "/\\\x00") || key == "." || key == ".." {
		return "", fmt.Errorf("%q: %w", key, ErrInvalidContentKey)
	}
	return filepath.Join(fs.dataDir, key), nil
}

// Write stages the bytes in a temp file in the same directory and renames it
// into place, so readers see either the old or the new content.
func (fs *FilesystemContentStore) Write(ctx context.Context, id, ext string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := fs.path(id, ext)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(fs.dataDir, "."+id+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", id, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			fs.logger.Warn("failed to remove temp file", "path", tmpName, "error", rmErr)
		}
	}

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write content for %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync content for %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close content for %s: %w", id, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod content for %s: %w", id, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		cleanup()
		return fmt.Errorf("commit content for %s: %w", id, err)
	}
	return nil
}

// Read returns the content bytes or ErrContentNotFound.
func (fs *FilesystemContentStore) Read(ctx context.Context, id, ext string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := fs.path(id, ext)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", models.ContentKey(id, ext), ErrContentNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", models.ContentKey(id, ext), err)
	}
	return data, nil
}

// Rename moves {id}.{oldExt} to {id}.{newExt}.
func (fs *FilesystemContentStore) Rename(ctx context.Context, id, oldExt, newExt string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if oldExt == newExt {
		return nil
	}
	src, err := fs.path(id, oldExt)
	if err != nil {
		return err
	}
	dst, err := fs.path(id, newExt)
	if err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("rename %s: %w", models.ContentKey(id, oldExt), ErrContentNotFound)
		}
		return fmt.Errorf("rename %s to %s: %w", models.ContentKey(id, oldExt), newExt, err)
	}
	return nil
}

// Delete removes the entry; a missing file is not an error.
func (fs *FilesystemContentStore) Delete(ctx context.Context, id, ext string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := fs.path(id, ext)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", models.ContentKey(id, ext), err)
	}
	return nil
}

func (fs *FilesystemContentStore) Close() error {
	return nil
}
