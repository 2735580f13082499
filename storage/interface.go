package storage

import (
	"context"
	"errors"

	"github.com/johnwmail/pasta/internal/common"
	"github.com/johnwmail/pasta/models"
)

// ErrContentNotFound is returned by ContentStore reads and renames when the
// entry does not exist. It matches common.ErrNotFound.
var ErrContentNotFound = common.ErrContentMissing

// ErrInvalidContentKey is returned when an identifier/extension pair would
// not name a single entry directly inside the store.
var ErrInvalidContentKey = errors.New("invalid content key")

// ErrDuplicateIdentifier is returned by MetadataIndex.Insert when the
// identifier is already taken.
var ErrDuplicateIdentifier = errors.New("identifier already exists")

// ContentStore keeps artifact bytes keyed by (identifier, extension).
type ContentStore interface {
	// Write creates or replaces the entry atomically from a reader's view.
	Write(ctx context.Context, id, ext string, content []byte) error

	// Read returns the entry's bytes or ErrContentNotFound.
	Read(ctx context.Context, id, ext string) ([]byte, error)

	// Rename moves the entry from oldExt to newExt. A missing source
	// returns ErrContentNotFound and leaves the store unchanged.
	Rename(ctx context.Context, id, oldExt, newExt string) error

	// Delete removes the entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, id, ext string) error

	// Close releases any resources held by the store.
	Close() error
}

// MetadataIndex keeps one artifact row per identifier.
type MetadataIndex interface {
	// Insert adds a new row; ErrDuplicateIdentifier if the id is taken.
	Insert(ctx context.Context, a *models.Artifact) error

	// Get returns the row for id, or nil, nil when absent.
	Get(ctx context.Context, id string) (*models.Artifact, error)

	// Exists reports whether a row for id is present.
	Exists(ctx context.Context, id string) (bool, error)

	// Update rewrites filename, extension and updated_at of an existing row.
	// A missing row returns common.ErrNotFound.
	Update(ctx context.Context, a *models.Artifact) error

	// Delete removes the row. A missing row returns common.ErrNotFound.
	Delete(ctx context.Context, id string) error

	// List returns all rows, newest created_at first, ties in insertion order.
	List(ctx context.Context) ([]models.Artifact, error)

	// Close closes the index connection.
	Close() error
}
