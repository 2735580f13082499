package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/johnwmail/pasta/config"
	"github.com/johnwmail/pasta/internal/common"
	"github.com/johnwmail/pasta/internal/metrics"
	"github.com/johnwmail/pasta/internal/slug"
	"github.com/johnwmail/pasta/models"
	"github.com/johnwmail/pasta/storage"
)

// MaxFilenameLength bounds display names, in bytes.
const MaxFilenameLength = 255

// insertAttempts covers identifier races between the existence check and insert.
const insertAttempts = 3

// ArtifactService keeps the metadata index and the content store in step.
// It takes no locks: the order of operations bounds what a crash can leave
// behind, and readers tolerate a row whose content is missing.
type ArtifactService struct {
	content storage.ContentStore
	index   storage.MetadataIndex
	slugs   *slug.Generator
	maxSize int64
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option customizes an ArtifactService.
type Option func(*ArtifactService)

// WithLogger sets the logger used for rollback diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *ArtifactService) { s.logger = logger }
}

// WithMetrics records every operation outcome.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ArtifactService) { s.metrics = m }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *ArtifactService) { s.now = now }
}

// NewArtifactService creates a new artifact service
func NewArtifactService(content storage.ContentStore, index storage.MetadataIndex, cfg *config.Config, opts ...Option) *ArtifactService {
	s := &ArtifactService{
		content: content,
		index:   index,
		slugs:   slug.New(cfg.SlugLength),
		maxSize: cfg.MaxContentSize,
		now:     time.Now,
		logger:  slog.Default(),
	}
	if s.maxSize <= 0 {
		s.maxSize = config.DefaultConfig().MaxContentSize
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateArtifactRequest represents a request to create an artifact
type CreateArtifactRequest struct {
	Filename string
	Content  []byte
}

// UpdateArtifactRequest describes a partial update. A nil field is left
// unchanged; a non-nil empty Content replaces the body with nothing.
type UpdateArtifactRequest struct {
	Filename *string
	Content  []byte
}

// Create stores a new artifact. The metadata row is inserted first; if the
// content write then fails the row is deleted again.
func (s *ArtifactService) Create(ctx context.Context, req CreateArtifactRequest) (a *models.Artifact, err error) {
	defer func() { s.metrics.ArtifactOp("create", err) }()

	filename, err := validateFilename(req.Filename)
	if err != nil {
		return nil, err
	}
	if err := s.checkSize(req.Content); err != nil {
		return nil, err
	}
	ext := models.ExtensionFromFilename(filename)

	now := s.now().UTC()
	a = &models.Artifact{
		Filename:  filename,
		Extension: ext,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for attempt := 1; ; attempt++ {
		id, err := s.slugs.GenerateUnique(ctx, s.index.Exists)
		if err != nil {
			return nil, storageErr("generate identifier", err)
		}
		a.Identifier = id
		err = s.index.Insert(ctx, a)
		if err == nil {
			break
		}
		if !errors.Is(err, storage.ErrDuplicateIdentifier) || attempt == insertAttempts {
			return nil, storageErr("insert metadata", err)
		}
	}

	if err := s.content.Write(ctx, a.Identifier, a.Extension, req.Content); err != nil {
		writeErr := storageErr("write content", err)
		// The request context may be what failed; rollback must still run.
		if rbErr := s.index.Delete(context.WithoutCancel(ctx), a.Identifier); rbErr != nil {
			s.logger.Error("create rollback failed, dangling metadata row",
				"identifier", a.Identifier, "error", rbErr)
			return nil, errors.Join(writeErr, fmt.Errorf("rollback: %w", rbErr))
		}
		return nil, writeErr
	}

	a.Content = req.Content
	return a, nil
}

// Get returns metadata only.
func (s *ArtifactService) Get(ctx context.Context, id string) (*models.Artifact, error) {
	a, err := s.index.Get(ctx, id)
	if err != nil {
		return nil, storageErr("get metadata", err)
	}
	if a == nil {
		return nil, fmt.Errorf("artifact %s: %w", id, common.ErrNotFound)
	}
	return a, nil
}

// Read returns metadata and content. When the row exists but its content
// entry does not, the artifact is returned with empty content together with
// an error matching common.ErrContentMissing; the caller decides whether to
// degrade or fail.
func (s *ArtifactService) Read(ctx context.Context, id string) (a *models.Artifact, err error) {
	defer func() {
		if !errors.Is(err, common.ErrNotFound) {
			s.metrics.ArtifactOp("read", err)
		}
	}()

	a, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	content, err := s.content.Read(ctx, a.Identifier, a.Extension)
	if err != nil {
		if errors.Is(err, storage.ErrContentNotFound) {
			s.logger.Warn("metadata row without content", "identifier", id, "extension", a.Extension)
			a.Content = []byte{}
			return a, fmt.Errorf("artifact %s: %w", id, common.ErrContentMissing)
		}
		return nil, storageErr("read content", err)
	}
	a.Content = content
	return a, nil
}

// Update renames and/or rewrites an artifact. An extension change renames the
// content entry before any new bytes are written, and the metadata row is
// only touched once content is durable. A failure after the rename moves the
// entry back.
func (s *ArtifactService) Update(ctx context.Context, id string, req UpdateArtifactRequest) (updated *models.Artifact, err error) {
	defer func() { s.metrics.ArtifactOp("update", err) }()

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	filename := current.Filename
	ext := current.Extension
	if req.Filename != nil {
		filename, err = validateFilename(*req.Filename)
		if err != nil {
			return nil, err
		}
		ext = models.ExtensionFromFilename(filename)
	}
	if req.Content != nil {
		if err := s.checkSize(req.Content); err != nil {
			return nil, err
		}
	}

	renamed := false
	if ext != current.Extension {
		err := s.content.Rename(ctx, id, current.Extension, ext)
		switch {
		case err == nil:
			renamed = true
		case errors.Is(err, storage.ErrContentNotFound):
			// Nothing to move; a content write below recreates the entry.
			s.logger.Warn("rename source missing", "identifier", id, "extension", current.Extension)
		default:
			return nil, storageErr("rename content", err)
		}
	}

	rollback := func(cause error) error {
		if !renamed {
			return cause
		}
		if rbErr := s.content.Rename(context.WithoutCancel(ctx), id, ext, current.Extension); rbErr != nil {
			s.logger.Error("update rollback failed, content left under new extension",
				"identifier", id, "extension", ext, "error", rbErr)
			return errors.Join(cause, fmt.Errorf("rollback: %w", rbErr))
		}
		return cause
	}

	if req.Content != nil {
		if err := s.content.Write(ctx, id, ext, req.Content); err != nil {
			return nil, rollback(storageErr("write content", err))
		}
	}

	next := *current
	next.Filename = filename
	next.Extension = ext
	next.UpdatedAt = s.nextTimestamp(current.UpdatedAt)
	if err := s.index.Update(ctx, &next); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, rollback(fmt.Errorf("artifact %s: %w", id, common.ErrNotFound))
		}
		return nil, rollback(storageErr("update metadata", err))
	}

	next.Content = req.Content
	return &next, nil
}

// Delete removes content first, then the row. A crash in between leaves a
// row without content, which Read tolerates.
func (s *ArtifactService) Delete(ctx context.Context, id string) (err error) {
	defer func() { s.metrics.ArtifactOp("delete", err) }()

	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.content.Delete(ctx, a.Identifier, a.Extension); err != nil {
		return storageErr("delete content", err)
	}
	if err := s.index.Delete(ctx, a.Identifier); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("artifact %s: %w", id, common.ErrNotFound)
		}
		return storageErr("delete metadata", err)
	}
	return nil
}

// List returns every artifact, newest first, without content.
func (s *ArtifactService) List(ctx context.Context) ([]models.Artifact, error) {
	list, err := s.index.List(ctx)
	if err != nil {
		return nil, storageErr("list metadata", err)
	}
	return list, nil
}

// MaxContentSize reports the configured size limit in bytes.
func (s *ArtifactService) MaxContentSize() int64 {
	return s.maxSize
}

func (s *ArtifactService) checkSize(content []byte) error {
	if int64(len(content)) > s.maxSize {
		return fmt.Errorf("%d bytes exceeds %d: %w", len(content), s.maxSize, common.ErrSizeLimit)
	}
	return nil
}

// nextTimestamp returns now, or prev+1ns if the clock has not moved past prev.
func (s *ArtifactService) nextTimestamp(prev time.Time) time.Time {
	now := s.now().UTC()
	if !now.After(prev) {
		return prev.Add(time.Nanosecond)
	}
	return now
}

// validateFilename accepts any non-blank display name within the length cap.
// The name is stored as given; only the derived extension reaches storage.
func validateFilename(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("filename is required: %w", common.ErrValidation)
	}
	if len(name) > MaxFilenameLength {
		return "", fmt.Errorf("filename longer than %d bytes: %w", MaxFilenameLength, common.ErrValidation)
	}
	return name, nil
}

func storageErr(op string, err error) error {
	if errors.Is(err, common.ErrStorageIO) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, errors.Join(common.ErrStorageIO, err))
}
