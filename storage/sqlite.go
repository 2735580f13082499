package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/johnwmail/pasta/internal/common"
	"github.com/johnwmail/pasta/models"

	_ "modernc.org/sqlite"
)

// Compile-time interface satisfaction check.
var _ MetadataIndex = (*SQLiteMetadataIndex)(nil)

// SQLiteDB holds a single-connection writer and a small reader pool over the
// same database file. SQLite serializes writers, so one writer connection
// avoids "database is locked" errors.
type SQLiteDB struct {
	Writer *sql.DB
	Reader *sql.DB
}

// NewSQLiteDB opens path in WAL mode and applies migrations.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
		path,
	)
	return openSQLiteDB(dsn)
}

func openSQLiteDB(dsn string) (*SQLiteDB, error) {
	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	if err := writer.Ping(); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)

	if err := reader.Ping(); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return nil, fmt.Errorf("ping reader: %w", err)
	}

	db := &SQLiteDB{Writer: writer, Reader: reader}
	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Close closes both connections and returns the first error encountered.
func (db *SQLiteDB) Close() error {
	var firstErr error

	if err := db.Reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader: %w", err)
	}

	if err := db.Writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}

	return firstErr
}

// SQLiteMetadataIndex stores artifact rows in the artifacts table.
type SQLiteMetadataIndex struct {
	db *SQLiteDB
}

// NewSQLiteMetadataIndex creates an index backed by db.
func NewSQLiteMetadataIndex(db *SQLiteDB) *SQLiteMetadataIndex {
	return &SQLiteMetadataIndex{db: db}
}

func (s *SQLiteMetadataIndex) Insert(ctx context.Context, a *models.Artifact) error {
	const query = `INSERT INTO artifacts (identifier, filename, extension, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`

	res, err := s.db.Writer.ExecContext(ctx, query,
		a.Identifier, a.Filename, a.Extension, a.CreatedAt.UnixNano(), a.UpdatedAt.UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("insert artifact %s: %w", a.Identifier, ErrDuplicateIdentifier)
		}
		return fmt.Errorf("insert artifact %s: %w", a.Identifier, err)
	}
	if seq, err := res.LastInsertId(); err == nil {
		a.Seq = seq
	}
	return nil
}

// Get returns nil, nil when the identifier is unknown.
func (s *SQLiteMetadataIndex) Get(ctx context.Context, id string) (*models.Artifact, error) {
	const query = `SELECT seq, identifier, filename, extension, created_at, updated_at FROM artifacts WHERE identifier = ?`

	a, err := scanArtifact(s.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w", id, err)
	}
	return a, nil
}

func (s *SQLiteMetadataIndex) Exists(ctx context.Context, id string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM artifacts WHERE identifier = ?)`

	var exists bool
	if err := s.db.Reader.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check artifact %s: %w", id, err)
	}
	return exists, nil
}

func (s *SQLiteMetadataIndex) Update(ctx context.Context, a *models.Artifact) error {
	const query = `UPDATE artifacts SET filename = ?, extension = ?, updated_at = ? WHERE identifier = ?`

	res, err := s.db.Writer.ExecContext(ctx, query, a.Filename, a.Extension, a.UpdatedAt.UnixNano(), a.Identifier)
	if err != nil {
		return fmt.Errorf("update artifact %s: %w", a.Identifier, err)
	}
	return requireAffected(res, "update", a.Identifier)
}

func (s *SQLiteMetadataIndex) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM artifacts WHERE identifier = ?`

	res, err := s.db.Writer.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete artifact %s: %w", id, err)
	}
	return requireAffected(res, "delete", id)
}

func (s *SQLiteMetadataIndex) List(ctx context.Context) ([]models.Artifact, error) {
	const query = `SELECT seq, identifier, filename, extension, created_at, updated_at FROM artifacts ORDER BY created_at DESC, seq ASC`

	rows, err := s.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []models.Artifact{}
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return artifacts, nil
}

func (s *SQLiteMetadataIndex) Close() error {
	return s.db.Close()
}

func requireAffected(res sql.Result, op, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s artifact %s: %w", op, id, common.ErrNotFound)
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(s scanner) (*models.Artifact, error) {
	var (
		a                    models.Artifact
		createdAt, updatedAt int64
	)
	if err := s.Scan(&a.Seq, &a.Identifier, &a.Filename, &a.Extension, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.CreatedAt = time.Unix(0, createdAt).UTC()
	a.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &a, nil
}
