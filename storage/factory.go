package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/johnwmail/pasta/config"
)

// NewContentStore creates the content backend selected by the configuration
func NewContentStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ContentStore, error) {
	switch cfg.ContentBackend {
	case "filesystem":
		logger.Info("Using filesystem content store", "dir", cfg.ContentDir())
		store, err := NewFilesystemContentStore(cfg.ContentDir(), logger)
		if err != nil {
			return nil, err
		}
		return store, nil

	case "s3":
		logger.Info("Using S3 content store", "bucket", cfg.S3Bucket, "prefix", cfg.S3Prefix)
		store, err := NewS3ContentStore(ctx, cfg.S3Bucket, cfg.S3Prefix, logger)
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported content backend: %s (supported: filesystem, s3)", cfg.ContentBackend)
	}
}

// NewMetadataIndex creates the metadata backend selected by the configuration
func NewMetadataIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) (MetadataIndex, error) {
	switch cfg.MetadataBackend {
	case "sqlite":
		logger.Info("Using SQLite metadata index", "path", cfg.SQLitePath)
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		db, err := NewSQLiteDB(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		return NewSQLiteMetadataIndex(db), nil

	case "mongodb":
		logger.Info("Using MongoDB metadata index",
			"database", cfg.MongoDBDatabase,
			"collection", cfg.MongoDBCollection)
		idx, err := NewMongoMetadataIndex(ctx, cfg.MongoDBURI, cfg.MongoDBDatabase, cfg.MongoDBCollection)
		if err != nil {
			return nil, err
		}
		return idx, nil

	case "dynamodb":
		logger.Info("Using DynamoDB metadata index", "table", cfg.DynamoDBTable)
		idx, err := NewDynamoMetadataIndex(ctx, cfg.DynamoDBTable)
		if err != nil {
			return nil, err
		}
		return idx, nil

	default:
		return nil, fmt.Errorf("unsupported metadata backend: %s (supported: sqlite, mongodb, dynamodb)", cfg.MetadataBackend)
	}
}
