package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/johnwmail/pasta/internal/common"
)

// EnvPrefix prefixes every environment variable the service reads.
const EnvPrefix = "PASTA_"

// Config holds all configuration for the pasta service
type Config struct {
	Port int    `koanf:"port"`
	URL  string `koanf:"url"`

	// Storage configuration
	DataDir           string `koanf:"data_dir"`
	MetadataBackend   string `koanf:"metadata_backend"` // sqlite, mongodb, dynamodb
	ContentBackend    string `koanf:"content_backend"`  // filesystem, s3
	SQLitePath        string `koanf:"sqlite_path"`
	MongoDBURI        string `koanf:"mongodb_uri"`
	MongoDBDatabase   string `koanf:"mongodb_database"`
	MongoDBCollection string `koanf:"mongodb_collection"`
	DynamoDBTable     string `koanf:"dynamodb_table"`
	S3Bucket          string `koanf:"s3_bucket"`
	S3Prefix          string `koanf:"s3_prefix"`

	SlugLength     int   `koanf:"slug_length"`
	MaxContentSize int64 `koanf:"max_content_size"`
	StrictContent  bool  `koanf:"strict_content"`

	// Authentication
	AuthPassword     string        `koanf:"auth_password"`
	JWTSecret        string        `koanf:"jwt_secret"`
	TokenTTL         time.Duration `koanf:"token_ttl"`
	LoginMaxAttempts int           `koanf:"login_max_attempts"`
	LoginWindow      time.Duration `koanf:"login_window"`
	TrustRemoteAddr  bool          `koanf:"trust_remote_addr"`
	Production       bool          `koanf:"production"`

	// Operational configuration
	LogLevel      string `koanf:"log_level"`
	LogFile       string `koanf:"log_file"`
	EnableMetrics bool   `koanf:"enable_metrics"`
	QRSize        int    `koanf:"qr_size"`

	Version    string `koanf:"-"`
	BuildTime  string `koanf:"-"`
	CommitHash string `koanf:"-"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:              8080,
		DataDir:           "./data",
		MetadataBackend:   "sqlite",
		ContentBackend:    "filesystem",
		MongoDBURI:        "mongodb://localhost:27017",
		MongoDBDatabase:   "pasta",
		MongoDBCollection: "artifacts",
		DynamoDBTable:     "pasta-artifacts",
		SlugLength:        12,
		MaxContentSize:    1024 * 1024, // 1MB
		TokenTTL:          7 * 24 * time.Hour,
		LoginMaxAttempts:  3,
		LoginWindow:       time.Minute,
		LogLevel:          "info",
		EnableMetrics:     true,
		QRSize:            256,
	}
}

// LoadConfig layers defaults, an optional YAML file, PASTA_* environment
// variables and explicitly set command-line flags, in that order.
func LoadConfig(args []string) (*Config, error) {
	cfg := DefaultConfig()
	if IsLambdaEnvironment() {
		// No writable disk in Lambda; explicit settings still win below.
		cfg.MetadataBackend = "dynamodb"
		cfg.ContentBackend = "s3"
	}
	k := koanf.New(".")

	fs := flag.NewFlagSet("pasta", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", os.Getenv(EnvPrefix+"CONFIG"), "Path to a YAML config file")
	fs.Int("port", cfg.Port, "Port to listen on")
	fs.String("url", cfg.URL, "Public base URL used in share links")
	fs.String("data-dir", cfg.DataDir, "Directory for artifact content and the sqlite database")
	fs.String("metadata-backend", cfg.MetadataBackend, "Metadata backend: sqlite, mongodb, dynamodb")
	fs.String("content-backend", cfg.ContentBackend, "Content backend: filesystem, s3")
	fs.String("sqlite-path", cfg.SQLitePath, "SQLite database path (default <data-dir>/pasta.db)")
	fs.String("mongodb-uri", cfg.MongoDBURI, "MongoDB connection URI")
	fs.String("dynamodb-table", cfg.DynamoDBTable, "DynamoDB table name")
	fs.String("s3-bucket", cfg.S3Bucket, "S3 bucket for artifact content")
	fs.String("s3-prefix", cfg.S3Prefix, "S3 key prefix for artifact content")
	fs.Int("slug-length", cfg.SlugLength, "Length of generated identifiers")
	fs.Int64("max-content-size", cfg.MaxContentSize, "Maximum artifact size in bytes")
	fs.Bool("strict-content", cfg.StrictContent, "Fail reads whose content file is missing")
	fs.Bool("production", cfg.Production, "Production mode (secure cookies)")
	fs.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.String("log-file", cfg.LogFile, "Path to log file")
	fs.Bool("enable-metrics", cfg.EnableMetrics, "Expose /metrics")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if *configPath != "" {
		if err := k.Load(file.Provider(*configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", *configPath, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			// PASTA_SLUG_LENGTH -> slug_length
			return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			return
		}
		if err := k.Set(strings.ReplaceAll(f.Name, "-", "_"), f.Value.String()); err != nil && flagErr == nil {
			flagErr = err
		}
	})
	if flagErr != nil {
		return nil, fmt.Errorf("apply flags: %w", flagErr)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.SQLitePath == "" && cfg.DataDir != "" {
		cfg.SQLitePath = strings.TrimSuffix(cfg.DataDir, "/") + "/pasta.db"
	}

	return cfg, nil
}

// Validate checks that the configuration is usable. Missing secrets are
// reported as common.ErrConfiguration.
func (c *Config) Validate() error {
	if c.AuthPassword == "" {
		return fmt.Errorf("auth_password must be set: %w", common.ErrConfiguration)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret must be set: %w", common.ErrConfiguration)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.SlugLength < 8 || c.SlugLength > 64 {
		return fmt.Errorf("slug_length must be between 8 and 64, got %d", c.SlugLength)
	}
	if c.MaxContentSize <= 0 {
		return fmt.Errorf("max_content_size must be positive")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive")
	}
	if c.LoginMaxAttempts < 1 {
		return fmt.Errorf("login_max_attempts must be at least 1")
	}
	if c.LoginWindow <= 0 {
		return fmt.Errorf("login_window must be positive")
	}

	switch c.MetadataBackend {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for the sqlite backend")
		}
	case "mongodb":
		if c.MongoDBURI == "" {
			return fmt.Errorf("mongodb_uri is required for the mongodb backend")
		}
	case "dynamodb":
		if c.DynamoDBTable == "" {
			return fmt.Errorf("dynamodb_table is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("invalid metadata_backend: %s (supported: sqlite, mongodb, dynamodb)", c.MetadataBackend)
	}

	switch c.ContentBackend {
	case "filesystem":
		if c.DataDir == "" {
			return fmt.Errorf("data_dir is required for the filesystem backend")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("s3_bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid content_backend: %s (supported: filesystem, s3)", c.ContentBackend)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}

	return nil
}

// DebugEnabled reports whether debug diagnostics should be emitted.
func (c *Config) DebugEnabled() bool {
	return c.LogLevel == "debug"
}

// IsLambdaEnvironment detects if running in AWS Lambda
func IsLambdaEnvironment() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// ContentDir is the directory holding {identifier}.{extension} files.
func (c *Config) ContentDir() string {
	return filepath.Join(c.DataDir, "files")
}

// GetBaseURL returns the configured public URL, or a localhost URL.
func (c *Config) GetBaseURL() string {
	if c.URL != "" {
		return strings.TrimSuffix(c.URL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.Port)
}
