package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johnwmail/pasta/config"
	"github.com/johnwmail/pasta/handlers"
	"github.com/johnwmail/pasta/internal/auth"
	"github.com/johnwmail/pasta/internal/common"
	"github.com/johnwmail/pasta/internal/metrics"
	"github.com/johnwmail/pasta/internal/server"
	"github.com/johnwmail/pasta/internal/services"
	"github.com/johnwmail/pasta/storage"

	// Lambda imports (only used when in Lambda mode)
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
)

// Version/build info (set via -ldflags at build time)
var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "none"
)

// Lambda-specific variables
var (
	ginLambdaV1   *ginadapter.GinLambda
	ginLambdaV2   *ginadapter.GinLambdaV2
	ginLambdaOnce sync.Once
)

// app holds the long-lived dependencies shared by all requests.
type app struct {
	config  *config.Config
	logger  *slog.Logger
	content storage.ContentStore
	index   storage.MetadataIndex
	service *services.ArtifactService
	metrics *metrics.Metrics

	verifier *auth.Verifier
	tokens   *auth.TokenService
	throttle *auth.LoginThrottle
}

func main() {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}
	cfg.Version = Version
	cfg.BuildTime = BuildTime
	cfg.CommitHash = CommitHash

	logger := setupLogging(cfg)
	slog.SetDefault(logger)

	logger.Info("Starting pasta",
		"version", Version,
		"build_time", BuildTime,
		"commit", CommitHash)

	if err := cfg.Validate(); err != nil {
		if errors.Is(err, common.ErrConfiguration) {
			logger.Error("Server misconfigured", "error", err)
		} else {
			logger.Error("Invalid configuration", "error", err)
		}
		os.Exit(1)
	}

	if cfg.DebugEnabled() {
		logger.Debug("Loaded config",
			"metadata_backend", cfg.MetadataBackend,
			"content_backend", cfg.ContentBackend,
			"data_dir", cfg.DataDir,
			"max_content_size", cfg.MaxContentSize,
			"login_max_attempts", cfg.LoginMaxAttempts,
			"login_window", cfg.LoginWindow,
			"token_ttl", cfg.TokenTTL)
	}

	// Set Gin mode based on environment
	if os.Getenv("GIN_MODE") == "release" || cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}

	router := setupRouter(a)

	if config.IsLambdaEnvironment() {
		logger.Info("Starting in AWS Lambda mode")
		initLambda(router)
		lambda.Start(lambdaHandler)
		return
	}

	logger.Info("Starting in HTTP server mode", "url", cfg.GetBaseURL())
	runHTTPServer(router, a)
}

// setupLogging builds the process logger: text on stderr, or JSON when a
// log file is configured.
func setupLogging(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		return slog.New(slog.NewJSONHandler(file, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// newApp opens the configured backends and builds the services on top.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	verifier, err := auth.NewVerifier(cfg.AuthPassword)
	if err != nil {
		return nil, err
	}

	content, err := storage.NewContentStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("content store: %w", err)
	}
	index, err := storage.NewMetadataIndex(ctx, cfg, logger)
	if err != nil {
		_ = content.Close()
		return nil, fmt.Errorf("metadata index: %w", err)
	}

	var m *metrics.Metrics
	if cfg.EnableMetrics {
		m = metrics.New()
	}

	return &app{
		config:  cfg,
		logger:  logger,
		content: content,
		index:   index,
		service: services.NewArtifactService(content, index, cfg,
			services.WithLogger(logger),
			services.WithMetrics(m)),
		metrics:  m,
		verifier: verifier,
		tokens:   auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL, nil),
		throttle: auth.NewLoginThrottle(cfg.LoginMaxAttempts, cfg.LoginWindow, nil),
	}, nil
}

// Close releases both stores.
func (a *app) Close() error {
	return errors.Join(a.index.Close(), a.content.Close())
}

// setupRouter creates and configures the Gin router
func setupRouter(a *app) *gin.Engine {
	filesHandler := handlers.NewFilesHandler(a.service, a.config)
	authHandler := handlers.NewAuthHandler(a.verifier, a.tokens, a.throttle, a.config, a.metrics)
	systemHandler := handlers.NewSystemHandler(a.config.Version)

	router := gin.New()

	// Use a JSON-safe recovery middleware and canonicalErrors middleware so
	// API endpoints always return JSON error responses.
	router.Use(jsonRecovery(a.logger))
	router.Use(server.RequestID(a.logger))
	router.Use(server.Logging())
	router.Use(server.Metrics(a.metrics))
	router.Use(canonicalErrors())
	router.Use(server.CORS())

	// System routes
	router.GET("/health", systemHandler.Health)
	if a.metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{})))
	}

	router.GET("/raw/:id", filesHandler.Raw)

	api := router.Group("/api")
	api.GET("/languages", systemHandler.Languages)

	// Session
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/logout", authHandler.Logout)
	api.GET("/auth/status", authHandler.Status)

	// Reads are public
	api.GET("/files", filesHandler.List)
	api.GET("/files/:id", filesHandler.Read)
	api.GET("/files/:id/qr", filesHandler.QRCode)

	// Writes need a session
	write := api.Group("", authHandler.RequireSession())
	write.POST("/files", filesHandler.Create)
	write.PUT("/files/:id", filesHandler.Update)
	write.DELETE("/files/:id", filesHandler.Delete)

	// Global 404 handler
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
	})

	return router
}

// initLambda wraps router in the API Gateway v1 and v2 adapters.
func initLambda(router *gin.Engine) {
	ginLambdaOnce.Do(func() {
		ginLambdaV1 = ginadapter.New(router)
		ginLambdaV2 = ginadapter.NewV2(router)
	})
}

// lambdaHandler handles Lambda requests for both v1 and v2 formats
func lambdaHandler(ctx context.Context, event interface{}) (interface{}, error) {
	if ginLambdaV1 == nil || ginLambdaV2 == nil {
		return nil, errors.New("lambda adapters are not initialized")
	}
	logger := slog.Default()

	// Convert event to JSON bytes for parsing
	eventBytes, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal event", "error", err)
		return events.APIGatewayV2HTTPResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       "Failed to process event",
			Headers:    map[string]string{"Content-Type": "text/plain"},
		}, err
	}

	// Try to parse as APIGatewayV2HTTPRequest first (for Lambda Function URLs and HTTP API)
	var reqV2 events.APIGatewayV2HTTPRequest
	if err := json.Unmarshal(eventBytes, &reqV2); err == nil && reqV2.RequestContext.HTTP.Method != "" {
		logger.Debug("Handling APIGatewayV2HTTPRequest",
			"method", reqV2.RequestContext.HTTP.Method,
			"path", reqV2.RawPath)
		return ginLambdaV2.ProxyWithContext(ctx, reqV2)
	}

	// Try to parse as APIGatewayProxyRequest (for REST API and ALB)
	var reqV1 events.APIGatewayProxyRequest
	if err := json.Unmarshal(eventBytes, &reqV1); err == nil && reqV1.HTTPMethod != "" {
		logger.Debug("Handling APIGatewayProxyRequest",
			"method", reqV1.HTTPMethod,
			"path", reqV1.Path)
		return ginLambdaV1.ProxyWithContext(ctx, reqV1)
	}

	// Lambda console test events carry key1, key2, key3
	var testEvent map[string]interface{}
	if err := json.Unmarshal(eventBytes, &testEvent); err == nil {
		if _, hasKey1 := testEvent["key1"]; hasKey1 {
			return events.APIGatewayV2HTTPResponse{
				StatusCode: http.StatusOK,
				Body:       `{"message": "pasta Lambda function is working! Use a real HTTP request or API Gateway integration."}`,
				Headers:    map[string]string{"Content-Type": "application/json"},
			}, nil
		}
	}

	logger.Warn("Unsupported Lambda event", "event", string(eventBytes))
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       "Unsupported event type - this function expects API Gateway or Lambda Function URL events",
		Headers:    map[string]string{"Content-Type": "text/plain"},
	}, fmt.Errorf("unsupported event type: %T", event)
}

// jsonRecovery returns a middleware that recovers from panics and ensures
// the response is JSON formatted.
func jsonRecovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		writer := c.Writer
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered", "panic", r, "path", c.Request.URL.Path)
				// Skip any buffering writer installed further down the chain.
				c.Writer = writer
				c.Header("Content-Type", "application/json; charset=utf-8")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
		}()
		c.Next()
	}
}

// canonicalErrors ensures that every response with status >= 400 carries a
// JSON {"error": ...} body, even when the handler wrote nothing or plain text.
func canonicalErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origWriter := c.Writer
		bcw := &bodyCaptureWriter{ResponseWriter: origWriter}
		c.Writer = bcw

		c.Next()

		status := bcw.Status()
		buf := bcw.body.Bytes()
		ct := bcw.Header().Get("Content-Type")

		if status >= 400 {
			var msg string

			if len(buf) > 0 && strings.Contains(ct, "application/json") {
				var parsed map[string]interface{}
				if err := json.Unmarshal(buf, &parsed); err == nil {
					if e, ok := parsed["error"].(string); ok {
						msg = e
					} else if m, ok := parsed["message"].(string); ok {
						msg = m
					}
				}
			}

			if msg == "" {
				if len(buf) > 0 {
					msg = string(bytes.TrimSpace(buf))
				} else if len(c.Errors) > 0 {
					msg = c.Errors.Last().Error()
				} else {
					msg = http.StatusText(status)
				}
			}

			origWriter.Header().Set("Content-Type", "application/json; charset=utf-8")
			origWriter.WriteHeader(status)
			out, _ := json.Marshal(gin.H{"error": msg})
			if _, err := origWriter.Write(out); err != nil {
				server.LoggerFrom(c.Request.Context()).Error("canonicalErrors: failed to write error response", "error", err)
			}
			return
		}

		// Non-error: forward buffered content as-is
		if len(buf) > 0 {
			origWriter.WriteHeader(status)
			if _, err := origWriter.Write(buf); err != nil {
				server.LoggerFrom(c.Request.Context()).Error("canonicalErrors: failed to write response body", "error", err)
			}
		}
	}
}

// bodyCaptureWriter buffers response body writes so middleware can inspect
// and optionally rewrite the output before sending to the client.
type bodyCaptureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

// Write buffers b until canonicalErrors decides what to forward.
func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

// WriteString keeps c.String output in the buffer too.
func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

// runHTTPServer starts the HTTP server for container mode
func runHTTPServer(router *gin.Engine, a *app) {
	logger := a.logger
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Error closing storage", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting pasta server", "port", a.config.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	} else {
		logger.Info("Server shutdown complete")
	}
}
