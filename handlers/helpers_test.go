package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/pasta/config"
	"github.com/johnwmail/pasta/internal/auth"
	"github.com/johnwmail/pasta/internal/services"
	"github.com/johnwmail/pasta/storage"
)

const (
	testPassword  = "open-sesame"
	testJWTSecret = "test-jwt-secret"
)

type testServer struct {
	router  *gin.Engine
	service *services.ArtifactService
	tokens  *auth.TokenService
	config  *config.Config
	dataDir string
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.AuthPassword = testPassword
	cfg.JWTSecret = testJWTSecret
	cfg.MaxContentSize = 1024
	cfg.URL = "https://paste.example.com"
	if mutate != nil {
		mutate(cfg)
	}

	content, err := storage.NewFilesystemContentStore(cfg.DataDir, nil)
	if err != nil {
		t.Fatalf("Failed to create content store: %v", err)
	}
	db, err := storage.NewSQLiteDB(filepath.Join(dir, "pasta.db"))
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	index := storage.NewSQLiteMetadataIndex(db)
	t.Cleanup(func() { _ = index.Close() })

	service := services.NewArtifactService(content, index, cfg)

	var verifier *auth.Verifier
	if cfg.AuthPassword != "" {
		verifier, err = auth.NewVerifier(cfg.AuthPassword)
		if err != nil {
			t.Fatalf("Failed to create verifier: %v", err)
		}
	}
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL, nil)
	throttle := auth.NewLoginThrottle(cfg.LoginMaxAttempts, cfg.LoginWindow, nil)

	files := NewFilesHandler(service, cfg)
	authHandler := NewAuthHandler(verifier, tokens, throttle, cfg, nil)
	system := NewSystemHandler("test")

	r := gin.New()
	r.GET("/health", system.Health)
	r.GET("/api/languages", system.Languages)
	r.GET("/raw/:id", files.Raw)

	api := r.Group("/api")
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/logout", authHandler.Logout)
	api.GET("/auth/status", authHandler.Status)
	api.GET("/files", files.List)
	api.GET("/files/:id", files.Read)
	api.GET("/files/:id/qr", files.QRCode)

	write := api.Group("", authHandler.RequireSession())
	write.POST("/files", files.Create)
	write.PUT("/files/:id", files.Update)
	write.DELETE("/files/:id", files.Delete)

	return &testServer{
		router:  r,
		service: service,
		tokens:  tokens,
		config:  cfg,
		dataDir: cfg.DataDir,
	}
}

// token issues a valid session token.
func (s *testServer) token(t *testing.T) string {
	t.Helper()
	tok, err := s.tokens.Issue()
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return tok
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// authed sets the session cookie on req.
func (s *testServer) authed(t *testing.T, req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: CookieName, Value: s.token(t)})
	return req
}

func jsonRequest(method, path string, body any) *http.Request {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to unmarshal response %q: %v", w.Body.String(), err)
	}
}

// create stores an artifact through the API and returns its identifier.
func (s *testServer) create(t *testing.T, filename, content string) string {
	t.Helper()
	w := s.do(s.authed(t, jsonRequest("POST", "/api/files", gin.H{"filename": filename, "content": content})))
	if w.Code != http.StatusCreated {
		t.Fatalf("Create %s: expected 201, got %d: %s", filename, w.Code, w.Body.String())
	}
	var resp map[string]string
	decodeJSON(t, w, &resp)
	return resp["identifier"]
}

