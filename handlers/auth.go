package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/pasta/config"
	"github.com/johnwmail/pasta/internal/auth"
	"github.com/johnwmail/pasta/internal/metrics"
	"github.com/johnwmail/pasta/internal/server"
)

// CookieName is the session cookie set on login.
const CookieName = "pasta_auth"

// AuthHandler serves login, logout and session status, and guards write
// routes.
type AuthHandler struct {
	verifier *auth.Verifier
	tokens   *auth.TokenService
	throttle *auth.LoginThrottle
	config   *config.Config
	metrics  *metrics.Metrics
}

// NewAuthHandler creates a new auth handler. A nil verifier answers every
// login with 500 Server misconfigured.
func NewAuthHandler(verifier *auth.Verifier, tokens *auth.TokenService, throttle *auth.LoginThrottle, cfg *config.Config, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{
		verifier: verifier,
		tokens:   tokens,
		throttle: throttle,
		config:   cfg,
		metrics:  m,
	}
}

type loginRequest struct {
	Password string `json:"password"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	addr := auth.ClientAddress(c.Request, h.config.TrustRemoteAddr)
	if !h.throttle.Check(addr) {
		h.metrics.LoginAttempt("throttled")
		server.LoggerFrom(c.Request.Context()).Warn("Login throttled", "client", addr)
		c.JSON(http.StatusTooManyRequests, gin.H{"error": msgThrottled})
		return
	}

	var body loginRequest
	if err := json.NewDecoder(io.LimitReader(c.Request.Body, 64<<10)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		h.metrics.LoginAttempt("error")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if h.verifier == nil {
		h.metrics.LoginAttempt("error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgMisconfigured})
		return
	}
	if !h.verifier.Verify(body.Password) {
		h.metrics.LoginAttempt("invalid")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
		return
	}

	token, err := h.tokens.Issue()
	if err != nil {
		h.metrics.LoginAttempt("error")
		writeError(c, err)
		return
	}

	h.metrics.LoginAttempt("success")
	h.setSessionCookie(c, token, int(h.tokens.TTL().Seconds()))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Logout handles POST /api/auth/logout. Tokens are not revoked server-side;
// the cookie is cleared.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Status handles GET /api/auth/status
func (h *AuthHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"authenticated": h.authenticated(c)})
}

// RequireSession rejects requests without a valid session token, taken from
// the session cookie or an Authorization: Bearer header.
func (h *AuthHandler) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.authenticated(c) {
			c.Header("Content-Type", "application/json; charset=utf-8")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgUnauthorized})
			return
		}
		c.Next()
	}
}

func (h *AuthHandler) authenticated(c *gin.Context) bool {
	token := tokenFromRequest(c)
	return token != "" && h.tokens.Verify(token)
}

func tokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(CookieName); err == nil && cookie != "" {
		return cookie
	}
	if header := c.GetHeader("Authorization"); len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.Production,
		SameSite: http.SameSiteStrictMode,
	})
}
