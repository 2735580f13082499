package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/pasta/internal/common"
	"github.com/johnwmail/pasta/internal/server"
)

// Messages exposed to clients for errors whose detail must stay server-side.
const (
	msgNotFound      = "Not found"
	msgUnauthorized  = "Unauthorized"
	msgThrottled     = "Too many login attempts. Try again in a minute."
	msgMisconfigured = "Server misconfigured"
	msgInternal      = "Internal server error"
)

// statusFor maps an error kind to its HTTP status and client message.
// Validation and size errors carry their own message; everything else is
// replaced by a fixed one.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrAuth):
		return http.StatusUnauthorized, msgUnauthorized
	case errors.Is(err, common.ErrContentMissing):
		return http.StatusNotFound, "Content missing"
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, msgNotFound
	case errors.Is(err, common.ErrSizeLimit):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests, msgThrottled
	case errors.Is(err, common.ErrConfiguration):
		return http.StatusInternalServerError, msgMisconfigured
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// writeError writes the JSON error body for err and logs server-side failures.
func writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		server.LoggerFrom(c.Request.Context()).Error("request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err)
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg})
}
