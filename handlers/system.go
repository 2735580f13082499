package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/pasta/models"
)

// SystemHandler handles system endpoints
type SystemHandler struct {
	version string
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(version string) *SystemHandler {
	return &SystemHandler{version: version}
}

// Health handles health check via GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "pasta",
		"version": h.version,
	})
}

// Languages handles GET /api/languages. With ?extension=md it also reports
// the editor mode for that extension.
func (h *SystemHandler) Languages(c *gin.Context) {
	resp := gin.H{"languages": models.SupportedLanguages}
	if ext := c.Query("extension"); ext != "" {
		resp["extension"] = ext
		resp["mode"] = models.LanguageForExtension(ext)
	}
	c.JSON(http.StatusOK, resp)
}
