package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/johnwmail/pasta/config"
	"github.com/johnwmail/pasta/internal/common"
	"github.com/johnwmail/pasta/internal/server"
	"github.com/johnwmail/pasta/internal/services"
	"github.com/johnwmail/pasta/internal/slug"
	"github.com/johnwmail/pasta/models"
	"github.com/johnwmail/pasta/utils"
)

// Room for multipart boundaries and JSON string escaping on top of the
// content limit.
const bodyOverhead = 1 << 20

// FilesHandler serves the artifact API
type FilesHandler struct {
	service *services.ArtifactService
	config  *config.Config
}

// NewFilesHandler creates a new files handler
func NewFilesHandler(service *services.ArtifactService, cfg *config.Config) *FilesHandler {
	return &FilesHandler{
		service: service,
		config:  cfg,
	}
}

// fileResponse is a single artifact with its content, as returned by Read.
type fileResponse struct {
	Identifier string    `json:"identifier"`
	Filename   string    `json:"filename"`
	Extension  string    `json:"extension"`
	Language   string    `json:"language"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Content    string    `json:"content"`
}

type createJSONRequest struct {
	Filename *string `json:"filename"`
	Content  *string `json:"content"`
}

type updateJSONRequest struct {
	Filename *string `json:"filename"`
	Content  *string `json:"content"`
}

// List handles GET /api/files
func (h *FilesHandler) List(c *gin.Context) {
	list, err := h.service.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Create handles POST /api/files. Multipart bodies take precedence: either a
// "file" part, or "filename" and "content" fields. Anything else is read as
// JSON {filename, content}.
func (h *FilesHandler) Create(c *gin.Context) {
	h.limitBody(c)

	var (
		req services.CreateArtifactRequest
		err error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		req, err = h.readMultipart(c)
	} else {
		req, err = readCreateJSON(c)
	}
	if err != nil {
		writeError(c, bodyError(err))
		return
	}

	a, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	server.LoggerFrom(c.Request.Context()).Info("Artifact created",
		"identifier", a.Identifier,
		"extension", a.Extension,
		"size", len(a.Content))

	c.JSON(http.StatusCreated, gin.H{
		"identifier": a.Identifier,
		"filename":   a.Filename,
		"extension":  a.Extension,
	})
}

func (h *FilesHandler) readMultipart(c *gin.Context) (services.CreateArtifactRequest, error) {
	var req services.CreateArtifactRequest
	if err := c.Request.ParseMultipartForm(h.config.MaxContentSize + bodyOverhead); err != nil {
		return req, err
	}
	form := c.Request.MultipartForm

	if files := form.File["file"]; len(files) > 0 {
		content, err := readFormFile(files[0], h.config.MaxContentSize)
		if err != nil {
			return req, err
		}
		req.Filename = files[0].Filename
		req.Content = content
		return req, nil
	}

	names, contents := form.Value["filename"], form.Value["content"]
	if len(names) == 0 || names[0] == "" || len(contents) == 0 {
		return req, fmt.Errorf("missing file or filename+content: %w", common.ErrValidation)
	}
	req.Filename = names[0]
	req.Content = []byte(contents[0])
	return req, nil
}

// readFormFile reads at most limit+1 bytes so an oversized part is detected
// without buffering all of it.
func readFormFile(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	if fh.Size > limit {
		return nil, fmt.Errorf("%d bytes exceeds %d: %w", fh.Size, limit, common.ErrSizeLimit)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = f.Close() }()

	content, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return content, nil
}

func readCreateJSON(c *gin.Context) (services.CreateArtifactRequest, error) {
	var req services.CreateArtifactRequest
	var body createJSONRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
		return req, err
	}
	if body.Filename == nil || *body.Filename == "" {
		return req, fmt.Errorf("missing filename: %w", common.ErrValidation)
	}
	req.Filename = *body.Filename
	req.Content = []byte{}
	if body.Content != nil {
		req.Content = []byte(*body.Content)
	}
	return req, nil
}

// Read handles GET /api/files/:id
func (h *FilesHandler) Read(c *gin.Context) {
	a, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, fileResponse{
		Identifier: a.Identifier,
		Filename:   a.Filename,
		Extension:  a.Extension,
		Language:   models.LanguageForExtension(a.Extension),
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
		Content:    string(a.Content),
	})
}

// Raw handles GET /raw/:id
func (h *FilesHandler) Raw(c *gin.Context) {
	a, ok := h.load(c)
	if !ok {
		return
	}
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", a.Filename))
	c.Data(http.StatusOK, utils.SafeRawContentType(a.Filename, a.Content), a.Content)
}

// load reads an artifact for the read endpoints. A row whose content is gone
// is served with empty content unless strict_content is set.
func (h *FilesHandler) load(c *gin.Context) (*models.Artifact, bool) {
	id := c.Param("id")
	if !slug.Valid(id) {
		writeError(c, fmt.Errorf("artifact %q: %w", id, common.ErrNotFound))
		return nil, false
	}

	a, err := h.service.Read(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrContentMissing) && !h.config.StrictContent {
			c.Header("X-Content-Missing", "true")
			return a, true
		}
		writeError(c, err)
		return nil, false
	}
	return a, true
}

// Update handles PUT /api/files/:id with a partial JSON body.
func (h *FilesHandler) Update(c *gin.Context) {
	id := c.Param("id")
	if !slug.Valid(id) {
		writeError(c, fmt.Errorf("artifact %q: %w", id, common.ErrNotFound))
		return
	}
	h.limitBody(c)

	var body updateJSONRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
		writeError(c, bodyError(err))
		return
	}

	req := services.UpdateArtifactRequest{Filename: body.Filename}
	if body.Content != nil {
		req.Content = []byte(*body.Content)
	}
	if _, err := h.service.Update(c.Request.Context(), id, req); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete handles DELETE /api/files/:id
func (h *FilesHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if !slug.Valid(id) {
		writeError(c, fmt.Errorf("artifact %q: %w", id, common.ErrNotFound))
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	server.LoggerFrom(c.Request.Context()).Info("Artifact deleted", "identifier", id)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// QRCode handles GET /api/files/:id/qr, a PNG of the artifact's share URL.
func (h *FilesHandler) QRCode(c *gin.Context) {
	id := c.Param("id")
	if !slug.Valid(id) {
		writeError(c, fmt.Errorf("artifact %q: %w", id, common.ErrNotFound))
		return
	}
	if _, err := h.service.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	shareURL := server.DeriveBaseURL(h.config.URL, c.Request) + "/" + id
	qr, err := qrcode.New(shareURL, qrcode.Medium)
	if err != nil {
		writeError(c, fmt.Errorf("create qr code: %w", err))
		return
	}
	png, err := qr.PNG(h.qrSize())
	if err != nil {
		writeError(c, fmt.Errorf("encode qr code: %w", err))
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *FilesHandler) qrSize() int {
	if h.config.QRSize <= 0 {
		return 256
	}
	return h.config.QRSize
}

func (h *FilesHandler) limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.MaxContentSize+bodyOverhead)
}

// bodyError classifies request body decoding failures.
func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return fmt.Errorf("request body too large: %w", common.ErrSizeLimit)
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrSizeLimit):
		return err
	case errors.Is(err, io.EOF):
		return fmt.Errorf("empty request body: %w", common.ErrValidation)
	default:
		return fmt.Errorf("invalid request body: %w", common.ErrValidation)
	}
}
