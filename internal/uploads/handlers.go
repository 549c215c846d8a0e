// Package uploads handles audio attachments: presigned uploads for music
// tracks and voice messages, and range-aware proxy streaming for playback.
package uploads

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/elgen19/dearly-server/internal/storage"
	"github.com/gin-gonic/gin"
)

// Allowed audio content types for uploads
var allowedContentTypes = map[string]bool{
	"audio/mpeg": true,
	"audio/mp4":  true,
	"audio/wav":  true,
	"audio/webm": true,
	"audio/ogg":  true,
}

// Handlers bundles the upload routes' dependencies
type Handlers struct {
	store  *storage.Client
	logger *slog.Logger
}

// NewHandlers wires the upload routes
func NewHandlers(store *storage.Client, logger *slog.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

type presignRequest struct {
	ContentType string `json:"contentType"`
}

// PresignMusic returns a presigned PUT URL for a music track upload
func (h *Handlers) PresignMusic(c *gin.Context) {
	h.presign(c, "music")
}

// PresignVoice returns a presigned PUT URL for a voice message upload
func (h *Handlers) PresignVoice(c *gin.Context) {
	h.presign(c, "voice")
}

func (h *Handlers) presign(c *gin.Context, prefix string) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audio storage is not configured"})
		return
	}

	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !allowedContentTypes[req.ContentType] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported audio content type"})
		return
	}

	key := storage.RandomKey(prefix)
	url, err := h.store.PresignUpload(c.Request.Context(), key, req.ContentType)
	if err != nil {
		h.logger.Error("Failed to presign upload", "prefix", prefix, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to presign upload"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"key": key, "uploadUrl": url, "expiresIn": int(storage.PresignTTL.Seconds())})
}

// StreamAudio proxies an audio object to the client, passing the Range
// header through so players can seek. Keys are path-shaped, so the route
// uses a wildcard parameter.
func (h *Handlers) StreamAudio(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audio storage is not configured"})
		return
	}

	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" || strings.Contains(key, "..") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid audio key"})
		return
	}

	obj, err := h.store.Get(c.Request.Context(), key, c.GetHeader("Range"))
	if err != nil {
		h.logger.Error("Failed to fetch audio object", "key", key, "error", err.Error())
		c.JSON(http.StatusNotFound, gin.H{"error": "audio not found"})
		return
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Header("Accept-Ranges", "bytes")
	status := http.StatusOK
	if obj.ContentRange != "" {
		c.Header("Content-Range", obj.ContentRange)
		status = http.StatusPartialContent
	}

	c.DataFromReader(status, obj.ContentLength, contentType, obj.Body, map[string]string{
		"Cache-Control": "private, max-age=3600",
	})
}
