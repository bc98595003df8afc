package handlers

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

const maxThumbnailBytes = 5 << 20

var thumbnailExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

// ObjectStore accepts thumbnail uploads and resolves their keys.
type ObjectStore interface {
	Upload(r io.Reader, filename string) (string, error)
	PublicURL(key string) string
}

type ThumbnailHandler struct {
	store ObjectStore
}

func NewThumbnailHandler(store ObjectStore) *ThumbnailHandler {
	return &ThumbnailHandler{store: store}
}

func (h *ThumbnailHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	if fh.Size > maxThumbnailBytes {
		badRequest(c, fmt.Sprintf("file exceeds %d bytes", maxThumbnailBytes))
		return
	}
	if ext := strings.ToLower(filepath.Ext(fh.Filename)); !thumbnailExts[ext] {
		badRequest(c, fmt.Sprintf("unsupported file type %q", ext))
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()

	key, err := h.store.Upload(io.LimitReader(f, maxThumbnailBytes), fh.Filename)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": statusOK, "key": key, "url": h.store.PublicURL(key)})
}
