package handlers

import (
	"io/fs"
	"mime"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
)

// WebHandler serves the embedded browser client
type WebHandler struct {
	assets fs.FS
}

// NewWebHandler creates a new web handler over assets
func NewWebHandler(assets fs.FS) *WebHandler {
	return &WebHandler{assets: assets}
}

// Index serves index.html
func (h *WebHandler) Index(c *gin.Context) {
	h.serve(c, "index.html")
}

// Asset serves a top-level client file such as app.js
func (h *WebHandler) Asset(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.serve(c, name)
	}
}

func (h *WebHandler) serve(c *gin.Context, name string) {
	data, err := fs.ReadFile(h.assets, name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, data)
}
