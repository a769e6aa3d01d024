package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"

	"tapedeck/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AudioHandler serves uploaded audio files
type AudioHandler struct {
	projects  services.ProjectService
	inspector services.TrackInspector
	logger    *zap.Logger
}

// NewAudioHandler creates a new audio handler
func NewAudioHandler(ps services.ProjectService, inspector services.TrackInspector, logger *zap.Logger) *AudioHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AudioHandler{
		projects:  ps,
		inspector: inspector,
		logger:    logger,
	}
}

// StreamTrack streams an audio file with support for range requests.
// ?download=1 asks the browser to save it instead.
func (h *AudioHandler) StreamTrack(c *gin.Context) {
	name, filename := c.Param("name"), c.Param("filename")

	fullPath, err := h.projects.TrackPath(name, filename)
	if err != nil {
		if errors.Is(err, services.ErrInvalidFilename) {
			c.JSON(http.StatusForbidden, gin.H{"error": "path traversal not allowed"})
			return
		}
		respondError(c, err)
		return
	}

	fileInfo, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "file not found",
				"path":  filename,
			})
			return
		}
		respondError(c, err)
		return
	}
	if fileInfo.IsDir() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is a directory, not a file"})
		return
	}

	file, err := os.Open(fullPath)
	if err != nil {
		respondError(c, err)
		return
	}
	defer file.Close()

	contentType := h.inspector.ContentType(filename)
	c.Header("Content-Type", contentType)
	c.Header("Accept-Ranges", "bytes")
	c.Header("Cache-Control", "no-cache")
	c.Header("Last-Modified", fileInfo.ModTime().UTC().Format(http.TimeFormat))
	if c.Query("download") != "" {
		c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	}

	if rangeHeader := c.GetHeader("Range"); rangeHeader != "" {
		h.handleRangeRequest(c, file, fileInfo.Size(), rangeHeader, filename)
		return
	}

	c.Header("Content-Length", strconv.FormatInt(fileInfo.Size(), 10))
	c.Status(http.StatusOK)
	if c.Request.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(c.Writer, file); err != nil {
		h.logger.Debug("streaming interrupted", zap.String("file", filename), zap.Error(err))
	}
}

// parseRange parses a single "bytes=start-end", "bytes=start-" or
// "bytes=-suffix" range against size
func parseRange(header string, size int64) (start, end int64, ok bool) {
	if !strings.HasPrefix(header, "bytes=") {
		return 0, 0, false
	}
	ranges := strings.TrimPrefix(header, "bytes=")
	if strings.Contains(ranges, ",") {
		return 0, 0, false
	}
	parts := strings.SplitN(ranges, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}

	var err error
	switch {
	case parts[0] == "":
		suffix, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || suffix <= 0 {
			return 0, 0, false
		}
		if suffix > size {
			suffix = size
		}
		start, end = size-suffix, size-1
	default:
		start, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil || start < 0 {
			return 0, 0, false
		}
		end = size - 1
		if parts[1] != "" {
			end, err = strconv.ParseInt(parts[1], 10, 64)
			if err != nil || end < start {
				return 0, 0, false
			}
		}
	}

	if start >= size {
		return 0, 0, false
	}
	if end >= size {
		end = size - 1
	}
	return start, end, true
}

// handleRangeRequest handles HTTP range requests for seeking
func (h *AudioHandler) handleRangeRequest(c *gin.Context, file *os.File, fileSize int64, rangeHeader, filename string) {
	start, end, ok := parseRange(rangeHeader, fileSize)
	if !ok {
		c.Header("Content-Range", fmt.Sprintf("bytes */%d", fileSize))
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	if _, err := file.Seek(start, io.SeekStart); err != nil {
		respondError(c, err)
		return
	}

	contentLength := end - start + 1
	c.Header("Content-Length", strconv.FormatInt(contentLength, 10))
	c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, fileSize))
	c.Status(http.StatusPartialContent)
	if c.Request.Method == http.MethodHead {
		return
	}

	if _, err := io.CopyN(c.Writer, file, contentLength); err != nil {
		h.logger.Debug("range streaming interrupted",
			zap.String("file", filename),
			zap.Int64("start", start),
			zap.Int64("end", end),
			zap.Error(err))
	}
}
