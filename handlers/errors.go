package handlers

import (
	"errors"
	"net/http"

	"tapedeck/services"

	"github.com/gin-gonic/gin"
)

// statusFor maps service errors to HTTP status codes and client messages
func statusFor(err error) (int, string) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, services.ErrNameRequired):
		return http.StatusBadRequest, "Project name required"
	case errors.Is(err, services.ErrInvalidName):
		return http.StatusBadRequest, "Invalid project name"
	case errors.Is(err, services.ErrProjectExists):
		return http.StatusBadRequest, "Project already exists"
	case errors.Is(err, services.ErrProjectNotFound):
		return http.StatusNotFound, "Project not found"
	case errors.Is(err, services.ErrInvalidFilename):
		return http.StatusBadRequest, "Invalid filename"
	case errors.Is(err, services.ErrTrackNotFound):
		return http.StatusNotFound, "Track not found"
	case errors.Is(err, services.ErrNoteTextRequired):
		return http.StatusBadRequest, "Note text required"
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, "Upload too large"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// respondError writes the JSON error body for err
func respondError(c *gin.Context, err error) {
	status, message := statusFor(err)
	body := gin.H{"error": message}
	if status == http.StatusInternalServerError {
		body["details"] = err.Error()
		_ = c.Error(err)
	}
	c.JSON(status, body)
}
