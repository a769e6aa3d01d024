package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"tapedeck/metrics"
	"tapedeck/services"
	"tapedeck/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProjectHandler handles the project, upload and note endpoints
type ProjectHandler struct {
	projects  services.ProjectService
	publisher services.EventPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(ps services.ProjectService, pub services.EventPublisher, m *metrics.Metrics, logger *zap.Logger) *ProjectHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectHandler{
		projects:  ps,
		publisher: pub,
		metrics:   m,
		logger:    logger,
	}
}

func (h *ProjectHandler) publish(eventType types.EventType, project, filename string, note *types.Note) {
	if h.publisher == nil {
		return
	}
	h.publisher.Publish(types.ProjectEvent{
		Type:      eventType,
		Project:   project,
		Filename:  filename,
		Note:      note,
		Timestamp: time.Now().UTC(),
	})
}

// ListProjects returns every project with its description
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	projects, err := h.projects.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.Projects.Set(float64(len(projects)))
	}
	c.JSON(http.StatusOK, projects)
}

// CreateProject creates a project directory and its metadata
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req types.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.projects.Create(c.Request.Context(), req.Name, req.Description); err != nil {
		respondError(c, err)
		return
	}

	h.publish(types.EventProjectCreated, strings.TrimSpace(req.Name), "", nil)
	c.JSON(http.StatusCreated, gin.H{"message": "Project created"})
}

// GetProject returns the description, audio file names and notes
func (h *ProjectHandler) GetProject(c *gin.Context) {
	detail, err := h.projects.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, services.ErrProjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// UpdateProject replaces the project description
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	var req types.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Description == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Description required"})
		return
	}

	name := c.Param("name")
	if err := h.projects.UpdateDescription(c.Request.Context(), name, *req.Description); err != nil {
		respondError(c, err)
		return
	}

	h.publish(types.EventProjectUpdated, name, "", nil)
	c.JSON(http.StatusOK, gin.H{"message": "Project updated"})
}

// DeleteProject removes the project and everything in it
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	name := c.Param("name")
	if err := h.projects.Delete(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}

	h.publish(types.EventProjectDeleted, name, "", nil)
	c.JSON(http.StatusOK, gin.H{"message": "Project deleted"})
}

// UploadTrack stores the multipart "file" field under the project's audio folder
func (h *ProjectHandler) UploadTrack(c *gin.Context) {
	name := c.Param("name")

	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "file field required",
			"details": err.Error(),
		})
		return
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer file.Close()

	filename, size, err := h.projects.SaveTrack(c.Request.Context(), name, header.Filename, file)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.Uploads.Inc()
		h.metrics.UploadBytes.Add(float64(size))
	}
	h.publish(types.EventTrackUploaded, name, filename, nil)
	c.JSON(http.StatusOK, gin.H{
		"message":  "Uploaded",
		"filename": filename,
		"size":     size,
	})
}

// DeleteTrack removes one audio file from the project
func (h *ProjectHandler) DeleteTrack(c *gin.Context) {
	name, filename := c.Param("name"), c.Param("filename")
	if err := h.projects.DeleteTrack(c.Request.Context(), name, filename); err != nil {
		respondError(c, err)
		return
	}

	h.publish(types.EventTrackDeleted, name, filename, nil)
	c.JSON(http.StatusOK, gin.H{"message": "Track deleted"})
}

// ListTracks returns inspected metadata for every audio file
func (h *ProjectHandler) ListTracks(c *gin.Context) {
	tracks, err := h.projects.ListTracks(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tracks": tracks,
		"count":  len(tracks),
	})
}

// AddNote appends a timestamped note to the project
func (h *ProjectHandler) AddNote(c *gin.Context) {
	var req types.AddNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Note text required"})
		return
	}

	name := c.Param("name")
	note, err := h.projects.AddNote(c.Request.Context(), name, req.Text, req.Author)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.NotesAdded.Inc()
	}
	h.publish(types.EventNoteAdded, name, "", note)
	c.JSON(http.StatusOK, gin.H{
		"message": "Note added",
		"note":    note,
	})
}
