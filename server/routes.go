package server

import (
	"net/http"

	"tapedeck/handlers"

	"github.com/gin-gonic/gin"
)

type routeHandlers struct {
	projects *handlers.ProjectHandler
	audio    *handlers.AudioHandler
	events   *handlers.EventHandler
	health   *handlers.HealthHandler
	web      *handlers.WebHandler
	metrics  http.Handler
}

// setupRoutes configures all the HTTP routes
func setupRoutes(r *gin.Engine, h routeHandlers, uploadLimit gin.HandlerFunc) {
	r.GET("/health", h.health.HealthCheck)
	r.GET("/metrics", gin.WrapH(h.metrics))

	// Browser client
	r.GET("/", h.web.Index)
	r.GET("/app.js", h.web.Asset("app.js"))
	r.GET("/style.css", h.web.Asset("style.css"))

	// Uploaded audio
	r.GET("/project-data/:name/audio/:filename", h.audio.StreamTrack)
	r.HEAD("/project-data/:name/audio/:filename", h.audio.StreamTrack)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/status", h.health.APIStatus)

		projectsGroup := apiGroup.Group("/projects")
		{
			projectsGroup.GET("", h.projects.ListProjects)
			projectsGroup.POST("", h.projects.CreateProject)
			projectsGroup.GET("/:name", h.projects.GetProject)
			projectsGroup.PATCH("/:name", h.projects.UpdateProject)
			projectsGroup.DELETE("/:name", h.projects.DeleteProject)

			projectsGroup.POST("/:name/upload", uploadLimit, h.projects.UploadTrack)
			projectsGroup.GET("/:name/tracks", h.projects.ListTracks)
			projectsGroup.DELETE("/:name/audio/:filename", h.projects.DeleteTrack)
			projectsGroup.POST("/:name/notes", h.projects.AddNote)
		}

		// WebSocket endpoints for project change events
		wsGroup := apiGroup.Group("/ws")
		{
			wsGroup.GET("/projects", h.events.SubscribeAll)
			wsGroup.GET("/projects/:name", h.events.SubscribeProject)
		}
	}
}
