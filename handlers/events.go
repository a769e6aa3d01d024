package handlers

import (
	"net/http"

	"tapedeck/services"
	"tapedeck/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EventHandler upgrades connections that subscribe to project events
type EventHandler struct {
	hub      websocket.Hub
	projects services.ProjectService
	logger   *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler(hub websocket.Hub, ps services.ProjectService, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{hub: hub, projects: ps, logger: logger}
}

// SubscribeProject streams events for a single project
func (h *EventHandler) SubscribeProject(c *gin.Context) {
	name := c.Param("name")
	if _, err := h.projects.Get(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}
	h.subscribe(c, name)
}

// SubscribeAll streams events for every project
func (h *EventHandler) SubscribeAll(c *gin.Context) {
	h.subscribe(c, websocket.AllProjects)
}

func (h *EventHandler) subscribe(c *gin.Context, topic string) {
	conn, err := websocket.Upgrade(c.Writer, c.Request)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		if !c.Writer.Written() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "websocket upgrade required"})
		}
		return
	}

	client := websocket.NewClient(h.hub, conn, topic, h.logger)
	h.hub.RegisterClient(client)
	client.StartPumps()
}
