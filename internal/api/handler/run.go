package handler

import (
	"errors"
	"net/http"

	"github.com/Lexcubia/EM-automate/internal/api/middleware"
	"github.com/Lexcubia/EM-automate/internal/domain"
	"github.com/Lexcubia/EM-automate/internal/events"
	"github.com/Lexcubia/EM-automate/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin filtering happens in the CORS middleware
		return true
	},
}

// RunHandler handles run-control and status endpoints.
type RunHandler struct {
	controller *service.Controller
	hub        *events.Hub
}

// NewRunHandler creates a new run handler.
func NewRunHandler(controller *service.Controller, hub *events.Hub) *RunHandler {
	return &RunHandler{controller: controller, hub: hub}
}

// Start handles POST /api/v1/run/start.
func (h *RunHandler) Start(c *gin.Context) {
	if err := h.controller.Start(c.Request.Context()); err != nil {
		respondRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.controller.Status())
}

// Stop handles POST /api/v1/run/stop.
func (h *RunHandler) Stop(c *gin.Context) {
	if err := h.controller.Stop(c.Request.Context()); err != nil {
		respondRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.controller.Status())
}

// Pause handles POST /api/v1/run/pause.
func (h *RunHandler) Pause(c *gin.Context) {
	if err := h.controller.Pause(c.Request.Context()); err != nil {
		respondRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.controller.Status())
}

// Resume handles POST /api/v1/run/resume.
func (h *RunHandler) Resume(c *gin.Context) {
	if err := h.controller.Resume(c.Request.Context()); err != nil {
		respondRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.controller.Status())
}

// Status handles GET /api/v1/run/status.
func (h *RunHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Status())
}

// Events handles GET /api/v1/run/events: a websocket stream of controller
// state, progress, and notice events.
func (h *RunHandler) Events(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Warn("Websocket upgrade failed")
		return
	}
	h.hub.Subscribe(conn)
	defer func() {
		h.hub.Unsubscribe(conn)
		conn.Close()
	}()

	// Push the current status immediately so new subscribers do not wait
	// for the next transition. The write goes through the hub so it cannot
	// interleave with a concurrent broadcast on the same connection.
	status := h.controller.Status()
	snap := status.Snapshot
	h.hub.Send(conn, events.Event{
		Type:     events.TypeState,
		State:    status.State,
		Snapshot: &snap,
	})

	// Subscribers are read-only; the read loop only detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func respondRunError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyQueue),
		errors.Is(err, domain.ErrAlreadyRunning),
		errors.Is(err, domain.ErrNotRunning):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case domain.IsRejection(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case domain.IsTransport(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
