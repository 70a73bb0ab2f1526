package handler

import (
	"errors"
	"net/http"

	"github.com/Lexcubia/EM-automate/internal/domain"
	"github.com/Lexcubia/EM-automate/internal/queue"
	"github.com/gin-gonic/gin"
)

// QueueHandler handles queue mutation and read endpoints.
type QueueHandler struct {
	manager *queue.Manager
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(manager *queue.Manager) *QueueHandler {
	return &QueueHandler{manager: manager}
}

// List handles GET /api/v1/queue.
func (h *QueueHandler) List(c *gin.Context) {
	jobs := h.manager.Jobs()
	c.JSON(http.StatusOK, gin.H{
		"jobs":       jobs,
		"total_runs": h.manager.TotalRuns(),
	})
}

// Add handles POST /api/v1/queue.
func (h *QueueHandler) Add(c *gin.Context) {
	var draft domain.JobDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job payload: " + err.Error()})
		return
	}

	job, err := h.manager.Add(draft)
	if err != nil {
		respondQueueError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// Update handles PATCH /api/v1/queue/:id.
func (h *QueueHandler) Update(c *gin.Context) {
	var upd domain.JobUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update payload: " + err.Error()})
		return
	}

	job, err := h.manager.Update(c.Param("id"), upd)
	if err != nil {
		respondQueueError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// Remove handles DELETE /api/v1/queue/:id.
func (h *QueueHandler) Remove(c *gin.Context) {
	if err := h.manager.Remove(c.Param("id")); err != nil {
		respondQueueError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MoveUp handles POST /api/v1/queue/:id/move-up.
func (h *QueueHandler) MoveUp(c *gin.Context) {
	if err := h.manager.MoveUp(c.Param("id")); err != nil {
		respondQueueError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MoveDown handles POST /api/v1/queue/:id/move-down.
func (h *QueueHandler) MoveDown(c *gin.Context) {
	if err := h.manager.MoveDown(c.Param("id")); err != nil {
		respondQueueError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Clear handles DELETE /api/v1/queue.
func (h *QueueHandler) Clear(c *gin.Context) {
	if err := h.manager.Clear(); err != nil {
		respondQueueError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func respondQueueError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrQueueLocked):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
