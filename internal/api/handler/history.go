package handler

import (
	"net/http"
	"strconv"

	"github.com/Lexcubia/EM-automate/internal/domain"
	"github.com/Lexcubia/EM-automate/internal/service"
	"github.com/gin-gonic/gin"
)

// HistoryHandler handles run-history endpoints.
type HistoryHandler struct {
	history *service.HistoryService
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(history *service.HistoryService) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// List handles GET /api/v1/history.
func (h *HistoryHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.history.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list history: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// Refresh handles POST /api/v1/history/refresh.
func (h *HistoryHandler) Refresh(c *gin.Context) {
	if err := h.history.Refresh(c.Request.Context()); err != nil {
		respondHistoryError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Clear handles DELETE /api/v1/history.
func (h *HistoryHandler) Clear(c *gin.Context) {
	if err := h.history.Clear(c.Request.Context()); err != nil {
		respondHistoryError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func respondHistoryError(c *gin.Context, err error) {
	if domain.IsTransport(err) {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
