package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"memory-filter/internal/domain"
)

// Health maneja GET /health.
func (h *FilterHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetValves maneja GET /memory/valves.
func (h *FilterHandler) GetValves(c *gin.Context) {
	valves, err := h.valves.Get(c.Request.Context())
	if err != nil {
		h.logger.Warn("valves load failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"valves": valves.Masked()})
}

// UpdateValves maneja POST /memory/valves/update. Una api_key vacía o
// enmascarada conserva la guardada.
func (h *FilterHandler) UpdateValves(c *gin.Context) {
	var req struct {
		Priority   int    `json:"priority" binding:"gte=0"`
		APIKey     string `json:"api_key"`
		APIBaseURL string `json:"api_base_url" binding:"required,url"`
		Debug      bool   `json:"debug"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid valves update request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	current, err := h.valves.Get(c.Request.Context())
	if err != nil {
		h.logger.Warn("valves load failed", zap.Error(err))
	}

	next := domain.Valves{
		Priority:   req.Priority,
		APIKey:     req.APIKey,
		APIBaseURL: req.APIBaseURL,
		Debug:      req.Debug,
	}
	if next.APIKey == "" || next.APIKey == domain.MaskedAPIKey {
		next.APIKey = current.APIKey
	}

	if err := h.valves.Update(c.Request.Context(), next); err != nil {
		h.logger.Error("valves update failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update valves"})
		return
	}

	h.logger.Info("valves updated", zap.Int("priority", next.Priority), zap.Bool("debug", next.Debug))
	c.JSON(http.StatusOK, gin.H{"valves": next.Masked()})
}
