package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"memory-filter/internal/domain"
	"memory-filter/internal/service"
)

// FilterHandler expone el filtro de memoria con el protocolo de pipelines del host.
type FilterHandler struct {
	logger    *zap.Logger
	filter    *service.MemoryFilter
	valves    service.ValvesStore
	publisher *service.RedisStatusPublisher
}

// NewFilterHandler crea el handler. publisher puede ser nil.
func NewFilterHandler(
	logger *zap.Logger,
	filter *service.MemoryFilter,
	valves service.ValvesStore,
	publisher *service.RedisStatusPublisher,
) *FilterHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilterHandler{
		logger:    logger,
		filter:    filter,
		valves:    valves,
		publisher: publisher,
	}
}

type filterRequest struct {
	Body *domain.Payload `json:"body"`
	User domain.User     `json:"user"`
}

// Inlet maneja POST /memory/filter/inlet.
func (h *FilterHandler) Inlet(c *gin.Context) {
	payload, inv, ok := h.bind(c, "inlet")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.filter.Inlet(c.Request.Context(), inv, payload))
}

// Outlet maneja POST /memory/filter/outlet.
func (h *FilterHandler) Outlet(c *gin.Context) {
	payload, inv, ok := h.bind(c, "outlet")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.filter.Outlet(c.Request.Context(), inv, payload))
}

func (h *FilterHandler) bind(c *gin.Context, hook string) (*domain.Payload, service.Invocation, bool) {
	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Body == nil {
		h.logger.Warn("invalid filter request", zap.String("hook", hook), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return nil, service.Invocation{}, false
	}

	user := req.User
	if user.MemoryUserID() == "" {
		if claims, ok := GetAuthClaims(c); ok {
			user = claims.User()
		}
	}

	chatID := req.Body.ChatID()
	inv := service.Invocation{
		User:   user,
		ChatID: chatID,
		Task:   req.Body.IsTask(),
		Status: service.MultiStatusSink{
			service.NewLogStatusSink(h.logger.With(zap.String("hook", hook), zap.String("request_id", GetRequestID(c)))),
			h.publisher.Sink(chatID),
		},
	}
	return req.Body, inv, true
}
