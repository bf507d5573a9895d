package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"posagent/internal/repository"
	"posagent/internal/service"
)

type RouteHandler struct {
	dispatcher *service.Dispatcher
}

func NewRouteHandler(dispatcher *service.Dispatcher) *RouteHandler {
	return &RouteHandler{
		dispatcher: dispatcher,
	}
}

// RouteMessage handles POST /route
func (h *RouteHandler) RouteMessage(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty message"})
		return
	}

	result, err := h.dispatcher.Route(c.Request.Context(), message)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":  "task not found",
				"intent": result.Intent,
			})
		case errors.Is(err, repository.ErrPersistence):
			c.JSON(http.StatusBadGateway, gin.H{
				"error":  "failed to persist task record",
				"detail": err.Error(),
				"intent": result.Intent,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}
