package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/device-license-api/internal/handler/dto"
	"github.com/makkenzo/device-license-api/internal/service"
	"go.uber.org/zap"
)

type AskHandler struct {
	service *service.CompletionService
	logger  *zap.Logger
}

func NewAskHandler(service *service.CompletionService, logger *zap.Logger) *AskHandler {
	return &AskHandler{
		service: service,
		logger:  logger.Named("AskHandler"),
	}
}

func (h *AskHandler) Ask(c *gin.Context) {
	var req dto.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind ask request body", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	answer, outcome, err := h.service.Ask(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !outcome.Valid() {
		c.JSON(http.StatusForbidden, dto.MessageResponse{Message: outcome.Message()})
		return
	}

	c.JSON(http.StatusOK, dto.AskResponse{Answer: answer})
}
