package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qr-cipher-bot/internal/adapters/primary/http/dto"
)

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{OK: true})
}
