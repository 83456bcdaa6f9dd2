package handlers

import (
	"github.com/gin-gonic/gin"

	"qr-cipher-bot/internal/core/services"
	"qr-cipher-bot/internal/metrics"
)

type Handler struct {
	botSvc        *services.BotService
	webhookSecret string
}

// New builds the HTTP handlers. An empty webhookSecret disables the
// X-Telegram-Bot-Api-Secret-Token check.
func New(botSvc *services.BotService, webhookSecret string) *Handler {
	return &Handler{
		botSvc:        botSvc,
		webhookSecret: webhookSecret,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.POST("/webhook", h.Webhook)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
}
