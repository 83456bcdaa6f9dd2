package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"qr-cipher-bot/internal/core/domain"
)

func mapDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrBadSecretToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Bad secret token"})

	case errors.Is(err, domain.ErrInvalidUpdate):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid Telegram update"})

	case errors.Is(err, domain.ErrTelegramAPI):
		c.JSON(http.StatusBadGateway, gin.H{"error": "telegram api unavailable"})

	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
