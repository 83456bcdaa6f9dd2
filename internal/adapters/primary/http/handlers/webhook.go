package handlers

import (
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"qr-cipher-bot/internal/adapters/primary/http/dto"
	"qr-cipher-bot/internal/adapters/primary/http/middleware"
	"qr-cipher-bot/internal/core/domain"
)

const (
	headerSecretToken = "X-Telegram-Bot-Api-Secret-Token"
	maxUpdateBytes    = 1 << 20
)

func (h *Handler) Webhook(c *gin.Context) {
	if !h.secretMatches(c.GetHeader(headerSecretToken)) {
		log.WithField("request_id", middleware.GetRequestID(c)).Warn("webhook call with bad secret token")
		mapDomainError(c, domain.ErrBadSecretToken)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxUpdateBytes))
	if err != nil {
		mapDomainError(c, domain.ErrInvalidUpdate)
		return
	}

	update, err := dto.DecodeUpdate(body)
	if err != nil {
		log.WithError(err).Debug("rejecting webhook body")
		mapDomainError(c, err)
		return
	}

	outcome, err := h.botSvc.HandleUpdate(c.Request.Context(), update)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"update_id":  update.ID,
			"request_id": middleware.GetRequestID(c),
		}).Error("handle update failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.WebhookResponse{Status: string(outcome)})
}

func (h *Handler) secretMatches(got string) bool {
	if h.webhookSecret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) == 1
}
