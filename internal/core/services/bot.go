package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"qr-cipher-bot/internal/core/domain"
	output "qr-cipher-bot/internal/core/ports/output"
	"qr-cipher-bot/internal/metrics"
)

const forgetTimeout = 5 * time.Second

// BotService turns text into encrypted QR codes and QR photos back into
// text.
type BotService struct {
	telegram output.TelegramClient
	cipher   output.Cipher
	encoder  output.QREncoder
	decoder  output.QRDecoder
	updates  output.UpdateLog
	access   *AccessPolicy
	throttle *ChatThrottle
	now      func() time.Time
}

// NewBotService wires the bot. updates and throttle are optional.
func NewBotService(
	telegram output.TelegramClient,
	cipher output.Cipher,
	encoder output.QREncoder,
	decoder output.QRDecoder,
	updates output.UpdateLog,
	access *AccessPolicy,
	throttle *ChatThrottle,
) *BotService {
	return &BotService{
		telegram: telegram,
		cipher:   cipher,
		encoder:  encoder,
		decoder:  decoder,
		updates:  updates,
		access:   access,
		throttle: throttle,
		now:      time.Now,
	}
}

func (s *BotService) HandleUpdate(ctx context.Context, u *domain.Update) (domain.Outcome, error) {
	if u == nil {
		return "", domain.ErrInvalidUpdate
	}
	kind := u.Kind()
	logger := log.WithFields(log.Fields{
		"update_id": u.ID,
		"kind":      kind,
	})

	if s.updates != nil {
		rec := domain.ProcessedUpdate{UpdateID: u.ID, Kind: kind, ProcessedAt: s.now()}
		if chat := u.EffectiveChat(); chat != nil {
			rec.ChatID = chat.ID
		}
		first, err := s.updates.MarkProcessed(ctx, rec)
		if err != nil {
			// Fail open: the update is handled without de-duplication.
			logger.WithError(err).Warn("update log unavailable, handling update anyway")
		} else if !first {
			logger.Info("duplicate update skipped")
			metrics.RecordUpdate(string(kind), string(domain.OutcomeDuplicate))
			return domain.OutcomeDuplicate, nil
		}
	}

	outcome, err := s.dispatch(ctx, u)
	if err != nil {
		metrics.RecordUpdate(string(kind), "error")
		if s.updates != nil {
			// The webhook caller may already be gone; the id must still be
			// released so the redelivery is processed.
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), forgetTimeout)
			ferr := s.updates.Forget(fctx, u.ID)
			cancel()
			if ferr != nil {
				logger.WithError(ferr).Warn("forget update failed")
			}
		}
		return "", err
	}

	metrics.RecordUpdate(string(kind), string(outcome))
	logger.WithField("outcome", outcome).Debug("update handled")
	return outcome, nil
}

func (s *BotService) dispatch(ctx context.Context, u *domain.Update) (domain.Outcome, error) {
	if !s.access.Allowed(u.EffectiveUser()) {
		if chat := u.EffectiveChat(); chat != nil {
			if err := s.telegram.SendMessage(ctx, chat.ID, domain.ReplyAccessDenied); err != nil {
				return "", err
			}
		}
		log.WithField("update_id", u.ID).Info("update from user outside allow-list ignored")
		return domain.OutcomeIgnored, nil
	}

	msg := u.EffectiveMessage()
	if msg == nil {
		return domain.OutcomeOK, nil
	}
	if msg.Chat == nil {
		return "", fmt.Errorf("%w: message without chat", domain.ErrInvalidUpdate)
	}
	chatID := msg.Chat.ID

	if s.throttle != nil && !s.throttle.Allow(chatID) {
		log.WithField("chat_id", chatID).Warn("chat throttled")
		return domain.OutcomeThrottled, nil
	}

	var err error
	switch {
	case len(msg.Photo) > 0:
		err = s.handlePhoto(ctx, chatID, msg.Photo)
	case msg.Text != "":
		err = s.handleText(ctx, chatID, msg.Text)
	default:
		err = s.telegram.SendMessage(ctx, chatID, domain.ReplyUnsupported)
	}
	if err != nil {
		return "", err
	}
	return domain.OutcomeOK, nil
}

func (s *BotService) handleText(ctx context.Context, chatID int64, raw string) error {
	text := strings.TrimSpace(raw)
	if text == "" {
		return s.telegram.SendMessage(ctx, chatID, domain.ReplyEmptyText)
	}

	token, err := s.cipher.Encrypt(text)
	metrics.RecordCipher("encrypt", err)
	if err != nil {
		return fmt.Errorf("encrypt text: %w", err)
	}

	png, err := s.encoder.EncodePNG(token)
	if err != nil {
		return fmt.Errorf("render qr: %w", err)
	}

	log.WithFields(log.Fields{
		"chat_id":   chatID,
		"text_len":  len(text),
		"token_len": len(token),
		"png_bytes": len(png),
	}).Info("text encrypted into qr")

	return s.telegram.SendPhoto(ctx, chatID, png, domain.ReplyEncrypted)
}

func (s *BotService) handlePhoto(ctx context.Context, chatID int64, photos []domain.PhotoSize) error {
	if len(photos) == 0 {
		return s.telegram.SendMessage(ctx, chatID, domain.ReplyNoPhoto)
	}
	// Telegram lists sizes smallest first.
	fileID := photos[len(photos)-1].FileID

	plain, err := s.readPhoto(ctx, fileID)
	logger := log.WithField("chat_id", chatID)
	switch {
	case errors.Is(err, domain.ErrQRNotFound):
		logger.Info("no qr code in photo")
		return s.telegram.SendMessage(ctx, chatID, domain.ReplyQRNotFound)
	case errors.Is(err, domain.ErrInvalidToken):
		logger.Info("qr payload failed verification")
		return s.telegram.SendMessage(ctx, chatID, domain.ReplyDecryptFailed)
	case err != nil:
		logger.WithError(err).Warn("photo processing failed")
		return s.telegram.SendMessage(ctx, chatID, domain.ReplyPhotoFailed(err))
	}

	logger.WithField("text_len", len(plain)).Info("qr decrypted")
	return s.telegram.SendMessage(ctx, chatID, domain.ReplyDecrypted(plain))
}

func (s *BotService) readPhoto(ctx context.Context, fileID string) (string, error) {
	data, err := s.telegram.DownloadFile(ctx, fileID)
	if err != nil {
		return "", err
	}

	start := time.Now()
	payload, err := s.decoder.Decode(data)
	metrics.ObserveQRDecode(time.Since(start))
	if err != nil {
		return "", err
	}

	plain, err := s.cipher.Decrypt(payload)
	metrics.RecordCipher("decrypt", err)
	if err != nil {
		return "", err
	}
	return plain, nil
}
