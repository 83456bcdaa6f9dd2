package dto

import (
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"qr-cipher-bot/internal/core/domain"
)

type WebhookResponse struct {
	Status string `json:"status"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}

// DecodeUpdate parses a webhook body. The body must be a JSON object with an
// integer update_id.
func DecodeUpdate(body []byte) (*domain.Update, error) {
	var head struct {
		UpdateID *int `json:"update_id"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidUpdate, err)
	}
	if head.UpdateID == nil {
		return nil, fmt.Errorf("%w: missing update_id", domain.ErrInvalidUpdate)
	}

	var u tgbotapi.Update
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidUpdate, err)
	}
	return ToDomainUpdate(&u), nil
}

func ToDomainUpdate(u *tgbotapi.Update) *domain.Update {
	out := &domain.Update{
		ID:                u.UpdateID,
		Message:           toDomainMessage(u.Message),
		EditedMessage:     toDomainMessage(u.EditedMessage),
		ChannelPost:       toDomainMessage(u.ChannelPost),
		EditedChannelPost: toDomainMessage(u.EditedChannelPost),
	}
	switch {
	case u.CallbackQuery != nil:
		out.CallbackFrom = toDomainUser(u.CallbackQuery.From)
	case u.InlineQuery != nil:
		out.CallbackFrom = toDomainUser(u.InlineQuery.From)
	}
	return out
}

func toDomainMessage(m *tgbotapi.Message) *domain.Message {
	if m == nil {
		return nil
	}
	msg := &domain.Message{
		ID:   m.MessageID,
		From: toDomainUser(m.From),
		Text: m.Text,
	}
	if m.Chat != nil {
		msg.Chat = &domain.Chat{ID: m.Chat.ID}
	}
	if len(m.Photo) > 0 {
		msg.Photo = make([]domain.PhotoSize, 0, len(m.Photo))
		for _, p := range m.Photo {
			msg.Photo = append(msg.Photo, domain.PhotoSize{
				FileID:   p.FileID,
				Width:    p.Width,
				Height:   p.Height,
				FileSize: p.FileSize,
			})
		}
	}
	return msg
}

func toDomainUser(u *tgbotapi.User) *domain.User {
	if u == nil {
		return nil
	}
	return &domain.User{ID: u.ID, Username: u.UserName}
}
