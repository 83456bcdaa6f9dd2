package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"qr-cipher-bot/internal/config"
	"qr-cipher-bot/internal/core/domain"
	ports "qr-cipher-bot/internal/core/ports/output"
)

// BotAPI is the part of tgbotapi.BotAPI the client uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
}

type telegramClient struct {
	api          BotAPI
	httpClient   *http.Client
	token        string
	fileEndpoint string
	maxFileBytes int64
}

// NewTelegramClient connects to the Bot API. It calls getMe, so a bad token
// fails here rather than on the first update.
func NewTelegramClient(cfg *config.TelegramConfig) (ports.TelegramClient, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", domain.ErrTelegramAPI, redact(err, cfg.Token))
	}
	log.WithField("bot", api.Self.UserName).Info("telegram bot authorized")

	return NewTelegramClientWithAPI(api, httpClient, cfg), nil
}

// NewTelegramClientWithAPI wraps an existing Bot API handle.
func NewTelegramClientWithAPI(api BotAPI, httpClient *http.Client, cfg *config.TelegramConfig) ports.TelegramClient {
	fileEndpoint := cfg.FileEndpoint
	if fileEndpoint == "" {
		fileEndpoint = tgbotapi.FileEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &telegramClient{
		api:          api,
		httpClient:   httpClient,
		token:        cfg.Token,
		fileEndpoint: fileEndpoint,
		maxFileBytes: cfg.MaxPhotoBytes,
	}
}

func (c *telegramClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("%w: send message: %v", domain.ErrTelegramAPI, redact(err, c.token))
	}
	return nil
}

func (c *telegramClient) SendPhoto(ctx context.Context, chatID int64, png []byte, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "qr.png", Bytes: png})
	photo.Caption = caption
	if _, err := c.api.Send(photo); err != nil {
		return fmt.Errorf("%w: send photo: %v", domain.ErrTelegramAPI, redact(err, c.token))
	}
	return nil
}

func (c *telegramClient) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := c.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("%w: get file: %v", domain.ErrTelegramAPI, redact(err, c.token))
	}
	if c.maxFileBytes > 0 && int64(file.FileSize) > c.maxFileBytes {
		return nil, domain.ErrPhotoTooLarge
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(c.fileEndpoint, c.token, file.FilePath), nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %v", redact(err, c.token))
	}

	log.WithField("file_size", file.FileSize).Debug("downloading telegram file")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: download file: %v", domain.ErrTelegramAPI, redact(err, c.token))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: download file: status %d", domain.ErrTelegramAPI, resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if c.maxFileBytes > 0 {
		body = io.LimitReader(resp.Body, c.maxFileBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: read file: %v", domain.ErrTelegramAPI, redact(err, c.token))
	}
	if c.maxFileBytes > 0 && int64(len(data)) > c.maxFileBytes {
		return nil, domain.ErrPhotoTooLarge
	}
	return data, nil
}

// redact strips request URLs and the bot token from errors. Errors end up in
// logs and in replies to users, and Bot API URLs embed the token.
func redact(err error, token string) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}
	msg := err.Error()
	if token != "" {
		msg = strings.ReplaceAll(msg, token, "<token>")
	}
	return errors.New(msg)
}
