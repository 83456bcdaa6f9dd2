package ports

import "context"

// TelegramClient defines the contract for Bot API calls the bot makes.
type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error

	// SendPhoto uploads a PNG with an optional caption.
	SendPhoto(ctx context.Context, chatID int64, png []byte, caption string) error

	// DownloadFile resolves a file id and returns the file contents.
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}
