package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"qr-cipher-bot/internal/core/domain"
)

// MockTelegramClient is a mock of TelegramClient.
type MockTelegramClient struct {
	mock.Mock
}

func (m *MockTelegramClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	args := m.Called(ctx, chatID, text)
	return args.Error(0)
}

func (m *MockTelegramClient) SendPhoto(ctx context.Context, chatID int64, png []byte, caption string) error {
	args := m.Called(ctx, chatID, png, caption)
	return args.Error(0)
}

func (m *MockTelegramClient) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// MockCipher is a mock of Cipher.
type MockCipher struct {
	mock.Mock
}

func (m *MockCipher) Encrypt(plain string) (string, error) {
	args := m.Called(plain)
	return args.String(0), args.Error(1)
}

func (m *MockCipher) Decrypt(token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}

// MockQREncoder is a mock of QREncoder.
type MockQREncoder struct {
	mock.Mock
}

func (m *MockQREncoder) EncodePNG(payload string) ([]byte, error) {
	args := m.Called(payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// MockQRDecoder is a mock of QRDecoder.
type MockQRDecoder struct {
	mock.Mock
}

func (m *MockQRDecoder) Decode(data []byte) (string, error) {
	args := m.Called(data)
	return args.String(0), args.Error(1)
}

// MockUpdateLog is a mock of UpdateLog.
type MockUpdateLog struct {
	mock.Mock
}

func (m *MockUpdateLog) MarkProcessed(ctx context.Context, u domain.ProcessedUpdate) (bool, error) {
	args := m.Called(ctx, u)
	return args.Bool(0), args.Error(1)
}

func (m *MockUpdateLog) Forget(ctx context.Context, updateID int) error {
	args := m.Called(ctx, updateID)
	return args.Error(0)
}
