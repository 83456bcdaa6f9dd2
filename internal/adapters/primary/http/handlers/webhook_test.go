package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"qr-cipher-bot/internal/core/domain"
	"qr-cipher-bot/internal/core/services"
	"qr-cipher-bot/internal/testutil"
)

const testSecret = "s3cret"

type handlerMocks struct {
	tg      *testutil.MockTelegramClient
	cipher  *testutil.MockCipher
	encoder *testutil.MockQREncoder
	decoder *testutil.MockQRDecoder
	updates *testutil.MockUpdateLog
}

func setupRouter(secret string) (*handlerMocks, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	m := &handlerMocks{
		tg:      new(testutil.MockTelegramClient),
		cipher:  new(testutil.MockCipher),
		encoder: new(testutil.MockQREncoder),
		decoder: new(testutil.MockQRDecoder),
		updates: new(testutil.MockUpdateLog),
	}
	bot := services.NewBotService(m.tg, m.cipher, m.encoder, m.decoder, m.updates, services.NewAccessPolicy(nil), nil)

	h := New(bot, secret)
	r := gin.New()
	h.RegisterRoutes(r)
	return m, r
}

func postUpdate(r *gin.Engine, secret string, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(headerSecretToken, secret)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

const textBody = `{
	"update_id": 1001,
	"message": {
		"message_id": 5,
		"date": 1700000000,
		"chat": {"id": 42, "type": "private"},
		"from": {"id": 7, "is_bot": false, "first_name": "A", "username": "alice"},
		"text": "hello"
	}
}`

func TestHealth(t *testing.T) {
	_, r := setupRouter(testSecret)

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["ok"])
}

func TestMetricsEndpoint(t *testing.T) {
	_, r := setupRouter("")

	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestWebhook_BadSecret(t *testing.T) {
	m, r := setupRouter(testSecret)

	w := postUpdate(r, "wrong", textBody)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bad secret token", decodeBody(t, w)["error"])
	m.updates.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
}

func TestWebhook_MissingSecret(t *testing.T) {
	_, r := setupRouter(testSecret)

	w := postUpdate(r, "", textBody)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhook_InvalidJSON(t *testing.T) {
	_, r := setupRouter(testSecret)

	w := postUpdate(r, testSecret, `{not json`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid Telegram update", decodeBody(t, w)["error"])
}

func TestWebhook_MissingUpdateID(t *testing.T) {
	_, r := setupRouter(testSecret)

	w := postUpdate(r, testSecret, `{"message": {"message_id": 1}}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_TextEncrypted(t *testing.T) {
	m, r := setupRouter(testSecret)
	png := []byte{0x89, 'P', 'N', 'G'}

	m.updates.On("MarkProcessed", mock.Anything, mock.MatchedBy(func(u domain.ProcessedUpdate) bool {
		return u.UpdateID == 1001 && u.ChatID == 42 && u.Kind == domain.UpdateKindText
	})).Return(true, nil)
	m.cipher.On("Encrypt", "hello").Return("gAAAAtoken", nil)
	m.encoder.On("EncodePNG", "gAAAAtoken").Return(png, nil)
	m.tg.On("SendPhoto", mock.Anything, int64(42), png, domain.ReplyEncrypted).Return(nil)

	w := postUpdate(r, testSecret, textBody)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
	m.tg.AssertExpectations(t)
}

func TestWebhook_NoSecretConfigured(t *testing.T) {
	m, r := setupRouter("")

	m.updates.On("MarkProcessed", mock.Anything, mock.Anything).Return(true, nil)
	m.cipher.On("Encrypt", "hello").Return("tok", nil)
	m.encoder.On("EncodePNG", "tok").Return([]byte("png"), nil)
	m.tg.On("SendPhoto", mock.Anything, int64(42), []byte("png"), domain.ReplyEncrypted).Return(nil)

	w := postUpdate(r, "", textBody)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_Duplicate(t *testing.T) {
	m, r := setupRouter(testSecret)

	m.updates.On("MarkProcessed", mock.Anything, mock.Anything).Return(false, nil)

	w := postUpdate(r, testSecret, textBody)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "duplicate", decodeBody(t, w)["status"])
	m.cipher.AssertNotCalled(t, "Encrypt", mock.Anything)
}

func TestWebhook_UpdateWithoutMessage(t *testing.T) {
	m, r := setupRouter(testSecret)

	m.updates.On("MarkProcessed", mock.Anything, mock.Anything).Return(true, nil)

	w := postUpdate(r, testSecret, `{"update_id": 7}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func TestWebhook_TelegramFailure(t *testing.T) {
	m, r := setupRouter(testSecret)

	m.updates.On("MarkProcessed", mock.Anything, mock.Anything).Return(true, nil)
	m.updates.On("Forget", mock.Anything, 1001).Return(nil)
	m.cipher.On("Encrypt", "hello").Return("tok", nil)
	m.encoder.On("EncodePNG", "tok").Return([]byte("png"), nil)
	m.tg.On("SendPhoto", mock.Anything, int64(42), []byte("png"), domain.ReplyEncrypted).
		Return(domain.ErrTelegramAPI)

	w := postUpdate(r, testSecret, textBody)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	m.updates.AssertCalled(t, "Forget", mock.Anything, 1001)
}

func TestWebhook_InternalError(t *testing.T) {
	m, r := setupRouter(testSecret)

	m.updates.On("MarkProcessed", mock.Anything, mock.Anything).Return(true, nil)
	m.updates.On("Forget", mock.Anything, 1001).Return(nil)
	m.cipher.On("Encrypt", "hello").Return("", errors.New("boom"))

	w := postUpdate(r, testSecret, textBody)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decodeBody(t, w)["error"])
}
