package domain

import "fmt"

// Bot replies. The bot talks Russian; "ФИО" is a person's full name.
const (
	ReplyAccessDenied  = "Доступ запрещён."
	ReplyUnsupported   = "Пожалуйста, отправьте текст (ФИО) или фото с QR-кодом."
	ReplyEmptyText     = "Отправьте ФИО (текст) или фото с QR-кодом."
	ReplyEncrypted     = "Готово ✅\nВот QR с шифром.\n(Содержимое — зашифрованный токен.)"
	ReplyNoPhoto       = "Фото не найдено."
	ReplyQRNotFound    = "QR-код не найден или не распознан 😕"
	ReplyDecryptFailed = "Не удалось расшифровать. Проверьте ключ или содержимое QR."
	replyDecrypted     = "Успех ✅\nРасшифрованный текст:\n\n%s"
	replyPhotoFailed   = "Ошибка при обработке фото: %v"
)

func ReplyDecrypted(plain string) string {
	return fmt.Sprintf(replyDecrypted, plain)
}

func ReplyPhotoFailed(err error) string {
	return fmt.Sprintf(replyPhotoFailed, err)
}
