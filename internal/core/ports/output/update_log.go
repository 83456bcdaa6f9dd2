package ports

import (
	"context"

	"qr-cipher-bot/internal/core/domain"
)

// UpdateLog remembers which updates were already handled so webhook
// redeliveries are not processed twice.
type UpdateLog interface {
	// MarkProcessed records the update and reports whether it was seen for
	// the first time.
	MarkProcessed(ctx context.Context, u domain.ProcessedUpdate) (bool, error)

	// Forget removes an update so a redelivery is handled again.
	Forget(ctx context.Context, updateID int) error
}
