package memory

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"qr-cipher-bot/internal/core/domain"
	ports "qr-cipher-bot/internal/core/ports/output"
)

type updateLog struct {
	mu   sync.Mutex
	seen *expirable.LRU[int, domain.ProcessedUpdate]
}

// NewUpdateLog keeps the last size update ids for at most ttl. It is the
// fallback when no database is configured; state is lost on restart.
func NewUpdateLog(size int, ttl time.Duration) ports.UpdateLog {
	if size <= 0 {
		size = 10000
	}
	return &updateLog{seen: expirable.NewLRU[int, domain.ProcessedUpdate](size, nil, ttl)}
}

func (l *updateLog) MarkProcessed(_ context.Context, u domain.ProcessedUpdate) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seen.Contains(u.UpdateID) {
		return false, nil
	}
	l.seen.Add(u.UpdateID, u)
	return true, nil
}

func (l *updateLog) Forget(_ context.Context, updateID int) error {
	l.seen.Remove(updateID)
	return nil
}
