package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Purger — хранилище, которое умеет удалять закрытые заявки (postgres).
// Redis чистит себя сам через TTL ключей.
type Purger interface {
	PurgeResolved(ctx context.Context, before time.Time) (int64, error)
}

// RunRetention раз в interval удаляет заявки, закрытые раньше now-retention.
// Блокируется до отмены ctx.
func RunRetention(ctx context.Context, p Purger, retention, interval time.Duration, logger *zap.Logger) {
	if retention <= 0 {
		return
	}
	logger = logger.Named("retention")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		purgeOnce(ctx, p, retention, logger)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func purgeOnce(ctx context.Context, p Purger, retention time.Duration, logger *zap.Logger) {
	before := time.Now().Add(-retention)
	n, err := p.PurgeResolved(ctx, before)
	if err != nil {
		logger.Warn("failed to purge resolved approvals", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info("purged resolved approvals", zap.Int64("count", n), zap.Time("before", before))
	}
}
