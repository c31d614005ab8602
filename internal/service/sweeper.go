package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"convo-search/internal/repository"
)

// RunSessionSweeper libera la memoria de sesiones vencidas cada interval hasta
// que ctx termina. La expiración no depende de este barrido.
func RunSessionSweeper(ctx context.Context, store repository.SessionStore, interval time.Duration, logger *zap.Logger) {
	if store == nil || interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := store.EvictExpired(ctx); removed > 0 {
				logger.Debug("expired sessions evicted",
					zap.Int("removed", removed),
					zap.Int("remaining", store.Len()),
				)
			}
		}
	}
}
