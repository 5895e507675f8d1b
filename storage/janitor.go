package storage

import (
	"context"
	"log/slog"
	"time"
)

// StartJanitor purges sessions idle for longer than ttl every interval until
// ctx is cancelled.
func StartJanitor(ctx context.Context, p Purger, interval, ttl time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := p.Purge(ctx, time.Now().Add(-ttl))
				if err != nil {
					logger.Error("failed to purge idle sessions", slog.Any("error", err))
					continue
				}
				if removed > 0 {
					logger.Info("purged idle sessions", slog.Int("removed", removed))
				}
			}
		}
	}()
}
