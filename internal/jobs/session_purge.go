// Package jobs holds background maintenance loops started from main.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/gasanashema/procure-to-pay/internal/repository"
)

// StartSessionPurgeJob deletes expired and revoked refresh sessions on a
// fixed interval. The loop stops when ctx is cancelled.
func StartSessionPurgeJob(ctx context.Context, store repository.Store, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				purged, err := store.PurgeRefreshSessions(tickCtx, time.Now().UTC())
				cancel()
				if err != nil {
					log.Error().Err(err).Msg("session purge failed")
					continue
				}
				if purged > 0 {
					log.Info().Int64("purged", purged).Msg("expired refresh sessions removed")
				}
			}
		}
	}()
}
