package view

// resync.go heals views that missed a broadcast. Every failed push marks
// its view stale; this loop re-broadcasts on a fixed interval while any
// live view is stale, so a view that recovers catches up without waiting
// for the next edit.

import (
	"context"
	"time"
)

// RunResync blocks, re-broadcasting every interval while some live view is
// stale. It returns when ctx is cancelled.
func (m *SyncManager) RunResync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	m.logger.Info("view resync started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("view resync stopped")
			return
		case <-ticker.C:
			if !m.Stale() {
				continue
			}
			start := time.Now()
			res := m.Broadcast(ctx)
			m.logger.Info("resync broadcast completed",
				"delivered", len(res.Delivered),
				"failed", len(res.Failed),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
	}
}
