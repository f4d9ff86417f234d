package engram

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// startAutoConsolidate runs a background goroutine that fires consolidation
// on a wall-clock interval. Grounded on the teacher's startDecayWorker
// ticker-plus-cancelFunc shape, generalized from a single decay sweep to a
// full consolidation pass; the store's mutex makes this trigger and the
// write-threshold trigger in remember/process mutually exclusive for any
// given tick, per §5.
func (s *Store) startAutoConsolidate(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelTimer = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				if len(s.memories) > 0 {
					report, err := s.consolidateLocked(ctx)
					if err != nil {
						s.logger.Debug("auto-consolidate failed", zap.Error(err))
					} else {
						s.logger.Debug("auto-consolidate",
							zap.Int("merged", report.MemoriesMerged),
							zap.Int("archived", report.MemoriesArchived),
							zap.Int("decayed", report.MemoriesDecayed))
					}
				}
				s.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()
}
