package nullifierstore

import (
	"context"
	"time"
)

// StartPruner launches a background goroutine that calls Prune every
// interval until ctx is cancelled. It is the owned-task replacement for a
// process-wide interval timer: the pruner's lifecycle is tied to whatever
// handle owns ctx (the gossip engine's Destroy cancels it), rather than
// leaking a global timer.
func (s *Store) StartPruner(ctx context.Context, interval, maxAge time.Duration, maxNullifiers int) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				aged, evicted := s.Prune(now, maxAge, maxNullifiers)
				if aged > 0 || evicted > 0 {
					log.Debugf("pruned %d aged, %d hard-cap evicted, %d remaining",
						aged, evicted, s.Len())
				}
			}
		}
	}()
}
