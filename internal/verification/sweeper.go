// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package verification

import (
	"context"
	"log/slog"
	"time"
)

// Run sweeps expired entries every SweepInterval until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.opts.SweepInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Debug("verification sweeper started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("verification sweeper stopped")
			return
		case <-ticker.C:
			codes, counters := s.SweepExpired()
			if codes > 0 || counters > 0 {
				slog.Debug("verification sweep",
					"codes_removed", codes,
					"counters_removed", counters,
				)
			}
		}
	}
}

// Start runs the sweeper in its own goroutine. The returned stop function
// cancels it and waits for it to exit.
func (s *Store) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	return func() {
		cancel()
		<-done
	}
}
