package tracking

import (
	"context"
	"log"
	"time"
)

// Sweeper periodically deletes tracking data past the retention window.
type Sweeper struct {
	store         Store
	retentionDays int
	interval      time.Duration
}

// NewSweeper creates a retention sweeper over the given store.
func NewSweeper(store Store, retentionDays int, interval time.Duration) *Sweeper {
	return &Sweeper{store: store, retentionDays: retentionDays, interval: interval}
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("Starting retention sweeper (retention %d days, every %s)", s.retentionDays, s.interval)

	s.sweep(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Retention sweeper shutting down.")
			return
		case <-timer.C:
			s.sweep(ctx)
			timer.Reset(s.interval)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if err := s.store.Cleanup(ctx, s.retentionDays, time.Now()); err != nil {
		log.Printf("Retention cleanup failed: %v", err)
	}
}
