package app

import (
	"context"
	"time"

	"github.com/tutorlink/api/internal/service"
	"github.com/tutorlink/api/pkg/logger"
)

// Sweeper periodically expires undecided bookings whose slot has passed and
// flags sessions whose window elapsed without a start. Both sweeps use
// compare-and-set transitions, so running alongside manual decisions is safe.
type Sweeper struct {
	bookings service.BookingService
	sessions service.SessionService
	interval time.Duration
}

func NewSweeper(bookings service.BookingService, sessions service.SessionService, interval time.Duration) *Sweeper {
	return &Sweeper{
		bookings: bookings,
		sessions: sessions,
		interval: interval,
	}
}

// Run blocks until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Info("Lifecycle sweeper started", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			logger.Info("Lifecycle sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	expired, err := s.bookings.ExpirePending(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Booking expiry sweep failed", "error", err)
	} else if expired > 0 {
		logger.InfoContext(ctx, "Expired stale bookings", "count", expired)
	}

	missed, err := s.sessions.SweepMissed(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Missed session sweep failed", "error", err)
	} else if missed > 0 {
		logger.InfoContext(ctx, "Marked missed sessions", "count", missed)
	}
}
