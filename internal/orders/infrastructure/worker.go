package infrastructure

import (
	"context"
	"time"

	"go.uber.org/zap"

	"marketplace/internal/orders/application"
	"marketplace/pkg/logger"
)

// ExpiryNotifier is the use case the worker drives
type ExpiryNotifier interface {
	NotifyExpiringCashback(ctx context.Context, input application.NotifyExpiringInput) (int, error)
}

// ExpiryWorker periodically reminds customers about cashback about to lapse.
// Windows of consecutive runs do not overlap, so an entry is announced once
// per process lifetime.
type ExpiryWorker struct {
	notifier ExpiryNotifier
	interval time.Duration
	window   time.Duration
	now      func() time.Time
	log      *logger.Logger

	lastTo time.Time
}

// NewExpiryWorker creates a worker announcing cashback that expires within
// window, checked every interval
func NewExpiryWorker(notifier ExpiryNotifier, interval, window time.Duration, log *logger.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		notifier: notifier,
		interval: interval,
		window:   window,
		now:      time.Now,
		log:      log,
	}
}

// Run blocks until ctx is done
func (w *ExpiryWorker) Run(ctx context.Context) {
	if w.interval <= 0 || w.window <= 0 {
		w.log.Info("cashback expiry worker disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("cashback expiry worker is done")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *ExpiryWorker) tick(ctx context.Context) {
	now := w.now().UTC()
	from := now
	if w.lastTo.After(from) {
		from = w.lastTo
	}
	to := now.Add(w.window)

	sent, err := w.notifier.NotifyExpiringCashback(ctx, application.NotifyExpiringInput{From: from, To: to})
	if err != nil {
		w.log.WithContext(ctx).Error("cashback expiry check failed", zap.Error(err))
		return
	}
	w.lastTo = to

	w.log.WithContext(ctx).Debug("cashback expiry check done",
		zap.Int("reminders", sent),
		zap.Time("from", from),
		zap.Time("to", to),
	)
}
