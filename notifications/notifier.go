package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/anjiri1684/tutor_ledger/models"
)

// Sink delivers a notification to one channel.
type Sink interface {
	Notify(ctx context.Context, n models.Notification) error
}

// Fanout delivers every notification to all sinks in the background. Delivery
// failures are logged and never reported to the caller.
type Fanout struct {
	sinks   []Sink
	timeout time.Duration
}

func NewFanout(timeout time.Duration, sinks ...Sink) *Fanout {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fanout{sinks: sinks, timeout: timeout}
}

func (f *Fanout) Notify(_ context.Context, n models.Notification) error {
	for _, sink := range f.sinks {
		go func(s Sink) {
			ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
			defer cancel()
			if err := s.Notify(ctx, n); err != nil {
				slog.Error("notification delivery failed",
					"user_id", n.UserID,
					"category", n.Category,
					"error", err)
			}
		}(sink)
	}
	return nil
}
