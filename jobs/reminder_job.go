package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/anjiri1684/tutor_ledger/cache"
	"github.com/anjiri1684/tutor_ledger/models"
)

const reminderLock = "locks:jobs:session-reminders"

type SessionReminder interface {
	StartingBetween(ctx context.Context, from, to time.Time) ([]models.Booking, error)
	SendReminder(ctx context.Context, b *models.Booking)
}

// ReminderJob notifies both parties of sessions starting an hour from now.
// It expects to be scheduled every Window.
type ReminderJob struct {
	sessions SessionReminder
	locker   cache.Locker
	Lead     time.Duration
	Window   time.Duration
	now      func() time.Time
}

func NewReminderJob(sessions SessionReminder, locker cache.Locker, now func() time.Time) *ReminderJob {
	if locker == nil {
		locker = cache.LocalLocker{}
	}
	if now == nil {
		now = time.Now
	}
	return &ReminderJob{
		sessions: sessions,
		locker:   locker,
		Lead:     60 * time.Minute,
		Window:   5 * time.Minute,
		now:      now,
	}
}

func (j *ReminderJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	j.RunOnce(ctx)
}

func (j *ReminderJob) RunOnce(ctx context.Context) int {
	release, ok, err := j.locker.TryLock(ctx, reminderLock, j.Window)
	if err != nil || !ok {
		if err != nil {
			slog.Error("reminder lock failed", "error", err)
		}
		return 0
	}
	defer release()

	from := j.now().Add(j.Lead)
	upcoming, err := j.sessions.StartingBetween(ctx, from, from.Add(j.Window))
	if err != nil {
		slog.Error("error checking for upcoming sessions", "error", err)
		return 0
	}
	for i := range upcoming {
		slog.Info("sending session reminder", "booking_id", upcoming[i].ID)
		j.sessions.SendReminder(ctx, &upcoming[i])
	}
	return len(upcoming)
}
