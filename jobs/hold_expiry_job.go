package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/anjiri1684/tutor_ledger/cache"
)

const holdExpiryLock = "locks:jobs:expire-holds"

type HoldExpirer interface {
	ExpireHolds(ctx context.Context) (int64, error)
}

// HoldExpiryJob cancels pending holds past their TTL. With several replicas
// only the one that takes the lock runs a given tick.
type HoldExpiryJob struct {
	expirer HoldExpirer
	locker  cache.Locker
	timeout time.Duration
}

func NewHoldExpiryJob(expirer HoldExpirer, locker cache.Locker, timeout time.Duration) *HoldExpiryJob {
	if locker == nil {
		locker = cache.LocalLocker{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HoldExpiryJob{expirer: expirer, locker: locker, timeout: timeout}
}

// Run satisfies cron.Job.
func (j *HoldExpiryJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	j.RunOnce(ctx)
}

// RunOnce reports how many holds it expired, or -1 if another replica held the lock.
func (j *HoldExpiryJob) RunOnce(ctx context.Context) int64 {
	release, ok, err := j.locker.TryLock(ctx, holdExpiryLock, j.timeout)
	if err != nil {
		slog.Error("hold expiry lock failed", "error", err)
		return -1
	}
	if !ok {
		slog.Debug("hold expiry already running elsewhere")
		return -1
	}
	defer release()

	n, err := j.expirer.ExpireHolds(ctx)
	if err != nil {
		slog.Error("error expiring booking holds", "error", err)
		return 0
	}
	return n
}
