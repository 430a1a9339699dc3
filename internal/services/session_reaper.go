package services

import (
	"context"
	"time"

	"huddle-chat/pkg/logger"
)

// SessionReaper periodically sweeps non-terminal sessions past their
// expiry deadline. The sweep itself lives in the progress notifier so
// every reaped session also gets its final terminal notification; the
// reaper only provides the schedule.
type SessionReaper struct {
	notifier *ProgressNotifier
	interval time.Duration
	log      *logger.Logger
}

func NewSessionReaper(notifier *ProgressNotifier, interval time.Duration, log *logger.Logger) *SessionReaper {
	return &SessionReaper{notifier: notifier, interval: interval, log: log}
}

// Start spawns the sweep loop. It stops when ctx is cancelled.
func (r *SessionReaper) Start(ctx context.Context) {
	go r.run(ctx)
}

func (r *SessionReaper) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one reap pass.
func (r *SessionReaper) Sweep(ctx context.Context) {
	reaped, err := r.notifier.CleanupStaleSessions(ctx)
	if err != nil {
		r.log.Errorf("session reaper: sweep failed: %v", err)
		return
	}
	if reaped > 0 {
		r.log.Infof("session reaper: expired %d stale upload session(s)", reaped)
	}
}
