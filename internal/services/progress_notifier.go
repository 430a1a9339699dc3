package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"huddle-chat/internal/domain/upload"
	"huddle-chat/internal/events"
	"huddle-chat/internal/repository"
	"huddle-chat/pkg/logger"
)

// ProgressNotifier pushes progress snapshots to the session's real-time
// channel. Delivery is best-effort: a failed publish is logged and
// never fails the operation that produced the snapshot.
type ProgressNotifier struct {
	publisher events.Publisher
	repo      repository.UploadSessionRepository
	log       *logger.Logger

	// Non-terminal snapshots within minInterval of the previous
	// broadcast for the same session are coalesced away. Terminal
	// snapshots always go out.
	minInterval time.Duration
	batchSize   int
	now         func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewProgressNotifier(publisher events.Publisher, repo repository.UploadSessionRepository, log *logger.Logger, minInterval time.Duration, batchSize int) *ProgressNotifier {
	return &ProgressNotifier{
		publisher:   publisher,
		repo:        repo,
		log:         log,
		minInterval: minInterval,
		batchSize:   batchSize,
		now:         time.Now,
		lastSent:    make(map[string]time.Time),
	}
}

// UpdateProgress derives a snapshot from the session record and
// forwards it to BroadcastProgress, subject to coalescing.
func (n *ProgressNotifier) UpdateProgress(ctx context.Context, session upload.UploadSession) {
	terminal := session.Status.IsTerminal()
	if !terminal && !n.shouldSend(session.SessionID) {
		return
	}
	n.BroadcastProgress(ctx, session.SessionID, snapshot(session, n.now()))
	if terminal {
		n.forget(session.SessionID)
	}
}

// BroadcastProgress publishes the payload to every subscriber of the
// session's channel. At-least-once, unordered.
func (n *ProgressNotifier) BroadcastProgress(ctx context.Context, sessionID string, event events.ProgressEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.log.Errorf("progress notifier: marshal snapshot for %s: %v", sessionID, err)
		return
	}
	if err := n.publisher.Publish(ctx, events.UploadChannel(sessionID), payload); err != nil {
		n.log.Errorf("progress notifier: publish to %s failed: %v", sessionID, err)
	}
}

// CleanupStaleSessions sweeps non-terminal sessions past their deadline
// to FAILED and emits a final terminal notification for each. Invoked
// by the reaper. Returns the number of sessions reaped.
func (n *ProgressNotifier) CleanupStaleSessions(ctx context.Context) (int, error) {
	now := n.now()
	stale, err := n.repo.FindExpired(ctx, now, n.batchSize)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, s := range stale {
		expired, won, err := n.repo.Expire(ctx, s.SessionID, now)
		if err != nil {
			n.log.Errorf("progress notifier: expire %s: %v", s.SessionID, err)
			continue
		}
		if !won {
			// Advanced to a terminal state between scan and sweep.
			continue
		}
		n.BroadcastProgress(ctx, expired.SessionID, snapshot(expired, now))
		n.forget(expired.SessionID)
		reaped++
	}
	return reaped, nil
}

func (n *ProgressNotifier) shouldSend(sessionID string) bool {
	if n.minInterval <= 0 {
		return true
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	if last, ok := n.lastSent[sessionID]; ok && now.Sub(last) < n.minInterval {
		return false
	}
	n.lastSent[sessionID] = now
	return true
}

func (n *ProgressNotifier) forget(sessionID string) {
	n.mu.Lock()
	delete(n.lastSent, sessionID)
	n.mu.Unlock()
}

func snapshot(session upload.UploadSession, at time.Time) events.ProgressEvent {
	percent := 0.0
	if session.TotalSizeBytes > 0 {
		percent = float64(session.UploadedBytes) / float64(session.TotalSizeBytes) * 100
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	eventType := events.EventTypeUploadProgress
	switch session.Status {
	case upload.StatusCompleted:
		eventType = events.EventTypeUploadCompleted
	case upload.StatusFailed:
		eventType = events.EventTypeUploadFailed
	case upload.StatusCancelled:
		eventType = events.EventTypeUploadCancelled
	}

	return events.ProgressEvent{
		Type:            eventType,
		SessionID:       session.SessionID,
		Status:          string(session.Status),
		UploadedChunks:  session.UploadedChunks,
		TotalChunks:     session.TotalChunks,
		UploadedBytes:   session.UploadedBytes,
		TotalSizeBytes:  session.TotalSizeBytes,
		ProgressPercent: percent,
		OccurredAt:      at,
	}
}
