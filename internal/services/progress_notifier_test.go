package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"huddle-chat/internal/domain/upload"
	"huddle-chat/internal/events"
	"huddle-chat/internal/repository"
	"huddle-chat/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type publishedMessage struct {
	Channel string
	Payload []byte
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, publishedMessage{Channel: channel, Payload: append([]byte(nil), payload...)})
	return nil
}

func (p *fakePublisher) messages() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMessage(nil), p.published...)
}

func (p *fakePublisher) events(t *testing.T) []events.ProgressEvent {
	t.Helper()
	msgs := p.messages()
	out := make([]events.ProgressEvent, 0, len(msgs))
	for _, m := range msgs {
		var ev events.ProgressEvent
		require.NoError(t, json.Unmarshal(m.Payload, &ev))
		out = append(out, ev)
	}
	return out
}

func progressSession(status upload.Status, uploadedChunks int, uploadedBytes int64) upload.UploadSession {
	return upload.UploadSession{
		ID:             uuid.New(),
		SessionID:      "upl_" + uuid.NewString(),
		UploaderID:     uuid.New(),
		FileName:       "report.pdf",
		TotalSizeBytes: 1000,
		ChunkSizeBytes: 100,
		TotalChunks:    10,
		UploadedChunks: uploadedChunks,
		UploadedBytes:  uploadedBytes,
		Status:         status,
	}
}

func TestUpdateProgressSnapshot(t *testing.T) {
	pub := &fakePublisher{}
	notifier := NewProgressNotifier(pub, nil, logger.NewNop(), 0, 10)

	session := progressSession(upload.StatusInProgress, 4, 400)
	notifier.UpdateProgress(context.Background(), session)

	msgs := pub.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, events.UploadChannel(session.SessionID), msgs[0].Channel)

	ev := pub.events(t)[0]
	require.Equal(t, events.EventTypeUploadProgress, ev.Type)
	require.Equal(t, session.SessionID, ev.SessionID)
	require.Equal(t, string(upload.StatusInProgress), ev.Status)
	require.Equal(t, 4, ev.UploadedChunks)
	require.Equal(t, 10, ev.TotalChunks)
	require.InDelta(t, 40.0, ev.ProgressPercent, 0.001)
	require.False(t, ev.OccurredAt.IsZero())
}

func TestUpdateProgressPercentClamped(t *testing.T) {
	pub := &fakePublisher{}
	notifier := NewProgressNotifier(pub, nil, logger.NewNop(), 0, 10)

	// Byte counters past the declared total still produce a snapshot a
	// client can render.
	over := progressSession(upload.StatusInProgress, 10, 1500)
	notifier.UpdateProgress(context.Background(), over)

	zero := progressSession(upload.StatusInProgress, 0, 0)
	zero.TotalSizeBytes = 0
	notifier.UpdateProgress(context.Background(), zero)

	evs := pub.events(t)
	require.Len(t, evs, 2)
	require.InDelta(t, 100.0, evs[0].ProgressPercent, 0.001)
	require.InDelta(t, 0.0, evs[1].ProgressPercent, 0.001)
}

func TestUpdateProgressTerminalEventTypes(t *testing.T) {
	cases := []struct {
		status upload.Status
		want   string
	}{
		{upload.StatusCompleted, events.EventTypeUploadCompleted},
		{upload.StatusFailed, events.EventTypeUploadFailed},
		{upload.StatusCancelled, events.EventTypeUploadCancelled},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			pub := &fakePublisher{}
			notifier := NewProgressNotifier(pub, nil, logger.NewNop(), 0, 10)

			notifier.UpdateProgress(context.Background(), progressSession(tc.status, 10, 1000))

			evs := pub.events(t)
			require.Len(t, evs, 1)
			require.Equal(t, tc.want, evs[0].Type)
		})
	}
}

func TestUpdateProgressCoalesces(t *testing.T) {
	pub := &fakePublisher{}
	notifier := NewProgressNotifier(pub, nil, logger.NewNop(), time.Minute, 10)

	session := progressSession(upload.StatusInProgress, 1, 100)
	notifier.UpdateProgress(context.Background(), session)

	session.UploadedChunks = 2
	session.UploadedBytes = 200
	notifier.UpdateProgress(context.Background(), session)
	notifier.UpdateProgress(context.Background(), session)

	// Only the first non-terminal snapshot inside the window goes out.
	require.Len(t, pub.messages(), 1)
}

func TestUpdateProgressTerminalBypassesCoalescing(t *testing.T) {
	pub := &fakePublisher{}
	notifier := NewProgressNotifier(pub, nil, logger.NewNop(), time.Minute, 10)

	session := progressSession(upload.StatusInProgress, 9, 900)
	notifier.UpdateProgress(context.Background(), session)

	session.Status = upload.StatusCompleted
	session.UploadedChunks = 10
	session.UploadedBytes = 1000
	notifier.UpdateProgress(context.Background(), session)

	evs := pub.events(t)
	require.Len(t, evs, 2)
	require.Equal(t, events.EventTypeUploadCompleted, evs[1].Type)
}

func TestBroadcastProgressPublishFailureIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: context.DeadlineExceeded}
	notifier := NewProgressNotifier(pub, nil, logger.NewNop(), 0, 10)

	require.NotPanics(t, func() {
		notifier.UpdateProgress(context.Background(), progressSession(upload.StatusInProgress, 1, 100))
	})
}

func TestCleanupStaleSessions(t *testing.T) {
	repo := repository.NewMemoryUploadRepository()
	pub := &fakePublisher{}
	notifier := NewProgressNotifier(pub, repo, logger.NewNop(), 0, 10)

	stale := progressSession(upload.StatusInProgress, 3, 300)
	stale.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, repo.Create(context.Background(), &stale))

	fresh := progressSession(upload.StatusInProgress, 1, 100)
	fresh.ExpiresAt = time.Now().Add(time.Hour)
	require.NoError(t, repo.Create(context.Background(), &fresh))

	done := progressSession(upload.StatusCompleted, 10, 1000)
	done.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, repo.Create(context.Background(), &done))

	reaped, err := notifier.CleanupStaleSessions(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, reaped)

	got, err := repo.GetBySessionID(context.Background(), stale.SessionID)
	require.NoError(t, err)
	require.Equal(t, upload.StatusFailed, got.Status)

	// Terminal states are never rewritten by the sweep.
	got, err = repo.GetBySessionID(context.Background(), done.SessionID)
	require.NoError(t, err)
	require.Equal(t, upload.StatusCompleted, got.Status)

	// Active sessions inside their deadline are untouched.
	got, err = repo.GetBySessionID(context.Background(), fresh.SessionID)
	require.NoError(t, err)
	require.Equal(t, upload.StatusInProgress, got.Status)

	evs := pub.events(t)
	require.Len(t, evs, 1)
	require.Equal(t, events.EventTypeUploadFailed, evs[0].Type)
	require.Equal(t, stale.SessionID, evs[0].SessionID)
}
