package events

import (
	"context"
	"time"
)

// Event types published on upload channels, format domain.action.
const (
	EventTypeUploadProgress  = "upload.progress"
	EventTypeUploadCompleted = "upload.completed"
	EventTypeUploadFailed    = "upload.failed"
	EventTypeUploadCancelled = "upload.cancelled"
)

// ChannelPrefixUpload is the Redis channel namespace for per-session
// progress streams. Subscribers join by session id.
const ChannelPrefixUpload = "channel:upload:"

// UploadChannel returns the channel for one session's progress stream.
func UploadChannel(sessionID string) string {
	return ChannelPrefixUpload + sessionID
}

// ProgressEvent is the payload broadcast after every accepted chunk and
// on terminal transitions. Consumers must treat it as an idempotent
// snapshot, never a delta: delivery is at-least-once and unordered.
type ProgressEvent struct {
	Type            string    `json:"type"`
	SessionID       string    `json:"session_id"`
	Status          string    `json:"status"`
	UploadedChunks  int       `json:"uploaded_chunks"`
	TotalChunks     int       `json:"total_chunks"`
	UploadedBytes   int64     `json:"uploaded_bytes"`
	TotalSizeBytes  int64     `json:"total_size_bytes"`
	ProgressPercent float64   `json:"progress_percent"`
	OccurredAt      time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error
}
