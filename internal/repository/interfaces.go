package repository

import (
	"context"
	"time"

	"huddle-chat/internal/domain/upload"

	"github.com/google/uuid"
)

// UploadSessionRepository is the durable record store for upload
// sessions. Mutating operations are conditional on the record's
// current counters/status and return huddle_errors.ErrConflict when
// the condition no longer holds, so concurrent writers never both win.
type UploadSessionRepository interface {
	Create(ctx context.Context, u *upload.UploadSession) error
	GetBySessionID(ctx context.Context, sessionID string) (upload.UploadSession, error)

	GetUserUploadSessions(ctx context.Context, uploaderID uuid.UUID) ([]upload.UploadSession, error)
	GetInProgressUploads(ctx context.Context, uploaderID uuid.UUID) ([]upload.UploadSession, error)

	// AppendChunk atomically records one accepted chunk: inserts the
	// chunk-metadata row and bumps uploaded_chunks/uploaded_bytes,
	// guarded by uploaded_chunks == chunk.ChunkIndex and a non-terminal
	// status. complete carries the PENDING/IN_PROGRESS -> COMPLETED
	// transition and stamps completed_at.
	AppendChunk(ctx context.Context, sessionID string, chunk upload.Chunk, complete bool) (upload.UploadSession, error)

	// MarkCancelled transitions a non-terminal session to CANCELLED.
	MarkCancelled(ctx context.Context, sessionID string) (upload.UploadSession, error)

	// MarkFailed transitions a session to FAILED, conditional on its
	// current status being from. Used by the engine when the finalize
	// hook fails after the COMPLETED transition committed.
	MarkFailed(ctx context.Context, sessionID string, from upload.Status) (upload.UploadSession, error)

	// SetFileURL records the materialized file location after finalize.
	SetFileURL(ctx context.Context, sessionID string, fileURL string) error

	// FindExpired returns non-terminal sessions past their deadline.
	FindExpired(ctx context.Context, now time.Time, limit int) ([]upload.UploadSession, error)

	// Expire transitions one overdue non-terminal session to FAILED.
	// Returns false without error when the session advanced to a
	// terminal state between scan and sweep.
	Expire(ctx context.Context, sessionID string, now time.Time) (upload.UploadSession, bool, error)
}
