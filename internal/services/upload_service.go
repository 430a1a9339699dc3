package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"huddle-chat/internal/domain/upload"
	"huddle-chat/internal/repository"
	"huddle-chat/internal/storage"
	huddle_errors "huddle-chat/pkg/errors"
	"huddle-chat/pkg/logger"

	"github.com/google/uuid"
)

const sessionIDPrefix = "upl_"

// createRetries bounds the sessionId collision retry loop. Collisions
// on 16 random bytes are effectively impossible; the loop exists so a
// duplicate key surfaces as a fresh token instead of an error.
const createRetries = 5

// UploadService is the chunked upload engine: it validates chunk
// sequence, accumulates bytes, drives the session state machine and
// finalizes completed uploads. All counter mutations go through
// conditional updates in the repository, so two concurrent submissions
// for the same expected index can never both be accepted.
type UploadService struct {
	repo      repository.UploadSessionRepository
	chunks    storage.ChunkStore
	finalizer Finalizer
	notifier  *ProgressNotifier
	log       *logger.Logger
	ttl       time.Duration
	maxChunk  int64
	now       func() time.Time
}

func NewUploadService(repo repository.UploadSessionRepository, chunks storage.ChunkStore, finalizer Finalizer, notifier *ProgressNotifier, log *logger.Logger, ttl time.Duration, maxChunk int64) *UploadService {
	return &UploadService{
		repo:      repo,
		chunks:    chunks,
		finalizer: finalizer,
		notifier:  notifier,
		log:       log,
		ttl:       ttl,
		maxChunk:  maxChunk,
		now:       time.Now,
	}
}

type InitiateUploadInput struct {
	FileName       string
	TotalSizeBytes int64
	MimeType       string
	ChunkSizeBytes int64
	Checksum       string
	UploaderID     uuid.UUID
	ChatroomID     *uuid.UUID
	ThreadID       *uuid.UUID
}

type UploadChunkInput struct {
	SessionID  string
	ChunkIndex int
	Checksum   string
	Data       []byte
	IsFinal    bool
}

// InitiateUpload creates a PENDING session sized by total bytes and the
// chosen chunk size. No notification is emitted yet.
func (s *UploadService) InitiateUpload(ctx context.Context, in InitiateUploadInput) (upload.UploadSession, error) {
	if in.FileName == "" {
		return upload.UploadSession{}, fmt.Errorf("%w: file name is required", huddle_errors.ErrInvalidInput)
	}
	if in.TotalSizeBytes <= 0 {
		return upload.UploadSession{}, fmt.Errorf("%w: total size must be positive", huddle_errors.ErrInvalidInput)
	}
	if in.ChunkSizeBytes <= 0 {
		return upload.UploadSession{}, fmt.Errorf("%w: chunk size must be positive", huddle_errors.ErrInvalidInput)
	}
	if in.UploaderID == uuid.Nil {
		return upload.UploadSession{}, fmt.Errorf("%w: uploader id is required", huddle_errors.ErrInvalidInput)
	}
	if in.ChatroomID != nil && in.ThreadID != nil {
		return upload.UploadSession{}, fmt.Errorf("%w: at most one of chatroom or thread may be set", huddle_errors.ErrInvalidInput)
	}

	totalChunks := int((in.TotalSizeBytes + in.ChunkSizeBytes - 1) / in.ChunkSizeBytes)
	now := s.now()

	var lastErr error
	for attempt := 0; attempt < createRetries; attempt++ {
		session := upload.UploadSession{
			ID:             uuid.New(),
			SessionID:      newSessionID(),
			UploaderID:     in.UploaderID,
			ChatroomID:     in.ChatroomID,
			ThreadID:       in.ThreadID,
			FileName:       in.FileName,
			MimeType:       in.MimeType,
			Checksum:       in.Checksum,
			TotalSizeBytes: in.TotalSizeBytes,
			ChunkSizeBytes: in.ChunkSizeBytes,
			TotalChunks:    totalChunks,
			Status:         upload.StatusPending,
			ExpiresAt:      now.Add(s.ttl),
		}
		err := s.repo.Create(ctx, &session)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, huddle_errors.ErrAlreadyExists) {
			return upload.UploadSession{}, fmt.Errorf("%w: %v", huddle_errors.ErrStorageFailure, err)
		}
		lastErr = err
	}
	return upload.UploadSession{}, fmt.Errorf("%w: could not allocate a unique session id: %v", huddle_errors.ErrStorageFailure, lastErr)
}

// UploadChunk accepts the next chunk in strict order: the submitted
// index must equal the session's uploadedChunks counter. The last
// accepted chunk transitions the session to COMPLETED and runs the
// finalize hook.
func (s *UploadService) UploadChunk(ctx context.Context, in UploadChunkInput) (upload.UploadSession, error) {
	session, err := s.repo.GetBySessionID(ctx, in.SessionID)
	if err != nil {
		return upload.UploadSession{}, err
	}
	if session.Status.IsTerminal() {
		return upload.UploadSession{}, huddle_errors.ErrInvalidState
	}
	if in.ChunkIndex != session.UploadedChunks {
		return upload.UploadSession{}, fmt.Errorf("%w: got %d, expected %d", huddle_errors.ErrInvalidChunkSequence, in.ChunkIndex, session.UploadedChunks)
	}

	size := int64(len(in.Data))
	if size == 0 {
		return upload.UploadSession{}, fmt.Errorf("%w: empty chunk", huddle_errors.ErrInvalidInput)
	}
	if s.maxChunk > 0 && size > s.maxChunk {
		return upload.UploadSession{}, huddle_errors.ErrTooLarge
	}
	if session.UploadedBytes+size > session.TotalSizeBytes {
		return upload.UploadSession{}, huddle_errors.ErrTooLarge
	}

	complete := session.UploadedChunks+1 == session.TotalChunks
	if in.IsFinal != complete {
		return upload.UploadSession{}, fmt.Errorf("%w: final-chunk flag disagrees with chunk count", huddle_errors.ErrInvalidChunkSequence)
	}

	// Bytes land in the chunk store before the record update, so a
	// storage failure here leaves no persisted change and the same
	// index can be resubmitted.
	if err := s.chunks.WriteChunk(ctx, session.SessionID, in.ChunkIndex, in.Data); err != nil {
		return upload.UploadSession{}, fmt.Errorf("%w: %v", huddle_errors.ErrStorageFailure, err)
	}

	chunk := upload.Chunk{
		ChunkIndex: in.ChunkIndex,
		SizeBytes:  size,
		Checksum:   in.Checksum,
	}
	updated, err := s.repo.AppendChunk(ctx, session.SessionID, chunk, complete)
	if err != nil {
		if errors.Is(err, huddle_errors.ErrConflict) {
			return upload.UploadSession{}, s.classifyConflict(ctx, session.SessionID, in.ChunkIndex)
		}
		if errors.Is(err, huddle_errors.ErrSessionNotFound) {
			return upload.UploadSession{}, err
		}
		return upload.UploadSession{}, fmt.Errorf("%w: %v", huddle_errors.ErrStorageFailure, err)
	}

	if complete {
		updated, err = s.finalize(ctx, updated)
		if err != nil {
			s.notify(updated)
			return updated, err
		}
	}

	s.notify(updated)
	return updated, nil
}

// GetUploadSession is read-only, no side effects.
func (s *UploadService) GetUploadSession(ctx context.Context, sessionID string) (upload.UploadSession, error) {
	return s.repo.GetBySessionID(ctx, sessionID)
}

// CancelUpload transitions a non-terminal session to CANCELLED. Chunk
// metadata is retained as audit trail.
func (s *UploadService) CancelUpload(ctx context.Context, sessionID string) (upload.UploadSession, error) {
	cancelled, err := s.repo.MarkCancelled(ctx, sessionID)
	if err != nil {
		if errors.Is(err, huddle_errors.ErrConflict) {
			if _, getErr := s.repo.GetBySessionID(ctx, sessionID); getErr != nil {
				return upload.UploadSession{}, getErr
			}
			return upload.UploadSession{}, huddle_errors.ErrInvalidState
		}
		return upload.UploadSession{}, err
	}
	s.notify(cancelled)
	return cancelled, nil
}

func (s *UploadService) GetUserUploadSessions(ctx context.Context, uploaderID uuid.UUID) ([]upload.UploadSession, error) {
	return s.repo.GetUserUploadSessions(ctx, uploaderID)
}

func (s *UploadService) GetInProgressUploads(ctx context.Context, uploaderID uuid.UUID) ([]upload.UploadSession, error) {
	return s.repo.GetInProgressUploads(ctx, uploaderID)
}

// finalize runs the hook after the COMPLETED transition committed. A
// hook failure flips the session to FAILED rather than leaving it
// falsely COMPLETED without a materialized file.
func (s *UploadService) finalize(ctx context.Context, session upload.UploadSession) (upload.UploadSession, error) {
	if s.finalizer == nil {
		return session, nil
	}

	fileURL, err := s.finalizer.Finalize(ctx, session)
	if err != nil {
		s.log.Errorf("upload %s: finalize failed: %v", session.SessionID, err)
		failed, markErr := s.repo.MarkFailed(ctx, session.SessionID, upload.StatusCompleted)
		if markErr != nil {
			s.log.Errorf("upload %s: could not mark failed after finalize: %v", session.SessionID, markErr)
			failed = session
		}
		return failed, fmt.Errorf("%w: %v", huddle_errors.ErrFinalizeFailed, err)
	}

	if fileURL != "" {
		if err := s.repo.SetFileURL(ctx, session.SessionID, fileURL); err != nil {
			s.log.Errorf("upload %s: record file url: %v", session.SessionID, err)
		} else {
			session.FileURL = fileURL
		}
	}
	return session, nil
}

// classifyConflict re-reads the record to turn an OCC loss into the
// deterministic error the caller can act on.
func (s *UploadService) classifyConflict(ctx context.Context, sessionID string, chunkIndex int) error {
	current, err := s.repo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}
	if current.Status.IsTerminal() {
		return huddle_errors.ErrInvalidState
	}
	return fmt.Errorf("%w: got %d, expected %d", huddle_errors.ErrInvalidChunkSequence, chunkIndex, current.UploadedChunks)
}

// notify hands the snapshot to the progress notifier off the request
// path. Notification failure never rolls back an accepted chunk.
func (s *UploadService) notify(session upload.UploadSession) {
	if s.notifier == nil {
		return
	}
	go s.notifier.UpdateProgress(context.Background(), session)
}

func newSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return sessionIDPrefix + uuid.New().String()
	}
	return sessionIDPrefix + hex.EncodeToString(buf)
}
