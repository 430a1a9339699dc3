package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"huddle-chat/internal/domain/upload"
	huddle_errors "huddle-chat/pkg/errors"

	"github.com/google/uuid"
)

// MemoryUploadRepository keeps sessions in process memory with the same
// conditional-update semantics as the Postgres repository. Used by
// tests and as a store for single-node development.
type MemoryUploadRepository struct {
	mu       sync.Mutex
	sessions map[string]*upload.UploadSession
}

func NewMemoryUploadRepository() *MemoryUploadRepository {
	return &MemoryUploadRepository{sessions: make(map[string]*upload.UploadSession)}
}

func (r *MemoryUploadRepository) Create(_ context.Context, u *upload.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[u.SessionID]; ok {
		return huddle_errors.ErrAlreadyExists
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := cloneSession(u)
	r.sessions[u.SessionID] = &cp
	return nil
}

func (r *MemoryUploadRepository) GetBySessionID(_ context.Context, sessionID string) (upload.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.sessions[sessionID]
	if !ok {
		return upload.UploadSession{}, huddle_errors.ErrSessionNotFound
	}
	return cloneSession(u), nil
}

func (r *MemoryUploadRepository) GetUserUploadSessions(_ context.Context, uploaderID uuid.UUID) ([]upload.UploadSession, error) {
	return r.filter(func(u *upload.UploadSession) bool {
		return u.UploaderID == uploaderID
	}), nil
}

func (r *MemoryUploadRepository) GetInProgressUploads(_ context.Context, uploaderID uuid.UUID) ([]upload.UploadSession, error) {
	return r.filter(func(u *upload.UploadSession) bool {
		return u.UploaderID == uploaderID && !u.Status.IsTerminal()
	}), nil
}

func (r *MemoryUploadRepository) filter(keep func(*upload.UploadSession) bool) []upload.UploadSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []upload.UploadSession
	for _, u := range r.sessions {
		if keep(u) {
			out = append(out, cloneSession(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *MemoryUploadRepository) AppendChunk(_ context.Context, sessionID string, chunk upload.Chunk, complete bool) (upload.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.sessions[sessionID]
	if !ok {
		return upload.UploadSession{}, huddle_errors.ErrSessionNotFound
	}
	if u.Status.IsTerminal() || u.UploadedChunks != chunk.ChunkIndex {
		return upload.UploadSession{}, huddle_errors.ErrConflict
	}

	now := time.Now()
	if chunk.ID == uuid.Nil {
		chunk.ID = uuid.New()
	}
	chunk.SessionRef = u.ID
	chunk.ReceivedAt = now

	u.Chunks = append(u.Chunks, chunk)
	u.UploadedChunks++
	u.UploadedBytes += chunk.SizeBytes
	u.UpdatedAt = now
	if complete {
		u.Status = upload.StatusCompleted
		u.CompletedAt = &now
	} else {
		u.Status = upload.StatusInProgress
	}
	return cloneSession(u), nil
}

func (r *MemoryUploadRepository) MarkCancelled(_ context.Context, sessionID string) (upload.UploadSession, error) {
	return r.transition(sessionID, upload.StatusCancelled, func(s upload.Status) bool {
		return !s.IsTerminal()
	})
}

func (r *MemoryUploadRepository) MarkFailed(_ context.Context, sessionID string, from upload.Status) (upload.UploadSession, error) {
	return r.transition(sessionID, upload.StatusFailed, func(s upload.Status) bool {
		return s == from
	})
}

func (r *MemoryUploadRepository) transition(sessionID string, to upload.Status, allowed func(upload.Status) bool) (upload.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.sessions[sessionID]
	if !ok {
		return upload.UploadSession{}, huddle_errors.ErrSessionNotFound
	}
	if !allowed(u.Status) {
		return upload.UploadSession{}, huddle_errors.ErrConflict
	}
	u.Status = to
	u.UpdatedAt = time.Now()
	return cloneSession(u), nil
}

func (r *MemoryUploadRepository) SetFileURL(_ context.Context, sessionID string, fileURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.sessions[sessionID]
	if !ok {
		return huddle_errors.ErrSessionNotFound
	}
	u.FileURL = fileURL
	u.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryUploadRepository) FindExpired(_ context.Context, now time.Time, limit int) ([]upload.UploadSession, error) {
	out := r.filter(func(u *upload.UploadSession) bool {
		return u.Expired(now)
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryUploadRepository) Expire(_ context.Context, sessionID string, now time.Time) (upload.UploadSession, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.sessions[sessionID]
	if !ok {
		return upload.UploadSession{}, false, nil
	}
	if !u.Expired(now) {
		return upload.UploadSession{}, false, nil
	}
	u.Status = upload.StatusFailed
	u.UpdatedAt = now
	return cloneSession(u), true, nil
}

func cloneSession(u *upload.UploadSession) upload.UploadSession {
	cp := *u
	cp.Chunks = append([]upload.Chunk(nil), u.Chunks...)
	return cp
}
