package repository

import (
	"context"
	"errors"
	"time"

	"huddle-chat/internal/domain/upload"
	huddle_errors "huddle-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var activeStatuses = []upload.Status{upload.StatusPending, upload.StatusInProgress}

type PostgresUploadRepository struct {
	db *gorm.DB
}

func NewUploadRepository(db *gorm.DB) UploadSessionRepository {
	return &PostgresUploadRepository{db: db}
}

func (r *PostgresUploadRepository) Create(ctx context.Context, u *upload.UploadSession) error {
	res := r.db.WithContext(ctx).Create(u)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return huddle_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresUploadRepository) GetBySessionID(ctx context.Context, sessionID string) (upload.UploadSession, error) {
	var u upload.UploadSession
	err := r.db.WithContext(ctx).
		Preload("Chunks", func(db *gorm.DB) *gorm.DB {
			return db.Order("chunk_index ASC")
		}).
		Where("session_id = ?", sessionID).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return upload.UploadSession{}, huddle_errors.ErrSessionNotFound
		}
		return upload.UploadSession{}, err
	}
	return u, nil
}

func (r *PostgresUploadRepository) GetUserUploadSessions(ctx context.Context, uploaderID uuid.UUID) ([]upload.UploadSession, error) {
	var sessions []upload.UploadSession
	err := r.db.WithContext(ctx).
		Where("uploader_id = ?", uploaderID).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *PostgresUploadRepository) GetInProgressUploads(ctx context.Context, uploaderID uuid.UUID) ([]upload.UploadSession, error) {
	var sessions []upload.UploadSession
	err := r.db.WithContext(ctx).
		Where("uploader_id = ? AND status IN ?", uploaderID, activeStatuses).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *PostgresUploadRepository) AppendChunk(ctx context.Context, sessionID string, chunk upload.Chunk, complete bool) (upload.UploadSession, error) {
	var out upload.UploadSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		newStatus := upload.StatusInProgress
		updates := map[string]interface{}{
			"uploaded_chunks": gorm.Expr("uploaded_chunks + 1"),
			"uploaded_bytes":  gorm.Expr("uploaded_bytes + ?", chunk.SizeBytes),
			"updated_at":      now,
		}
		if complete {
			newStatus = upload.StatusCompleted
			updates["completed_at"] = now
		}
		updates["status"] = newStatus

		// The guard on uploaded_chunks and status is what serializes
		// concurrent submissions for the same session: of two writers
		// racing on the same expected index, exactly one matches.
		res := tx.Model(&upload.UploadSession{}).
			Where("session_id = ? AND uploaded_chunks = ? AND status IN ?", sessionID, chunk.ChunkIndex, activeStatuses).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return huddle_errors.ErrConflict
		}

		if err := tx.Where("session_id = ?", sessionID).First(&out).Error; err != nil {
			return err
		}

		chunk.SessionRef = out.ID
		if chunk.ID == uuid.Nil {
			chunk.ID = uuid.New()
		}
		chunk.ReceivedAt = now
		return tx.Create(&chunk).Error
	})
	if err != nil {
		return upload.UploadSession{}, err
	}
	return out, nil
}

func (r *PostgresUploadRepository) MarkCancelled(ctx context.Context, sessionID string) (upload.UploadSession, error) {
	return r.transition(ctx, sessionID, upload.StatusCancelled, activeStatuses)
}

func (r *PostgresUploadRepository) MarkFailed(ctx context.Context, sessionID string, from upload.Status) (upload.UploadSession, error) {
	return r.transition(ctx, sessionID, upload.StatusFailed, []upload.Status{from})
}

func (r *PostgresUploadRepository) transition(ctx context.Context, sessionID string, to upload.Status, from []upload.Status) (upload.UploadSession, error) {
	res := r.db.WithContext(ctx).
		Model(&upload.UploadSession{}).
		Where("session_id = ? AND status IN ?", sessionID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return upload.UploadSession{}, res.Error
	}
	if res.RowsAffected == 0 {
		return upload.UploadSession{}, huddle_errors.ErrConflict
	}
	return r.GetBySessionID(ctx, sessionID)
}

func (r *PostgresUploadRepository) SetFileURL(ctx context.Context, sessionID string, fileURL string) error {
	res := r.db.WithContext(ctx).
		Model(&upload.UploadSession{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"file_url":   fileURL,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return huddle_errors.ErrSessionNotFound
	}
	return nil
}

func (r *PostgresUploadRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]upload.UploadSession, error) {
	var sessions []upload.UploadSession
	q := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at < ?", activeStatuses, now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *PostgresUploadRepository) Expire(ctx context.Context, sessionID string, now time.Time) (upload.UploadSession, bool, error) {
	res := r.db.WithContext(ctx).
		Model(&upload.UploadSession{}).
		Where("session_id = ? AND status IN ? AND expires_at < ?", sessionID, activeStatuses, now).
		Updates(map[string]interface{}{
			"status":     upload.StatusFailed,
			"updated_at": now,
		})
	if res.Error != nil {
		return upload.UploadSession{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race against a chunk or cancel; the record is in
		// exactly one terminal state either way.
		return upload.UploadSession{}, false, nil
	}
	u, err := r.GetBySessionID(ctx, sessionID)
	if err != nil {
		return upload.UploadSession{}, false, err
	}
	return u, true, nil
}
