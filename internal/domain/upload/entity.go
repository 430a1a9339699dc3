package upload

import (
	"time"

	"github.com/google/uuid"
)

// Status values for upload_sessions. COMPLETED, FAILED and CANCELLED are
// terminal: no transition leaves them.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// UploadSession represents upload_sessions. Counters are mutated only
// through conditional updates in the repository; everything else is
// immutable after initiate.
type UploadSession struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	SessionID      string     `gorm:"uniqueIndex;not null" json:"session_id"`
	UploaderID     uuid.UUID  `gorm:"type:uuid;not null" json:"uploader_id"`
	ChatroomID     *uuid.UUID `gorm:"type:uuid" json:"chatroom_id,omitempty"`
	ThreadID       *uuid.UUID `gorm:"type:uuid" json:"thread_id,omitempty"`
	FileName       string     `gorm:"not null" json:"file_name"`
	MimeType       string     `gorm:"not null" json:"mime_type"`
	Checksum       string     `json:"checksum,omitempty"`
	TotalSizeBytes int64      `gorm:"not null" json:"total_size_bytes"`
	ChunkSizeBytes int64      `gorm:"not null" json:"chunk_size_bytes"`
	TotalChunks    int        `gorm:"not null" json:"total_chunks"`
	UploadedChunks int        `gorm:"default:0" json:"uploaded_chunks"`
	UploadedBytes  int64      `gorm:"default:0" json:"uploaded_bytes"`
	Status         Status     `gorm:"type:upload_status;default:'PENDING'" json:"status"`
	FileURL        string     `json:"file_url,omitempty"`
	Chunks         []Chunk    `gorm:"foreignKey:SessionRef;references:ID" json:"chunks,omitempty"`
	CreatedAt      time.Time  `gorm:"default:now()" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"default:now()" json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ExpiresAt      time.Time  `gorm:"index;not null" json:"expires_at"`
}

func (UploadSession) TableName() string {
	return "upload_sessions"
}

// Expired reports whether the session is past its deadline and still
// eligible for reaping.
func (u *UploadSession) Expired(now time.Time) bool {
	return !u.Status.IsTerminal() && now.After(u.ExpiresAt)
}

// RemainingBytes returns how many bytes the session still expects.
func (u *UploadSession) RemainingBytes() int64 {
	return u.TotalSizeBytes - u.UploadedBytes
}

// Chunk represents upload_session_chunks. Rows are append-only: one per
// accepted chunk, inserted in the same transaction that bumps the
// session counters.
type Chunk struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	SessionRef uuid.UUID `gorm:"type:uuid;index;not null" json:"-"`
	ChunkIndex int       `gorm:"not null" json:"chunk_index"`
	SizeBytes  int64     `gorm:"not null" json:"size_bytes"`
	Checksum   string    `json:"checksum,omitempty"`
	ReceivedAt time.Time `gorm:"default:now()" json:"received_at"`
}

func (Chunk) TableName() string {
	return "upload_session_chunks"
}
