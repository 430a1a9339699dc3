package httpdto

import (
	"time"

	"huddle-chat/internal/domain/upload"
)

// InitiateUploadRequest is used for POST /api/v1/uploads
type InitiateUploadRequest struct {
	FileName       string `json:"file_name" binding:"required"`
	TotalSizeBytes int64  `json:"total_size_bytes" binding:"required,gt=0"`
	MimeType       string `json:"mime_type" binding:"required"`
	ChunkSizeBytes int64  `json:"chunk_size_bytes" binding:"required,gt=0"`
	Checksum       string `json:"checksum,omitempty"`
	ChatroomID     string `json:"chatroom_id,omitempty"`
	ThreadID       string `json:"thread_id,omitempty"`
}

// UploadChunkForm holds the multipart fields accompanying the chunk
// bytes on POST /api/v1/uploads/:session_id/chunks
type UploadChunkForm struct {
	ChunkIndex int    `form:"chunk_index"`
	Checksum   string `form:"checksum"`
	IsFinal    bool   `form:"is_final"`
}

// UploadSessionDTO represents an upload session in API responses
type UploadSessionDTO struct {
	SessionID       string     `json:"session_id"`
	FileName        string     `json:"file_name"`
	MimeType        string     `json:"mime_type"`
	TotalSizeBytes  int64      `json:"total_size_bytes"`
	ChunkSizeBytes  int64      `json:"chunk_size_bytes"`
	TotalChunks     int        `json:"total_chunks"`
	UploadedChunks  int        `json:"uploaded_chunks"`
	UploadedBytes   int64      `json:"uploaded_bytes"`
	Status          string     `json:"status"`
	ProgressPercent float64    `json:"progress_percent"`
	ChatroomID      string     `json:"chatroom_id,omitempty"`
	ThreadID        string     `json:"thread_id,omitempty"`
	FileURL         string     `json:"file_url,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ExpiresAt       time.Time  `json:"expires_at"`
}

// ListUploadsResponse is returned when listing upload sessions
type ListUploadsResponse struct {
	Uploads []UploadSessionDTO `json:"uploads"`
}

func NewUploadSessionDTO(u upload.UploadSession) UploadSessionDTO {
	percent := 0.0
	if u.TotalSizeBytes > 0 {
		percent = float64(u.UploadedBytes) / float64(u.TotalSizeBytes) * 100
	}
	if percent > 100 {
		percent = 100
	}
	dto := UploadSessionDTO{
		SessionID:       u.SessionID,
		FileName:        u.FileName,
		MimeType:        u.MimeType,
		TotalSizeBytes:  u.TotalSizeBytes,
		ChunkSizeBytes:  u.ChunkSizeBytes,
		TotalChunks:     u.TotalChunks,
		UploadedChunks:  u.UploadedChunks,
		UploadedBytes:   u.UploadedBytes,
		Status:          string(u.Status),
		ProgressPercent: percent,
		FileURL:         u.FileURL,
		CreatedAt:       u.CreatedAt,
		CompletedAt:     u.CompletedAt,
		ExpiresAt:       u.ExpiresAt,
	}
	if u.ChatroomID != nil {
		dto.ChatroomID = u.ChatroomID.String()
	}
	if u.ThreadID != nil {
		dto.ThreadID = u.ThreadID.String()
	}
	return dto
}

func NewListUploadsResponse(sessions []upload.UploadSession) ListUploadsResponse {
	out := ListUploadsResponse{Uploads: make([]UploadSessionDTO, 0, len(sessions))}
	for _, u := range sessions {
		out.Uploads = append(out.Uploads, NewUploadSessionDTO(u))
	}
	return out
}
