package storage

import (
	"context"
	"fmt"
	"path"

	"huddle-chat/internal/domain/upload"
)

// S3Finalizer materializes a completed chunk set: assembles the chunks
// from the store, puts the object to S3 and hands back its URL. Chunk
// files are removed only after a successful put so a failed finalize
// can be retried out of band.
type S3Finalizer struct {
	chunks ChunkStore
	client *Client
}

func NewS3Finalizer(chunks ChunkStore, client *Client) *S3Finalizer {
	return &S3Finalizer{chunks: chunks, client: client}
}

func (f *S3Finalizer) Finalize(ctx context.Context, session upload.UploadSession) (string, error) {
	body, err := f.chunks.Assemble(ctx, session.SessionID, session.TotalChunks)
	if err != nil {
		return "", fmt.Errorf("assemble chunks: %w", err)
	}
	defer body.Close()

	key := objectKey(session)
	if err := f.client.PutObject(ctx, key, session.MimeType, body, session.TotalSizeBytes); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	_ = f.chunks.Remove(ctx, session.SessionID)
	return f.client.FileURL(key), nil
}

func objectKey(session upload.UploadSession) string {
	prefix := "uploads"
	switch {
	case session.ChatroomID != nil:
		prefix = path.Join("chatrooms", session.ChatroomID.String())
	case session.ThreadID != nil:
		prefix = path.Join("threads", session.ThreadID.String())
	}
	return path.Join(prefix, session.SessionID, session.FileName)
}
