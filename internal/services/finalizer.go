package services

import (
	"context"

	"huddle-chat/internal/domain/upload"
)

// Finalizer turns a fully received chunk set into a durable file object
// and attaches it to its chatroom/thread context. Invoked by the engine
// exactly once, after the COMPLETED transition commits. A finalize
// failure flips the session to FAILED; chunk history is preserved.
type Finalizer interface {
	Finalize(ctx context.Context, session upload.UploadSession) (fileURL string, err error)
}

// FinalizerFunc adapts a function to the Finalizer interface.
type FinalizerFunc func(ctx context.Context, session upload.UploadSession) (string, error)

func (f FinalizerFunc) Finalize(ctx context.Context, session upload.UploadSession) (string, error) {
	return f(ctx, session)
}
