package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// ChunkStore holds raw chunk bytes between acceptance and finalize.
// Writes happen before the session record is updated, so a failed write
// leaves no persisted change and the chunk can be resubmitted.
type ChunkStore interface {
	WriteChunk(ctx context.Context, sessionID string, index int, data []byte) error
	Assemble(ctx context.Context, sessionID string, totalChunks int) (io.ReadCloser, error)
	Remove(ctx context.Context, sessionID string) error
}

// LocalChunkStore keeps chunks as <dir>/<sessionID>/<index>.part files.
type LocalChunkStore struct {
	dir string
}

func NewLocalChunkStore(dir string) (*LocalChunkStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chunk dir: %w", err)
	}
	return &LocalChunkStore{dir: dir}, nil
}

func (s *LocalChunkStore) WriteChunk(_ context.Context, sessionID string, index int, data []byte) error {
	sessionDir := filepath.Join(s.dir, sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	return os.WriteFile(s.chunkPath(sessionID, index), data, 0o644)
}

// Assemble streams the chunk set back in index order as one reader.
func (s *LocalChunkStore) Assemble(_ context.Context, sessionID string, totalChunks int) (io.ReadCloser, error) {
	readers := make([]io.Reader, 0, totalChunks)
	files := make([]*os.File, 0, totalChunks)
	for i := 0; i < totalChunks; i++ {
		f, err := os.Open(s.chunkPath(sessionID, i))
		if err != nil {
			for _, open := range files {
				open.Close()
			}
			return nil, fmt.Errorf("missing chunk %d: %w", i, err)
		}
		files = append(files, f)
		readers = append(readers, f)
	}
	return &multiFileReader{Reader: io.MultiReader(readers...), files: files}, nil
}

func (s *LocalChunkStore) Remove(_ context.Context, sessionID string) error {
	return os.RemoveAll(filepath.Join(s.dir, sessionID))
}

func (s *LocalChunkStore) chunkPath(sessionID string, index int) string {
	return filepath.Join(s.dir, sessionID, strconv.Itoa(index)+".part")
}

type multiFileReader struct {
	io.Reader
	files []*os.File
}

func (m *multiFileReader) Close() error {
	var firstErr error
	for _, f := range m.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
