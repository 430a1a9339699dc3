package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"huddle-chat/internal/domain/upload"
	"huddle-chat/internal/repository"
	"huddle-chat/internal/storage"
	huddle_errors "huddle-chat/pkg/errors"
	"huddle-chat/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	testFileSize  = int64(10_485_760)
	testChunkSize = int64(1_048_576)
)

func newTestEngine(t *testing.T, finalizer Finalizer, ttl time.Duration) (*UploadService, *repository.MemoryUploadRepository) {
	t.Helper()
	repo := repository.NewMemoryUploadRepository()
	store, err := storage.NewLocalChunkStore(t.TempDir())
	require.NoError(t, err)
	return NewUploadService(repo, store, finalizer, nil, logger.NewNop(), ttl, 0), repo
}

func initiateTestUpload(t *testing.T, svc *UploadService) upload.UploadSession {
	t.Helper()
	session, err := svc.InitiateUpload(context.Background(), InitiateUploadInput{
		FileName:       "video.mp4",
		TotalSizeBytes: testFileSize,
		MimeType:       "video/mp4",
		ChunkSizeBytes: testChunkSize,
		Checksum:       "sha256:abc",
		UploaderID:     uuid.New(),
	})
	require.NoError(t, err)
	return session
}

func chunkData(n int64) []byte {
	return make([]byte, n)
}

func TestInitiateUpload(t *testing.T) {
	svc, _ := newTestEngine(t, nil, 24*time.Hour)

	session := initiateTestUpload(t, svc)

	require.Equal(t, 10, session.TotalChunks)
	require.Equal(t, upload.StatusPending, session.Status)
	require.Equal(t, 0, session.UploadedChunks)
	require.Equal(t, int64(0), session.UploadedBytes)
	require.NotEmpty(t, session.SessionID)
	require.Contains(t, session.SessionID, "upl_")
	require.True(t, session.ExpiresAt.After(time.Now().Add(23*time.Hour)))
}

func TestInitiateUploadValidation(t *testing.T) {
	svc, _ := newTestEngine(t, nil, 24*time.Hour)
	chatroomID := uuid.New()
	threadID := uuid.New()

	cases := []struct {
		name string
		in   InitiateUploadInput
	}{
		{"missing file name", InitiateUploadInput{TotalSizeBytes: 1, ChunkSizeBytes: 1, UploaderID: uuid.New()}},
		{"zero total size", InitiateUploadInput{FileName: "a", ChunkSizeBytes: 1, UploaderID: uuid.New()}},
		{"zero chunk size", InitiateUploadInput{FileName: "a", TotalSizeBytes: 1, UploaderID: uuid.New()}},
		{"missing uploader", InitiateUploadInput{FileName: "a", TotalSizeBytes: 1, ChunkSizeBytes: 1}},
		{"both contexts set", InitiateUploadInput{FileName: "a", TotalSizeBytes: 1, ChunkSizeBytes: 1, UploaderID: uuid.New(), ChatroomID: &chatroomID, ThreadID: &threadID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.InitiateUpload(context.Background(), tc.in)
			require.ErrorIs(t, err, huddle_errors.ErrInvalidInput)
		})
	}
}

func TestUploadChunkOrderedCompletion(t *testing.T) {
	svc, _ := newTestEngine(t, nil, 24*time.Hour)
	session := initiateTestUpload(t, svc)

	for i := 0; i < 9; i++ {
		updated, err := svc.UploadChunk(context.Background(), UploadChunkInput{
			SessionID:  session.SessionID,
			ChunkIndex: i,
			Data:       chunkData(testChunkSize),
		})
		require.NoError(t, err)
		require.Equal(t, upload.StatusInProgress, updated.Status)
		require.Equal(t, i+1, updated.UploadedChunks)
		require.Equal(t, int64(i+1)*testChunkSize, updated.UploadedBytes)

		// Invariants hold at every observed state.
		require.LessOrEqual(t, updated.UploadedChunks, updated.TotalChunks)
		require.LessOrEqual(t, updated.UploadedBytes, updated.TotalSizeBytes)
		require.Len(t, updated.Chunks, updated.UploadedChunks)
		require.Nil(t, updated.CompletedAt)
	}

	final, err := svc.UploadChunk(context.Background(), UploadChunkInput{
		SessionID:  session.SessionID,
		ChunkIndex: 9,
		Data:       chunkData(testChunkSize),
		IsFinal:    true,
	})
	require.NoError(t, err)
	require.Equal(t, upload.StatusCompleted, final.Status)
	require.Equal(t, 10, final.UploadedChunks)
	require.Equal(t, testFileSize, final.UploadedBytes)
	require.NotNil(t, final.CompletedAt)
}

func TestUploadChunkOutOfOrder(t *testing.T) {
	svc, _ := newTestEngine(t, nil, 24*time.Hour)
	session := initiateTestUpload(t, svc)

	_, err := svc.UploadChunk(context.Background(), UploadChunkInput{
		SessionID:  session.SessionID,
		ChunkIndex: 3,
		Data:       chunkData(testChunkSize),
	})
	require.ErrorIs(t, err, huddle_errors.ErrInvalidChunkSequence)

	// Accept index 0, then resubmitting it must fail: the expected
	// index has advanced.
	_, err = svc.UploadChunk(context.Background(), UploadChunkInput{
		SessionID:  session.SessionID,
		ChunkIndex: 0,
		Data:       chunkData(testChunkSize),
	})
	require.NoError(t, err)

	_, err = svc.UploadChunk(context.Background(), UploadChunkInput{
		SessionID:  session.SessionID,
		ChunkIndex: 0,
		Data:       chunkData(testChunkSize),
	})
	require.ErrorIs(t, err, huddle_errors.ErrInvalidChunkSequence)
}

func TestUploadChunkUnknownSession(t *testing.T) {
	svc, _ := newTestEngine(t, nil, 24*time.Hour)

	_, err := svc.UploadChunk(context.Background(), UploadChunkInput{
		SessionID:  "upl_does_not_exist",
		ChunkIndex: 0,
		Data:       chunkData(1),
	})
	require.ErrorIs(t, err, huddle_errors.ErrSessionNotFound)
}

func TestUploadChunkOversized(t *testing.T) {
	svc, _ := newTestEngine(t, nil, 24*time.Hour)
	session := initiateTestUpload(t, svc)

	_, err := svc.UploadChunk(context.Background(), UploadChunkInput{
		SessionID:  session.SessionID,
		ChunkIndex: 0,
		Data:       chunkData(testFileSize + 1),
	})
	require.ErrorIs(t, err, huddle_errors.ErrTooLarge)
}

func TestCancelUpload(t *testing.T) {
	svc, _ := newTestEngine(t, nil, 24*time.Hour)
	session := initiateTestUpload(t, svc)

	cancelled, err := svc.CancelUpload(context.Background(), session.SessionID)
	require.NoError(t, err)
	require.Equal(t, upload.StatusCancelled, cancelled.Status)

	// Terminal immutability: no further mutation is permitted.
	_, err = svc.UploadChunk(context.Background(), UploadChunkInput{
		SessionID:  session.SessionID,
		ChunkIndex: 0,
		Data:       chunkData(testChunkSize),
	})
	require.ErrorIs(t, err, huddle_errors.ErrInvalidState)

	_, err = svc.CancelUpload(context.Background(), session.SessionID)
	require.ErrorIs(t, err, huddle_errors.ErrInvalidState)
}

func TestCancelPreservesChunkHistory(t *testing.T) {
	svc, _ := newTestEngine(t, nil, 24*time.Hour)
	session := initiateTestUpload(t, svc)

	for i := 0; i < 3; i++ {
		_, err := svc.UploadChunk(context.Background(), UploadChunkInput{
			SessionID:  session.SessionID,
			ChunkIndex: i,
			Data:       chunkData(testChunkSize),
		})
		require.NoError(t, err)
	}

	_, err := svc.CancelUpload(context.Background(), session.SessionID)
	require.NoError(t, err)

	got, err := svc.GetUploadSession(context.Background(), session.SessionID)
	require.NoError(t, err)
	require.Equal(t, upload.StatusCancelled, got.Status)
	require.Equal(t, 3, got.UploadedChunks)
	require.Len(t, got.Chunks, 3)
}

func TestUploadChunkConcurrentSameIndex(t *testing.T) {
	svc, _ := newTestEngine(t, nil, 24*time.Hour)
	session := initiateTestUpload(t, svc)

	const writers = 2
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, errs[slot] = svc.UploadChunk(context.Background(), UploadChunkInput{
				SessionID:  session.SessionID,
				ChunkIndex: 0,
				Data:       chunkData(testChunkSize),
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		require.True(t,
			errors.Is(err, huddle_errors.ErrInvalidChunkSequence) || errors.Is(err, huddle_errors.ErrInvalidState),
			"unexpected error: %v", err)
	}
	require.Equal(t, 1, successes)

	got, err := svc.GetUploadSession(context.Background(), session.SessionID)
	require.NoError(t, err)
	require.Equal(t, 1, got.UploadedChunks)
	require.Equal(t, testChunkSize, got.UploadedBytes)
}

func TestFinalizeHookRuns(t *testing.T) {
	var finalized upload.UploadSession
	hook := FinalizerFunc(func(_ context.Context, s upload.UploadSession) (string, error) {
		finalized = s
		return "https://files.example.com/video.mp4", nil
	})
	svc, _ := newTestEngine(t, hook, 24*time.Hour)
	session := initiateTestUpload(t, svc)

	var (
		final upload.UploadSession
		err   error
	)
	for i := 0; i < 10; i++ {
		final, err = svc.UploadChunk(context.Background(), UploadChunkInput{
			SessionID:  session.SessionID,
			ChunkIndex: i,
			Data:       chunkData(testChunkSize),
			IsFinal:    i == 9,
		})
		require.NoError(t, err)
	}

	require.Equal(t, upload.StatusCompleted, final.Status)
	require.Equal(t, "https://files.example.com/video.mp4", final.FileURL)
	require.Equal(t, session.SessionID, finalized.SessionID)
	require.Equal(t, 10, finalized.UploadedChunks)
}

func TestFinalizeFailureMarksFailed(t *testing.T) {
	hook := FinalizerFunc(func(_ context.Context, _ upload.UploadSession) (string, error) {
		return "", errors.New("bucket unavailable")
	})
	svc, _ := newTestEngine(t, hook, 24*time.Hour)
	session := initiateTestUpload(t, svc)

	var err error
	for i := 0; i < 9; i++ {
		_, err = svc.UploadChunk(context.Background(), UploadChunkInput{
			SessionID:  session.SessionID,
			ChunkIndex: i,
			Data:       chunkData(testChunkSize),
		})
		require.NoError(t, err)
	}

	_, err = svc.UploadChunk(context.Background(), UploadChunkInput{
		SessionID:  session.SessionID,
		ChunkIndex: 9,
		Data:       chunkData(testChunkSize),
		IsFinal:    true,
	})
	require.ErrorIs(t, err, huddle_errors.ErrFinalizeFailed)

	// The session must not be left falsely COMPLETED, and the chunk
	// history survives as audit trail.
	got, getErr := svc.GetUploadSession(context.Background(), session.SessionID)
	require.NoError(t, getErr)
	require.Equal(t, upload.StatusFailed, got.Status)
	require.Equal(t, 10, got.UploadedChunks)
	require.Len(t, got.Chunks, 10)
}

func TestNotificationFailureDoesNotFailChunk(t *testing.T) {
	repo := repository.NewMemoryUploadRepository()
	store, err := storage.NewLocalChunkStore(t.TempDir())
	require.NoError(t, err)
	notifier := NewProgressNotifier(&fakePublisher{err: errors.New("redis down")}, repo, logger.NewNop(), 0, 10)
	svc := NewUploadService(repo, store, nil, notifier, logger.NewNop(), 24*time.Hour, 0)

	session := initiateTestUpload(t, svc)
	updated, err := svc.UploadChunk(context.Background(), UploadChunkInput{
		SessionID:  session.SessionID,
		ChunkIndex: 0,
		Data:       chunkData(testChunkSize),
	})
	require.NoError(t, err)
	require.Equal(t, upload.StatusInProgress, updated.Status)
}

func TestMaxChunkSizeEnforced(t *testing.T) {
	repo := repository.NewMemoryUploadRepository()
	store, err := storage.NewLocalChunkStore(t.TempDir())
	require.NoError(t, err)
	svc := NewUploadService(repo, store, nil, nil, logger.NewNop(), 24*time.Hour, 16)

	session := initiateTestUpload(t, svc)
	_, err = svc.UploadChunk(context.Background(), UploadChunkInput{
		SessionID:  session.SessionID,
		ChunkIndex: 0,
		Data:       chunkData(17),
	})
	require.ErrorIs(t, err, huddle_errors.ErrTooLarge)
}
