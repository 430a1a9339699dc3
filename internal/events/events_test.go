package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUploadChannel(t *testing.T) {
	require.Equal(t, "channel:upload:upl_abc123", UploadChannel("upl_abc123"))
}

func TestProgressEventJSONShape(t *testing.T) {
	ev := ProgressEvent{
		Type:            EventTypeUploadProgress,
		SessionID:       "upl_abc123",
		Status:          "IN_PROGRESS",
		UploadedChunks:  3,
		TotalChunks:     10,
		UploadedBytes:   300,
		TotalSizeBytes:  1000,
		ProgressPercent: 30,
		OccurredAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "upload.progress", decoded["type"])
	require.Equal(t, "upl_abc123", decoded["session_id"])
	require.Equal(t, float64(30), decoded["progress_percent"])
	require.Contains(t, decoded, "occurred_at")
}
