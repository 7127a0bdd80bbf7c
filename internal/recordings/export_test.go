package recordings

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/voice-notes-ai/backend/internal/models"
)

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("2:05")
	require.NoError(t, err)
	require.Equal(t, 125*time.Second, d)

	for _, bad := range []string{"", "125", "1:60", "a:00", "-1:00"} {
		_, err := ParseDuration(bad)
		require.ErrorIs(t, err, ErrInvalidDuration, bad)
	}
}

func TestExportTranscript(t *testing.T) {
	text := "hello there\nsecond line"
	rec := &models.Recording{ID: uuid.New(), AudioKey: "recording_1.wav", Duration: "0:07", Transcription: &text}

	data, contentType, err := ExportTranscript(rec, FormatSRT)
	require.NoError(t, err)
	require.Equal(t, "text/srt", contentType)
	require.Contains(t, string(data), "00:00:00,000 --> 00:00:07,000")
	require.Contains(t, string(data), "hello there")

	data, contentType, err = ExportTranscript(rec, FormatVTT)
	require.NoError(t, err)
	require.Equal(t, "text/vtt", contentType)
	require.Contains(t, string(data), "WEBVTT")

	_, _, err = ExportTranscript(rec, FormatTTML)
	require.NoError(t, err)

	_, _, err = ExportTranscript(rec, "docx")
	require.Error(t, err)

	require.Equal(t, "recording_1.vtt", TranscriptFilename(rec, FormatVTT))
}

func TestExportTranscript_Missing(t *testing.T) {
	_, _, err := ExportTranscript(&models.Recording{Duration: "0:01"}, FormatSRT)
	require.ErrorIs(t, err, ErrNoTranscription)
}
