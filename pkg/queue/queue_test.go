package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewJob_RoundTripsTranscriptionPayload(t *testing.T) {
	id := uuid.New()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	job, raw, err := newJob(JobTypeTranscription, TranscriptionPayload{RecordingID: id}, at)
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	decoded, err := decodeJob(string(raw))
	require.NoError(t, err)
	require.Equal(t, job.ID, decoded.ID)
	require.True(t, at.Equal(decoded.CreatedAt))

	p, err := decoded.TranscriptionPayload()
	require.NoError(t, err)
	require.Equal(t, id, p.RecordingID)
}

func TestDecodeJob_Invalid(t *testing.T) {
	_, err := decodeJob("not json")
	require.Error(t, err)

	_, err = decodeJob(`{"payload":{}}`)
	require.Error(t, err)
}

func TestTranscriptionPayload_Validation(t *testing.T) {
	job := &Job{ID: "1", Type: "email", Payload: []byte(`{}`)}
	_, err := job.TranscriptionPayload()
	require.Error(t, err)

	job = &Job{ID: "1", Type: JobTypeTranscription, Payload: []byte(`{}`)}
	_, err = job.TranscriptionPayload()
	require.ErrorContains(t, err, "recording_id")
}
