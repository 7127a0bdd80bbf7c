package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueTranscriptions is the Redis list key for transcription jobs.
	QueueTranscriptions = "worker:transcriptions"
	// QueueDLQ is the dead-letter queue for failed jobs. Jobs are never retried.
	QueueDLQ = "worker:dlq"
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeTranscription JobType = "transcription"
)

// TranscriptionPayload is the payload for transcription jobs.
type TranscriptionPayload struct {
	RecordingID uuid.UUID `json:"recording_id"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	FailedAt  *time.Time      `json:"failed_at,omitempty"`
}

// TranscriptionPayload decodes the job payload.
func (j *Job) TranscriptionPayload() (TranscriptionPayload, error) {
	var p TranscriptionPayload
	if j.Type != JobTypeTranscription {
		return p, fmt.Errorf("queue: job %s has type %q", j.ID, j.Type)
	}
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return p, fmt.Errorf("queue: decode payload: %w", err)
	}
	if p.RecordingID == uuid.Nil {
		return p, errors.New("queue: payload missing recording_id")
	}
	return p, nil
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger, now: time.Now}
}

func newJob(typ JobType, payload any, at time.Time) (*Job, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}
	job := &Job{
		ID:        uuid.New().String(),
		Type:      typ,
		Payload:   body,
		CreatedAt: at,
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal job: %w", err)
	}
	return job, raw, nil
}

// EnqueueTranscription enqueues a transcription job and returns its id.
func (q *Queue) EnqueueTranscription(ctx context.Context, recordingID uuid.UUID) (string, error) {
	job, raw, err := newJob(JobTypeTranscription, TranscriptionPayload{RecordingID: recordingID}, q.now())
	if err != nil {
		return "", err
	}
	if err := q.client.RPush(ctx, QueueTranscriptions, raw).Err(); err != nil {
		return "", fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued transcription job", zap.String("job_id", job.ID), zap.String("recording_id", recordingID.String()))
	return job.ID, nil
}

// Dequeue blocks until a job is available or ctx is done.
// Undecodable entries are logged and skipped (nil job, nil error).
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, 0, QueueTranscriptions).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	job, err := decodeJob(result[1])
	if err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return job, nil
}

func decodeJob(raw string) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, err
	}
	if job.ID == "" || job.Type == "" {
		return nil, errors.New("missing id or type")
	}
	return &job, nil
}

// DeadLetter records a failed job in the DLQ along with its cause.
func (q *Queue) DeadLetter(ctx context.Context, job *Job, cause error) error {
	failed := q.now()
	job.FailedAt = &failed
	if cause != nil {
		job.Error = cause.Error()
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
		q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
		return err
	}
	q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.String("error", job.Error))
	return nil
}
