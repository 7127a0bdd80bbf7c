package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voice-notes-ai/backend/internal/models"
	"github.com/voice-notes-ai/backend/internal/transcription"
	"github.com/voice-notes-ai/backend/pkg/queue"
)

// DequeueBackoff is the pause after a failed dequeue.
const DequeueBackoff = 2 * time.Second

// JobQueue is the job source. *queue.Queue satisfies it.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	DeadLetter(ctx context.Context, job *queue.Job, cause error) error
}

// Transcriber transcribes a stored recording and persists the text.
type Transcriber interface {
	TranscribeRecording(ctx context.Context, id uuid.UUID) (*models.Recording, error)
}

// TranscriptionProcessor processes transcription jobs: read the audio from S3,
// transcribe it and store the text. Failed jobs go to the DLQ without retry.
type TranscriptionProcessor struct {
	transcriber Transcriber
	queue       JobQueue
	jobTimeout  time.Duration
	backoff     time.Duration
	logger      *zap.Logger
}

// NewTranscriptionProcessor creates a transcription job processor.
func NewTranscriptionProcessor(transcriber Transcriber, q JobQueue, jobTimeout time.Duration, logger *zap.Logger) *TranscriptionProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Minute
	}
	return &TranscriptionProcessor{
		transcriber: transcriber,
		queue:       q,
		jobTimeout:  jobTimeout,
		backoff:     DequeueBackoff,
		logger:      logger,
	}
}

// Process executes one transcription job. A recording already being
// transcribed elsewhere is skipped, not failed.
func (p *TranscriptionProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := job.TranscriptionPayload()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	rec, err := p.transcriber.TranscribeRecording(ctx, payload.RecordingID)
	if errors.Is(err, transcription.ErrInFlight) {
		p.logger.Info("transcription already in flight, skipping", zap.String("job_id", job.ID), zap.String("recording_id", payload.RecordingID.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("transcribe %s: %w", payload.RecordingID, err)
	}
	p.logger.Info("transcription job completed",
		zap.String("job_id", job.ID),
		zap.String("recording_id", rec.ID.String()),
		zap.Int("chars", len(rec.TranscriptionText())),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, dead-letter on error.
func (p *TranscriptionProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("transcription worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			// ctx may be cancelled by shutdown; the DLQ write still goes through.
			dlqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if dlErr := p.queue.DeadLetter(dlqCtx, job, err); dlErr != nil {
				p.logger.Error("dead-letter failed", zap.String("job_id", job.ID), zap.Error(dlErr))
			}
			cancel()
		}
	}
}

func (p *TranscriptionProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
