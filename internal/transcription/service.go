package transcription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voice-notes-ai/backend/internal/models"
	"github.com/voice-notes-ai/backend/pkg/lock"
)

var (
	// ErrInFlight is returned while another transcription of the same recording runs.
	ErrInFlight = errors.New("transcription already in progress")
	// ErrFailed wraps any failure of the speech-to-text call.
	ErrFailed = errors.New("failed to transcribe audio, please try again later")
)

// Transcriber turns audio bytes into text. *Client satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Recordings loads recordings and stores their transcription. *recordings.Service satisfies it.
type Recordings interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	UpdateTranscription(ctx context.Context, id uuid.UUID, transcription string) (*models.Recording, error)
}

// AudioReader reads stored audio objects. *storage.S3 satisfies it.
type AudioReader interface {
	GetRecording(ctx context.Context, key string) ([]byte, error)
}

// Service runs server-side transcription of stored recordings.
type Service struct {
	recordings  Recordings
	audio       AudioReader
	transcriber Transcriber
	locker      lock.Locker
	lockTTL     time.Duration
	logger      *zap.Logger
}

// NewService creates a transcription service. lockTTL bounds how long a crashed
// holder keeps a recording locked.
func NewService(recs Recordings, audio AudioReader, transcriber Transcriber, locker lock.Locker, lockTTL time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &Service{recordings: recs, audio: audio, transcriber: transcriber, locker: locker, lockTTL: lockTTL, logger: logger}
}

// Transcribe submits raw audio and returns the transcript exactly as received.
func (s *Service) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	text, err := s.transcriber.Transcribe(ctx, audio)
	if err != nil {
		s.logger.Error("transcription error", zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrFailed, err)
	}
	return text, nil
}

// TranscribeRecording transcribes a stored recording and attaches the result.
// At most one transcription per recording runs at a time across instances.
func (s *Service) TranscribeRecording(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	release, err := s.locker.Acquire(ctx, "transcription:"+id.String(), s.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return nil, ErrInFlight
		}
		return nil, err
	}
	defer release()

	rec, err := s.recordings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	audio, err := s.audio.GetRecording(ctx, rec.AudioKey)
	if err != nil {
		s.logger.Error("read recording audio failed", zap.Error(err), zap.String("recording_id", id.String()))
		return nil, fmt.Errorf("read audio: %w", err)
	}
	started := time.Now()
	text, err := s.Transcribe(ctx, audio)
	if err != nil {
		return nil, err
	}
	s.logger.Info("recording transcribed",
		zap.String("recording_id", id.String()),
		zap.Int("chars", len(text)),
		zap.Duration("took", time.Since(started)),
	)
	return s.recordings.UpdateTranscription(ctx, id, text)
}
