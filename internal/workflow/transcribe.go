package workflow

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voice-notes-ai/backend/internal/models"
)

// Transcribing reports whether a transcription for id is in flight.
func (s *Session) Transcribing(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcribing[id]
}

// Transcribe fetches the recording's audio, transcribes it and attaches the
// text to the list entry before persisting it. While in flight a second call
// for the same id returns ErrTranscriptionInFlight.
func (s *Session) Transcribe(ctx context.Context, id uuid.UUID) error {
	finish, err := s.BeginTranscribe(id)
	if err != nil {
		return err
	}
	return finish(ctx)
}

// BeginTranscribe marks id as in flight and returns the remaining work,
// which must be called exactly once.
func (s *Session) BeginTranscribe(id uuid.UUID) (func(ctx context.Context) error, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.transcribing[id] {
		s.mu.Unlock()
		return nil, ErrTranscriptionInFlight
	}
	cur := s.findLocked(id)
	if cur == nil {
		s.mu.Unlock()
		return nil, ErrRecordingNotFound
	}
	rec := *cur
	s.transcribing[id] = true
	s.mu.Unlock()
	s.notify()

	return func(ctx context.Context) error { return s.transcribe(ctx, rec) }, nil
}

func (s *Session) transcribe(ctx context.Context, rec models.Recording) error {
	id := rec.ID
	defer func() {
		s.mu.Lock()
		delete(s.transcribing, id)
		s.mu.Unlock()
		s.notify()
	}()

	if !rec.AudioURLValid(s.now()) {
		if !s.deps.Recordings.RefreshAudioURL(ctx, &rec) {
			s.fail(ErrPlaybackUnavailable)
			return ErrPlaybackUnavailable
		}
		s.mu.Lock()
		if cur := s.findLocked(id); cur != nil {
			cur.AudioURL, cur.AudioURLExpiresAt = rec.AudioURL, rec.AudioURLExpiresAt
		}
		s.mu.Unlock()
	}

	audio, err := s.deps.Fetcher.Fetch(ctx, rec.AudioURL)
	if err != nil {
		s.logger.Error("fetch audio failed", zap.Error(err), zap.String("recording_id", id.String()))
		s.fail(err)
		return err
	}

	text, err := s.deps.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		terr := &TranscriptionError{Cause: err}
		s.logger.Error("transcription error", zap.Error(err), zap.String("recording_id", id.String()))
		s.fail(terr)
		return terr
	}

	s.mu.Lock()
	if cur := s.findLocked(id); cur != nil {
		cur.Transcription = &text
	}
	s.mu.Unlock()
	s.notify()

	if _, err := s.deps.Recordings.UpdateTranscription(ctx, id, text); err != nil {
		s.fail(err)
		return err
	}
	return nil
}
