package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrNoDevice              = errors.New("no audio capture device available")
	ErrIllegalTransition     = errors.New("recorder is not recording")
	ErrNoAudio               = errors.New("no audio was captured")
	ErrRecordingNotFound     = errors.New("recording not in the current list")
	ErrPlaybackUnavailable   = errors.New("audio URL not available, retry later")
	ErrTranscriptionInFlight = errors.New("transcription already in progress")
	ErrChatUnavailable       = errors.New("chat needs a selected recording with a transcription")
	ErrEmptyMessage          = errors.New("message is empty")
	ErrChatInFlight          = errors.New("a message is already being sent")
	ErrSessionClosed         = errors.New("session closed")
)

// FetchError is returned when downloading recording audio got a non-success status.
type FetchError struct {
	StatusCode int
	Status     string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch audio: %s", e.Status)
}

// TranscriptionError wraps a failed call to the transcriber.
type TranscriptionError struct {
	Cause error
}

func (e *TranscriptionError) Error() string {
	return "failed to transcribe audio: " + e.Cause.Error()
}

func (e *TranscriptionError) Unwrap() error { return e.Cause }
