package models

import (
	"time"

	"github.com/google/uuid"
)

// Recording is one captured audio take plus its metadata and optional transcript.
type Recording struct {
	ID            uuid.UUID `json:"id"`
	AudioKey      string    `json:"audio_key"`
	Duration      string    `json:"duration"` // m:ss
	Timestamp     time.Time `json:"timestamp"`
	Transcription *string   `json:"transcription"`

	// Derived per fetch, never persisted.
	AudioURL          string     `json:"audio_url,omitempty"`
	AudioURLExpiresAt *time.Time `json:"audio_url_expires_at,omitempty"`
}

// HasTranscription reports whether a non-empty transcription is attached.
func (r *Recording) HasTranscription() bool {
	return r != nil && r.Transcription != nil && *r.Transcription != ""
}

// TranscriptionText returns the transcription or "" when absent.
func (r *Recording) TranscriptionText() string {
	if r == nil || r.Transcription == nil {
		return ""
	}
	return *r.Transcription
}

// AudioURLValid reports whether the derived playback URL is set and not past its expiry.
// A URL without an expiry (an ephemeral local reference) is always valid.
func (r *Recording) AudioURLValid(now time.Time) bool {
	if r == nil || r.AudioURL == "" {
		return false
	}
	if r.AudioURLExpiresAt == nil {
		return true
	}
	return now.Before(*r.AudioURLExpiresAt)
}
