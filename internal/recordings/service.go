package recordings

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voice-notes-ai/backend/internal/models"
	"github.com/voice-notes-ai/backend/pkg/utils"
)

var (
	// ErrInvalidDuration is returned for a duration not in m:ss form.
	ErrInvalidDuration = errors.New("duration must be formatted m:ss")
	// ErrUploadFailed wraps object storage failures during save. No row is written.
	ErrUploadFailed = errors.New("failed to upload audio")
)

var durationPattern = regexp.MustCompile(`^\d+:[0-5]\d$`)

// Store is the persistence side of recordings. *Repository satisfies it.
type Store interface {
	Create(ctx context.Context, audioKey, duration string) (*models.Recording, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	List(ctx context.Context) ([]models.Recording, error)
	UpdateTranscription(ctx context.Context, id uuid.UUID, transcription string) (*models.Recording, error)
}

// ObjectStore is the audio object side. *storage.S3 satisfies it.
type ObjectStore interface {
	NewRecordingKey() string
	UploadRecording(ctx context.Context, key string, data []byte) error
	PresignAudio(ctx context.Context, key string) (string, time.Time, error)
	DeleteRecording(ctx context.Context, key string) error
}

// Notifier is told about library changes so open pages can refresh. Optional.
type Notifier interface {
	RecordingSaved(ctx context.Context, rec *models.Recording)
	TranscriptionUpdated(ctx context.Context, rec *models.Recording)
}

// Service implements saving, listing and transcript attachment for recordings.
type Service struct {
	store    Store
	objects  ObjectStore
	notifier Notifier
	logger   *zap.Logger
}

// NewService creates a recordings service.
func NewService(store Store, objects ObjectStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, objects: objects, logger: logger}
}

// SetNotifier sets the optional library change notifier.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// SaveRecording decodes base64 audio, uploads it and only then inserts the
// metadata row. If the insert fails the uploaded object is deleted.
func (s *Service) SaveRecording(ctx context.Context, audioBase64, duration string) (*models.Recording, error) {
	duration = strings.TrimSpace(duration)
	if !durationPattern.MatchString(duration) {
		return nil, ErrInvalidDuration
	}
	data, err := utils.DecodeAudio(audioBase64)
	if err != nil {
		return nil, err
	}

	key := s.objects.NewRecordingKey()
	if err := s.objects.UploadRecording(ctx, key, data); err != nil {
		s.logger.Error("upload recording failed", zap.Error(err), zap.String("key", key))
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	rec, err := s.store.Create(ctx, key, duration)
	if err != nil {
		s.logger.Error("insert recording failed", zap.Error(err), zap.String("key", key))
		if delErr := s.objects.DeleteRecording(ctx, key); delErr != nil {
			s.logger.Warn("orphan recording object left behind", zap.Error(delErr), zap.String("key", key))
		}
		return nil, err
	}
	s.logger.Info("recording saved", zap.String("recording_id", rec.ID.String()), zap.String("key", key), zap.String("duration", duration))
	if s.notifier != nil {
		s.notifier.RecordingSaved(ctx, rec)
	}
	return rec, nil
}

// AudioURL returns a fresh signed playback URL. Absent (false) when signing fails.
func (s *Service) AudioURL(ctx context.Context, key string) (string, bool) {
	url, _, err := s.objects.PresignAudio(ctx, key)
	if err != nil {
		s.logger.Warn("presign audio failed", zap.Error(err), zap.String("key", key))
		return "", false
	}
	return url, true
}

// RefreshAudioURL replaces rec's derived URL and expiry. Returns false when
// signing failed, leaving the URL empty.
func (s *Service) RefreshAudioURL(ctx context.Context, rec *models.Recording) bool {
	url, expiresAt, err := s.objects.PresignAudio(ctx, rec.AudioKey)
	if err != nil {
		s.logger.Warn("presign audio failed", zap.Error(err), zap.String("key", rec.AudioKey))
		rec.AudioURL = ""
		rec.AudioURLExpiresAt = nil
		return false
	}
	rec.AudioURL = url
	rec.AudioURLExpiresAt = &expiresAt
	return true
}

// List returns recordings newest first, each with a freshly signed URL.
// A non-empty query keeps only ids containing it, case-insensitively.
func (s *Service) List(ctx context.Context, query string) ([]models.Recording, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	list = Filter(list, query)
	for i := range list {
		s.RefreshAudioURL(ctx, &list[i])
	}
	return list, nil
}

// GetByID returns the stored recording without signing a URL.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	return s.store.GetByID(ctx, id)
}

// Get returns one recording with a freshly signed URL.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.RefreshAudioURL(ctx, rec)
	return rec, nil
}

// UpdateTranscription stores transcription on the recording.
func (s *Service) UpdateTranscription(ctx context.Context, id uuid.UUID, transcription string) (*models.Recording, error) {
	rec, err := s.store.UpdateTranscription(ctx, id, transcription)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		s.logger.Error("update transcription failed", zap.Error(err), zap.String("recording_id", id.String()))
		return nil, fmt.Errorf("failed to update transcription in the database: %w", err)
	}
	if s.notifier != nil {
		s.notifier.TranscriptionUpdated(ctx, rec)
	}
	return rec, nil
}

// Filter keeps recordings whose id contains query, case-insensitively.
func Filter(list []models.Recording, query string) []models.Recording {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return list
	}
	out := make([]models.Recording, 0, len(list))
	for _, rec := range list {
		if strings.Contains(strings.ToLower(rec.ID.String()), query) {
			out = append(out, rec)
		}
	}
	return out
}
