package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voice-notes-ai/backend/internal/models"
	"github.com/voice-notes-ai/backend/internal/recordings"
)

var (
	ErrRecordingNotFound = errors.New("recording not found")
	ErrInvalidRole       = errors.New("role must be user or assistant")
	ErrEmptyContent      = errors.New("message content must not be empty")
	ErrNoTranscription   = errors.New("recording has no transcription yet")
	ErrReplyFailed       = errors.New("assistant reply failed")
)

// Store persists chat messages. *Repository satisfies it.
type Store interface {
	Create(ctx context.Context, msg *models.ChatMessage) error
	ListByRecording(ctx context.Context, recordingID uuid.UUID) ([]models.ChatMessage, error)
}

// RecordingLookup resolves the recording a conversation belongs to.
type RecordingLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
}

// Assistant produces a reply grounded on a transcript. *llm.Client satisfies it.
type Assistant interface {
	Reply(ctx context.Context, history []models.ChatTurn, transcription string) (string, error)
}

// Service implements chat persistence and server-side conversation turns.
type Service struct {
	store      Store
	recordings RecordingLookup
	assistant  Assistant
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a chat service.
func NewService(store Store, recs RecordingLookup, assistant Assistant, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, recordings: recs, assistant: assistant, logger: logger, now: time.Now}
}

// SaveMessage validates and persists one message. A zero timestamp means now.
func (s *Service) SaveMessage(ctx context.Context, recordingID uuid.UUID, role, content string, at time.Time) (*models.ChatMessage, error) {
	if !models.ValidRole(role) {
		return nil, ErrInvalidRole
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if _, err := s.lookup(ctx, recordingID); err != nil {
		return nil, err
	}
	if at.IsZero() {
		at = s.now()
	}
	msg := &models.ChatMessage{RecordingID: recordingID, Role: role, Content: content, Timestamp: at}
	if err := s.store.Create(ctx, msg); err != nil {
		if !errors.Is(err, ErrRecordingNotFound) {
			s.logger.Error("save chat message failed", zap.Error(err), zap.String("recording_id", recordingID.String()))
		}
		return nil, err
	}
	return msg, nil
}

// List returns the conversation for a recording in ascending timestamp order.
func (s *Service) List(ctx context.Context, recordingID uuid.UUID) ([]models.ChatMessage, error) {
	list, err := s.store.ListByRecording(ctx, recordingID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
	return list, nil
}

// Reply asks the assistant directly, without touching persistence.
func (s *Service) Reply(ctx context.Context, history []models.ChatTurn, transcription string) (string, error) {
	for _, turn := range history {
		if !models.ValidRole(turn.Role) {
			return "", ErrInvalidRole
		}
	}
	if strings.TrimSpace(transcription) == "" {
		return "", ErrNoTranscription
	}
	reply, err := s.assistant.Reply(ctx, history, transcription)
	if err != nil {
		s.logger.Error("assistant reply failed", zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrReplyFailed, err)
	}
	return reply, nil
}

// Converse runs one full turn: persist the user message, ask the assistant
// with the stored history, persist the reply. The user message stays stored
// when the reply fails.
func (s *Service) Converse(ctx context.Context, recordingID uuid.UUID, content string) (user, assistant *models.ChatMessage, err error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil, ErrEmptyContent
	}
	rec, err := s.lookup(ctx, recordingID)
	if err != nil {
		return nil, nil, err
	}
	if !rec.HasTranscription() {
		return nil, nil, ErrNoTranscription
	}
	prior, err := s.List(ctx, recordingID)
	if err != nil {
		return nil, nil, err
	}
	user, err = s.SaveMessage(ctx, recordingID, models.RoleUser, content, s.now())
	if err != nil {
		return nil, nil, err
	}

	history := make([]models.ChatTurn, 0, len(prior)+1)
	for _, m := range prior {
		history = append(history, m.Turn())
	}
	history = append(history, user.Turn())

	reply, err := s.Reply(ctx, history, rec.TranscriptionText())
	if err != nil {
		return user, nil, err
	}
	assistant, err = s.SaveMessage(ctx, recordingID, models.RoleAssistant, reply, s.now())
	if err != nil {
		return user, nil, err
	}
	return user, assistant, nil
}

func (s *Service) lookup(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	rec, err := s.recordings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, recordings.ErrNotFound) {
			return nil, ErrRecordingNotFound
		}
		return nil, err
	}
	return rec, nil
}
