package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voice-notes-ai/backend/internal/models"
)

// EntryStatus tracks an entry of the displayed conversation.
type EntryStatus string

const (
	EntryPending EntryStatus = "pending"
	EntrySaved   EntryStatus = "saved"
	EntryFailed  EntryStatus = "failed"
)

// ChatEntry is a displayed message. Pending entries carry a temporary id
// until the persisted copy replaces them.
type ChatEntry struct {
	models.ChatMessage
	Status EntryStatus `json:"status"`
}

// ChatLoading reports whether a send is in flight.
func (s *Session) ChatLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatLoading
}

// Send posts a user message about the selected recording and appends the
// assistant's reply. The message shows immediately as pending; if it cannot
// be stored it stays visible as failed and no reply is requested.
func (s *Session) Send(ctx context.Context, input string) error {
	finish, err := s.BeginSend(input)
	if err != nil {
		return err
	}
	return finish(ctx)
}

// pendingTurn is a user message shown as pending and not yet stored.
type pendingTurn struct {
	recordingID   uuid.UUID
	transcription string
	history       []models.ChatTurn
	tempID        uuid.UUID
	input         string
	at            time.Time
}

// BeginSend appends the pending user message and returns the remaining work,
// which must be called exactly once.
func (s *Session) BeginSend(input string) (func(ctx context.Context) error, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.chatLoading {
		s.mu.Unlock()
		return nil, ErrChatInFlight
	}
	rec := s.findLocked(s.selectedID)
	if rec == nil || !rec.HasTranscription() {
		s.mu.Unlock()
		return nil, ErrChatUnavailable
	}
	if strings.TrimSpace(input) == "" {
		s.mu.Unlock()
		return nil, ErrEmptyMessage
	}
	recordingID, transcription := rec.ID, rec.TranscriptionText()

	history := make([]models.ChatTurn, 0, len(s.messages)+1)
	for _, e := range s.messages {
		if e.Status == EntrySaved {
			history = append(history, e.Turn())
		}
	}
	tempID := uuid.New()
	at := s.now()
	s.messages = append(s.messages, ChatEntry{
		ChatMessage: models.ChatMessage{ID: tempID, RecordingID: recordingID, Role: models.RoleUser, Content: input, Timestamp: at},
		Status:      EntryPending,
	})
	s.chatLoading = true
	s.mu.Unlock()
	s.notify()

	turn := pendingTurn{recordingID: recordingID, transcription: transcription, history: history, tempID: tempID, input: input, at: at}
	return func(ctx context.Context) error { return s.send(ctx, turn) }, nil
}

func (s *Session) send(ctx context.Context, turn pendingTurn) error {
	recordingID := turn.recordingID
	defer func() {
		s.mu.Lock()
		s.chatLoading = false
		s.mu.Unlock()
		s.notify()
	}()

	saved, err := s.deps.Chat.SaveMessage(ctx, recordingID, models.RoleUser, turn.input, turn.at)
	if err != nil {
		s.logger.Error("save user message failed", zap.Error(err), zap.String("recording_id", recordingID.String()))
		s.mu.Lock()
		if e := s.entryLocked(turn.tempID); e != nil {
			e.Status = EntryFailed
		}
		s.errMsg = err.Error()
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	if e := s.entryLocked(turn.tempID); e != nil {
		*e = ChatEntry{ChatMessage: *saved, Status: EntrySaved}
	}
	s.mu.Unlock()
	s.notify()

	history := append(turn.history, saved.Turn())
	reply, err := s.deps.Assistant.Reply(ctx, history, turn.transcription)
	if err != nil {
		s.logger.Error("assistant reply failed", zap.Error(err), zap.String("recording_id", recordingID.String()))
		s.fail(err)
		return err
	}

	stored, err := s.deps.Chat.SaveMessage(ctx, recordingID, models.RoleAssistant, reply, s.now())
	if err != nil {
		s.logger.Error("save assistant message failed", zap.Error(err), zap.String("recording_id", recordingID.String()))
		s.fail(err)
		return err
	}
	s.mu.Lock()
	if s.selectedID == recordingID {
		s.messages = append(s.messages, ChatEntry{ChatMessage: *stored, Status: EntrySaved})
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) entryLocked(id uuid.UUID) *ChatEntry {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return &s.messages[i]
		}
	}
	return nil
}
