package chat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/voice-notes-ai/backend/internal/models"
	"github.com/voice-notes-ai/backend/internal/recordings"
)

type mockStore struct {
	msgs      []models.ChatMessage
	createErr error
}

func (m *mockStore) Create(_ context.Context, msg *models.ChatMessage) error {
	if m.createErr != nil {
		return m.createErr
	}
	msg.ID = uuid.New()
	m.msgs = append(m.msgs, *msg)
	return nil
}

func (m *mockStore) ListByRecording(_ context.Context, id uuid.UUID) ([]models.ChatMessage, error) {
	var out []models.ChatMessage
	for _, msg := range m.msgs {
		if msg.RecordingID == id {
			out = append(out, msg)
		}
	}
	return out, nil
}

type mockRecordings map[uuid.UUID]*models.Recording

func (m mockRecordings) GetByID(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	rec, ok := m[id]
	if !ok {
		return nil, recordings.ErrNotFound
	}
	return rec, nil
}

type capturingAssistant struct {
	reply         string
	err           error
	calls         int
	history       []models.ChatTurn
	transcription string
}

func (a *capturingAssistant) Reply(_ context.Context, history []models.ChatTurn, transcription string) (string, error) {
	a.calls++
	a.history = history
	a.transcription = transcription
	return a.reply, a.err
}

func fixture(transcription *string) (*Service, *mockStore, *capturingAssistant, uuid.UUID) {
	id := uuid.New()
	recs := mockRecordings{id: {ID: id, AudioKey: "recording_1.wav", Duration: "0:09", Transcription: transcription}}
	store := &mockStore{}
	a := &capturingAssistant{reply: "It was about the budget."}
	svc := NewService(store, recs, a, nil)
	clock := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc, store, a, id
}

func strPtr(s string) *string { return &s }

func TestSaveMessage_Validation(t *testing.T) {
	svc, _, _, id := fixture(strPtr("t"))
	ctx := context.Background()

	_, err := svc.SaveMessage(ctx, id, "system", "x", time.Time{})
	require.ErrorIs(t, err, ErrInvalidRole)
	_, err = svc.SaveMessage(ctx, id, models.RoleUser, "  ", time.Time{})
	require.ErrorIs(t, err, ErrEmptyContent)
	_, err = svc.SaveMessage(ctx, uuid.New(), models.RoleUser, "x", time.Time{})
	require.ErrorIs(t, err, ErrRecordingNotFound)

	msg, err := svc.SaveMessage(ctx, id, models.RoleUser, "hi", time.Time{})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, msg.ID)
	require.False(t, msg.Timestamp.IsZero())
}

func TestList_Ascending(t *testing.T) {
	svc, store, _, id := fixture(strPtr("t"))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.msgs = []models.ChatMessage{
		{ID: uuid.New(), RecordingID: id, Role: "assistant", Content: "second", Timestamp: base.Add(time.Minute)},
		{ID: uuid.New(), RecordingID: id, Role: "user", Content: "first", Timestamp: base},
	}
	list, err := svc.List(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "first", list[0].Content)
	require.Equal(t, "second", list[1].Content)
}

func TestConverse_HistoryEndsWithNewUserTurn(t *testing.T) {
	svc, store, a, id := fixture(strPtr("We agreed on a 2M budget."))
	ctx := context.Background()
	_, err := svc.SaveMessage(ctx, id, models.RoleUser, "hello", time.Time{})
	require.NoError(t, err)
	_, err = svc.SaveMessage(ctx, id, models.RoleAssistant, "hi", time.Time{})
	require.NoError(t, err)

	user, reply, err := svc.Converse(ctx, id, "what was the budget?")
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, user.Role)
	require.Equal(t, models.RoleAssistant, reply.Role)
	require.Equal(t, "It was about the budget.", reply.Content)

	require.Equal(t, "We agreed on a 2M budget.", a.transcription)
	require.Equal(t, []models.ChatTurn{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
		{Role: "user", Content: "what was the budget?"},
	}, a.history)
	require.Len(t, store.msgs, 4)
}

func TestConverse_RequiresTranscription(t *testing.T) {
	svc, store, a, id := fixture(nil)
	_, _, err := svc.Converse(context.Background(), id, "anything?")
	require.ErrorIs(t, err, ErrNoTranscription)
	require.Zero(t, a.calls)
	require.Empty(t, store.msgs)
}

func TestConverse_ReplyFailureKeepsUserMessage(t *testing.T) {
	svc, store, a, id := fixture(strPtr("t"))
	a.err = errors.New("429 rate limited")
	user, reply, err := svc.Converse(context.Background(), id, "q")
	require.ErrorIs(t, err, ErrReplyFailed)
	require.NotNil(t, user)
	require.Nil(t, reply)
	require.Len(t, store.msgs, 1)
}

func TestHandler_Routes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, _, id := fixture(strPtr("t"))
	r := gin.New()
	NewHandler(svc, nil).Register(r.Group(""))

	call := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := call(http.MethodPost, "/recordings/"+id.String()+"/messages", `{"role":"robot","content":"x"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = call(http.MethodPost, "/recordings/"+id.String()+"/messages", `{"role":"user","content":"x","timestamp":"2024-01-01T00:00:00Z"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = call(http.MethodPost, "/recordings/"+id.String()+"/chat", `{"message":"summary?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "It was about the budget.")

	w = call(http.MethodGet, "/recordings/"+id.String()+"/messages", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = call(http.MethodPost, "/chat", `{"history":[{"role":"user","content":"q"}],"transcription":"t"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"reply"`)

	w = call(http.MethodGet, "/recordings/"+uuid.New().String()+"/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
}
