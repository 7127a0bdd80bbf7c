package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/voice-notes-ai/backend/internal/capture"
	"github.com/voice-notes-ai/backend/internal/models"
	"github.com/voice-notes-ai/backend/internal/workflow"
)

type fakeRecordings struct {
	mu   sync.Mutex
	list []models.Recording
}

func (f *fakeRecordings) SaveRecording(_ context.Context, _, duration string) (*models.Recording, error) {
	rec := models.Recording{ID: uuid.New(), AudioKey: "recording_1.wav", Duration: duration, Timestamp: time.Now()}
	f.mu.Lock()
	f.list = append([]models.Recording{rec}, f.list...)
	f.mu.Unlock()
	return &rec, nil
}

func (f *fakeRecordings) List(_ context.Context, _ string) ([]models.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Recording, len(f.list))
	copy(out, f.list)
	for i := range out {
		out[i].AudioURL = "https://signed/" + out[i].AudioKey
	}
	return out, nil
}

func (f *fakeRecordings) RefreshAudioURL(_ context.Context, rec *models.Recording) bool {
	rec.AudioURL = "https://signed/" + rec.AudioKey
	return true
}

func (f *fakeRecordings) UpdateTranscription(_ context.Context, id uuid.UUID, text string) (*models.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.list {
		if f.list[i].ID == id {
			f.list[i].Transcription = &text
			rec := f.list[i]
			return &rec, nil
		}
	}
	return nil, errors.New("not found")
}

type fakeChat struct{}

func (fakeChat) SaveMessage(_ context.Context, recID uuid.UUID, role, content string, at time.Time) (*models.ChatMessage, error) {
	return &models.ChatMessage{ID: uuid.New(), RecordingID: recID, Role: role, Content: content, Timestamp: at}, nil
}

func (fakeChat) List(context.Context, uuid.UUID) ([]models.ChatMessage, error) { return nil, nil }

type fakeTranscriber struct{}

func (fakeTranscriber) Transcribe(context.Context, []byte) (string, error) { return "hello", nil }

type fakeAssistant struct{}

func (fakeAssistant) Reply(context.Context, []models.ChatTurn, string) (string, error) {
	return "hi", nil
}

func testDeps(recs *fakeRecordings) workflow.Deps {
	return workflow.Deps{
		Recordings:  recs,
		Chat:        fakeChat{},
		Transcriber: fakeTranscriber{},
		Assistant:   fakeAssistant{},
		Blobs:       workflow.NewBlobStore(),
	}
}

type fakePubSub struct {
	mu        sync.Mutex
	published []redisPayload
	handler   func(event string, payload []byte)
	pubErr    error
	cancelled bool
}

func (f *fakePubSub) PublishLibraryEvent(event string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pubErr != nil {
		return f.pubErr
	}
	f.published = append(f.published, redisPayload{Event: event, Data: payload})
	return nil
}

func (f *fakePubSub) SubscribeLibrary(handler func(event string, payload []byte)) (func(), error) {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.cancelled = true
		f.mu.Unlock()
	}, nil
}

// deliver replays every published event through the subscription.
func (f *fakePubSub) deliver() {
	f.mu.Lock()
	events := append([]redisPayload(nil), f.published...)
	h := f.handler
	f.mu.Unlock()
	for _, e := range events {
		h(e.Event, e.Data)
	}
}

type fakeMic struct {
	mu     sync.Mutex
	offers int
	ice    []webrtc.ICECandidateInit
	closed bool
	err    error
}

func (m *fakeMic) Start(context.Context) error { return nil }

func (m *fakeMic) Stop(context.Context) (workflow.Blob, error) {
	return workflow.Blob{Data: []byte("OggS"), ContentType: capture.ContentType}, nil
}

func (m *fakeMic) HandleOffer(_ webrtc.SessionDescription, send capture.SignalFunc) error {
	m.mu.Lock()
	m.offers++
	err := m.err
	m.mu.Unlock()
	if err != nil {
		return err
	}
	send("webrtc_answer", map[string]string{"type": "answer", "sdp": "v=0"})
	return nil
}

func (m *fakeMic) AddICECandidate(c webrtc.ICECandidateInit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ice = append(m.ice, c)
	return nil
}

func (m *fakeMic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
