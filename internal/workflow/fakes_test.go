package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voice-notes-ai/backend/internal/models"
)

type fakeDevice struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr error
	stopErr  error
	audio    []byte
	release  chan struct{} // when set, Stop blocks until closed
}

func (d *fakeDevice) Start(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.starts++
	return d.startErr
}

func (d *fakeDevice) Stop(_ context.Context) (Blob, error) {
	if d.release != nil {
		<-d.release
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	if d.stopErr != nil {
		return Blob{}, d.stopErr
	}
	return Blob{Data: d.audio, ContentType: "audio/ogg"}, nil
}

type fakeRecordings struct {
	mu         sync.Mutex
	stored     []models.Recording
	saveErr    error
	presignOK  bool
	updateErr  error
	updates    map[uuid.UUID]string
	saves      int
	lastBase64 string
	clock      time.Time
}

func newFakeRecordings() *fakeRecordings {
	return &fakeRecordings{presignOK: true, updates: map[uuid.UUID]string{}, clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeRecordings) add(transcription *string) models.Recording {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = f.clock.Add(time.Minute)
	rec := models.Recording{ID: uuid.New(), AudioKey: fmt.Sprintf("recording_%d.wav", f.clock.UnixMilli()), Duration: "0:10", Timestamp: f.clock, Transcription: transcription}
	f.stored = append([]models.Recording{rec}, f.stored...)
	return rec
}

func (f *fakeRecordings) SaveRecording(_ context.Context, audioBase64, duration string) (*models.Recording, error) {
	f.mu.Lock()
	f.saves++
	f.lastBase64 = audioBase64
	err := f.saveErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	rec := f.add(nil)
	rec.Duration = duration
	return &rec, nil
}

func (f *fakeRecordings) List(_ context.Context, _ string) ([]models.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]models.Recording(nil), f.stored...)
	for i := range out {
		f.signLocked(&out[i])
	}
	return out, nil
}

func (f *fakeRecordings) signLocked(rec *models.Recording) bool {
	if !f.presignOK {
		rec.AudioURL, rec.AudioURLExpiresAt = "", nil
		return false
	}
	exp := time.Now().Add(time.Hour)
	rec.AudioURL = "https://s3.example/" + rec.AudioKey
	rec.AudioURLExpiresAt = &exp
	return true
}

func (f *fakeRecordings) RefreshAudioURL(_ context.Context, rec *models.Recording) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signLocked(rec)
}

func (f *fakeRecordings) UpdateTranscription(_ context.Context, id uuid.UUID, text string) (*models.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updates[id] = text
	for i := range f.stored {
		if f.stored[i].ID == id {
			f.stored[i].Transcription = &text
			cp := f.stored[i]
			return &cp, nil
		}
	}
	return nil, errors.New("not found")
}

type fakeChat struct {
	mu      sync.Mutex
	msgs    []models.ChatMessage
	failFor map[string]error // role -> error
}

func (f *fakeChat) SaveMessage(_ context.Context, recordingID uuid.UUID, role, content string, at time.Time) (*models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[role]; err != nil {
		return nil, err
	}
	m := models.ChatMessage{ID: uuid.New(), RecordingID: recordingID, Role: role, Content: content, Timestamp: at}
	f.msgs = append(f.msgs, m)
	return &m, nil
}

func (f *fakeChat) List(_ context.Context, recordingID uuid.UUID) ([]models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChatMessage
	for _, m := range f.msgs {
		if m.RecordingID == recordingID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeTranscriber struct {
	mu      sync.Mutex
	text    string
	err     error
	calls   int
	started chan struct{}
	release chan struct{}
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.text, f.err
}

type fakeAssistant struct {
	mu            sync.Mutex
	reply         string
	err           error
	calls         int
	history       []models.ChatTurn
	transcription string
}

func (f *fakeAssistant) Reply(_ context.Context, history []models.ChatTurn, transcription string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.history = append([]models.ChatTurn(nil), history...)
	f.transcription = transcription
	return f.reply, f.err
}

type fakeFetcher struct {
	data []byte
	err  error
	refs []string
}

func (f *fakeFetcher) Fetch(_ context.Context, ref string) ([]byte, error) {
	f.refs = append(f.refs, ref)
	return f.data, f.err
}
