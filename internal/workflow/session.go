package workflow

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voice-notes-ai/backend/internal/models"
	"github.com/voice-notes-ai/backend/internal/recordings"
	"github.com/voice-notes-ai/backend/pkg/utils"
)

// RecordingGateway saves, lists and updates recordings. *recordings.Service satisfies it.
type RecordingGateway interface {
	SaveRecording(ctx context.Context, audioBase64, duration string) (*models.Recording, error)
	List(ctx context.Context, query string) ([]models.Recording, error)
	RefreshAudioURL(ctx context.Context, rec *models.Recording) bool
	UpdateTranscription(ctx context.Context, id uuid.UUID, transcription string) (*models.Recording, error)
}

// ChatGateway persists and loads chat messages. *chat.Service satisfies it.
type ChatGateway interface {
	SaveMessage(ctx context.Context, recordingID uuid.UUID, role, content string, at time.Time) (*models.ChatMessage, error)
	List(ctx context.Context, recordingID uuid.UUID) ([]models.ChatMessage, error)
}

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Assistant answers chat turns grounded on a transcript.
type Assistant interface {
	Reply(ctx context.Context, history []models.ChatTurn, transcription string) (string, error)
}

// Deps are the collaborators of a page session.
type Deps struct {
	Recordings  RecordingGateway
	Chat        ChatGateway
	Transcriber Transcriber
	Assistant   Assistant
	Fetcher     AudioFetcher
	Blobs       *BlobStore
	Logger      *zap.Logger
}

// Session is the server-side state of one open page: the recording list,
// the selection, its conversation and the recorder.
type Session struct {
	ID uuid.UUID

	mu           sync.Mutex
	recordings   []models.Recording
	search       string
	selectedID   uuid.UUID
	messages     []ChatEntry
	transcribing map[uuid.UUID]bool
	chatLoading  bool
	errMsg       string
	owned        map[uuid.UUID]string // recording id -> ephemeral ref
	closed       bool
	onChange     func()

	recorder *Recorder
	deps     Deps
	logger   *zap.Logger
	now      func() time.Time
}

// NewSession creates a page session without a capture device.
func NewSession(deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Blobs == nil {
		deps.Blobs = NewBlobStore()
	}
	if deps.Fetcher == nil {
		deps.Fetcher = NewHTTPFetcher(deps.Blobs, nil)
	}
	s := &Session{
		ID:           uuid.New(),
		transcribing: make(map[uuid.UUID]bool),
		owned:        make(map[uuid.UUID]string),
		deps:         deps,
		now:          time.Now,
	}
	s.logger = deps.Logger.With(zap.String("session_id", s.ID.String()))
	s.recorder = NewRecorder(nil, s.saveCaptured, s.logger)
	s.recorder.SetOnChange(s.notify)
	return s
}

// Snapshot is the view state pushed to the page.
type Snapshot struct {
	Recordings    []models.Recording `json:"recordings"`
	Search        string             `json:"search"`
	Selected      *models.Recording  `json:"selected"`
	Messages      []ChatEntry        `json:"messages"`
	RecorderState RecorderState      `json:"recorder_state"`
	HasDevice     bool               `json:"has_device"`
	Transcribing  []uuid.UUID        `json:"transcribing"`
	ChatLoading   bool               `json:"chat_loading"`
	Error         string             `json:"error,omitempty"`
}

// Snapshot returns a copy of the current view state.
func (s *Session) Snapshot() Snapshot {
	state, hasDevice := s.recorder.State(), s.recorder.HasDevice()
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Recordings:    recordings.Filter(append([]models.Recording(nil), s.recordings...), s.search),
		Search:        s.search,
		Messages:      append([]ChatEntry(nil), s.messages...),
		RecorderState: state,
		HasDevice:     hasDevice,
		Transcribing:  make([]uuid.UUID, 0, len(s.transcribing)),
		ChatLoading:   s.chatLoading,
		Error:         s.errMsg,
	}
	if rec := s.findLocked(s.selectedID); rec != nil {
		cp := *rec
		snap.Selected = &cp
	}
	for id := range s.transcribing {
		snap.Transcribing = append(snap.Transcribing, id)
	}
	sort.Slice(snap.Transcribing, func(i, j int) bool { return snap.Transcribing[i].String() < snap.Transcribing[j].String() })
	return snap
}

// SetOnChange registers a callback invoked after every state change.
func (s *Session) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// SetDevice attaches the page's capture device.
func (s *Session) SetDevice(d CaptureDevice) {
	s.recorder.SetDevice(d)
	s.notify()
}

// Recorder exposes the session's recorder.
func (s *Session) Recorder() *Recorder { return s.recorder }

// Error returns the current user-visible error, or "".
func (s *Session) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// ClearError dismisses the current error.
func (s *Session) ClearError() {
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()
	s.notify()
}

// Refresh reloads the list. Entries backed by an ephemeral blob switch to
// their signed URL and the blob is released.
func (s *Session) Refresh(ctx context.Context) error {
	list, err := s.deps.Recordings.List(ctx, "")
	if err != nil {
		s.fail(err)
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	var released []string
	for id, ref := range s.owned {
		released = append(released, ref)
		delete(s.owned, id)
	}
	s.recordings = list
	s.mu.Unlock()

	for _, ref := range released {
		s.deps.Blobs.Release(ref)
	}
	s.notify()
	return nil
}

// Search sets the id filter applied to the displayed list.
func (s *Session) Search(term string) {
	s.mu.Lock()
	s.search = term
	s.mu.Unlock()
	s.notify()
}

// Select makes id the selected recording and loads its conversation.
func (s *Session) Select(ctx context.Context, id uuid.UUID) error {
	load, err := s.BeginSelect(id)
	if err != nil {
		return err
	}
	return load(ctx)
}

// BeginSelect makes id the selected recording and returns the conversation
// load, which must be called exactly once.
func (s *Session) BeginSelect(id uuid.UUID) (func(ctx context.Context) error, error) {
	s.mu.Lock()
	if s.findLocked(id) == nil {
		s.mu.Unlock()
		return nil, ErrRecordingNotFound
	}
	s.selectedID = id
	s.messages = nil
	s.mu.Unlock()
	s.notify()

	return func(ctx context.Context) error { return s.loadMessages(ctx, id) }, nil
}

func (s *Session) loadMessages(ctx context.Context, id uuid.UUID) error {
	msgs, err := s.deps.Chat.List(ctx, id)
	if err != nil {
		s.fail(err)
		return err
	}
	s.mu.Lock()
	// A newer selection wins. Entries sent while loading stay after the history.
	if s.selectedID == id {
		loaded := make([]ChatEntry, 0, len(msgs)+len(s.messages))
		seen := make(map[uuid.UUID]bool, len(msgs))
		for _, m := range msgs {
			loaded = append(loaded, ChatEntry{ChatMessage: m, Status: EntrySaved})
			seen[m.ID] = true
		}
		for _, e := range s.messages {
			if !seen[e.ID] {
				loaded = append(loaded, e)
			}
		}
		s.messages = loaded
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// Upsert applies a recording change made elsewhere (another page or the worker).
func (s *Session) Upsert(ctx context.Context, rec models.Recording) {
	s.mu.Lock()
	if cur := s.findLocked(rec.ID); cur != nil {
		cur.Transcription = rec.Transcription
		s.mu.Unlock()
		s.notify()
		return
	}
	s.mu.Unlock()

	s.deps.Recordings.RefreshAudioURL(ctx, &rec)

	s.mu.Lock()
	if s.closed || s.findLocked(rec.ID) != nil {
		s.mu.Unlock()
		return
	}
	s.recordings = append(s.recordings, rec)
	sort.SliceStable(s.recordings, func(i, j int) bool {
		return s.recordings[i].Timestamp.After(s.recordings[j].Timestamp)
	})
	s.mu.Unlock()
	s.notify()
}

// StartRecording starts the recorder. A missing or failing device is
// logged by the recorder and only shows as HasDevice in the snapshot.
func (s *Session) StartRecording(ctx context.Context) error {
	err := s.recorder.Start(ctx)
	if err != nil && !errors.Is(err, ErrNoDevice) {
		s.fail(err)
	}
	return err
}

// StopRecording finalizes the take and saves it. A stop outside a take is
// ignored and leaves the current error in place.
func (s *Session) StopRecording(ctx context.Context) error {
	finish, err := s.BeginStopRecording()
	if err != nil {
		return err
	}
	return finish(ctx)
}

// BeginStopRecording moves the recorder to finalizing and returns the
// device stop and save, which must be called exactly once.
func (s *Session) BeginStopRecording() (func(ctx context.Context) error, error) {
	finish, err := s.recorder.BeginStop()
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		err := finish(ctx)
		if err != nil && !errors.Is(err, ErrSessionClosed) {
			s.fail(err)
		}
		return err
	}, nil
}

// saveCaptured registers an ephemeral playback blob, saves the recording and
// puts it at the top of the list, selected.
func (s *Session) saveCaptured(ctx context.Context, blob Blob, duration string) error {
	ref := s.deps.Blobs.Put(blob)
	rec, err := s.deps.Recordings.SaveRecording(ctx, utils.EncodeAudio(blob.Data), duration)
	if err != nil {
		s.deps.Blobs.Release(ref)
		return err
	}
	rec.AudioURL = ref
	rec.AudioURLExpiresAt = nil

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.deps.Blobs.Release(ref)
		return ErrSessionClosed
	}
	s.recordings = append([]models.Recording{*rec}, s.withoutLocked(rec.ID)...)
	s.owned[rec.ID] = ref
	s.selectedID = rec.ID
	s.messages = nil
	s.mu.Unlock()
	s.logger.Info("recording added to session", zap.String("recording_id", rec.ID.String()), zap.String("duration", duration))
	return nil
}

// Close releases every ephemeral blob. Later results are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	refs := make([]string, 0, len(s.owned))
	for id, ref := range s.owned {
		refs = append(refs, ref)
		delete(s.owned, id)
	}
	s.onChange = nil
	s.mu.Unlock()
	for _, ref := range refs {
		s.deps.Blobs.Release(ref)
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.errMsg = err.Error()
	s.mu.Unlock()
	s.notify()
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *Session) findLocked(id uuid.UUID) *models.Recording {
	if id == uuid.Nil {
		return nil
	}
	for i := range s.recordings {
		if s.recordings[i].ID == id {
			return &s.recordings[i]
		}
	}
	return nil
}

func (s *Session) withoutLocked(id uuid.UUID) []models.Recording {
	out := make([]models.Recording, 0, len(s.recordings))
	for _, r := range s.recordings {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}
