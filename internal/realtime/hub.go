package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voice-notes-ai/backend/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	// EventRecordingSaved and EventTranscriptionUpdated are library events fanned out to every page.
	EventRecordingSaved       = "recording_saved"
	EventTranscriptionUpdated = "transcription_updated"

	upsertTimeout = 15 * time.Second
)

// Publisher publishes library events for other instances.
type Publisher interface {
	PublishLibraryEvent(event string, payload []byte) error
}

// Subscriber subscribes to library events from every instance.
type Subscriber interface {
	SubscribeLibrary(handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub tracks connected pages and applies library events to their sessions.
// With Redis, events are published only and the subscriber applies them once
// on every instance, including this one.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	logger  *zap.Logger
	pub     Publisher
	sub     Subscriber
	cancel  func()
}

// NewHub creates a hub. pub and sub may be nil for a single instance.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
		pub:     pub,
		sub:     sub,
	}
}

// Start subscribes to library events. It is a no-op without a subscriber.
func (h *Hub) Start() error {
	if h.sub == nil {
		return nil
	}
	cancel, err := h.sub.SubscribeLibrary(h.apply)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()
	return nil
}

// Stop cancels the library subscription.
func (h *Hub) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Register adds a connected page.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("page connected", zap.String("client_id", c.ID))
}

// Unregister removes a connected page.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
	h.logger.Debug("page disconnected", zap.String("client_id", c.ID))
}

// Count returns the number of connected pages.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RecordingSaved implements recordings.Notifier.
func (h *Hub) RecordingSaved(_ context.Context, rec *models.Recording) {
	h.publish(EventRecordingSaved, rec)
}

// TranscriptionUpdated implements recordings.Notifier.
func (h *Hub) TranscriptionUpdated(_ context.Context, rec *models.Recording) {
	h.publish(EventTranscriptionUpdated, rec)
}

func (h *Hub) publish(event string, rec *models.Recording) {
	if rec == nil {
		return
	}
	// Signed URLs are per page; each session signs its own.
	cp := *rec
	cp.AudioURL = ""
	cp.AudioURLExpiresAt = nil
	data, err := json.Marshal(cp)
	if err != nil {
		return
	}
	if h.pub != nil {
		if err := h.pub.PublishLibraryEvent(event, data); err != nil {
			h.logger.Warn("publish library event failed, applying locally", zap.String("event", event), zap.Error(err))
			h.apply(event, data)
		}
		return
	}
	h.apply(event, data)
}

// apply upserts the recording into every connected session.
func (h *Hub) apply(event string, payload []byte) {
	if event != EventRecordingSaved && event != EventTranscriptionUpdated {
		return
	}
	var rec models.Recording
	if err := json.Unmarshal(payload, &rec); err != nil {
		h.logger.Warn("bad library event", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		go func(c *Client) {
			ctx, cancel := context.WithTimeout(context.Background(), upsertTimeout)
			defer cancel()
			c.session.Upsert(ctx, rec)
		}(c)
	}
}
