package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/voice-notes-ai/backend/internal/capture"
	"github.com/voice-notes-ai/backend/internal/workflow"
)

// opTimeout bounds one page operation. Operations are detached from the
// connection so a reload mid-transcription still persists the result.
const opTimeout = 3 * time.Minute

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Microphone is the page's capture device plus its WebRTC signaling.
type Microphone interface {
	workflow.CaptureDevice
	HandleOffer(offer webrtc.SessionDescription, send capture.SignalFunc) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	Close() error
}

// Client is one open page: a WebSocket connection bound to a workflow session.
type Client struct {
	ID      string
	hub     *Hub
	session *workflow.Session
	conn    *websocket.Conn
	send    chan WSMessage
	logger  *zap.Logger

	newMic func() Microphone
	micMu  sync.Mutex
	mic    Microphone

	closeOnce sync.Once
	done      chan struct{}
	ops       sync.WaitGroup
}

func newClient(hub *Hub, session *workflow.Session, conn *websocket.Conn, newMic func() Microphone, logger *zap.Logger) *Client {
	c := &Client{
		ID:      uuid.New().String(),
		hub:     hub,
		session: session,
		conn:    conn,
		send:    make(chan WSMessage, 256),
		newMic:  newMic,
		done:    make(chan struct{}),
	}
	c.logger = logger.With(zap.String("client_id", c.ID), zap.String("session_id", session.ID.String()))
	session.SetOnChange(c.pushState)
	return c
}

// emit queues an event for the page. Dropped when the buffer is full or the page is gone.
func (c *Client) emit(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}

func (c *Client) pushState() {
	c.emit("state", c.session.Snapshot())
}

// report sends a failed operation to the page. A missing device and a stop
// outside a take are only logged.
func (c *Client) report(event string, err error) {
	if err == nil || errors.Is(err, workflow.ErrSessionClosed) {
		return
	}
	c.logger.Debug("page operation failed", zap.String("event", event), zap.Error(err))
	if errors.Is(err, workflow.ErrNoDevice) || errors.Is(err, workflow.ErrIllegalTransition) {
		return
	}
	c.emit("error", map[string]string{"event": event, "message": err.Error()})
}

// run executes a page operation on its own goroutine.
func (c *Client) run(event string, op func(ctx context.Context) error) {
	c.ops.Add(1)
	go func() {
		defer c.ops.Done()
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		c.report(event, op(ctx))
	}()
}

// begin applies the state change of an operation on the read loop, so page
// events take effect in the order they were sent, and runs the rest with run.
func (c *Client) begin(event string, prefix func() (func(ctx context.Context) error, error)) {
	finish, err := prefix()
	if err != nil {
		c.report(event, err)
		return
	}
	c.run(event, finish)
}

// start arms the device inline. Arming only flips in-memory state.
func (c *Client) start() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.report("start", c.session.StartRecording(ctx))
}

func (c *Client) microphone() Microphone {
	c.micMu.Lock()
	defer c.micMu.Unlock()
	if c.mic == nil && c.newMic != nil {
		c.mic = c.newMic()
	}
	return c.mic
}

// handle dispatches one page event.
func (c *Client) handle(msg WSMessage) {
	switch msg.Event {
	case "refresh":
		c.run(msg.Event, c.session.Refresh)
	case "search":
		var p struct {
			Term string `json:"term"`
		}
		if json.Unmarshal(msg.Data, &p) == nil {
			c.session.Search(p.Term)
		}
	case "select", "transcribe":
		var p struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.ID == uuid.Nil {
			c.emit("error", map[string]string{"event": msg.Event, "message": "invalid recording id"})
			return
		}
		if msg.Event == "select" {
			c.begin(msg.Event, func() (func(ctx context.Context) error, error) { return c.session.BeginSelect(p.ID) })
		} else {
			c.begin(msg.Event, func() (func(ctx context.Context) error, error) { return c.session.BeginTranscribe(p.ID) })
		}
	case "start":
		c.start()
	case "stop":
		c.begin(msg.Event, c.session.BeginStopRecording)
	case "send_message":
		var p struct {
			Content string `json:"content"`
		}
		if json.Unmarshal(msg.Data, &p) == nil {
			c.begin(msg.Event, func() (func(ctx context.Context) error, error) { return c.session.BeginSend(p.Content) })
		}
	case "clear_error":
		c.session.ClearError()
	case "webrtc_offer":
		var p struct {
			Type string `json:"type"`
			SDP  string `json:"sdp"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.SDP == "" {
			return
		}
		mic := c.microphone()
		if mic == nil {
			return
		}
		sdp := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP}
		if err := mic.HandleOffer(sdp, c.emit); err != nil {
			c.logger.Warn("webrtc offer failed", zap.Error(err))
			c.emit("error", map[string]string{"event": msg.Event, "message": workflow.ErrNoDevice.Error()})
			return
		}
		c.session.SetDevice(mic)
	case "webrtc_ice":
		var p struct {
			Candidate json.RawMessage `json:"candidate"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil || len(p.Candidate) == 0 {
			return
		}
		var cand webrtc.ICECandidateInit
		if json.Unmarshal(p.Candidate, &cand) != nil {
			return
		}
		if mic := c.microphone(); mic != nil {
			_ = mic.AddICECandidate(cand)
		}
	default:
		// ignore
	}
}

// close releases the session and the microphone once.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.hub.Unregister(c)
		c.session.Close()
		c.micMu.Lock()
		mic := c.mic
		c.mic = nil
		c.micMu.Unlock()
		if mic != nil {
			_ = mic.Close()
		}
	})
}

func (c *Client) readPump() {
	defer func() {
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.handle(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
