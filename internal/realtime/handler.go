package realtime

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voice-notes-ai/backend/internal/capture"
	"github.com/voice-notes-ai/backend/internal/workflow"
	"github.com/voice-notes-ai/backend/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// TokenValidator checks the ?token= query parameter of a page connection.
type TokenValidator func(token string) error

// Handler serves page connections and ephemeral audio blobs.
type Handler struct {
	hub      *Hub
	deps     workflow.Deps
	newMic   func() Microphone
	validate TokenValidator
	logger   *zap.Logger
}

// NewHandler creates the page handler. deps.Blobs is shared by every session
// so GET /blobs/:id can serve any page's ephemeral audio.
func NewHandler(hub *Hub, deps workflow.Deps, iceURLs []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Blobs == nil {
		deps.Blobs = workflow.NewBlobStore()
	}
	if deps.Fetcher == nil {
		deps.Fetcher = workflow.NewHTTPFetcher(deps.Blobs, nil)
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}
	return &Handler{
		hub:    hub,
		deps:   deps,
		newMic: func() Microphone { return capture.NewDevice(iceURLs, logger) },
		logger: logger,
	}
}

// SetTokenValidator requires a valid token on every page connection.
func (h *Handler) SetTokenValidator(fn TokenValidator) { h.validate = fn }

// Register mounts GET /ws and GET /blobs/:id.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/ws", h.ServeWs)
	r.GET("/blobs/:id", h.Blob)
}

// ServeWs upgrades the connection and runs one page session until it closes.
func (h *Handler) ServeWs(c *gin.Context) {
	if h.validate != nil {
		token := c.Query("token")
		if token == "" {
			response.Unauthorized(c, "token required")
			return
		}
		if err := h.validate(token); err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := workflow.NewSession(h.deps)
	client := newClient(h.hub, session, conn, h.newMic, h.logger)
	h.hub.Register(client)
	go client.writePump()
	client.pushState()
	client.run("refresh", session.Refresh)
	client.readPump()
}

// Blob serves an ephemeral recording still held in memory.
func (h *Handler) Blob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid blob id")
		return
	}
	blob, ok := h.deps.Blobs.Get(id)
	if !ok {
		response.NotFound(c, "blob not found")
		return
	}
	contentType := blob.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, contentType, blob.Data)
}
