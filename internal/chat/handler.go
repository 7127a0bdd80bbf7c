package chat

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voice-notes-ai/backend/internal/models"
	"github.com/voice-notes-ai/backend/pkg/response"
)

// Handler handles chat HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a chat handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// SaveMessageRequest is the body for POST /recordings/:id/messages.
type SaveMessageRequest struct {
	Role      string     `json:"role" binding:"required"`
	Content   string     `json:"content" binding:"required"`
	Timestamp *time.Time `json:"timestamp"`
}

// ReplyRequest is the body for POST /chat.
type ReplyRequest struct {
	History       []models.ChatTurn `json:"history"`
	Transcription string            `json:"transcription" binding:"required"`
}

// ConverseRequest is the body for POST /recordings/:id/chat.
type ConverseRequest struct {
	Message string `json:"message" binding:"required"`
}

// Register mounts the chat routes on rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/recordings/:id/messages", h.List)
	rg.POST("/recordings/:id/messages", h.Save)
	rg.POST("/recordings/:id/chat", h.Converse)
	rg.POST("/chat", h.Reply)
}

// List handles GET /recordings/:id/messages.
func (h *Handler) List(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	list, err := h.svc.List(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, list)
}

// Save handles POST /recordings/:id/messages.
func (h *Handler) Save(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req SaveMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	var at time.Time
	if req.Timestamp != nil {
		at = *req.Timestamp
	}
	msg, err := h.svc.SaveMessage(c.Request.Context(), id, req.Role, req.Content, at)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, msg)
}

// Reply handles POST /chat and returns {reply}.
func (h *Handler) Reply(c *gin.Context) {
	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	reply, err := h.svc.Reply(c.Request.Context(), req.History, req.Transcription)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"reply": reply})
}

// Converse handles POST /recordings/:id/chat.
func (h *Handler) Converse(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req ConverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	user, assistant, err := h.svc.Converse(c.Request.Context(), id, req.Message)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"user": user, "assistant": assistant})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrRecordingNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrInvalidRole), errors.Is(err, ErrEmptyContent):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrNoTranscription):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrReplyFailed):
		response.BadGateway(c, err.Error())
	default:
		h.logger.Error("chat request failed", zap.Error(err), zap.String("path", c.FullPath()))
		response.Internal(c, "internal error")
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return uuid.Nil, false
	}
	return id, true
}
