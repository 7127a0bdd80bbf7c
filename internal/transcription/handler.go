package transcription

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voice-notes-ai/backend/internal/recordings"
	"github.com/voice-notes-ai/backend/pkg/response"
	"github.com/voice-notes-ai/backend/pkg/utils"
)

// Enqueuer hands transcription to the background worker. *queue.Queue satisfies it.
type Enqueuer interface {
	EnqueueTranscription(ctx context.Context, recordingID uuid.UUID) (string, error)
}

// Handler handles transcription HTTP endpoints.
type Handler struct {
	svc    *Service
	queue  Enqueuer // optional: nil disables async transcription
	logger *zap.Logger
}

// NewHandler creates a transcription handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// SetQueue enables POST /recordings/:id/transcribe/async.
func (h *Handler) SetQueue(q Enqueuer) { h.queue = q }

// TranscribeRequest is the body for POST /transcriptions.
type TranscribeRequest struct {
	AudioBase64 string `json:"audio_base64" binding:"required"`
}

// Register mounts the transcription routes on rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/transcriptions", h.Transcribe)
	rg.POST("/recordings/:id/transcribe", h.TranscribeRecording)
	rg.POST("/recordings/:id/transcribe/async", h.EnqueueRecording)
}

// Transcribe handles POST /transcriptions and returns {text}.
func (h *Handler) Transcribe(c *gin.Context) {
	var req TranscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	audio, err := utils.DecodeAudio(req.AudioBase64)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	text, err := h.svc.Transcribe(c.Request.Context(), audio)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"text": text})
}

// TranscribeRecording handles POST /recordings/:id/transcribe.
func (h *Handler) TranscribeRecording(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	rec, err := h.svc.TranscribeRecording(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, rec)
}

// EnqueueRecording handles POST /recordings/:id/transcribe/async.
func (h *Handler) EnqueueRecording(c *gin.Context) {
	if h.queue == nil {
		response.ServiceUnavailable(c, "background transcription not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	if _, err := h.svc.recordings.GetByID(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	jobID, err := h.queue.EnqueueTranscription(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("enqueue transcription failed", zap.Error(err), zap.String("recording_id", id.String()))
		response.Internal(c, "failed to enqueue transcription")
		return
	}
	response.Accepted(c, gin.H{"job_id": jobID, "recording_id": id})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInFlight):
		response.Conflict(c, err.Error())
	case errors.Is(err, recordings.ErrNotFound):
		response.NotFound(c, "recording not found")
	case errors.Is(err, ErrEmptyAudio):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrFailed):
		response.BadGateway(c, ErrFailed.Error())
	default:
		h.logger.Error("transcription request failed", zap.Error(err), zap.String("path", c.FullPath()))
		response.Internal(c, "internal error")
	}
}
