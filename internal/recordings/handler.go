package recordings

import (
	"errors"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voice-notes-ai/backend/pkg/response"
	"github.com/voice-notes-ai/backend/pkg/storage"
	"github.com/voice-notes-ai/backend/pkg/utils"
)

// Handler handles recording HTTP endpoints.
type Handler struct {
	svc           *Service
	presignExpire int
	logger        *zap.Logger
}

// NewHandler creates a recordings handler. presignExpire is reported to clients in seconds.
func NewHandler(svc *Service, presignExpire int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, presignExpire: presignExpire, logger: logger}
}

// SaveRequest is the body for POST /recordings.
type SaveRequest struct {
	AudioBase64 string `json:"audio_base64" binding:"required"`
	Duration    string `json:"duration" binding:"required"`
}

// UpdateTranscriptionRequest is the body for PUT /recordings/:id/transcription.
type UpdateTranscriptionRequest struct {
	Transcription *string `json:"transcription" binding:"required"`
}

// Register mounts the recording routes on rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/recordings", h.Save)
	rg.GET("/recordings", h.List)
	rg.GET("/recordings/:id", h.Get)
	rg.GET("/recordings/:id/audio-url", h.AudioURL)
	rg.PUT("/recordings/:id/transcription", h.UpdateTranscription)
	rg.GET("/recordings/:id/transcript.srt", h.Transcript(FormatSRT))
	rg.GET("/recordings/:id/transcript.vtt", h.Transcript(FormatVTT))
	rg.GET("/recordings/:id/transcript.ttml", h.Transcript(FormatTTML))
}

// Save handles POST /recordings.
func (h *Handler) Save(c *gin.Context) {
	var req SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	rec, err := h.svc.SaveRecording(c.Request.Context(), req.AudioBase64, req.Duration)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, rec)
}

// List handles GET /recordings?q=.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.logger.Error("list recordings failed", zap.Error(err))
		response.Internal(c, "failed to list recordings")
		return
	}
	response.OK(c, list)
}

// Get handles GET /recordings/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, rec)
}

// AudioURL handles GET /recordings/:id/audio-url. An absent URL is a 503 the client retries later.
func (h *Handler) AudioURL(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	url, ok := h.svc.AudioURL(c.Request.Context(), rec.AudioKey)
	if !ok {
		response.ServiceUnavailable(c, "audio url unavailable, retry later")
		return
	}
	response.OK(c, gin.H{"audio_url": url, "expires_in": h.presignExpire})
}

// UpdateTranscription handles PUT /recordings/:id/transcription.
func (h *Handler) UpdateTranscription(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdateTranscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	rec, err := h.svc.UpdateTranscription(c.Request.Context(), id, *req.Transcription)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, rec)
}

// Transcript returns a handler exporting the transcript in format.
func (h *Handler) Transcript(format string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		rec, err := h.svc.GetByID(c.Request.Context(), id)
		if err != nil {
			h.writeError(c, err)
			return
		}
		data, contentType, err := ExportTranscript(rec, format)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.Header("Content-Description", "File Transfer")
		c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": TranscriptFilename(rec, format)}))
		c.Data(http.StatusOK, contentType, data)
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "recording not found")
	case errors.Is(err, ErrNoTranscription):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrInvalidDuration),
		errors.Is(err, utils.ErrEmptyAudio),
		errors.Is(err, storage.ErrEmptyPayload),
		errors.Is(err, utils.ErrInvalidAudio):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrUploadFailed):
		response.BadGateway(c, "failed to upload audio to storage")
	default:
		h.logger.Error("recording request failed", zap.Error(err), zap.String("path", c.FullPath()))
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
