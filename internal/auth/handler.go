package auth

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voice-notes-ai/backend/pkg/response"
	"github.com/voice-notes-ai/backend/pkg/utils"
)

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	passwordHash string
	jwt          *JWTService
	logger       *zap.Logger
}

// NewHandler creates an auth handler checking against a bcrypt password hash.
func NewHandler(passwordHash string, jwt *JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{passwordHash: passwordHash, jwt: jwt, logger: logger}
}

// Register mounts POST /auth/login.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/login", h.Login)
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	if !utils.CheckPassword(req.Password, h.passwordHash) {
		h.logger.Warn("operator login rejected", zap.String("client_ip", c.ClientIP()))
		response.Unauthorized(c, "invalid password")
		return
	}

	token, expires, err := h.jwt.Generate()
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Token: token, ExpiresAt: expires})
}
