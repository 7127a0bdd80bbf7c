package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/voice-notes-ai/backend/pkg/utils"
)

func init() { gin.SetMode(gin.TestMode) }

func TestJWT_RoundTrip(t *testing.T) {
	svc := NewJWTService("secret", 2)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	token, expires, err := svc.Generate()
	require.NoError(t, err)
	require.Equal(t, now.Add(2*time.Hour), expires)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	require.Equal(t, Subject, claims.Subject)
	require.NotEmpty(t, claims.ID)
	require.NoError(t, svc.Check(token))
}

func TestJWT_Rejects(t *testing.T) {
	svc := NewJWTService("secret", 1)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	token, _, err := svc.Generate()
	require.NoError(t, err)

	other := NewJWTService("other-secret", 1)
	other.now = svc.now
	_, err = other.Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	svc.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = svc.Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	require.ErrorIs(t, svc.Check("garbage"), ErrInvalidToken)

	// Correctly signed but not issued for the operator.
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "someone",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	signed, err := foreign.SignedString([]byte("secret"))
	require.NoError(t, err)
	svc.now = func() time.Time { return now }
	_, err = svc.Validate(signed)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWT_DefaultExpiry(t *testing.T) {
	svc := NewJWTService("secret", 0)
	require.Equal(t, 24, svc.expireHours)
}

func login(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	h.Register(r.Group("/api"))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestLogin(t *testing.T) {
	hash, err := utils.HashPassword("hunter22", bcrypt.MinCost)
	require.NoError(t, err)
	svc := NewJWTService("secret", 1)
	h := NewHandler(hash, svc, nil)

	w := login(t, h, `{"password":"hunter22"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool          `json:"success"`
		Data    TokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.NoError(t, svc.Check(body.Data.Token))

	w = login(t, h, `{"password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = login(t, h, `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
