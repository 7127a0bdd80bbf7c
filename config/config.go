package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	WebRTC        WebRTCConfig
	AWS           AWSConfig
	Transcription TranscriptionConfig
	Chat          ChatConfig
	ParamStore    ParamStoreConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/voicenotes?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings. Empty Addr runs without Redis (local locks, no queue).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig enables the optional operator login. Empty PasswordHash disables auth entirely.
type AuthConfig struct {
	PasswordHash string // bcrypt hash
	JWTSecret    string
	ExpireHours  int
}

// Enabled reports whether API routes require a bearer token.
func (a AuthConfig) Enabled() bool { return a.PasswordHash != "" }

// WebRTCConfig holds STUN/TURN ICE server URLs for microphone capture.
type WebRTCConfig struct {
	ICEUrls []string
}

// AWSConfig holds AWS credentials and the recordings bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	RecordingsBucket     string
	PresignExpireSeconds int
}

// TranscriptionConfig configures the speech-to-text endpoint.
type TranscriptionConfig struct {
	URL            string
	APIKey         string
	Model          string
	TimeoutSec     int
	LockTTLSeconds int
}

// ChatConfig configures the chat-completion endpoint.
type ChatConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	TimeoutSec int
}

// ParamStoreConfig points at SSM parameters holding API keys. Empty Prefix disables lookups.
type ParamStoreConfig struct {
	Prefix string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 90),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "voicenotes"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			PasswordHash: getEnv("AUTH_PASSWORD_HASH", ""),
			JWTSecret:    getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours:  getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		WebRTC: WebRTCConfig{
			ICEUrls: splitTrim(getEnv("WEBRTC_ICE_URLS", "stun:stun.l.google.com:19302"), ","),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			RecordingsBucket:     getEnv("AWS_S3_RECORDINGS_BUCKET", "voice-notes-ai"),
			PresignExpireSeconds: getEnvInt("AWS_PRESIGN_EXPIRE_SECONDS", 3600),
		},
		Transcription: TranscriptionConfig{
			URL:            getEnv("TRANSCRIPTION_URL", "https://api.groq.com/openai/v1/audio/transcriptions"),
			APIKey:         getEnv("GROQ_API_KEY", ""),
			Model:          getEnv("TRANSCRIPTION_MODEL", "whisper-large-v3"),
			TimeoutSec:     getEnvInt("TRANSCRIPTION_TIMEOUT_SEC", 60),
			LockTTLSeconds: getEnvInt("TRANSCRIPTION_LOCK_TTL_SEC", 300),
		},
		Chat: ChatConfig{
			BaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:     getEnv("OPENAI_API_KEY", getEnv("GPT4_MINI_API_KEY", "")),
			Model:      getEnv("CHAT_MODEL", "gpt-4o-mini"),
			MaxTokens:  getEnvInt("CHAT_MAX_TOKENS", 150),
			TimeoutSec: getEnvInt("CHAT_TIMEOUT_SEC", 30),
		},
		ParamStore: ParamStoreConfig{
			Prefix: strings.TrimRight(getEnv("SSM_PARAM_PREFIX", ""), "/"),
		},
	}
	if cfg.Auth.Enabled() && cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required when AUTH_PASSWORD_HASH is set")
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
