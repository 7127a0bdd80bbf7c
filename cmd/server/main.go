// Package main runs the voice notes HTTP server with the page WebSocket and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/voice-notes-ai/backend/config"
	"github.com/voice-notes-ai/backend/internal/auth"
	"github.com/voice-notes-ai/backend/internal/chat"
	"github.com/voice-notes-ai/backend/internal/llm"
	"github.com/voice-notes-ai/backend/internal/middleware"
	"github.com/voice-notes-ai/backend/internal/paramstore"
	"github.com/voice-notes-ai/backend/internal/realtime"
	"github.com/voice-notes-ai/backend/internal/recordings"
	"github.com/voice-notes-ai/backend/internal/transcription"
	"github.com/voice-notes-ai/backend/internal/worker"
	"github.com/voice-notes-ai/backend/internal/workflow"
	"github.com/voice-notes-ai/backend/pkg/database"
	"github.com/voice-notes-ai/backend/pkg/lock"
	"github.com/voice-notes-ai/backend/pkg/queue"
	"github.com/voice-notes-ai/backend/pkg/redis"
	"github.com/voice-notes-ai/backend/pkg/response"
	"github.com/voice-notes-ai/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	if cfg.ParamStore.Prefix != "" {
		if err := resolveParams(ctx, cfg, logger); err != nil {
			logger.Warn("parameter store lookup incomplete", zap.Error(err))
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	// Redis is optional: without it locks are in-process, there is no job
	// queue and library events stay on this instance.
	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil && !errors.Is(err, redis.ErrDisabled) {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		RecordingsBucket:     cfg.AWS.RecordingsBucket,
		PresignExpireSeconds: cfg.AWS.PresignExpireSeconds,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	transcriber, err := transcription.NewClient(cfg.Transcription.APIKey,
		transcription.WithURL(cfg.Transcription.URL),
		transcription.WithModel(cfg.Transcription.Model),
		transcription.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Transcription.TimeoutSec) * time.Second}),
	)
	if err != nil {
		logger.Fatal("transcription client", zap.Error(err))
	}
	assistant, err := llm.NewClient(llm.Config{
		APIKey:    cfg.Chat.APIKey,
		BaseURL:   cfg.Chat.BaseURL,
		Model:     cfg.Chat.Model,
		MaxTokens: cfg.Chat.MaxTokens,
		Timeout:   time.Duration(cfg.Chat.TimeoutSec) * time.Second,
	})
	if err != nil {
		logger.Fatal("chat client", zap.Error(err))
	}

	var (
		hub      *realtime.Hub
		locker   lock.Locker
		jobQueue *queue.Queue
	)
	if rdb != nil {
		pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
		hub = realtime.NewHub(logger, pubsub, pubsub)
		locker = lock.NewRedisLocker(rdb.Client, logger)
		jobQueue = queue.NewQueue(rdb.Client, logger)
	} else {
		hub = realtime.NewHub(logger, nil, nil)
		locker = lock.NewLocalLocker()
	}
	if err := hub.Start(); err != nil {
		logger.Fatal("library subscription", zap.Error(err))
	}
	defer hub.Stop()

	// Recordings
	recordingSvc := recordings.NewService(recordings.NewRepository(pool), s3Client, logger)
	recordingSvc.SetNotifier(hub)
	recordingHandler := recordings.NewHandler(recordingSvc, cfg.AWS.PresignExpireSeconds, logger)

	// Transcription
	lockTTL := time.Duration(cfg.Transcription.LockTTLSeconds) * time.Second
	transcriptionSvc := transcription.NewService(recordingSvc, s3Client, transcriber, locker, lockTTL, logger)
	transcriptionHandler := transcription.NewHandler(transcriptionSvc, logger)

	// Chat
	chatSvc := chat.NewService(chat.NewRepository(pool), recordingSvc, assistant, logger)
	chatHandler := chat.NewHandler(chatSvc, logger)

	// Page sessions
	pageHandler := realtime.NewHandler(hub, workflow.Deps{
		Recordings:  recordingSvc,
		Chat:        chatSvc,
		Transcriber: transcriptionSvc,
		Assistant:   chatSvc,
		Logger:      logger,
	}, cfg.WebRTC.ICEUrls, logger)

	var jwtService *auth.JWTService
	if cfg.Auth.Enabled() {
		jwtService = auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.ExpireHours)
		pageHandler.SetTokenValidator(jwtService.Check)
		logger.Info("operator auth enabled")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/", func(c *gin.Context) { c.Redirect(http.StatusPermanentRedirect, "/voice-notes") })
	router.GET("/voice-notes", func(c *gin.Context) {
		response.OK(c, gin.H{"ws": "/ws", "recordings": "/recordings", "auth": cfg.Auth.Enabled()})
	})

	if jwtService != nil {
		auth.NewHandler(cfg.Auth.PasswordHash, jwtService, logger).Register(router.Group(""))
	}

	// Protected API (JWT required when auth is enabled)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	recordingHandler.Register(api)
	transcriptionHandler.Register(api)
	chatHandler.Register(api)

	// WebSocket (token in query) and ephemeral audio (referenced by <audio src>)
	pageHandler.Register(router)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if jobQueue != nil {
		transcriptionHandler.SetQueue(jobQueue)
		processor := worker.NewTranscriptionProcessor(transcriptionSvc, jobQueue, lockTTL, logger)
		go processor.Run(workerCtx)
		logger.Info("transcription worker started")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// resolveParams fills API keys missing from the environment from SSM.
func resolveParams(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return err
	}
	params, err := paramstore.New(ssm.NewFromConfig(awsCfg))
	if err != nil {
		return err
	}
	return paramstore.ResolveAPIKeys(ctx, params, cfg.ParamStore.Prefix, cfg, logger)
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
