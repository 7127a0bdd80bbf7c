// Package main runs the background transcription worker.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/voice-notes-ai/backend/config"
	"github.com/voice-notes-ai/backend/internal/paramstore"
	"github.com/voice-notes-ai/backend/internal/realtime"
	"github.com/voice-notes-ai/backend/internal/recordings"
	"github.com/voice-notes-ai/backend/internal/transcription"
	"github.com/voice-notes-ai/backend/internal/worker"
	"github.com/voice-notes-ai/backend/pkg/database"
	"github.com/voice-notes-ai/backend/pkg/lock"
	"github.com/voice-notes-ai/backend/pkg/queue"
	"github.com/voice-notes-ai/backend/pkg/redis"
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
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			logger.Fatal("aws config", zap.Error(err))
		}
		params, err := paramstore.New(ssm.NewFromConfig(awsCfg))
		if err != nil {
			logger.Fatal("parameter store", zap.Error(err))
		}
		if err := paramstore.ResolveAPIKeys(ctx, params, cfg.ParamStore.Prefix, cfg, logger); err != nil {
			logger.Warn("parameter store lookup incomplete", zap.Error(err))
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	// The queue lives in Redis, so the worker cannot run without it.
	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
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

	client, err := transcription.NewClient(cfg.Transcription.APIKey,
		transcription.WithURL(cfg.Transcription.URL),
		transcription.WithModel(cfg.Transcription.Model),
		transcription.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Transcription.TimeoutSec) * time.Second}),
	)
	if err != nil {
		logger.Fatal("transcription client", zap.Error(err))
	}

	// Finished transcriptions are published so open pages on every server pick them up.
	pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
	recordingSvc := recordings.NewService(recordings.NewRepository(pool), s3Client, logger)
	recordingSvc.SetNotifier(realtime.NewHub(logger, pubsub, nil))

	lockTTL := time.Duration(cfg.Transcription.LockTTLSeconds) * time.Second
	transcriptionSvc := transcription.NewService(recordingSvc, s3Client, client, lock.NewRedisLocker(rdb.Client, logger), lockTTL, logger)
	processor := worker.NewTranscriptionProcessor(transcriptionSvc, queue.NewQueue(rdb.Client, logger), lockTTL, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(done)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
