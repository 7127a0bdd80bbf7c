package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const (
	// MaxRecordingSize is the largest accepted recording payload (50MB decoded).
	MaxRecordingSize = 50 * 1024 * 1024
	// DefaultPresignExpire is the signed playback URL lifetime.
	DefaultPresignExpire = 3600 * time.Second
)

// ErrEmptyPayload is returned when an upload carries no bytes.
var ErrEmptyPayload = errors.New("storage: empty payload")

// S3Config holds S3 client configuration.
type S3Config struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	RecordingsBucket     string
	PresignExpireSeconds int
}

// s3API is the subset of *s3.Client used outside the uploader and presigner.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type uploaderAPI interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3 is the object storage gateway for recordings: synchronous upload, signed GET URLs, reads and deletes.
type S3 struct {
	client   s3API
	uploader uploaderAPI
	presign  presignAPI
	cfg      S3Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewS3 creates an S3 client using credentials from config or .env (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY).
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RecordingsBucket == "" {
		return nil, errors.New("storage: recordings bucket is required")
	}
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
		logger.Info("S3 client using static credentials", zap.String("region", cfg.Region), zap.String("bucket", cfg.RecordingsBucket))
	} else {
		logger.Warn("S3 client using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
	})
	return &S3{
		client:   client,
		uploader: uploader,
		presign:  s3.NewPresignClient(client),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// RecordingKey returns the object key for a new recording: recording_<epoch-ms>.wav.
func RecordingKey(at time.Time) string {
	return fmt.Sprintf("recording_%d.wav", at.UnixMilli())
}

// NewRecordingKey returns a key stamped with the current time.
func (s *S3) NewRecordingKey() string { return RecordingKey(s.now()) }

// Bucket returns the recordings bucket name.
func (s *S3) Bucket() string { return s.cfg.RecordingsBucket }

// PresignExpire returns the configured signed URL lifetime.
func (s *S3) PresignExpire() time.Duration {
	if s.cfg.PresignExpireSeconds <= 0 {
		return DefaultPresignExpire
	}
	return time.Duration(s.cfg.PresignExpireSeconds) * time.Second
}

// UploadRecording puts the audio bytes under key and returns only after S3 acknowledged the write.
func (s *S3) UploadRecording(ctx context.Context, key string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	contentType := mimetype.Detect(data).String()
	size := int64(len(data))
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.RecordingsBucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: &size,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	s.logger.Info("recording uploaded", zap.String("key", key), zap.Int64("size", size), zap.String("content_type", contentType))
	return nil
}

// PresignAudio returns a signed GET URL for key along with its expiry time.
func (s *S3) PresignAudio(ctx context.Context, key string) (string, time.Time, error) {
	expire := s.PresignExpire()
	issued := s.now()
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.RecordingsBucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expire
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign get: %w", err)
	}
	return req.URL, issued.Add(expire), nil
}

// GetRecording reads the whole object for key.
func (s *S3) GetRecording(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.RecordingsBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(io.LimitReader(out.Body, MaxRecordingSize+1))
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	if len(data) > MaxRecordingSize {
		return nil, fmt.Errorf("object %s exceeds %d bytes", key, MaxRecordingSize)
	}
	return data, nil
}

// DeleteRecording removes a recording object.
func (s *S3) DeleteRecording(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.RecordingsBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
