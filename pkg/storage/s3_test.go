package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeUploader struct {
	in  *s3.PutObjectInput
	err error
}

func (f *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &manager.UploadOutput{}, nil
}

type fakePresigner struct {
	expires time.Duration
	err     error
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	opts := &s3.PresignOptions{}
	for _, fn := range optFns {
		fn(opts)
	}
	f.expires = opts.Expires
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{URL: "https://bucket.s3/" + *in.Key + "?sig=1"}, nil
}

type fakeS3 struct {
	body      []byte
	getErr    error
	deleteErr error
	deleted   string
}

func (f *fakeS3) GetObject(_ context.Context, _ *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.body))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = *in.Key
	return &s3.DeleteObjectOutput{}, f.deleteErr
}

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestS3(up *fakeUploader, pr *fakePresigner, api *fakeS3) *S3 {
	return &S3{
		client:   api,
		uploader: up,
		presign:  pr,
		cfg:      S3Config{RecordingsBucket: "voice-notes-ai", PresignExpireSeconds: 3600},
		logger:   zap.NewNop(),
		now:      func() time.Time { return fixedNow },
	}
}

func TestRecordingKey(t *testing.T) {
	require.Equal(t, "recording_1709287200000.wav", RecordingKey(fixedNow))
	s := newTestS3(&fakeUploader{}, &fakePresigner{}, &fakeS3{})
	require.Equal(t, "recording_1709287200000.wav", s.NewRecordingKey())
}

func TestUploadRecording_Success(t *testing.T) {
	up := &fakeUploader{}
	s := newTestS3(up, &fakePresigner{}, &fakeS3{})
	data := append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 32)...)

	require.NoError(t, s.UploadRecording(context.Background(), "recording_1.wav", data))
	require.Equal(t, "voice-notes-ai", *up.in.Bucket)
	require.Equal(t, "recording_1.wav", *up.in.Key)
	require.Equal(t, int64(len(data)), *up.in.ContentLength)
	require.Equal(t, "audio/wav", *up.in.ContentType)
}

func TestUploadRecording_Empty(t *testing.T) {
	up := &fakeUploader{}
	s := newTestS3(up, &fakePresigner{}, &fakeS3{})
	require.ErrorIs(t, s.UploadRecording(context.Background(), "k", nil), ErrEmptyPayload)
	require.Nil(t, up.in)
}

func TestUploadRecording_Failure(t *testing.T) {
	s := newTestS3(&fakeUploader{err: errors.New("access denied")}, &fakePresigner{}, &fakeS3{})
	err := s.UploadRecording(context.Background(), "k", []byte("abc"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "access denied")
}

func TestPresignAudio(t *testing.T) {
	pr := &fakePresigner{}
	s := newTestS3(&fakeUploader{}, pr, &fakeS3{})
	url, exp, err := s.PresignAudio(context.Background(), "recording_1.wav")
	require.NoError(t, err)
	require.Contains(t, url, "recording_1.wav")
	require.Equal(t, time.Hour, pr.expires)
	require.Equal(t, fixedNow.Add(time.Hour), exp)
}

func TestPresignAudio_DefaultExpire(t *testing.T) {
	s := newTestS3(&fakeUploader{}, &fakePresigner{}, &fakeS3{})
	s.cfg.PresignExpireSeconds = 0
	require.Equal(t, DefaultPresignExpire, s.PresignExpire())
}

func TestPresignAudio_Error(t *testing.T) {
	s := newTestS3(&fakeUploader{}, &fakePresigner{err: errors.New("no creds")}, &fakeS3{})
	_, _, err := s.PresignAudio(context.Background(), "k")
	require.Error(t, err)
	require.Contains(t, err.Error(), "presign get")
}

func TestGetRecording(t *testing.T) {
	s := newTestS3(&fakeUploader{}, &fakePresigner{}, &fakeS3{body: []byte("audio")})
	data, err := s.GetRecording(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, []byte("audio"), data)

	s = newTestS3(&fakeUploader{}, &fakePresigner{}, &fakeS3{getErr: errors.New("NoSuchKey")})
	_, err = s.GetRecording(context.Background(), "k")
	require.ErrorContains(t, err, "NoSuchKey")
}

func TestDeleteRecording(t *testing.T) {
	api := &fakeS3{}
	s := newTestS3(&fakeUploader{}, &fakePresigner{}, api)
	require.NoError(t, s.DeleteRecording(context.Background(), "recording_1.wav"))
	require.Equal(t, "recording_1.wav", api.deleted)
}
