package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const (
	DefaultURL   = "https://api.groq.com/openai/v1/audio/transcriptions"
	DefaultModel = "whisper-large-v3"

	uploadFilename    = "audio.mp3"
	uploadContentType = "audio/mpeg"
)

// ErrEmptyAudio is returned when there are no bytes to transcribe.
var ErrEmptyAudio = errors.New("transcription: audio payload is empty")

// HTTPStatusError captures non-2xx responses from the speech-to-text endpoint.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("transcription failed: %s", e.Status)
}

// HTTPStatusCode returns the upstream status code.
func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Client posts audio to an OpenAI-compatible transcription endpoint.
type Client struct {
	url        string
	apiKey     string
	model      string
	httpClient *http.Client
}

type Option func(*Client)

func WithURL(url string) Option {
	return func(c *Client) {
		if u := strings.TrimSpace(url); u != "" {
			c.url = u
		}
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.model = m
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a transcription client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("transcription: api key must not be empty")
	}
	c := &Client{
		url:        DefaultURL,
		apiKey:     apiKey,
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Transcribe submits audio and returns the transcript text exactly as received.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}

	body, contentType, err := encodeForm(audio, c.model)
	if err != nil {
		return "", fmt.Errorf("transcription: encode form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", fmt.Errorf("transcription: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", &HTTPStatusError{
			StatusCode: res.StatusCode,
			Status:     statusText(res),
			Body:       string(buf),
		}
	}

	var payload transcriptionResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&payload); err != nil {
		return "", fmt.Errorf("transcription: decode response: %w", err)
	}
	return payload.Text, nil
}

// statusText returns the reason phrase without the numeric code.
func statusText(res *http.Response) string {
	if s := strings.TrimSpace(strings.TrimPrefix(res.Status, fmt.Sprint(res.StatusCode))); s != "" {
		return s
	}
	return http.StatusText(res.StatusCode)
}

func encodeForm(audio []byte, model string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, uploadFilename))
	h.Set("Content-Type", uploadContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"model", model},
		{"temperature", "0"},
		{"response_format", "json"},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
