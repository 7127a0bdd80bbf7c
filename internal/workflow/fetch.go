package workflow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxFetchSize caps downloaded recording audio.
const maxFetchSize = 50 * 1024 * 1024

// AudioFetcher loads the bytes behind a playback reference.
type AudioFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// HTTPFetcher resolves ephemeral refs from the BlobStore and everything else with HTTP GET.
type HTTPFetcher struct {
	blobs  *BlobStore
	client *http.Client
}

// NewHTTPFetcher creates a fetcher. A nil client uses a 60s timeout default.
func NewHTTPFetcher(blobs *BlobStore, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPFetcher{blobs: blobs, client: client}
}

// Fetch returns the audio bytes for ref.
func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if IsRef(ref) {
		b, ok := f.blobs.Resolve(ref)
		if !ok {
			return nil, &FetchError{StatusCode: http.StatusNotFound, Status: http.StatusText(http.StatusNotFound)}
		}
		return b.Data, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("create audio request: %w", err)
	}
	res, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		status := strings.TrimSpace(strings.TrimPrefix(res.Status, fmt.Sprint(res.StatusCode)))
		if status == "" {
			status = http.StatusText(res.StatusCode)
		}
		return nil, &FetchError{StatusCode: res.StatusCode, Status: status}
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, maxFetchSize+1))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(data) > maxFetchSize {
		return nil, fmt.Errorf("audio exceeds %d bytes", maxFetchSize)
	}
	return data, nil
}
