package utils

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyAudio is returned when a base64 audio payload decodes to nothing.
	ErrEmptyAudio = errors.New("audio payload is empty")
	// ErrInvalidAudio is returned when the payload is not valid base64.
	ErrInvalidAudio = errors.New("invalid audio payload")
)

// DecodeAudio decodes a base64 audio payload. A data URL prefix
// ("data:audio/wav;base64,") is stripped first.
func DecodeAudio(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		i := strings.IndexByte(payload, ',')
		if i < 0 {
			return nil, fmt.Errorf("%w: malformed data url", ErrInvalidAudio)
		}
		payload = payload[i+1:]
	}
	if payload == "" {
		return nil, ErrEmptyAudio
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %w", ErrInvalidAudio, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	return data, nil
}

// EncodeAudio is the inverse of DecodeAudio without a data URL prefix.
func EncodeAudio(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
