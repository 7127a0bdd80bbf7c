package recordings

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/asticode/go-astisub"

	"github.com/voice-notes-ai/backend/internal/models"
)

// ErrNoTranscription is returned when exporting a recording that was never transcribed.
var ErrNoTranscription = errors.New("recording has no transcription")

// Export formats.
const (
	FormatSRT  = "srt"
	FormatVTT  = "vtt"
	FormatTTML = "ttml"
)

// ParseDuration parses an m:ss duration string.
func ParseDuration(s string) (time.Duration, error) {
	mm, ss, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, ErrInvalidDuration
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 {
		return 0, ErrInvalidDuration
	}
	sc, err := strconv.Atoi(ss)
	if err != nil || sc < 0 || sc > 59 {
		return 0, ErrInvalidDuration
	}
	return time.Duration(m)*time.Minute + time.Duration(sc)*time.Second, nil
}

// Subtitles builds a single cue spanning the whole recording.
func Subtitles(rec *models.Recording) (*astisub.Subtitles, error) {
	if !rec.HasTranscription() {
		return nil, ErrNoTranscription
	}
	end, err := ParseDuration(rec.Duration)
	if err != nil || end <= 0 {
		end = time.Second
	}
	subtitles := astisub.NewSubtitles()
	item := &astisub.Item{StartAt: 0, EndAt: end}
	for _, line := range strings.Split(rec.TranscriptionText(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			item.Lines = append(item.Lines, astisub.Line{Items: []astisub.LineItem{{Text: line}}})
		}
	}
	subtitles.Items = append(subtitles.Items, item)
	return subtitles, nil
}

// ExportTranscript renders the transcript in format and returns its content type.
func ExportTranscript(rec *models.Recording, format string) ([]byte, string, error) {
	subtitles, err := Subtitles(rec)
	if err != nil {
		return nil, "", err
	}
	buf := &bytes.Buffer{}
	var contentType string
	switch format {
	case FormatSRT:
		err = subtitles.WriteToSRT(buf)
		contentType = "text/srt"
	case FormatVTT:
		err = subtitles.WriteToWebVTT(buf)
		contentType = "text/vtt"
	case FormatTTML:
		err = subtitles.WriteToTTML(buf)
		contentType = "text/xml"
	default:
		return nil, "", fmt.Errorf("unsupported transcript format %q", format)
	}
	if err != nil {
		return nil, "", fmt.Errorf("write %s: %w", format, err)
	}
	return buf.Bytes(), contentType, nil
}

// TranscriptFilename derives the download name from the audio key.
func TranscriptFilename(rec *models.Recording, format string) string {
	return strings.TrimSuffix(rec.AudioKey, ".wav") + "." + format
}
