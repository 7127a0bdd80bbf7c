package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voice-notes-ai/backend/internal/models"
	"github.com/voice-notes-ai/backend/internal/workflow"
)

func testClient(hub *Hub, recs *fakeRecordings, mic *fakeMic) *Client {
	session := workflow.NewSession(testDeps(recs))
	var newMic func() Microphone
	if mic != nil {
		newMic = func() Microphone { return mic }
	}
	c := newClient(hub, session, nil, newMic, zap.NewNop())
	hub.Register(c)
	return c
}

func findRecording(s *workflow.Session, id uuid.UUID) *models.Recording {
	for _, r := range s.Snapshot().Recordings {
		if r.ID == id {
			cp := r
			return &cp
		}
	}
	return nil
}

func TestHub_AppliesLocallyWithoutRedis(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	require.NoError(t, hub.Start())
	a := testClient(hub, &fakeRecordings{}, nil)
	b := testClient(hub, &fakeRecordings{}, nil)
	require.Equal(t, 2, hub.Count())

	rec := &models.Recording{ID: uuid.New(), AudioKey: "recording_5.wav", Duration: "0:05", Timestamp: time.Now()}
	hub.RecordingSaved(context.Background(), rec)

	for _, c := range []*Client{a, b} {
		c := c
		require.Eventually(t, func() bool {
			got := findRecording(c.session, rec.ID)
			return got != nil && got.AudioURL == "https://signed/recording_5.wav"
		}, time.Second, 5*time.Millisecond)
	}

	text := "transcribed elsewhere"
	updated := *rec
	updated.Transcription = &text
	hub.TranscriptionUpdated(context.Background(), &updated)
	require.Eventually(t, func() bool {
		got := findRecording(b.session, rec.ID)
		return got != nil && got.TranscriptionText() == text
	}, time.Second, 5*time.Millisecond)

	hub.Unregister(a)
	require.Equal(t, 1, hub.Count())
}

func TestHub_PublishesThroughRedis(t *testing.T) {
	ps := &fakePubSub{}
	hub := NewHub(zap.NewNop(), ps, ps)
	require.NoError(t, hub.Start())
	c := testClient(hub, &fakeRecordings{}, nil)

	expires := time.Now().Add(time.Hour)
	rec := &models.Recording{ID: uuid.New(), AudioKey: "recording_7.wav", Timestamp: time.Now(), AudioURL: "https://old", AudioURLExpiresAt: &expires}
	hub.RecordingSaved(context.Background(), rec)

	require.Len(t, ps.published, 1)
	require.Equal(t, EventRecordingSaved, ps.published[0].Event)
	var sent models.Recording
	require.NoError(t, json.Unmarshal(ps.published[0].Data, &sent))
	require.Empty(t, sent.AudioURL)
	require.Nil(t, sent.AudioURLExpiresAt)

	// Nothing applied until the subscription delivers it.
	time.Sleep(20 * time.Millisecond)
	require.Nil(t, findRecording(c.session, rec.ID))

	ps.deliver()
	require.Eventually(t, func() bool { return findRecording(c.session, rec.ID) != nil }, time.Second, 5*time.Millisecond)

	hub.Stop()
	require.True(t, ps.cancelled)
}

func TestHub_PublishFailureAppliesLocally(t *testing.T) {
	ps := &fakePubSub{pubErr: errors.New("connection refused")}
	hub := NewHub(zap.NewNop(), ps, nil)
	c := testClient(hub, &fakeRecordings{}, nil)

	rec := &models.Recording{ID: uuid.New(), AudioKey: "recording_8.wav", Timestamp: time.Now()}
	hub.RecordingSaved(context.Background(), rec)
	require.Eventually(t, func() bool { return findRecording(c.session, rec.ID) != nil }, time.Second, 5*time.Millisecond)
}

func TestHub_IgnoresUnknownAndMalformed(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	c := testClient(hub, &fakeRecordings{}, nil)
	hub.apply("something_else", []byte(`{}`))
	hub.apply(EventRecordingSaved, []byte(`not json`))
	hub.RecordingSaved(context.Background(), nil)
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, c.session.Snapshot().Recordings)
}

func TestEventCodec(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	body, err := encodeEvent(EventTranscriptionUpdated, []byte(`{"id":"x"}`), at)
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"transcription_updated","data":{"id":"x"},"at":1709287200}`, string(body))

	event, data, err := decodeEvent(body)
	require.NoError(t, err)
	require.Equal(t, EventTranscriptionUpdated, event)
	require.JSONEq(t, `{"id":"x"}`, string(data))

	_, _, err = decodeEvent([]byte(`{"data":{}}`))
	require.Error(t, err)
	_, _, err = decodeEvent([]byte(`nope`))
	require.Error(t, err)
}
