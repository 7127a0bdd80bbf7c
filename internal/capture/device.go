package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
	"go.uber.org/zap"

	"github.com/voice-notes-ai/backend/internal/workflow"
)

const (
	// ContentType is the MIME type of captured takes.
	ContentType = "audio/ogg"

	// RTP buffer size (MTU-friendly).
	rtpBufferSize = 1500

	opusSampleRate = 48000
	opusChannels   = 2
)

var (
	// ErrNoTrack is returned by Start before the page has published its microphone.
	ErrNoTrack = errors.New("capture: microphone track not connected")
	// ErrNotRecording is returned by Stop when no take is armed.
	ErrNotRecording = errors.New("capture: not recording")
	// ErrClosed is returned once the peer connection has been torn down.
	ErrClosed = errors.New("capture: device closed")
)

var rtpBufferPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, rtpBufferSize)
		return &b
	},
}

// SignalFunc sends a signaling event back to the page.
type SignalFunc func(event string, payload interface{})

// Device is a microphone published by the page over WebRTC. Packets are
// dropped unless a take is armed; Start arms a fresh Ogg/Opus buffer and
// Stop hands the finished buffer over as a workflow.Blob.
type Device struct {
	cfg    webrtc.Configuration
	logger *zap.Logger

	mu     sync.Mutex
	pc     *webrtc.PeerConnection
	tracks int
	take   *take
	closed bool
}

type take struct {
	buf     *bytes.Buffer
	writer  *oggwriter.OggWriter
	packets int
}

var _ workflow.CaptureDevice = (*Device)(nil)

// NewDevice creates a device using the given STUN/TURN URLs.
func NewDevice(iceURLs []string, logger *zap.Logger) *Device {
	if logger == nil {
		logger = zap.NewNop()
	}
	var urls []string
	for _, u := range iceURLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		urls = []string{"stun:stun.l.google.com:19302"}
	}
	return &Device{
		cfg:    webrtc.Configuration{ICEServers: []webrtc.ICEServer{{URLs: urls}}},
		logger: logger,
	}
}

// HandleOffer answers the page's SDP offer. A new offer replaces the previous
// peer connection; an armed take survives and keeps receiving once the new
// track arrives.
func (d *Device) HandleOffer(offer webrtc.SessionDescription, send SignalFunc) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	old := d.pc
	d.pc = nil
	d.tracks = 0
	d.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	pc, err := api.NewPeerConnection(d.cfg)
	if err != nil {
		return err
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		b, _ := json.Marshal(c.ToJSON())
		send("webrtc_ice", map[string]interface{}{"candidate": json.RawMessage(b)})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		d.mu.Lock()
		if d.pc != pc {
			d.mu.Unlock()
			return
		}
		d.tracks++
		d.mu.Unlock()
		d.logger.Info("microphone track connected", zap.String("codec", track.Codec().MimeType))
		go d.readTrack(pc, track)
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		_ = pc.Close()
		return err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = pc.Close()
		return err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		_ = pc.Close()
		return err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		_ = pc.Close()
		return ErrClosed
	}
	d.pc = pc
	d.mu.Unlock()

	send("webrtc_answer", map[string]interface{}{
		"type": answer.Type.String(),
		"sdp":  answer.SDP,
	})
	return nil
}

// AddICECandidate adds a remote candidate to the current peer connection.
func (d *Device) AddICECandidate(c webrtc.ICECandidateInit) error {
	d.mu.Lock()
	pc := d.pc
	d.mu.Unlock()
	if pc == nil {
		return ErrNoTrack
	}
	return pc.AddICECandidate(c)
}

// Connected reports whether a microphone track is being received.
func (d *Device) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tracks > 0
}

// Start arms a fresh take.
func (d *Device) Start(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.tracks == 0 {
		return ErrNoTrack
	}
	return d.armLocked()
}

func (d *Device) armLocked() error {
	buf := &bytes.Buffer{}
	w, err := oggwriter.NewWith(buf, opusSampleRate, opusChannels)
	if err != nil {
		return fmt.Errorf("capture: ogg writer: %w", err)
	}
	d.take = &take{buf: buf, writer: w}
	return nil
}

// Stop disarms the take and returns what was captured. A take that received
// no audio packets returns an empty blob.
func (d *Device) Stop(_ context.Context) (workflow.Blob, error) {
	d.mu.Lock()
	t := d.take
	d.take = nil
	d.mu.Unlock()
	if t == nil {
		return workflow.Blob{}, ErrNotRecording
	}
	_ = t.writer.Close()
	if t.packets == 0 {
		return workflow.Blob{ContentType: ContentType}, nil
	}
	return workflow.Blob{Data: t.buf.Bytes(), ContentType: ContentType}, nil
}

// Close tears down the peer connection and drops any armed take.
func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	pc := d.pc
	d.pc = nil
	d.tracks = 0
	d.take = nil
	d.mu.Unlock()
	if pc == nil {
		return nil
	}
	return pc.Close()
}

func (d *Device) readTrack(pc *webrtc.PeerConnection, track *webrtc.TrackRemote) {
	defer func() {
		d.mu.Lock()
		if d.pc == pc && d.tracks > 0 {
			d.tracks--
		}
		d.mu.Unlock()
	}()
	for {
		ptr := rtpBufferPool.Get().(*[]byte)
		buf := *ptr
		n, _, err := track.Read(buf)
		if err != nil {
			rtpBufferPool.Put(ptr)
			return
		}
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err == nil {
			// Payload aliases the pooled buffer; write before returning it.
			d.write(pkt)
		}
		rtpBufferPool.Put(ptr)
	}
}

// write appends one packet to the armed take, if any.
func (d *Device) write(pkt *rtp.Packet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.take == nil || len(pkt.Payload) == 0 {
		return
	}
	if err := d.take.writer.WriteRTP(pkt); err != nil {
		d.logger.Warn("drop rtp packet", zap.Error(err))
		return
	}
	d.take.packets++
}
