package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RecorderState is the recording workflow state.
type RecorderState string

const (
	StateIdle       RecorderState = "idle"
	StateRecording  RecorderState = "recording"
	StateFinalizing RecorderState = "finalizing"
	StateSaved      RecorderState = "saved"
	StateError      RecorderState = "error"
)

// CaptureDevice is a microphone that buffers audio between Start and Stop.
type CaptureDevice interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (Blob, error)
}

// SaveFunc receives the captured audio once recording is finalized.
type SaveFunc func(ctx context.Context, blob Blob, duration string) error

// Recorder drives one capture device through idle, recording, finalizing
// and then saved or error. Only one take runs at a time.
type Recorder struct {
	mu        sync.Mutex
	state     RecorderState
	device    CaptureDevice
	startedAt time.Time
	save      SaveFunc
	onChange  func()
	now       func() time.Time
	logger    *zap.Logger
}

// NewRecorder creates an idle recorder. device may be nil until one is attached.
func NewRecorder(device CaptureDevice, save SaveFunc, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{state: StateIdle, device: device, save: save, now: time.Now, logger: logger}
}

// SetDevice attaches or replaces the capture device. Ignored mid-take.
func (r *Recorder) SetDevice(d CaptureDevice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRecording || r.state == StateFinalizing {
		return
	}
	r.device = d
}

// HasDevice reports whether a capture device is attached.
func (r *Recorder) HasDevice() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.device != nil
}

// State returns the current state.
func (r *Recorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start begins a take. It is a no-op while recording or finalizing.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state == StateRecording || r.state == StateFinalizing {
		r.mu.Unlock()
		return nil
	}
	if r.device == nil {
		r.mu.Unlock()
		r.logger.Warn("recording requested without capture device")
		return ErrNoDevice
	}
	if err := r.device.Start(ctx); err != nil {
		r.mu.Unlock()
		r.logger.Error("capture device start failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrNoDevice, err)
	}
	r.startedAt = r.now()
	r.state = StateRecording
	r.mu.Unlock()
	r.changed()
	return nil
}

// Stop ends the take, stops the device and hands the audio to the save func.
// Calling Stop outside StateRecording returns ErrIllegalTransition.
func (r *Recorder) Stop(ctx context.Context) error {
	finish, err := r.BeginStop()
	if err != nil {
		return err
	}
	return finish(ctx)
}

// BeginStop moves the recorder to StateFinalizing and returns the remaining
// work, which must be called exactly once.
func (r *Recorder) BeginStop() (func(ctx context.Context) error, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return nil, ErrIllegalTransition
	}
	duration := ElapsedDuration(r.startedAt, r.now())
	r.startedAt = time.Time{}
	r.state = StateFinalizing
	device := r.device
	r.mu.Unlock()
	r.changed()

	return func(ctx context.Context) error { return r.finalize(ctx, device, duration) }, nil
}

func (r *Recorder) finalize(ctx context.Context, device CaptureDevice, duration string) error {
	blob, err := device.Stop(ctx)
	if err == nil && len(blob.Data) == 0 {
		err = ErrNoAudio
	}
	if err == nil && r.save != nil {
		err = r.save(ctx, blob, duration)
	}

	r.mu.Lock()
	if err != nil {
		r.state = StateError
	} else {
		r.state = StateSaved
	}
	r.mu.Unlock()
	r.changed()
	if err != nil {
		r.logger.Error("recording not saved", zap.Error(err), zap.String("duration", duration))
	}
	return err
}

// SetOnChange registers a callback invoked after every state change.
func (r *Recorder) SetOnChange(fn func()) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

func (r *Recorder) changed() {
	r.mu.Lock()
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}
