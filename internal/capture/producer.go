package capture

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/panoptes/internal/frame"
	"github.com/ayusman/panoptes/internal/log"
)

// Camera status values reported by Producer.Status.
const (
	StatusStandby   = "STANDBY"
	StatusConnected = "CONNECTED"
	StatusError     = "ERROR"
)

// DefaultRetryDelay is the wait after a failed open or read.
const DefaultRetryDelay = time.Second

// FramePublisher receives every captured frame.
type FramePublisher interface {
	Publish(f *frame.Frame) uint64
}

// Producer acquires frames from a Camera at the source rate and hands each
// one to a FramePublisher. It never inspects frame content.
type Producer struct {
	camera     Camera
	out        FramePublisher
	retryDelay time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	enabled  bool
	wake     chan struct{}
	status   atomic.Value // string
	captured atomic.Uint64
	failures atomic.Uint64
}

// ProducerOption customizes a Producer.
type ProducerOption func(*Producer)

// WithRetryDelay sets the wait after an acquisition failure.
func WithRetryDelay(d time.Duration) ProducerOption {
	return func(p *Producer) {
		if d > 0 {
			p.retryDelay = d
		}
	}
}

// WithProducerLogger sets the logger.
func WithProducerLogger(l *slog.Logger) ProducerOption {
	return func(p *Producer) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProducer creates an enabled producer reading cam and publishing to out.
func NewProducer(cam Camera, out FramePublisher, opts ...ProducerOption) *Producer {
	p := &Producer{
		camera:     cam,
		out:        out,
		retryDelay: DefaultRetryDelay,
		logger:     log.Component("capture"),
		enabled:    true,
		wake:       make(chan struct{}, 1),
	}
	p.status.Store(StatusStandby)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetEnabled turns acquisition on or off. While disabled the camera is
// released and the loop idles until re-enabled or cancelled.
func (p *Producer) SetEnabled(enabled bool) {
	p.mu.Lock()
	p.enabled = enabled
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Enabled reports whether acquisition is on.
func (p *Producer) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Status returns the camera status string.
func (p *Producer) Status() string {
	return p.status.Load().(string)
}

// Captured returns the number of frames published so far.
func (p *Producer) Captured() uint64 {
	return p.captured.Load()
}

// Failures returns the number of failed opens and reads.
func (p *Producer) Failures() uint64 {
	return p.failures.Load()
}

// Run captures until ctx is cancelled. The camera is closed on return.
func (p *Producer) Run(ctx context.Context) error {
	defer p.release()

	if p.camera.IsOpen() {
		p.status.Store(StatusConnected)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		if !p.Enabled() {
			p.release()
			if !p.idle(ctx, 0) {
				return nil
			}
			continue
		}

		if !p.camera.IsOpen() {
			if err := p.camera.Open(); err != nil {
				p.failures.Add(1)
				p.status.Store(StatusError)
				p.logger.Warn("camera open failed", "error", err, "retry", p.retryDelay)
				if !p.idle(ctx, p.retryDelay) {
					return nil
				}
				continue
			}
			p.status.Store(StatusConnected)
			p.logger.Info("camera connected")
		}

		f, err := p.camera.ReadFrame()
		if err != nil {
			p.failures.Add(1)
			p.logger.Debug("frame read failed", "error", err)
			if !p.idle(ctx, p.retryDelay) {
				return nil
			}
			continue
		}

		p.out.Publish(f)
		p.captured.Add(1)
	}
}

// idle waits for d, a SetEnabled call, or ctx. A zero d waits only for the
// latter two. It returns false when ctx is done.
func (p *Producer) idle(ctx context.Context, d time.Duration) bool {
	var timer <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-ctx.Done():
		return false
	case <-p.wake:
		return true
	case <-timer:
		return true
	}
}

func (p *Producer) release() {
	if !p.camera.IsOpen() {
		if p.Status() == StatusConnected {
			p.status.Store(StatusStandby)
		}
		return
	}
	if err := p.camera.Close(); err != nil {
		p.logger.Warn("camera close failed", "error", err)
	}
	p.status.Store(StatusStandby)
	p.logger.Info("camera released")
}
