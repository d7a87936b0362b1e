package app

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ayusman/panoptes/internal/behavior"
	"github.com/ayusman/panoptes/internal/detector"
	"github.com/ayusman/panoptes/internal/exchange"
	"github.com/ayusman/panoptes/internal/frame"
	"github.com/ayusman/panoptes/internal/log"
)

// DefaultPollInterval bounds how long the consumer idles without a signal.
const DefaultPollInterval = 10 * time.Millisecond

// throughputEpsilon keeps throughput finite on very fast cycles.
const throughputEpsilon = 1e-4

// BatchObserver sees every published batch and every evicted track.
type BatchObserver interface {
	Observe(batch []behavior.Detection)
	Forget(trackIDs []int)
}

// Consumer is the inference loop: it takes each new frame exactly once,
// runs the detector, smooths the observations through the registry and
// publishes the batch.
type Consumer struct {
	frames   *exchange.Frames
	results  *exchange.Results
	detector detector.Detector
	registry *behavior.Registry
	observer BatchObserver
	poll     time.Duration
	logger   *slog.Logger
	now      func() time.Time

	lastSeen uint64

	processed atomic.Uint64
	failures  atomic.Uint64
	tracks    atomic.Int64
}

// ConsumerOption customizes a Consumer.
type ConsumerOption func(*Consumer)

// WithPollInterval sets the idle wait between checks for a new frame.
func WithPollInterval(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d > 0 {
			c.poll = d
		}
	}
}

// WithObserver sets the batch observer.
func WithObserver(o BatchObserver) ConsumerOption {
	return func(c *Consumer) { c.observer = o }
}

// WithConsumerLogger sets the logger.
func WithConsumerLogger(l *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewConsumer creates a consumer. The registry is owned by the consumer
// from here on.
func NewConsumer(frames *exchange.Frames, results *exchange.Results, d detector.Detector, registry *behavior.Registry, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		frames:   frames,
		results:  results,
		detector: d,
		registry: registry,
		poll:     DefaultPollInterval,
		logger:   log.Component("inference"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes frames until ctx is done. Each wait is bounded by the poll
// interval so an idle loop still wakes periodically.
func (c *Consumer) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, c.poll)
		f, seq, err := c.frames.Wait(waitCtx, c.lastSeen)
		cancel()
		if err != nil {
			continue
		}
		c.process(f, seq)
	}
	return nil
}

// Step runs one cycle without waiting. It reports whether a new frame was
// taken, whether or not the detector succeeded.
func (c *Consumer) Step() bool {
	f, seq := c.frames.TakeIfNewer(c.lastSeen)
	if f == nil {
		return false
	}
	c.process(f, seq)
	return true
}

func (c *Consumer) process(f *frame.Frame, seq uint64) {
	c.lastSeen = seq

	start := c.now()
	obs, err := c.detector.Detect(f)
	if err != nil {
		// The failing frame is not retried; the previous batch stays visible.
		c.failures.Add(1)
		c.logger.Warn("detection failed, skipping frame", "seq", seq, "error", err)
		return
	}

	ts := captureSeconds(f)
	batch := make([]behavior.Detection, 0, len(obs))
	for _, o := range obs {
		if o.CaptureTime == 0 {
			o.CaptureTime = ts
		}
		batch = append(batch, c.registry.ProcessObservationAt(o, ts))
	}

	// Eviction runs on the frame clock; the model may stamp its own.
	evicted := c.registry.Evict(ts)
	if len(evicted) > 0 {
		c.logger.Debug("evicted stale tracks", "tracks", evicted)
	}
	c.tracks.Store(int64(c.registry.Len()))

	elapsed := c.now().Sub(start).Seconds()
	throughput := 1 / (elapsed + throughputEpsilon)

	c.results.PublishFrame(seq, batch, throughput)
	c.processed.Add(1)

	if c.observer != nil {
		c.observer.Forget(evicted)
		c.observer.Observe(batch)
	}
}

// LastSeen returns the sequence of the last frame taken.
func (c *Consumer) LastSeen() uint64 {
	return c.lastSeen
}

// Processed returns the number of batches published.
func (c *Consumer) Processed() uint64 {
	return c.processed.Load()
}

// Failures returns the number of detector errors.
func (c *Consumer) Failures() uint64 {
	return c.failures.Load()
}

// Tracks returns the live track count after the last cycle.
func (c *Consumer) Tracks() int {
	return int(c.tracks.Load())
}

func captureSeconds(f *frame.Frame) float64 {
	ts := f.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return float64(ts.UnixNano()) / 1e9
}
