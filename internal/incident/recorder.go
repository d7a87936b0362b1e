package incident

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/panoptes/internal/behavior"
	"github.com/ayusman/panoptes/internal/log"
	"github.com/ayusman/panoptes/internal/store"
)

// Defaults for a Recorder.
const (
	DefaultDedupWindow = 5 * time.Second
	DefaultQueueSize   = 64
	DefaultRecent      = 15
	DefaultRetries     = 3
	DefaultBackoff     = 100 * time.Millisecond
	DefaultDrainWait   = 2 * time.Second
)

// Sink persists incidents. *store.IncidentRepository satisfies it.
type Sink interface {
	Create(inc *store.Incident) error
}

// Alerter delivers an incident to external receivers.
type Alerter interface {
	Alert(ctx context.Context, inc Incident)
}

// Stats counts recorder activity.
type Stats struct {
	Emitted    uint64 `json:"emitted"`
	Suppressed uint64 `json:"suppressed"` // duplicates inside the dedup window
	Dropped    uint64 `json:"dropped"`    // queue full
	Persisted  uint64 `json:"persisted"`
	Failed     uint64 `json:"failed"` // persistence gave up after retries
}

// Recorder watches published batches for tracks entering a high-priority
// label. Observe never blocks: incidents go onto a bounded queue that Run
// drains into the sink and the alerter.
type Recorder struct {
	sink    Sink
	alerter Alerter
	logger  *slog.Logger
	now     func() time.Time

	dedup   time.Duration
	retries int
	backoff time.Duration
	drain   time.Duration

	queue chan Incident

	mu        sync.Mutex
	labels    map[int]behavior.Label // last label seen per track
	lastSent  map[string]time.Time   // message -> last emit time
	recent    []Incident             // newest first
	recentCap int

	emitted    atomic.Uint64
	suppressed atomic.Uint64
	dropped    atomic.Uint64
	persisted  atomic.Uint64
	failed     atomic.Uint64
}

// Option customizes a Recorder.
type Option func(*Recorder)

// WithDedupWindow sets how long an identical message is suppressed.
func WithDedupWindow(d time.Duration) Option {
	return func(r *Recorder) { r.dedup = d }
}

// WithQueueSize sets the pending incident capacity.
func WithQueueSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan Incident, n)
		}
	}
}

// WithRecent sets how many incidents Recent keeps.
func WithRecent(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.recentCap = n
		}
	}
}

// WithRetry sets persistence attempts and the per-attempt backoff step.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(r *Recorder) {
		if attempts > 0 {
			r.retries = attempts
		}
		r.backoff = backoff
	}
}

// WithDrainWait bounds how long Run keeps flushing queued incidents after
// its context is done. Zero drops whatever is still queued.
func WithDrainWait(d time.Duration) Option {
	return func(r *Recorder) { r.drain = d }
}

// WithAlerter sets the alert receiver.
func WithAlerter(a Alerter) Option {
	return func(r *Recorder) { r.alerter = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a recorder persisting into sink. A nil sink keeps
// incidents in memory only.
func NewRecorder(sink Sink, opts ...Option) *Recorder {
	r := &Recorder{
		sink:      sink,
		logger:    log.Component("incident"),
		now:       time.Now,
		dedup:     DefaultDedupWindow,
		retries:   DefaultRetries,
		backoff:   DefaultBackoff,
		drain:     DefaultDrainWait,
		queue:     make(chan Incident, DefaultQueueSize),
		labels:    make(map[int]behavior.Label),
		lastSent:  make(map[string]time.Time),
		recentCap: DefaultRecent,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Observe inspects one published batch and enqueues an incident for every
// track that moved into a high-priority label.
func (r *Recorder) Observe(batch []behavior.Detection) {
	now := r.now()

	r.mu.Lock()
	var out []Incident
	for _, d := range batch {
		prev, seen := r.labels[d.TrackID]
		r.labels[d.TrackID] = d.Action

		if !d.Action.IsHighPriority() || (seen && prev == d.Action) {
			continue
		}

		msg := Message(d.TrackID, d.Action)
		if last, ok := r.lastSent[msg]; ok && now.Sub(last) < r.dedup {
			r.suppressed.Add(1)
			continue
		}
		r.lastSent[msg] = now

		inc := Incident{
			ID:       uuid.NewString(),
			TrackID:  d.TrackID,
			Label:    d.Action,
			Message:  msg,
			Severity: d.Action.Severity(),
			Time:     now,
		}
		r.pushRecent(inc)
		out = append(out, inc)
	}
	r.pruneLocked(now)
	r.mu.Unlock()

	for _, inc := range out {
		r.emitted.Add(1)
		select {
		case r.queue <- inc:
		default:
			r.dropped.Add(1)
			r.logger.Warn("incident queue full, dropping", "track", inc.TrackID, "label", inc.Label)
		}
	}
}

// Forget drops per-track state for evicted tracks.
func (r *Recorder) Forget(trackIDs []int) {
	if len(trackIDs) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range trackIDs {
		delete(r.labels, id)
	}
}

// Run persists and dispatches queued incidents until ctx is done, then
// flushes what is still queued for at most the drain wait.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return nil
		case inc := <-r.queue:
			r.handle(ctx, inc)
		}
	}
}

func (r *Recorder) flush() {
	if r.drain <= 0 || len(r.queue) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.drain)
	defer cancel()

	for {
		select {
		case inc := <-r.queue:
			r.handle(ctx, inc)
		default:
			return
		}
		if ctx.Err() != nil {
			if n := len(r.queue); n > 0 {
				r.logger.Warn("incident queue not drained", "pending", n)
			}
			return
		}
	}
}

func (r *Recorder) handle(ctx context.Context, inc Incident) {
	if r.sink != nil {
		if err := r.persist(ctx, inc); err != nil {
			r.failed.Add(1)
			r.logger.Error("incident not persisted", "id", inc.ID, "error", err)
		} else {
			r.persisted.Add(1)
		}
	}

	r.logger.Info("incident", "id", inc.ID, "track", inc.TrackID, "label", inc.Label, "severity", inc.Severity)

	if r.alerter != nil {
		r.alerter.Alert(ctx, inc)
	}
}

func (r *Recorder) persist(ctx context.Context, inc Incident) error {
	var err error
	for attempt := 1; attempt <= r.retries; attempt++ {
		if err = r.sink.Create(inc.Record()); err == nil {
			return nil
		}
		if attempt == r.retries {
			break
		}
		r.logger.Warn("incident persist failed, retrying", "id", inc.ID, "attempt", attempt, "error", err)

		t := time.NewTimer(r.backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

func (r *Recorder) pushRecent(inc Incident) {
	r.recent = append([]Incident{inc}, r.recent...)
	if len(r.recent) > r.recentCap {
		r.recent = r.recent[:r.recentCap]
	}
}

func (r *Recorder) pruneLocked(now time.Time) {
	for msg, t := range r.lastSent {
		if now.Sub(t) >= r.dedup {
			delete(r.lastSent, msg)
		}
	}
}

// Recent returns the latest incidents, newest first.
func (r *Recorder) Recent() []Incident {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Incident(nil), r.recent...)
}

// Last returns the newest incident, if any.
func (r *Recorder) Last() (Incident, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.recent) == 0 {
		return Incident{}, false
	}
	return r.recent[0], true
}

// Pending returns the number of queued incidents.
func (r *Recorder) Pending() int {
	return len(r.queue)
}

// Stats returns a snapshot of the counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Emitted:    r.emitted.Load(),
		Suppressed: r.suppressed.Load(),
		Dropped:    r.dropped.Load(),
		Persisted:  r.persisted.Load(),
		Failed:     r.failed.Load(),
	}
}
