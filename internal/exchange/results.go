package exchange

import (
	"sync"
	"time"

	"github.com/ayusman/panoptes/internal/behavior"
)

// Snapshot is one published result batch.
type Snapshot struct {
	Detections []behavior.Detection `json:"detections"`
	Timestamp  time.Time            `json:"timestamp"`
	Throughput float64              `json:"throughput"` // results per second
	Seq        uint64               `json:"seq"`
	FrameSeq   uint64               `json:"frame_seq"` // frame the batch was computed from
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	s.Detections = cloneDetections(s.Detections)
	return s
}

func cloneDetections(in []behavior.Detection) []behavior.Detection {
	if in == nil {
		return nil
	}
	out := make([]behavior.Detection, len(in))
	for i, d := range in {
		out[i] = d.Clone()
	}
	return out
}

// Results is the single-slot exchange for the latest processed batch.
// The zero value is not usable; call NewResults.
type Results struct {
	mu      sync.Mutex
	latest  Snapshot
	ok      bool
	changed chan struct{}
	now     func() time.Time
}

// NewResults returns an empty result exchange.
func NewResults() *Results {
	return &Results{
		changed: make(chan struct{}),
		now:     time.Now,
	}
}

// Publish replaces the stored batch and returns its sequence.
func (x *Results) Publish(batch []behavior.Detection, throughput float64) uint64 {
	return x.PublishFrame(0, batch, throughput)
}

// PublishFrame is Publish recording the frame sequence the batch came from.
func (x *Results) PublishFrame(frameSeq uint64, batch []behavior.Detection, throughput float64) uint64 {
	snap := Snapshot{
		Detections: cloneDetections(batch),
		Throughput: throughput,
		FrameSeq:   frameSeq,
	}
	if snap.Detections == nil {
		snap.Detections = []behavior.Detection{}
	}

	x.mu.Lock()
	snap.Timestamp = x.now()
	snap.Seq = x.latest.Seq + 1
	x.latest = snap
	x.ok = true
	close(x.changed)
	x.changed = make(chan struct{})
	x.mu.Unlock()

	return snap.Seq
}

// Snapshot returns a copy of the latest batch. ok is false until the first
// publish.
func (x *Results) Snapshot() (Snapshot, bool) {
	x.mu.Lock()
	snap, ok := x.latest, x.ok
	x.mu.Unlock()

	if !ok {
		return Snapshot{}, false
	}
	// Stored batches are replaced, never mutated, so the copy can run unlocked.
	return snap.Clone(), true
}

// Published returns how many batches have been published.
func (x *Results) Published() uint64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.latest.Seq
}
