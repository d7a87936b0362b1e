// Package exchange provides the single-slot hand-offs between the capture
// producer, the inference consumer and any number of readers.
//
// Each exchange holds only the most recent value. Publishing always
// overwrites; nothing is queued. Locks are held only for the copy or
// replace, never across inference or I/O.
package exchange

import (
	"context"
	"sync"

	"github.com/ayusman/panoptes/internal/frame"
)

// FrameStats counts frame traffic through a FrameExchange.
type FrameStats struct {
	Published uint64 `json:"published"` // equals the current sequence
	Taken     uint64 `json:"taken"`     // handed out by TakeIfNewer/Wait
	Dropped   uint64 `json:"dropped"`   // overwritten before any consumer took them
}

// Frames is the single-slot exchange for the most recent captured frame.
// The zero value is not usable; call NewFrames.
type Frames struct {
	mu      sync.Mutex
	latest  *frame.Frame
	seq     uint64
	taken   bool
	stats   FrameStats
	changed chan struct{} // closed and replaced on every publish
}

// NewFrames returns an empty frame exchange with sequence 0.
func NewFrames() *Frames {
	return &Frames{changed: make(chan struct{})}
}

// Publish stores a copy of f and returns the new sequence number.
// A nil frame is ignored and the current sequence is returned.
func (x *Frames) Publish(f *frame.Frame) uint64 {
	if f == nil {
		return x.PeekSequence()
	}
	c := f.Clone()

	x.mu.Lock()
	if x.latest != nil && !x.taken {
		x.stats.Dropped++
	}
	x.latest = c
	x.seq++
	x.taken = false
	x.stats.Published = x.seq
	seq := x.seq
	close(x.changed)
	x.changed = make(chan struct{})
	x.mu.Unlock()

	return seq
}

// PeekSequence returns the current sequence without copying the frame.
func (x *Frames) PeekSequence() uint64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.seq
}

// TakeIfNewer returns a copy of the stored frame and its sequence when the
// sequence is greater than lastSeen. Otherwise it returns (nil, lastSeen).
func (x *Frames) TakeIfNewer(lastSeen uint64) (*frame.Frame, uint64) {
	x.mu.Lock()
	if x.latest == nil || x.seq <= lastSeen {
		x.mu.Unlock()
		return nil, lastSeen
	}
	stored, seq := x.latest, x.seq
	x.taken = true
	x.stats.Taken++
	x.mu.Unlock()

	// stored is never mutated after publish, so the copy can happen unlocked.
	return stored.Clone(), seq
}

// Wait blocks until a frame newer than lastSeen exists or ctx is done.
// On success it behaves like TakeIfNewer. On cancellation it returns
// (nil, lastSeen, ctx.Err()).
func (x *Frames) Wait(ctx context.Context, lastSeen uint64) (*frame.Frame, uint64, error) {
	for {
		x.mu.Lock()
		ready := x.latest != nil && x.seq > lastSeen
		changed := x.changed
		x.mu.Unlock()

		if ready {
			if f, seq := x.TakeIfNewer(lastSeen); f != nil {
				return f, seq, nil
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil, lastSeen, ctx.Err()
		case <-changed:
		}
	}
}

// Changed returns a channel closed on the next publish.
func (x *Frames) Changed() <-chan struct{} {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.changed
}

// Latest returns a copy of the newest frame for renderers, without
// affecting consumer drop accounting. ok is false before the first publish.
func (x *Frames) Latest() (f *frame.Frame, seq uint64, ok bool) {
	x.mu.Lock()
	stored, seq := x.latest, x.seq
	x.mu.Unlock()

	if stored == nil {
		return nil, 0, false
	}
	return stored.Clone(), seq, true
}

// Stats returns a snapshot of the exchange counters.
func (x *Frames) Stats() FrameStats {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.stats
}
