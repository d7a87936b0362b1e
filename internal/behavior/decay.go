package behavior

import "time"

// DefaultDecay is how long a high-priority label is held after its last sighting.
const DefaultDecay = 500 * time.Millisecond

// Decay is the per-track hysteresis on label changes. High-priority labels
// are adopted immediately and held for the decay window after they were
// last seen; every other label passes straight through.
type Decay struct {
	window   float64 // seconds
	current  Label
	lastSeen float64
}

// NewDecay returns a decay starting at Neutral. A non-positive window
// disables holding.
func NewDecay(window time.Duration) *Decay {
	return &Decay{window: window.Seconds(), current: Neutral}
}

// Apply feeds the raw label observed at ts and returns the label to report.
func (d *Decay) Apply(raw Label, ts float64) Label {
	switch {
	case raw.IsHighPriority():
		d.current = raw
		d.lastSeen = ts
	case d.current.IsHighPriority() && ts-d.lastSeen < d.window:
		// hold
	default:
		d.current = raw
		d.lastSeen = ts
	}
	return d.current
}

// Current returns the label last reported.
func (d *Decay) Current() Label {
	return d.current
}

// LastSeen returns the timestamp of the last adopted label.
func (d *Decay) LastSeen() float64 {
	return d.lastSeen
}
