package behavior

import "gonum.org/v1/gonum/floats"

// DefaultWindowSize is the number of samples averaged per field.
const DefaultWindowSize = 5

// Window is a fixed-capacity rolling mean over equal-length vectors.
// The zero value is not usable; call NewWindow.
type Window struct {
	size    int
	dim     int
	samples [][]float64
	next    int // slot holding the oldest sample once full
}

// NewWindow returns an empty window holding at most size samples.
// A size below 1 is treated as 1.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{size: size}
}

// Update adds v and returns the elementwise mean of the samples now in the
// window. When v has a different length than the stored samples the window
// is reset first. The returned slice is owned by the caller.
func (w *Window) Update(v []float64) []float64 {
	if len(w.samples) > 0 && len(v) != w.dim {
		w.Reset()
	}
	w.dim = len(v)

	sample := append([]float64(nil), v...)
	if len(w.samples) < w.size {
		w.samples = append(w.samples, sample)
	} else {
		w.samples[w.next] = sample
		w.next = (w.next + 1) % w.size
	}

	return w.Mean()
}

// Mean returns the current elementwise mean, or nil when empty.
func (w *Window) Mean() []float64 {
	if len(w.samples) == 0 {
		return nil
	}
	mean := make([]float64, w.dim)
	for _, s := range w.samples {
		floats.Add(mean, s)
	}
	floats.Scale(1/float64(len(w.samples)), mean)
	return mean
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	return len(w.samples)
}

// Size returns the window capacity.
func (w *Window) Size() int {
	return w.size
}

// Reset drops every sample.
func (w *Window) Reset() {
	w.samples = nil
	w.dim = 0
	w.next = 0
}
