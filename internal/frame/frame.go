// Package frame defines the pixel buffer passed between the capture
// producer, the frame exchange and the inference consumer.
package frame

import "time"

// Frame is an opaque 2-D pixel buffer with its dimensions.
//
// Data is row-major with Width*Height*Channels bytes for the usual 8-bit
// formats. Type carries the OpenCV mat type so the buffer can be rebuilt
// into a Mat by the capture package.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Type      int
	Timestamp time.Time
}

// Clone returns a deep copy of f. A nil frame clones to nil.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := *f
	if f.Data != nil {
		c.Data = make([]byte, len(f.Data))
		copy(c.Data, f.Data)
	}
	return &c
}

// Empty reports whether the frame carries no pixels.
func (f *Frame) Empty() bool {
	return f == nil || len(f.Data) == 0 || f.Width <= 0 || f.Height <= 0
}
