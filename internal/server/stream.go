package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayusman/panoptes/internal/capture"
	"github.com/ayusman/panoptes/internal/exchange"
	"github.com/ayusman/panoptes/internal/frame"
)

// StreamHandler serves MJPEG frames from the frame exchange. It reads the
// newest frame at its own rate and never takes frames from the consumer.
type StreamHandler struct {
	frames   *exchange.Frames
	interval time.Duration
	encode   func(*frame.Frame) ([]byte, error)
}

// NewStreamHandler creates a new StreamHandler pushing at most fps frames a second.
func NewStreamHandler(frames *exchange.Frames, fps int) *StreamHandler {
	if fps <= 0 {
		fps = DefaultStreamFPS
	}
	return &StreamHandler{
		frames:   frames,
		interval: time.Second / time.Duration(fps),
		encode:   capture.EncodeJPEG,
	}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last uint64
	for {
		f, seq, ok := h.frames.Latest()
		if ok && seq != last {
			last = seq
			buf, err := h.encode(f)
			if err == nil {
				if err := writePart(w, buf); err != nil {
					return
				}
				if fl, ok := w.(http.Flusher); ok {
					fl.Flush()
				}
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func writePart(w http.ResponseWriter, buf []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(buf)); err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	_, err := fmt.Fprint(w, "\r\n")
	return err
}
