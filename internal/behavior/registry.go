package behavior

import (
	"slices"
	"time"

	"github.com/ayusman/panoptes/internal/detector"
)

// DefaultStaleAfter is how long a track may go unobserved before eviction.
const DefaultStaleAfter = 5 * time.Second

// Detection is the smoothed, labeled view of one track in one batch.
type Detection struct {
	TrackID   int              `json:"id"`
	Box       detector.Box     `json:"box"`
	Keypoints []detector.Point `json:"keypoints"`
	Action    Label            `json:"action"`
	Timestamp float64          `json:"timestamp"`
}

// Clone returns a copy that shares no memory with d.
func (d Detection) Clone() Detection {
	if d.Keypoints != nil {
		d.Keypoints = append([]detector.Point(nil), d.Keypoints...)
	}
	return d
}

// Config tunes the registry.
type Config struct {
	Window     int           // samples per rolling mean
	Decay      time.Duration // high-priority hold
	StaleAfter time.Duration // eviction threshold; zero disables eviction
}

// DefaultConfig returns the stock registry settings.
func DefaultConfig() Config {
	return Config{
		Window:     DefaultWindowSize,
		Decay:      DefaultDecay,
		StaleAfter: DefaultStaleAfter,
	}
}

// TrackState is the smoothing and decay state of one live track.
type TrackState struct {
	ID         int
	LastUpdate float64 // capture time of the last observation
	SeenAt     float64 // eviction clock reading of the last observation

	boxes     *Window
	keypoints *Window
	decay     *Decay
}

// Label returns the label last reported for the track.
func (s *TrackState) Label() Label {
	return s.decay.Current()
}

// Registry owns one TrackState per track id. It is not safe for concurrent
// use; a single inference loop drives it.
type Registry struct {
	cfg    Config
	tracks map[int]*TrackState
}

// NewRegistry returns an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.Window < 1 {
		cfg.Window = DefaultWindowSize
	}
	return &Registry{
		cfg:    cfg,
		tracks: make(map[int]*TrackState),
	}
}

// Process smooths one observation for trackID and returns the labeled
// detection. Empty or short keypoint sets classify as Neutral. ts serves
// as both the observation time and the eviction clock.
func (r *Registry) Process(trackID int, box detector.Box, keypoints []detector.Point, ts float64) Detection {
	return r.process(trackID, box, keypoints, ts, ts)
}

func (r *Registry) process(trackID int, box detector.Box, keypoints []detector.Point, ts, seen float64) Detection {
	st, ok := r.tracks[trackID]
	if !ok {
		st = &TrackState{
			ID:        trackID,
			boxes:     NewWindow(r.cfg.Window),
			keypoints: NewWindow(r.cfg.Window),
			decay:     NewDecay(r.cfg.Decay),
		}
		r.tracks[trackID] = st
	}
	st.LastUpdate = ts
	st.SeenAt = seen

	var smoothedBox detector.Box
	copy(smoothedBox[:], st.boxes.Update(box[:]))

	var smoothedKP []detector.Point
	if len(keypoints) > 0 {
		smoothedKP = detector.UnflattenPoints(st.keypoints.Update(detector.FlattenPoints(keypoints)))
	}

	label := st.decay.Apply(Classify(smoothedKP), ts)

	return Detection{
		TrackID:   trackID,
		Box:       smoothedBox,
		Keypoints: smoothedKP,
		Action:    label,
		Timestamp: ts,
	}
}

// ProcessObservation is Process for a detector observation.
func (r *Registry) ProcessObservation(o detector.Observation) Detection {
	return r.Process(o.TrackID, o.Box, o.Keypoints, o.CaptureTime)
}

// ProcessObservationAt is ProcessObservation with the eviction clock read
// separately. Smoothing and decay follow o.CaptureTime, which may come
// from the model's own clock; Evict compares against seen.
func (r *Registry) ProcessObservationAt(o detector.Observation, seen float64) Detection {
	return r.process(o.TrackID, o.Box, o.Keypoints, o.CaptureTime, seen)
}

// Evict removes tracks not seen within StaleAfter of now and returns
// their ids in ascending order. now is read from the eviction clock.
func (r *Registry) Evict(now float64) []int {
	if r.cfg.StaleAfter <= 0 {
		return nil
	}
	limit := r.cfg.StaleAfter.Seconds()

	var evicted []int
	for id, st := range r.tracks {
		if now-st.SeenAt > limit {
			delete(r.tracks, id)
			evicted = append(evicted, id)
		}
	}
	slices.Sort(evicted)
	return evicted
}

// Len returns the number of live tracks.
func (r *Registry) Len() int {
	return len(r.tracks)
}

// Tracks returns the live track ids in ascending order.
func (r *Registry) Tracks() []int {
	ids := make([]int, 0, len(r.tracks))
	for id := range r.tracks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Track returns the state for id, if live.
func (r *Registry) Track(id int) (*TrackState, bool) {
	st, ok := r.tracks[id]
	return st, ok
}
