// Package behavior turns noisy per-frame pose observations into stable
// per-track behavior labels.
//
// Each track runs three stages: a rolling mean over its recent boxes and
// keypoints, a geometric classifier on the smoothed keypoints, and a
// priority decay that holds high-priority labels across brief dropouts.
package behavior

// Label is a behavior classification for one track.
type Label string

// Wire values are shared with the dashboard and alert plugins.
const (
	Neutral  Label = "NEUTRAL"
	HandsUp  Label = "MANOS_ARRIBA"
	Agresion Label = "AGRESION"
	Golpe    Label = "GOLPE"
)

var highPriority = map[Label]bool{
	HandsUp:  true,
	Agresion: true,
	Golpe:    true,
}

// Labels returns every known label.
func Labels() []Label {
	return []Label{Neutral, HandsUp, Agresion, Golpe}
}

// IsHighPriority reports whether l escalates immediately and is protected
// by the decay window.
func (l Label) IsHighPriority() bool {
	return highPriority[l]
}

// Valid reports whether l is a known label.
func (l Label) Valid() bool {
	return l == Neutral || highPriority[l]
}

func (l Label) String() string {
	return string(l)
}

// Severity maps a label to an alert severity used by incidents.
func (l Label) Severity() string {
	switch l {
	case Golpe:
		return "critical"
	case Agresion:
		return "high"
	case HandsUp:
		return "medium"
	default:
		return "info"
	}
}
