// Package detector defines the pose model collaborator and the raw
// per-subject observations it produces.
package detector

import "gonum.org/v1/gonum/floats"

// Body keypoint indices following the COCO-17 convention used by YOLO pose models.
const (
	Nose          = 0
	LeftEye       = 1
	RightEye      = 2
	LeftEar       = 3
	RightEar      = 4
	LeftShoulder  = 5
	RightShoulder = 6
	LeftElbow     = 7
	RightElbow    = 8
	LeftWrist     = 9
	RightWrist    = 10
	LeftHip       = 11
	RightHip      = 12
	LeftKnee      = 13
	RightKnee     = 14
	LeftAnkle     = 15
	RightAnkle    = 16
	NumKeypoints  = 17
)

// Point is a normalized image coordinate. Y grows downwards.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return floats.Distance([]float64{p.X, p.Y}, []float64{q.X, q.Y}, 2)
}

// Box is an axis-aligned box [x1, y1, x2, y2] normalized to [0,1].
type Box [4]float64

// Observation is one subject seen by the model in one processed frame.
type Observation struct {
	TrackID     int     `json:"id"`
	Box         Box     `json:"box"`
	Keypoints   []Point `json:"keypoints"` // empty when the model produced no pose
	CaptureTime float64 `json:"capture_time"`
}

// FlattenPoints lays points out as [x0, y0, x1, y1, ...].
func FlattenPoints(pts []Point) []float64 {
	out := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		out = append(out, p.X, p.Y)
	}
	return out
}

// UnflattenPoints is the inverse of FlattenPoints. A trailing odd value is dropped.
func UnflattenPoints(v []float64) []Point {
	out := make([]Point, len(v)/2)
	for i := range out {
		out[i] = Point{X: v[2*i], Y: v[2*i+1]}
	}
	return out
}
