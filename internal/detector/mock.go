package detector

import (
	"sync"

	"github.com/ayusman/panoptes/internal/frame"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu           sync.Mutex
	observations []Observation
	script       [][]Observation
	err          error
	calls        int
	closed       bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetObservations sets the observations returned by every Detect call.
func (m *MockDetector) SetObservations(obs []Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations = obs
}

// Script queues per-call results. Each Detect call pops one batch; once the
// script is exhausted the SetObservations value is returned.
func (m *MockDetector) Script(batches ...[]Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, batches...)
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured observations or error.
func (m *MockDetector) Detect(f *frame.Frame) ([]Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		return next, nil
	}
	return m.observations, nil
}

// Calls returns how many times Detect was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// standingPose returns a neutral upright body: arms down at the hips,
// shoulders 0.2 apart, nose at y=0.5.
func standingPose() []Point {
	kp := make([]Point, NumKeypoints)
	kp[Nose] = Point{X: 0.50, Y: 0.50}
	kp[LeftEye] = Point{X: 0.48, Y: 0.48}
	kp[RightEye] = Point{X: 0.52, Y: 0.48}
	kp[LeftEar] = Point{X: 0.46, Y: 0.49}
	kp[RightEar] = Point{X: 0.54, Y: 0.49}
	kp[LeftShoulder] = Point{X: 0.40, Y: 0.60}
	kp[RightShoulder] = Point{X: 0.60, Y: 0.60}
	kp[LeftElbow] = Point{X: 0.38, Y: 0.70}
	kp[RightElbow] = Point{X: 0.62, Y: 0.70}
	kp[LeftWrist] = Point{X: 0.37, Y: 0.80}
	kp[RightWrist] = Point{X: 0.63, Y: 0.80}
	kp[LeftHip] = Point{X: 0.43, Y: 0.80}
	kp[RightHip] = Point{X: 0.57, Y: 0.80}
	kp[LeftKnee] = Point{X: 0.43, Y: 0.90}
	kp[RightKnee] = Point{X: 0.57, Y: 0.90}
	kp[LeftAnkle] = Point{X: 0.43, Y: 0.98}
	kp[RightAnkle] = Point{X: 0.57, Y: 0.98}
	return kp
}

// NeutralPose returns keypoints that classify as neutral.
func NeutralPose() []Point {
	return standingPose()
}

// HandsUpPose returns keypoints with both wrists above the nose (wrist y=0.1).
func HandsUpPose() []Point {
	kp := standingPose()
	kp[LeftElbow] = Point{X: 0.38, Y: 0.35}
	kp[RightElbow] = Point{X: 0.62, Y: 0.35}
	kp[LeftWrist] = Point{X: 0.37, Y: 0.10}
	kp[RightWrist] = Point{X: 0.63, Y: 0.10}
	return kp
}

// GuardPose returns a fighting stance: one wrist raised next to the face,
// the other down.
func GuardPose() []Point {
	kp := standingPose()
	kp[LeftElbow] = Point{X: 0.42, Y: 0.62}
	kp[LeftWrist] = Point{X: 0.47, Y: 0.52}
	return kp
}

// WristsAt returns the neutral pose with both wrists moved to height y.
func WristsAt(y float64) []Point {
	kp := standingPose()
	kp[LeftWrist].Y = y
	kp[RightWrist].Y = y
	return kp
}
