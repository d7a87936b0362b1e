package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/ayusman/panoptes/internal/frame"
)

// ScriptName is the model service looked up when Config.Script is empty.
const ScriptName = "pose_service.py"

// SubprocessDetector implements Detector using a Python pose/track model
// service running as a child process.
//
// Wire protocol, one exchange per frame:
//
//	request:  4-byte big-endian length, then a JPEG image
//	response: one JSON line {"detections":[{"id":7,"box":[x1,y1,x2,y2],"keypoints":[[x,y],...]}]}
//
// Boxes and keypoints are normalized to [0,1]. The service owns tracking,
// so ids are stable only as far as the model keeps them.
type SubprocessDetector struct {
	config    Config
	script    string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	idleTimer *time.Timer
}

// NewSubprocessDetector creates a new subprocess detector.
// The Python process is started lazily on first detection.
func NewSubprocessDetector(config Config) (*SubprocessDetector, error) {
	script := config.Script
	if script == "" {
		script = findScript()
	}
	if script == "" {
		return nil, fmt.Errorf("%s not found", ScriptName)
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("model script: %w", err)
	}
	if config.Encode == nil {
		return nil, errors.New("no frame encoder configured")
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultConfig().IdleTimeout
	}

	return &SubprocessDetector{
		config: config,
		script: script,
	}, nil
}

// Detect sends one frame to the service and parses the observations.
func (d *SubprocessDetector) Detect(f *frame.Frame) ([]Observation, error) {
	data, err := d.config.Encode(f)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	obs, err := d.roundTrip(data, captureTime(f))
	if err != nil {
		// The stream is out of sync after a failed exchange; restart on next call.
		d.shutdown()
		return nil, err
	}

	d.resetIdleTimer()
	return obs, nil
}

func (d *SubprocessDetector) roundTrip(data []byte, ts float64) ([]Observation, error) {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := d.stdin.Write(length); err != nil {
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return parseResponse(line, ts, d.config.MinConfidence)
}

// Close shuts down the Python process.
func (d *SubprocessDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *SubprocessDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	python := d.config.Python
	if python == "" {
		python = findVenvPython()
	}
	if python == "" {
		python = "python3"
	}

	d.cmd = exec.Command(python, d.script, "--conf", fmt.Sprintf("%.2f", d.config.MinConfidence))

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start pose service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true

	return nil
}

func (d *SubprocessDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *SubprocessDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

func captureTime(f *frame.Frame) float64 {
	ts := f.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return float64(ts.UnixNano()) / 1e9
}

func findScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", ScriptName),
		filepath.Join("..", "scripts", ScriptName),
		filepath.Join(execDir, "scripts", ScriptName),
		filepath.Join(os.Getenv("HOME"), ".panoptes", "scripts", ScriptName),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".panoptes/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}

// jsonDetection is one subject in the service response.
type jsonDetection struct {
	ID         *int        `json:"id"`
	Box        []float64   `json:"box"`
	Keypoints  [][]float64 `json:"keypoints"`
	Confidence *float64    `json:"conf,omitempty"`
}

type jsonResponse struct {
	Detections []jsonDetection `json:"detections"`
	Error      string          `json:"error,omitempty"`
}

// parseResponse converts a service response line into observations.
// Detections without a track id or with a malformed box are skipped;
// malformed keypoint entries drop the whole keypoint set for that subject.
func parseResponse(line []byte, ts, minConf float64) ([]Observation, error) {
	var resp jsonResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, errors.New("pose service: " + resp.Error)
	}

	out := make([]Observation, 0, len(resp.Detections))
	for _, det := range resp.Detections {
		if det.ID == nil || len(det.Box) != 4 {
			continue
		}
		if det.Confidence != nil && *det.Confidence < minConf {
			continue
		}

		obs := Observation{
			TrackID:     *det.ID,
			Box:         Box{det.Box[0], det.Box[1], det.Box[2], det.Box[3]},
			CaptureTime: ts,
		}

		kps := make([]Point, 0, len(det.Keypoints))
		for _, kp := range det.Keypoints {
			if len(kp) < 2 {
				kps = nil
				break
			}
			kps = append(kps, Point{X: kp[0], Y: kp[1]})
		}
		obs.Keypoints = kps

		out = append(out, obs)
	}
	return out, nil
}
