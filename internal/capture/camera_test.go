package capture

import (
	"testing"
	"time"

	"gocv.io/x/gocv"
)

func TestNewCamera(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantFPS int
	}{
		{
			name:    "defaults",
			opts:    Options{DeviceID: 0},
			wantFPS: DefaultFPS,
		},
		{
			name:    "explicit fps",
			opts:    Options{DeviceID: 1, FPS: 60},
			wantFPS: 60,
		},
		{
			name:    "negative fps falls back",
			opts:    Options{DeviceID: 2, FPS: -1},
			wantFPS: DefaultFPS,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := NewCamera(tt.opts)

			if cam == nil {
				t.Fatal("NewCamera returned nil")
			}

			if got := cam.FPS(); got != tt.wantFPS {
				t.Errorf("FPS() = %d, want %d", got, tt.wantFPS)
			}

			if cam.IsOpen() {
				t.Error("camera should not be running initially")
			}
		})
	}
}

func TestCamera_SetFPS(t *testing.T) {
	cam := NewCamera(Options{})

	tests := []struct {
		name    string
		fps     int
		wantFPS int
	}{
		{"set to 10", 10, 10},
		{"set to 60", 60, 60},
		{"set to 0 should keep previous", 0, 60},
		{"set to negative should keep previous", -5, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam.SetFPS(tt.fps)

			if got := cam.FPS(); got != tt.wantFPS {
				t.Errorf("FPS() = %d, want %d", got, tt.wantFPS)
			}
		})
	}
}

func TestCamera_ReadFrame_NotOpened(t *testing.T) {
	cam := NewCamera(Options{})

	if _, err := cam.ReadFrame(); err != ErrCameraNotOpen {
		t.Errorf("ReadFrame() error = %v, want ErrCameraNotOpen", err)
	}
}

func TestCamera_Close_NotOpened(t *testing.T) {
	cam := NewCamera(Options{})

	if err := cam.Close(); err != nil {
		t.Errorf("Close() on not opened camera should return nil, got: %v", err)
	}
}

func TestCamera_OpenClose_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cam := NewCamera(Options{DeviceID: 0})

	if err := cam.Open(); err != nil {
		t.Skipf("skipping test - camera not available: %v", err)
	}

	if !cam.IsOpen() {
		t.Error("IsOpen() should return true after Open()")
	}

	f, err := cam.ReadFrame()
	if err != nil {
		t.Errorf("ReadFrame() failed: %v", err)
	} else if f.Empty() {
		t.Error("ReadFrame() returned empty frame")
	} else if len(f.Data) < f.Width*f.Height {
		t.Errorf("frame buffer too small: %d bytes for %dx%d", len(f.Data), f.Width, f.Height)
	}

	if err := cam.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}

	if cam.IsOpen() {
		t.Error("IsOpen() should return false after Close()")
	}
}

func TestFromMatToMat_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	mat := gocv.NewMatWithSize(4, 6, gocv.MatTypeCV8UC3)
	defer mat.Close()
	mat.SetTo(gocv.NewScalar(10, 20, 30, 0))

	f := FromMat(mat, time.Now())
	if f.Width != 6 || f.Height != 4 {
		t.Fatalf("dimensions = %dx%d, want 6x4", f.Width, f.Height)
	}
	if len(f.Data) != 6*4*3 {
		t.Fatalf("data length = %d, want %d", len(f.Data), 6*4*3)
	}

	back, err := ToMat(f)
	if err != nil {
		t.Fatalf("ToMat() error = %v", err)
	}
	defer back.Close()

	if back.Rows() != 4 || back.Cols() != 6 || back.Type() != gocv.MatTypeCV8UC3 {
		t.Errorf("rebuilt mat = %dx%d type %v", back.Cols(), back.Rows(), back.Type())
	}
}

func TestToMat_Empty(t *testing.T) {
	if _, err := ToMat(nil); err != ErrEmptyFrame {
		t.Errorf("ToMat(nil) error = %v, want ErrEmptyFrame", err)
	}
}

func TestEncodeJPEG(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV encoding")
	}

	data, err := EncodeJPEG(SolidFrame(32, 24, 128))
	if err != nil {
		t.Fatalf("EncodeJPEG() error = %v", err)
	}

	// JPEG SOI marker
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Errorf("output does not start with a JPEG marker")
	}
}
