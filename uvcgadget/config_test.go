package uvcgadget

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"uvcgadget.dev/v4l2"
)

// buildFixtureTree constructs a configfs-shaped directory tree for one
// function "uvc.0" with a single YUYV format of two frames (640x360 and
// 1280x720).
func buildFixtureTree(t *testing.T) (root, function string) {
	t.Helper()
	base := t.TempDir()
	function = "uvc.0"
	funcDir := filepath.Join(base, function)

	writeFile := func(path, content string) {
		t.Helper()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	writeFile(filepath.Join(funcDir, "streaming_maxpacket"), "1024")
	writeFile(filepath.Join(funcDir, "control_interface"), "0")
	writeFile(filepath.Join(funcDir, "streaming_interface"), "1")
	writeFile(filepath.Join(funcDir, "device_node"), "/dev/video0")

	formatDir := filepath.Join(funcDir, "streaming", "uncompressed", "u1")
	writeFile(filepath.Join(formatDir, "1", "wWidth"), "640")
	writeFile(filepath.Join(formatDir, "1", "wHeight"), "360")
	writeFile(filepath.Join(formatDir, "1", "dwFrameInterval"), "166666\n200000\n333333\n500000\n")

	writeFile(filepath.Join(formatDir, "2", "wWidth"), "1280")
	writeFile(filepath.Join(formatDir, "2", "wHeight"), "720")
	writeFile(filepath.Join(formatDir, "2", "dwFrameInterval"), "333333\n500000\n")

	headerDir := filepath.Join(funcDir, "streaming", "header", "h")
	if err := os.MkdirAll(headerDir, 0o755); err != nil {
		t.Fatalf("mkdir header: %v", err)
	}
	if err := os.Symlink(filepath.Join("..", "..", "uncompressed", "u1"), filepath.Join(headerDir, "u1")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	return base, function
}

func TestReadFunctionConfig(t *testing.T) {
	root, function := buildFixtureTree(t)

	cfg, err := ReadFunctionConfig(root, function)
	if err != nil {
		t.Fatalf("ReadFunctionConfig: %v", err)
	}

	if cfg.StreamingMaxPacketSize != 1024 {
		t.Errorf("StreamingMaxPacketSize = %d, want 1024", cfg.StreamingMaxPacketSize)
	}
	if cfg.ControlInterfaceNumber != 0 {
		t.Errorf("ControlInterfaceNumber = %d, want 0", cfg.ControlInterfaceNumber)
	}
	if cfg.StreamingInterfaceNumber != 1 {
		t.Errorf("StreamingInterfaceNumber = %d, want 1", cfg.StreamingInterfaceNumber)
	}
	if cfg.DeviceNode != "/dev/video0" {
		t.Errorf("DeviceNode = %q, want /dev/video0", cfg.DeviceNode)
	}
	if cfg.NumFormats() != 1 {
		t.Fatalf("NumFormats = %d, want 1", cfg.NumFormats())
	}

	format, ok := cfg.Format(1)
	if !ok {
		t.Fatal("Format(1) not found")
	}
	if format.FourCC != v4l2.PixelFmtYUYV {
		t.Errorf("FourCC = %#x, want YUYV", format.FourCC)
	}
	if cfg.NumFrames(1) != 2 {
		t.Fatalf("NumFrames(1) = %d, want 2", cfg.NumFrames(1))
	}

	frame1, ok := cfg.Frame(1, 1)
	if !ok {
		t.Fatal("Frame(1,1) not found")
	}
	if frame1.Width != 640 || frame1.Height != 360 {
		t.Errorf("frame 1 = %dx%d, want 640x360", frame1.Width, frame1.Height)
	}
	if len(frame1.Intervals) != 4 || frame1.Intervals[0] != 166666 {
		t.Errorf("frame 1 intervals = %v, want [166666 200000 333333 500000]", frame1.Intervals)
	}

	frame2, ok := cfg.Frame(1, 2)
	if !ok {
		t.Fatal("Frame(1,2) not found")
	}
	if frame2.Width != 1280 || frame2.Height != 720 {
		t.Errorf("frame 2 = %dx%d, want 1280x720", frame2.Width, frame2.Height)
	}
}

func TestReadFunctionConfigMissingMaxPacketIsConfigError(t *testing.T) {
	base := t.TempDir()
	function := "uvc.0"
	if err := os.MkdirAll(filepath.Join(base, function), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	_, err := ReadFunctionConfig(base, function)
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for missing streaming_maxpacket, got %v", err)
	}
}

func TestFunctionConfigIndexingIsOneBased(t *testing.T) {
	cfg := &FunctionConfig{Formats: []Format{{FourCC: v4l2.PixelFmtYUYV, Frames: []Frame{{Width: 1, Height: 1}}}}}

	if _, ok := cfg.Format(0); ok {
		t.Error("Format(0) should be out of range (1-based)")
	}
	if _, ok := cfg.Format(2); ok {
		t.Error("Format(2) should be out of range with only 1 format")
	}
	if _, ok := cfg.Format(1); !ok {
		t.Error("Format(1) should be valid")
	}
}
