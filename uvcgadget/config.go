package uvcgadget

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"uvcgadget.dev/v4l2"
)

// Frame is one supported resolution within a Format, carrying the ordered
// list of frame intervals (100ns units, as on the wire) the host may
// request.
type Frame struct {
	Width      uint16
	Height     uint16
	Intervals  []uint32
	MinBitRate uint32
	MaxBitRate uint32
}

// Format is one pixel encoding supported by the gadget function, with its
// ordered list of Frames. FourCC is either v4l2.PixelFmtYUYV or
// v4l2.PixelFmtMJPEG.
type Format struct {
	FourCC v4l2.FourCC
	Frames []Frame
}

// FunctionConfig is the immutable, once-read-at-startup description of a
// UVC gadget function: its supported formats/frames/intervals and the
// streaming endpoint/interface parameters the control state machine needs
// to answer GET_* requests.
type FunctionConfig struct {
	Formats                  []Format
	StreamingMaxPacketSize   uint32
	ControlInterfaceNumber   uint8
	StreamingInterfaceNumber uint8
	DeviceNode               string
}

// Format returns the 1-based indexed format, per the wire convention that
// bFormatIndex is 1-based.
func (c *FunctionConfig) Format(index int) (*Format, bool) {
	if index < 1 || index > len(c.Formats) {
		return nil, false
	}
	return &c.Formats[index-1], true
}

// Frame returns the 1-based indexed frame within the 1-based indexed
// format.
func (c *FunctionConfig) Frame(formatIndex, frameIndex int) (*Frame, bool) {
	f, ok := c.Format(formatIndex)
	if !ok {
		return nil, false
	}
	if frameIndex < 1 || frameIndex > len(f.Frames) {
		return nil, false
	}
	return &f.Frames[frameIndex-1], true
}

// NumFormats returns the number of configured formats.
func (c *FunctionConfig) NumFormats() int {
	return len(c.Formats)
}

// NumFrames returns the number of frames for the 1-based indexed format, or
// zero if the index is out of range.
func (c *FunctionConfig) NumFrames(formatIndex int) int {
	f, ok := c.Format(formatIndex)
	if !ok {
		return 0
	}
	return len(f.Frames)
}

// ReadFunctionConfig parses the gadget's configfs-exposed descriptor tree
// for the named function (e.g. "uvc.0") rooted at gadgetRoot (e.g.
// "/sys/kernel/config/usb_gadget/g1/functions") and returns its immutable
// configuration. Any structural problem with the tree wraps ErrConfig and
// is fatal at startup.
func ReadFunctionConfig(gadgetRoot, function string) (*FunctionConfig, error) {
	funcDir := filepath.Join(gadgetRoot, function)

	cfg := &FunctionConfig{}

	maxPkt, err := readUint(filepath.Join(funcDir, "streaming_maxpacket"))
	if err != nil {
		return nil, fmt.Errorf("%w: streaming_maxpacket: %v", ErrConfig, err)
	}
	cfg.StreamingMaxPacketSize = maxPkt

	if n, err := readUint(filepath.Join(funcDir, "control_interface")); err == nil {
		cfg.ControlInterfaceNumber = uint8(n)
	}
	if n, err := readUint(filepath.Join(funcDir, "streaming_interface")); err == nil {
		cfg.StreamingInterfaceNumber = uint8(n)
	}

	node, err := readString(filepath.Join(funcDir, "device_node"))
	if err != nil {
		return nil, fmt.Errorf("%w: device_node: %v", ErrConfig, err)
	}
	cfg.DeviceNode = node

	formats, err := readFormats(filepath.Join(funcDir, "streaming"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("%w: no formats declared for function %s", ErrConfig, function)
	}
	cfg.Formats = formats

	return cfg, nil
}

// readFormats walks the header/h ordering directory, resolving each
// symlink to a concrete uncompressed/ or mjpeg/ format directory, and
// parses its frame subdirectories. The order of entries in header/h is the
// wire order (1-based bFormatIndex), matching the real UVC gadget
// configfs ABI's header-symlink convention.
func readFormats(streamingDir string) ([]Format, error) {
	headerDir := filepath.Join(streamingDir, "header", "h")
	entries, err := os.ReadDir(headerDir)
	if err != nil {
		return nil, fmt.Errorf("read format header %s: %w", headerDir, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var formats []Format
	for _, entry := range entries {
		linkPath := filepath.Join(headerDir, entry.Name())
		target, err := os.Readlink(linkPath)
		if err != nil {
			return nil, fmt.Errorf("resolve format link %s: %w", linkPath, err)
		}
		formatDir := filepath.Clean(filepath.Join(headerDir, target))

		fourCC, err := formatFourCC(formatDir)
		if err != nil {
			return nil, err
		}

		frames, err := readFrames(formatDir)
		if err != nil {
			return nil, err
		}
		if len(frames) == 0 {
			return nil, fmt.Errorf("format %s: no frames declared", formatDir)
		}

		formats = append(formats, Format{FourCC: fourCC, Frames: frames})
	}
	return formats, nil
}

func formatFourCC(formatDir string) (v4l2.FourCC, error) {
	switch {
	case strings.Contains(formatDir, "uncompressed"):
		return v4l2.PixelFmtYUYV, nil
	case strings.Contains(formatDir, "mjpeg"):
		return v4l2.PixelFmtMJPEG, nil
	default:
		return 0, fmt.Errorf("format directory %s: unrecognized format type", formatDir)
	}
}

func readFrames(formatDir string) ([]Frame, error) {
	entries, err := os.ReadDir(formatDir)
	if err != nil {
		return nil, fmt.Errorf("read format dir %s: %w", formatDir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var frames []Frame
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		frameDir := filepath.Join(formatDir, entry.Name())

		width, err := readUint(filepath.Join(frameDir, "wWidth"))
		if err != nil {
			return nil, fmt.Errorf("frame %s: wWidth: %w", frameDir, err)
		}
		height, err := readUint(filepath.Join(frameDir, "wHeight"))
		if err != nil {
			return nil, fmt.Errorf("frame %s: wHeight: %w", frameDir, err)
		}
		intervals, err := readUintList(filepath.Join(frameDir, "dwFrameInterval"))
		if err != nil {
			return nil, fmt.Errorf("frame %s: dwFrameInterval: %w", frameDir, err)
		}
		if len(intervals) == 0 {
			return nil, fmt.Errorf("frame %s: no frame intervals declared", frameDir)
		}
		minBR, _ := readUint(filepath.Join(frameDir, "dwMinBitRate"))
		maxBR, _ := readUint(filepath.Join(frameDir, "dwMaxBitRate"))

		frames = append(frames, Frame{
			Width:      uint16(width),
			Height:     uint16(height),
			Intervals:  intervals,
			MinBitRate: minBR,
			MaxBitRate: maxBR,
		})
	}
	return frames, nil
}

func readString(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func readUint(path string) (uint32, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return uint32(n), nil
}

func readUintList(path string) ([]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []uint32
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		n, err := strconv.ParseUint(line, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, uint32(n))
	}
	return out, scanner.Err()
}
