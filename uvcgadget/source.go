package uvcgadget

import (
	"fmt"

	"uvcgadget.dev/v4l2"
)

// Source produces frame payloads for the streaming engine to transmit. The
// orchestrator calls Fill once per available Free buffer; Fill must not
// block.
type Source interface {
	// SetFormat configures the source for the given resolution and pixel
	// format. Returns ErrInvalidFormat if the source cannot produce that
	// format.
	SetFormat(fourCC v4l2.FourCC, width, height uint32) error

	// SetFrameRate informs the source of the negotiated frames-per-second,
	// so time-varying sources can pace their output.
	SetFrameRate(fps uint32)

	// Fill writes one frame's worth of pixel data into mem and returns the
	// number of bytes written.
	Fill(mem []byte) (bytesUsed uint32, err error)

	// Destroy releases any source-held resources.
	Destroy()
}

const (
	squareSize  = 32
	whitePixels = 0x80eb80eb
	grayPixels  = 0x807f7f7f
)

// StaticSource generates a YUYV scrolling checkerboard test pattern, the
// reference UVC gadget's default payload when no real camera is attached.
type StaticSource struct {
	width   uint32
	height  uint32
	fourCC  v4l2.FourCC
	frame   uint64 // instance-local counter, advances one tick per Fill
}

// NewStaticSource constructs a StaticSource with no format configured yet;
// SetFormat must be called before Fill.
func NewStaticSource() *StaticSource {
	return &StaticSource{}
}

// SetFormat configures the checkerboard generator's resolution. Only YUYV
// is supported; MJPEG is accepted at the control plane but this source
// cannot encode it.
func (s *StaticSource) SetFormat(fourCC v4l2.FourCC, width, height uint32) error {
	if fourCC != v4l2.PixelFmtYUYV {
		return fmt.Errorf("%w: static source only produces YUYV", ErrInvalidFormat)
	}
	s.width = width
	s.height = height
	s.fourCC = fourCC
	return nil
}

// SetFrameRate is a no-op for StaticSource: the pattern scrolls by exactly
// one pixel per Fill call regardless of the negotiated rate, since pacing
// is the orchestrator's/reactor's responsibility, not the source's.
func (s *StaticSource) SetFrameRate(fps uint32) {}

// Fill renders one frame of the scrolling checkerboard into mem as
// interleaved YUYV macropixels (4 bytes per 2 horizontal pixels).
func (s *StaticSource) Fill(mem []byte) (uint32, error) {
	if s.width == 0 || s.height == 0 {
		return 0, fmt.Errorf("%w: static source: format not set", ErrInvalidFormat)
	}
	needed := s.width * s.height * 2
	if uint32(len(mem)) < needed {
		return 0, fmt.Errorf("%w: buffer too small for frame: have %d need %d", ErrResource, len(mem), needed)
	}

	period := uint32(2 * squareSize)
	scroll := uint32(s.frame) % period

	macropixelsPerRow := s.width / 2
	for y := uint32(0); y < s.height; y++ {
		rowBase := y * s.width * 2
		for mp := uint32(0); mp < macropixelsPerRow; mp++ {
			x := mp * 2
			col := (x + scroll) / squareSize
			row := y / squareSize
			var px uint32
			if (col+row)%2 == 0 {
				px = whitePixels
			} else {
				px = grayPixels
			}
			off := rowBase + mp*4
			mem[off+0] = byte(px)
			mem[off+1] = byte(px >> 8)
			mem[off+2] = byte(px >> 16)
			mem[off+3] = byte(px >> 24)
		}
	}

	s.frame++
	return needed, nil
}

// Destroy resets the source to its unconfigured state.
func (s *StaticSource) Destroy() {
	s.width = 0
	s.height = 0
	s.frame = 0
}
