package v4l2

import (
	"fmt"
	"unsafe"
)

// FourCC is a four-character-code pixel format identifier. It names the
// encoding of each configured format (see uvcgadget.Format; the Streaming
// Control Block itself carries only the format's index) and is used locally
// to talk to the kernel gadget driver's video node.
type FourCC = uint32

func fourCC(a, b, c, d byte) FourCC {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// Pixel formats this gadget runtime is able to negotiate. MJPEG is accepted
// at the control plane (format table, probe/commit) but never encoded by
// this program's built-in source.
var (
	PixelFmtYUYV  FourCC = fourCC('Y', 'U', 'Y', 'V')
	PixelFmtMJPEG FourCC = fourCC('M', 'J', 'P', 'G')
)

// BufType mirrors v4l2_buf_type. A UVC gadget's video node is opened from
// the output direction: userspace produces frames for the driver to
// transmit to the USB host, the mirror image of a capture device.
type BufType = uint32

const (
	BufTypeVideoOutput BufType = 2
)

// field (v4l2_field) — this program always uses the "none" (progressive)
// field order; interlaced gadget video is out of scope.
const fieldNone = 1

// PixFormat (v4l2_pix_format) describes the dimensions and pixel encoding
// of a video buffer.
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  FourCC
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
	Priv         uint32
	Flags        uint32
	YCbCrEnc     uint32
	Quantization uint32
	XferFunc     uint32
}

// v4l2Format mirrors v4l2_format for BufTypeVideoOutput: a type tag
// followed by the pix_format union member. The union is 8-byte aligned
// (the v4l2_window member carries a pointer), so it starts at offset 8,
// not immediately after Type; the 4 bytes in between are padding. The
// kernel's union also reserves room for other buffer types; we only ever
// populate/read the pix member.
type v4l2Format struct {
	Type BufType
	_    uint32
	Pix  PixFormat
	_    [152]byte // unused union padding to match kernel's v4l2_format size
}

var (
	vidiocGFmt = encodeReadWrite('V', 4, unsafe.Sizeof(v4l2Format{}))
	vidiocSFmt = encodeReadWrite('V', 5, unsafe.Sizeof(v4l2Format{}))
)

// GetFormat queries the currently active pixel format for the output
// buffer queue.
func GetFormat(fd uintptr) (PixFormat, error) {
	var f v4l2Format
	f.Type = BufTypeVideoOutput
	if err := send(fd, vidiocGFmt, uintptr(unsafe.Pointer(&f))); err != nil {
		return PixFormat{}, fmt.Errorf("v4l2: get format: %w", err)
	}
	return f.Pix, nil
}

// SetFormat requests the given pixel format and returns the format the
// driver actually configured (which may differ, e.g. an adjusted
// bytesperline). Idempotent: setting the same format twice is a no-op as
// far as the driver is concerned.
func SetFormat(fd uintptr, pix PixFormat) (PixFormat, error) {
	var f v4l2Format
	f.Type = BufTypeVideoOutput
	f.Pix = pix
	f.Pix.Field = fieldNone
	if err := send(fd, vidiocSFmt, uintptr(unsafe.Pointer(&f))); err != nil {
		return PixFormat{}, fmt.Errorf("v4l2: set format: %w", err)
	}
	return f.Pix, nil
}
