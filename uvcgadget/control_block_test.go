package uvcgadget

import (
	"bytes"
	"testing"
)

func TestControlBlockMarshalRoundTrip(t *testing.T) {
	want := ControlBlock{
		BmHint:                   1,
		BFormatIndex:             1,
		BFrameIndex:              2,
		DwFrameInterval:          333333,
		DwMaxVideoFrameSize:      1843200,
		DwMaxPayloadTransferSize: 1024,
		DwClockFrequency:         0,
		BmFramingInfo:            3,
		BPreferedVersion:         1,
		BMaxVersion:              1,
	}

	buf := want.Marshal()
	if len(buf) != ControlBlockSize {
		t.Fatalf("Marshal produced %d bytes, want %d", len(buf), ControlBlockSize)
	}

	got, ok := UnmarshalControlBlock(buf)
	if !ok {
		t.Fatal("UnmarshalControlBlock reported short buffer on a full-size one")
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestUnmarshalControlBlockRejectsShortBuffer(t *testing.T) {
	if _, ok := UnmarshalControlBlock(make([]byte, ControlBlockSize-1)); ok {
		t.Fatal("expected ok=false for short buffer")
	}
}

// TestControlBlockOffsetsSmallFrame checks the exact wire bytes for
// format=1, frame=1, interval=166666, width=640 height=360.
func TestControlBlockOffsetsSmallFrame(t *testing.T) {
	block := ControlBlock{
		BFormatIndex:        1,
		BFrameIndex:         1,
		DwFrameInterval:     166666,
		DwMaxVideoFrameSize: 640 * 360 * 2,
	}
	buf := block.Marshal()

	if buf[2] != 0x01 || buf[3] != 0x01 {
		t.Fatalf("bytes 2..3 = %#x %#x, want 0x01 0x01", buf[2], buf[3])
	}
	if got := le32(buf[4:8]); got != 166666 {
		t.Fatalf("dwFrameInterval = %d, want 166666", got)
	}
	if got := le32(buf[18:22]); got != 460800 {
		t.Fatalf("dwMaxVideoFrameSize = %d, want 460800", got)
	}
}

// TestControlBlockOffsetsLargeFrame checks the exact wire bytes for
// format=1, frame=2, interval=500000, width=1280 height=720.
func TestControlBlockOffsetsLargeFrame(t *testing.T) {
	block := ControlBlock{
		BFormatIndex:        1,
		BFrameIndex:         2,
		DwFrameInterval:     500000,
		DwMaxVideoFrameSize: 1280 * 720 * 2,
	}
	buf := block.Marshal()

	if buf[3] != 0x02 {
		t.Fatalf("bFrameIndex byte = %#x, want 0x02", buf[3])
	}
	if got := le32(buf[4:8]); got != 500000 {
		t.Fatalf("dwFrameInterval = %d, want 500000", got)
	}
	if got := le32(buf[18:22]); got != 1843200 {
		t.Fatalf("dwMaxVideoFrameSize = %d, want 1843200", got)
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func TestControlBlockGetLenBytes(t *testing.T) {
	// GET_LEN response is two bytes, 0x22 0x00: 34 in little-endian order.
	got := []byte{byte(ControlBlockSize), 0x00}
	want := []byte{0x22, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("GET_LEN bytes = %v, want %v", got, want)
	}
}
