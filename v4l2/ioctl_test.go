package v4l2

import "testing"

// TestIoctlEncodingMatchesLinuxMacros checks the well-known VIDIOC_STREAMON
// and VIDIOC_STREAMOFF request codes against their published kernel UAPI
// values.
func TestIoctlEncodingMatchesLinuxMacros(t *testing.T) {
	tests := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"VIDIOC_STREAMON", vidiocStreamOn, 0x40045612},
		{"VIDIOC_STREAMOFF", vidiocStreamOff, 0x40045613},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %#x, want %#x", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestEncodeDirectionBits(t *testing.T) {
	read := encodeRead('V', 89, 8)
	write := encodeWrite('V', 90, 8)
	readWrite := encodeReadWrite('V', 4, 8)

	if read>>opPos != iocOpRead {
		t.Errorf("encodeRead direction = %#x, want %#x", read>>opPos, iocOpRead)
	}
	if write>>opPos != iocOpWrite {
		t.Errorf("encodeWrite direction = %#x, want %#x", write>>opPos, iocOpWrite)
	}
	if readWrite>>opPos != iocOpReadWrite {
		t.Errorf("encodeReadWrite direction = %#x, want %#x", readWrite>>opPos, iocOpReadWrite)
	}
}

func TestEncodeRoundTripsNumberAndType(t *testing.T) {
	req := encodeReadWrite('V', 9, 16)

	gotNumber := (req >> numberPos) & ((1 << iocNumberBits) - 1)
	gotType := (req >> typePos) & ((1 << iocTypeBits) - 1)
	gotSize := (req >> sizePos) & ((1 << iocSizeBits) - 1)

	if gotNumber != 9 {
		t.Errorf("number = %d, want 9", gotNumber)
	}
	if gotType != 'V' {
		t.Errorf("type = %d, want %d ('V')", gotType, byte('V'))
	}
	if gotSize != 16 {
		t.Errorf("size = %d, want 16", gotSize)
	}
}
