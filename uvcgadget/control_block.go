package uvcgadget

import "encoding/binary"

// ControlBlockSize is the wire size of a Streaming Control Block: 34 bytes,
// little-endian, per the UVC 1.0/1.1 VS_PROBE_CONTROL/VS_COMMIT_CONTROL
// layout. DwClockFrequency sits between DwMaxPayloadTransferSize and
// BmFramingInfo, bringing the struct to its full 34 bytes.
const ControlBlockSize = 34

// Selector identifies which control (probe or tentative-vs-active commit)
// a streaming class request addresses. Values match the UVC wire encoding
// found in wValue >> 8.
type Selector uint8

const (
	SelectorNone   Selector = 0
	SelectorProbe  Selector = 0x01
	SelectorCommit Selector = 0x02
)

// Streaming class request codes (bRequest), per UVC 1.0/1.1.
const (
	ReqSetCur  uint8 = 0x01
	ReqGetCur  uint8 = 0x81
	ReqGetMin  uint8 = 0x82
	ReqGetMax  uint8 = 0x83
	ReqGetRes  uint8 = 0x84
	ReqGetLen  uint8 = 0x85
	ReqGetInfo uint8 = 0x86
	ReqGetDef  uint8 = 0x87
)

// ControlBlock is a Streaming Control Block (probe or commit), the
// negotiation unit exchanged between host and gadget to select a format,
// frame size, and frame interval.
type ControlBlock struct {
	BmHint                   uint16
	BFormatIndex             uint8
	BFrameIndex              uint8
	DwFrameInterval          uint32
	WKeyFrameRate            uint16
	WPFrameRate              uint16
	WCompQuality             uint16
	WCompWindowSize          uint16
	WDelay                   uint16
	DwMaxVideoFrameSize      uint32
	DwMaxPayloadTransferSize uint32
	DwClockFrequency         uint32
	BmFramingInfo            uint8
	BPreferedVersion         uint8
	BMinVersion              uint8
	BMaxVersion              uint8
}

// Marshal encodes the block as 34 little-endian bytes.
func (b ControlBlock) Marshal() []byte {
	buf := make([]byte, ControlBlockSize)
	binary.LittleEndian.PutUint16(buf[0:2], b.BmHint)
	buf[2] = b.BFormatIndex
	buf[3] = b.BFrameIndex
	binary.LittleEndian.PutUint32(buf[4:8], b.DwFrameInterval)
	binary.LittleEndian.PutUint16(buf[8:10], b.WKeyFrameRate)
	binary.LittleEndian.PutUint16(buf[10:12], b.WPFrameRate)
	binary.LittleEndian.PutUint16(buf[12:14], b.WCompQuality)
	binary.LittleEndian.PutUint16(buf[14:16], b.WCompWindowSize)
	binary.LittleEndian.PutUint16(buf[16:18], b.WDelay)
	binary.LittleEndian.PutUint32(buf[18:22], b.DwMaxVideoFrameSize)
	binary.LittleEndian.PutUint32(buf[22:26], b.DwMaxPayloadTransferSize)
	binary.LittleEndian.PutUint32(buf[26:30], b.DwClockFrequency)
	buf[30] = b.BmFramingInfo
	buf[31] = b.BPreferedVersion
	buf[32] = b.BMinVersion
	buf[33] = b.BMaxVersion
	return buf
}

// UnmarshalControlBlock decodes 34 little-endian wire bytes into a
// ControlBlock. Shorter input is a ProtocolError from the caller's
// perspective; UnmarshalControlBlock itself just reports ok=false.
func UnmarshalControlBlock(buf []byte) (ControlBlock, bool) {
	if len(buf) < ControlBlockSize {
		return ControlBlock{}, false
	}
	return ControlBlock{
		BmHint:                   binary.LittleEndian.Uint16(buf[0:2]),
		BFormatIndex:             buf[2],
		BFrameIndex:              buf[3],
		DwFrameInterval:          binary.LittleEndian.Uint32(buf[4:8]),
		WKeyFrameRate:            binary.LittleEndian.Uint16(buf[8:10]),
		WPFrameRate:              binary.LittleEndian.Uint16(buf[10:12]),
		WCompQuality:             binary.LittleEndian.Uint16(buf[12:14]),
		WCompWindowSize:          binary.LittleEndian.Uint16(buf[14:16]),
		WDelay:                   binary.LittleEndian.Uint16(buf[16:18]),
		DwMaxVideoFrameSize:      binary.LittleEndian.Uint32(buf[18:22]),
		DwMaxPayloadTransferSize: binary.LittleEndian.Uint32(buf[22:26]),
		DwClockFrequency:         binary.LittleEndian.Uint32(buf[26:30]),
		BmFramingInfo:            buf[30],
		BPreferedVersion:         buf[31],
		BMinVersion:              buf[32],
		BMaxVersion:              buf[33],
	}, true
}
