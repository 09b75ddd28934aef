package v4l2

import (
	"encoding/binary"
	"testing"
)

func TestEventSetupDecodesUSBCtrlRequest(t *testing.T) {
	var raw [64]byte
	raw[0] = 0x21 // bmRequestType: host-to-device, class, interface
	raw[1] = 0x01 // bRequest: SET_CUR
	binary.LittleEndian.PutUint16(raw[2:4], 0x0100) // wValue: selector 1, unit 0
	binary.LittleEndian.PutUint16(raw[4:6], 0x0001) // wIndex: interface 1
	binary.LittleEndian.PutUint16(raw[6:8], 34)     // wLength

	ev := Event{Kind: UVCEventSetup, raw: raw}
	pkt := ev.Setup()

	if pkt.RequestType != 0x21 || pkt.Request != 0x01 {
		t.Fatalf("RequestType/Request = %#x/%#x, want 0x21/0x01", pkt.RequestType, pkt.Request)
	}
	if pkt.Value != 0x0100 {
		t.Errorf("Value = %#x, want 0x0100", pkt.Value)
	}
	if pkt.Index != 1 {
		t.Errorf("Index = %d, want 1", pkt.Index)
	}
	if pkt.Length != 34 {
		t.Errorf("Length = %d, want 34", pkt.Length)
	}
}

func TestEventDataDecodesLengthPrefixedPayload(t *testing.T) {
	var raw [64]byte
	binary.LittleEndian.PutUint32(raw[0:4], 34)
	for i := 0; i < 34; i++ {
		raw[4+i] = byte(i)
	}

	ev := Event{Kind: UVCEventData, raw: raw}
	data := ev.Data()

	if len(data) != 34 {
		t.Fatalf("len(Data()) = %d, want 34", len(data))
	}
	for i, b := range data {
		if b != byte(i) {
			t.Fatalf("data[%d] = %d, want %d", i, b, i)
		}
	}
}

func TestEventDataRejectsOutOfRangeLength(t *testing.T) {
	tests := []struct {
		name   string
		length int32
	}{
		{"zero", 0},
		{"negative", -1},
		{"too large", 61},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw [64]byte
			binary.LittleEndian.PutUint32(raw[0:4], uint32(tt.length))
			ev := Event{Kind: UVCEventData, raw: raw}
			if data := ev.Data(); data != nil {
				t.Errorf("Data() = %v, want nil for length %d", data, tt.length)
			}
		})
	}
}

func TestUVCEventKindsAreDistinctAndOrdered(t *testing.T) {
	kinds := []EventType{
		UVCEventConnect, UVCEventDisconnect, UVCEventStreamOn,
		UVCEventStreamOff, UVCEventSetup, UVCEventData,
	}
	seen := make(map[EventType]bool)
	for i, k := range kinds {
		if k < eventPrivateStart {
			t.Errorf("kind %d is below eventPrivateStart", i)
		}
		if seen[k] {
			t.Errorf("duplicate event kind %#x at index %d", k, i)
		}
		seen[k] = true
	}
}
