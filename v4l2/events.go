package v4l2

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// EventType is a V4L2 or UVC event kind. UVC-specific kinds live in the
// driver-private range starting at eventPrivateStart, per
// include/uapi/linux/usb/video.h.
type EventType = uint32

const eventPrivateStart EventType = 0x08000000

// UVC event kinds the control state machine dispatches on. Only SETUP,
// DATA, STREAMON and STREAMOFF are subscribed to by this program;
// CONNECT/DISCONNECT are listed so a stray delivery can still be
// classified and ignored rather than mistaken for one of the four.
const (
	UVCEventConnect    EventType = eventPrivateStart + 0
	UVCEventDisconnect EventType = eventPrivateStart + 1
	UVCEventStreamOn   EventType = eventPrivateStart + 2
	UVCEventStreamOff  EventType = eventPrivateStart + 3
	UVCEventSetup      EventType = eventPrivateStart + 4
	UVCEventData       EventType = eventPrivateStart + 5
)

// v4l2EventSubscription mirrors v4l2_event_subscription.
type v4l2EventSubscription struct {
	Type  EventType
	ID    uint32
	Flags uint32
	_     [5]uint32
}

// v4l2Event mirrors v4l2_event. The union u is 8-byte aligned (one of its
// members, v4l2_event_ctrl, carries a __s64), so it starts at offset 8,
// not immediately after Type — the 4 bytes in between are padding. U holds
// the raw union payload; for UVC events that's either a struct
// usb_ctrlrequest (SETUP) or a struct uvc_request_data (DATA), both of
// which fit in the first bytes of the 64-byte union. The same 8-byte
// alignment pads the struct's tail to 136 bytes.
type v4l2Event struct {
	Type      EventType
	_         uint32
	U         [64]byte
	Pending   uint32
	Sequence  uint32
	Timestamp [16]byte
	ID        uint32
	_         [8]uint32
	_         uint32 // tail padding to the kernel struct's 8-byte alignment
}

var (
	vidiocSubscribeEvent   = encodeWrite('V', 90, unsafe.Sizeof(v4l2EventSubscription{}))
	vidiocUnsubscribeEvent = encodeWrite('V', 91, unsafe.Sizeof(v4l2EventSubscription{}))
	vidiocDQEvent          = encodeRead('V', 89, unsafe.Sizeof(v4l2Event{}))
)

// SubscribeEvent registers interest in the given event kind. id and flags
// are left zero, matching the reference UVC gadget's own subscription call.
func SubscribeEvent(fd uintptr, kind EventType) error {
	sub := v4l2EventSubscription{Type: kind}
	if err := send(fd, vidiocSubscribeEvent, uintptr(unsafe.Pointer(&sub))); err != nil {
		return fmt.Errorf("v4l2: subscribe event %#x: %w", kind, err)
	}
	return nil
}

// UnsubscribeEvent cancels interest in the given event kind.
func UnsubscribeEvent(fd uintptr, kind EventType) error {
	sub := v4l2EventSubscription{Type: kind}
	if err := send(fd, vidiocUnsubscribeEvent, uintptr(unsafe.Pointer(&sub))); err != nil {
		return fmt.Errorf("v4l2: unsubscribe event %#x: %w", kind, err)
	}
	return nil
}

// Event is a dequeued V4L2/UVC event.
type Event struct {
	Kind EventType
	raw  [64]byte
}

// SetupPacket is the USB control-transfer header delivered with a
// UVCEventSetup event (struct usb_ctrlrequest).
type SetupPacket struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// Setup decodes the event payload as a SetupPacket. Only meaningful when
// Kind == UVCEventSetup.
func (e Event) Setup() SetupPacket {
	return SetupPacket{
		RequestType: e.raw[0],
		Request:     e.raw[1],
		Value:       binary.LittleEndian.Uint16(e.raw[2:4]),
		Index:       binary.LittleEndian.Uint16(e.raw[4:6]),
		Length:      binary.LittleEndian.Uint16(e.raw[6:8]),
	}
}

// Data decodes the event payload as a DATA-phase buffer. Only meaningful
// when Kind == UVCEventData. The returned slice aliases the event's
// internal storage and must not be retained past the callback.
func (e Event) Data() []byte {
	length := int32(binary.LittleEndian.Uint32(e.raw[0:4]))
	if length <= 0 || length > 60 {
		return nil
	}
	return e.raw[4 : 4+length]
}

// DequeueEvent retrieves the next pending event from the device's event
// queue.
func DequeueEvent(fd uintptr) (Event, error) {
	var ev v4l2Event
	if err := send(fd, vidiocDQEvent, uintptr(unsafe.Pointer(&ev))); err != nil {
		return Event{}, err
	}
	return Event{Kind: ev.Type, raw: ev.U}, nil
}
