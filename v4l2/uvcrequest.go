package v4l2

import (
	"fmt"
	"unsafe"
)

// RequestData mirrors struct uvc_request_data, the payload carried by
// UVCIOC_SEND_RESPONSE when answering a class-specific setup request.
// Length set to NoResponse signals the gadget driver that no data stage
// response is expected for this event.
type RequestData struct {
	Length int32
	Data   [60]byte
}

// NoResponse is the sentinel RequestData.Length value meaning "this event
// does not require a response ioctl".
const NoResponse int32 = -1

var uvciocSendResponse = encodeWrite('U', 1, unsafe.Sizeof(RequestData{}))

// SendResponse answers a pending class-specific setup request with resp.
// The gadget driver type code for this private ioctl is 'U', distinct from
// the 'V' used for standard VIDIOC_* requests.
func SendResponse(fd uintptr, resp *RequestData) error {
	if err := send(fd, uvciocSendResponse, uintptr(unsafe.Pointer(resp))); err != nil {
		return fmt.Errorf("v4l2: send response: %w", err)
	}
	return nil
}
