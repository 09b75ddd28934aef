package uvcgadget

import "errors"

// Error kinds the control state machine and orchestrator classify failures
// into, each with its own recovery policy.
var (
	// ErrConfig: the gadget configuration tree is malformed or absent.
	// Fatal at startup.
	ErrConfig = errors.New("uvcgadget: config error")

	// ErrDevice: kernel device open/ioctl failure. Most are fatal; EAGAIN
	// on dequeue is expected and surfaced separately (see
	// v4l2.ErrorWouldBlock), not as ErrDevice.
	ErrDevice = errors.New("uvcgadget: device error")

	// ErrProtocol: malformed event payload or out-of-sequence DATA (no
	// pending control). Logged, event dropped, reactor continues.
	ErrProtocol = errors.New("uvcgadget: protocol error")

	// ErrInvalidFormat: the source rejected a requested pixel format.
	// Aborts stream setup but does not terminate the program.
	ErrInvalidFormat = errors.New("uvcgadget: invalid format")

	// ErrResource: buffer allocation or mapping failure. Fatal for the
	// current stream configuration; the orchestrator falls back to
	// Configured with no pool.
	ErrResource = errors.New("uvcgadget: resource error")
)
