package v4l2

import (
	"errors"

	sys "golang.org/x/sys/unix"
)

// Error variables represent common V4L2 operation failures. Use errors.Is()
// to check for a specific kind in higher-level error handling.
var (
	// ErrorSystem indicates a system-level error (EBADF, ENOMEM, ENODEV, EIO,
	// ENXIO, EFAULT) — typically unrecoverable.
	ErrorSystem = errors.New("v4l2: system error")

	// ErrorBadArgument corresponds to EINVAL: the arguments don't meet the
	// requirements of the ioctl being issued.
	ErrorBadArgument = errors.New("v4l2: bad argument")

	// ErrorWouldBlock corresponds to EAGAIN on a non-blocking fd: not an
	// error condition, a signal that there is currently no work.
	ErrorWouldBlock = errors.New("v4l2: would block")

	// ErrorUnsupported corresponds to ENOTTY: the device does not implement
	// the requested ioctl.
	ErrorUnsupported = errors.New("v4l2: unsupported")

	// ErrorInterrupted corresponds to EINTR: the call was interrupted by a
	// signal and can be retried.
	ErrorInterrupted = errors.New("v4l2: interrupted")
)

// parseErrno classifies a raw syscall errno into one of the sentinels above.
func parseErrno(errno sys.Errno) error {
	switch errno {
	case sys.EBADF, sys.ENOMEM, sys.ENODEV, sys.EIO, sys.ENXIO, sys.EFAULT:
		return ErrorSystem
	case sys.EINTR:
		return ErrorInterrupted
	case sys.EAGAIN:
		return ErrorWouldBlock
	case sys.EINVAL:
		return ErrorBadArgument
	case sys.ENOTTY:
		return ErrorUnsupported
	default:
		return errno
	}
}
