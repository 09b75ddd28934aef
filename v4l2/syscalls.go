package v4l2

import (
	"fmt"
	"os"

	sys "golang.org/x/sys/unix"
)

// OpenDevice opens the character device at path in non-blocking read/write
// mode, the mode a UVC gadget's video node must be opened in so that
// Dequeue and DequeueEvent never block the reactor.
func OpenDevice(path string) (uintptr, error) {
	fstat, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("v4l2: open device: %w", err)
	}
	if fstat.Mode()&os.ModeCharDevice == 0 {
		return 0, fmt.Errorf("v4l2: open device: %s: not a character device", path)
	}

	fd, err := sys.Openat(sys.AT_FDCWD, path, sys.O_RDWR|sys.O_NONBLOCK, 0)
	if err != nil {
		return 0, fmt.Errorf("v4l2: open device: %s: %w", path, err)
	}
	return uintptr(fd), nil
}

// CloseDevice closes a device file descriptor previously returned by
// OpenDevice.
func CloseDevice(fd uintptr) error {
	return sys.Close(int(fd))
}
