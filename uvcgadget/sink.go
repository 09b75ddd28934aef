package uvcgadget

import (
	"errors"
	"fmt"

	"uvcgadget.dev/v4l2"
)

// Sink is the kernel-facing half of the streaming engine: it owns the
// gadget video node's file descriptor and translates pool-level operations
// into V4L2 ioctls.
type Sink struct {
	fd   uintptr
	path string
}

// OpenSink opens the gadget function's video node in non-blocking
// read/write mode.
func OpenSink(devicePath string) (*Sink, error) {
	fd, err := v4l2.OpenDevice(devicePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDevice, err)
	}
	return &Sink{fd: fd, path: devicePath}, nil
}

// Fd returns the underlying file descriptor, for reactor registration.
func (s *Sink) Fd() uintptr { return s.fd }

// Close releases the device file descriptor.
func (s *Sink) Close() error {
	if err := v4l2.CloseDevice(s.fd); err != nil {
		return fmt.Errorf("%w: %v", ErrDevice, err)
	}
	return nil
}

// SetFormat applies a pixel format/resolution to the output queue and
// returns what the driver actually configured.
func (s *Sink) SetFormat(fourCC v4l2.FourCC, width, height uint32) (v4l2.PixFormat, error) {
	pix := v4l2.PixFormat{
		Width:       width,
		Height:      height,
		PixelFormat: fourCC,
		SizeImage:   width * height * 2,
	}
	out, err := v4l2.SetFormat(s.fd, pix)
	if err != nil {
		return v4l2.PixFormat{}, fmt.Errorf("%w: set format: %v", ErrDevice, err)
	}
	return out, nil
}

// RequestBuffers asks the driver for count memory-mapped output buffers,
// maps each one, and wraps them in a BufferPool. On any failure partway
// through, buffers already mapped are unmapped before returning.
func (s *Sink) RequestBuffers(count uint32) (*BufferPool, error) {
	granted, err := v4l2.RequestMappedBuffers(s.fd, count)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResource, err)
	}

	regions := make([][]byte, 0, granted)
	for i := uint32(0); i < granted; i++ {
		offset, length, err := v4l2.QueryBuffer(s.fd, i)
		if err != nil {
			unmapAll(regions)
			return nil, fmt.Errorf("%w: query buffer %d: %v", ErrResource, i, err)
		}
		mem, err := v4l2.MapBuffer(s.fd, offset, length)
		if err != nil {
			unmapAll(regions)
			return nil, fmt.Errorf("%w: map buffer %d: %v", ErrResource, i, err)
		}
		regions = append(regions, mem)
	}
	return NewBufferPool(regions), nil
}

func unmapAll(regions [][]byte) {
	for _, mem := range regions {
		v4l2.UnmapBuffer(mem)
	}
}

// ReleaseBuffers unmaps every buffer in the pool. The pool's own memory
// regions must not be used after this call returns.
func (s *Sink) ReleaseBuffers(pool *BufferPool) error {
	var firstErr error
	pool.Iterate(func(buf *Buffer) {
		if err := v4l2.UnmapBuffer(buf.Memory); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	// Telling the driver to drop the allocation (REQBUFS with count 0) is
	// done implicitly by the next RequestBuffers call or device close; the
	// gadget driver frees the queue on fd close regardless.
	if firstErr != nil {
		return fmt.Errorf("%w: unmap: %v", ErrResource, firstErr)
	}
	return nil
}

// Queue hands buf to the kernel, carrying bytesUsed bytes of payload.
func (s *Sink) Queue(pool *BufferPool, buf *Buffer) error {
	if err := v4l2.QueueBuffer(s.fd, buf.Index, buf.BytesUsed); err != nil {
		return fmt.Errorf("%w: queue buffer %d: %v", ErrDevice, buf.Index, err)
	}
	return pool.MarkQueued(buf)
}

// Dequeue retrieves the next buffer the driver has finished transmitting
// and releases it back to Free. Returns ok=false, nil error when none is
// currently available (EAGAIN) — the normal "no work yet" case for a
// non-blocking fd.
func (s *Sink) Dequeue(pool *BufferPool) (buf *Buffer, ok bool, err error) {
	result, err := v4l2.DequeueBuffer(s.fd)
	if err != nil {
		if errors.Is(err, v4l2.ErrorWouldBlock) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: dequeue: %v", ErrDevice, err)
	}
	buf, found := pool.ByIndex(result.Index)
	if !found {
		return nil, false, fmt.Errorf("%w: dequeue: unknown buffer index %d", ErrProtocol, result.Index)
	}
	if err := pool.Release(buf); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrResource, err)
	}
	return buf, true, nil
}

// StreamOn begins streaming the output queue.
func (s *Sink) StreamOn() error {
	if err := v4l2.StreamOn(s.fd); err != nil {
		return fmt.Errorf("%w: %v", ErrDevice, err)
	}
	return nil
}

// StreamOff ends streaming. The kernel implicitly returns every Queued
// buffer to Free; callers must resynchronize pool state after calling
// this (see Orchestrator.Enable).
func (s *Sink) StreamOff() error {
	if err := v4l2.StreamOff(s.fd); err != nil {
		return fmt.Errorf("%w: %v", ErrDevice, err)
	}
	return nil
}

// SubscribeEvent registers interest in a UVC event kind.
func (s *Sink) SubscribeEvent(kind v4l2.EventType) error {
	if err := v4l2.SubscribeEvent(s.fd, kind); err != nil {
		return fmt.Errorf("%w: subscribe %#x: %v", ErrDevice, kind, err)
	}
	return nil
}

// DequeueEvent retrieves the next pending kernel event. Returns
// v4l2.ErrorWouldBlock unwrapped when the event queue is currently empty —
// the normal "drained" signal, not a failure.
func (s *Sink) DequeueEvent() (v4l2.Event, error) {
	ev, err := v4l2.DequeueEvent(s.fd)
	if err != nil {
		if errors.Is(err, v4l2.ErrorWouldBlock) {
			return v4l2.Event{}, v4l2.ErrorWouldBlock
		}
		return v4l2.Event{}, fmt.Errorf("%w: dequeue event: %v", ErrDevice, err)
	}
	return ev, nil
}

// SendResponse answers a pending class-specific setup request.
func (s *Sink) SendResponse(resp *v4l2.RequestData) error {
	if err := v4l2.SendResponse(s.fd, resp); err != nil {
		return fmt.Errorf("%w: send response: %v", ErrDevice, err)
	}
	return nil
}
