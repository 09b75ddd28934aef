package uvcgadget

import (
	"errors"
	"log"

	"uvcgadget.dev/v4l2"
)

// StreamState is the gadget's top-level lifecycle position.
type StreamState int

const (
	Idle StreamState = iota
	Configured
	Streaming
)

func (s StreamState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Configured:
		return "Configured"
	case Streaming:
		return "Streaming"
	default:
		return "Unknown"
	}
}

const defaultPoolSize = 4

// Orchestrator glues the source, buffer pool, and sink together, reacting
// to STREAMON/STREAMOFF and buffer-ready events. It holds weak references
// to source and sink: it drives them but does not own their lifecycle, and
// it does not touch the reactor directly — the sink's file descriptor
// carries both the UVC event queue and the buffer queue, so the caller
// (Gadget) owns the single combined registration and calls OnBufferReady
// when the Readable condition fires.
type Orchestrator struct {
	source Source
	logger *log.Logger

	state  StreamState
	pool   *BufferPool
	fourCC v4l2.FourCC
	width  uint32
	height uint32
}

// NewOrchestrator constructs an Orchestrator in state Idle with no pool.
func NewOrchestrator(source Source, logger *log.Logger) *Orchestrator {
	return &Orchestrator{source: source, logger: logger, state: Idle}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() StreamState { return o.state }

// ApplyFormat reconfigures the committed format. If currently Streaming it
// first stops the stream (STREAMOFF) to avoid reconfiguring a running
// queue, then pushes the format to source and sink and requests a fresh
// pool. On InvalidFormat the previous format and pool are kept; the state
// is unchanged, except that a stream that was Streaming has already been
// stopped and stays Configured.
func (o *Orchestrator) ApplyFormat(sink *Sink, fourCC v4l2.FourCC, width, height uint32) error {
	if o.state == Streaming {
		o.Enable(sink, false)
	}

	if err := o.source.SetFormat(fourCC, width, height); err != nil {
		o.logger.Printf("orchestrator: source rejected format: %v", err)
		return err
	}
	if _, err := sink.SetFormat(fourCC, width, height); err != nil {
		return err
	}

	if o.pool != nil {
		if err := sink.ReleaseBuffers(o.pool); err != nil {
			o.logger.Printf("orchestrator: release buffers: %v", err)
		}
		o.pool = nil
	}

	pool, err := sink.RequestBuffers(defaultPoolSize)
	if err != nil {
		o.logger.Printf("orchestrator: request buffers: %v", err)
		o.state = Configured
		return err
	}

	o.pool = pool
	o.fourCC = fourCC
	o.width = width
	o.height = height
	o.state = Configured
	return nil
}

// SetFPS informs the source of the negotiated frame rate. No sink action
// is required.
func (o *Orchestrator) SetFPS(fps uint32) {
	o.source.SetFrameRate(fps)
}

// Enable implements STREAMON (enable=true) and STREAMOFF (enable=false).
// STREAMON without a prior commit (state still Idle, no pool) is refused
// and logged as a protocol violation, per the invariant that there is no
// transition from Idle to Streaming without an intervening COMMIT.
func (o *Orchestrator) Enable(sink *Sink, enable bool) {
	if enable {
		o.enableOn(sink)
	} else {
		o.enableOff(sink)
	}
}

func (o *Orchestrator) enableOn(sink *Sink) {
	if o.state != Configured || o.pool == nil {
		o.logger.Printf("%v: STREAMON in state %s", ErrProtocol, o.state)
		return
	}

	o.pool.Iterate(func(buf *Buffer) {
		if buf.State != Free {
			return
		}
		bytesUsed, err := o.fillBuffer(buf)
		if err != nil {
			o.logger.Printf("orchestrator: prime fill: %v", err)
			return
		}
		if err := o.pool.MarkFilled(buf, bytesUsed); err != nil {
			o.logger.Printf("orchestrator: prime mark filled: %v", err)
			return
		}
		if err := sink.Queue(o.pool, buf); err != nil {
			o.logger.Printf("orchestrator: prime queue: %v", err)
		}
	})

	if err := sink.StreamOn(); err != nil {
		o.logger.Printf("orchestrator: stream on: %v", err)
		return
	}
	o.state = Streaming
}

func (o *Orchestrator) enableOff(sink *Sink) {
	if o.state != Streaming {
		return
	}

	if err := sink.StreamOff(); err != nil {
		o.logger.Printf("orchestrator: stream off: %v", err)
	}
	o.state = Configured

	// Drain whatever the kernel hands back now that streaming stopped.
	if o.pool == nil {
		return
	}
	for {
		_, ok, err := sink.Dequeue(o.pool)
		if err != nil {
			o.logger.Printf("orchestrator: drain: %v", err)
			return
		}
		if !ok {
			return
		}
	}
}

// OnBufferReady handles the sink's Readable condition: dequeue a completed
// buffer, fill it from the source, and re-queue it. A no-op when not
// Streaming (the kernel has nothing to dequeue in that state).
func (o *Orchestrator) OnBufferReady(sink *Sink) {
	if o.state != Streaming || o.pool == nil {
		return
	}
	buf, ok, err := sink.Dequeue(o.pool)
	if err != nil {
		o.logger.Printf("orchestrator: dequeue: %v", err)
		return
	}
	if !ok {
		return
	}

	bytesUsed, err := o.fillBuffer(buf)
	if err != nil {
		o.logger.Printf("orchestrator: fill: %v", err)
		return
	}
	buf.BytesUsed = bytesUsed
	if err := o.pool.MarkFilled(buf, bytesUsed); err != nil {
		o.logger.Printf("orchestrator: mark filled: %v", err)
		return
	}
	if err := sink.Queue(o.pool, buf); err != nil {
		o.logger.Printf("orchestrator: queue: %v", err)
	}
}

// fillBuffer asks the source for a frame's worth of bytes. For YUYV the
// byte count is always width*height*2 regardless of what the source
// reports; for MJPEG the source's reported size is authoritative since
// compressed frame size varies per frame.
func (o *Orchestrator) fillBuffer(buf *Buffer) (uint32, error) {
	n, err := o.source.Fill(buf.Memory)
	if err != nil {
		return 0, err
	}
	if o.fourCC == v4l2.PixelFmtYUYV {
		return o.width * o.height * 2, nil
	}
	return n, nil
}

// Shutdown stops streaming (if active) and releases the buffer pool.
func (o *Orchestrator) Shutdown(sink *Sink) {
	if o.state == Streaming {
		o.Enable(sink, false)
	}
	if o.pool != nil {
		if err := sink.ReleaseBuffers(o.pool); err != nil && !errors.Is(err, ErrResource) {
			o.logger.Printf("orchestrator: shutdown: release buffers: %v", err)
		}
		o.pool = nil
	}
}
