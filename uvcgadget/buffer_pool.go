package uvcgadget

import "fmt"

// BufferState is a Buffer's position in its Free -> Filled -> Queued -> Free
// lifecycle.
type BufferState int

const (
	// Free: owned by the pool, available to be filled or re-queued.
	Free BufferState = iota
	// Queued: handed to the kernel; the user side must not touch its
	// memory.
	Queued
	// Filled: holds a frame's worth of pixel data, not yet queued.
	Filled
)

func (s BufferState) String() string {
	switch s {
	case Free:
		return "Free"
	case Queued:
		return "Queued"
	case Filled:
		return "Filled"
	default:
		return "Unknown"
	}
}

// Buffer is one kernel-mapped video buffer.
type Buffer struct {
	Index     uint32
	Memory    []byte
	Capacity  uint32
	BytesUsed uint32
	State     BufferState
}

// Stats reports BufferPool usage. Dropped counts ticks where no Free
// buffer was available to fill: the source is skipped for that tick
// rather than blocking or queuing frames in user space.
type Stats struct {
	Filled  uint64
	Dropped uint64
}

// BufferPool is a fixed-capacity collection of buffers cycled between user
// space and the kernel. Capacity is fixed at construction. The set of
// buffers in state Queued is, by invariant, exactly the set the kernel
// currently owns.
type BufferPool struct {
	buffers []*Buffer
	cursor  int // round-robin cursor for AcquireFree, bounds per-buffer latency
	stats   Stats
}

// NewBufferPool wraps already kernel-mapped memory regions into a pool.
// Every buffer starts Free.
func NewBufferPool(regions [][]byte) *BufferPool {
	buffers := make([]*Buffer, len(regions))
	for i, mem := range regions {
		buffers[i] = &Buffer{
			Index:    uint32(i),
			Memory:   mem,
			Capacity: uint32(len(mem)),
			State:    Free,
		}
	}
	return &BufferPool{buffers: buffers}
}

// Capacity returns the fixed number of buffers in the pool.
func (p *BufferPool) Capacity() int { return len(p.buffers) }

// AcquireFree returns the next Free buffer in round-robin order, or nil if
// none are available. Round-robin selection bounds any one buffer's
// latency to roughly capacity x frame_interval.
func (p *BufferPool) AcquireFree() *Buffer {
	n := len(p.buffers)
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		if p.buffers[idx].State == Free {
			p.cursor = (idx + 1) % n
			return p.buffers[idx]
		}
	}
	p.stats.Dropped++
	return nil
}

// MarkQueued transitions buf to Queued, meaning it has been handed to the
// kernel. Valid from Free or Filled.
func (p *BufferPool) MarkQueued(buf *Buffer) error {
	if buf.State != Free && buf.State != Filled {
		return fmt.Errorf("uvcgadget: mark queued: buffer %d in state %s", buf.Index, buf.State)
	}
	buf.State = Queued
	return nil
}

// MarkFilled transitions buf to Filled with the given byte count. Valid
// only from Free.
func (p *BufferPool) MarkFilled(buf *Buffer, bytesUsed uint32) error {
	if buf.State != Free {
		return fmt.Errorf("uvcgadget: mark filled: buffer %d in state %s", buf.Index, buf.State)
	}
	if bytesUsed > buf.Capacity {
		return fmt.Errorf("uvcgadget: mark filled: buffer %d: %d bytes exceeds capacity %d", buf.Index, bytesUsed, buf.Capacity)
	}
	buf.BytesUsed = bytesUsed
	buf.State = Filled
	p.stats.Filled++
	return nil
}

// Release transitions buf back to Free, the transition the orchestrator
// drives when the kernel hands a previously Queued buffer back via
// Dequeue.
func (p *BufferPool) Release(buf *Buffer) error {
	if buf.State != Queued {
		return fmt.Errorf("uvcgadget: release: buffer %d in state %s", buf.Index, buf.State)
	}
	buf.State = Free
	buf.BytesUsed = 0
	return nil
}

// ByIndex returns the buffer with the given kernel index.
func (p *BufferPool) ByIndex(index uint32) (*Buffer, bool) {
	if int(index) >= len(p.buffers) {
		return nil, false
	}
	return p.buffers[index], true
}

// Iterate calls fn for every buffer in index order.
func (p *BufferPool) Iterate(fn func(*Buffer)) {
	for _, buf := range p.buffers {
		fn(buf)
	}
}

// StateCounts returns the number of buffers currently in each state, for
// verifying the pool invariant Σstate == capacity.
func (p *BufferPool) StateCounts() (free, queued, filled int) {
	for _, buf := range p.buffers {
		switch buf.State {
		case Free:
			free++
		case Queued:
			queued++
		case Filled:
			filled++
		}
	}
	return
}

// Stats returns cumulative pool usage counters.
func (p *BufferPool) Stats() Stats { return p.stats }
