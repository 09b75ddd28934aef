package v4l2

import (
	"fmt"
	"unsafe"

	sys "golang.org/x/sys/unix"
)

// StreamType (v4l2_memory) — this program only ever uses memory-mapped
// buffers.
type StreamType = uint32

const streamTypeMMAP StreamType = 1

// RequestBuffers (v4l2_requestbuffers) requests allocation of count
// memory-mappable buffers for BufTypeVideoOutput.
type RequestBuffers struct {
	Count      uint32
	Type       BufType
	Memory     StreamType
	Capability uint32
	_          [1]uint32
}

// bufferM mirrors the anonymous union in v4l2_buffer used for memory-mapped
// I/O: only the Offset member is meaningful here.
type bufferM struct {
	Offset uint32
	_      [4]byte // pad to match the union's widest member (userptr/fd)
}

// v4l2Buffer mirrors v4l2_buffer for the subset of fields this program
// reads or writes. Timecode is never interpreted, only carried, so that
// Sequence/Memory/M/Length/Reserved2/RequestFD land at the kernel's real
// offsets.
type v4l2Buffer struct {
	Index     uint32
	Type      BufType
	BytesUsed uint32
	Flags     uint32
	Field     uint32
	Timestamp sys.Timeval
	Timecode  [16]byte
	Sequence  uint32
	Memory    StreamType
	M         bufferM
	Length    uint32
	Reserved2 uint32
	RequestFD int32
}

// BufFlag values relevant to this program.
const (
	BufFlagMapped BufFlags = 1 << 0
	BufFlagError  BufFlags = 1 << 9
)

type BufFlags = uint32

var (
	vidiocReqBufs   = encodeReadWrite('V', 8, unsafe.Sizeof(RequestBuffers{}))
	vidiocQueryBuf  = encodeReadWrite('V', 9, unsafe.Sizeof(v4l2Buffer{}))
	vidiocQBuf      = encodeReadWrite('V', 15, unsafe.Sizeof(v4l2Buffer{}))
	vidiocDQBuf     = encodeReadWrite('V', 17, unsafe.Sizeof(v4l2Buffer{}))
	vidiocStreamOn  = encodeWrite('V', 18, unsafe.Sizeof(int32(0)))
	vidiocStreamOff = encodeWrite('V', 19, unsafe.Sizeof(int32(0)))
)

// RequestMappedBuffers allocates count memory-mapped output buffers and
// returns the count the driver actually granted (which may be adjusted
// upward or downward).
func RequestMappedBuffers(fd uintptr, count uint32) (uint32, error) {
	req := RequestBuffers{
		Count:  count,
		Type:   BufTypeVideoOutput,
		Memory: streamTypeMMAP,
	}
	if err := send(fd, vidiocReqBufs, uintptr(unsafe.Pointer(&req))); err != nil {
		return 0, fmt.Errorf("v4l2: request buffers: %w", err)
	}
	if req.Count == 0 {
		return 0, fmt.Errorf("v4l2: request buffers: driver granted zero buffers")
	}
	return req.Count, nil
}

// QueryBuffer retrieves the kernel's mmap offset and length for the buffer
// at index, the information needed to map it into the process.
func QueryBuffer(fd uintptr, index uint32) (offset int64, length uint32, err error) {
	var b v4l2Buffer
	b.Type = BufTypeVideoOutput
	b.Memory = streamTypeMMAP
	b.Index = index
	if err := send(fd, vidiocQueryBuf, uintptr(unsafe.Pointer(&b))); err != nil {
		return 0, 0, fmt.Errorf("v4l2: query buffer %d: %w", index, err)
	}
	return int64(b.M.Offset), b.Length, nil
}

// MapBuffer maps the buffer at the given kernel offset/length into the
// process's address space.
func MapBuffer(fd uintptr, offset int64, length uint32) ([]byte, error) {
	mem, err := sys.Mmap(int(fd), offset, int(length), sys.PROT_READ|sys.PROT_WRITE, sys.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("v4l2: map buffer: %w", err)
	}
	return mem, nil
}

// UnmapBuffer releases a mapping previously created by MapBuffer.
func UnmapBuffer(mem []byte) error {
	if err := sys.Munmap(mem); err != nil {
		return fmt.Errorf("v4l2: unmap buffer: %w", err)
	}
	return nil
}

// QueueBuffer hands the buffer at index, carrying bytesUsed bytes of
// payload, to the kernel.
func QueueBuffer(fd uintptr, index uint32, bytesUsed uint32) error {
	var b v4l2Buffer
	b.Type = BufTypeVideoOutput
	b.Memory = streamTypeMMAP
	b.Index = index
	b.BytesUsed = bytesUsed
	if err := send(fd, vidiocQBuf, uintptr(unsafe.Pointer(&b))); err != nil {
		return fmt.Errorf("v4l2: queue buffer %d: %w", index, err)
	}
	return nil
}

// DequeueResult describes a buffer the kernel has handed back to userspace.
type DequeueResult struct {
	Index   uint32
	Flags   BufFlags
	Mapped  bool
	ErrorOn bool
}

// DequeueBuffer retrieves the next buffer the driver is done with. It
// returns ErrorWouldBlock (not a fatal error) when none is currently
// available, which the caller must treat as "no work right now".
func DequeueBuffer(fd uintptr) (DequeueResult, error) {
	var b v4l2Buffer
	b.Type = BufTypeVideoOutput
	b.Memory = streamTypeMMAP
	if err := send(fd, vidiocDQBuf, uintptr(unsafe.Pointer(&b))); err != nil {
		return DequeueResult{}, err
	}
	return DequeueResult{
		Index:   b.Index,
		Flags:   b.Flags,
		Mapped:  b.Flags&BufFlagMapped != 0,
		ErrorOn: b.Flags&BufFlagError != 0,
	}, nil
}

// StreamOn begins streaming for the output buffer queue.
func StreamOn(fd uintptr) error {
	bufType := BufTypeVideoOutput
	if err := send(fd, vidiocStreamOn, uintptr(unsafe.Pointer(&bufType))); err != nil {
		return fmt.Errorf("v4l2: stream on: %w", err)
	}
	return nil
}

// StreamOff ends streaming for the output buffer queue.
func StreamOff(fd uintptr) error {
	bufType := BufTypeVideoOutput
	if err := send(fd, vidiocStreamOff, uintptr(unsafe.Pointer(&bufType))); err != nil {
		return fmt.Errorf("v4l2: stream off: %w", err)
	}
	return nil
}
