// Package v4l2 provides cgo-free bindings to the subset of the Video4Linux2
// ioctl surface needed to drive a USB Video Class gadget from the output
// (gadget) side: pixel format negotiation, memory-mapped buffer allocation,
// buffer queue/dequeue, stream on/off, UVC event subscription/dequeue, and
// the UVC-specific "send response" ioctl used to answer class-specific
// control requests.
//
// Struct layouts and ioctl numbers are computed the same way the Linux
// kernel's own <linux/videodev2.h> macros do: a direction/type/number/size
// encoding evaluated once at package init via unsafe.Sizeof, rather than
// linked in through cgo.
package v4l2
