package uvcgadget

import (
	"errors"
	"log"

	"uvcgadget.dev/v4l2"
)

// USB control-transfer request-type bits relevant to classifying a SETUP
// packet (bmRequestType).
const (
	reqTypeClassMask      = 0x60
	reqTypeClass          = 0x20
	reqRecipientMask      = 0x1f
	reqRecipientInterface = 0x01
)

// ControlStateMachine interprets class-specific setup packets delivered as
// UVC events, maintaining the probe/commit negotiation and driving the
// orchestrator on STREAMON/STREAMOFF.
type ControlStateMachine struct {
	cfg    *FunctionConfig
	orch   *Orchestrator
	logger *log.Logger

	probe  ControlBlock
	commit ControlBlock

	pendingControl Selector
}

// NewControlStateMachine constructs a state machine bound to the given
// configuration and orchestrator, with probe/commit initialized to
// (format=1, frame=1, interval=0) per the startup sequence.
func NewControlStateMachine(cfg *FunctionConfig, orch *Orchestrator, logger *log.Logger) *ControlStateMachine {
	csm := &ControlStateMachine{cfg: cfg, orch: orch, logger: logger}
	init := ControlBlock{BFormatIndex: 1, BFrameIndex: 1}
	csm.probe = init
	csm.commit = init
	return csm
}

// Drain dequeues and dispatches every currently pending UVC event from
// sink, stopping at the first would-block. A single reactor readiness edge
// can coalesce more than one event, so the handler must drain fully.
func (csm *ControlStateMachine) Drain(sink *Sink) {
	for {
		ev, err := sink.DequeueEvent()
		if err != nil {
			if errors.Is(err, v4l2.ErrorWouldBlock) {
				return
			}
			csm.logger.Printf("control: dequeue event: %v", err)
			return
		}
		csm.dispatch(sink, ev)
	}
}

func (csm *ControlStateMachine) dispatch(sink *Sink, ev v4l2.Event) {
	resp := v4l2.RequestData{Length: v4l2.NoResponse}

	switch ev.Kind {
	case v4l2.UVCEventConnect, v4l2.UVCEventDisconnect:
		// No response required.

	case v4l2.UVCEventSetup:
		csm.pendingControl = SelectorNone
		csm.handleSetup(ev.Setup(), &resp)

	case v4l2.UVCEventData:
		csm.handleData(sink, ev.Data())

	case v4l2.UVCEventStreamOn:
		csm.orch.Enable(sink, true)

	case v4l2.UVCEventStreamOff:
		csm.orch.Enable(sink, false)

	default:
		csm.logger.Printf("control: unrecognized event kind %#x", ev.Kind)
	}

	if resp.Length != v4l2.NoResponse {
		if err := sink.SendResponse(&resp); err != nil {
			csm.logger.Printf("control: send response: %v", err)
		}
	}
}

func (csm *ControlStateMachine) handleSetup(pkt v4l2.SetupPacket, resp *v4l2.RequestData) {
	if pkt.RequestType&reqTypeClassMask != reqTypeClass {
		return // standard or vendor request, not ours
	}
	if pkt.RequestType&reqRecipientMask != reqRecipientInterface {
		return
	}

	interfaceNum := uint8(pkt.Index & 0xff)
	switch interfaceNum {
	case csm.cfg.ControlInterfaceNumber:
		csm.handleControlInterface(pkt, resp)
	case csm.cfg.StreamingInterfaceNumber:
		csm.handleStreamingInterface(pkt, resp)
	default:
		csm.logger.Printf("control: setup for unknown interface %d", interfaceNum)
	}
}

// handleControlInterface answers every class request addressed to the
// video control interface with a stub: both GET and SET are permitted, no
// processing-unit semantics are implemented.
func (csm *ControlStateMachine) handleControlInterface(pkt v4l2.SetupPacket, resp *v4l2.RequestData) {
	resp.Data[0] = 0x03
	resp.Data[1] = 0x00
	resp.Length = int32(pkt.Length)
}

func (csm *ControlStateMachine) handleStreamingInterface(pkt v4l2.SetupPacket, resp *v4l2.RequestData) {
	selector := Selector(pkt.Value >> 8)
	if selector != SelectorProbe && selector != SelectorCommit {
		return
	}

	switch pkt.Request {
	case ReqSetCur:
		csm.pendingControl = selector
		resp.Length = ControlBlockSize

	case ReqGetCur:
		writeBlock(resp, csm.blockFor(selector))

	case ReqGetMin, ReqGetDef:
		block := csm.fill(selector, 1, 1, 0)
		writeBlock(resp, block)

	case ReqGetMax:
		block := csm.fill(selector, ^uint32(0), ^uint32(0), ^uint32(0))
		writeBlock(resp, block)

	case ReqGetRes:
		resp.Length = ControlBlockSize // Data left zeroed.

	case ReqGetLen:
		resp.Data[0] = byte(ControlBlockSize)
		resp.Data[1] = 0x00
		resp.Length = 2

	case ReqGetInfo:
		resp.Data[0] = 0x03
		resp.Length = 1

	default:
		csm.logger.Printf("control: unsupported streaming request %#x", pkt.Request)
	}
}

func writeBlock(resp *v4l2.RequestData, block ControlBlock) {
	copy(resp.Data[:ControlBlockSize], block.Marshal())
	resp.Length = ControlBlockSize
}

func (csm *ControlStateMachine) blockFor(selector Selector) ControlBlock {
	if selector == SelectorCommit {
		return csm.commit
	}
	return csm.probe
}

// handleData applies the fill algorithm to the host-chosen
// (bFormatIndex, bFrameIndex, dwFrameInterval) carried in the data phase
// that follows a SET_CUR, storing the result into whichever block
// pendingControl named. A DATA event with no pending control (protocol
// violation or stray delivery) is logged and dropped.
func (csm *ControlStateMachine) handleData(sink *Sink, payload []byte) {
	selector := csm.pendingControl
	csm.pendingControl = SelectorNone

	if selector == SelectorNone {
		csm.logger.Printf("%v: DATA event with no pending control", ErrProtocol)
		return
	}

	block, ok := UnmarshalControlBlock(payload)
	if !ok {
		csm.logger.Printf("%v: short DATA payload (%d bytes)", ErrProtocol, len(payload))
		return
	}

	result := csm.fill(selector, uint32(block.BFormatIndex), uint32(block.BFrameIndex), block.DwFrameInterval)

	switch selector {
	case SelectorProbe:
		csm.probe = result
	case SelectorCommit:
		csm.commit = result
		csm.commitStream(sink, result)
	}
}

func (csm *ControlStateMachine) commitStream(sink *Sink, block ControlBlock) {
	format, ok := csm.cfg.Format(int(block.BFormatIndex))
	if !ok {
		csm.logger.Printf("%v: commit: format index %d out of range", ErrProtocol, block.BFormatIndex)
		return
	}
	frame, ok := csm.cfg.Frame(int(block.BFormatIndex), int(block.BFrameIndex))
	if !ok {
		csm.logger.Printf("%v: commit: frame index %d out of range", ErrProtocol, block.BFrameIndex)
		return
	}

	if err := csm.orch.ApplyFormat(sink, format.FourCC, uint32(frame.Width), uint32(frame.Height)); err != nil {
		csm.logger.Printf("control: apply format: %v", err)
		return
	}

	interval := block.DwFrameInterval
	if interval == 0 {
		interval = 1
	}
	fps := 10_000_000 / interval
	if fps < 1 {
		fps = 1
	}
	csm.orch.SetFPS(fps)
}

// fill implements the probe/commit negotiation's format/frame/interval
// selection and derived-field computation. iformat and iframe are clamped
// with unsigned wraparound, matching the GET_MAX encoding of "largest
// index" as all-ones. DATA-sourced values are single wire bytes (0-255), so
// they can never carry the all-ones encoding; an out-of-range byte is
// clamped into [1, max] like any other value.
func (csm *ControlStateMachine) fill(selector Selector, iformat, iframe, ival uint32) ControlBlock {
	numFormats := uint32(csm.cfg.NumFormats())
	formatIdx := clampUnsigned(iformat, numFormats)

	numFrames := uint32(csm.cfg.NumFrames(int(formatIdx)))
	frameIdx := clampUnsigned(iframe, numFrames)

	frame, _ := csm.cfg.Frame(int(formatIdx), int(frameIdx))
	interval := selectInterval(frame.Intervals, ival)

	block := ControlBlock{
		BmHint:                   1,
		BFormatIndex:             uint8(formatIdx),
		BFrameIndex:              uint8(frameIdx),
		DwFrameInterval:          interval,
		DwMaxVideoFrameSize:      uint32(frame.Width) * uint32(frame.Height) * 2,
		DwMaxPayloadTransferSize: csm.cfg.StreamingMaxPacketSize,
		BmFramingInfo:            3,
		BPreferedVersion:         1,
		BMaxVersion:              1,
	}
	return block
}

// clampUnsigned clamps v into [1, max], treating v as though it had
// wrapped from a negative signed value: any v >= max saturates to max.
// Used so that the GET_MAX encoding (all bits set, i.e. the largest
// unsigned value) selects the last format/frame without a separate code
// path.
func clampUnsigned(v, max uint32) uint32 {
	if max == 0 {
		return 0
	}
	if v < 1 {
		return 1
	}
	if v > max {
		return max
	}
	return v
}

// selectInterval returns the first interval in the declared (ascending)
// order that is >= requested, or the largest if none qualifies.
func selectInterval(intervals []uint32, requested uint32) uint32 {
	if len(intervals) == 0 {
		return 0
	}
	for _, iv := range intervals {
		if iv >= requested {
			return iv
		}
	}
	return intervals[len(intervals)-1]
}
