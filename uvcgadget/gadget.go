package uvcgadget

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"uvcgadget.dev/reactor"
	"uvcgadget.dev/v4l2"
)

// subscribedEvents is the exact set of UVC event kinds this runtime
// subscribes to. CONNECT/DISCONNECT are intentionally absent: they are
// accepted and ignored if ever delivered unsolicited, but never
// subscribed.
var subscribedEvents = []v4l2.EventType{
	v4l2.UVCEventSetup,
	v4l2.UVCEventData,
	v4l2.UVCEventStreamOn,
	v4l2.UVCEventStreamOff,
}

// Gadget wires the configuration, reactor, sink, source, control state
// machine, and orchestrator into a running UVC gadget function.
type Gadget struct {
	cfg    *FunctionConfig
	react  *reactor.Reactor
	sink   *Sink
	source *StaticSource
	csm    *ControlStateMachine
	orch   *Orchestrator
	logger *log.Logger
}

// Start runs the full startup sequence: read configuration, initialize the
// reactor, create the static source, open the sink and subscribe events,
// initialize probe/commit defaults, and register the combined sink
// readiness handler. The gadget is ready to Run after this returns.
func Start(gadgetRoot, function string, logger *log.Logger) (*Gadget, error) {
	cfg, err := ReadFunctionConfig(gadgetRoot, function)
	if err != nil {
		return nil, err
	}

	react, err := reactor.New()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResource, err)
	}

	source := NewStaticSource()
	orch := NewOrchestrator(source, logger)

	sink, err := OpenSink(cfg.DeviceNode)
	if err != nil {
		react.Close()
		return nil, err
	}

	for _, kind := range subscribedEvents {
		if err := sink.SubscribeEvent(kind); err != nil {
			sink.Close()
			react.Close()
			return nil, err
		}
	}

	csm := NewControlStateMachine(cfg, orch, logger)

	g := &Gadget{
		cfg:    cfg,
		react:  react,
		sink:   sink,
		source: source,
		csm:    csm,
		orch:   orch,
		logger: logger,
	}

	// The sink's file descriptor carries both the UVC event queue
	// (exceptional readiness) and the buffer queue (readable readiness);
	// one combined registration dispatches to both.
	react.Watch(sink.Fd(), reactor.Exception|reactor.Readable, func(fd uintptr, ready reactor.Interest) {
		if ready&reactor.Exception != 0 {
			csm.Drain(sink)
		}
		if ready&reactor.Readable != 0 {
			orch.OnBufferReady(sink)
		}
	})

	return g, nil
}

// Run installs a SIGINT handler that stops the reactor, then runs the
// reactor loop until Stop is called or loop returns a fatal error. On
// return (clean or not) the gadget's resources have already been released
// by Shutdown.
func (g *Gadget) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		if _, ok := <-sigCh; ok {
			g.react.Stop()
		}
	}()

	err := g.react.Loop()
	g.Shutdown()
	return err
}

// Shutdown stops streaming if active, releases buffers, closes the sink,
// destroys the source, and closes the reactor's internal resources. Run
// calls it when the loop returns. There is no guard against a second call:
// calling it again closes the sink and reactor descriptors again.
func (g *Gadget) Shutdown() {
	g.orch.Shutdown(g.sink)
	if err := g.sink.Close(); err != nil {
		g.logger.Printf("gadget: close sink: %v", err)
	}
	g.source.Destroy()
	if err := g.react.Close(); err != nil {
		g.logger.Printf("gadget: close reactor: %v", err)
	}
}
