// Package reactor implements a single-threaded, level-triggered event
// multiplexor: callbacks registered against file handles are invoked
// sequentially from inside Loop. A single mutex guards the registration
// table and the stop flag so that Stop can be called from another
// goroutine.
package reactor

import (
	"fmt"
	"sync"

	sys "golang.org/x/sys/unix"
)

// Interest is a set of readiness conditions to watch a handle for.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
	Exception
)

func (i Interest) has(bit Interest) bool { return i&bit != 0 }

// Callback is invoked once per dispatch with the subset of the watched
// Interest that is currently ready.
type Callback func(fd uintptr, ready Interest)

type registration struct {
	fd       uintptr
	interest Interest
	callback Callback
}

// Reactor multiplexes readiness across registered file handles and
// dispatches to their callbacks. It is safe to call Watch, Unwatch, and
// Stop from within a callback, and Stop is additionally safe to call from
// any goroutine (e.g. a signal handler) concurrently with Loop.
type Reactor struct {
	mu    sync.Mutex
	regs  map[uintptr]*registration
	order []uintptr // registration order; Loop dispatches ready fds in this order

	wakeR, wakeW int
	stopped      bool
}

// New creates a Reactor. The returned Reactor owns a self-pipe used to wake
// a blocked Loop from Stop; Close releases it.
func New() (*Reactor, error) {
	fds, err := sys.Socketpair(sys.AF_UNIX, sys.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("reactor: create wakeup pipe: %w", err)
	}
	if err := sys.SetNonblock(fds[0], true); err != nil {
		return nil, fmt.Errorf("reactor: set wakeup pipe nonblocking: %w", err)
	}
	return &Reactor{
		regs:  make(map[uintptr]*registration),
		wakeR: fds[0],
		wakeW: fds[1],
	}, nil
}

// Close releases the reactor's internal wakeup pipe. Call after Loop has
// returned.
func (r *Reactor) Close() error {
	err1 := sys.Close(r.wakeR)
	err2 := sys.Close(r.wakeW)
	if err1 != nil {
		return err1
	}
	return err2
}

// Watch registers (or re-registers) callback to be invoked when fd becomes
// ready for any condition in interest. Calling Watch again for an
// already-watched fd replaces its interest set and callback.
func (r *Reactor) Watch(fd uintptr, interest Interest, callback Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.regs[fd]; !exists {
		r.order = append(r.order, fd)
	}
	r.regs[fd] = &registration{fd: fd, interest: interest, callback: callback}
}

// Unwatch removes fd from the watch set. A no-op if fd was not registered.
func (r *Reactor) Unwatch(fd uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.regs[fd]; !exists {
		return
	}
	delete(r.regs, fd)
	for i, f := range r.order {
		if f == fd {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Stop requests Loop to return at the next opportunity. Safe to call from
// any goroutine, including from inside a callback.
func (r *Reactor) Stop() {
	r.mu.Lock()
	already := r.stopped
	r.stopped = true
	r.mu.Unlock()

	if already {
		return
	}
	// Wake a blocked select(); a single byte suffices, the wake pipe is
	// never read for data, only for readiness.
	_, _ = sys.Write(r.wakeW, []byte{0})
}

// Loop blocks, dispatching readiness to registered callbacks, until Stop is
// called from any thread or from inside a callback. A wait-level error
// other than interrupt-by-signal is fatal and returned.
func (r *Reactor) Loop() error {
	for {
		r.mu.Lock()
		if r.stopped {
			r.mu.Unlock()
			return nil
		}
		snapshot := make([]*registration, len(r.order))
		for i, fd := range r.order {
			snapshot[i] = r.regs[fd]
		}
		r.mu.Unlock()

		var readFds, writeFds, exceptFds sys.FdSet
		maxFd := r.wakeR
		readFds.Set(r.wakeR)
		for _, reg := range snapshot {
			fd := int(reg.fd)
			if reg.interest.has(Readable) {
				readFds.Set(fd)
			}
			if reg.interest.has(Writable) {
				writeFds.Set(fd)
			}
			if reg.interest.has(Exception) {
				exceptFds.Set(fd)
			}
			if fd > maxFd {
				maxFd = fd
			}
		}

		n, err := sys.Select(maxFd+1, &readFds, &writeFds, &exceptFds, nil)
		if err != nil {
			if err == sys.EINTR {
				continue
			}
			return fmt.Errorf("reactor: wait: %w", err)
		}
		if n == 0 {
			continue
		}

		if readFds.IsSet(r.wakeR) {
			var buf [64]byte
			for {
				if _, err := sys.Read(r.wakeR, buf[:]); err != nil {
					break
				}
			}
		}

		r.mu.Lock()
		stopped := r.stopped
		r.mu.Unlock()
		if stopped {
			return nil
		}

		for _, reg := range snapshot {
			fd := int(reg.fd)
			var ready Interest
			if readFds.IsSet(fd) {
				ready |= Readable
			}
			if writeFds.IsSet(fd) {
				ready |= Writable
			}
			if exceptFds.IsSet(fd) {
				ready |= Exception
			}
			if ready == 0 {
				continue
			}
			reg.callback(reg.fd, ready)
		}
	}
}
