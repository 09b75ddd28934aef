package reactor

import (
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatchDispatchesOnReadable(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer pr.Close()
	defer pw.Close()

	var dispatched int32
	r.Watch(pr.Fd(), Readable, func(fd uintptr, ready Interest) {
		if !ready.has(Readable) {
			t.Errorf("callback invoked without Readable set: %v", ready)
		}
		atomic.StoreInt32(&dispatched, 1)
		r.Stop()
	})

	done := make(chan error, 1)
	go func() { done <- r.Loop() }()

	if _, err := pw.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Loop returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Loop did not return after Stop")
	}

	if atomic.LoadInt32(&dispatched) != 1 {
		t.Fatal("callback was never dispatched")
	}
}

func TestStopFromOutsideUnblocksLoop(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	done := make(chan error, 1)
	go func() { done <- r.Loop() }()

	time.Sleep(20 * time.Millisecond)
	r.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Loop returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Loop did not return after external Stop")
	}
}

func TestUnwatchFromOwnCallbackIsSafe(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer pr.Close()
	defer pw.Close()

	var calls int32
	r.Watch(pr.Fd(), Readable, func(fd uintptr, ready Interest) {
		atomic.AddInt32(&calls, 1)
		r.Unwatch(fd)
		r.Stop()
	})

	done := make(chan error, 1)
	go func() { done <- r.Loop() }()

	pw.Write([]byte("y"))

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Loop returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Loop did not return")
	}

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 dispatch, got %d", calls)
	}
}
