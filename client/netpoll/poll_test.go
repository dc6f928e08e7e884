package netpoll

import (
	"syscall"
	"testing"
)

func TestPoller_Wait_ReportsReadable(t *testing.T) {
	fds := make([]int, 2)
	if err := syscall.Pipe(fds); err != nil {
		t.Fatalf("syscall.Pipe: %v", err)
	}
	r, w := fds[0], fds[1]
	defer syscall.Close(r)
	defer syscall.Close(w)

	if _, err := syscall.Write(w, []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	p := NewPoller(1000)
	ready, err := p.Wait([]Interest{{FD: r, UserData: 42, Readable: true}})
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(ready) != 1 {
		t.Fatalf("got %d ready, want 1", len(ready))
	}
	if !ready[0].Readable {
		t.Error("expected Readable = true")
	}
	if ready[0].UserData != 42 {
		t.Errorf("UserData = %d, want 42", ready[0].UserData)
	}
}

func TestPoller_Wait_TimesOutWhenNothingReady(t *testing.T) {
	fds := make([]int, 2)
	if err := syscall.Pipe(fds); err != nil {
		t.Fatalf("syscall.Pipe: %v", err)
	}
	r, w := fds[0], fds[1]
	defer syscall.Close(r)
	defer syscall.Close(w)

	p := NewPoller(10)
	ready, err := p.Wait([]Interest{{FD: r, Readable: true}})
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(ready) != 0 {
		t.Errorf("got %d ready, want 0", len(ready))
	}
}

func TestPoller_Wait_NoInterestsReturnsImmediately(t *testing.T) {
	p := NewPoller(5000)
	ready, err := p.Wait(nil)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if ready != nil {
		t.Errorf("expected nil, got %v", ready)
	}
}
