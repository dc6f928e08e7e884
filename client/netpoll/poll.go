package netpoll

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Interest is what a caller wants to be notified about for one fd.
type Interest struct {
	FD         int
	UserData   uintptr // opaque handle, typically a connection index
	Readable   bool
	Writable   bool
}

// Readiness reports what became ready for one previously-registered fd.
type Readiness struct {
	UserData uintptr
	Readable bool
	Writable bool
	Err      bool
	Hup      bool
}

// Poller batches many Sockets into one readiness check per call, playing
// the role a select/poll loop plays in an event-driven client: the
// scheduler registers the interest of every connection in one batch of
// a tick and gets back exactly the fds that are actionable.
type Poller struct {
	timeout int // milliseconds
}

// NewPoller builds a Poller whose Wait calls block for at most timeout;
// the scheduler calls Wait once per batch that has plain sockets to
// check, so this bounds how long each such batch with nothing ready can
// take.
func NewPoller(timeoutMillis int) *Poller {
	return &Poller{timeout: timeoutMillis}
}

// Wait polls every interest and returns the subset that is ready. It
// returns immediately once at least one fd is actionable, and returns an
// empty slice (not an error) if the timeout elapses with nothing ready.
func (p *Poller) Wait(interests []Interest) ([]Readiness, error) {
	if len(interests) == 0 {
		return nil, nil
	}

	fds := make([]unix.PollFd, len(interests))
	for i, in := range interests {
		var events int16
		if in.Readable {
			events |= unix.POLLIN
		}
		if in.Writable {
			events |= unix.POLLOUT
		}
		fds[i] = unix.PollFd{Fd: int32(in.FD), Events: events}
	}

	n, err := unix.Poll(fds, p.timeout)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("netpoll: poll: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	out := make([]Readiness, 0, n)
	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		out = append(out, Readiness{
			UserData: interests[i].UserData,
			Readable: pfd.Revents&(unix.POLLIN|unix.POLLHUP) != 0,
			Writable: pfd.Revents&unix.POLLOUT != 0,
			Err:      pfd.Revents&unix.POLLERR != 0,
			Hup:      pfd.Revents&unix.POLLHUP != 0,
		})
	}
	return out, nil
}
