package netpoll

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrWouldBlock is returned by Connect, Read and Write when the operation
// cannot complete without blocking. Callers are expected to wait for the
// next readiness notification from a Poller and retry.
var ErrWouldBlock = errors.New("netpoll: operation would block")

// ErrClosed marks a socket the peer has closed or reset.
var ErrClosed = errors.New("netpoll: connection closed")

// Socket is a non-blocking TCP connection identified by its raw file
// descriptor, so it can be registered directly with a Poller.
type Socket struct {
	fd int
}

// Dial starts a non-blocking connect to addr ("host:port"). It returns
// immediately: the connection attempt continues in the background, and
// the caller must wait for the Poller to report the fd writable before
// calling Established.
func Dial(network, addr string) (*Socket, error) {
	tcpAddr, err := net.ResolveTCPAddr(network, addr)
	if err != nil {
		return nil, fmt.Errorf("netpoll: resolve %s: %w", addr, err)
	}

	domain := syscall.AF_INET
	if tcpAddr.IP.To4() == nil {
		domain = syscall.AF_INET6
	}

	fd, err := syscall.Socket(domain, syscall.SOCK_STREAM, syscall.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("netpoll: socket: %w", err)
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("netpoll: set nonblocking: %w", err)
	}

	sa, err := sockaddr(tcpAddr, domain)
	if err != nil {
		syscall.Close(fd)
		return nil, err
	}

	err = syscall.Connect(fd, sa)
	if err != nil && !errors.Is(err, syscall.EINPROGRESS) {
		syscall.Close(fd)
		return nil, fmt.Errorf("netpoll: connect %s: %w", addr, err)
	}

	return &Socket{fd: fd}, nil
}

func sockaddr(addr *net.TCPAddr, domain int) (syscall.Sockaddr, error) {
	switch domain {
	case syscall.AF_INET:
		var a [4]byte
		copy(a[:], addr.IP.To4())
		return &syscall.SockaddrInet4{Port: addr.Port, Addr: a}, nil
	case syscall.AF_INET6:
		var a [16]byte
		copy(a[:], addr.IP.To16())
		return &syscall.SockaddrInet6{Port: addr.Port, Addr: a}, nil
	default:
		return nil, fmt.Errorf("netpoll: unsupported address family %d", domain)
	}
}

// FD returns the raw file descriptor, for registering with a Poller.
func (s *Socket) FD() int { return s.fd }

// Established checks whether an in-progress connect finished successfully.
// Call it once the Poller reports the fd writable.
func (s *Socket) Established() error {
	errno, err := syscall.GetsockoptInt(s.fd, syscall.SOL_SOCKET, syscall.SO_ERROR)
	if err != nil {
		return fmt.Errorf("netpoll: getsockopt SO_ERROR: %w", err)
	}
	if errno != 0 {
		return fmt.Errorf("netpoll: connect failed: %w", syscall.Errno(errno))
	}
	return nil
}

// Read performs one non-blocking read. A zero-length, nil-error result
// means the peer closed the connection (EOF); ErrWouldBlock means try
// again after the next readiness notification.
func (s *Socket) Read(p []byte) (int, error) {
	n, err := syscall.Read(s.fd, p)
	if err != nil {
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
			return 0, ErrWouldBlock
		}
		if errors.Is(err, syscall.ECONNRESET) {
			return 0, ErrClosed
		}
		return 0, fmt.Errorf("netpoll: read: %w", err)
	}
	return n, nil
}

// Write performs one non-blocking write, returning however many bytes
// the kernel accepted. Callers must be prepared for short writes and
// resume from the returned offset once the fd is writable again.
func (s *Socket) Write(p []byte) (int, error) {
	n, err := syscall.Write(s.fd, p)
	if err != nil {
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
			return 0, ErrWouldBlock
		}
		if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
			return n, ErrClosed
		}
		return n, fmt.Errorf("netpoll: write: %w", err)
	}
	return n, nil
}

// Close releases the underlying file descriptor. Safe to call once; a
// second call returns the kernel's EBADF wrapped as an error.
func (s *Socket) Close() error {
	return syscall.Close(s.fd)
}
