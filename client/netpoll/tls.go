package netpoll

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
	"time"
)

// TLSUpgrade wraps a connected Socket in crypto/tls. crypto/tls.Conn
// cannot be driven tick-by-tick the way a plain Socket can:
// Handshake and Read/Write cache the first error they see, including a
// context-deadline-exceeded from a read that simply arrived too early,
// so calling them from the scheduler's non-blocking tick loop and
// retrying later would permanently wedge the connection the first time
// a tick found nothing ready.
//
// Instead a TLSUpgrade owns one dedicated goroutine for the lifetime of
// the encrypted connection. That goroutine is the only thing that ever
// touches the *tls.Conn; it drives its own short-deadline read/write
// loop and exposes the same non-blocking Read/Write/Close contract as
// Socket to the rest of netpoll, backed by mutex-guarded buffers. This
// is the one place outside crypto/tls itself that this package spawns a
// goroutine per connection.
type TLSUpgrade struct {
	fileConn net.Conn
	tlsConn  *tls.Conn

	handshakeDone chan struct{}
	handshakeErr  error

	stop chan struct{}
	once sync.Once

	mu      sync.Mutex
	inbound []byte
	outbound []byte
	eof     bool
	err     error
}

// tickInterval bounds how long the background goroutine can sit blocked
// on a single Read/Write attempt before checking for pending writes and
// the stop signal again.
const tickInterval = 20 * time.Millisecond

// Upgrade takes ownership of sock's file descriptor and begins a TLS
// handshake to serverName in the background. HandshakeDone reports when
// the handshake finishes.
func Upgrade(sock *Socket, serverName string, insecureSkipVerify bool) (*TLSUpgrade, error) {
	if err := setBlocking(sock.fd, true); err != nil {
		return nil, err
	}

	f := os.NewFile(uintptr(sock.fd), "")
	fileConn, err := net.FileConn(f)
	_ = f.Close() // FileConn dup'd the fd; release our copy.
	if err != nil {
		return nil, fmt.Errorf("netpoll: wrap fd for tls: %w", err)
	}

	tlsConn := tls.Client(fileConn, &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: insecureSkipVerify,
	})

	u := &TLSUpgrade{
		fileConn:      fileConn,
		tlsConn:       tlsConn,
		handshakeDone: make(chan struct{}),
		stop:          make(chan struct{}),
	}
	go u.run()
	return u, nil
}

func setBlocking(fd int, blocking bool) error {
	return syscall.SetNonblock(fd, !blocking)
}

func (u *TLSUpgrade) run() {
	if err := u.tlsConn.Handshake(); err != nil {
		u.handshakeErr = err
		close(u.handshakeDone)
		return
	}
	close(u.handshakeDone)
	u.pump()
}

// pump alternates short-deadline reads and writes so the goroutine never
// blocks longer than tickInterval, letting it notice pending outbound
// data and the stop signal promptly.
func (u *TLSUpgrade) pump() {
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-u.stop:
			return
		default:
		}

		_ = u.tlsConn.SetWriteDeadline(time.Now().Add(tickInterval))
		if pending := u.takeOutbound(); len(pending) > 0 {
			if _, err := u.tlsConn.Write(pending); err != nil && !isTimeout(err) {
				u.fail(err)
				return
			}
		}

		_ = u.tlsConn.SetReadDeadline(time.Now().Add(tickInterval))
		n, err := u.tlsConn.Read(buf)
		if n > 0 {
			u.mu.Lock()
			u.inbound = append(u.inbound, buf[:n]...)
			u.mu.Unlock()
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				u.markEOF()
				return
			}
			u.fail(err)
			return
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (u *TLSUpgrade) takeOutbound() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.outbound) == 0 {
		return nil
	}
	p := u.outbound
	u.outbound = nil
	return p
}

func (u *TLSUpgrade) fail(err error) {
	u.mu.Lock()
	u.err = err
	u.eof = true
	u.mu.Unlock()
}

// markEOF records a clean close, matching Socket.Read's contract of
// returning (0, nil) once the peer has closed the connection — a
// server closing the TLS connection after sending its response is not
// an error.
func (u *TLSUpgrade) markEOF() {
	u.mu.Lock()
	u.eof = true
	u.mu.Unlock()
}

// HandshakeDone reports whether the handshake has finished, and its
// error if it failed. The scheduler polls this once per tick instead of
// blocking on it.
func (u *TLSUpgrade) HandshakeDone() (done bool, err error) {
	select {
	case <-u.handshakeDone:
		return true, u.handshakeErr
	default:
		return false, nil
	}
}

// Read drains whatever decrypted bytes the background goroutine has
// buffered so far. It never blocks.
func (u *TLSUpgrade) Read(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if len(u.inbound) == 0 {
		if u.err != nil {
			return 0, u.err
		}
		if u.eof {
			return 0, nil
		}
		return 0, ErrWouldBlock
	}
	n := copy(p, u.inbound)
	u.inbound = u.inbound[n:]
	return n, nil
}

// Write queues p for the background goroutine to send on its next pump
// iteration. It never blocks and always accepts the full buffer.
func (u *TLSUpgrade) Write(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return 0, u.err
	}
	u.outbound = append(u.outbound, p...)
	return len(p), nil
}

// Close stops the background goroutine and releases the connection.
func (u *TLSUpgrade) Close() error {
	u.once.Do(func() { close(u.stop) })
	return u.fileConn.Close()
}
