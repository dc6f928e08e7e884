// Package netpoll is the readiness-primitive layer the scheduler drives on
// every tick: non-blocking sockets plus a golang.org/x/sys/unix.Poll call
// per batch that reports, across every connection in that batch, which
// ones are readable, writable, or dead.
//
// [Socket] wraps one non-blocking connect/read/write cycle over a raw file
// descriptor. [Poller] batches many Sockets into one Poll syscall.
// [TLSUpgrade] is the one place this package hands a socket to a goroutine:
// crypto/tls.Conn.Handshake cannot be safely retried after it times out, so
// the handshake runs to completion off to the side instead of being driven
// tick-by-tick like everything else.
package netpoll
