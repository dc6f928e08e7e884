package netpoll

import (
	"net"
	"testing"
	"time"
)

func setupTestServer(t *testing.T, serverLogic func(net.Conn)) (addr string, cleanup func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	done := make(chan struct{})
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			close(done)
			return
		}
		serverLogic(conn)
		conn.Close()
		close(done)
	}()

	return listener.Addr().String(), func() {
		listener.Close()
		<-done
	}
}

func waitWritable(t *testing.T, s *Socket) {
	t.Helper()
	p := NewPoller(1000)
	for i := 0; i < 100; i++ {
		ready, err := p.Wait([]Interest{{FD: s.FD(), Writable: true}})
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
		if len(ready) > 0 {
			return
		}
	}
	t.Fatal("socket never became writable")
}

func TestDial_ConnectsAndEstablishes(t *testing.T) {
	addr, cleanup := setupTestServer(t, func(conn net.Conn) {})
	defer cleanup()

	sock, err := Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sock.Close()

	waitWritable(t, sock)

	if err := sock.Established(); err != nil {
		t.Errorf("Established() error = %v", err)
	}
}

func TestDial_ConnectionRefused(t *testing.T) {
	sock, err := Dial("tcp", "127.0.0.1:1")
	if err != nil {
		// Some platforms fail synchronously on connect to an unroutable
		// port; either path is acceptable.
		return
	}
	defer sock.Close()

	waitWritable(t, sock)
	if err := sock.Established(); err == nil {
		t.Error("expected Established() to report connection refused")
	}
}

func TestSocket_WriteThenRead(t *testing.T) {
	want := "hello from server"
	addr, cleanup := setupTestServer(t, func(conn net.Conn) {
		buf := make([]byte, 1024)
		n, _ := conn.Read(buf)
		conn.Write([]byte(want + ":" + string(buf[:n])))
	})
	defer cleanup()

	sock, err := Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sock.Close()
	waitWritable(t, sock)
	if err := sock.Established(); err != nil {
		t.Fatalf("Established: %v", err)
	}

	msg := "hello from client"
	if _, err := sock.Write([]byte(msg)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		buf := make([]byte, 1024)
		n, err := sock.Read(buf)
		if err == ErrWouldBlock {
			time.Sleep(time.Millisecond)
			continue
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, buf[:n]...)
		if len(got) > 0 {
			break
		}
	}

	if string(got) != want+":"+msg {
		t.Errorf("got %q, want %q", got, want+":"+msg)
	}
}

func TestSocket_ReadEOFOnPeerClose(t *testing.T) {
	addr, cleanup := setupTestServer(t, func(conn net.Conn) {})
	defer cleanup()

	sock, err := Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sock.Close()
	waitWritable(t, sock)
	if err := sock.Established(); err != nil {
		t.Fatalf("Established: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	var n int
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		buf := make([]byte, 1024)
		n, err = sock.Read(buf)
		if err == ErrWouldBlock {
			time.Sleep(time.Millisecond)
			continue
		}
		break
	}
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 0 {
		t.Errorf("expected EOF (n=0, nil err), got n=%d", n)
	}
}

func TestSocket_CloseThenReadIsError(t *testing.T) {
	addr, cleanup := setupTestServer(t, func(conn net.Conn) {})
	defer cleanup()

	sock, err := Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	waitWritable(t, sock)
	if err := sock.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := sock.Read(make([]byte, 16)); err == nil {
		t.Error("expected error reading a closed socket")
	}
}
