package ipc

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/playctl/playctl/pkg/protocol"
)

func startServer(t *testing.T, secret string) (string, chan protocol.Message, chan protocol.Message, context.CancelFunc) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "playctl.sock")
	l, err := Bind(socketPath, "")
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	inbound := make(chan protocol.Message, 64)
	outbound := make(chan protocol.Message, 64)
	srv := &Server{Listener: l, Secret: secret, Inbound: inbound, Outbound: outbound}

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	t.Cleanup(cancel)
	return socketPath, inbound, outbound, cancel
}

func dial(t *testing.T, socketPath string) net.Conn {
	t.Helper()
	var conn net.Conn
	var err error
	for range 50 {
		conn, err = net.Dial("unix", socketPath)
		if err == nil {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("dial %s: %v", socketPath, err)
	return nil
}

func send(t *testing.T, conn net.Conn, msg protocol.Message) {
	t.Helper()
	line, err := protocol.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := conn.Write(line); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func recvForwarded(t *testing.T, inbound chan protocol.Message) protocol.Message {
	t.Helper()
	select {
	case m := <-inbound:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded message")
		return nil
	}
}

func TestHandshakeValidTokenForwarded(t *testing.T) {
	socketPath, inbound, _, _ := startServer(t, "s3cret")
	conn := dial(t, socketPath)
	defer conn.Close()

	send(t, conn, protocol.Handshake{Token: "s3cret"})
	m := recvForwarded(t, inbound)
	if _, ok := m.(protocol.Handshake); !ok {
		t.Fatalf("forwarded kind = %s, want Handshake", protocol.Kind(m))
	}
}

func TestHandshakeNoSecretAcceptsAnything(t *testing.T) {
	socketPath, inbound, _, _ := startServer(t, "")
	conn := dial(t, socketPath)
	defer conn.Close()

	send(t, conn, protocol.Handshake{})
	if _, ok := recvForwarded(t, inbound).(protocol.Handshake); !ok {
		t.Fatal("tokenless handshake not forwarded with no configured secret")
	}
}

// TestHandshakeBadTokenClosesConnection verifies an invalid token closes the
// connection without forwarding anything, and the listener keeps serving.
func TestHandshakeBadTokenClosesConnection(t *testing.T) {
	socketPath, inbound, _, _ := startServer(t, "s3cret")

	conn := dial(t, socketPath)
	send(t, conn, protocol.Handshake{Token: "wrong"})

	// The server closes the connection; the next read observes it.
	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("connection still open after bad token")
	}
	conn.Close()

	select {
	case m := <-inbound:
		t.Fatalf("message forwarded despite auth failure: %s", protocol.Kind(m))
	default:
	}

	// Listener recovers: a fresh connection with the right token works.
	conn2 := dial(t, socketPath)
	defer conn2.Close()
	send(t, conn2, protocol.Handshake{Token: "s3cret"})
	if _, ok := recvForwarded(t, inbound).(protocol.Handshake); !ok {
		t.Fatal("listener did not recover after auth failure")
	}
}

// TestNoForwardBeforeHandshake verifies nothing but Handshake reaches the
// dispatcher on an unauthenticated connection.
func TestNoForwardBeforeHandshake(t *testing.T) {
	socketPath, inbound, _, _ := startServer(t, "s3cret")
	conn := dial(t, socketPath)
	defer conn.Close()

	send(t, conn, protocol.TaskStart{Name: "sneaky", TaskVars: map[string]any{}})

	select {
	case m := <-inbound:
		t.Fatalf("pre-handshake record forwarded: %s", protocol.Kind(m))
	case <-time.After(200 * time.Millisecond):
	}
}

// TestEOFSynthesizesOneDisconnect verifies exactly one ClientDisconnected per
// connection teardown.
func TestEOFSynthesizesOneDisconnect(t *testing.T) {
	socketPath, inbound, _, _ := startServer(t, "")
	conn := dial(t, socketPath)

	send(t, conn, protocol.Handshake{})
	recvForwarded(t, inbound)

	conn.Close()

	if _, ok := recvForwarded(t, inbound).(protocol.ClientDisconnected); !ok {
		t.Fatal("expected ClientDisconnected after EOF")
	}
	select {
	case m := <-inbound:
		t.Fatalf("spurious message after disconnect: %s", protocol.Kind(m))
	case <-time.After(200 * time.Millisecond):
	}
}

// TestMalformedLineTreatedAsDisconnect verifies decode failures drop the
// connection like a transport error.
func TestMalformedLineTreatedAsDisconnect(t *testing.T) {
	socketPath, inbound, _, _ := startServer(t, "")
	conn := dial(t, socketPath)
	defer conn.Close()

	send(t, conn, protocol.Handshake{})
	recvForwarded(t, inbound)

	if _, err := conn.Write([]byte("this is not json\n")); err != nil {
		t.Fatal(err)
	}
	if _, ok := recvForwarded(t, inbound).(protocol.ClientDisconnected); !ok {
		t.Fatal("expected ClientDisconnected after malformed line")
	}
}

// TestOutboundDelivered verifies records queued on Outbound reach the wire.
func TestOutboundDelivered(t *testing.T) {
	socketPath, inbound, outbound, _ := startServer(t, "")
	conn := dial(t, socketPath)
	defer conn.Close()

	send(t, conn, protocol.Handshake{})
	recvForwarded(t, inbound)

	outbound <- protocol.Proceed{}

	r := protocol.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	m, err := r.Read()
	if err != nil {
		t.Fatalf("read outbound: %v", err)
	}
	if _, ok := m.(protocol.Proceed); !ok {
		t.Fatalf("outbound kind = %s, want Proceed", protocol.Kind(m))
	}
}

// TestInboundWireOrder verifies records from one connection arrive in wire
// order.
func TestInboundWireOrder(t *testing.T) {
	socketPath, inbound, _, _ := startServer(t, "")
	conn := dial(t, socketPath)
	defer conn.Close()

	send(t, conn, protocol.Handshake{})
	send(t, conn, protocol.PlayStart{Name: "p", HostPattern: "all"})
	send(t, conn, protocol.TaskStart{Name: "t1"})
	send(t, conn, protocol.TaskResult{Name: "t1", Host: "web1"})

	wantKinds := []string{"Handshake", "PlayStart", "TaskStart", "TaskResult"}
	for _, want := range wantKinds {
		m := recvForwarded(t, inbound)
		if protocol.Kind(m) != want {
			t.Fatalf("got %s, want %s", protocol.Kind(m), want)
		}
	}
}

func TestBindTCP(t *testing.T) {
	l, err := Bind("", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Bind tcp: %v", err)
	}
	defer l.Close()

	inbound := make(chan protocol.Message, 8)
	outbound := make(chan protocol.Message, 8)
	srv := &Server{Listener: l, Inbound: inbound, Outbound: outbound}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	conn, err := net.Dial("tcp", l.Addr())
	if err != nil {
		t.Fatalf("dial tcp: %v", err)
	}
	defer conn.Close()

	send(t, conn, protocol.Handshake{Token: "anything"})
	if _, ok := recvForwarded(t, inbound).(protocol.Handshake); !ok {
		t.Fatal("tcp handshake not forwarded")
	}
}

func TestBindStaleSocketRemoved(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "stale.sock")

	l1, err := Bind(socketPath, "")
	if err != nil {
		t.Fatal(err)
	}
	l1.Close()

	l2, err := Bind(socketPath, "")
	if err != nil {
		t.Fatalf("rebind over stale socket: %v", err)
	}
	l2.Close()
}
