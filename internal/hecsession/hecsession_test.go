package hecsession

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/Christopher-Costa/freeflow/internal/testutil/fakehec"
)

func init() {
	reestablishInterval = 10 * time.Millisecond
}

func newFakeEndpoint(t *testing.T, srv *fakehec.Server) Endpoint {
	t.Helper()
	host, port := srv.HostPort()
	return Endpoint{Host: host, Port: port, Token: "test-token"}
}

func TestInitialize_ConnectsAndClears(t *testing.T) {
	srv, err := fakehec.Start(fakehec.Script{Status: "200 OK"})
	if err != nil {
		t.Fatalf("fakehec.Start: %v", err)
	}
	defer srv.Close()

	s := New(newFakeEndpoint(t, srv), false)
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer s.Close()

	if err := s.Status(); err != nil {
		t.Errorf("Status() after Initialize = %v, want nil", err)
	}
}

func TestInitialize_ConnectFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving a port: %v", err)
	}
	_, portStr, _ := net.SplitHostPort(l.Addr().String())
	port, _ := strconv.Atoi(portStr)
	l.Close() // nothing listens here now

	ep := Endpoint{Host: "127.0.0.1", Port: port, Token: "x"}
	s := New(ep, false)

	err = s.Initialize(context.Background())
	if err == nil {
		t.Fatal("expected Initialize to fail against a closed port")
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	srv, err := fakehec.Start(fakehec.Script{Status: "200 OK", Body: `{"text":"Success","code":0}`})
	if err != nil {
		t.Fatalf("fakehec.Start: %v", err)
	}
	defer srv.Close()

	s := New(newFakeEndpoint(t, srv), false)
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer s.Close()

	req := []byte("POST /services/collector HTTP/1.1\r\nHost: x\r\nContent-Length: 0\r\n\r\n")
	n, err := s.Write(req)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(req) {
		t.Errorf("Write returned %d, want %d", n, len(req))
	}

	buf := make([]byte, 4096)
	n, err = s.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n == 0 {
		t.Error("expected a non-empty response")
	}
}

func TestRead_TimeoutIsNotMarkedBroken(t *testing.T) {
	srv, err := fakehec.Start(fakehec.Script{Drop: false, Status: "200 OK"})
	if err != nil {
		t.Fatalf("fakehec.Start: %v", err)
	}
	defer srv.Close()

	s := New(newFakeEndpoint(t, srv), false)
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer s.Close()

	// Read without writing a request first: the fake server never
	// responds unprompted, so this must time out rather than error hard.
	buf := make([]byte, 64)
	_, err = s.Read(buf)
	if err == nil {
		t.Fatal("expected a read timeout")
	}
	ne, ok := err.(net.Error)
	if !ok || !ne.Timeout() {
		t.Errorf("expected a net.Error timeout, got %v", err)
	}
	if s.Status() != nil {
		t.Error("a read timeout must not mark the session broken")
	}
}

func TestMarkBrokenAndClearBroken(t *testing.T) {
	srv, err := fakehec.Start(fakehec.Script{Status: "200 OK"})
	if err != nil {
		t.Fatalf("fakehec.Start: %v", err)
	}
	defer srv.Close()

	s := New(newFakeEndpoint(t, srv), false)
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer s.Close()

	if s.Status() != nil {
		t.Fatal("expected a freshly initialized session to be healthy")
	}

	s.MarkBroken()
	if s.Status() == nil {
		t.Error("expected Status to report broken after MarkBroken")
	}

	s.ClearBroken()
	if s.Status() != nil {
		t.Error("expected Status to report healthy after ClearBroken")
	}
}

func TestReestablish_RecoversAfterServerRestart(t *testing.T) {
	srv, err := fakehec.Start(fakehec.Script{Status: "200 OK"})
	if err != nil {
		t.Fatalf("fakehec.Start: %v", err)
	}

	ep := newFakeEndpoint(t, srv)
	s := New(ep, false)
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	// Simulate the endpoint going away, then coming back on the same
	// host:port once Reestablish is already retrying against it. The
	// session's own connection is closed first, since fakehec's Close
	// waits for every accepted connection to end.
	s.MarkBroken()
	s.Close()
	srv.Close()

	restarted := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		l, err := net.Listen("tcp", net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port)))
		if err != nil {
			close(restarted)
			return
		}
		defer l.Close()
		conn, err := l.Accept()
		if err == nil {
			conn.Close()
		}
		close(restarted)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.Reestablish(ctx); err != nil {
		t.Fatalf("Reestablish: %v", err)
	}
	<-restarted
	s.Close()
}

func TestReestablish_StopsOnContextCancellation(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving a port: %v", err)
	}
	_, portStr, _ := net.SplitHostPort(l.Addr().String())
	port, _ := strconv.Atoi(portStr)
	l.Close()

	ep := Endpoint{Host: "127.0.0.1", Port: port, Token: "x"}
	s := New(ep, false)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := s.Reestablish(ctx); err == nil {
		t.Fatal("expected Reestablish to give up once ctx is cancelled")
	}
}
