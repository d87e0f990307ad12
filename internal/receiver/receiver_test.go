package receiver

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/Christopher-Costa/freeflow/internal/logsink"
	"github.com/Christopher-Costa/freeflow/internal/packet"
	"github.com/Christopher-Costa/freeflow/internal/queue"
	"github.com/Christopher-Costa/freeflow/internal/testutil/fakeudp"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("reserving a port: %v", err)
	}
	defer l.Close()
	return l.LocalAddr().(*net.UDPAddr).Port
}

func TestReceiver_EnqueuesDatagram(t *testing.T) {
	port := freePort(t)
	pq := queue.New[packet.Buffer](4)
	sink := logsink.New(t.TempDir()+"/log", 16)
	go sink.Run()
	defer sink.Stop()

	r := New("127.0.0.1", port, pq, sink)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(ctx) }()

	// Give the socket a moment to bind.
	time.Sleep(50 * time.Millisecond)

	payload := []byte("hello netflow")
	if err := fakeudp.Send(net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if pb, ok := pq.TryReceive(); ok {
			if string(pb.Bytes()) != string(payload) {
				t.Errorf("received %q, want %q", pb.Bytes(), payload)
			}
			if pb.Sender != "127.0.0.1" {
				t.Errorf("sender = %q, want 127.0.0.1", pb.Sender)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for datagram to be enqueued")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancellation")
	}
}

func TestReceiver_BindFailureIsFatal(t *testing.T) {
	pq := queue.New[packet.Buffer](1)
	sink := logsink.New(t.TempDir()+"/log", 16)
	go sink.Run()
	defer sink.Stop()

	// Port 1 requires privileges this test process does not have, and
	// binding 0.0.0.0 on a negative/invalid combination is out of
	// range; instead we bind one receiver twice to the same port to
	// force a genuine "address already in use" failure.
	port := freePort(t)
	first := New("127.0.0.1", port, pq, sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firstDone := make(chan error, 1)
	go func() { firstDone <- first.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	second := New("127.0.0.1", port, pq, sink)
	if err := second.Run(context.Background()); err == nil {
		t.Error("expected second bind to the same port to fail")
	}

	cancel()
	<-firstDone
}
