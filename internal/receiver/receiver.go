// Package receiver owns the ingress UDP socket and feeds the Packet Queue.
//
// The example relay's TCP acceptLoop sets a 1-second deadline on the
// listener so it can periodically observe its shutdown channel even
// without traffic; this package applies the same pattern to a single UDP
// socket instead of a listener/per-connection pair.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Christopher-Costa/freeflow/internal/logsink"
	"github.com/Christopher-Costa/freeflow/internal/metrics"
	"github.com/Christopher-Costa/freeflow/internal/packet"
	"github.com/Christopher-Costa/freeflow/internal/queue"
)

// readTimeout bounds every ReadFromUDP call so Run can observe ctx
// cancellation at least once per second even against a silent socket.
const readTimeout = 1 * time.Second

// Receiver binds one UDP socket and enqueues every received datagram,
// tagged with its sender address, onto a Packet Queue.
type Receiver struct {
	bindAddr string
	bindPort int
	queue    *queue.Queue[packet.Buffer]
	log      *logsink.Sink
}

// New builds a Receiver bound to addr:port, feeding q and logging
// through sink.
func New(addr string, port int, q *queue.Queue[packet.Buffer], sink *logsink.Sink) *Receiver {
	return &Receiver{bindAddr: addr, bindPort: port, queue: q, log: sink}
}

// Run binds the UDP socket and loops until ctx is cancelled, enqueueing
// every received datagram onto the Packet Queue. A bind failure is
// fatal and is returned to the caller (the Supervisor), which terminates
// the whole process. Timeouts while waiting for a datagram are not
// errors — they are how Run notices ctx cancellation promptly.
func (r *Receiver) Run(ctx context.Context) error {
	udpAddr := &net.UDPAddr{IP: net.ParseIP(r.bindAddr), Port: r.bindPort}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		r.log.Error("failed to bind UDP socket %s:%d: %v", r.bindAddr, r.bindPort, err)
		return fmt.Errorf("receiver: bind %s:%d: %w", r.bindAddr, r.bindPort, err)
	}
	defer conn.Close()

	r.log.Info("receiver bound to %s:%d", r.bindAddr, r.bindPort)

	buf := make([]byte, packet.MaxDatagramBytes)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("receiver shutting down")
			return nil
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			r.log.Error("receiver: set read deadline: %v", err)
			return fmt.Errorf("receiver: set read deadline: %w", err)
		}

		n, sender, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			r.log.Warning("receiver: read error: %v", err)
			continue
		}
		if n <= 0 {
			continue
		}

		pb := packet.New(sender.IP.String(), buf[:n])
		metrics.PacketsReceived.Inc()

		if err := r.queue.Send(ctx, pb); err != nil {
			// ctx was cancelled while blocked on a full queue; shutting down.
			return nil
		}
		metrics.QueueDepth.Set(float64(r.queue.Len()))
	}
}
