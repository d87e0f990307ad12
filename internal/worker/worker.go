// Package worker implements the HEC-shipping cursor: one goroutine per
// configured worker index, permanently bound to HEC endpoint `index mod N`.
//
// The example relay's forwarder.HEC retries with exponential backoff
// against net/http; this package instead owns a persistent hecsession.
// Session directly (no net/http in the data path — a hand-rolled
// HTTP/1.1 framing is the spec's contract) and follows the fixed
// 1s-stall / 10s-reestablish / 10s-cooldown timings spec.md §4.5
// mandates instead of exponential backoff.
package worker

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Christopher-Costa/freeflow/internal/hecevent"
	"github.com/Christopher-Costa/freeflow/internal/hecsession"
	"github.com/Christopher-Costa/freeflow/internal/logsink"
	"github.com/Christopher-Costa/freeflow/internal/metrics"
	"github.com/Christopher-Costa/freeflow/internal/netflow"
	"github.com/Christopher-Costa/freeflow/internal/packet"
	"github.com/Christopher-Costa/freeflow/internal/queue"
)

// cooldownInterval is how long a Worker steps out of rotation after a
// non-200/non-403 HEC response, per spec.md §4.5 step on HECReject. It
// is a var, not a const, so tests can shrink it.
var cooldownInterval = 10 * time.Second

// stallRetryInterval is the sleep between read retries while the
// session reports healthy but silent, per spec.md §4.5's recovery loop.
// It is a var for the same reason as cooldownInterval.
var stallRetryInterval = 1 * time.Second

// workerStates enumerates every gauge label SetWorkerState ever sets for
// a worker, so the "exactly one state lit" invariant holds.
var workerStates = []string{"probing", "shipping", "recovering", "cooldown"}

// Worker is one HEC-shipping cursor. It owns its HECSession exclusively;
// no other goroutine touches it.
type Worker struct {
	index      int
	indexLabel string
	session    *hecsession.Session
	queue      *queue.Queue[packet.Buffer]
	log        *logsink.Sink
	sourceType string
	debug      bool
}

// New builds a Worker at the given 0-based index, shipping decoded
// packets from q to session.
func New(index int, session *hecsession.Session, q *queue.Queue[packet.Buffer], sink *logsink.Sink, sourceType string, debug bool) *Worker {
	return &Worker{
		index:      index,
		indexLabel: strconv.Itoa(index),
		session:    session,
		queue:      q,
		log:        sink,
		sourceType: sourceType,
		debug:      debug,
	}
}

// Run executes the Worker's full lifecycle: HECSession initialization,
// the connectivity probe, and the steady-state ship loop, until ctx is
// cancelled. A fatal startup failure (connect/DNS/keepalive/TLS/auth) is
// returned to the caller, which is expected to cancel the shared context
// so the whole process terminates — spec.md §4.5's "signal supervisor,
// exit" contract.
func (w *Worker) Run(ctx context.Context) error {
	endpoint := w.session.Endpoint().Addr()

	if err := w.session.Initialize(ctx); err != nil {
		w.log.Error("worker %d: failed to initialize HEC session to %s: %v", w.index, endpoint, err)
		return err
	}
	defer w.session.Close()

	if err := w.probe(ctx); err != nil {
		w.log.Error("worker %d: %v", w.index, err)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		pb, ok := w.queue.TryReceive()
		if !ok {
			time.Sleep(1 * time.Millisecond)
			continue
		}
		metrics.QueueDepth.Set(float64(w.queue.Len()))

		w.ship(ctx, pb)
	}
}

// probe sends the empty-bodied connectivity/auth probe per spec.md §4.5
// step 3. A 403 response is a fatal authentication failure; any other
// parsed status is accepted and the Worker proceeds to steady state.
func (w *Worker) probe(ctx context.Context) error {
	metrics.SetWorkerState(w.indexLabel, "probing", workerStates)
	return Probe(w.session)
}

// Probe sends the empty-bodied connectivity/auth probe against an
// already-initialized session and classifies the response, per spec.md
// §4.5 step 3. It is exported so the `freeflow probe` subcommand can
// exercise the exact same check without starting a full Worker.
func Probe(session *hecsession.Session) error {
	ep := session.Endpoint()
	req := hecevent.BuildRequest(ep.Host, ep.Port, ep.Token, nil)

	n, err := session.Write(req)
	if err != nil || n < len(req) {
		return errors.New("failed to write all bytes")
	}

	var resp response
	for !resp.complete() {
		if err := resp.read(session); err != nil {
			return errors.New("no response to connectivity probe (possible TLS mismatch)")
		}
	}
	if resp.statusCode == 0 {
		return errors.New("unparseable status in probe response")
	}
	if resp.statusCode == 403 {
		return errors.New("unable to authenticate")
	}

	return nil
}

// ship decodes and formats one packet, writes it to the HEC session, and
// interprets the response, requeuing and recovering as spec.md §4.5
// directs. ship never returns an error: every failure mode is either
// transparently recovered or logged and discarded per the decoder's own
// validation rules.
func (w *Worker) ship(ctx context.Context, pb packet.Buffer) {
	metrics.SetWorkerState(w.indexLabel, "shipping", workerStates)
	endpoint := w.session.Endpoint().Addr()

	datagram, err := netflow.Decode(pb.Bytes())
	if err != nil {
		reason := decodeReason(err)
		metrics.DecodeErrors.WithLabelValues(reason).Inc()
		w.log.Warning("worker %d: dropping datagram from %s: %v", w.index, pb.Sender, err)
		return
	}

	body := hecevent.BuildBody(datagram, pb.Sender, w.sourceType)
	if len(body) == 0 {
		// A header-only datagram (count == 0) decodes cleanly but yields
		// no events; spec.md §8 requires skipping the POST entirely
		// rather than sending a zero-body request.
		return
	}
	if w.debug {
		w.log.Debug("worker %d: shipping %d record(s), %d bytes from %s", w.index, len(datagram.Records), len(body), pb.Sender)
	}

	ep := w.session.Endpoint()
	req := hecevent.BuildRequest(ep.Host, ep.Port, ep.Token, body)

	n, err := w.session.Write(req)
	if err != nil {
		w.session.MarkBroken()
	} else if n < len(req) {
		w.log.Warning("worker %d: incomplete delivery (%d of %d bytes)", w.index, n, len(req))
	}

	statusCode, requeued, shuttingDown := w.readStatusWithRecovery(ctx, pb)
	if shuttingDown {
		return
	}
	if requeued {
		// Recovery already requeued pb and reestablished the session.
		return
	}

	if statusCode != 200 {
		w.log.Warning("worker %d: HEC responded %d, requeuing", w.index, statusCode)
		metrics.HECForwards.WithLabelValues(endpoint, "rejected").Inc()
		metrics.HECRequeues.WithLabelValues(endpoint, "non_200").Inc()
		if err := w.queue.Send(ctx, pb); err != nil {
			return
		}

		metrics.SetWorkerState(w.indexLabel, "cooldown", workerStates)
		select {
		case <-time.After(cooldownInterval):
		case <-ctx.Done():
			return
		}
		w.log.Info("worker %d: reentering service", w.index)
		return
	}

	metrics.HECForwards.WithLabelValues(endpoint, "success").Inc()
}

// readStatusWithRecovery reads the HEC response for the packet just
// written — head and then, per spec.md §4.5 step 3, the full
// Content-Length body — handling the full recovery state machine from
// spec.md §4.5: a healthy-but-silent session is a transient stall
// (retried every second, preserving whatever partial response has
// already been accumulated), while a broken session triggers requeue +
// blocking reestablish. It returns the parsed status code (when
// requeued is false), whether the packet was requeued as part of
// recovery, and whether ctx was cancelled mid-recovery.
func (w *Worker) readStatusWithRecovery(ctx context.Context, pb packet.Buffer) (statusCode int, requeued bool, shuttingDown bool) {
	endpoint := w.session.Endpoint().Addr()
	stall := 0
	var resp response

	for {
		if ctx.Err() != nil {
			return 0, false, true
		}

		if resp.complete() {
			return resp.statusCode, false, false
		}

		readErr := resp.read(w.session)
		if readErr == nil {
			continue
		}

		status := w.session.Status()
		if status == nil && isTimeout(readErr) {
			stall++
			w.log.Warning("worker %d: no response, retrying [#%d]", w.index, stall)
			select {
			case <-time.After(stallRetryInterval):
			case <-ctx.Done():
				return 0, false, true
			}
			continue
		}

		corrID := uuid.NewString()
		reason := "broken pipe"
		if status != nil {
			reason = status.Error()
		}
		w.log.Warning("worker %d [%s]: HEC socket error: %s", w.index, corrID, reason)
		metrics.HECRequeues.WithLabelValues(endpoint, "socket_error").Inc()

		if err := w.queue.Send(ctx, pb); err != nil {
			return 0, false, true
		}
		w.log.Info("worker %d [%s]: requeuing and attempting to reestablish", w.index, corrID)

		metrics.SetWorkerState(w.indexLabel, "recovering", workerStates)
		if err := w.session.Reestablish(ctx); err != nil {
			return 0, false, true
		}
		w.session.ClearBroken()
		w.log.Info("worker %d [%s]: reentered service", w.index, corrID)
		return 0, true, false
	}
}

// response accumulates a single HTTP response — status line, headers,
// and the Content-Length-bounded JSON body — read in pieces across
// possibly-stalled socket reads. Per spec.md §4.5 step 3 and §9's
// resolution of the head/body Open Question, the head and body may
// arrive in separate reads; response keeps whatever bytes have already
// landed across calls to read, so a stalled read never loses partial
// progress and the body is always fully drained before the connection
// is considered free for the next request/response pair.
type response struct {
	buf           []byte
	headParsed    bool
	statusCode    int
	headEnd       int
	contentLength int
}

// complete reports whether the full head and body have been read.
func (r *response) complete() bool {
	return r.headParsed && len(r.buf)-r.headEnd >= r.contentLength
}

// read performs one Read call against sess and folds any new bytes into
// the response, parsing the head once enough bytes have arrived. It
// returns the read error verbatim (nil on a successful, possibly
// partial, read) so the caller can distinguish a timeout-driven stall
// from a hard socket failure via sess.Status().
func (r *response) read(sess *hecsession.Session) error {
	scratch := make([]byte, 4096)
	n, err := sess.Read(scratch)
	if n <= 0 {
		return coalesce(err, errors.New("hecsession: short read"))
	}
	r.buf = append(r.buf, scratch[:n]...)

	if !r.headParsed {
		if code, end, cl, ok := hecevent.ParseHead(r.buf); ok {
			r.statusCode, r.headEnd, r.contentLength, r.headParsed = code, end, cl, true
		}
	}
	return nil
}

func coalesce(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func decodeReason(err error) string {
	switch {
	case errors.Is(err, netflow.ErrInvalidLength):
		return "invalid_length"
	case errors.Is(err, netflow.ErrInvalidVersion):
		return "invalid_version"
	case errors.Is(err, netflow.ErrInvalidCount):
		return "invalid_count"
	default:
		return "unknown"
	}
}

