// Package logsink implements the single consumer that drains a bounded
// message channel and appends timestamped, severity-tagged lines to a
// file. It is the one component in the pipeline that deliberately
// survives the shared shutdown signal, so messages produced by every
// other component during teardown still land in the log file.
package logsink

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Christopher-Costa/freeflow/internal/queue"
)

// Severity tags a LogEntry. The four levels match spec.md §3 exactly.
type Severity string

const (
	Debug   Severity = "DEBUG"
	Info    Severity = "INFO"
	Warning Severity = "WARNING"
	Error   Severity = "ERROR"
)

// mtype is carried for parity with the source's SysV message type field
// (always 1); it has no behavior here, it just documents the wire shape
// this package is standing in for.
const mtype = 1

// Entry is one LogEntry: a severity-tagged message destined for the
// sink's file.
type Entry struct {
	MType    int
	Severity Severity
	Message  string
}

// Sink drains a bounded LogQueue and appends lines to a file in the
// format "YYYY/MM/DD HH:MM:SS freeflow: <SEVERITY> <message>\n",
// flushing after every line.
type Sink struct {
	path  string
	queue *queue.Queue[Entry]

	mu      sync.Mutex
	stopped bool // set only by Stop; drives the Logger's own shutdown flag
}

// New creates a Sink backed by a bounded Log Queue of the given
// capacity. The file is not opened until Run is called.
func New(path string, capacity int) *Sink {
	return &Sink{
		path:  path,
		queue: queue.New[Entry](capacity),
	}
}

// Enqueue is the non-blocking, best-effort producer side used by every
// other component (log_debug/log_info/log_warning/log_error in
// spec.md §4.6). If the queue is full the entry is silently dropped —
// the log path must never apply backpressure onto its producers.
func (s *Sink) Enqueue(sev Severity, format string, args ...any) {
	entry := Entry{MType: mtype, Severity: sev, Message: fmt.Sprintf(format, args...)}
	s.queue.TrySend(entry)
}

func (s *Sink) Debug(format string, args ...any)   { s.Enqueue(Debug, format, args...) }
func (s *Sink) Info(format string, args ...any)    { s.Enqueue(Info, format, args...) }
func (s *Sink) Warning(format string, args ...any) { s.Enqueue(Warning, format, args...) }
func (s *Sink) Error(format string, args ...any)   { s.Enqueue(Error, format, args...) }

// Run is the Logger Sink's main loop. It drains entries, non-blocking,
// sleeping 10ms on an empty queue, until Stop has been called AND the
// queue is empty — so messages emitted by other components during
// shutdown are never lost. Run returns once the file has been flushed
// and closed.
func (s *Sink) Run() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("logsink: open: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	writeLine(w, Info, "Logging process started.")
	_ = w.Flush()

	for {
		entry, ok := s.queue.TryReceive()
		if !ok {
			if s.isStopped() {
				return nil
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}

		writeLine(w, entry.Severity, entry.Message)
		if err := w.Flush(); err != nil {
			return fmt.Errorf("logsink: write: %w", err)
		}
	}
}

func writeLine(w *bufio.Writer, sev Severity, msg string) {
	ts := time.Now().Format("2006/01/02 15:04:05")
	fmt.Fprintf(w, "%s freeflow: %s %s\n", ts, sev, msg)
}

// Stop sets the Logger's own shutdown flag. Unlike the Receiver and
// Workers, the Sink does not observe the shared cancellation context —
// per spec.md §4.6's rationale, the Supervisor calls Stop only after
// every producer has exited, so the drain loop keeps running while
// final log lines from other components arrive.
func (s *Sink) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *Sink) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
