// Package supervisor coordinates startup and ordered shutdown of the
// pipeline: it creates the Log Queue and Sink, spawns the Worker pool,
// runs the Receiver on the calling goroutine, and tears everything down
// in the order spec.md §4.7 mandates — workers first, Logger last, so
// every other component's final log lines are never lost.
package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/Christopher-Costa/freeflow/internal/config"
	"github.com/Christopher-Costa/freeflow/internal/hecsession"
	"github.com/Christopher-Costa/freeflow/internal/logsink"
	"github.com/Christopher-Costa/freeflow/internal/packet"
	"github.com/Christopher-Costa/freeflow/internal/queue"
	"github.com/Christopher-Costa/freeflow/internal/receiver"
	"github.com/Christopher-Costa/freeflow/internal/worker"
)

// logQueueCapacity bounds the Log Queue. It is generous relative to
// packet queue sizing since log entries are small and dropped rather
// than backpressured when full, per spec.md §4.6.
const logQueueCapacity = 4096

// Supervisor owns the lifetime of one freeflow pipeline instance.
type Supervisor struct {
	cfg *config.Configuration
}

// New builds a Supervisor from an already-loaded, validated Configuration.
func New(cfg *config.Configuration) *Supervisor {
	return &Supervisor{cfg: cfg}
}

// Run spawns the Logger Sink and Worker pool, then runs the Receiver on
// the calling goroutine until ctx is cancelled (by SIGINT/SIGTERM,
// installed by the caller) or a Worker signals a fatal startup failure.
// Run blocks until every component has fully exited, in shutdown order.
func (s *Supervisor) Run(ctx context.Context) error {
	sink := logsink.New(s.cfg.LogFile, logQueueCapacity)

	loggerDone := make(chan error, 1)
	go func() {
		loggerDone <- sink.Run()
	}()

	pipelineCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pq := queue.New[packet.Buffer](s.cfg.QueueSize)

	workers := make([]*worker.Worker, s.cfg.Threads)
	var wg sync.WaitGroup
	fatalErrs := make(chan error, s.cfg.Threads)

	for i := 0; i < s.cfg.Threads; i++ {
		endpoint := s.cfg.Endpoints[i%len(s.cfg.Endpoints)]
		session := hecsession.New(endpoint, s.cfg.TLSEnabled)
		w := worker.New(i, session, pq, sink, s.cfg.SourceType, s.cfg.Debug)
		workers[i] = w

		wg.Add(1)
		go func(idx int, w *worker.Worker) {
			defer wg.Done()
			if err := w.Run(pipelineCtx); err != nil {
				fatalErrs <- fmt.Errorf("worker %d: %w", idx, err)
				cancel()
			}
		}(i, w)
	}

	rec := receiver.New(s.cfg.BindAddr, s.cfg.BindPort, pq, sink)
	recErr := rec.Run(pipelineCtx)
	if recErr != nil {
		cancel()
	}

	for i := range workers {
		sink.Info("Terminating worker #%d", i)
	}
	cancel()
	wg.Wait()
	close(fatalErrs)

	sink.Stop()
	loggerErr := <-loggerDone

	if recErr != nil {
		return recErr
	}
	for err := range fatalErrs {
		if err != nil {
			return err
		}
	}
	return loggerErr
}
