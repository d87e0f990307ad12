// Package metrics exposes Prometheus instrumentation for the pipeline:
// queue depth, worker state, HEC forward results, and decode errors.
//
// The example relay instrumented itself with the standard library's
// expvar; this rewrite upgrades to github.com/prometheus/client_golang
// (pulled in for this exercise from etalazz-vsa's stack), which is the
// ecosystem-standard choice for a service meant to be scraped and
// alerted on rather than just introspected with /debug/vars.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsReceived counts datagrams the Receiver has enqueued.
	PacketsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "freeflow_packets_received_total",
		Help: "UDP datagrams received and enqueued by the Receiver.",
	})

	// QueueDepth reports the current Packet Queue length.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "freeflow_packet_queue_depth",
		Help: "Current number of buffered packets awaiting a Worker.",
	})

	// DecodeErrors counts NetFlow decode failures by reason.
	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freeflow_decode_errors_total",
		Help: "NetFlow v5 datagrams dropped by decode failure reason.",
	}, []string{"reason"})

	// WorkerState reports each worker's current state as a 0/1 gauge
	// per (worker, state) pair, so a dashboard can show state over time.
	WorkerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "freeflow_worker_state",
		Help: "1 if the worker is currently in this state, else 0.",
	}, []string{"worker", "state"})

	// HECForwards counts shipment attempts per endpoint and result.
	HECForwards = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freeflow_hec_forwards_total",
		Help: "HEC shipment attempts by endpoint and result.",
	}, []string{"endpoint", "result"})

	// HECRequeues counts packets put back on the Packet Queue after a
	// failed or rejected shipment.
	HECRequeues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freeflow_hec_requeues_total",
		Help: "Packets requeued after a failed or rejected HEC shipment.",
	}, []string{"endpoint", "reason"})

	// StartTime records the process start time as a Unix timestamp.
	StartTime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "freeflow_start_time_seconds",
		Help: "Unix timestamp of process start.",
	})

	// BuildInfo carries the version string as a label on a constant 1.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "freeflow_build_info",
		Help: "Always 1; version is carried as a label.",
	}, []string{"version"})
)

// Init sets the process-level metrics that are only ever written once,
// at startup.
func Init(version string) {
	StartTime.Set(float64(time.Now().Unix()))
	BuildInfo.WithLabelValues(version).Set(1)
}

// SetWorkerState flips the gauge for (worker, state) to 1 and every
// other known state for that worker to 0, so exactly one state is lit
// per worker at a time.
func SetWorkerState(worker string, state string, allStates []string) {
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		WorkerState.WithLabelValues(worker, s).Set(v)
	}
}
