// Package metrics exposes Prometheus instrumentation for the runtime, the
// sequencer and the RPC server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tolelom/gamescrow/vm"
)

const namespace = "gamescrow"

// Metrics owns a private registry so several nodes (or tests) can live in
// one process.
type Metrics struct {
	registry *prometheus.Registry

	instructions    *prometheus.CounterVec
	instructionTime *prometheus.HistogramVec
	errorCodes      *prometheus.CounterVec
	txs             *prometheus.CounterVec
	slotDuration    prometheus.Histogram
	slotHeight      prometheus.Gauge
	mempoolSize     prometheus.Gauge
	rpcRequests     *prometheus.CounterVec
	rpcLatency      *prometheus.HistogramVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vm",
			Name:      "instructions_total",
			Help:      "Processed instructions segmented by program, instruction and outcome.",
		}, []string{"program", "instruction", "outcome"}),
		instructionTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vm",
			Name:      "instruction_duration_seconds",
			Help:      "Time spent inside program Process calls.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}, []string{"program", "instruction"}),
		errorCodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vm",
			Name:      "program_errors_total",
			Help:      "Program errors segmented by program and numeric error code.",
		}, []string{"program", "code"}),
		txs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sequencer",
			Name:      "transactions_total",
			Help:      "Settled transactions segmented by status.",
		}, []string{"status"}),
		slotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sequencer",
			Name:      "slot_duration_seconds",
			Help:      "Time to execute and commit a slot.",
			Buckets:   prometheus.DefBuckets,
		}),
		slotHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sequencer",
			Name:      "slot_height",
			Help:      "Number of the latest committed slot.",
		}),
		mempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sequencer",
			Name:      "mempool_size",
			Help:      "Pending transactions after the latest slot.",
		}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "JSON-RPC requests segmented by method and outcome.",
		}, []string{"method", "outcome"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for JSON-RPC handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.instructions,
		m.instructionTime,
		m.errorCodes,
		m.txs,
		m.slotDuration,
		m.slotHeight,
		m.mempoolSize,
		m.rpcRequests,
		m.rpcLatency,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveInstruction implements vm.Observer.
func (m *Metrics) ObserveInstruction(program, instruction string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		if code := vm.ErrorCode(err); code != 0 {
			m.errorCodes.WithLabelValues(program, strconv.FormatUint(uint64(code), 10)).Inc()
		}
	}
	m.instructions.WithLabelValues(program, instruction, outcome).Inc()
	m.instructionTime.WithLabelValues(program, instruction).Observe(elapsed.Seconds())
}

// ObserveSlot records one committed slot.
func (m *Metrics) ObserveSlot(number uint64, confirmed, failed, pending int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.txs.WithLabelValues("confirmed").Add(float64(confirmed))
	m.txs.WithLabelValues("failed").Add(float64(failed))
	m.slotDuration.Observe(elapsed.Seconds())
	m.slotHeight.Set(float64(number))
	m.mempoolSize.Set(float64(pending))
}

// ObserveRPC records one JSON-RPC call.
func (m *Metrics) ObserveRPC(method string, failed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if failed {
		outcome = "error"
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
	m.rpcLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}
