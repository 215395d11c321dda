package health

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Prometheus collectors for the engine's domain-level activity
// (SPEC_FULL.md §2 component K): device session state, poll latency,
// command queue depth, tally throughput, and command-port connection
// accounting. Registered at package init so any importer of internal/health
// gets them on the default registry without extra wiring.
var (
	DeviceSessionsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "camera_engine_device_sessions",
		Help: "Number of device sessions currently in each connection state.",
	}, []string{"state"})

	PollLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "camera_engine_poll_latency_seconds",
		Help:    "Latency of device parameter-group polls.",
		Buckets: prometheus.DefBuckets,
	})

	CommandQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camera_engine_command_queue_depth",
		Help: "Current depth of the device session command queue, summed across sessions.",
	})

	TallyFramesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camera_engine_tally_frames_processed_total",
		Help: "Total UMD frames successfully parsed and applied.",
	})

	TallyFramesMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camera_engine_tally_frames_malformed_total",
		Help: "Total UMD datagrams dropped for failing to parse.",
	})

	CommandPortConnections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camera_engine_command_port_connections_total",
		Help: "Command-port TCP connection attempts, by outcome.",
	}, []string{"outcome"}) // "accepted" | "rejected"
)

// HostMetrics is a point-in-time snapshot of process-host resource usage,
// collected via gopsutil/v3 (SPEC_FULL.md Domain Stack: gopsutil reused
// for host health metrics).
type HostMetrics struct {
	CPUPercent float64
	MemPercent float64
	SampledAt  time.Time
}

// SampleHostMetrics reads current CPU and memory utilization. A short
// blocking CPU sample (cpu.Percent's interval) is acceptable here since
// it only runs when /health/detailed is requested, not on a hot path.
func SampleHostMetrics() HostMetrics {
	snap := HostMetrics{SampledAt: time.Now()}

	if pcts, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(pcts) > 0 {
		snap.CPUPercent = pcts[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemPercent = vm.UsedPercent
	}
	return snap
}
