package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultNamespace = "speedtest"

	// Download modes.
	ModeBounded   = "bounded"
	ModeUnbounded = "unbounded"

	// Stream outcomes.
	OutcomeCompleted = "completed"
	OutcomeClosed    = "closed"
	OutcomeFailed    = "failed"
)

// Recorder is what the data plane modules report transfers to.
type Recorder interface {
	StreamStarted(direction string)
	ObserveDownload(mode string, outcome string, bytes uint64)
	ObserveUpload(outcome string, bytes uint64, elapsed time.Duration)
}

// Noop discards every observation.
type Noop struct{}

func (Noop) StreamStarted(string)                        {}
func (Noop) ObserveDownload(string, string, uint64)      {}
func (Noop) ObserveUpload(string, uint64, time.Duration) {}

// TransferCollector keeps server side transfer counters and exposes them via
// Prometheus compatible collectors.
type TransferCollector struct {
	namespace string
	registry  *prometheus.Registry

	active         *prometheus.GaugeVec
	downloadBytes  prometheus.Counter
	uploadBytes    prometheus.Counter
	downloads      *prometheus.CounterVec
	uploads        *prometheus.CounterVec
	uploadDuration prometheus.Histogram
}

// NewTransferCollector creates a collector and wires up prometheus collectors.
func NewTransferCollector(namespace string) *TransferCollector {
	if strings.TrimSpace(namespace) == "" {
		namespace = defaultNamespace
	}

	c := &TransferCollector{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
	}
	c.registerMetrics()
	return c
}

// Registry returns the prometheus registry managed by this collector.
func (c *TransferCollector) Registry() *prometheus.Registry {
	return c.registry
}

// StreamStarted marks a new download or upload stream as in flight. The
// matching Observe call releases it.
func (c *TransferCollector) StreamStarted(direction string) {
	c.active.WithLabelValues(direction).Inc()
}

// ObserveDownload records a finished download stream.
func (c *TransferCollector) ObserveDownload(mode string, outcome string, bytes uint64) {
	c.active.WithLabelValues("download").Dec()
	c.downloads.WithLabelValues(mode, outcome).Inc()
	c.downloadBytes.Add(float64(bytes))
}

// ObserveUpload records a finished upload stream. Elapsed is only meaningful
// for completed uploads.
func (c *TransferCollector) ObserveUpload(outcome string, bytes uint64, elapsed time.Duration) {
	c.active.WithLabelValues("upload").Dec()
	c.uploads.WithLabelValues(outcome).Inc()
	c.uploadBytes.Add(float64(bytes))
	if outcome == OutcomeCompleted {
		c.uploadDuration.Observe(elapsed.Seconds())
	}
}

func (c *TransferCollector) registerMetrics() {
	c.active = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Name:      "active_streams",
		Help:      "Download and upload streams currently in flight.",
	}, []string{"direction"})

	c.downloadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: c.namespace,
		Name:      "download_bytes_total",
		Help:      "Payload bytes written to download clients.",
	})

	c.uploadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: c.namespace,
		Name:      "upload_bytes_total",
		Help:      "Body bytes consumed from upload clients.",
	})

	c.downloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.namespace,
		Name:      "downloads_total",
		Help:      "Finished download streams by mode and outcome.",
	}, []string{"mode", "outcome"})

	c.uploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.namespace,
		Name:      "uploads_total",
		Help:      "Finished upload streams by outcome.",
	}, []string{"outcome"})

	c.uploadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: c.namespace,
		Name:      "upload_duration_seconds",
		Help:      "Time spent consuming completed upload bodies.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	c.registry.MustRegister(
		c.active,
		c.downloadBytes,
		c.uploadBytes,
		c.downloads,
		c.uploads,
		c.uploadDuration,
	)
}
