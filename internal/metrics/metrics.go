package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chunkscribe"

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

// Recorder collects the metrics of one process. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	segments             *prometheus.CounterVec
	files                *prometheus.CounterVec
	transcriptionLatency prometheus.Histogram
	splitLatency         prometheus.Histogram
	retries              prometheus.Counter
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		segments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Segments attempted, by outcome.",
		}, []string{"status"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Input files processed, by outcome.",
		}, []string{"status"}),
		transcriptionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_latency_seconds",
			Help:      "Latency of single segment transcription calls.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		splitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "split_latency_seconds",
			Help:      "Time spent splitting one input file into segments.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_retries_total",
			Help:      "Transcription attempts beyond the first one.",
		}),
	}

	r.registry.MustRegister(r.segments, r.files, r.transcriptionLatency, r.splitLatency, r.retries)
	return r
}

func (r *Recorder) SegmentFinished(status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.segments.WithLabelValues(status).Inc()
	if status != StatusSkipped {
		r.transcriptionLatency.Observe(elapsed.Seconds())
	}
}

func (r *Recorder) FileFinished(status string) {
	if r == nil {
		return
	}
	r.files.WithLabelValues(status).Inc()
}

func (r *Recorder) SplitFinished(elapsed time.Duration) {
	if r == nil {
		return
	}
	r.splitLatency.Observe(elapsed.Seconds())
}

func (r *Recorder) Retried() {
	if r == nil {
		return
	}
	r.retries.Inc()
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// WriteTextfile writes the metrics in the node exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.Gatherer()); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
