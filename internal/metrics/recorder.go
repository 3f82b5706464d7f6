// Package metrics records run metrics on a private Prometheus registry and
// writes them as a node_exporter textfile.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/smazurov/stereocap/internal/events"
	"github.com/smazurov/stereocap/internal/logging"
)

const namespace = "stereocap"

// Recorder holds the gauges for one run.
type Recorder struct {
	registry *prometheus.Registry
	logger   logging.Logger
	textfile string

	exitCode    prometheus.Gauge
	duration    prometheus.Gauge
	outputBytes prometheus.Gauge
	position    prometheus.Gauge
	lastSuccess prometheus.Gauge

	mu     sync.Mutex
	unsubs []func()
}

// NewRecorder creates a recorder. textfile may be empty, in which case
// Finish only updates the in-memory gauges.
func NewRecorder(textfile string, logger logging.Logger) *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		logger:   logger,
		textfile: textfile,
		exitCode: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "exit_code",
			Help:      "Exit code of the last capture run",
		}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Wall time of the last capture run",
		}),
		outputBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_bytes",
			Help:      "Size of the output file",
		}),
		position: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "position_seconds",
			Help:      "Last position reported by progressreport",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that exited 0",
		}),
	}
}

// Registry exposes the private registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Attach subscribes the recorder to progress and growth events on bus.
func (r *Recorder) Attach(bus *events.Bus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubs = append(r.unsubs,
		bus.Subscribe(func(e events.PipelineProgressEvent) {
			if e.Unit == "seconds" {
				r.position.Set(float64(e.Position))
			}
		}),
		bus.Subscribe(func(e events.OutputGrowthEvent) {
			r.outputBytes.Set(float64(e.Bytes))
		}),
	)
}

// Detach removes all event subscriptions.
func (r *Recorder) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}

// Finish records the final values of a run and writes the textfile when one
// is configured.
func (r *Recorder) Finish(e events.RunFinishedEvent) error {
	r.Detach()

	r.exitCode.Set(float64(e.ExitCode))
	r.duration.Set(e.DurationSeconds)
	if e.OutputExists {
		r.outputBytes.Set(float64(e.OutputBytes))
	} else {
		r.outputBytes.Set(0)
	}
	if e.ExitCode == 0 {
		r.lastSuccess.Set(float64(time.Now().Unix()))
	}

	if r.textfile == "" {
		return nil
	}
	if err := WriteTextfile(r.textfile, r.registry); err != nil {
		r.logger.Warn("Failed to write metrics textfile", "path", r.textfile, "error", err)
		return err
	}
	r.logger.Debug("Metrics textfile written", "path", r.textfile)
	return nil
}
