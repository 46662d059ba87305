package metrics

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ansel1/tfagg/results"
)

const (
	MetricsNamespace = "tfagg"
)

// Recorder counts aggregated results into its own Prometheus registry.
// It is a results.ResultSink, so it can be attached to a Collector.
type Recorder struct {
	registry *prometheus.Registry
	log      log.Logger

	testResults  *prometheus.CounterVec
	infraErrors  *prometheus.CounterVec
	testDuration *prometheus.HistogramVec
	moduleTotal  *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with a fresh registry.
func NewRecorder(logger log.Logger) *Recorder {
	if logger == nil {
		logger = log.New("component", "metrics")
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		log:      logger,
		testResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "test_results_total",
			Help:      "Count of test results by runner, module and status",
		}, []string{
			"runner",
			"module",
			"status",
		}),
		infraErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "infra_errors_total",
			Help:      "Count of event stream errors by class",
		}, []string{
			"class",
		}),
		testDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Name:      "test_duration_seconds",
			Help:      "Duration of individual tests",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{
			"runner",
			"module",
		}),
		moduleTotal: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "module_expected_tests",
			Help:      "Number of tests announced by the module's runs",
		}, []string{
			"module",
		}),
	}
}

// Accept implements results.ResultSink.
func (r *Recorder) Accept(res results.TestResult) {
	r.log.Debug("metric inc",
		"m", "test_results_total",
		"runner", res.RunnerName,
		"module", res.GroupName,
		"status", res.Status)
	r.testResults.WithLabelValues(res.RunnerName, res.GroupName, string(res.Status)).Inc()

	// Invocation-level errors carry no timing
	if res.TestName != "" && res.TestTime != "" {
		r.testDuration.WithLabelValues(res.RunnerName, res.GroupName).Observe(res.Elapsed.Seconds())
	}
}

// RecordInfraError counts an event stream error under its class, keeping
// test and event names out of the label values.
func (r *Recorder) RecordInfraError(err error) {
	if err == nil {
		return
	}
	r.infraErrors.WithLabelValues(string(results.Classify(err))).Inc()
}

// RecordRun sets the per-module gauges from a finished run.
func (r *Recorder) RecordRun(run *results.Run) {
	for _, name := range run.GroupOrder {
		g := run.Groups[name]
		r.moduleTotal.WithLabelValues(name).Set(float64(g.ExpectedTests))
	}
}

// Registry exposes the recorder's registry, e.g. for an HTTP handler.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes all metrics to path in the text exposition format,
// for pickup by the node exporter's textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
