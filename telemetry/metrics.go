// Package telemetry collects Prometheus metrics for quick-start runs and
// exports them in the node_exporter text file format.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/YuminosukeSato/forestkit/pkg/errors"
)

const namespace = "forestkit"

// Metrics holds the collectors for a single run. Each Metrics owns its
// registry, so runs in the same process do not share series.
type Metrics struct {
	registry *prometheus.Registry

	StageDuration *prometheus.GaugeVec // seconds spent per stage
	FoldAccuracy  *prometheus.GaugeVec // accuracy per CV fold
	CVMean        prometheus.Gauge
	CVSpread      prometheus.Gauge
	TestAccuracy  prometheus.Gauge
	Confidence    prometheus.Histogram // confidence of sample predictions
	RunsTotal     prometheus.Counter
	RunFailures   *prometheus.CounterVec // failures by error code
}

// New creates metrics registered on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		StageDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each quick-start stage",
		}, []string{"stage"}),
		FoldAccuracy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cv_fold_accuracy",
			Help:      "Held-out accuracy of each cross-validation fold",
		}, []string{"fold"}),
		CVMean: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cv_accuracy_mean",
			Help:      "Mean cross-validation accuracy",
		}),
		CVSpread: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cv_accuracy_spread",
			Help:      "Two population standard deviations of the fold accuracies",
		}),
		TestAccuracy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "test_accuracy",
			Help:      "Accuracy on the held-out test subset",
		}),
		Confidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_confidence",
			Help:      "Maximum class probability of sample predictions",
			Buckets:   []float64{0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99, 1.0},
		}),
		RunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of quick-start runs",
		}),
		RunFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_failures_total",
			Help:      "Quick-start runs that failed, by error code",
		}, []string{"code"}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Set(d.Seconds())
}

// StartStage returns a function that records the time elapsed since the call.
//
//	done := m.StartStage("fit")
//	defer done()
func (m *Metrics) StartStage(stage string) func() {
	start := time.Now()
	return func() { m.ObserveStage(stage, time.Since(start)) }
}

// ObserveCV records the fold scores and their summary.
func (m *Metrics) ObserveCV(scores []float64, mean, spread float64) {
	for i, s := range scores {
		m.FoldAccuracy.WithLabelValues(strconv.Itoa(i + 1)).Set(s)
	}
	m.CVMean.Set(mean)
	m.CVSpread.Set(spread)
}

// ObserveFailure counts a failed run under its error code.
func (m *Metrics) ObserveFailure(err error) {
	m.RunFailures.WithLabelValues(errors.Code(err)).Inc()
}

// WriteToTextfile writes every collected series to path, replacing it
// atomically.
func (m *Metrics) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Wrapf(err, "failed to write metrics to %s", path)
	}
	return nil
}
