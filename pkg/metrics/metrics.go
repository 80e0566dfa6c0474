package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

var (
	// Registry holds the scanner's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	fetchUnits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stockscanner",
			Subsystem: "fetch",
			Name:      "units_total",
			Help:      "Per-instrument fetch units by batch label and outcome.",
		},
		[]string{"batch", "outcome"},
	)

	tokenExchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stockscanner",
			Subsystem: "kis",
			Name:      "token_exchanges_total",
			Help:      "Credential exchanges against the upstream token endpoint.",
		},
		[]string{"success"},
	)

	workflowRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stockscanner",
			Subsystem: "workflow",
			Name:      "runs_total",
			Help:      "Top-level workflow invocations by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	workflowDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stockscanner",
			Subsystem: "workflow",
			Name:      "run_duration_seconds",
			Help:      "Duration of completed workflow runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
		},
		[]string{"kind"},
	)

	signalsDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stockscanner",
			Subsystem: "scan",
			Name:      "golden_cross_total",
			Help:      "Golden cross verdicts with signal=true.",
		},
	)
)

func init() {
	Registry.MustRegister(
		fetchUnits,
		tokenExchanges,
		workflowRuns,
		workflowDuration,
		signalsDetected,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordFetch counts one finished fetch unit.
func RecordFetch(batch string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	fetchUnits.WithLabelValues(batch, outcome).Inc()
}

// RecordTokenExchange counts one credential exchange attempt.
func RecordTokenExchange(ok bool) {
	success := "true"
	if !ok {
		success = "false"
	}
	tokenExchanges.WithLabelValues(success).Inc()
}

// RecordRun counts a workflow invocation; outcome is ok, failed or rejected.
func RecordRun(kind, outcome string, seconds float64) {
	workflowRuns.WithLabelValues(kind, outcome).Inc()
	if outcome == "ok" {
		workflowDuration.WithLabelValues(kind).Observe(seconds)
	}
}

// RecordSignal counts a detected crossover.
func RecordSignal() {
	signalsDetected.Inc()
}

// FetchCount reads the current fetch counter for a batch and outcome.
func FetchCount(batch, outcome string) float64 {
	return counterValue(fetchUnits.WithLabelValues(batch, outcome))
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
