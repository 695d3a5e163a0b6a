package metrics

import (
	"net/http"
	"time"

	"github.com/davidahmann/strix/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultNamespace = "strix"

// Recorder tracks evaluation, reload and decision log outcomes. It satisfies
// policy.Observer.
//
// Metrics:
//   - <ns>_evaluations_total{decision}
//   - <ns>_evaluation_duration_seconds
//   - <ns>_reloads_total{result}
//   - <ns>_policy_loaded_timestamp_seconds
//   - <ns>_decision_log_appends_total{result}
type Recorder struct {
	registry *prometheus.Registry
	now      func() time.Time

	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	reloadsTotal       *prometheus.CounterVec
	policyLoaded       prometheus.Gauge
	logAppendsTotal    *prometheus.CounterVec
}

// NewRecorder registers the metrics with registry, or with a fresh registry
// carrying the Go and process collectors when registry is nil.
func NewRecorder(namespace string, registry *prometheus.Registry) *Recorder {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	r := &Recorder{
		registry: registry,
		now:      time.Now,
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of policy evaluations by verdict",
			},
			[]string{"decision"},
		),
		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of policy evaluation including the reload check",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 18),
			},
		),
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reloads_total",
				Help:      "Total number of policy reload attempts by result",
			},
			[]string{"result"},
		),
		policyLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "policy_loaded_timestamp_seconds",
				Help:      "Unix time the active policy table was loaded",
			},
		),
		logAppendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decision_log_appends_total",
				Help:      "Total number of decision log writes by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		r.evaluationsTotal,
		r.evaluationDuration,
		r.reloadsTotal,
		r.policyLoaded,
		r.logAppendsTotal,
	)
	for _, v := range []types.Verdict{types.VerdictAllow, types.VerdictRequireApproval, types.VerdictDeny} {
		r.evaluationsTotal.WithLabelValues(string(v))
	}
	return r
}

func (r *Recorder) ObserveEvaluation(verdict types.Verdict, elapsed time.Duration) {
	r.evaluationsTotal.WithLabelValues(string(verdict)).Inc()
	r.evaluationDuration.Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveReload(_ string, err error) {
	if err != nil {
		r.reloadsTotal.WithLabelValues("failure").Inc()
		return
	}
	r.reloadsTotal.WithLabelValues("success").Inc()
	r.PolicyLoaded()
}

// PolicyLoaded stamps the load gauge with the current time.
func (r *Recorder) PolicyLoaded() {
	r.policyLoaded.Set(float64(r.now().UnixNano()) / float64(time.Second))
}

func (r *Recorder) ObserveLogAppend(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.logAppendsTotal.WithLabelValues(result).Inc()
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
