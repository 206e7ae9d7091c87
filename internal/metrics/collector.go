// Package metrics exposes live ramp progress in the Prometheus text format.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FairForge/loginramp/internal/loadtest"
)

const namespace = "loginramp"

// Collector records sessions, levels and run outcomes. It satisfies
// loadtest.Observer and is safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	sessionsTotal    *prometheus.CounterVec
	sessionDuration  *prometheus.HistogramVec
	levelsTotal      prometheus.Counter
	levelConcurrency prometheus.Gauge
	levelSuccessRate prometheus.Gauge
	levelAvgSeconds  prometheus.Gauge
	levelP95Seconds  prometheus.Gauge
	criticalPoint    prometheus.Gauge
	maxStable        prometheus.Gauge
	runsTotal        *prometheus.CounterVec

	rateThreshold float64
}

// NewCollector creates a collector with its own registry. rateThreshold is
// the success rate at which a level counts as stable.
func NewCollector(rateThreshold float64) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	if rateThreshold <= 0 {
		rateThreshold = loadtest.DefaultRateThreshold
	}

	return &Collector{
		registry: reg,
		sessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Login sessions attempted, by result and error kind",
			},
			[]string{"result", "kind"},
		),
		sessionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Login session duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"concurrency"},
		),
		levelsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "levels_total",
			Help:      "Concurrency levels completed",
		}),
		levelConcurrency: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "level_concurrency",
			Help:      "Concurrency of the most recent level",
		}),
		levelSuccessRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "level_success_rate_percent",
			Help:      "Success rate of the most recent level",
		}),
		levelAvgSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "level_avg_response_seconds",
			Help:      "Average session response time of the most recent level",
		}),
		levelP95Seconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "level_p95_response_seconds",
			Help:      "95th percentile session response time of the most recent level",
		}),
		criticalPoint: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "critical_concurrency",
			Help:      "Critical concurrency of the last run, 0 when none was detected",
		}),
		maxStable: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_stable_concurrency",
			Help:      "Highest concurrency of the last run that met the success threshold",
		}),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Finished runs by stop reason",
			},
			[]string{"stop_reason"},
		),
		rateThreshold: rateThreshold,
	}
}

// ObserveSession records one finished session.
func (c *Collector) ObserveSession(concurrency int, r loadtest.SessionResult) {
	result := "failure"
	if r.Success {
		result = "success"
	}
	kind := r.ErrorKind
	if kind == "" {
		kind = loadtest.ErrorNone
	}
	c.sessionsTotal.WithLabelValues(result, string(kind)).Inc()
	c.sessionDuration.WithLabelValues(strconv.Itoa(concurrency)).Observe(r.ResponseTime.Seconds())
}

// ObserveLevel records a completed level.
func (c *Collector) ObserveLevel(l loadtest.LevelResult) {
	c.levelsTotal.Inc()
	c.levelConcurrency.Set(float64(l.Concurrency))
	c.levelSuccessRate.Set(l.SuccessRate)
	c.levelAvgSeconds.Set(l.AverageResponseTime.Seconds())
	c.levelP95Seconds.Set(l.P95ResponseTime.Seconds())
}

// ObserveRun records the outcome of a finished run.
func (c *Collector) ObserveRun(run *loadtest.TestRun) {
	c.runsTotal.WithLabelValues(string(run.StopReason)).Inc()
	c.maxStable.Set(float64(run.MaxStableConcurrency(c.rateThreshold)))
	if run.CriticalPoint != nil {
		c.criticalPoint.Set(float64(run.CriticalPoint.Concurrency))
	} else {
		c.criticalPoint.Set(0)
	}
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the HTTP handler for the metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

var _ loadtest.Observer = (*Collector)(nil)
