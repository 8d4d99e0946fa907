// Package metrics exposes request and dataset metrics in Prometheus format.
//
// All collectors live on a private registry so that tests and multiple
// servers in one process never collide on the global default registry.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aircrashes/internal/engine"
)

// Metrics holds the collectors of one server.
type Metrics struct {
	reg *prometheus.Registry

	requests *prometheus.CounterVec // "aircrashes_http_requests_total"
	duration *prometheus.SummaryVec // "aircrashes_http_request_duration_seconds"

	rows        prometheus.Gauge   // "aircrashes_dataset_rows"
	dropped     prometheus.Counter // "aircrashes_dataset_rows_dropped_total"
	loadSeconds prometheus.Gauge   // "aircrashes_dataset_load_seconds"
	loads       *prometheus.CounterVec
}

func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		reg: reg,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircrashes_http_requests_total",
				Help: "HTTP requests partitioned by route and status code.",
			},
			[]string{"route", "code"},
		),
		duration: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       "aircrashes_http_request_duration_seconds",
				Help:       "HTTP request latency in seconds, partitioned by route.",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			[]string{"route"},
		),
		rows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aircrashes_dataset_rows",
			Help: "Records in the currently published dataset.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aircrashes_dataset_rows_dropped_total",
			Help: "Source rows dropped because Year could not be parsed, over all loads.",
		}),
		loadSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aircrashes_dataset_load_seconds",
			Help: "Duration of the last successful dataset load.",
		}),
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircrashes_dataset_loads_total",
				Help: "Dataset loads partitioned by status (ok, error).",
			},
			[]string{"status"},
		),
	}

	for name, c := range map[string]prometheus.Collector{
		"requests counter": m.requests,
		"request summary":  m.duration,
		"rows gauge":       m.rows,
		"dropped counter":  m.dropped,
		"load gauge":       m.loadSeconds,
		"loads counter":    m.loads,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register %s: %w", name, err)
		}
	}
	return m, nil
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveLoad records the outcome of a dataset load.
func (m *Metrics) ObserveLoad(stats engine.LoadStats, err error) {
	if err != nil {
		m.loads.WithLabelValues("error").Inc()
		return
	}
	m.loads.WithLabelValues("ok").Inc()
	m.rows.Set(float64(stats.Kept))
	m.dropped.Add(float64(stats.DroppedYear))
	m.loadSeconds.Set(stats.Elapsed.Seconds())
}

// Middleware counts and times every request by its route pattern.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			// record the status the error handler actually wrote
			if err != nil && !c.Response().Committed {
				c.Error(err)
			}
			status := c.Response().Status
			m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
			m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
