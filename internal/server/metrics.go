package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics owns a private registry so several servers (and tests) can coexist
// in one process. It also receives analytics view timings from the engine.
type Metrics struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	viewDuration *prometheus.HistogramVec
	viewTasks    *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sprintlens",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "status"}),
		viewDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sprintlens",
			Name:      "view_duration_seconds",
			Help:      "Time spent loading and reducing tasks for an analytics view.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"view"}),
		viewTasks: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sprintlens",
			Name:      "view_tasks",
			Help:      "Number of tasks reduced per analytics view.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"view"}),
	}
}

func (m *Metrics) ObserveView(view string, tasks int, elapsed time.Duration) {
	m.viewDuration.WithLabelValues(view).Observe(elapsed.Seconds())
	m.viewTasks.WithLabelValues(view).Observe(float64(tasks))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// instrument counts every request and logs it once the status is known.
// The route label is chi's matched pattern so ids do not explode cardinality.
func instrument(m *Metrics, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
