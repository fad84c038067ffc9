// Package metrics exports pipeline, compositor and HTTP timings to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wardrobe/internal/domain"
)

const namespace = "wardrobe"

// Recorder implements derivation.Observer and compositor.Observer.
type Recorder struct {
	registry *prometheus.Registry

	stepDuration   *prometheus.HistogramVec
	stepErrors     *prometheus.CounterVec
	jobs           *prometheus.CounterVec
	jobDuration    prometheus.Histogram
	renderDuration *prometheus.HistogramVec
	renders        *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "derivation",
			Name:      "step_duration_seconds",
			Help:      "Duration of each derivation step.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"step"}),
		stepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "derivation",
			Name:      "step_errors_total",
			Help:      "Derivation steps that returned an error.",
		}, []string{"step"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "derivation",
			Name:      "jobs_total",
			Help:      "Finished derivation jobs by terminal status and error kind.",
		}, []string{"status", "kind"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "derivation",
			Name:      "job_duration_seconds",
			Help:      "End to end derivation time.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		renderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "compositor",
			Name:      "render_duration_seconds",
			Help:      "Snapshot render time by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"op"}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compositor",
			Name:      "renders_total",
			Help:      "Snapshot operations by outcome.",
		}, []string{"op", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	r.registry.MustRegister(
		r.stepDuration, r.stepErrors, r.jobs, r.jobDuration,
		r.renderDuration, r.renders,
		r.httpRequests, r.httpDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return r
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RegisterQueueDepth publishes the number of jobs waiting in the dispatcher.
func (r *Recorder) RegisterQueueDepth(pending func() int) {
	r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "derivation",
		Name:      "queue_depth",
		Help:      "Jobs accepted but not yet picked up by a worker.",
	}, func() float64 { return float64(pending()) }))
}

func (r *Recorder) ObserveStep(step string, d time.Duration, err error) {
	r.stepDuration.WithLabelValues(step).Observe(d.Seconds())
	if err != nil {
		r.stepErrors.WithLabelValues(step).Inc()
	}
}

func (r *Recorder) ObserveJob(status domain.Status, kind string, d time.Duration) {
	r.jobs.WithLabelValues(string(status), kind).Inc()
	r.jobDuration.Observe(d.Seconds())
}

func (r *Recorder) ObserveRender(op string, d time.Duration, err error) {
	r.renderDuration.WithLabelValues(op).Observe(d.Seconds())
	result := "ok"
	if err != nil {
		result = domain.ErrorKind(err)
	}
	r.renders.WithLabelValues(op, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Middleware records request counts and latency labelled by the chi route
// pattern, so path parameters do not explode label cardinality.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.httpRequests.WithLabelValues(req.Method, route, strconv.Itoa(status)).Inc()
		r.httpDuration.WithLabelValues(req.Method, route).Observe(time.Since(start).Seconds())
	})
}
