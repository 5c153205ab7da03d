package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deskpilot_http_requests_total",
		Help: "HTTP requests served, by route and status code",
	}, []string{"route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deskpilot_http_request_duration_seconds",
		Help:    "HTTP request latency, by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	plansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deskpilot_plans_total",
		Help: "Planning requests, by outcome",
	}, []string{"outcome"})

	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deskpilot_actions_total",
		Help: "Actions executed, by type and result",
	}, []string{"type", "ok"})
)

func metricsHandler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument wraps a handler with request counting and latency observation.
func instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		requestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func recordPlan(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	plansTotal.WithLabelValues(outcome).Inc()
}

func recordAction(actionType string, ok bool) {
	actionsTotal.WithLabelValues(actionType, strconv.FormatBool(ok)).Inc()
}
