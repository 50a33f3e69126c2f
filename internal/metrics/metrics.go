// Package metrics exposes Prometheus collectors for the processor service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	detectStageTotal           *prometheus.CounterVec
	detectStageDurationSeconds *prometheus.HistogramVec
	detectRunsTotal            *prometheus.CounterVec
	scrapeTotal                *prometheus.CounterVec
	eventsPublishedTotal       *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	analyzeInflight            prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		detectStageTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "detect_stage_total",
				Help: "Total pipeline stage executions, labeled by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		)

		detectStageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "detect_stage_duration_seconds",
				Help:    "Histogram of pipeline stage latencies, labeled by stage.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		)

		detectRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "detect_runs_total",
				Help: "Total pipeline runs, labeled by terminal outcome.",
			},
			[]string{"outcome"},
		)

		scrapeTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_total",
				Help: "Total preview scrape attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		eventsPublishedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_published_total",
				Help: "Total progress events published to subscribers, labeled by result.",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)

		analyzeInflight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "analyze_inflight",
				Help: "Number of analyze pipelines currently running.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStage records one pipeline stage execution.
func ObserveStage(stage string, ok bool, duration time.Duration) {
	if detectStageTotal == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	detectStageTotal.WithLabelValues(stage, outcome).Inc()
	detectStageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObservePipeline records a terminal pipeline outcome.
func ObservePipeline(outcome string) {
	if detectRunsTotal == nil {
		return
	}
	detectRunsTotal.WithLabelValues(outcome).Inc()
}

// ObserveScrape records the outcome of one scrape attempt.
func ObserveScrape(outcome string) {
	if scrapeTotal == nil {
		return
	}
	scrapeTotal.WithLabelValues(outcome).Inc()
}

// ObserveEventPublish records a relay publish attempt result
// (delivered, dropped, or no_subscriber).
func ObserveEventPublish(result string) {
	if eventsPublishedTotal == nil {
		return
	}
	eventsPublishedTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncAnalyzeInflight increments the in-flight analyze gauge.
func IncAnalyzeInflight() {
	if analyzeInflight != nil {
		analyzeInflight.Inc()
	}
}

// DecAnalyzeInflight decrements the in-flight analyze gauge.
func DecAnalyzeInflight() {
	if analyzeInflight != nil {
		analyzeInflight.Dec()
	}
}
