// metrics.go: Prometheus instrumentation for the copilot engine and its HTTP API
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package metrics exposes engine activity as Prometheus metrics: switcher
// commands and their latency, engine events, log buffer counters and HTTP
// traffic.
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/copilot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "copilot"

// observedEvents are the engine events counted by Observe. The log categories
// are left out so that buffered diagnostics stay retained for real consumers.
var observedEvents = []copilot.EventKind{
	copilot.EventStarted,
	copilot.EventStopped,
	copilot.EventStateChanged,
	copilot.EventConfigUpdated,
	copilot.EventConfigReset,
	copilot.EventMappingChanged,
	copilot.EventPaletteChanged,
}

// Metrics groups the collectors registered by New.
type Metrics struct {
	registry prometheus.Registerer
	gatherer prometheus.Gatherer

	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	eventsTotal     *prometheus.CounterVec
	busChanges      *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg uses a
// fresh private registry, which is what Handler then serves.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		gatherer: reg,
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "switcher_commands_total",
			Help:      "Switcher commands sent, by command and result",
		}, []string{"command", "result"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "switcher_command_duration_seconds",
			Help:      "Time spent handing a command to the switcher client",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"command"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Engine events emitted, by kind",
		}, []string{"kind"}),
		busChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_changes_total",
			Help:      "Normalized routing changes observed, by bus or path",
		}, []string{"bus"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_inflight_requests",
			Help:      "HTTP requests in flight",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.commandsTotal, m.commandDuration, m.eventsTotal, m.busChanges,
		m.httpRequestsTotal, m.httpRequestDuration, m.httpInflight,
	} {
		if err := registerCollector(reg, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Observe counts engine events and registers gauges reading the engine's
// lifecycle, uptime, mapping size and log buffer counters. The returned
// function removes the event subscriptions.
func (m *Metrics) Observe(c *copilot.Copilot) (func(), error) {
	cancels := make([]func(), 0, len(observedEvents)+1)
	for _, kind := range observedEvents {
		counter := m.eventsTotal.WithLabelValues(string(kind))
		cancels = append(cancels, c.On(kind, func(copilot.Event) { counter.Inc() }))
	}
	cancels = append(cancels, c.On(copilot.EventStateChanged, func(ev copilot.Event) {
		for _, change := range ev.Changes {
			m.busChanges.WithLabelValues(change.Path).Inc()
		}
	}))
	cancel := func() {
		for _, fn := range cancels {
			fn()
		}
	}

	if err := registerCollector(m.registry, newEngineCollector(c)); err != nil {
		cancel()
		return nil, err
	}
	return cancel, nil
}

// WithMetrics instruments an HTTP handler with request counters, latency and
// an in-flight gauge.
func (m *Metrics) WithMetrics(next http.Handler) http.Handler {
	if next == nil {
		return nil
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.ToUpper(r.Method)
		path := normalizePath(r.URL.Path)

		m.httpInflight.Inc()
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			m.httpInflight.Dec()
			m.httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(rec, r)
	})
}

// registerCollector registers collector on reg, ignoring duplicates.
func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes connection takeover through for websocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// normalizePath replaces numeric segments so that per-input routes share one
// label value.
func normalizePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, seg := range segments {
		if _, err := strconv.Atoi(seg); err == nil {
			segments[i] = ":input"
		}
	}
	return "/" + strings.Join(segments, "/")
}
