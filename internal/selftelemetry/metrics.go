// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package selftelemetry exposes traprouter's own metrics.
package selftelemetry

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the self metrics of one process.
type Registry struct {
	reg *prometheus.Registry

	Traps       *prometheus.CounterVec
	SinkCalls   *prometheus.CounterVec
	SinkLatency *prometheus.HistogramVec
	ProcessTime prometheus.Histogram

	ready atomic.Bool
}

// NewRegistry creates and registers all metrics under namespace.
func NewRegistry(namespace string) *Registry {
	if namespace == "" {
		namespace = "traprouter"
	}
	r := &Registry{reg: prometheus.NewRegistry()}
	r.Traps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "traps_total",
		Help: "Processed traps by outcome.",
	}, []string{"outcome", "group"})
	r.SinkCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "sink_calls_total",
		Help: "Sink calls by sink kind, target and result.",
	}, []string{"sink", "target", "result"})
	r.SinkLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "sink_latency_seconds",
		Help: "Latency of sink calls.", Buckets: prometheus.DefBuckets,
	}, []string{"sink"})
	r.ProcessTime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "trap_processing_seconds",
		Help: "End to end processing time of one trap.", Buckets: prometheus.DefBuckets,
	})
	r.reg.MustRegister(r.Traps, r.SinkCalls, r.SinkLatency, r.ProcessTime)
	return r
}

// ObserveTrap counts one processed trap.
func (r *Registry) ObserveTrap(outcome, group string, d time.Duration) {
	if r == nil {
		return
	}
	r.Traps.WithLabelValues(outcome, group).Inc()
	r.ProcessTime.Observe(d.Seconds())
}

// ObserveSink records one sink call.
func (r *Registry) ObserveSink(kind, target string, d time.Duration, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.SinkCalls.WithLabelValues(kind, target, result).Inc()
	r.SinkLatency.WithLabelValues(kind).Observe(d.Seconds())
}

// SetReady flips the /readyz state.
func (r *Registry) SetReady(v bool) { r.ready.Store(v) }
