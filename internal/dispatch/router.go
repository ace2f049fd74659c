// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch fans parsed trap events out to document-store and
// metrics-collector sinks according to the dispatch table.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platformbuilds/traprouter/internal/trap"
)

// Fallback is the dispatch key used when no system matched.
const Fallback = "other"

const (
	// TimestampField is injected into every stored document.
	TimestampField = "@timestamp"
	// ClassField carries the fixed classification tag of stored documents.
	ClassField = "vision"
	// ClassValue is the classification tag value.
	ClassValue = "sys"
)

// Sink kinds reported to the Observer.
const (
	KindDocument = "elastic"
	KindMetric   = "zabbix"
)

// ErrNoSink is returned when an entry needs a sink that was not configured.
var ErrNoSink = errors.New("sink not configured")

// DocumentSink writes documents to one store cluster.
type DocumentSink interface {
	Name() string
	Create(ctx context.Context, index string, doc map[string]any) error
}

// MetricSink pushes one text sample to the metrics collector.
type MetricSink interface {
	Send(ctx context.Context, host, key, value string) error
}

// Observer is notified after every sink call.
type Observer interface {
	ObserveSink(kind, target string, d time.Duration, err error)
}

// MetricTarget is a (host, key) pair on the metrics collector.
type MetricTarget struct {
	Host string `yaml:"host"`
	Key  string `yaml:"key"`
}

// Entry routes events of one source group.
type Entry struct {
	Source  string         `yaml:"source"`
	Indices []string       `yaml:"elastic"`
	Metrics []MetricTarget `yaml:"zabbix"`
}

// Options tunes a Router.
type Options struct {
	Now      func() time.Time
	Observer Observer
	Logger   *slog.Logger
}

// Router evaluates the dispatch table for one event at a time.
type Router struct {
	entries  []Entry
	clusters []DocumentSink
	metrics  MetricSink
	now      func() time.Time
	observer Observer
	tracer   trace.Tracer
	log      *slog.Logger
}

// NewRouter creates a Router. clusters holds one sink per store replica set;
// metrics may be nil when no entry pushes metrics.
func NewRouter(entries []Entry, clusters []DocumentSink, metrics MetricSink, opts Options) *Router {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Router{
		entries:  append([]Entry(nil), entries...),
		clusters: clusters,
		metrics:  metrics,
		now:      opts.Now,
		observer: opts.Observer,
		tracer:   otel.Tracer("github.com/platformbuilds/traprouter/internal/dispatch"),
		log:      opts.Logger.With("component", "dispatch"),
	}
}

// Dispatch sends ev to every matching entry and returns the number of
// completed sink calls. The first failing call aborts the remaining ones;
// completed writes are kept.
func (r *Router) Dispatch(ctx context.Context, ev *trap.Event) (int, error) {
	sent := 0
	for _, e := range r.entries {
		switch {
		case !ev.Empty() && e.Source == ev.Group:
			if len(e.Indices) > 0 {
				doc := r.document(ev)
				for _, index := range e.Indices {
					if len(r.clusters) == 0 {
						return sent, fmt.Errorf("entry %s: document store: %w", e.Source, ErrNoSink)
					}
					for _, c := range r.clusters {
						if err := r.create(ctx, c, index, doc); err != nil {
							return sent, err
						}
						sent++
					}
				}
			}
			if len(e.Metrics) > 0 {
				n, err := r.push(ctx, e, ev.Fields.Format())
				sent += n
				if err != nil {
					return sent, err
				}
			}
		case ev.Empty() && e.Source == Fallback:
			n, err := r.push(ctx, e, ev.Text)
			sent += n
			if err != nil {
				return sent, err
			}
		}
	}
	return sent, nil
}

func (r *Router) document(ev *trap.Event) map[string]any {
	doc := make(map[string]any, ev.Fields.Len()+2)
	for _, k := range ev.Fields.Keys() {
		v, _ := ev.Fields.Get(k)
		doc[k] = v
	}
	doc[TimestampField] = r.now().Format(time.RFC3339Nano)
	doc[ClassField] = ClassValue
	return doc
}

func (r *Router) create(ctx context.Context, c DocumentSink, index string, doc map[string]any) error {
	ctx, span := r.tracer.Start(ctx, "elastic.create", trace.WithAttributes(
		attribute.String("elastic.cluster", c.Name()),
		attribute.String("elastic.index", index),
	))
	defer span.End()

	start := time.Now()
	err := c.Create(ctx, index, doc)
	r.observe(KindDocument, c.Name(), time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("elastic %s index %s: %w", c.Name(), index, err)
	}
	r.log.Debug("document stored", "cluster", c.Name(), "index", index)
	return nil
}

func (r *Router) push(ctx context.Context, e Entry, value string) (int, error) {
	if r.metrics == nil {
		return 0, fmt.Errorf("entry %s: metrics collector: %w", e.Source, ErrNoSink)
	}
	sent := 0
	for _, m := range e.Metrics {
		if err := r.send(ctx, m, value); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (r *Router) send(ctx context.Context, m MetricTarget, value string) error {
	ctx, span := r.tracer.Start(ctx, "zabbix.send", trace.WithAttributes(
		attribute.String("zabbix.host", m.Host),
		attribute.String("zabbix.key", m.Key),
	))
	defer span.End()

	target := m.Host + "/" + m.Key
	start := time.Now()
	err := r.metrics.Send(ctx, m.Host, m.Key, value)
	r.observe(KindMetric, target, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("zabbix %s: %w", target, err)
	}
	r.log.Debug("metric sent", "host", m.Host, "key", m.Key)
	return nil
}

func (r *Router) observe(kind, target string, d time.Duration, err error) {
	if r.observer != nil {
		r.observer.ObserveSink(kind, target, d, err)
	}
}
