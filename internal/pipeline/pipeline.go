// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline runs one trap through extraction, matching, rules and
// dispatch, and reports what happened as a Result.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platformbuilds/traprouter/internal/journal"
	"github.com/platformbuilds/traprouter/internal/trap"
)

// Dispatcher fans a parsed event out to the sinks.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev *trap.Event) (int, error)
}

// Recorder keeps diagnostic records.
type Recorder interface {
	Record(kind journal.Kind, body string) error
}

// Metrics observes processed traps.
type Metrics interface {
	ObserveTrap(outcome, group string, d time.Duration)
}

// Options carries the immutable components a Pipeline is built from.
type Options struct {
	RawExceptions trap.RawExceptions
	Extractor     *trap.Extractor
	Matcher       *trap.Matcher
	Router        Dispatcher
	Journal       Recorder
	Metrics       Metrics
	Logger        *slog.Logger
}

// Pipeline processes traps. It holds no per-trap state and may be shared.
type Pipeline struct {
	raw       trap.RawExceptions
	extractor *trap.Extractor
	matcher   *trap.Matcher
	router    Dispatcher
	journal   Recorder
	metrics   Metrics
	tracer    trace.Tracer
	log       *slog.Logger
}

// New creates a Pipeline from opts.
func New(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		raw:       opts.RawExceptions,
		extractor: opts.Extractor,
		matcher:   opts.Matcher,
		router:    opts.Router,
		journal:   opts.Journal,
		metrics:   opts.Metrics,
		tracer:    otel.Tracer("github.com/platformbuilds/traprouter/internal/pipeline"),
		log:       opts.Logger.With("component", "pipeline"),
	}
}

// Process handles one full trap dump.
func (p *Pipeline) Process(ctx context.Context, raw string) Result {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "trap.process")
	defer span.End()

	res := p.process(ctx, raw)

	span.SetAttributes(
		attribute.String("trap.outcome", res.Outcome.String()),
		attribute.Int("trap.dispatched", res.Dispatched),
	)
	group := ""
	if res.Event != nil && res.Event.Group != "" {
		group = res.Event.Group
		span.SetAttributes(
			attribute.String("trap.group", res.Event.Group),
			attribute.String("trap.system", res.Event.System),
		)
	}
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	if p.metrics != nil {
		p.metrics.ObserveTrap(res.Outcome.String(), group, time.Since(start))
	}
	return res
}

func (p *Pipeline) process(ctx context.Context, raw string) Result {
	p.record(journal.Trap, raw)

	if s, ok := p.raw.Match(raw); ok {
		p.record(journal.TrapException, raw)
		p.log.Info("trap suppressed", "exception", s)
		return Result{Outcome: RawSuppressed, Exception: s}
	}

	text := p.extractor.Extract(raw)
	p.record(journal.EventText, text)

	sys, ev := p.matcher.Match(ctx, text)
	if sys != nil {
		sys.Rules.Apply(ev.Fields)
		if idx, ok := sys.Rules.Suppressed(ev.Fields); ok {
			p.record(journal.ParsedException, fieldsJSON(ev.Fields))
			p.log.Info("event suppressed", "system", sys.Name, "exception", idx)
			return Result{Outcome: ParsedSuppressed, Event: ev, Exception: strconv.Itoa(idx)}
		}
	}

	outcome := NoMatch
	if !ev.Empty() {
		outcome = Success
		p.record(journal.ParsedEvent, fieldsJSON(ev.Fields))
	}

	n, err := p.router.Dispatch(ctx, ev)
	if err != nil {
		p.record(journal.Error, err.Error()+"\n"+raw)
		p.log.Error("dispatch failed", "group", ev.Group, "dispatched", n, "error", err)
		return Result{Outcome: SinkFailure, Dispatched: n, Event: ev, Err: err}
	}
	p.log.Debug("trap dispatched", "outcome", outcome.String(), "group", ev.Group, "system", ev.System, "dispatched", n)
	return Result{Outcome: outcome, Dispatched: n, Event: ev}
}

func (p *Pipeline) record(kind journal.Kind, body string) {
	if p.journal == nil {
		return
	}
	if err := p.journal.Record(kind, body); err != nil {
		p.log.Warn("journal write failed", "kind", kind, "error", err)
	}
}

func fieldsJSON(f *trap.Fields) string {
	b, err := json.Marshal(f)
	if err != nil {
		return err.Error()
	}
	return string(b)
}
