// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.uber.org/multierr"

	"github.com/platformbuilds/traprouter/internal/config"
	"github.com/platformbuilds/traprouter/internal/dispatch"
	"github.com/platformbuilds/traprouter/internal/exporters/elastic"
	"github.com/platformbuilds/traprouter/internal/exporters/otlp"
	"github.com/platformbuilds/traprouter/internal/exporters/zabbix"
	"github.com/platformbuilds/traprouter/internal/journal"
	"github.com/platformbuilds/traprouter/internal/pipeline"
	"github.com/platformbuilds/traprouter/internal/rdns"
	"github.com/platformbuilds/traprouter/internal/selftelemetry"
	"github.com/platformbuilds/traprouter/internal/trap"
	"github.com/platformbuilds/traprouter/internal/version"
)

// app holds the process-wide pieces shared by every pipeline generation.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *selftelemetry.Registry
	journal *journal.Journal
	tracing *otlp.Tracing
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func setup(ctx context.Context, cfgPath string, stderr io.Writer) (*app, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg.Log, stderr)

	tr, err := otlp.New(ctx, otlp.ApplyEnv(cfg.Tracing), otlp.Resource("traprouter", version.Version()))
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	otel.SetTracerProvider(tr.Provider)

	return &app{
		cfg:     cfg,
		log:     log,
		metrics: selftelemetry.NewRegistry(cfg.SelfTelemetry.Namespace),
		journal: journal.New(cfg.Journal),
		tracing: tr,
	}, nil
}

func (a *app) close(ctx context.Context) error {
	return multierr.Combine(a.journal.Close(), a.tracing.Shutdown(ctx))
}

// buildPipeline constructs the immutable processing chain for cfg.
func (a *app) buildPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	extractor, err := cfg.Extractor()
	if err != nil {
		return nil, err
	}
	systems, err := cfg.Systems()
	if err != nil {
		return nil, err
	}
	var resolver trap.Resolver
	if cfg.Resolver.IsEnabled() {
		resolver = rdns.New(cfg.Resolver, a.log)
	}
	matcher, err := trap.NewMatcher(systems, policy, resolver)
	if err != nil {
		return nil, err
	}

	var sinks []dispatch.DocumentSink
	if len(cfg.Elastic.Clusters) > 0 {
		clusters, err := elastic.NewClusters(cfg.Elastic, a.log)
		if err != nil {
			return nil, err
		}
		for _, c := range clusters {
			sinks = append(sinks, c)
		}
	}
	var metrics dispatch.MetricSink
	if cfg.Zabbix.Server != "" {
		s, err := zabbix.New(cfg.Zabbix, a.log)
		if err != nil {
			return nil, err
		}
		metrics = s
	}

	router := dispatch.NewRouter(cfg.Dispatch, sinks, metrics, dispatch.Options{
		Observer: a.metrics,
		Logger:   a.log,
	})
	return pipeline.New(pipeline.Options{
		RawExceptions: cfg.RawExceptions(),
		Extractor:     extractor,
		Matcher:       matcher,
		Router:        router,
		Journal:       a.journal,
		Metrics:       a.metrics,
		Logger:        a.log,
	}), nil
}

// swappable lets the listener keep running while the configuration is
// reloaded underneath it.
type swappable struct {
	p atomic.Pointer[pipeline.Pipeline]
}

func (s *swappable) Process(ctx context.Context, raw string) pipeline.Result {
	return s.p.Load().Process(ctx, raw)
}
