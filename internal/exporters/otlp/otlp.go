// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package otlp sets up the OTLP trace exporter used for traprouter's own
// processing spans.
package otlp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/credentials"

	"github.com/platformbuilds/traprouter/internal/tlsconfig"
)

const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// TLSConfig configures the exporter's client certificates.
type TLSConfig = tlsconfig.Config

// Config selects and addresses the trace exporter.
type Config struct {
	Enabled  bool              `yaml:"enabled"`
	Protocol string            `yaml:"protocol"`
	Endpoint string            `yaml:"endpoint"`
	URLPath  string            `yaml:"url_path"`
	Insecure bool              `yaml:"insecure"`
	Headers  map[string]string `yaml:"headers"`
	Timeout  time.Duration     `yaml:"timeout"`
	TLS      TLSConfig         `yaml:"tls"`
}

// ApplyEnv overrides cfg with the standard OTEL_EXPORTER_OTLP_* variables.
func ApplyEnv(cfg Config) Config {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	switch os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL") {
	case "grpc":
		cfg.Protocol = ProtocolGRPC
	case "http/protobuf", "http/json":
		cfg.Protocol = ProtocolHTTP
	}
	if headers := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); headers != "" {
		cfg.Headers = parseHeaders(headers)
	}
	return cfg
}

// parseHeaders parses "k1=v1,k2=v2".
func parseHeaders(s string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return headers
}

// Tracing holds the tracer provider and its shutdown hook.
type Tracing struct {
	Provider trace.TracerProvider
	close    func(context.Context) error
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.close == nil {
		return nil
	}
	return t.close(ctx)
}

// Resource describes this process to the collector.
func Resource(service, version string) *resource.Resource {
	return resource.NewSchemaless(
		attribute.String("service.name", service),
		attribute.String("service.version", version),
	)
}

// New builds a batching tracer provider. A disabled config yields a no-op
// provider so callers never need to branch.
func New(ctx context.Context, cfg Config, res *resource.Resource) (*Tracing, error) {
	if !cfg.Enabled {
		return &Tracing{Provider: noop.NewTracerProvider()}, nil
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("otlp: endpoint not set")
	}

	var exp sdktrace.SpanExporter
	switch cfg.Protocol {
	case ProtocolGRPC, "":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else {
			tc, err := tlsconfig.New(cfg.TLS)
			if err != nil {
				return nil, fmt.Errorf("otlp grpc tls: %w", err)
			}
			opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(tc)))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, otlptracegrpc.WithTimeout(cfg.Timeout))
		}
		e, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otlp grpc exporter: %w", err)
		}
		exp = e
	case ProtocolHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.URLPath != "" {
			opts = append(opts, otlptracehttp.WithURLPath(cfg.URLPath))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		} else if !cfg.TLS.IsZero() {
			tc, err := tlsconfig.New(cfg.TLS)
			if err != nil {
				return nil, fmt.Errorf("otlp http tls: %w", err)
			}
			opts = append(opts, otlptracehttp.WithTLSClientConfig(tc))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, otlptracehttp.WithTimeout(cfg.Timeout))
		}
		e, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otlp http exporter: %w", err)
		}
		exp = e
	default:
		return nil, fmt.Errorf("otlp: unknown protocol %q", cfg.Protocol)
	}

	popts := []sdktrace.TracerProviderOption{sdktrace.WithBatcher(exp)}
	if res != nil {
		popts = append(popts, sdktrace.WithResource(res))
	}
	tp := sdktrace.NewTracerProvider(popts...)
	return &Tracing{Provider: tp, close: tp.Shutdown}, nil
}
