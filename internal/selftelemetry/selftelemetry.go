// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package selftelemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/expfmt"
)

// Config controls how self metrics leave the process.
type Config struct {
	// Listen is the /metrics, /healthz and /readyz address of the listener mode.
	Listen    string `yaml:"listen"`
	Namespace string `yaml:"namespace"`
	// Pushgateway receives the metrics of a one-shot run when set.
	Pushgateway string `yaml:"pushgateway"`
	Job         string `yaml:"job"`
	// PushFormat is "protobuf" (default) or "text".
	PushFormat string `yaml:"push_format"`
}

// InstallHandlers registers the telemetry endpoints on mux.
func InstallHandlers(mux *http.ServeMux, r *Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if r.ready.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})
}

// Push sends the registry to the configured pushgateway. It is a no-op
// without a pushgateway URL.
func Push(ctx context.Context, cfg Config, r *Registry) error {
	if cfg.Pushgateway == "" {
		return nil
	}
	job := cfg.Job
	if job == "" {
		job = "traprouter"
	}
	p := push.New(cfg.Pushgateway, job).Gatherer(r.reg)
	switch cfg.PushFormat {
	case "", "protobuf":
		p = p.Format(expfmt.NewFormat(expfmt.TypeProtoDelim))
	case "text":
		p = p.Format(expfmt.NewFormat(expfmt.TypeTextPlain))
	default:
		return fmt.Errorf("unknown push format %q", cfg.PushFormat)
	}
	if err := p.AddContext(ctx); err != nil {
		return fmt.Errorf("pushgateway %s: %w", cfg.Pushgateway, err)
	}
	return nil
}
