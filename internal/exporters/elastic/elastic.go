// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package elastic stores parsed trap events in Elasticsearch clusters.
package elastic

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	elasticsearch7 "github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esutil"
	"github.com/google/uuid"

	"github.com/platformbuilds/traprouter/internal/tlsconfig"
)

// TLSConfig configures HTTPS access to the cluster nodes.
type TLSConfig = tlsconfig.Config

// Config configures the document store. Each entry of Clusters is the node
// list of one independent replica set; every document is written to all of
// them.
type Config struct {
	Clusters [][]string    `yaml:"clusters"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
	TLS      TLSConfig     `yaml:"tls"`
}

// clientLogger adapts slog to the estransport.Logger interface.
type clientLogger slog.Logger

func (cl *clientLogger) LogRoundTrip(req *http.Request, resp *http.Response, err error, _ time.Time, dur time.Duration) error {
	l := (*slog.Logger)(cl)
	switch {
	case err == nil && resp != nil:
		l.Debug("request roundtrip completed",
			"path", req.URL.Path,
			"method", req.Method,
			"duration", dur,
			"status", resp.Status)
	case err != nil:
		l.Error("request failed", "error", err)
	}
	return nil
}

func (*clientLogger) RequestBodyEnabled() bool  { return false }
func (*clientLogger) ResponseBodyEnabled() bool { return false }

// Cluster writes documents to one replica set.
type Cluster struct {
	name   string
	client *elasticsearch7.Client
	now    func() time.Time
	newID  func() string
}

// NewClusters creates one Cluster per configured replica set.
func NewClusters(cfg Config, log *slog.Logger) ([]*Cluster, error) {
	out := make([]*Cluster, 0, len(cfg.Clusters))
	for i, addrs := range cfg.Clusters {
		c, err := NewCluster(fmt.Sprintf("cluster-%d", i), addrs, cfg, log)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// NewCluster creates a client for the given node addresses.
func NewCluster(name string, addresses []string, cfg Config, log *slog.Logger) (*Cluster, error) {
	if log == nil {
		log = slog.Default()
	}
	if len(addresses) == 0 {
		return nil, fmt.Errorf("elastic %s: no addresses", name)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	tlsCfg, err := tlsconfig.New(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("elastic %s: failed to build TLS config: %w", name, err)
	}

	client, err := elasticsearch7.NewClient(elasticsearch7.Config{
		Addresses: addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig:       tlsCfg,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: cfg.Timeout,
		},
		DisableRetry: true,
		Logger:       (*clientLogger)(log.With("component", "elastic", "cluster", name)),
	})
	if err != nil {
		return nil, fmt.Errorf("elastic %s: %w", name, err)
	}
	return &Cluster{
		name:   name,
		client: client,
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

// Name identifies the cluster in logs and metrics.
func (c *Cluster) Name() string { return c.name }

// Create stores doc under a fresh id in the daily index derived from index.
func (c *Cluster) Create(ctx context.Context, index string, doc map[string]any) error {
	res, err := c.client.Create(
		DailyIndex(index, c.now()),
		c.newID(),
		esutil.NewJSONReader(doc),
		c.client.Create.WithContext(ctx),
		c.client.Create.WithRefresh("true"),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create document: %s", res.String())
	}
	return nil
}

// DailyIndex returns "<base>-YYYY.MM.DD" for the UTC date of t.
func DailyIndex(base string, t time.Time) string {
	return base + "-" + t.UTC().Format("2006.01.02")
}
