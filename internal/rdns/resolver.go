// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package rdns resolves trap source addresses to host names.
package rdns

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Config controls reverse lookups of trap sources.
type Config struct {
	// Enabled turns reverse lookups on. When disabled the address itself is
	// used as host name. Default: true
	Enabled *bool `yaml:"enabled"`
	// CacheLen is the max number of cached address->name entries. Default: 256
	CacheLen int `yaml:"cache_len"`
	// CacheTTL is how long a cached entry is trusted. Default: 1h
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// IsEnabled reports whether lookups are on; an unset Enabled means on.
func (c Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

var netLookupAddr = net.DefaultResolver.LookupAddr

// Resolver performs cached reverse lookups. It is safe for concurrent use.
type Resolver struct {
	enabled bool
	cache   *expirable.LRU[string, string]
	sf      singleflight.Group
	lookup  func(ctx context.Context, addr string) ([]string, error)
	log     *slog.Logger
}

// New creates a Resolver from cfg.
func New(cfg Config, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	if cfg.CacheLen <= 0 {
		cfg.CacheLen = 256
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &Resolver{
		enabled: cfg.IsEnabled(),
		cache:   expirable.NewLRU[string, string](cfg.CacheLen, nil, cfg.CacheTTL),
		lookup:  netLookupAddr,
		log:     log.With("component", "rdns"),
	}
}

// Resolve returns the first name registered for addr, or addr itself when
// lookups are disabled or fail.
func (r *Resolver) Resolve(ctx context.Context, addr string) string {
	if !r.enabled || addr == "" {
		return addr
	}
	if name, ok := r.cache.Get(addr); ok {
		return name
	}

	result, _, _ := r.sf.Do(addr, func() (interface{}, error) {
		if name, ok := r.cache.Get(addr); ok {
			return name, nil
		}
		name := addr
		names, err := r.lookup(ctx, addr)
		switch {
		case err != nil:
			r.log.Debug("reverse lookup failed", "addr", addr, "error", err)
		case len(names) > 0:
			name = strings.TrimSuffix(names[0], ".")
		}
		r.cache.Add(addr, name)
		return name, nil
	})
	return result.(string)
}
