// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the traprouter YAML configuration and
// converts it into the runtime types of the trap and dispatch packages.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/platformbuilds/traprouter/internal/dispatch"
	"github.com/platformbuilds/traprouter/internal/exporters/elastic"
	"github.com/platformbuilds/traprouter/internal/exporters/otlp"
	"github.com/platformbuilds/traprouter/internal/exporters/zabbix"
	"github.com/platformbuilds/traprouter/internal/journal"
	"github.com/platformbuilds/traprouter/internal/rdns"
	"github.com/platformbuilds/traprouter/internal/selftelemetry"
	"github.com/platformbuilds/traprouter/internal/snmp"
	"github.com/platformbuilds/traprouter/internal/trap"
)

// Config is the root of the configuration file.
type Config struct {
	MatchPolicy   string               `yaml:"match_policy"`
	Trap          TrapConfig           `yaml:"trap"`
	Sources       []Source             `yaml:"sources"`
	Dispatch      []dispatch.Entry     `yaml:"dispatch"`
	Elastic       elastic.Config       `yaml:"elastic"`
	Zabbix        zabbix.Config        `yaml:"zabbix"`
	Resolver      rdns.Config          `yaml:"resolver"`
	Journal       journal.Config       `yaml:"journal"`
	Log           LogConfig            `yaml:"log"`
	Listener      snmp.Config          `yaml:"listener"`
	SelfTelemetry selftelemetry.Config `yaml:"self_telemetry"`
	Tracing       otlp.Config          `yaml:"tracing"`
	Watch         WatcherConfig        `yaml:"watch"`
}

// TrapConfig drives Event Text extraction and raw suppression.
type TrapConfig struct {
	NoiseFields   []string `yaml:"noise_fields"`
	OIDPrefixes   []string `yaml:"oid_prefixes"`
	RawExceptions []string `yaml:"raw_exceptions"`
}

// Source is a group of system definitions sharing one dispatch entry.
type Source struct {
	Group   string   `yaml:"group"`
	Systems []System `yaml:"systems"`
}

type System struct {
	Name   string  `yaml:"name"`
	Fields []Field `yaml:"fields"`
	Rules  Rules   `yaml:"rules"`
}

type Field struct {
	Name string `yaml:"name"`
	OID  string `yaml:"oid"`
}

type Rules struct {
	Substitutions []Substitution  `yaml:"substitutions"`
	Exceptions    [][]Requirement `yaml:"exceptions"`
}

type Substitution struct {
	Field   string        `yaml:"field"`
	Replace []Replacement `yaml:"replace"`
}

type Replacement struct {
	Pattern string `yaml:"pattern"`
	Value   string `yaml:"value"`
}

type Requirement struct {
	Field    string `yaml:"field"`
	Contains string `yaml:"contains"`
}

// LogConfig selects the process log handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SlogLevel maps Level to a slog level; unknown values yield info.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

var (
	defaultNoiseFields = []string{
		"<UNKNOWN>",
		"SNMP-COMMUNITY-MIB::snmpTrap",
		"SNMPv2-MIB::snmpTrap",
		"DISMAN-EVENT-MIB",
	}
	defaultOIDPrefixes = []string{
		"iso.",
		"SNMPv2-SMI::enterprises.",
		"SNMPv2-SMI::experimental.",
	}
)

// Load reads path, applies defaults and returns the configuration. It does
// not validate; call Validate for that.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes a YAML document. Unknown keys are rejected.
func Parse(b []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.MatchPolicy == "" {
		c.MatchPolicy = trap.FirstMatch.String()
	}
	if c.Trap.NoiseFields == nil {
		c.Trap.NoiseFields = defaultNoiseFields
	}
	if c.Trap.OIDPrefixes == nil {
		c.Trap.OIDPrefixes = defaultOIDPrefixes
	}
	if c.Zabbix.Port == 0 {
		c.Zabbix.Port = zabbix.DefaultPort
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Listener.ListenAddress == "" {
		c.Listener.ListenAddress = snmp.DefaultListenAddress
	}
	if c.SelfTelemetry.Listen == "" {
		c.SelfTelemetry.Listen = ":19090"
	}
	if c.Tracing.Protocol == "" {
		c.Tracing.Protocol = otlp.ProtocolGRPC
	}
	if c.Resolver.Enabled == nil {
		on := true
		c.Resolver.Enabled = &on
	}
	if c.Watch.PollInterval == 0 {
		c.Watch.PollInterval = DefaultWatcherConfig().PollInterval
	}
}

// Validate reports every problem found, not just the first.
func (c *Config) Validate() error {
	var err error
	if _, perr := trap.ParsePolicy(c.MatchPolicy); perr != nil {
		err = multierr.Append(err, perr)
	}
	if _, xerr := c.Extractor(); xerr != nil {
		err = multierr.Append(err, xerr)
	}
	systems, serr := c.Systems()
	err = multierr.Append(err, serr)
	if serr == nil {
		if _, merr := trap.NewMatcher(systems, trap.FirstMatch, nil); merr != nil {
			err = multierr.Append(err, merr)
		}
	}
	err = multierr.Append(err, c.validateDispatch())

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		err = multierr.Append(err, fmt.Errorf("log: unknown format %q", c.Log.Format))
	}
	var lvl slog.Level
	if lerr := lvl.UnmarshalText([]byte(c.Log.Level)); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("log: %w", lerr))
	}
	err = multierr.Append(err, c.Listener.Validate())
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		err = multierr.Append(err, errors.New("tracing: endpoint not set"))
	}
	return err
}

func (c *Config) validateDispatch() error {
	var err error
	groups := map[string]bool{dispatch.Fallback: true}
	for _, s := range c.Sources {
		groups[s.Group] = true
	}
	seen := map[string]bool{}
	needElastic, needZabbix := false, false
	for i, e := range c.Dispatch {
		switch {
		case e.Source == "":
			err = multierr.Append(err, fmt.Errorf("dispatch[%d]: source not set", i))
			continue
		case seen[e.Source]:
			err = multierr.Append(err, fmt.Errorf("dispatch[%d]: duplicate source %q", i, e.Source))
		case !groups[e.Source]:
			err = multierr.Append(err, fmt.Errorf("dispatch[%d]: source %q matches no group", i, e.Source))
		}
		seen[e.Source] = true
		needElastic = needElastic || len(e.Indices) > 0
		needZabbix = needZabbix || len(e.Metrics) > 0
		for j, m := range e.Metrics {
			if m.Host == "" || m.Key == "" {
				err = multierr.Append(err, fmt.Errorf("dispatch[%d].zabbix[%d]: host and key are required", i, j))
			}
		}
	}
	if needElastic && len(c.Elastic.Clusters) == 0 {
		err = multierr.Append(err, errors.New("elastic: dispatch writes documents but no clusters are configured"))
	}
	for i, cl := range c.Elastic.Clusters {
		if len(cl) == 0 {
			err = multierr.Append(err, fmt.Errorf("elastic: cluster %d has no addresses", i))
		}
	}
	if needZabbix && c.Zabbix.Server == "" {
		err = multierr.Append(err, errors.New("zabbix: dispatch pushes metrics but no server is configured"))
	}
	return err
}

// Policy returns the configured match policy.
func (c *Config) Policy() (trap.Policy, error) {
	return trap.ParsePolicy(c.MatchPolicy)
}

// Extractor compiles the extraction patterns.
func (c *Config) Extractor() (*trap.Extractor, error) {
	return trap.NewExtractor(c.Trap.NoiseFields, c.Trap.OIDPrefixes)
}

// RawExceptions returns the raw suppression substrings.
func (c *Config) RawExceptions() trap.RawExceptions {
	return trap.RawExceptions(c.Trap.RawExceptions)
}

// Systems flattens the sources into system definitions in declaration
// order, compiling each system's rules.
func (c *Config) Systems() ([]trap.SystemDefinition, error) {
	var (
		out []trap.SystemDefinition
		err error
	)
	for i, src := range c.Sources {
		if src.Group == "" {
			err = multierr.Append(err, fmt.Errorf("sources[%d]: group not set", i))
		}
		if src.Group == dispatch.Fallback {
			err = multierr.Append(err, fmt.Errorf("sources[%d]: group %q is reserved", i, dispatch.Fallback))
		}
		for j, sys := range src.Systems {
			where := fmt.Sprintf("sources[%d].systems[%d]", i, j)
			if sys.Name == "" {
				err = multierr.Append(err, fmt.Errorf("%s: name not set", where))
			}
			if len(sys.Fields) == 0 {
				err = multierr.Append(err, fmt.Errorf("%s: no fields", where))
			}
			rules, rerr := sys.Rules.compile()
			if rerr != nil {
				err = multierr.Append(err, fmt.Errorf("%s: %w", where, rerr))
				continue
			}
			def := trap.SystemDefinition{Group: src.Group, Name: sys.Name, Rules: rules}
			for _, f := range sys.Fields {
				def.Fields = append(def.Fields, trap.FieldDef{Name: f.Name, OID: f.OID})
			}
			out = append(out, def)
		}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r Rules) compile() (*trap.RuleSet, error) {
	subs := make([]trap.SubstitutionDef, 0, len(r.Substitutions))
	for _, s := range r.Substitutions {
		def := trap.SubstitutionDef{Field: s.Field}
		for _, rep := range s.Replace {
			def.Replace = append(def.Replace, trap.Replacement{Pattern: rep.Pattern, Value: rep.Value})
		}
		subs = append(subs, def)
	}
	exceptions := make([]trap.Exception, 0, len(r.Exceptions))
	for _, reqs := range r.Exceptions {
		var ex trap.Exception
		for _, req := range reqs {
			ex = append(ex, trap.Requirement{Field: req.Field, Contains: req.Contains})
		}
		exceptions = append(exceptions, ex)
	}
	return trap.NewRuleSet(subs, exceptions)
}
