// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package trap

import (
	"context"
	"fmt"
	"regexp"
)

// Policy selects which system becomes current when identifiers of several
// systems appear in one trap.
type Policy int

const (
	// FirstMatch makes the first system in configuration order with any
	// matching identifier current. Only its fields are extracted.
	FirstMatch Policy = iota
	// LastMatch extracts fields of every matching system; the last one
	// found during the scan is current.
	LastMatch
)

// ParsePolicy maps the configuration spelling to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "first":
		return FirstMatch, nil
	case "last":
		return LastMatch, nil
	}
	return FirstMatch, fmt.Errorf("unknown match policy %q", s)
}

func (p Policy) String() string {
	if p == LastMatch {
		return "last"
	}
	return "first"
}

// FieldDef maps a field name to the identifier pattern that carries it.
type FieldDef struct {
	Name string
	OID  string
}

// SystemDefinition is the signature of one device type.
type SystemDefinition struct {
	Group  string
	Name   string
	Fields []FieldDef
	Rules  *RuleSet
}

// Resolver turns the trap source address into a host name.
type Resolver interface {
	Resolve(ctx context.Context, addr string) string
}

var headerAddr = regexp.MustCompile(`UDP: \[(.+?)\]:`)

type compiledField struct {
	name string
	re   *regexp.Regexp
}

type compiledSystem struct {
	def    *SystemDefinition
	fields []compiledField
}

// Matcher identifies the originating system of a trap.
type Matcher struct {
	systems  []compiledSystem
	policy   Policy
	resolver Resolver
}

// NewMatcher precompiles "<oid> value: (.+)" for every field. resolver may
// be nil, in which case the raw source address is used as host name.
func NewMatcher(systems []SystemDefinition, policy Policy, resolver Resolver) (*Matcher, error) {
	m := &Matcher{policy: policy, resolver: resolver}
	for i := range systems {
		def := systems[i]
		cs := compiledSystem{def: &def}
		for _, f := range def.Fields {
			re, err := regexp.Compile(f.OID + " value: (.+)")
			if err != nil {
				return nil, fmt.Errorf("system %s field %q: %w", def.Name, f.Name, err)
			}
			cs.fields = append(cs.fields, compiledField{name: f.Name, re: re})
		}
		m.systems = append(m.systems, cs)
	}
	return m, nil
}

// Match scans text for every configured identifier. The returned system is
// nil when nothing matched.
func (m *Matcher) Match(ctx context.Context, text string) (*SystemDefinition, *Event) {
	ev := &Event{Fields: NewFields(), Text: text}
	var current *SystemDefinition
	hostResolved := false

	for _, sys := range m.systems {
		if m.policy == FirstMatch && current != nil {
			break
		}
		for _, f := range sys.fields {
			sub := f.re.FindStringSubmatch(text)
			if sub == nil {
				continue
			}
			if current != sys.def {
				current = sys.def
				if !hostResolved {
					ev.Host = m.host(ctx, text)
					hostResolved = true
				}
				if ev.Host != "" {
					ev.Fields.Set(sys.def.Group, ev.Host)
				}
			}
			ev.Fields.Set(f.name, sub[1])
		}
	}
	if current != nil {
		ev.Group = current.Group
		ev.System = current.Name
	}
	return current, ev
}

func (m *Matcher) host(ctx context.Context, text string) string {
	sub := headerAddr.FindStringSubmatch(text)
	if sub == nil {
		return ""
	}
	if m.resolver == nil {
		return sub[1]
	}
	return m.resolver.Resolve(ctx, sub[1])
}
