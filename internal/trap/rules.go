// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package trap

import (
	"fmt"
	"regexp"
	"strings"
)

// Replacement is one search/replace pair. Value uses regexp.Expand syntax,
// so "$1" refers to the first capture group.
type Replacement struct {
	Pattern string
	Value   string
}

// SubstitutionDef applies Replace to every field whose name matches Field.
type SubstitutionDef struct {
	Field   string
	Replace []Replacement
}

// Requirement is satisfied when Field exists and contains Contains.
type Requirement struct {
	Field    string
	Contains string
}

// Exception suppresses an event when all of its requirements hold.
type Exception []Requirement

type replacement struct {
	re    *regexp.Regexp
	value string
}

type substitution struct {
	field   *regexp.Regexp
	replace []replacement
}

// RuleSet holds the compiled cleanup and suppression rules of a system.
type RuleSet struct {
	substitutions []substitution
	exceptions    []Exception
}

// NewRuleSet compiles substitution patterns. Exceptions without
// requirements are rejected since they would suppress every event.
func NewRuleSet(subs []SubstitutionDef, exceptions []Exception) (*RuleSet, error) {
	rs := &RuleSet{}
	for _, s := range subs {
		fre, err := regexp.Compile(s.Field)
		if err != nil {
			return nil, fmt.Errorf("substitution field %q: %w", s.Field, err)
		}
		compiled := substitution{field: fre}
		for _, r := range s.Replace {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("substitution pattern %q: %w", r.Pattern, err)
			}
			compiled.replace = append(compiled.replace, replacement{re: re, value: r.Value})
		}
		rs.substitutions = append(rs.substitutions, compiled)
	}
	for i, e := range exceptions {
		if len(e) == 0 {
			return nil, fmt.Errorf("exception %d has no requirements", i)
		}
		rs.exceptions = append(rs.exceptions, append(Exception(nil), e...))
	}
	return rs, nil
}

// Apply rewrites field values in place.
func (r *RuleSet) Apply(f *Fields) {
	if r == nil || f == nil {
		return
	}
	for _, s := range r.substitutions {
		for _, name := range f.Keys() {
			if !s.field.MatchString(name) {
				continue
			}
			value := f.values[name]
			for _, rp := range s.replace {
				value = rp.re.ReplaceAllString(value, rp.value)
			}
			f.values[name] = value
		}
	}
}

// Suppressed reports whether some exception matches f and returns its index.
func (r *RuleSet) Suppressed(f *Fields) (int, bool) {
	if r == nil {
		return -1, false
	}
	for i, e := range r.exceptions {
		satisfied := 0
		for _, req := range e {
			if v, ok := f.Get(req.Field); ok && strings.Contains(v, req.Contains) {
				satisfied++
			}
		}
		if satisfied == len(e) {
			return i, true
		}
	}
	return -1, false
}

// RawExceptions are substrings that drop a trap before it is parsed.
type RawExceptions []string

// Match returns the first substring contained in raw.
func (r RawExceptions) Match(raw string) (string, bool) {
	for _, s := range r {
		if s != "" && strings.Contains(raw, s) {
			return s, true
		}
	}
	return "", false
}
