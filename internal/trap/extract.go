// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package trap

import (
	"fmt"
	"regexp"
	"strings"
)

// HeaderMarker identifies the transport header line of a snmptrapd dump,
// e.g. "UDP: [10.0.0.5]:50123->[10.0.0.1]:162".
const HeaderMarker = "UDP"

// typedValue strips the "= TYPE:" marker net-snmp prints in front of
// varbind values in its verbose output.
var typedValue = regexp.MustCompile(`^=\s*(?:[A-Za-z][A-Za-z0-9 -]*:\s*)?`)

type prefix struct {
	raw string
	re  *regexp.Regexp
}

// Extractor turns a raw trap dump into Event Text: header lines are kept
// and varbind lines are rewritten to "oid: <id> value: <value>".
type Extractor struct {
	noise    []*regexp.Regexp
	prefixes []prefix
}

// NewExtractor compiles the noise and identifier prefix patterns.
func NewExtractor(noise, prefixes []string) (*Extractor, error) {
	e := &Extractor{}
	for _, p := range noise {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("noise field %q: %w", p, err)
		}
		e.noise = append(e.noise, re)
	}
	for _, p := range prefixes {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("oid prefix %q: %w", p, err)
		}
		e.prefixes = append(e.prefixes, prefix{raw: p, re: re})
	}
	return e, nil
}

// Extract normalizes raw into Event Text. Line order is preserved.
func (e *Extractor) Extract(raw string) string {
	var b strings.Builder
	for _, line := range splitLines(raw) {
		if strings.Contains(line, HeaderMarker) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		if e.isNoise(line) {
			continue
		}
		if loc := e.firstPrefix(line); loc != nil {
			b.WriteString(rewrite(line, loc))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// firstPrefix returns the leftmost identifier prefix match in line. On a tie
// the prefix configured first wins. A prefix that only shows up inside the
// value never shadows the identifier in front of it.
func (e *Extractor) firstPrefix(line string) []int {
	var best []int
	for _, p := range e.prefixes {
		loc := p.re.FindStringIndex(line)
		if loc == nil {
			continue
		}
		if best == nil || loc[0] < best[0] {
			best = loc
		}
	}
	return best
}

func (e *Extractor) isNoise(line string) bool {
	for _, re := range e.noise {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// rewrite replaces the prefix found at loc with "oid: " and separates the
// identifier from its value.
func rewrite(line string, loc []int) string {
	rest := line[loc[1]:]
	id, value, found := strings.Cut(rest, " ")
	if !found {
		id, value, _ = strings.Cut(rest, "\t")
	}
	value = strings.TrimSpace(value)
	value = typedValue.ReplaceAllString(value, "")
	value = strings.ReplaceAll(value, `"`, "")
	return line[:loc[0]] + "oid: " + id + " value: " + value
}

func splitLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(raw, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
