// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import "github.com/platformbuilds/traprouter/internal/trap"

// Outcome classifies what happened to a trap.
type Outcome int

const (
	// Success means a system matched and the event was dispatched.
	Success Outcome = iota
	// NoMatch means no system matched; the fallback entry received the
	// Event Text.
	NoMatch
	// RawSuppressed means the raw text contained a raw exception substring.
	RawSuppressed
	// ParsedSuppressed means an exception of the matched system held.
	ParsedSuppressed
	// SinkFailure means a sink call failed and dispatch was aborted.
	SinkFailure
)

var outcomeNames = [...]string{
	Success:          "success",
	NoMatch:          "no_match",
	RawSuppressed:    "raw_suppressed",
	ParsedSuppressed: "parsed_suppressed",
	SinkFailure:      "sink_failure",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// Result is the outcome of processing one trap.
type Result struct {
	Outcome Outcome
	// Dispatched counts completed sink calls.
	Dispatched int
	// Event is nil for raw suppressed traps.
	Event *trap.Event
	// Exception names what suppressed the trap: the raw substring or the
	// index of the exception definition.
	Exception string
	Err       error
}
