// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package trap turns snmptrapd text dumps into field maps keyed against
// known system signatures and evaluates cleanup and suppression rules.
package trap

// Event is the parsed form of one trap.
type Event struct {
	// Group is the source group of the current system, empty when no
	// system matched.
	Group string
	// System is the name of the current system definition.
	System string
	// Host is the resolved name of the trap source.
	Host   string
	Fields *Fields
	// Text is the Event Text the fields were extracted from.
	Text string
}

// Empty reports whether no identifier matched.
func (e *Event) Empty() bool {
	return e == nil || e.Fields.Len() == 0
}
