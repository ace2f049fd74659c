// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package version carries build metadata stamped with -ldflags -X.
package version

import "fmt"

var (
	version   = "unknown"
	commit    = "unknown"
	buildDate = "unknown"
)

func Version() string   { return version }
func Commit() string    { return commit }
func BuildDate() string { return buildDate }

// String is the one-line form printed by "traprouter version".
func String() string {
	return fmt.Sprintf("traprouter %s (commit %s, built %s)", version, commit, buildDate)
}
