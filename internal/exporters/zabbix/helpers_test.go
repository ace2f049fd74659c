// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package zabbix

import (
	"io"
	"log/slog"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
