// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal keeps append-only, size-rotated diagnostic records of
// every processed trap, one file per record kind.
package journal

import (
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Kind selects the file a record goes to.
type Kind string

const (
	Trap            Kind = "snmptrap"
	EventText       Kind = "event"
	ParsedEvent     Kind = "parsed_event"
	TrapException   Kind = "snmptrap_exception"
	ParsedException Kind = "parsed_event_exception"
	Error           Kind = "error"
)

// TimeFormat is the record timestamp layout; milliseconds are appended.
const TimeFormat = "2006.01.02 15:04:05.000"

// Config controls where and how records are kept. An empty Directory
// disables the journal.
type Config struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Journal writes records. The zero value and a nil *Journal drop records.
type Journal struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	writers map[Kind]io.WriteCloser
}

// New creates a Journal. Files are opened on first use.
func New(cfg Config) *Journal {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	return &Journal{cfg: cfg, now: time.Now, writers: make(map[Kind]io.WriteCloser)}
}

// Path returns the file that holds records of kind.
func (j *Journal) Path(kind Kind) string {
	return filepath.Join(j.cfg.Directory, string(kind)+".log")
}

// Record appends one record. body is terminated with a newline if needed.
func (j *Journal) Record(kind Kind, body string) error {
	if j == nil || j.cfg.Directory == "" {
		return nil
	}
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	var b strings.Builder
	b.WriteString(j.now().Format(TimeFormat))
	b.WriteByte(' ')
	b.WriteString(strings.ToUpper(string(kind)))
	b.WriteByte('\n')
	b.WriteString(body)

	j.mu.Lock()
	defer j.mu.Unlock()
	w, ok := j.writers[kind]
	if !ok {
		w = &lumberjack.Logger{
			Filename:   j.Path(kind),
			MaxSize:    j.cfg.MaxSizeMB,
			MaxBackups: j.cfg.MaxBackups,
		}
		j.writers[kind] = w
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Close closes every opened file.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	var err error
	for k, w := range j.writers {
		err = multierr.Append(err, w.Close())
		delete(j.writers, k)
	}
	return err
}
