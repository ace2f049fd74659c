// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package zabbix pushes trap text to Zabbix trapper items.
package zabbix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	gozabbix "github.com/adubkov/go-zabbix"
)

// DefaultPort is the Zabbix trapper port.
const DefaultPort = 10051

// Config addresses the Zabbix server or proxy.
type Config struct {
	Server string `yaml:"server"`
	Port   int    `yaml:"port"`
}

type sender interface {
	Send(packet *gozabbix.Packet) ([]byte, error)
}

// Sender pushes one metric per call.
type Sender struct {
	server string
	sender sender
	log    *slog.Logger
}

// ErrRejected is returned when the server accepted the connection but did
// not process the item, e.g. because the host or key is unknown.
var ErrRejected = errors.New("item rejected by zabbix")

// New creates a Sender for cfg.
func New(cfg Config, log *slog.Logger) (*Sender, error) {
	if cfg.Server == "" {
		return nil, errors.New("zabbix: server not set")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sender{
		server: cfg.Server + ":" + strconv.Itoa(cfg.Port),
		sender: gozabbix.NewSender(cfg.Server, cfg.Port),
		log:    log.With("component", "zabbix"),
	}, nil
}

// Send pushes value to the trapper item key on host.
func (s *Sender) Send(ctx context.Context, host, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	packet := gozabbix.NewPacket([]*gozabbix.Metric{gozabbix.NewMetric(host, key, value)})
	raw, err := s.sender.Send(packet)
	if err != nil {
		return fmt.Errorf("send to %s: %w", s.server, err)
	}
	resp, err := parseResponse(raw)
	if err != nil {
		return fmt.Errorf("send to %s: %w", s.server, err)
	}
	s.log.Debug("zabbix response", "host", host, "key", key, "info", resp.Info)
	if resp.Response != "success" || resp.failed() > 0 {
		return fmt.Errorf("%w: %s", ErrRejected, resp.Info)
	}
	return nil
}

// response is the JSON body of a trapper reply.
type response struct {
	Response string `json:"response"`
	Info     string `json:"info"`
}

var failedCount = regexp.MustCompile(`failed: (\d+)`)

func (r response) failed() int {
	m := failedCount.FindStringSubmatch(r.Info)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// headerLen is "ZBXD", the protocol flags byte and the 8 byte length.
const headerLen = 13

func parseResponse(raw []byte) (response, error) {
	var r response
	if len(raw) < headerLen || !bytes.HasPrefix(raw, []byte("ZBXD")) {
		return r, fmt.Errorf("malformed response (%d bytes)", len(raw))
	}
	if err := json.Unmarshal(raw[headerLen:], &r); err != nil {
		return r, fmt.Errorf("decode response: %w", err)
	}
	return r, nil
}
