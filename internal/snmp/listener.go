// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package snmp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/platformbuilds/traprouter/internal/pipeline"
)

// Processor handles one rendered trap.
type Processor interface {
	Process(ctx context.Context, raw string) pipeline.Result
}

// Listener receives traps and feeds them to a Processor one at a time.
type Listener struct {
	cfg   Config
	proc  Processor
	log   *slog.Logger
	local string
	tl    *gosnmp.TrapListener
	ready chan struct{}
}

// NewListener creates a listener for cfg.
func NewListener(cfg Config, proc Processor, log *slog.Logger) (*Listener, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	host, port, err := net.SplitHostPort(cfg.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("listen address %q: %w", cfg.ListenAddress, err)
	}
	if host == "" {
		host = "0.0.0.0"
	}

	tl := gosnmp.NewTrapListener()
	tl.Params = &gosnmp.GoSNMP{
		Version: gosnmp.Version2c,
		Timeout: 2 * time.Second,
		Retries: 1,
		MaxOids: gosnmp.MaxOids,
	}
	if len(cfg.V3Users) > 0 {
		sp, flags := securityParams(cfg.V3Users[0])
		tl.Params.Version = gosnmp.Version3
		tl.Params.SecurityModel = gosnmp.UserSecurityModel
		tl.Params.MsgFlags = flags
		tl.Params.SecurityParameters = sp
	}

	return &Listener{
		cfg:   cfg,
		proc:  proc,
		log:   log.With("component", "snmp-listener"),
		local: "[" + host + "]:" + port,
		tl:    tl,
		ready: make(chan struct{}),
	}, nil
}

// Ready is closed once the socket is bound.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Listen blocks until ctx is cancelled or the socket fails. A Listener
// can only be started once.
func (l *Listener) Listen(ctx context.Context) error {
	l.tl.OnNewTrap = func(packet *gosnmp.SnmpPacket, addr *net.UDPAddr) {
		l.handle(ctx, packet, addr)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		// gosnmp ignores Close before the socket exists and then never
		// returns from Listen, so wait for the bind first.
		select {
		case <-l.tl.Listening():
			close(l.ready)
		case <-stop:
			return
		}
		select {
		case <-ctx.Done():
			l.tl.Close()
		case <-stop:
		}
	}()

	l.log.Info("starting trap listener", "address", l.cfg.ListenAddress)
	if err := l.tl.Listen(l.cfg.ListenAddress); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("trap listener: %w", err)
	}
	return nil
}

func (l *Listener) handle(ctx context.Context, packet *gosnmp.SnmpPacket, addr *net.UDPAddr) {
	if packet.Version != gosnmp.Version3 && !l.allowed(packet.Community) {
		l.log.Warn("rejected trap with invalid community", "source", addr.IP)
		return
	}
	res := l.proc.Process(ctx, Render(packet, addr, l.local))
	l.log.Debug("trap processed", "source", addr.IP, "version", packet.Version, "outcome", res.Outcome.String())
}

func (l *Listener) allowed(community string) bool {
	if len(l.cfg.CommunityStrings) == 0 {
		return true
	}
	for _, c := range l.cfg.CommunityStrings {
		if c == community {
			return true
		}
	}
	return false
}

const (
	oidSysUpTime       = ".1.3.6.1.2.1.1.3.0"
	oidSnmpTrapOID     = ".1.3.6.1.6.3.1.1.4.1.0"
	oidSnmpTrapEnt     = ".1.3.6.1.6.3.1.1.4.3.0"
	oidStandardTrapsV1 = ".1.3.6.1.6.3.1.1.5."
)

// Render writes packet the way snmptrapd hands traps to a traphandle:
// source host, transport line, then one "<oid> <value>" line per varbind.
// v1 traps are converted to the v2 varbind layout first.
func Render(packet *gosnmp.SnmpPacket, from *net.UDPAddr, local string) string {
	var b strings.Builder
	b.WriteString(from.IP.String())
	b.WriteByte('\n')
	fmt.Fprintf(&b, "UDP: [%s]:%d->%s\n", from.IP, from.Port, local)

	if packet.PDUType == gosnmp.Trap {
		writeVarbind(&b, gosnmp.SnmpPDU{Name: oidSysUpTime, Type: gosnmp.TimeTicks, Value: packet.Timestamp})
		writeVarbind(&b, gosnmp.SnmpPDU{Name: oidSnmpTrapOID, Type: gosnmp.ObjectIdentifier, Value: v1TrapOID(packet.SnmpTrap)})
	}
	for _, v := range packet.Variables {
		writeVarbind(&b, v)
	}
	if packet.PDUType == gosnmp.Trap && packet.Enterprise != "" {
		writeVarbind(&b, gosnmp.SnmpPDU{Name: oidSnmpTrapEnt, Type: gosnmp.ObjectIdentifier, Value: packet.Enterprise})
	}
	return b.String()
}

// v1TrapOID follows RFC 3584 section 3.1.
func v1TrapOID(t gosnmp.SnmpTrap) string {
	if t.GenericTrap >= 0 && t.GenericTrap < 6 {
		return oidStandardTrapsV1 + strconv.Itoa(t.GenericTrap+1)
	}
	return strings.TrimSuffix(t.Enterprise, ".") + ".0." + strconv.Itoa(t.SpecificTrap)
}

func writeVarbind(b *strings.Builder, v gosnmp.SnmpPDU) {
	b.WriteString(formatOID(v.Name))
	b.WriteByte(' ')
	b.WriteString(formatValue(v))
	b.WriteByte('\n')
}

// formatOID renders a numeric identifier with the "iso" label net-snmp
// prints when no MIB is loaded.
func formatOID(oid string) string {
	oid = strings.TrimPrefix(oid, ".")
	if rest, ok := strings.CutPrefix(oid, "1."); ok {
		return "iso." + rest
	}
	return oid
}

func formatValue(v gosnmp.SnmpPDU) string {
	switch v.Type {
	case gosnmp.OctetString:
		var s string
		switch val := v.Value.(type) {
		case []byte:
			s = string(val)
		case string:
			s = val
		}
		return `"` + strings.NewReplacer("\r", " ", "\n", " ").Replace(s) + `"`
	case gosnmp.ObjectIdentifier:
		if s, ok := v.Value.(string); ok {
			return formatOID(s)
		}
	case gosnmp.Null, gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
		return `""`
	}
	return fmt.Sprint(v.Value)
}
