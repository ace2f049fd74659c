// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package snmp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/platformbuilds/traprouter/internal/pipeline"
)

type chanProcessor chan string

func (c chanProcessor) Process(_ context.Context, raw string) pipeline.Result {
	c <- raw
	return pipeline.Result{Outcome: pipeline.Success}
}

func TestRender_V2c(t *testing.T) {
	packet := &gosnmp.SnmpPacket{
		Version:   gosnmp.Version2c,
		PDUType:   gosnmp.SNMPv2Trap,
		Community: "public",
		Variables: []gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(4200)},
			{Name: ".1.3.6.1.6.3.1.1.4.1.0", Type: gosnmp.ObjectIdentifier, Value: ".1.3.6.1.4.1.2.6.190.3"},
			{Name: ".1.3.6.1.4.1.2.6.190.4.7", Type: gosnmp.OctetString, Value: []byte("FS5100-A")},
			{Name: ".1.3.6.1.4.1.2.6.190.4.17", Type: gosnmp.OctetString, Value: []byte("line1\nline2")},
			{Name: ".1.3.6.1.4.1.2.6.190.4.2", Type: gosnmp.Integer, Value: 3},
		},
	}
	from := &net.UDPAddr{IP: net.ParseIP("10.1.2.3"), Port: 50123}

	want := "10.1.2.3\n" +
		"UDP: [10.1.2.3]:50123->[0.0.0.0]:162\n" +
		"iso.3.6.1.2.1.1.3.0 4200\n" +
		"iso.3.6.1.6.3.1.1.4.1.0 iso.3.6.1.4.1.2.6.190.3\n" +
		"iso.3.6.1.4.1.2.6.190.4.7 \"FS5100-A\"\n" +
		"iso.3.6.1.4.1.2.6.190.4.17 \"line1 line2\"\n" +
		"iso.3.6.1.4.1.2.6.190.4.2 3\n"
	assert.Equal(t, want, Render(packet, from, "[0.0.0.0]:162"))
}

func TestRender_V1(t *testing.T) {
	packet := &gosnmp.SnmpPacket{
		Version: gosnmp.Version1,
		PDUType: gosnmp.Trap,
		SnmpTrap: gosnmp.SnmpTrap{
			Enterprise:   ".1.3.6.1.4.1.6876.4.50",
			GenericTrap:  6,
			SpecificTrap: 1,
			Timestamp:    77,
		},
		Variables: []gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.4.1.6876.4.50.1.2.5.0", Type: gosnmp.OctetString, Value: []byte("vrops01")},
		},
	}
	from := &net.UDPAddr{IP: net.ParseIP("10.9.9.9"), Port: 162}

	got := Render(packet, from, "[127.0.0.1]:1162")
	assert.Equal(t, "10.9.9.9\n"+
		"UDP: [10.9.9.9]:162->[127.0.0.1]:1162\n"+
		"iso.3.6.1.2.1.1.3.0 77\n"+
		"iso.3.6.1.6.3.1.1.4.1.0 iso.3.6.1.4.1.6876.4.50.0.1\n"+
		"iso.3.6.1.4.1.6876.4.50.1.2.5.0 \"vrops01\"\n"+
		"iso.3.6.1.6.3.1.1.4.3.0 iso.3.6.1.4.1.6876.4.50\n", got)
}

func TestV1TrapOID_Generic(t *testing.T) {
	assert.Equal(t, ".1.3.6.1.6.3.1.1.5.3", v1TrapOID(gosnmp.SnmpTrap{GenericTrap: 2}))
}

func TestAllowed(t *testing.T) {
	l, err := NewListener(Config{ListenAddress: "127.0.0.1:1162", CommunityStrings: []string{"public", "ops"}}, nil, nil)
	require.NoError(t, err)
	assert.True(t, l.allowed("ops"))
	assert.False(t, l.allowed("private"))

	open, err := NewListener(Config{ListenAddress: "127.0.0.1:1162"}, nil, nil)
	require.NoError(t, err)
	assert.True(t, open.allowed("anything"))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{V3Users: []V3User{{Username: "ops", AuthProtocol: AuthSHA, AuthPassword: "x"}}}.Validate())

	err := Config{V3Users: []V3User{
		{AuthProtocol: "ROT13"},
		{Username: "b", PrivProtocol: "XOR"},
	}}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only one is supported")
	assert.Contains(t, err.Error(), "without username")
	assert.Contains(t, err.Error(), `"ROT13"`)
	assert.Contains(t, err.Error(), `"XOR"`)
}

func TestSecurityParams(t *testing.T) {
	sp, flags := securityParams(V3User{Username: "ops"})
	assert.Equal(t, gosnmp.NoAuthNoPriv, flags)
	assert.Equal(t, "ops", sp.UserName)

	sp, flags = securityParams(V3User{Username: "ops", AuthProtocol: AuthSHA512, AuthPassword: "authpass", PrivPassword: "privpass"})
	assert.Equal(t, gosnmp.AuthPriv, flags)
	assert.Equal(t, gosnmp.SHA512, sp.AuthenticationProtocol)
	assert.Equal(t, gosnmp.AES256, sp.PrivacyProtocol)
}

func freeUDPAddr(t *testing.T) *net.UDPAddr {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := pc.LocalAddr().(*net.UDPAddr)
	require.NoError(t, pc.Close())
	return addr
}

func TestListener_Loopback(t *testing.T) {
	defer goleak.VerifyNone(t)

	addr := freeUDPAddr(t)
	got := make(chanProcessor, 1)
	l, err := NewListener(Config{ListenAddress: addr.String(), CommunityStrings: []string{"public"}}, got, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Listen(ctx) }()

	select {
	case <-l.Ready():
	case err := <-done:
		t.Fatalf("listener exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not start")
	}

	client := &gosnmp.GoSNMP{
		Target:    "127.0.0.1",
		Port:      uint16(addr.Port),
		Community: "public",
		Version:   gosnmp.Version2c,
		Timeout:   time.Second,
		MaxOids:   gosnmp.MaxOids,
	}
	require.NoError(t, client.Connect())
	_, err = client.SendTrap(gosnmp.SnmpTrap{Variables: []gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(100)},
		{Name: ".1.3.6.1.6.3.1.1.4.1.0", Type: gosnmp.ObjectIdentifier, Value: ".1.3.6.1.4.1.2.6.190.3"},
		{Name: ".1.3.6.1.4.1.2.6.190.4.7", Type: gosnmp.OctetString, Value: "FS5100-A"},
	}})
	require.NoError(t, err)
	require.NoError(t, client.Conn.Close())

	select {
	case raw := <-got:
		assert.Contains(t, raw, "UDP: [127.0.0.1]:")
		assert.Contains(t, raw, "->["+addr.IP.String()+"]:")
		assert.Contains(t, raw, `iso.3.6.1.4.1.2.6.190.4.7 "FS5100-A"`)
	case <-time.After(5 * time.Second):
		t.Fatal("trap not received")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}
