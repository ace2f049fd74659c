// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package snmp receives SNMP traps and informs on a UDP socket and renders
// them into the snmptrapd text form consumed by the trap pipeline.
package snmp

import (
	"errors"
	"fmt"

	"github.com/gosnmp/gosnmp"
	"go.uber.org/multierr"
)

// AuthProtocol represents SNMPv3 authentication protocols
type AuthProtocol string

const (
	AuthMD5    AuthProtocol = "MD5"
	AuthSHA    AuthProtocol = "SHA"
	AuthSHA256 AuthProtocol = "SHA256"
	AuthSHA512 AuthProtocol = "SHA512"
)

// PrivProtocol represents SNMPv3 privacy protocols
type PrivProtocol string

const (
	PrivDES    PrivProtocol = "DES"
	PrivAES    PrivProtocol = "AES"
	PrivAES192 PrivProtocol = "AES192"
	PrivAES256 PrivProtocol = "AES256"
)

// V3User represents an SNMPv3 user accepted by the listener
type V3User struct {
	Username     string       `yaml:"username"`
	AuthProtocol AuthProtocol `yaml:"auth_protocol"`
	AuthPassword string       `yaml:"auth_password"`
	PrivProtocol PrivProtocol `yaml:"priv_protocol"`
	PrivPassword string       `yaml:"priv_password"`
}

// Config configures the trap listener. An empty CommunityStrings list
// accepts every v1/v2c community.
type Config struct {
	ListenAddress    string   `yaml:"listen_address"`
	CommunityStrings []string `yaml:"community_strings"`
	V3Users          []V3User `yaml:"v3_users"`
}

// DefaultListenAddress is the standard trap port on all interfaces.
const DefaultListenAddress = "0.0.0.0:162"

// Validate reports unusable listener settings.
func (c Config) Validate() error {
	var err error
	if len(c.V3Users) > 1 {
		err = multierr.Append(err, fmt.Errorf("listener: %d v3 users configured, only one is supported", len(c.V3Users)))
	}
	for _, u := range c.V3Users {
		if u.Username == "" {
			err = multierr.Append(err, errors.New("listener: v3 user without username"))
		}
		if _, ok := authProtocols[u.AuthProtocol]; !ok && u.AuthProtocol != "" {
			err = multierr.Append(err, fmt.Errorf("listener: unknown auth protocol %q", u.AuthProtocol))
		}
		if _, ok := privProtocols[u.PrivProtocol]; !ok && u.PrivProtocol != "" {
			err = multierr.Append(err, fmt.Errorf("listener: unknown priv protocol %q", u.PrivProtocol))
		}
	}
	return err
}

var authProtocols = map[AuthProtocol]gosnmp.SnmpV3AuthProtocol{
	AuthMD5:    gosnmp.MD5,
	AuthSHA:    gosnmp.SHA,
	AuthSHA256: gosnmp.SHA256,
	AuthSHA512: gosnmp.SHA512,
}

var privProtocols = map[PrivProtocol]gosnmp.SnmpV3PrivProtocol{
	PrivDES:    gosnmp.DES,
	PrivAES:    gosnmp.AES,
	PrivAES192: gosnmp.AES192,
	PrivAES256: gosnmp.AES256,
}

// securityParams creates SNMPv3 security parameters and message flags for
// a user. Missing passwords lower the security level.
func securityParams(user V3User) (*gosnmp.UsmSecurityParameters, gosnmp.SnmpV3MsgFlags) {
	params := &gosnmp.UsmSecurityParameters{UserName: user.Username}
	flags := gosnmp.NoAuthNoPriv
	if user.AuthPassword == "" {
		return params, flags
	}
	params.AuthenticationProtocol = gosnmp.SHA256
	if p, ok := authProtocols[user.AuthProtocol]; ok {
		params.AuthenticationProtocol = p
	}
	params.AuthenticationPassphrase = user.AuthPassword
	flags = gosnmp.AuthNoPriv
	if user.PrivPassword == "" {
		return params, flags
	}
	params.PrivacyProtocol = gosnmp.AES256
	if p, ok := privProtocols[user.PrivProtocol]; ok {
		params.PrivacyProtocol = p
	}
	params.PrivacyPassphrase = user.PrivPassword
	return params, gosnmp.AuthPriv
}
