// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package trap

import "context"

const fs5100Trap = `storage01.domain.local
UDP: [10.1.2.3]:50123->[10.0.0.1]:162
iso.3.6.1.2.1.1.3.0 12:3:45:06.78
SNMPv2-MIB::snmpTrapOID.0 SNMPv2-SMI::enterprises.2.6.190.3
iso.3.6.1.4.1.2.6.190.4.3 "# 5 = 000123"
iso.3.6.1.4.1.2.6.190.4.7 "FS5100-A"
iso.3.6.1.4.1.2.6.190.4.17 "# 5 = diskname"
`

var (
	testNoise    = []string{"<UNKNOWN>", "SNMP-COMMUNITY-MIB::snmpTrap", "SNMPv2-MIB::snmpTrap", "DISMAN-EVENT-MIB"}
	testPrefixes = []string{"iso.", "SNMPv2-SMI::enterprises.", "SNMPv2-SMI::experimental."}
)

type stubResolver map[string]string

func (s stubResolver) Resolve(_ context.Context, addr string) string {
	if name, ok := s[addr]; ok {
		return name
	}
	return addr
}

func storageSystems(t interface{ Fatalf(string, ...any) }) []SystemDefinition {
	rules, err := NewRuleSet([]SubstitutionDef{{
		Field:   ".",
		Replace: []Replacement{{Pattern: "# .+ = ", Value: ""}},
	}}, nil)
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	return []SystemDefinition{
		{
			Group: "Storage",
			Name:  "IBM_FS5100",
			Fields: []FieldDef{
				{Name: "System Name", OID: "2.6.190.4.7"},
				{Name: "Error ID", OID: "2.6.190.4.3"},
				{Name: "Object name", OID: "2.6.190.4.17"},
			},
			Rules: rules,
		},
		{
			Group: "Storage",
			Name:  "IBM_FS900",
			Fields: []FieldDef{
				{Name: "System Name", OID: "2.6.255.1.1.7.7"},
				{Name: "Error Code", OID: "2.6.255.1.1.7.4"},
			},
			Rules: rules,
		},
		{
			Group: "vrops",
			Name:  "VROPS",
			Fields: []FieldDef{
				{Name: "Source", OID: "6876.4.50.1.2.2.0"},
				{Name: "Source", OID: "6876.4.50.1.2.2"},
				{Name: "Severity", OID: "6876.4.50.1.2.5.0"},
				{Name: "Severity", OID: "6876.4.50.1.2.5"},
			},
		},
	}
}
