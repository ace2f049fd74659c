// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/platformbuilds/traprouter/internal/dispatch"
	"github.com/platformbuilds/traprouter/internal/journal"
	"github.com/platformbuilds/traprouter/internal/trap"
)

const storageTrap = `fs5100.domain.local
UDP: [10.1.2.3]:50123->[10.0.0.1]:162
iso.3.6.1.2.1.1.3.0 12:3:45:06.78
SNMPv2-MIB::snmpTrapOID.0 SNMPv2-SMI::enterprises.2.6.190.3
iso.3.6.1.4.1.2.6.190.4.3 "# 5 = 000123"
iso.3.6.1.4.1.2.6.190.4.7 "FS5100-A"
iso.3.6.1.4.1.2.6.190.4.17 "# 5 = diskname"
`

const linkDownTrap = `switch01.domain.local
UDP: [10.1.2.9]:161->[10.0.0.1]:162
SNMPv2-MIB::snmpTrapOID.0 IF-MIB::linkDown
iso.3.6.1.4.1.2.6.190.4.7 "FS5100-A"
`

const unknownTrap = `unknown.domain.local
UDP: [10.9.9.9]:161->[10.0.0.1]:162
iso.3.6.1.4.1.9999.1.1 "hello"
`

type record struct {
	kind journal.Kind
	body string
}

type memJournal struct{ records []record }

func (m *memJournal) Record(kind journal.Kind, body string) error {
	m.records = append(m.records, record{kind, body})
	return nil
}

func (m *memJournal) kinds() []journal.Kind {
	var out []journal.Kind
	for _, r := range m.records {
		out = append(out, r.kind)
	}
	return out
}

func (m *memJournal) body(kind journal.Kind) string {
	for _, r := range m.records {
		if r.kind == kind {
			return r.body
		}
	}
	return ""
}

type fakeCluster struct {
	name  string
	err   error
	count int
}

func (f *fakeCluster) Name() string { return f.name }

func (f *fakeCluster) Create(context.Context, string, map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.count++
	return nil
}

type fakeMetrics struct{ values map[string]string }

func (f *fakeMetrics) Send(_ context.Context, host, key, value string) error {
	f.values[host+"/"+key] = value
	return nil
}

type countingMetrics struct{ outcomes []string }

func (c *countingMetrics) ObserveTrap(outcome, _ string, _ time.Duration) {
	c.outcomes = append(c.outcomes, outcome)
}

type harness struct {
	p        *Pipeline
	journal  *memJournal
	clusters []*fakeCluster
	metrics  *fakeMetrics
	observed *countingMetrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ex, err := trap.NewExtractor(
		[]string{"<UNKNOWN>", "SNMPv2-MIB::snmpTrap", "DISMAN-EVENT-MIB"},
		[]string{"iso.", "SNMPv2-SMI::enterprises."},
	)
	require.NoError(t, err)

	rules, err := trap.NewRuleSet(
		[]trap.SubstitutionDef{{Field: ".", Replace: []trap.Replacement{{Pattern: "# .+ = ", Value: ""}}}},
		[]trap.Exception{{{Field: "Object name", Contains: "scratch"}}},
	)
	require.NoError(t, err)
	m, err := trap.NewMatcher([]trap.SystemDefinition{{
		Group: "Storage",
		Name:  "IBM_FS5100",
		Fields: []trap.FieldDef{
			{Name: "System Name", OID: "2.6.190.4.7"},
			{Name: "Error ID", OID: "2.6.190.4.3"},
			{Name: "Object name", OID: "2.6.190.4.17"},
		},
		Rules: rules,
	}}, trap.FirstMatch, nil)
	require.NoError(t, err)

	h := &harness{
		journal:  &memJournal{},
		clusters: []*fakeCluster{{name: "es1"}, {name: "es2"}},
		metrics:  &fakeMetrics{values: map[string]string{}},
		observed: &countingMetrics{},
	}
	router := dispatch.NewRouter([]dispatch.Entry{
		{Source: "Storage", Indices: []string{"snmptrap_storage"}, Metrics: []dispatch.MetricTarget{{Host: "snmptrap-storage", Key: "storage_events"}}},
		{Source: dispatch.Fallback, Metrics: []dispatch.MetricTarget{{Host: "snmptrap-test", Key: "unknown_events"}}},
	}, []dispatch.DocumentSink{h.clusters[0], h.clusters[1]}, h.metrics, dispatch.Options{})

	h.p = New(Options{
		RawExceptions: trap.RawExceptions{"IF-MIB::linkDown", "SNMPv2-MIB::coldStart"},
		Extractor:     ex,
		Matcher:       m,
		Router:        router,
		Journal:       h.journal,
		Metrics:       h.observed,
	})
	return h
}

func TestProcess_Success(t *testing.T) {
	h := newHarness(t)
	res := h.p.Process(context.Background(), storageTrap)

	require.NoError(t, res.Err)
	assert.Equal(t, Success, res.Outcome)
	assert.Equal(t, 3, res.Dispatched)
	assert.Equal(t, 1, h.clusters[0].count)
	assert.Equal(t, 1, h.clusters[1].count)
	assert.Equal(t,
		"Storage: 10.1.2.3\nSystem Name: FS5100-A\nError ID: 000123\nObject name: diskname\n",
		h.metrics.values["snmptrap-storage/storage_events"])

	assert.Equal(t, []journal.Kind{journal.Trap, journal.EventText, journal.ParsedEvent}, h.journal.kinds())
	assert.Equal(t, storageTrap, h.journal.body(journal.Trap))
	assert.Equal(t,
		`{"Storage":"10.1.2.3","System Name":"FS5100-A","Error ID":"000123","Object name":"diskname"}`,
		h.journal.body(journal.ParsedEvent))
	assert.Equal(t, []string{"success"}, h.observed.outcomes)
}

func TestProcess_RawSuppressed(t *testing.T) {
	h := newHarness(t)
	res := h.p.Process(context.Background(), linkDownTrap)

	assert.Equal(t, RawSuppressed, res.Outcome)
	assert.Equal(t, "IF-MIB::linkDown", res.Exception)
	assert.Zero(t, res.Dispatched)
	assert.Nil(t, res.Event)
	assert.Zero(t, h.clusters[0].count)
	assert.Empty(t, h.metrics.values)
	assert.Equal(t, []journal.Kind{journal.Trap, journal.TrapException}, h.journal.kinds())
}

func TestProcess_ParsedSuppressed(t *testing.T) {
	h := newHarness(t)
	raw := strings.Replace(storageTrap, "diskname", "scratch01", 1)
	res := h.p.Process(context.Background(), raw)

	assert.Equal(t, ParsedSuppressed, res.Outcome)
	assert.Equal(t, "0", res.Exception)
	assert.Zero(t, res.Dispatched)
	assert.Empty(t, h.metrics.values)
	assert.Equal(t, []journal.Kind{journal.Trap, journal.EventText, journal.ParsedException}, h.journal.kinds())
	assert.Contains(t, h.journal.body(journal.ParsedException), `"Object name":"scratch01"`)
}

func TestProcess_NoMatchUsesFallback(t *testing.T) {
	h := newHarness(t)
	res := h.p.Process(context.Background(), unknownTrap)

	assert.Equal(t, NoMatch, res.Outcome)
	assert.Equal(t, 1, res.Dispatched)
	assert.True(t, res.Event.Empty())
	assert.Zero(t, h.clusters[0].count)
	assert.Equal(t,
		"UDP: [10.9.9.9]:161->[10.0.0.1]:162\noid: 3.6.1.4.1.9999.1.1 value: hello\n",
		h.metrics.values["snmptrap-test/unknown_events"])
	assert.NotContains(t, h.journal.kinds(), journal.ParsedEvent)
}

func TestProcess_SinkFailure(t *testing.T) {
	h := newHarness(t)
	h.clusters[1].err = errors.New("connection refused")
	res := h.p.Process(context.Background(), storageTrap)

	assert.Equal(t, SinkFailure, res.Outcome)
	require.Error(t, res.Err)
	assert.Equal(t, 1, res.Dispatched)
	assert.Empty(t, h.metrics.values)

	body := h.journal.body(journal.Error)
	assert.Contains(t, body, "connection refused")
	assert.Contains(t, body, storageTrap)
	assert.Equal(t, []string{"sink_failure"}, h.observed.outcomes)
}

func TestProcess_Deterministic(t *testing.T) {
	a := newHarness(t).p.Process(context.Background(), storageTrap)
	b := newHarness(t).p.Process(context.Background(), storageTrap)
	assert.Equal(t, a.Event.Fields.Map(), b.Event.Fields.Map())
	assert.Equal(t, a.Event.Fields.Keys(), b.Event.Fields.Keys())
}

func TestProcess_Span(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	h := newHarness(t)
	h.p.tracer = tp.Tracer("test")

	h.p.Process(context.Background(), storageTrap)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "trap.process", spans[0].Name())
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "success", attrs["trap.outcome"].AsString())
	assert.Equal(t, "Storage", attrs["trap.group"].AsString())
	assert.Equal(t, int64(3), attrs["trap.dispatched"].AsInt64())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "parsed_suppressed", ParsedSuppressed.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
