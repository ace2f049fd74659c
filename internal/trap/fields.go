// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package trap

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Fields is a string map that remembers insertion order. Overwriting a key
// keeps its original position.
type Fields struct {
	keys   []string
	values map[string]string
}

// NewFields returns an empty field map.
func NewFields() *Fields {
	return &Fields{values: make(map[string]string)}
}

// Set stores value under name.
func (f *Fields) Set(name, value string) {
	if _, ok := f.values[name]; !ok {
		f.keys = append(f.keys, name)
	}
	f.values[name] = value
}

// Get returns the value stored under name.
func (f *Fields) Get(name string) (string, bool) {
	if f == nil {
		return "", false
	}
	v, ok := f.values[name]
	return v, ok
}

// Len returns the number of fields.
func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.keys)
}

// Keys returns field names in insertion order.
func (f *Fields) Keys() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Map returns a copy of the fields as a plain map.
func (f *Fields) Map() map[string]string {
	out := make(map[string]string, f.Len())
	if f == nil {
		return out
	}
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Format renders the fields as newline separated "name: value" lines, the
// shape pushed to the metrics collector.
func (f *Fields) Format() string {
	var b strings.Builder
	for _, k := range f.Keys() {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(f.values[k])
		b.WriteByte('\n')
	}
	return b.String()
}

// MarshalJSON encodes the fields as a JSON object in insertion order.
func (f *Fields) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range f.Keys() {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(f.values[k])
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}
