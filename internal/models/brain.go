// ABOUTME: Brain snapshot decoded from the bot's key-value memory
// ABOUTME: Two-level type -> key -> value mapping flattened into entries for the sink
package models

import (
	"encoding/json"
	"sort"
)

// BrainSnapshot is the bot's whole brain, keyed by type then key.
// Values are kept as raw JSON so they round-trip into the sink unchanged.
type BrainSnapshot map[string]map[string]json.RawMessage

// BrainEntry is one (type, key, value) triple of a snapshot
type BrainEntry struct {
	Type  string          `json:"type" yaml:"type"`
	Key   string          `json:"key" yaml:"key"`
	Value json.RawMessage `json:"value" yaml:"-"`
}

// Len returns the number of entries across all types
func (s BrainSnapshot) Len() int {
	n := 0
	for _, keys := range s {
		n += len(keys)
	}
	return n
}

// Entries flattens the snapshot, ordered by type then key.
func (s BrainSnapshot) Entries() []BrainEntry {
	entries := make([]BrainEntry, 0, s.Len())
	for _, typ := range sortedKeys(s) {
		keys := s[typ]
		names := make([]string, 0, len(keys))
		for k := range keys {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			entries = append(entries, BrainEntry{Type: typ, Key: k, Value: keys[k]})
		}
	}
	return entries
}

// Truncate returns a snapshot holding at most limit entries, counted across
// types in Entries order. A limit <= 0 returns the snapshot unchanged.
func (s BrainSnapshot) Truncate(limit int) BrainSnapshot {
	if limit <= 0 {
		return s
	}
	out := make(BrainSnapshot)
	count := 0
	for _, e := range s.Entries() {
		if count >= limit {
			break
		}
		if out[e.Type] == nil {
			out[e.Type] = make(map[string]json.RawMessage)
		}
		out[e.Type][e.Key] = e.Value
		count++
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
