package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// KeyCreatedLeads is the reserved state field holding lead dedup markers.
const KeyCreatedLeads = "createdLeads"

// State is the conversation state of a session.
// It is an immutable value: every mutator returns a new State and leaves the
// receiver untouched, so a State can be shared across goroutines freely.
type State struct {
	values map[string]any
	leads  []string
}

// NewState builds a State from a plain map. A createdLeads entry, if present,
// is lifted into the reserved marker set.
func NewState(values map[string]any) State {
	s := State{values: make(map[string]any, len(values))}
	for k, v := range values {
		if k == KeyCreatedLeads {
			s.leads = leadsFrom(v)
			continue
		}
		s.values[k] = v
	}
	return s
}

// Get returns the value stored under key.
func (s State) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// String returns the canonical text form of the value under key ("" when absent).
func (s State) String(key string) string {
	return FormatScalar(s.values[key])
}

// Len returns the number of non-reserved keys.
func (s State) Len() int { return len(s.values) }

// Keys returns the non-reserved keys in sorted order.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns a copy of the non-reserved entries.
func (s State) Values() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Map returns a flat copy including createdLeads, as used for templating and decoding.
func (s State) Map() map[string]any {
	out := s.Values()
	out[KeyCreatedLeads] = s.CreatedLeads()
	return out
}

// With returns a copy of the state with key set to v. Writes to the reserved key are ignored.
func (s State) With(key string, v any) State {
	return s.Merge(map[string]any{key: v})
}

// Merge returns a copy of the state with all updates applied. Writes to the reserved key are ignored.
func (s State) Merge(updates map[string]any) State {
	next := State{
		values: make(map[string]any, len(s.values)+len(updates)),
		leads:  s.leads,
	}
	for k, v := range s.values {
		next.values[k] = v
	}
	for k, v := range updates {
		if k == KeyCreatedLeads {
			continue
		}
		next.values[k] = v
	}
	return next
}

// CreatedLeads returns a copy of the dedup markers in insertion order.
func (s State) CreatedLeads() []string {
	return slices.Clone(s.leads)
}

// HasLead reports whether id is already recorded.
func (s State) HasLead(id string) bool {
	return slices.Contains(s.leads, id)
}

// WithLead returns a copy of the state with id recorded once.
func (s State) WithLead(id string) State {
	if s.HasLead(id) {
		return s
	}
	next := State{values: s.values, leads: make([]string, 0, len(s.leads)+1)}
	next.leads = append(next.leads, s.leads...)
	next.leads = append(next.leads, id)
	return next
}

// Equal reports whether both states hold the same entries and markers.
func (s State) Equal(other State) bool {
	if len(s.values) != len(other.values) || !slices.Equal(s.leads, other.leads) {
		return false
	}
	for k, v := range s.values {
		ov, ok := other.values[k]
		if !ok || !ScalarEqual(v, ov) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the state as a flat object with createdLeads as an array.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

// UnmarshalJSON decodes a flat object. Integral numbers decode as int64.
func (s *State) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = State{values: map[string]any{}}
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("failed to decode state: %w", err)
	}
	for k, v := range raw {
		raw[k] = NormalizeNumber(v)
	}
	*s = NewState(raw)
	return nil
}

func leadsFrom(v any) []string {
	switch x := v.(type) {
	case []string:
		return dedupe(x)
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			out = append(out, FormatScalar(NormalizeNumber(item)))
		}
		return dedupe(out)
	}
	return nil
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, id := range in {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
