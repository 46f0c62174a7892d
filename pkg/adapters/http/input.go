package http

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aretw0/leadflow/pkg/domain"
)

// DecodeInput interprets the userInput field of a turn request.
//
//	null or absent         -> no input (render the current node)
//	{"value": .., "label"} -> Selection
//	any other object       -> FormPayload
//	string, number, bool   -> Selection carrying that value
//
// Numbers decode to int64 when integral, float64 otherwise. Arrays and nested
// objects inside a form are rejected.
func DecodeInput(raw json.RawMessage) (domain.Input, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("userInput: %w", err)
	}

	switch in := v.(type) {
	case map[string]any:
		if isSelection(in) {
			return selectionFrom(in)
		}
		return formFrom(in)
	case []any:
		return nil, fmt.Errorf("userInput: arrays are not supported")
	default:
		return domain.Selection{Value: domain.NormalizeNumber(in)}, nil
	}
}

// isSelection reports whether every key of m is value or label.
func isSelection(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if k != "value" && k != "label" {
			return false
		}
	}
	return true
}

func selectionFrom(m map[string]any) (domain.Input, error) {
	sel := domain.Selection{}
	if v, ok := m["value"]; ok {
		if !isScalar(v) {
			return nil, fmt.Errorf("userInput.value must be a scalar")
		}
		sel.Value = domain.NormalizeNumber(v)
	}
	if l, ok := m["label"]; ok && l != nil {
		if !isScalar(l) {
			return nil, fmt.Errorf("userInput.label must be a scalar")
		}
		sel.Label = domain.FormatScalar(l)
	}
	return sel, nil
}

func formFrom(m map[string]any) (domain.Input, error) {
	out := make(domain.FormPayload, len(m))
	for k, v := range m {
		if !isScalar(v) {
			return nil, fmt.Errorf("userInput.%s must be a scalar", k)
		}
		out[k] = domain.NormalizeNumber(v)
	}
	return out, nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, json.Number:
		return true
	}
	return false
}
