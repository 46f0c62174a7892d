package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FormatScalar renders a scalar value in its canonical text form.
// Integral floats render without a fractional part so 2025 and 2025.0 agree.
func FormatScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprintf("%v", v)
}

// ScalarEqual compares two scalars by canonical text. It is exact and case-sensitive.
func ScalarEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return FormatScalar(a) == FormatScalar(b)
}

// IsBlank reports whether a submitted value is absent or whitespace only.
func IsBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		for _, r := range s {
			if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
				return false
			}
		}
		return true
	}
	return false
}

// NormalizeNumber converts decoded json.Number values into int64 or float64,
// descending into maps and slices.
func NormalizeNumber(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, item := range x {
			x[k] = NormalizeNumber(item)
		}
		return x
	case []any:
		for i, item := range x {
			x[i] = NormalizeNumber(item)
		}
		return x
	}
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
