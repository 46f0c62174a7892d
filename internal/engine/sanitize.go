package engine

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aretw0/leadflow/pkg/domain"
)

// DefaultMaxValueSize bounds a single submitted string value (4KB).
const DefaultMaxValueSize = 4096

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// SanitizeInput cleans every string carried by an input: it enforces the
// per-value size limit, validates UTF-8 and strips control characters other
// than newline, tab and carriage return. A limit <= 0 uses DefaultMaxValueSize.
// Errors wrap domain.ErrBadRequest.
func SanitizeInput(input domain.Input, limit int) (domain.Input, error) {
	if limit <= 0 {
		limit = DefaultMaxValueSize
	}
	switch in := input.(type) {
	case nil:
		return nil, nil
	case domain.Selection:
		label, err := sanitizeString(in.Label, limit)
		if err != nil {
			return nil, err
		}
		value, err := sanitizeValue(in.Value, limit)
		if err != nil {
			return nil, err
		}
		return domain.Selection{Value: value, Label: label}, nil
	case domain.FormPayload:
		out := make(domain.FormPayload, len(in))
		for k, v := range in {
			clean, err := sanitizeValue(v, limit)
			if err != nil {
				return nil, fmt.Errorf("field '%s': %w", k, err)
			}
			out[k] = clean
		}
		return out, nil
	}
	return input, nil
}

func sanitizeValue(v any, limit int) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	return sanitizeString(s, limit)
}

func sanitizeString(input string, limit int) (string, error) {
	// We explicitly reject rather than truncate to ensure deterministic state.
	if len(input) > limit {
		return "", fmt.Errorf("%w: %w: size=%d limit=%d", domain.ErrBadRequest, ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", fmt.Errorf("%w: %w", domain.ErrBadRequest, ErrInvalidUTF8)
	}

	// Fast path: if no control chars, return as is.
	clean := true
	for _, r := range input {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return input, nil
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unicode.IsControl(r) || isSafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}
