// Package engine computes transitions between flow nodes.
//
// Everything here is pure: no I/O, no state, and arguments are never mutated.
package engine

import (
	"net/mail"
	"strings"

	"github.com/aretw0/leadflow/pkg/domain"
)

// ComputeNext returns the id of the node that follows current for the given input.
// Failures are *domain.TransitionError values wrapping ErrInvalidTransition,
// ErrInvalidOption or ErrNoTransition.
func ComputeNext(current domain.Node, input domain.Input) (string, error) {
	if _, ok := current.(*domain.EndNode); ok {
		return "", reject(current, input, domain.ErrNoTransition)
	}
	if input == nil {
		return "", reject(current, nil, domain.ErrInvalidTransition)
	}

	switch n := current.(type) {
	case *domain.ChoiceNode:
		sel, ok := input.(domain.Selection)
		if !ok {
			return "", reject(current, input, domain.ErrInvalidTransition)
		}
		opt, ok := MatchOption(n.Options, sel)
		if !ok {
			return "", reject(current, input, domain.ErrInvalidOption)
		}
		return opt.Next, nil

	case *domain.DynamicNode:
		// The payload only matters to the projector.
		return n.Next, nil

	case *domain.FormNode:
		if _, ok := input.(domain.FormPayload); !ok {
			return "", reject(current, input, domain.ErrInvalidTransition)
		}
		return n.Next, nil

	case *domain.MessageNode:
		if n.Next == "" {
			return "", reject(current, input, domain.ErrNoTransition)
		}
		return n.Next, nil

	case *domain.EndNode:
		return "", reject(current, input, domain.ErrNoTransition)
	}
	return "", reject(current, input, domain.ErrInvalidTransition)
}

// MatchOption finds the option a selection refers to.
// The selection key (value, else label) is compared to each option identity.
// A selection without a value may also match an option by label. A value that
// matches nothing is never rescued by its label. Comparisons are exact.
func MatchOption(options []domain.Option, sel domain.Selection) (domain.Option, bool) {
	key := sel.Key()
	if key != nil {
		for _, o := range options {
			if domain.ScalarEqual(o.Identity(), key) {
				return o, true
			}
		}
	}
	if sel.Value == nil && sel.Label != "" {
		for _, o := range options {
			if o.Label == sel.Label {
				return o, true
			}
		}
	}
	return domain.Option{}, false
}

// ValidateInput checks a form payload against the node's declared fields.
// Only form nodes receiving a form payload are checked; every other
// combination is left to ComputeNext.
func ValidateInput(current domain.Node, input domain.Input) error {
	form, ok := current.(*domain.FormNode)
	if !ok {
		return nil
	}
	payload, ok := input.(domain.FormPayload)
	if !ok {
		return nil
	}

	fields := make(map[string]string)
	for _, f := range form.Fields {
		v, present := payload[f.Key]
		if f.Required && (!present || domain.IsBlank(v)) {
			fields[f.Key] = "required"
			continue
		}
		if !present || domain.IsBlank(v) {
			continue
		}
		if f.Input == domain.FieldEmail && !validEmail(domain.FormatScalar(v)) {
			fields[f.Key] = "invalid email"
		}
	}
	if len(fields) > 0 {
		return &domain.ValidationError{NodeID: form.NodeID(), Fields: fields}
	}
	return nil
}

func validEmail(s string) bool {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func reject(n domain.Node, input domain.Input, err error) error {
	te := &domain.TransitionError{Err: err}
	if n != nil {
		te.NodeID = n.NodeID()
		te.Kind = n.Kind()
	}
	if input != nil {
		te.Input = input.InputKind()
	}
	return te
}
