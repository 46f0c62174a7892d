package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrDefinition marks load-time structural errors in a flow definition.
	ErrDefinition = errors.New("invalid flow definition")

	// ErrFlowNotFound is returned when a flow id does not resolve.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrNodeNotFound is returned when a node id does not resolve inside a flow.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidTransition is returned when the input kind does not match the node kind.
	ErrInvalidTransition = errors.New("invalid transition for node type")

	// ErrInvalidOption is returned when a selection matches no declared option.
	ErrInvalidOption = errors.New("invalid option")

	// ErrNoTransition is returned when a node has no outgoing transition.
	ErrNoTransition = errors.New("no transition")

	// ErrValidationFailed is returned when a form payload misses required fields.
	ErrValidationFailed = errors.New("validation failed")

	// ErrDynamicResolution marks a failed dynamic option fetch.
	ErrDynamicResolution = errors.New("dynamic resolution failed")

	// ErrSideEffect marks a failed lead creation call.
	ErrSideEffect = errors.New("side effect failed")

	// ErrSessionNotFound is returned when a session ID cannot be found in the store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when creating a session whose ID is taken.
	ErrSessionExists = errors.New("session already exists")

	// ErrVersionConflict is returned when a session was updated concurrently.
	ErrVersionConflict = errors.New("session version conflict")

	// ErrBadRequest is returned when a turn request lacks required fields.
	ErrBadRequest = errors.New("bad request")
)

// DefinitionError describes a structural problem found while loading a flow.
type DefinitionError struct {
	FlowID string
	NodeID string
	Code   string
	Reason string
}

func (e *DefinitionError) Error() string {
	var b strings.Builder
	b.WriteString("flow")
	if e.FlowID != "" {
		fmt.Fprintf(&b, " '%s'", e.FlowID)
	}
	if e.NodeID != "" {
		fmt.Fprintf(&b, " node '%s'", e.NodeID)
	}
	fmt.Fprintf(&b, ": %s (%s)", e.Reason, e.Code)
	return b.String()
}

func (e *DefinitionError) Unwrap() error { return ErrDefinition }

// NodeNotFoundError reports an unresolved flow or node id.
type NodeNotFoundError struct {
	FlowID string
	NodeID string
}

func (e *NodeNotFoundError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("flow '%s' not found", e.FlowID)
	}
	return fmt.Sprintf("node '%s' not found in flow '%s'", e.NodeID, e.FlowID)
}

func (e *NodeNotFoundError) Unwrap() error {
	if e.NodeID == "" {
		return ErrFlowNotFound
	}
	return ErrNodeNotFound
}

// TransitionError reports why a node rejected an input.
// Err is one of ErrInvalidTransition, ErrInvalidOption or ErrNoTransition.
type TransitionError struct {
	NodeID string
	Kind   NodeKind
	Input  InputKind
	Err    error
}

func (e *TransitionError) Error() string {
	switch {
	case errors.Is(e.Err, ErrInvalidOption):
		return fmt.Sprintf("node '%s': selected option does not exist", e.NodeID)
	case errors.Is(e.Err, ErrNoTransition):
		return fmt.Sprintf("node '%s' (%s) has no outgoing transition", e.NodeID, e.Kind)
	}
	in := string(e.Input)
	if in == "" {
		in = "empty"
	}
	return fmt.Sprintf("node '%s' (%s) does not accept %s input", e.NodeID, e.Kind, in)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// ValidationError lists the form fields that failed validation, keyed by field.
type ValidationError struct {
	NodeID string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("node '%s' validation failed: %s", e.NodeID, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// DynamicResolutionError wraps a failed dynamic query.
type DynamicResolutionError struct {
	Query string
	Err   error
}

func (e *DynamicResolutionError) Error() string {
	return fmt.Sprintf("dynamic query '%s' failed: %v", e.Query, e.Err)
}

func (e *DynamicResolutionError) Is(target error) bool { return target == ErrDynamicResolution }
func (e *DynamicResolutionError) Unwrap() error        { return e.Err }

// SideEffectError wraps a failed lead creation.
type SideEffectError struct {
	SessionID string
	DedupeID  string
	Err       error
}

func (e *SideEffectError) Error() string {
	return fmt.Sprintf("lead creation for session '%s' (%s) failed: %v", e.SessionID, e.DedupeID, e.Err)
}

func (e *SideEffectError) Is(target error) bool { return target == ErrSideEffect }
func (e *SideEffectError) Unwrap() error        { return e.Err }

// Error codes exposed to clients.
const (
	CodeFlowNotFound      = "FLOW_NOT_FOUND"
	CodeNodeNotFound      = "NODE_NOT_FOUND"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInvalidOption     = "INVALID_OPTION"
	CodeNoTransition      = "NO_TRANSITION"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeBadRequest        = "BAD_REQUEST"
	CodeVersionConflict   = "VERSION_CONFLICT"
	CodeInternal          = "INTERNAL"
)

// Code maps an error to its client-facing code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFlowNotFound):
		return CodeFlowNotFound
	case errors.Is(err, ErrNodeNotFound):
		return CodeNodeNotFound
	case errors.Is(err, ErrInvalidOption):
		return CodeInvalidOption
	case errors.Is(err, ErrNoTransition):
		return CodeNoTransition
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrValidationFailed):
		return CodeValidationFailed
	case errors.Is(err, ErrBadRequest):
		return CodeBadRequest
	case errors.Is(err, ErrVersionConflict):
		return CodeVersionConflict
	}
	return CodeInternal
}

// IsRejection reports whether err is a client-correctable turn error.
func IsRejection(err error) bool {
	return errors.Is(err, ErrFlowNotFound) ||
		errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidOption) ||
		errors.Is(err, ErrNoTransition) ||
		errors.Is(err, ErrValidationFailed)
}
