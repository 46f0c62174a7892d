package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTurn            EventType = "turn"
	EventLeadQueued      EventType = "lead_queued"
	EventLeadDone        EventType = "lead_done"
	EventResolutionError EventType = "resolution_error"
)

// Turn outcomes.
const (
	OutcomeRendered = "rendered"
	OutcomeAdvanced = "advanced"
	OutcomeRejected = "rejected"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	FlowID    string    `json:"flow_id,omitempty"`
}

// TurnEvent is emitted once per orchestrated turn.
type TurnEvent struct {
	EventBase
	FromNodeID string `json:"from_node_id"`
	ToNodeID   string `json:"to_node_id,omitempty"`
	Outcome    string `json:"outcome"`
	Code       string `json:"code,omitempty"`

	// Diff is set on advanced turns.
	Diff *StateDiff `json:"diff,omitempty"`
}

// LeadEvent describes a lead creation job.
type LeadEvent struct {
	EventBase
	DedupeID string        `json:"dedupe_id"`
	LeadID   string        `json:"lead_id,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// ResolutionEvent describes a failed dynamic query.
type ResolutionEvent struct {
	EventBase
	NodeID string `json:"node_id"`
	Query  string `json:"query"`
	Err    error  `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
// Any hook may be nil.
type LifecycleHooks struct {
	OnTurn            func(context.Context, *TurnEvent)
	OnLeadQueued      func(context.Context, *LeadEvent)
	OnLeadDone        func(context.Context, *LeadEvent)
	OnResolutionError func(context.Context, *ResolutionEvent)
}

// EmitTurn invokes OnTurn when set.
func (h LifecycleHooks) EmitTurn(ctx context.Context, e *TurnEvent) {
	if h.OnTurn != nil {
		e.Type = EventTurn
		stamp(&e.EventBase)
		h.OnTurn(ctx, e)
	}
}

// EmitLeadQueued invokes OnLeadQueued when set.
func (h LifecycleHooks) EmitLeadQueued(ctx context.Context, e *LeadEvent) {
	if h.OnLeadQueued != nil {
		e.Type = EventLeadQueued
		stamp(&e.EventBase)
		h.OnLeadQueued(ctx, e)
	}
}

// EmitLeadDone invokes OnLeadDone when set.
func (h LifecycleHooks) EmitLeadDone(ctx context.Context, e *LeadEvent) {
	if h.OnLeadDone != nil {
		e.Type = EventLeadDone
		stamp(&e.EventBase)
		h.OnLeadDone(ctx, e)
	}
}

// EmitResolutionError invokes OnResolutionError when set.
func (h LifecycleHooks) EmitResolutionError(ctx context.Context, e *ResolutionEvent) {
	if h.OnResolutionError != nil {
		e.Type = EventResolutionError
		stamp(&e.EventBase)
		h.OnResolutionError(ctx, e)
	}
}

func stamp(b *EventBase) {
	if b.Timestamp.IsZero() {
		b.Timestamp = time.Now()
	}
}
