// Package orchestrator runs conversation turns.
//
// A turn resolves the visitor's session, then under the session lock validates
// the input, computes the next node, projects the new state, fires the lead
// dispatcher on commit edges, persists the session and renders the next node.
// Client mistakes produce a rejected response with the current node
// re-rendered and the stored session untouched.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/leadflow/internal/engine"
	"github.com/aretw0/leadflow/internal/logging"
	"github.com/aretw0/leadflow/internal/projector"
	"github.com/aretw0/leadflow/internal/render"
	"github.com/aretw0/leadflow/pkg/dispatch"
	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/aretw0/leadflow/pkg/ports"
	"github.com/aretw0/leadflow/pkg/session"
)

// FlowSource looks up loaded flows.
type FlowSource interface {
	Flow(id string) (*domain.Flow, error)
}

// LeadDispatcher fires lead creation on commit edges.
type LeadDispatcher interface {
	MaybeDispatch(ctx context.Context, c dispatch.Commit) (domain.State, bool)
}

// TurnRequest is one visitor submission.
// A nil Input is a first load: the current node is rendered without changes.
type TurnRequest struct {
	SessionID  string
	VisitorRef string
	OriginRef  string
	FlowID     string
	Input      domain.Input
}

// Rejection explains why an input was not accepted.
type Rejection struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// TurnResponse is the outcome of a turn.
type TurnResponse struct {
	SessionID string `json:"sessionId"`
	FlowID    string `json:"flowId"`
	render.View
	State     map[string]any `json:"state"`
	Rejection *Rejection     `json:"rejection,omitempty"`
}

// Rejected reports whether the input was refused.
func (r *TurnResponse) Rejected() bool {
	return r.Rejection != nil
}

// Orchestrator composes the engine, projector, dispatcher and renderer.
type Orchestrator struct {
	flows      FlowSource
	sessions   *session.Manager
	resolver   ports.OptionResolver
	enricher   ports.Enricher
	dispatcher LeadDispatcher

	projector *projector.Projector
	renderer  *render.Renderer

	defaultFlow  string
	maxValueSize int
	logger       *slog.Logger
	hooks        domain.LifecycleHooks
	now          func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger. It is shared with the projector and renderer.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithHooks sets the lifecycle hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(o *Orchestrator) {
		o.hooks = hooks
	}
}

// WithDispatcher sets the lead dispatcher. Without one, commit edges are ignored.
func WithDispatcher(d LeadDispatcher) Option {
	return func(o *Orchestrator) {
		o.dispatcher = d
	}
}

// WithDefaultFlow sets the flow used when a request names none.
func WithDefaultFlow(id string) Option {
	return func(o *Orchestrator) {
		o.defaultFlow = id
	}
}

// WithMaxValueSize bounds each submitted string value.
func WithMaxValueSize(n int) Option {
	return func(o *Orchestrator) {
		o.maxValueSize = n
	}
}

// WithClock replaces time.Now for interaction timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an orchestrator. resolver and enricher may be the same registry.
func New(flows FlowSource, sessions *session.Manager, resolver ports.OptionResolver, enricher ports.Enricher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		flows:        flows,
		sessions:     sessions,
		resolver:     resolver,
		enricher:     enricher,
		defaultFlow:  "default",
		maxValueSize: engine.DefaultMaxValueSize,
		logger:       logging.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.projector = projector.New(resolver, enricher, projector.WithLogger(o.logger), projector.WithHooks(o.hooks))
	o.renderer = render.New(resolver, render.WithLogger(o.logger), render.WithHooks(o.hooks))
	return o
}

// Turn runs one conversation turn.
// Rejected inputs return a response with Rejection set and a nil error.
// Errors are reserved for bad requests, unknown flows and infrastructure failures.
func (o *Orchestrator) Turn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	if req.VisitorRef == "" || req.OriginRef == "" {
		return nil, fmt.Errorf("%w: visitorRef and originRef are required", domain.ErrBadRequest)
	}
	input, err := engine.SanitizeInput(req.Input, o.maxValueSize)
	if err != nil {
		return nil, err
	}

	flowID := req.FlowID
	if flowID == "" {
		flowID = o.defaultFlow
	}
	flow, err := o.flows.Flow(flowID)
	if err != nil {
		return nil, err
	}

	key := session.Key{SessionID: req.SessionID, VisitorRef: req.VisitorRef, OriginRef: req.OriginRef}
	sess, created, err := o.sessions.Resolve(ctx, key, flow.ID, flow.Start)
	if err != nil {
		return nil, err
	}

	var resp *TurnResponse
	err = o.sessions.WithLock(ctx, sess.ID, func(ctx context.Context) error {
		current := sess
		if !created {
			// Re-read under the lock so the turn sees the latest committed version.
			loaded, err := o.sessions.Load(ctx, sess.ID)
			if err != nil {
				return err
			}
			current = loaded
		}
		active := flow
		if current.FlowID != flow.ID {
			f, err := o.flows.Flow(current.FlowID)
			if err != nil {
				return err
			}
			active = f
		}
		r, err := o.turn(ctx, active, current, input)
		resp = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (o *Orchestrator) turn(ctx context.Context, flow *domain.Flow, sess *domain.Session, input domain.Input) (*TurnResponse, error) {
	logger := o.logger.With("session_id", sess.ID, "flow_id", flow.ID, "node_id", sess.CurrentNodeID)
	event := &domain.TurnEvent{
		EventBase:  domain.EventBase{SessionID: sess.ID, FlowID: flow.ID},
		FromNodeID: sess.CurrentNodeID,
	}

	current, ok := flow.Node(sess.CurrentNodeID)
	if !ok {
		err := &domain.NodeNotFoundError{FlowID: flow.ID, NodeID: sess.CurrentNodeID}
		logger.Warn("session points at an unknown node", "err", err)
		return o.reject(ctx, event, flow, sess, nil, err), nil
	}

	if input == nil {
		event.Outcome = domain.OutcomeRendered
		o.hooks.EmitTurn(ctx, event)
		return o.respond(ctx, flow, sess, current, sess.State), nil
	}

	if err := engine.ValidateInput(current, input); err != nil {
		return o.reject(ctx, event, flow, sess, current, err), nil
	}
	nextID, err := engine.ComputeNext(current, input)
	if err != nil {
		return o.reject(ctx, event, flow, sess, current, err), nil
	}
	next, ok := flow.Node(nextID)
	if !ok {
		return o.reject(ctx, event, flow, sess, current, &domain.NodeNotFoundError{FlowID: flow.ID, NodeID: nextID}), nil
	}

	state := o.projector.Apply(ctx, current, input, sess.State)
	if o.dispatcher != nil {
		state, _ = o.dispatcher.MaybeDispatch(ctx, dispatch.Commit{
			Flow:          flow,
			FromNodeID:    current.NodeID(),
			ToNodeID:      nextID,
			State:         state,
			SessionID:     sess.ID,
			VisitorRef:    sess.VisitorRef,
			OriginRef:     sess.OriginRef,
			ContactMethod: contactMethod(current, input),
		})
	}

	updated := sess.Clone()
	updated.CurrentNodeID = nextID
	updated.State = state
	updated.LastInteractionAt = o.now()
	if err := o.sessions.Save(ctx, updated); err != nil {
		return nil, err
	}

	event.ToNodeID = nextID
	event.Outcome = domain.OutcomeAdvanced
	event.Diff = domain.Diff(sess, updated)
	logger.Debug("turn advanced", "next_node_id", nextID, "diff", event.Diff)
	o.hooks.EmitTurn(ctx, event)
	return o.respond(ctx, flow, updated, next, state), nil
}

func (o *Orchestrator) reject(ctx context.Context, event *domain.TurnEvent, flow *domain.Flow, sess *domain.Session, current domain.Node, cause error) *TurnResponse {
	rej := &Rejection{Code: domain.Code(cause), Message: cause.Error()}
	var verr *domain.ValidationError
	if errors.As(cause, &verr) {
		rej.Fields = verr.Fields
	}
	o.logger.Debug("turn rejected", "session_id", sess.ID, "node_id", sess.CurrentNodeID, "code", rej.Code, "err", cause)

	event.Outcome = domain.OutcomeRejected
	event.Code = rej.Code
	o.hooks.EmitTurn(ctx, event)

	var resp *TurnResponse
	if current != nil {
		resp = o.respond(ctx, flow, sess, current, sess.State)
	} else {
		resp = &TurnResponse{
			SessionID: sess.ID,
			FlowID:    flow.ID,
			View:      render.View{NodeID: sess.CurrentNodeID, Options: []render.OptionView{}, Fields: []render.FieldView{}},
			State:     sess.State.Map(),
		}
	}
	resp.Rejection = rej
	return resp
}

func (o *Orchestrator) respond(ctx context.Context, flow *domain.Flow, sess *domain.Session, node domain.Node, state domain.State) *TurnResponse {
	view := o.renderer.Render(ctx, render.Request{
		FlowID:    flow.ID,
		SessionID: sess.ID,
		Node:      node,
		State:     state,
	})
	return &TurnResponse{
		SessionID: sess.ID,
		FlowID:    flow.ID,
		View:      view,
		State:     state.Map(),
	}
}

// contactMethod is the identity of the option chosen at the commit node, or
// the raw selection when the node has no options.
func contactMethod(current domain.Node, input domain.Input) string {
	sel, ok := input.(domain.Selection)
	if !ok {
		return ""
	}
	if choice, ok := current.(*domain.ChoiceNode); ok {
		if opt, ok := engine.MatchOption(choice.Options, sel); ok {
			return domain.FormatScalar(opt.Identity())
		}
	}
	return domain.FormatScalar(sel.Key())
}
