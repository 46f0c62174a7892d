package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/leadflow/internal/logging"
	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/aretw0/leadflow/pkg/ports"
)

// Commit describes a completed transition that may trigger lead creation.
type Commit struct {
	Flow       *domain.Flow
	FromNodeID string
	ToNodeID   string
	State      domain.State

	SessionID     string
	VisitorRef    string
	OriginRef     string
	ContactMethod string
}

// Dispatcher fires lead creation at most once per selection.
type Dispatcher struct {
	creator  ports.LeadCreator
	executor *Executor
	logger   *slog.Logger
	hooks    domain.LifecycleHooks
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithHooks sets lifecycle hooks for queued and finished jobs.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(d *Dispatcher) {
		d.hooks = hooks
	}
}

// New creates a dispatcher submitting jobs to executor.
func New(creator ports.LeadCreator, executor *Executor, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		creator:  creator,
		executor: executor,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DedupeID returns the identifier recorded in createdLeads for a commit edge.
func DedupeID(edge domain.CommitEdge, state domain.State) string {
	if id := state.String(edge.Key()); id != "" {
		return id
	}
	return edge.From + "->" + edge.To
}

// MaybeDispatch returns the state with the dedupe identifier appended and true
// when the transition is a commit edge not yet fired for this selection.
// Otherwise it returns the state unchanged and false. The lead job is queued
// after the marker is set and never awaited.
func (d *Dispatcher) MaybeDispatch(ctx context.Context, c Commit) (domain.State, bool) {
	if c.Flow == nil {
		return c.State, false
	}
	edge, ok := c.Flow.CommitEdge(c.FromNodeID, c.ToNodeID)
	if !ok {
		return c.State, false
	}

	dedupeID := DedupeID(edge, c.State)
	logger := d.logger.With("session_id", c.SessionID, "flow_id", c.Flow.ID, "dedupe_id", dedupeID)
	if c.State.HasLead(dedupeID) {
		logger.Debug("lead already created for selection")
		return c.State, false
	}

	next := c.State.WithLead(dedupeID)
	req := ports.LeadRequest{
		SessionID:     c.SessionID,
		FlowID:        c.Flow.ID,
		VisitorRef:    c.VisitorRef,
		OriginRef:     c.OriginRef,
		ContactMethod: c.ContactMethod,
		DedupeID:      dedupeID,
		State:         next,
	}

	base := domain.EventBase{SessionID: c.SessionID, FlowID: c.Flow.ID}
	hookCtx := context.WithoutCancel(ctx)
	var leadID string
	job := Job{
		ID: req.IdempotencyKey(),
		Run: func(ctx context.Context) error {
			id, err := d.creator.CreateLead(ctx, req)
			if err != nil {
				return err
			}
			leadID = id
			return nil
		},
		Done: func(err error, elapsed time.Duration) {
			ev := &domain.LeadEvent{EventBase: base, DedupeID: dedupeID, LeadID: leadID, Duration: elapsed}
			if err != nil {
				ev.Err = &domain.SideEffectError{SessionID: c.SessionID, DedupeID: dedupeID, Err: err}
				logger.Error("lead creation failed", "err", ev.Err)
			} else {
				logger.Info("lead created", "lead_id", leadID, "duration", elapsed)
			}
			d.hooks.EmitLeadDone(hookCtx, ev)
		},
	}

	if err := d.executor.Submit(job); err != nil {
		sideErr := &domain.SideEffectError{SessionID: c.SessionID, DedupeID: dedupeID, Err: err}
		if errors.Is(err, ErrQueueFull) {
			logger.Error("lead job dropped", "err", sideErr)
		} else {
			logger.Error("lead job rejected", "err", sideErr)
		}
		d.hooks.EmitLeadDone(hookCtx, &domain.LeadEvent{EventBase: base, DedupeID: dedupeID, Err: sideErr})
		return next, true
	}

	logger.Info("lead job queued")
	d.hooks.EmitLeadQueued(hookCtx, &domain.LeadEvent{EventBase: base, DedupeID: dedupeID})
	return next, true
}

// Close drains the executor.
func (d *Dispatcher) Close(ctx context.Context) error {
	return d.executor.Close(ctx)
}
