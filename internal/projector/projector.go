// Package projector applies a node's save spec to the conversation state.
package projector

import (
	"context"
	"log/slog"

	"github.com/aretw0/leadflow/internal/engine"
	"github.com/aretw0/leadflow/internal/logging"
	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/aretw0/leadflow/pkg/ports"
)

// Projector produces the next conversation state of a turn.
// It never mutates the previous state.
type Projector struct {
	resolver ports.OptionResolver
	enricher ports.Enricher
	logger   *slog.Logger
	hooks    domain.LifecycleHooks
}

// Option configures a Projector.
type Option func(*Projector)

// WithLogger sets the logger used to report swallowed enrichment failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Projector) {
		p.logger = logger
	}
}

// WithHooks sets the lifecycle hooks notified of enrichment failures.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(p *Projector) {
		p.hooks = hooks
	}
}

// New creates a projector. Both collaborators may be nil, which disables enrichment.
func New(resolver ports.OptionResolver, enricher ports.Enricher, opts ...Option) *Projector {
	p := &Projector{
		resolver: resolver,
		enricher: enricher,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply returns the state that results from submitting input at node.
// Inputs that do not fit the node kind leave the state unchanged.
func (p *Projector) Apply(ctx context.Context, node domain.Node, input domain.Input, prev domain.State) domain.State {
	switch n := node.(type) {
	case *domain.ChoiceNode:
		sel, ok := input.(domain.Selection)
		if !ok {
			return prev
		}
		return prev.Merge(projectChoice(n, sel))

	case *domain.DynamicNode:
		sel, ok := input.(domain.Selection)
		if !ok {
			return prev
		}
		next := prev.Merge(projectSelection(n.Save, sel))
		return p.enrich(ctx, n, sel, next)

	case *domain.FormNode:
		payload, ok := input.(domain.FormPayload)
		if !ok {
			return prev
		}
		return prev.Merge(projectForm(n, payload))

	case *domain.MessageNode, *domain.EndNode:
		return prev
	}
	return prev
}

func projectChoice(n *domain.ChoiceNode, sel domain.Selection) map[string]any {
	opt, ok := engine.MatchOption(n.Options, sel)
	if !ok {
		return projectSelection(n.Save, sel)
	}

	updates := make(map[string]any)
	if n.Save.Key != "" {
		updates[n.Save.Key] = opt.Identity()
		return updates
	}
	for _, src := range n.Save.Sources() {
		if v, ok := opt.Lookup(src); ok {
			updates[n.Save.Mapping[src]] = v
		}
	}
	return updates
}

// projectSelection saves what the input itself carries: its value and label.
func projectSelection(spec domain.SaveSpec, sel domain.Selection) map[string]any {
	updates := make(map[string]any)
	if spec.Key != "" {
		if key := sel.Key(); key != nil {
			updates[spec.Key] = key
		}
		return updates
	}
	for _, src := range spec.Sources() {
		switch src {
		case "value":
			if key := sel.Key(); key != nil {
				updates[spec.Mapping[src]] = key
			}
		case "label":
			updates[spec.Mapping[src]] = sel.Label
		}
	}
	return updates
}

// A mapped comment field is always stored, blank when not submitted, and is
// also kept under userComment.
const (
	commentField   = "comment"
	keyUserComment = "userComment"
)

func projectForm(n *domain.FormNode, payload domain.FormPayload) map[string]any {
	updates := make(map[string]any)
	for _, src := range n.Save.Sources() {
		target := n.Save.Mapping[src]
		if src == commentField {
			comment, ok := payload[commentField]
			if !ok || comment == nil {
				comment = ""
			}
			updates[target] = comment
			updates[keyUserComment] = comment
			continue
		}
		if v, ok := payload[src]; ok {
			updates[target] = v
			continue
		}
		// Declared but unsubmitted fields are stored blank.
		if _, declared := n.Field(src); declared {
			updates[target] = ""
		}
	}
	for field, target := range n.Mirror {
		if v, ok := payload[field]; ok {
			updates[target] = v
		}
	}
	return updates
}

// enrich re-runs the node's query against the updated state and copies the
// declared attributes of the selected option. Failures are logged and swallowed.
func (p *Projector) enrich(ctx context.Context, n *domain.DynamicNode, sel domain.Selection, state domain.State) domain.State {
	if p.enricher == nil || p.resolver == nil {
		return state
	}
	mapping, ok := p.enricher.Enrichment(n.Query)
	if !ok {
		return state
	}
	key := sel.Key()
	if key == nil {
		return state
	}

	options, err := p.resolver.Resolve(ctx, n.Query, state)
	if err != nil {
		p.logger.Warn("enrichment failed, continuing with partial state",
			"node_id", n.NodeID(), "query", n.Query, "err", err)
		p.hooks.EmitResolutionError(ctx, &domain.ResolutionEvent{NodeID: n.NodeID(), Query: n.Query, Err: err})
		return state
	}

	for _, opt := range options {
		if !domain.ScalarEqual(opt.Identity(), key) {
			continue
		}
		updates := make(map[string]any, len(mapping))
		for src, target := range mapping {
			if v, ok := opt.Lookup(src); ok {
				updates[target] = v
			}
		}
		return state.Merge(updates)
	}

	p.logger.Debug("selected value not among resolved options", "node_id", n.NodeID(), "query", n.Query)
	return state
}
