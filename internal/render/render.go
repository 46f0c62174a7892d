// Package render turns flow nodes into the view returned to the visitor.
package render

import (
	"context"
	"log/slog"
	"maps"

	"github.com/aretw0/leadflow/internal/logging"
	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/aretw0/leadflow/pkg/ports"
)

// OptionView is a selectable option as shown to the visitor.
type OptionView struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// FieldView is a form field as shown to the visitor.
type FieldView struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Input    string `json:"input"`
	Required bool   `json:"required"`
}

// View is the rendered form of a node.
type View struct {
	NodeID   string         `json:"currentNodeId"`
	Kind     string         `json:"kind"`
	Prompt   string         `json:"prompt"`
	Options  []OptionView   `json:"options"`
	Fields   []FieldView    `json:"fields"`
	Terminal bool           `json:"terminal"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// Request identifies what to render.
type Request struct {
	FlowID    string
	SessionID string
	Node      domain.Node
	State     domain.State
}

// Renderer builds views, resolving dynamic options at render time.
type Renderer struct {
	resolver    ports.OptionResolver
	interpolate Interpolator
	logger      *slog.Logger
	hooks       domain.LifecycleHooks
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the renderer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

// WithHooks sets lifecycle hooks used to report failed dynamic queries.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Renderer) {
		r.hooks = hooks
	}
}

// WithInterpolator replaces the default {{key}} interpolation.
func WithInterpolator(fn Interpolator) Option {
	return func(r *Renderer) {
		if fn != nil {
			r.interpolate = fn
		}
	}
}

// New creates a renderer. A nil resolver renders dynamic nodes without options.
func New(resolver ports.OptionResolver, opts ...Option) *Renderer {
	r := &Renderer{
		resolver:    resolver,
		interpolate: Interpolate,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render builds the view of req.Node against req.State.
// A failing dynamic query yields a view with no options.
func (r *Renderer) Render(ctx context.Context, req Request) View {
	node := req.Node
	base := node.Base()
	view := View{
		NodeID:   node.NodeID(),
		Kind:     string(node.Kind()),
		Prompt:   r.interpolate(node.Prompt(), req.State),
		Options:  []OptionView{},
		Fields:   []FieldView{},
		Terminal: domain.IsTerminal(node),
		Extra:    maps.Clone(base.Extra),
	}

	switch n := node.(type) {
	case *domain.ChoiceNode:
		view.Options = r.options(n.Options, req.State)
	case *domain.DynamicNode:
		view.Options = r.options(r.resolve(ctx, req, n), req.State)
	case *domain.FormNode:
		for _, f := range n.Fields {
			view.Fields = append(view.Fields, FieldView{
				Key:      f.Key,
				Label:    r.interpolate(f.Label, req.State),
				Input:    string(f.Input),
				Required: f.Required,
			})
		}
	case *domain.MessageNode, *domain.EndNode:
	}
	return view
}

func (r *Renderer) options(opts []domain.Option, state domain.State) []OptionView {
	out := make([]OptionView, 0, len(opts))
	for _, o := range opts {
		out = append(out, OptionView{Label: r.interpolate(o.Label, state), Value: o.Identity()})
	}
	return out
}

func (r *Renderer) resolve(ctx context.Context, req Request, n *domain.DynamicNode) []domain.Option {
	if r.resolver == nil {
		return nil
	}
	opts, err := r.resolver.Resolve(ctx, n.Query, req.State)
	if err != nil {
		r.logger.Warn("dynamic options unavailable",
			"flow_id", req.FlowID, "session_id", req.SessionID, "node_id", n.ID, "query", n.Query, "err", err)
		r.hooks.EmitResolutionError(ctx, &domain.ResolutionEvent{
			EventBase: domain.EventBase{SessionID: req.SessionID, FlowID: req.FlowID},
			NodeID:    n.ID,
			Query:     n.Query,
			Err:       err,
		})
		return nil
	}
	return opts
}
