package leadflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/leadflow/internal/logging"
	httpadapter "github.com/aretw0/leadflow/pkg/adapters/http"
	"github.com/aretw0/leadflow/pkg/adapters/memory"
	"github.com/aretw0/leadflow/pkg/dispatch"
	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/aretw0/leadflow/pkg/dynamic"
	"github.com/aretw0/leadflow/pkg/flowstore"
	"github.com/aretw0/leadflow/pkg/leads"
	"github.com/aretw0/leadflow/pkg/observability"
	"github.com/aretw0/leadflow/pkg/orchestrator"
	"github.com/aretw0/leadflow/pkg/ports"
	"github.com/aretw0/leadflow/pkg/session"
)

// ErrNoFlows is returned by New when neither WithFlows nor WithFlowDir is given.
var ErrNoFlows = errors.New("no flows configured")

// Engine is the high-level entry point of the library.
// It wires the orchestrator to its stores, queries and lead pipeline.
type Engine struct {
	flows      *flowstore.Store
	flowDir    string
	store      ports.SessionStore
	creator    ports.LeadCreator
	queries    []dynamic.Query
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	registry   *prometheus.Registry
	sessOpts   []session.Option
	execOpts   []dispatch.ExecutorOption
	orchOpts   []orchestrator.Option
	dispatcher *dispatch.Dispatcher
	sessions   *session.Manager
	orch       *orchestrator.Orchestrator
	streams    *httpadapter.StreamManager
	metrics    *observability.Metrics
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithFlows uses an already loaded flow store.
func WithFlows(store *flowstore.Store) Option {
	return func(e *Engine) {
		e.flows = store
	}
}

// WithFlowDir loads every flow document in dir.
func WithFlowDir(dir string) Option {
	return func(e *Engine) {
		e.flowDir = dir
	}
}

// WithSessionStore replaces the in-memory session store.
func WithSessionStore(store ports.SessionStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithSessionOptions passes options to the session manager (locker, lock TTL).
func WithSessionOptions(opts ...session.Option) Option {
	return func(e *Engine) {
		e.sessOpts = append(e.sessOpts, opts...)
	}
}

// WithLeadCreator sets where committed leads go. The default logs them.
func WithLeadCreator(c ports.LeadCreator) Option {
	return func(e *Engine) {
		e.creator = c
	}
}

// WithQueries registers dynamic option queries.
func WithQueries(queries ...dynamic.Query) Option {
	return func(e *Engine) {
		e.queries = append(e.queries, queries...)
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics registers the engine collectors on reg and serves it at /metrics.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(e *Engine) {
		e.registry = reg
	}
}

// WithExecutorOptions tunes the lead job executor.
func WithExecutorOptions(opts ...dispatch.ExecutorOption) Option {
	return func(e *Engine) {
		e.execOpts = append(e.execOpts, opts...)
	}
}

// WithDefaultFlow sets the flow used when a request names none.
func WithDefaultFlow(id string) Option {
	return func(e *Engine) {
		e.orchOpts = append(e.orchOpts, orchestrator.WithDefaultFlow(id))
	}
}

// WithMaxValueSize bounds a single submitted string value.
func WithMaxValueSize(n int) Option {
	return func(e *Engine) {
		e.orchOpts = append(e.orchOpts, orchestrator.WithMaxValueSize(n))
	}
}

// New initializes an Engine.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}

	if eng.flows == nil {
		if eng.flowDir == "" {
			return nil, ErrNoFlows
		}
		store, err := flowstore.LoadDir(eng.flowDir, flowstore.WithLogger(eng.logger))
		if err != nil {
			return nil, fmt.Errorf("loading flows: %w", err)
		}
		eng.flows = store
	}
	if eng.flows.Len() == 0 {
		return nil, ErrNoFlows
	}
	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	if eng.creator == nil {
		eng.creator = leads.NewLogCreator(nil, eng.logger)
	}

	eng.streams = httpadapter.NewStreamManager(eng.logger)
	hookSets := []domain.LifecycleHooks{eng.hooks, observability.LoggingHooks(eng.logger), eng.streams.Hooks()}
	if eng.registry != nil {
		eng.metrics = observability.NewMetrics(eng.registry)
		hookSets = append(hookSets, eng.metrics.Hooks())
	}
	hooks := observability.Combine(hookSets...)

	registry := dynamic.NewRegistry(eng.queries...)
	executor := dispatch.NewExecutor(append([]dispatch.ExecutorOption{dispatch.WithExecutorLogger(eng.logger)}, eng.execOpts...)...)
	eng.dispatcher = dispatch.New(eng.creator, executor,
		dispatch.WithLogger(eng.logger),
		dispatch.WithHooks(hooks),
	)
	eng.sessions = session.NewManager(eng.store, append([]session.Option{session.WithLogger(eng.logger)}, eng.sessOpts...)...)
	eng.orch = orchestrator.New(eng.flows, eng.sessions, registry, registry,
		append([]orchestrator.Option{
			orchestrator.WithLogger(eng.logger),
			orchestrator.WithHooks(hooks),
			orchestrator.WithDispatcher(eng.dispatcher),
		}, eng.orchOpts...)...,
	)
	return eng, nil
}

// Turn runs one conversation turn.
func (e *Engine) Turn(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResponse, error) {
	return e.orch.Turn(ctx, req)
}

// Flows returns the loaded flows.
func (e *Engine) Flows() *flowstore.Store {
	return e.flows
}

// Sessions returns the session manager.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Handler returns the HTTP API bound to this engine.
func (e *Engine) Handler(opts ...httpadapter.Option) http.Handler {
	base := []httpadapter.Option{
		httpadapter.WithLogger(e.logger),
		httpadapter.WithStreams(e.streams),
	}
	if e.registry != nil {
		base = append(base, httpadapter.WithMetricsHandler(promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})))
	}
	return httpadapter.NewHandler(e.orch, e.flows, append(base, opts...)...)
}

// Close drains queued lead jobs until ctx ends.
func (e *Engine) Close(ctx context.Context) error {
	return e.dispatcher.Close(ctx)
}
