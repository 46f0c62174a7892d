package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/aretw0/leadflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recordingCreator struct {
	mu    sync.Mutex
	calls []ports.LeadRequest
	err   error
}

func (r *recordingCreator) CreateLead(_ context.Context, req ports.LeadRequest) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req)
	if r.err != nil {
		return "", r.err
	}
	return "00Q-" + req.DedupeID, nil
}

func (r *recordingCreator) Calls() []ports.LeadRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.LeadRequest(nil), r.calls...)
}

func commitFlow(commits ...domain.CommitEdge) *domain.Flow {
	return domain.NewFlow(domain.FlowDefinition{
		ID:      "lead_capture",
		Version: "1",
		Nodes: []domain.Node{
			&domain.ChoiceNode{NodeBase: domain.NodeBase{ID: "N10"}, Options: []domain.Option{{Label: "Whatsapp", Next: "N11"}}},
			&domain.ChoiceNode{NodeBase: domain.NodeBase{ID: "N11"}, Options: []domain.Option{{Label: "Sí", Next: "N10"}}},
		},
		Commits: commits,
	})
}

func TestMaybeDispatch_OncePerSelection(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	creator := &recordingCreator{}
	d := New(creator, NewExecutor())
	flow := commitFlow(domain.CommitEdge{From: "N10", To: "N11"})
	state := domain.NewState(map[string]any{"selectedCourseId": "C-101", "name": "Ana"})
	commit := Commit{Flow: flow, FromNodeID: "N10", ToNodeID: "N11", State: state, SessionID: "s1", ContactMethod: "Whatsapp"}

	first, fired := d.MaybeDispatch(context.Background(), commit)
	require.True(t, fired)
	assert.Equal(t, []string{"C-101"}, first.CreatedLeads())
	assert.Empty(t, state.CreatedLeads(), "input state untouched")

	commit.State = first
	second, fired := d.MaybeDispatch(context.Background(), commit)
	assert.False(t, fired)
	assert.Equal(t, []string{"C-101"}, second.CreatedLeads())

	require.NoError(t, d.Close(context.Background()))
	calls := creator.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "C-101", calls[0].DedupeID)
	assert.Equal(t, "Whatsapp", calls[0].ContactMethod)
	assert.Equal(t, "lead_capture", calls[0].FlowID)
	assert.Equal(t, "Ana", calls[0].State.String("name"))
}

func TestMaybeDispatch_NewSelectionFiresAgain(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	creator := &recordingCreator{}
	d := New(creator, NewExecutor())
	flow := commitFlow(domain.CommitEdge{From: "N10", To: "N11"})
	state := domain.NewState(map[string]any{"selectedCourseId": "C-101"}).WithLead("C-101").With("selectedCourseId", "C-202")

	next, fired := d.MaybeDispatch(context.Background(), Commit{Flow: flow, FromNodeID: "N10", ToNodeID: "N11", State: state})
	require.True(t, fired)
	assert.Equal(t, []string{"C-101", "C-202"}, next.CreatedLeads())

	require.NoError(t, d.Close(context.Background()))
	assert.Len(t, creator.Calls(), 1)
}

func TestMaybeDispatch_FallbackIdentifier(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := New(&recordingCreator{}, NewExecutor())
	flow := commitFlow(domain.CommitEdge{From: "N10", To: "N11", DedupeKey: "missing"})

	next, fired := d.MaybeDispatch(context.Background(), Commit{Flow: flow, FromNodeID: "N10", ToNodeID: "N11", State: domain.NewState(nil)})
	require.True(t, fired)
	assert.Equal(t, []string{"N10->N11"}, next.CreatedLeads())
	require.NoError(t, d.Close(context.Background()))
}

func TestMaybeDispatch_NotACommitEdge(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	creator := &recordingCreator{}
	d := New(creator, NewExecutor())
	flow := commitFlow(domain.CommitEdge{From: "N10", To: "N11"})
	state := domain.NewState(map[string]any{"selectedCourseId": "C-101"})

	next, fired := d.MaybeDispatch(context.Background(), Commit{Flow: flow, FromNodeID: "N11", ToNodeID: "N10", State: state})
	assert.False(t, fired)
	assert.True(t, next.Equal(state))

	_, fired = d.MaybeDispatch(context.Background(), Commit{FromNodeID: "N10", ToNodeID: "N11", State: state})
	assert.False(t, fired, "no flow, no commit")

	require.NoError(t, d.Close(context.Background()))
	assert.Empty(t, creator.Calls())
}

func TestMaybeDispatch_FailureIsIsolated(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	creator := &recordingCreator{err: errors.New("crm unavailable")}
	done := make(chan *domain.LeadEvent, 1)
	queued := make(chan *domain.LeadEvent, 1)
	hooks := domain.LifecycleHooks{
		OnLeadQueued: func(_ context.Context, e *domain.LeadEvent) { queued <- e },
		OnLeadDone:   func(_ context.Context, e *domain.LeadEvent) { done <- e },
	}
	d := New(creator, NewExecutor(), WithHooks(hooks))
	flow := commitFlow(domain.CommitEdge{From: "N10", To: "N11"})

	next, fired := d.MaybeDispatch(context.Background(), Commit{
		Flow: flow, FromNodeID: "N10", ToNodeID: "N11", SessionID: "s1",
		State: domain.NewState(map[string]any{"selectedCourseId": "C-101"}),
	})
	require.True(t, fired)
	assert.True(t, next.HasLead("C-101"), "marker stays set on failure")
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, "C-101", (<-queued).DedupeID)
	ev := <-done
	assert.ErrorIs(t, ev.Err, domain.ErrSideEffect)
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, domain.EventLeadDone, ev.Type)
}

func TestMaybeDispatch_ClosedExecutorKeepsMarker(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	exec := NewExecutor()
	require.NoError(t, exec.Close(context.Background()))
	done := make(chan *domain.LeadEvent, 1)
	creator := &recordingCreator{}
	d := New(creator, exec, WithHooks(domain.LifecycleHooks{
		OnLeadDone: func(_ context.Context, e *domain.LeadEvent) { done <- e },
	}))

	next, fired := d.MaybeDispatch(context.Background(), Commit{
		Flow: commitFlow(domain.CommitEdge{From: "N10", To: "N11"}), FromNodeID: "N10", ToNodeID: "N11",
		State: domain.NewState(map[string]any{"selectedCourseId": "C-101"}),
	})
	assert.True(t, fired)
	assert.True(t, next.HasLead("C-101"))
	assert.ErrorIs(t, (<-done).Err, ErrExecutorClosed)
	assert.Empty(t, creator.Calls())
}
