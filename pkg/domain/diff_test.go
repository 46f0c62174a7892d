package domain_test

import (
	"testing"

	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	before := &domain.Session{
		ID:            "s1",
		CurrentNodeID: "N9",
		State:         domain.NewState(map[string]any{"name": "Ana", "stale": true}),
	}
	after := &domain.Session{
		ID:            "s1",
		CurrentNodeID: "N10",
		State:         domain.NewState(map[string]any{"name": "Ana", "email": "ana@example.com"}).WithLead("C-1"),
	}

	diff := domain.Diff(before, after)
	require.NotNil(t, diff)
	require.NotNil(t, diff.CurrentNodeID)
	assert.Equal(t, "N10", *diff.CurrentNodeID)
	assert.Equal(t, map[string]any{"email": "ana@example.com", "stale": nil}, diff.Context)
	assert.Equal(t, []string{"C-1"}, diff.LeadsAppended)
}

func TestDiff_NoChanges(t *testing.T) {
	s := &domain.Session{ID: "s1", CurrentNodeID: "N1", State: domain.NewState(map[string]any{"a": 1})}
	assert.Nil(t, domain.Diff(s, s.Clone()))
}

func TestDiff_InitialLoad(t *testing.T) {
	s := &domain.Session{ID: "s1", CurrentNodeID: "N1"}
	diff := domain.Diff(nil, s)
	require.NotNil(t, diff)
	assert.Equal(t, "N1", *diff.CurrentNodeID)
}
