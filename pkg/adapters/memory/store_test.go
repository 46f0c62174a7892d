package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/leadflow/pkg/adapters/memory"
	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/aretw0/leadflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunSessionStoreContract(t, store)
}

func TestMemoryStore_Isolation(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	sess := &domain.Session{ID: "s1", VisitorRef: "v", OriginRef: "o", CurrentNodeID: "N1", State: domain.NewState(nil)}
	require.NoError(t, store.Create(ctx, sess))

	sess.CurrentNodeID = "mutated"
	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "N1", got.CurrentNodeID, "caller mutations do not leak into the store")

	got.CurrentNodeID = "also mutated"
	again, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "N1", again.CurrentNodeID)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_FindByVisitorOldest(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, store.Create(ctx, &domain.Session{ID: id, VisitorRef: "v", OriginRef: "o"}))
	}
	got, err := store.FindByVisitor(ctx, "v", "o")
	require.NoError(t, err)
	assert.Equal(t, "first", got.ID)
}
