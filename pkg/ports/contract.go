package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore
// implementation adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405.000000")

	newSession := func(id, visitor string) *domain.Session {
		now := time.Now().UTC().Truncate(time.Millisecond)
		return &domain.Session{
			ID:            id,
			VisitorRef:    visitor,
			OriginRef:     "https://example.test/landing",
			FlowID:        "lead_capture",
			CurrentNodeID: "N0",
			State:         domain.NewState(map[string]any{"tipoEstudio1": "Grado"}),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	t.Run("Create and Get", func(t *testing.T) {
		s := newSession(prefix+"-get", prefix+"-v1")
		require.NoError(t, store.Create(ctx, s))
		assert.Equal(t, int64(1), s.Version)

		loaded, err := store.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.VisitorRef, loaded.VisitorRef)
		assert.Equal(t, s.CurrentNodeID, loaded.CurrentNodeID)
		assert.Equal(t, int64(1), loaded.Version)
		assert.Equal(t, "Grado", loaded.State.String("tipoEstudio1"))
	})

	t.Run("Create Duplicate", func(t *testing.T) {
		s := newSession(prefix+"-dup", prefix+"-v2")
		require.NoError(t, store.Create(ctx, s))
		err := store.Create(ctx, newSession(s.ID, "someone-else"))
		assert.ErrorIs(t, err, domain.ErrSessionExists)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, prefix+"-missing")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("FindByVisitor", func(t *testing.T) {
		s := newSession(prefix+"-find", prefix+"-v3")
		require.NoError(t, store.Create(ctx, s))

		found, err := store.FindByVisitor(ctx, s.VisitorRef, s.OriginRef)
		require.NoError(t, err)
		assert.Equal(t, s.ID, found.ID)

		_, err = store.FindByVisitor(ctx, s.VisitorRef, "https://other.test")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Update bumps version", func(t *testing.T) {
		s := newSession(prefix+"-upd", prefix+"-v4")
		require.NoError(t, store.Create(ctx, s))

		s.CurrentNodeID = "N1"
		s.State = s.State.With("tipoEstudio2", "Presencial").WithLead("C-101")
		require.NoError(t, store.Update(ctx, s))
		assert.Equal(t, int64(2), s.Version)

		loaded, err := store.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, "N1", loaded.CurrentNodeID)
		assert.Equal(t, int64(2), loaded.Version)
		assert.Equal(t, "Presencial", loaded.State.String("tipoEstudio2"))
		assert.Equal(t, []string{"C-101"}, loaded.State.CreatedLeads())
	})

	t.Run("Update stale version", func(t *testing.T) {
		s := newSession(prefix+"-stale", prefix+"-v5")
		require.NoError(t, store.Create(ctx, s))

		first := s.Clone()
		second := s.Clone()
		require.NoError(t, store.Update(ctx, first))

		err := store.Update(ctx, second)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
	})

	t.Run("Update Non-Existent", func(t *testing.T) {
		s := newSession(prefix+"-ghost", prefix+"-v6")
		s.Version = 1
		err := store.Update(ctx, s)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newSession(prefix+"-del", prefix+"-v7")
		require.NoError(t, store.Create(ctx, s))

		require.NoError(t, store.Delete(ctx, s.ID))
		_, err := store.Get(ctx, s.ID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Get after Delete should return ErrSessionNotFound")

		_, err = store.FindByVisitor(ctx, s.VisitorRef, s.OriginRef)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		assert.NoError(t, store.Delete(ctx, s.ID), "deleting twice is not an error")
	})
}
