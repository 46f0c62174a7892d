package ports

import (
	"context"

	"github.com/aretw0/leadflow/pkg/domain"
)

// SessionStore defines the interface for persisting conversation sessions.
type SessionStore interface {
	// Create persists a new session with Version 1 and sets s.Version accordingly.
	// Returns domain.ErrSessionExists if the ID is taken.
	Create(ctx context.Context, s *domain.Session) error

	// Get retrieves a session by ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)

	// FindByVisitor returns the oldest session for a visitor/origin pair.
	// Returns domain.ErrSessionNotFound if there is none.
	FindByVisitor(ctx context.Context, visitorRef, originRef string) (*domain.Session, error)

	// Update replaces a session if its stored version equals s.Version.
	// On success s.Version is advanced to the new stored version.
	// Returns domain.ErrVersionConflict on a stale write and
	// domain.ErrSessionNotFound if the session does not exist.
	Update(ctx context.Context, s *domain.Session) error

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error
}
