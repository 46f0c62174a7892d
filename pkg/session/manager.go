package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/aretw0/leadflow/internal/logging"
	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/aretw0/leadflow/pkg/ports"
	"github.com/google/uuid"
)

// DefaultLockTTL bounds how long a distributed lock is held.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.SessionStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
	newID   func() string
	now     func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the distributed lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithIDGenerator replaces the uuid session id generator.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		m.newID = fn
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a new Session Manager with the given persistence store.
func NewManager(store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Key identifies the session a turn belongs to.
type Key struct {
	SessionID  string
	VisitorRef string
	OriginRef  string
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// Resolve returns the session for a turn and whether it was created.
// A missing or unknown SessionID falls back to the visitor/origin pair.
// New sessions start at startNodeID of flowID.
func (m *Manager) Resolve(ctx context.Context, key Key, flowID, startNodeID string) (*domain.Session, bool, error) {
	if key.SessionID != "" {
		sess, err := m.store.Get(ctx, key.SessionID)
		if err == nil {
			return sess, false, nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return nil, false, fmt.Errorf("failed to load session: %w", err)
		}
		m.logger.Debug("unknown session id, resolving by visitor", "session_id", key.SessionID)
	}

	var (
		sess    *domain.Session
		created bool
	)
	err := m.WithLock(ctx, visitorLockKey(key), func(ctx context.Context) error {
		found, err := m.store.FindByVisitor(ctx, key.VisitorRef, key.OriginRef)
		if err == nil {
			sess = found
			return nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("failed to find visitor session: %w", err)
		}

		now := m.now()
		sess = &domain.Session{
			ID:            m.newID(),
			VisitorRef:    key.VisitorRef,
			OriginRef:     key.OriginRef,
			FlowID:        flowID,
			CurrentNodeID: startNodeID,
			State:         domain.NewState(nil),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := m.store.Create(ctx, sess); err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}
		created = true
		m.logger.Info("session created", "session_id", sess.ID, "flow_id", flowID)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return sess, created, nil
}

// Load retrieves an existing session from the store.
func (m *Manager) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.store.Get(ctx, sessionID)
}

// Save persists the session, stamping UpdatedAt and advancing its version.
func (m *Manager) Save(ctx context.Context, sess *domain.Session) error {
	sess.UpdatedAt = m.now()
	if err := m.store.Update(ctx, sess); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}

// WithLock executes a function while holding the lock for the key.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"key", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

func visitorLockKey(k Key) string {
	return "visitor:" + k.VisitorRef + ":" + k.OriginRef
}
