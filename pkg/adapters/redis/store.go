package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/leadflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store and the locker.
const DefaultPrefix = "leadflow:"

// noExpiryScore is the index score of sessions without a TTL (2100-01-01).
const noExpiryScore = 4102444800

// compareAndDelete deletes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Store implements ports.SessionStore using Redis.
//
// Each session is a JSON value under <prefix>session:<id>. The first session of
// a visitor/origin pair is indexed under <prefix>visitor:<visitor>:<origin>, and
// <prefix>index is a sorted set of session ids scored by expiry.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the expiration for sessions. Every update refreshes it.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(sessionID string) string {
	return s.prefix + "session:" + sessionID
}

func (s *Store) visitorKey(visitorRef, originRef string) string {
	return s.prefix + "visitor:" + visitorRef + ":" + originRef
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

func (s *Store) score() float64 {
	if s.ttl == 0 {
		return noExpiryScore
	}
	return float64(time.Now().Add(s.ttl).Unix())
}

// Create persists a new session with version 1.
func (s *Store) Create(ctx context.Context, sess *domain.Session) error {
	record := sess.Clone()
	record.Version = 1
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.key(sess.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create session in redis: %w", err)
	}
	if !created {
		return domain.ErrSessionExists
	}

	pipe := s.client.Pipeline()
	pipe.SetNX(ctx, s.visitorKey(sess.VisitorRef, sess.OriginRef), sess.ID, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: s.score(), Member: sess.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}

	sess.Version = 1
	return nil
}

// Get retrieves a session.
func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.get(ctx, s.client, sessionID)
}

type getter interface {
	Get(ctx context.Context, key string) *backend.StringCmd
}

func (s *Store) get(ctx context.Context, c getter, sessionID string) (*domain.Session, error) {
	val, err := c.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(val, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// FindByVisitor returns the first session created for the visitor/origin pair.
// A stale index entry pointing to an expired session is removed.
func (s *Store) FindByVisitor(ctx context.Context, visitorRef, originRef string) (*domain.Session, error) {
	vkey := s.visitorKey(visitorRef, originRef)
	id, err := s.client.Get(ctx, vkey).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read visitor index: %w", err)
	}

	sess, err := s.Get(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		if delErr := compareAndDelete.Run(ctx, s.client, []string{vkey}, id).Err(); delErr != nil {
			return nil, fmt.Errorf("failed to prune visitor index: %w", delErr)
		}
	}
	return sess, err
}

// Update replaces the session when the stored version matches.
// The check and write run in one WATCH transaction.
func (s *Store) Update(ctx context.Context, sess *domain.Session) error {
	key := s.key(sess.ID)
	next := sess.Clone()
	next.Version = sess.Version + 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	txf := func(tx *backend.Tx) error {
		current, err := s.get(ctx, tx, sess.ID)
		if err != nil {
			return err
		}
		if current.Version != sess.Version {
			return domain.ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: s.score(), Member: sess.ID})
			if s.ttl > 0 {
				pipe.Expire(ctx, s.visitorKey(sess.VisitorRef, sess.OriginRef), s.ttl)
			}
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, key)
	switch {
	case err == nil:
		sess.Version = next.Version
		return nil
	case errors.Is(err, backend.TxFailedErr):
		return domain.ErrVersionConflict
	case errors.Is(err, domain.ErrVersionConflict), errors.Is(err, domain.ErrSessionNotFound):
		return err
	}
	return fmt.Errorf("failed to update session in redis: %w", err)
}

// Delete removes the session and its index entries.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return s.client.ZRem(ctx, s.indexKey(), sessionID).Err()
	}
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(sessionID))
	pipe.ZRem(ctx, s.indexKey(), sessionID)
	compareAndDelete.Eval(ctx, pipe, []string{s.visitorKey(sess.VisitorRef, sess.OriginRef)}, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// List returns the ids of live sessions, pruning expired index entries.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
	}

	sessions, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
