package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "call_session:"
	scratchKeyPrefix = "temp:"
)

// ErrNotFound is returned when no session exists for a call SID.
var ErrNotFound = errors.New("session not found")

// Store persists CallSessions in Redis with a rolling TTL.
type Store struct {
	client     *redis.Client
	ttl        time.Duration
	scratchTTL time.Duration
}

// NewStore wraps an existing Redis client. ttl applies to session keys and is
// renewed on every save; scratchTTL is the default for scratch values.
func NewStore(client *redis.Client, ttl, scratchTTL time.Duration) *Store {
	return &Store{
		client:     client,
		ttl:        ttl,
		scratchTTL: scratchTTL,
	}
}

// Ping verifies the Redis connection, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func sessionKey(callSID string) string {
	return sessionKeyPrefix + callSID
}

func scratchKey(callSID, key string) string {
	return scratchKeyPrefix + callSID + ":" + key
}

// Create persists a fresh session. An existing session for the same call SID
// is overwritten; the caller registry is the guard against duplicate calls.
func (s *Store) Create(ctx context.Context, sess *CallSession) error {
	return s.Save(ctx, sess)
}

// Get loads the session for callSID.
func (s *Store) Get(ctx context.Context, callSID string) (*CallSession, error) {
	data, err := s.client.Get(ctx, sessionKey(callSID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", callSID, err)
	}

	var sess CallSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", callSID, err)
	}
	return &sess, nil
}

// Save serializes the session and renews its TTL.
func (s *Store) Save(ctx context.Context, sess *CallSession) error {
	sess.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.CallSID, err)
	}

	if err := s.client.Set(ctx, sessionKey(sess.CallSID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.CallSID, err)
	}
	return nil
}

// AppendTurn loads, appends one turn, and saves in place. Meant for writers
// that do not hold the in-memory session (e.g. the orchestrator persisting a
// tool result).
func (s *Store) AppendTurn(ctx context.Context, callSID string, turn Turn) error {
	sess, err := s.Get(ctx, callSID)
	if err != nil {
		return err
	}
	sess.AppendTurn(turn)
	return s.Save(ctx, sess)
}

// Delete removes the session key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, callSID string) error {
	if err := s.client.Del(ctx, sessionKey(callSID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", callSID, err)
	}
	return nil
}

// ExtendTTL renews the session TTL without rewriting the value.
func (s *Store) ExtendTTL(ctx context.Context, callSID string) error {
	ok, err := s.client.Expire(ctx, sessionKey(callSID), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to extend TTL for %s: %w", callSID, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// SetScratch stores a short-lived per-call value under its own TTL. A zero
// ttl uses the store default.
func (s *Store) SetScratch(ctx context.Context, callSID, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.scratchTTL
	}
	if err := s.client.Set(ctx, scratchKey(callSID, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set scratch %s/%s: %w", callSID, key, err)
	}
	return nil
}

// GetScratch reads a scratch value; ErrNotFound when absent or expired.
func (s *Store) GetScratch(ctx context.Context, callSID, key string) (string, error) {
	val, err := s.client.Get(ctx, scratchKey(callSID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get scratch %s/%s: %w", callSID, key, err)
	}
	return val, nil
}

// ActiveSessions scans for all live session keys and returns their call SIDs.
func (s *Store) ActiveSessions(ctx context.Context) ([]string, error) {
	var sids []string
	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		sids = append(sids, strings.TrimPrefix(iter.Val(), sessionKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return sids, nil
}
