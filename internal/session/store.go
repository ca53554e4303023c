// Package session keeps admin sessions and one-shot flash messages in
// Redis. State lives server side; the browser only carries an opaque id.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	userKeyPrefix  = "session:user:"
	flashKeyPrefix = "session:flash:"
)

// Store is the Redis-backed session store.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Create makes a fresh anonymous session and returns its id. Anonymous
// sessions exist so flash messages work on /login before authentication.
func (s *Store) Create(ctx context.Context) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// BindUser attaches an authenticated user to the session. Callers rotate
// the session id before binding (fresh Create) to prevent fixation.
func (s *Store) BindUser(ctx context.Context, sessionID string, userID uuid.UUID) error {
	if err := s.client.Set(ctx, userKeyPrefix+sessionID, userID.String(), s.ttl).Err(); err != nil {
		return fmt.Errorf("bind session user: %w", err)
	}
	return nil
}

// UserID resolves the session to its user. found is false for anonymous,
// expired, or unknown sessions.
func (s *Store) UserID(ctx context.Context, sessionID string) (uuid.UUID, bool, error) {
	val, err := s.client.Get(ctx, userKeyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("load session user: %w", err)
	}
	userID, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt session user id: %w", err)
	}
	return userID, true, nil
}

// Destroy drops the session's server-side state.
func (s *Store) Destroy(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, userKeyPrefix+sessionID, flashKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// SetFlash stores a message shown on the next page load only.
func (s *Store) SetFlash(ctx context.Context, sessionID, message string) error {
	if err := s.client.Set(ctx, flashKeyPrefix+sessionID, message, s.ttl).Err(); err != nil {
		return fmt.Errorf("set flash message: %w", err)
	}
	return nil
}

// PopFlash returns the pending flash message and removes it. Empty string
// when there is none.
func (s *Store) PopFlash(ctx context.Context, sessionID string) (string, error) {
	val, err := s.client.GetDel(ctx, flashKeyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("pop flash message: %w", err)
	}
	return val, nil
}
