// Package subscription implements the subscriber lifecycle: signup with
// double opt-in, token confirmation, and the pending -> confirmed
// transition.
package subscription

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/newsletter/internal/domain"
)

// Subscriber status values as stored in the subscriptions table.
const (
	StatusPending   = "pending_confirmation"
	StatusConfirmed = "confirmed"
)

// Subscriber is a row of the subscriptions table.
type Subscriber struct {
	ID           uuid.UUID
	Email        string
	Name         string
	SubscribedAt time.Time
	Status       string
}

// Store persists subscribers and their confirmation tokens. Methods that
// participate in the subscribe transaction take the caller's *sql.Tx;
// read paths outside a transaction use the pool.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetByEmail loads a subscriber by email within the caller's transaction.
// Returns nil when no subscriber exists.
func (s *Store) GetByEmail(ctx context.Context, tx *sql.Tx, email domain.SubscriberEmail) (*Subscriber, error) {
	var sub Subscriber
	err := tx.QueryRowContext(ctx, `
		SELECT id, email, name, subscribed_at, status
		FROM subscriptions
		WHERE email = $1`,
		email.String()).Scan(&sub.ID, &sub.Email, &sub.Name, &sub.SubscribedAt, &sub.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load subscriber by email: %w", err)
	}
	return &sub, nil
}

// Insert creates a new pending subscriber.
func (s *Store) Insert(ctx context.Context, tx *sql.Tx, id uuid.UUID, email domain.SubscriberEmail, name domain.SubscriberName) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO subscriptions (id, email, name, subscribed_at, status)
		VALUES ($1, $2, $3, NOW(), $4)`,
		id, email.String(), name.String(), StatusPending)
	if err != nil {
		return fmt.Errorf("insert subscriber: %w", err)
	}
	return nil
}

// StoreToken records a confirmation token for the subscriber. Old tokens
// are kept; any of them confirms.
func (s *Store) StoreToken(ctx context.Context, tx *sql.Tx, subscriberID uuid.UUID, token domain.SubscriptionToken) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO subscription_tokens (subscription_token, subscriber_id)
		VALUES ($1, $2)`,
		token.String(), subscriberID)
	if err != nil {
		return fmt.Errorf("store subscription token: %w", err)
	}
	return nil
}

// SubscriberIDFromToken resolves a well-formed token to its subscriber.
// found is false when no row matches.
func (s *Store) SubscriberIDFromToken(ctx context.Context, token domain.SubscriptionToken) (id uuid.UUID, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT subscriber_id
		FROM subscription_tokens
		WHERE subscription_token = $1`,
		token.String()).Scan(&id)
	if err == sql.ErrNoRows {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("resolve subscription token: %w", err)
	}
	return id, true, nil
}

// Confirm marks the subscriber confirmed. Running it twice is harmless.
// A token whose subscriber row is gone is an error, not a silent success.
func (s *Store) Confirm(ctx context.Context, subscriberID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET status = $1 WHERE id = $2`,
		StatusConfirmed, subscriberID)
	if err != nil {
		return fmt.Errorf("confirm subscriber: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("confirm subscriber: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("confirm subscriber: no subscription with id %s", subscriberID)
	}
	return nil
}
