package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/mailer"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

// ErrUnknownToken means a well-formed token matched no subscriber.
var ErrUnknownToken = errors.New("subscription token not found")

// Service wires the store to the mailer and implements the subscribe and
// confirm commands.
type Service struct {
	db        *sql.DB
	store     *Store
	mailer    mailer.Mailer
	templates *mailer.Templates
	baseURL   string
}

func NewService(db *sql.DB, store *Store, m mailer.Mailer, templates *mailer.Templates, baseURL string) *Service {
	return &Service{
		db:        db,
		store:     store,
		mailer:    m,
		templates: templates,
		baseURL:   baseURL,
	}
}

// Subscribe signs up a subscriber. All database writes happen in one
// transaction; the follow-up email goes out only after commit, so a send
// failure never leaves a token that was not persisted.
//
// Repeated signups never create a second subscriber: a pending subscriber
// gets a fresh token and another confirmation email, a confirmed one gets
// a courtesy note. All branches look identical to the caller.
func (s *Service) Subscribe(ctx context.Context, email domain.SubscriberEmail, name domain.SubscriberName) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin subscribe transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := s.store.GetByEmail(ctx, tx, email)
	if err != nil {
		return err
	}

	if existing != nil && existing.Status == StatusConfirmed {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit subscribe transaction: %w", err)
		}
		return s.sendAlreadySubscribed(ctx, email, existing.Name)
	}

	subscriberID := uuid.Nil
	subscriberName := name.String()
	if existing != nil {
		subscriberID = existing.ID
		subscriberName = existing.Name
	} else {
		subscriberID = uuid.New()
		if err := s.store.Insert(ctx, tx, subscriberID, email, name); err != nil {
			return err
		}
	}

	token := domain.GenerateSubscriptionToken()
	if err := s.store.StoreToken(ctx, tx, subscriberID, token); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit subscribe transaction: %w", err)
	}

	logger.Info("subscriber signed up",
		"subscriber_id", subscriberID.String(), "email", email.String())
	return s.sendConfirmation(ctx, email, subscriberName, token)
}

// ConfirmToken transitions the token's subscriber to confirmed. Confirming
// twice succeeds both times and leaves the subscriber confirmed.
func (s *Service) ConfirmToken(ctx context.Context, token domain.SubscriptionToken) error {
	subscriberID, found, err := s.store.SubscriberIDFromToken(ctx, token)
	if err != nil {
		return err
	}
	if !found {
		return ErrUnknownToken
	}

	if err := s.store.Confirm(ctx, subscriberID); err != nil {
		return err
	}
	logger.Info("subscriber confirmed", "subscriber_id", subscriberID.String())
	return nil
}

func (s *Service) sendConfirmation(ctx context.Context, email domain.SubscriberEmail, name string, token domain.SubscriptionToken) error {
	link := fmt.Sprintf("%s/subscriptions/confirm?subscription_token=%s", s.baseURL, token.String())
	htmlBody, textBody, err := s.templates.Confirmation(name, link)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, email, "Welcome!", htmlBody, textBody); err != nil {
		return fmt.Errorf("send confirmation email: %w", err)
	}
	return nil
}

func (s *Service) sendAlreadySubscribed(ctx context.Context, email domain.SubscriberEmail, name string) error {
	htmlBody, textBody, err := s.templates.AlreadySubscribed(name)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, email, "You're already subscribed", htmlBody, textBody); err != nil {
		return fmt.Errorf("send courtesy email: %w", err)
	}
	return nil
}
