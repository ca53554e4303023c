// Package newsletter records issues and fans them out onto the delivery
// queue.
package newsletter

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/newsletter/internal/pkg/logger"
)

// Issue is the content of one newsletter edition.
type Issue struct {
	Title       string
	TextContent string
	HTMLContent string
}

// Store writes issues and their delivery tasks. All methods run in the
// caller's transaction so a publish commits atomically with its
// idempotency reservation.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// InsertIssue records the issue content under a fresh id.
func (s *Store) InsertIssue(ctx context.Context, tx *sql.Tx, issueID uuid.UUID, issue Issue) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO newsletter_issues
		    (newsletter_issue_id, title, text_content, html_content, published_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		issueID, issue.Title, issue.TextContent, issue.HTMLContent)
	if err != nil {
		return fmt.Errorf("insert newsletter issue: %w", err)
	}
	return nil
}

// EnqueueDeliveryTasks creates one queue row per confirmed subscriber.
// The subscriber set is captured at enqueue time; later signups do not
// receive this issue.
func (s *Store) EnqueueDeliveryTasks(ctx context.Context, tx *sql.Tx, issueID uuid.UUID) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO issue_delivery_queue (newsletter_issue_id, subscriber_email)
		SELECT $1, email
		FROM subscriptions
		WHERE status = 'confirmed'`,
		issueID)
	if err != nil {
		return 0, fmt.Errorf("enqueue delivery tasks: %w", err)
	}
	enqueued, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("enqueue rows affected: %w", err)
	}
	return enqueued, nil
}

// Publish records the issue and fans it out in one step.
func (s *Store) Publish(ctx context.Context, tx *sql.Tx, issue Issue) (uuid.UUID, error) {
	issueID := uuid.New()
	if err := s.InsertIssue(ctx, tx, issueID, issue); err != nil {
		return uuid.Nil, err
	}
	enqueued, err := s.EnqueueDeliveryTasks(ctx, tx, issueID)
	if err != nil {
		return uuid.Nil, err
	}
	logger.Info("newsletter issue published",
		"issue_id", issueID.String(), "title", issue.Title, "enqueued", enqueued)
	return issueID, nil
}
