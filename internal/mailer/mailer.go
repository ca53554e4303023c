// Package mailer sends transactional email through an external provider.
// Two adapters exist: the JSON HTTP API client and an AWS SES adapter.
// Which one a deployment uses is a config decision; callers only see Mailer.
package mailer

import (
	"context"

	"github.com/ignite/newsletter/internal/domain"
)

// Mailer delivers a single email. Any error is treated as retryable by the
// delivery queue; adapters must not retry internally when they back the
// queue worker (the queue owns the retry budget).
type Mailer interface {
	Send(ctx context.Context, to domain.SubscriberEmail, subject, htmlBody, textBody string) error
}
