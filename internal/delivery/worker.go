// Package delivery drains the issue delivery queue. Each task is one
// (issue, subscriber) pair; the worker leases tasks with FOR UPDATE SKIP
// LOCKED so several workers can run against the same database.
package delivery

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/newsletter/internal/config"
	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/mailer"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

// outcome of one attempt to execute a task.
type outcome int

const (
	taskCompleted outcome = iota // a task was processed (delivered, retried or dead-lettered)
	queueEmpty                   // nothing leasable right now
	taskFailed                   // infrastructure trouble, back off briefly
)

type task struct {
	issueID      uuid.UUID
	email        string
	attemptCount int
}

// Stats is a snapshot of the worker counters.
type Stats struct {
	Delivered    int64
	Retried      int64
	DeadLettered int64
}

// Worker executes delivery tasks with a pool of goroutines.
type Worker struct {
	db     *sql.DB
	mailer mailer.Mailer
	cfg    config.DeliveryConfig

	delivered    atomic.Int64
	retried      atomic.Int64
	deadLettered atomic.Int64
}

func NewWorker(db *sql.DB, m mailer.Mailer, cfg config.DeliveryConfig) *Worker {
	return &Worker{db: db, mailer: m, cfg: cfg}
}

// Stats returns the current counter values.
func (w *Worker) Stats() Stats {
	return Stats{
		Delivered:    w.delivered.Load(),
		Retried:      w.retried.Load(),
		DeadLettered: w.deadLettered.Load(),
	}
}

// Run processes tasks until the context is cancelled. It blocks.
func (w *Worker) Run(ctx context.Context) error {
	n := w.cfg.ConcurrentTasks
	if n <= 0 {
		n = 1
	}
	log.Printf("[DeliveryWorker] starting with %d goroutines (max %d attempts, %s base backoff)",
		n, w.cfg.MaxRetryAttempts, w.cfg.RetryBackoff())

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()

	s := w.Stats()
	log.Printf("[DeliveryWorker] stopped: delivered=%d retried=%d dead_lettered=%d",
		s.Delivered, s.Retried, s.DeadLettered)
	return ctx.Err()
}

func (w *Worker) loop(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}
		switch w.tryExecuteTask(ctx) {
		case taskCompleted:
			// keep draining
		case queueEmpty:
			if !sleepCtx(ctx, w.cfg.EmptyQueueSleep()) {
				return
			}
		case taskFailed:
			if !sleepCtx(ctx, w.cfg.ErrorSleep()) {
				return
			}
		}
	}
}

// tryExecuteTask leases one task and drives it to a terminal state for this
// cycle. A panic inside the task is contained: the lease rolls back and the
// loop continues.
func (w *Worker) tryExecuteTask(ctx context.Context) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("delivery task panicked", "panic", fmt.Sprint(r))
			out = taskFailed
		}
	}()

	tx, t, err := w.dequeue(ctx)
	if err != nil {
		logger.Error("lease delivery task", "error", err.Error())
		return taskFailed
	}
	if t == nil {
		return queueEmpty
	}
	// No-op on paths that committed; releases the lease everywhere else,
	// including after a panic.
	defer tx.Rollback()

	email, err := domain.ParseSubscriberEmail(t.email)
	if err != nil {
		if err := w.deadLetter(ctx, tx, t, t.attemptCount, "invalid subscriber email: "+err.Error()); err != nil {
			logger.Error("dead-letter invalid email", "error", err.Error())
			return taskFailed
		}
		return taskCompleted
	}

	issue, err := w.loadIssue(ctx, t.issueID)
	if err != nil {
		logger.Error("load newsletter issue", "issue_id", t.issueID.String(), "error", err.Error())
		return taskFailed
	}

	sendErr := w.mailer.Send(ctx, email, issue.title, issue.htmlContent, issue.textContent)
	if sendErr == nil {
		if err := w.deleteAndCommit(ctx, tx, t); err != nil {
			logger.Error("finish delivery task", "error", err.Error())
			return taskFailed
		}
		w.delivered.Add(1)
		logger.Debug("issue delivered",
			"issue_id", t.issueID.String(), "email", email.String())
		return taskCompleted
	}

	newAttempt := t.attemptCount + 1
	if newAttempt >= w.cfg.MaxRetryAttempts {
		if err := w.deadLetter(ctx, tx, t, newAttempt, sendErr.Error()); err != nil {
			logger.Error("dead-letter exhausted task", "error", err.Error())
			return taskFailed
		}
		logger.Warn("delivery task exhausted retries",
			"issue_id", t.issueID.String(), "email", email.String(), "attempts", newAttempt)
		return taskCompleted
	}

	// Release the lease first, then write bookkeeping through the pool.
	// "I have the row" (lease) and "I observed a failure" (bookkeeping)
	// stay on separate connections; the lock is never held across the
	// bookkeeping write.
	tx.Rollback()
	_, err = w.db.ExecContext(ctx, `
		UPDATE issue_delivery_queue
		SET attempt_count = $3, last_attempted_at = NOW(), error_message = $4
		WHERE newsletter_issue_id = $1 AND subscriber_email = $2`,
		t.issueID, t.email, newAttempt, sendErr.Error())
	if err != nil {
		logger.Error("record delivery failure", "error", err.Error())
		return taskFailed
	}
	w.retried.Add(1)
	logger.Warn("delivery attempt failed, will retry",
		"issue_id", t.issueID.String(), "email", email.String(),
		"attempt", newAttempt, "error", sendErr.Error())
	return taskCompleted
}

// dequeue leases one due task. The backoff gate lives in SQL so a not-yet-due
// head row never starves due rows behind it. Returns (nil, nil, nil) when
// nothing is leasable.
func (w *Worker) dequeue(ctx context.Context) (*sql.Tx, *task, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin lease transaction: %w", err)
	}

	var t task
	err = tx.QueryRowContext(ctx, `
		SELECT newsletter_issue_id, subscriber_email, attempt_count
		FROM issue_delivery_queue
		WHERE last_attempted_at IS NULL
		   OR last_attempted_at <= NOW() - make_interval(secs => $1 * LEAST(POW(2, attempt_count), 32))
		FOR UPDATE SKIP LOCKED
		LIMIT 1`,
		int64(w.cfg.RetryBackoff().Seconds())).
		Scan(&t.issueID, &t.email, &t.attemptCount)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, nil, fmt.Errorf("lease delivery task: %w", err)
	}
	return tx, &t, nil
}

type issueContent struct {
	title       string
	textContent string
	htmlContent string
}

// loadIssue reads issue content through the pool, outside the lease.
func (w *Worker) loadIssue(ctx context.Context, issueID uuid.UUID) (issueContent, error) {
	var ic issueContent
	err := w.db.QueryRowContext(ctx, `
		SELECT title, text_content, html_content
		FROM newsletter_issues
		WHERE newsletter_issue_id = $1`,
		issueID).Scan(&ic.title, &ic.textContent, &ic.htmlContent)
	if err != nil {
		return issueContent{}, fmt.Errorf("load issue content: %w", err)
	}
	return ic, nil
}

// deadLetter moves the task out of the delivery queue permanently and
// commits. Upsert: a task can reach the dead-letter queue more than once if
// an operator requeues it.
func (w *Worker) deadLetter(ctx context.Context, tx *sql.Tx, t *task, attempts int, lastError string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO dead_letter_queue
		    (newsletter_issue_id, subscriber_email, attempt_count, last_error, failed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (newsletter_issue_id, subscriber_email) DO UPDATE
		SET attempt_count = EXCLUDED.attempt_count,
		    last_error = EXCLUDED.last_error,
		    failed_at = EXCLUDED.failed_at`,
		t.issueID, t.email, attempts, lastError)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	if err := w.deleteAndCommit(ctx, tx, t); err != nil {
		return err
	}
	w.deadLettered.Add(1)
	return nil
}

func (w *Worker) deleteAndCommit(ctx context.Context, tx *sql.Tx, t *task) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM issue_delivery_queue
		WHERE newsletter_issue_id = $1 AND subscriber_email = $2`,
		t.issueID, t.email)
	if err != nil {
		return fmt.Errorf("delete delivery task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delivery task: %w", err)
	}
	return nil
}

// sleepCtx sleeps for d unless the context ends first. Reports whether the
// caller should keep running.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
