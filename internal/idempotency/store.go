// Package idempotency persists HTTP responses keyed by (user, idempotency
// key) so retried requests replay the first outcome instead of repeating
// side effects.
package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

// ErrInFlight means another request holds the reservation for this key but
// has not recorded a response yet. Callers should tell the client to retry.
var ErrInFlight = errors.New("a request with this idempotency key is already being processed")

// HeaderPair is one response header as stored in the header_pair composite
// type. Values are bytea so non-UTF8 header values survive the round trip.
type HeaderPair struct {
	Name  string
	Value []byte
}

// SavedResponse is a previously recorded HTTP response.
type SavedResponse struct {
	StatusCode int
	Headers    []HeaderPair
	Body       []byte
}

// Store reads and writes idempotency reservations.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// TryBegin attempts to reserve the (userID, key) pair inside a fresh
// transaction.
//
// Outcome is one of three:
//   - the reservation is new: the open transaction is returned and the
//     caller must run its side effects on it, then call SaveResponse;
//   - a response was already saved: it is returned and no transaction is
//     held open;
//   - the reservation exists but carries no response yet: ErrInFlight.
func (s *Store) TryBegin(ctx context.Context, userID uuid.UUID, key domain.IdempotencyKey) (*sql.Tx, *SavedResponse, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin idempotency transaction: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO idempotency (user_id, idempotency_key, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT DO NOTHING`,
		userID, key.String())
	if err != nil {
		tx.Rollback()
		return nil, nil, fmt.Errorf("insert idempotency reservation: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, nil, fmt.Errorf("idempotency rows affected: %w", err)
	}

	if inserted > 0 {
		return tx, nil, nil
	}

	// Someone got here first. Release our transaction and read theirs.
	tx.Rollback()

	saved, err := s.getSaved(ctx, userID, key)
	if err != nil {
		return nil, nil, err
	}
	if saved == nil {
		return nil, nil, ErrInFlight
	}
	logger.Debug("replaying saved response",
		"user_id", userID.String(), "idempotency_key", key.String())
	return nil, saved, nil
}

// SaveResponse records the response on the reservation row and commits the
// transaction returned by TryBegin. The commit is what publishes both the
// side effects and the saved response atomically.
func (s *Store) SaveResponse(ctx context.Context, tx *sql.Tx, userID uuid.UUID, key domain.IdempotencyKey, resp SavedResponse) error {
	names := make([]string, len(resp.Headers))
	values := make([][]byte, len(resp.Headers))
	for i, h := range resp.Headers {
		names[i] = h.Name
		values[i] = h.Value
	}

	// lib/pq has no codec for composite arrays, so the header_pair[] value
	// is assembled server side from two parallel flat arrays.
	_, err := tx.ExecContext(ctx, `
		UPDATE idempotency
		SET response_status_code = $3,
		    response_headers = ARRAY(
		        SELECT ROW(n, v)::header_pair
		        FROM unnest($4::text[], $5::bytea[]) AS t(n, v)),
		    response_body = $6
		WHERE user_id = $1 AND idempotency_key = $2`,
		userID, key.String(), resp.StatusCode,
		pq.Array(names), pq.ByteaArray(values), resp.Body)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("save idempotency response: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit idempotency transaction: %w", err)
	}
	return nil
}

// getSaved loads the recorded response, or nil when the reservation exists
// without one (in flight) or does not exist at all.
func (s *Store) getSaved(ctx context.Context, userID uuid.UUID, key domain.IdempotencyKey) (*SavedResponse, error) {
	var (
		status sql.NullInt64
		names  []string
		values [][]byte
		body   []byte
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT response_status_code,
		       (SELECT array_agg((h).name ORDER BY ord)
		        FROM unnest(response_headers) WITH ORDINALITY AS t(h, ord)),
		       (SELECT array_agg((h).value ORDER BY ord)
		        FROM unnest(response_headers) WITH ORDINALITY AS t(h, ord)),
		       response_body
		FROM idempotency
		WHERE user_id = $1 AND idempotency_key = $2`,
		userID, key.String()).Scan(&status, pq.Array(&names), (*pq.ByteaArray)(&values), &body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load saved response: %w", err)
	}
	if !status.Valid {
		return nil, nil
	}

	if len(names) != len(values) {
		return nil, fmt.Errorf("corrupt saved response: %d header names, %d values", len(names), len(values))
	}
	headers := make([]HeaderPair, len(names))
	for i := range names {
		headers[i] = HeaderPair{Name: names[i], Value: values[i]}
	}

	return &SavedResponse{
		StatusCode: int(status.Int64),
		Headers:    headers,
		Body:       body,
	}, nil
}
