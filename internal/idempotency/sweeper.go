package idempotency

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/newsletter/internal/pkg/distlock"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

// Sweeper deletes idempotency rows older than the retention window. Expired
// keys become reusable, which is acceptable: clients only retry within
// minutes, not weeks.
type Sweeper struct {
	db       *sql.DB
	age      time.Duration
	interval time.Duration
	lock     *distlock.Mutex
}

func NewSweeper(db *sql.DB, age, interval time.Duration) *Sweeper {
	return &Sweeper{db: db, age: age, interval: interval}
}

// WithLock elects a single sweeper across replicas. Without it every
// replica sweeps, which is correct but wasteful.
func (s *Sweeper) WithLock(lock *distlock.Mutex) *Sweeper {
	s.lock = lock
	return s
}

// SweepOnce removes rows whose created_at is older than the retention age
// and returns how many were deleted.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.age)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM idempotency WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep idempotency rows: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep rows affected: %w", err)
	}
	return deleted, nil
}

// Run sweeps on the configured interval until the context is cancelled. One
// pass runs immediately at startup so restarts don't postpone cleanup.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if s.lock != nil {
		acquired, err := s.lock.TryAcquire(ctx)
		if err != nil {
			logger.Error("acquire sweep lock", "error", err.Error())
			return
		}
		if !acquired {
			logger.Debug("another replica is sweeping, skipping this round")
			return
		}
		defer func() {
			if err := s.lock.Release(ctx); err != nil {
				logger.Warn("release sweep lock", "error", err.Error())
			}
		}()
	}

	deleted, err := s.SweepOnce(ctx)
	if err != nil {
		logger.Error("idempotency sweep failed", "error", err.Error())
		return
	}
	if deleted > 0 {
		logger.Info("swept expired idempotency keys", "deleted", deleted)
	}
}
