package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"groupbuy-core/internal/core/domain"
	"groupbuy-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo implements ports.IdempotencyLedger. The reservation step is
// a single atomic insert so two concurrent requests with the same key never
// both observe "proceed".
type IdempotencyRepo struct {
	pool             Pool
	retention        time.Duration
	staleLockTimeout time.Duration
}

// NewIdempotencyRepo creates a new IdempotencyRepo.
func NewIdempotencyRepo(pool Pool, retention, staleLockTimeout time.Duration) *IdempotencyRepo {
	return &IdempotencyRepo{
		pool:             pool,
		retention:        retention,
		staleLockTimeout: staleLockTimeout,
	}
}

// BeginOrReplay atomically reserves (tenant, key) or resolves the existing record.
func (r *IdempotencyRepo) BeginOrReplay(ctx context.Context, scope domain.ScopeToken, key, fingerprint string) (*domain.IdempotencyRecord, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	insert := `INSERT INTO idempotency_records (tenant_id, key, fingerprint, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, key) DO NOTHING`

	tag, err := r.pool.Exec(ctx, insert,
		scope.TenantID(), key, fingerprint, domain.IdempotencyStatusInProgress,
		now, now.Add(r.retention),
	)
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency slot: %w", err)
	}
	if tag.RowsAffected() == 1 {
		// Slot reserved; caller proceeds.
		return nil, nil
	}

	rec, err := r.get(ctx, scope, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// Lost a race against a concurrent Release; the retrying client wins next attempt.
		return nil, apperror.ErrIdempotencyInProgress()
	}

	if rec.ExpiresAt.Before(now) {
		return nil, r.takeOver(ctx, scope, key, fingerprint, rec.CreatedAt, now)
	}
	if rec.Fingerprint != fingerprint {
		return nil, apperror.ErrIdempotencyConflict()
	}
	if rec.Status == domain.IdempotencyStatusCompleted {
		return rec, nil
	}

	// Still IN_PROGRESS. An abandoned reservation older than the stale-lock
	// timeout is eligible for forced release.
	if now.Sub(rec.CreatedAt) > r.staleLockTimeout {
		return nil, r.takeOver(ctx, scope, key, fingerprint, rec.CreatedAt, now)
	}
	return nil, apperror.ErrIdempotencyInProgress()
}

// takeOver re-reserves an expired or abandoned slot. The created_at guard
// makes the takeover itself race-safe: only one contender matches the old row.
func (r *IdempotencyRepo) takeOver(ctx context.Context, scope domain.ScopeToken, key, fingerprint string, seenCreatedAt, now time.Time) error {
	query := `UPDATE idempotency_records
		SET fingerprint = $1, status = $2, order_id = NULL, outcome = NULL, created_at = $3, expires_at = $4
		WHERE tenant_id = $5 AND key = $6 AND created_at = $7`

	tag, err := r.pool.Exec(ctx, query,
		fingerprint, domain.IdempotencyStatusInProgress, now, now.Add(r.retention),
		scope.TenantID(), key, seenCreatedAt,
	)
	if err != nil {
		return fmt.Errorf("take over idempotency slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrIdempotencyInProgress()
	}
	return nil
}

// Complete stores the outcome snapshot inside the creating transaction.
func (r *IdempotencyRepo) Complete(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, key string, orderID uuid.UUID, outcome []byte) error {
	if err := requireScope(scope); err != nil {
		return err
	}

	query := `UPDATE idempotency_records SET status = $1, order_id = $2, outcome = $3
		WHERE tenant_id = $4 AND key = $5 AND status = $6`

	tag, err := tx.Exec(ctx, query,
		domain.IdempotencyStatusCompleted, orderID, outcome,
		scope.TenantID(), key, domain.IdempotencyStatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("complete idempotency record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("idempotency record not in progress: %s", key)
	}
	return nil
}

// Release frees a reservation so the client may legitimately retry after a
// failed attempt. Completed records are never released.
func (r *IdempotencyRepo) Release(ctx context.Context, scope domain.ScopeToken, key string) error {
	if err := requireScope(scope); err != nil {
		return err
	}

	query := `DELETE FROM idempotency_records WHERE tenant_id = $1 AND key = $2 AND status = $3`
	if _, err := r.pool.Exec(ctx, query, scope.TenantID(), key, domain.IdempotencyStatusInProgress); err != nil {
		return fmt.Errorf("release idempotency slot: %w", err)
	}
	return nil
}

func (r *IdempotencyRepo) get(ctx context.Context, scope domain.ScopeToken, key string) (*domain.IdempotencyRecord, error) {
	query := `SELECT tenant_id, key, fingerprint, status, order_id, outcome, created_at, expires_at
		FROM idempotency_records WHERE tenant_id = $1 AND key = $2`

	rec := &domain.IdempotencyRecord{}
	err := r.pool.QueryRow(ctx, query, scope.TenantID(), key).Scan(
		&rec.TenantID, &rec.Key, &rec.Fingerprint, &rec.Status,
		&rec.OrderID, &rec.Outcome, &rec.CreatedAt, &rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return rec, nil
}
