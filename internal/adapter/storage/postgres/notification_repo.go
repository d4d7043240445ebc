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

// NotificationRepo implements ports.NotificationQueue on a notification_events
// table. Claiming uses FOR UPDATE SKIP LOCKED plus a lease stamp so two
// workers never deliver the same event concurrently; a crashed worker's lease
// expires and the row becomes claimable again.
type NotificationRepo struct {
	pool Pool
}

// NewNotificationRepo creates a new NotificationRepo.
func NewNotificationRepo(pool Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

// Enqueue inserts a pending event inside the triggering transaction.
func (r *NotificationRepo) Enqueue(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, e *domain.NotificationEvent) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	if e.TenantID != scope.TenantID() {
		return apperror.ErrCrossTenantDenied()
	}

	query := `INSERT INTO notification_events
		(id, tenant_id, target, trigger, order_id, recipient_id, payload, status, attempts, next_retry_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.TenantID, e.Target, e.Trigger, e.OrderID, e.RecipientID,
		e.Payload, e.Status, e.Attempts, e.NextRetryAt, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// ClaimDue stamps up to limit due events with the owner and a lease expiry.
// The dispatcher pool runs across tenants, so this is deliberately unscoped;
// rows carry their tenant id and the sender resolves credentials per row.
func (r *NotificationRepo) ClaimDue(ctx context.Context, owner string, limit int, lease time.Duration) ([]domain.NotificationEvent, error) {
	now := time.Now().UTC()
	query := `UPDATE notification_events SET claimed_by = $1, lease_expiry = $2, updated_at = $3
		WHERE id IN (
			SELECT id FROM notification_events
			WHERE status IN ($4, $5)
			  AND next_retry_at <= $3
			  AND (lease_expiry IS NULL OR lease_expiry < $3)
			ORDER BY next_retry_at
			LIMIT $6
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, tenant_id, target, trigger, order_id, recipient_id, payload, status, attempts, next_retry_at, created_at, updated_at`

	rows, err := r.pool.Query(ctx, query,
		owner, now.Add(lease), now,
		domain.NotificationStatusPending, domain.NotificationStatusFailed, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim notifications: %w", err)
	}
	defer rows.Close()

	var events []domain.NotificationEvent
	for rows.Next() {
		e := domain.NotificationEvent{}
		err := rows.Scan(
			&e.ID, &e.TenantID, &e.Target, &e.Trigger, &e.OrderID, &e.RecipientID,
			&e.Payload, &e.Status, &e.Attempts, &e.NextRetryAt, &e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan claimed notification: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MarkSent settles a delivered event. The owner guard means a worker whose
// lease expired mid-delivery cannot clobber a re-claimed row.
func (r *NotificationRepo) MarkSent(ctx context.Context, id uuid.UUID, owner string) error {
	query := `UPDATE notification_events
		SET status = $1, claimed_by = NULL, lease_expiry = NULL, updated_at = $2
		WHERE id = $3 AND claimed_by = $4`

	tag, err := r.pool.Exec(ctx, query, domain.NotificationStatusSent, time.Now().UTC(), id, owner)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s no longer owned by %s", id, owner)
	}
	return nil
}

// MarkFailed records a failed attempt, schedules the retry, and dead-letters
// once attempts reach the ceiling. Returns the resulting status.
func (r *NotificationRepo) MarkFailed(ctx context.Context, id uuid.UUID, owner string, attemptErr string, nextRetryAt time.Time, maxAttempts int) (domain.NotificationStatus, error) {
	query := `UPDATE notification_events
		SET attempts = attempts + 1,
		    last_error = $1,
		    status = CASE WHEN attempts + 1 >= $2 THEN $3::text ELSE $4::text END,
		    next_retry_at = $5,
		    claimed_by = NULL,
		    lease_expiry = NULL,
		    updated_at = $6
		WHERE id = $7 AND claimed_by = $8
		RETURNING status`

	var status domain.NotificationStatus
	err := r.pool.QueryRow(ctx, query,
		attemptErr, maxAttempts,
		domain.NotificationStatusDeadLettered, domain.NotificationStatusFailed,
		nextRetryAt, time.Now().UTC(), id, owner,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("notification %s no longer owned by %s", id, owner)
		}
		return "", fmt.Errorf("mark notification failed: %w", err)
	}
	return status, nil
}

// UpdateDeliveryStatus settles an event from a provider delivery report,
// inside the webhook routing transaction.
func (r *NotificationRepo) UpdateDeliveryStatus(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, id uuid.UUID, status domain.NotificationStatus) error {
	if err := requireScope(scope); err != nil {
		return err
	}

	query := `UPDATE notification_events SET status = $1, updated_at = $2
		WHERE id = $3 AND tenant_id = $4`

	tag, err := tx.Exec(ctx, query, status, time.Now().UTC(), id, scope.TenantID())
	if err != nil {
		return fmt.Errorf("update delivery status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrNotFound("notification")
	}
	return nil
}

// CountByOrder counts notifications for an order and target.
func (r *NotificationRepo) CountByOrder(ctx context.Context, scope domain.ScopeToken, orderID uuid.UUID, target domain.NotificationTarget) (int64, error) {
	if err := requireScope(scope); err != nil {
		return 0, err
	}

	query := `SELECT COUNT(*) FROM notification_events
		WHERE order_id = $1 AND tenant_id = $2 AND target = $3`

	var count int64
	if err := r.pool.QueryRow(ctx, query, orderID, scope.TenantID(), target).Scan(&count); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return count, nil
}
