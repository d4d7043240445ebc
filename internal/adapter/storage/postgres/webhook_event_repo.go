package postgres

import (
	"context"
	"errors"
	"fmt"

	"groupbuy-core/internal/core/domain"
	"groupbuy-core/pkg/apperror"

	"github.com/jackc/pgx/v5"
)

// WebhookEventRepo implements ports.WebhookEventRepository.
type WebhookEventRepo struct {
	pool Pool
}

// NewWebhookEventRepo creates a new WebhookEventRepo.
func NewWebhookEventRepo(pool Pool) *WebhookEventRepo {
	return &WebhookEventRepo{pool: pool}
}

// Get fetches the processing record for a provider event id.
func (r *WebhookEventRepo) Get(ctx context.Context, scope domain.ScopeToken, providerEventID string) (*domain.WebhookEventRecord, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}

	query := `SELECT tenant_id, provider_event_id, event_type, status, processed_at
		FROM webhook_event_records WHERE tenant_id = $1 AND provider_event_id = $2`

	rec := &domain.WebhookEventRecord{}
	err := r.pool.QueryRow(ctx, query, scope.TenantID(), providerEventID).Scan(
		&rec.TenantID, &rec.ProviderEventID, &rec.EventType, &rec.Status, &rec.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook event record: %w", err)
	}
	return rec, nil
}

// Record persists the processing result inside the routing transaction. The
// unique (tenant_id, provider_event_id) index makes the dedup check atomic:
// of two concurrent deliveries, exactly one commit wins.
func (r *WebhookEventRepo) Record(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, rec *domain.WebhookEventRecord) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	if rec.TenantID != scope.TenantID() {
		return apperror.ErrCrossTenantDenied()
	}

	query := `INSERT INTO webhook_event_records (tenant_id, provider_event_id, event_type, status, processed_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := tx.Exec(ctx, query,
		rec.TenantID, rec.ProviderEventID, rec.EventType, rec.Status, rec.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}
