package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"groupbuy-core/internal/core/domain"
	"groupbuy-core/internal/core/ports"
	"groupbuy-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// IntakeServiceImpl implements ports.IntakeService. The idempotency ledger
// guarantees exactly-once order creation under client retries; the order, its
// items, the ledger completion and the host notification commit as one
// atomic unit.
type IntakeServiceImpl struct {
	orders     ports.OrderRepository
	customers  ports.CustomerRepository
	products   ports.ProductRepository
	ledger     ports.IdempotencyLedger
	queue      ports.NotificationQueue
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewIntakeService creates a new IntakeServiceImpl.
func NewIntakeService(
	orders ports.OrderRepository,
	customers ports.CustomerRepository,
	products ports.ProductRepository,
	ledger ports.IdempotencyLedger,
	queue ports.NotificationQueue,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *IntakeServiceImpl {
	return &IntakeServiceImpl{
		orders:     orders,
		customers:  customers,
		products:   products,
		ledger:     ledger,
		queue:      queue,
		transactor: transactor,
		log:        log,
	}
}

// Submit validates and creates an order, or replays a previous outcome.
func (s *IntakeServiceImpl) Submit(ctx context.Context, scope domain.ScopeToken, req ports.IntakeRequest) (*ports.IntakeResult, error) {
	if req.IdempotencyKey == "" {
		return nil, apperror.Validation("idempotency key is required")
	}
	if len(req.Items) == 0 {
		return nil, apperror.Validation("order must contain at least one item")
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, apperror.Validation("item quantity must be a positive integer")
		}
	}

	fingerprint := domain.Fingerprint(req.RawBody)

	rec, err := s.ledger.BeginOrReplay(ctx, scope, req.IdempotencyKey, fingerprint)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		result := &ports.IntakeResult{}
		if err := json.Unmarshal(rec.Outcome, result); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("unmarshal stored outcome: %w", err))
		}
		result.Replay = true
		return result, nil
	}

	// Slot reserved; any failure from here on releases it so the client may retry.
	result, err := s.create(ctx, scope, req, fingerprint)
	if err != nil {
		if relErr := s.ledger.Release(ctx, scope, req.IdempotencyKey); relErr != nil {
			s.log.Error().Err(relErr).
				Str("tenant_id", scope.TenantID().String()).
				Str("key", req.IdempotencyKey).
				Msg("failed to release idempotency slot after aborted intake")
		}
		return nil, err
	}
	return result, nil
}

func (s *IntakeServiceImpl) create(ctx context.Context, scope domain.ScopeToken, req ports.IntakeRequest, fingerprint string) (*ports.IntakeResult, error) {
	ids := make([]uuid.UUID, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.VariantID)
	}

	variants, err := s.products.GetVariants(ctx, scope, ids)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load variants: %w", err))
	}
	byID := make(map[uuid.UUID]domain.Variant, len(variants))
	for _, v := range variants {
		byID[v.ID] = v
	}

	// A variant that did not come back either does not exist or belongs to
	// another tenant; both are a validation failure, never a foreign read.
	var total int64
	now := time.Now().UTC()
	orderID := uuid.New()
	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		v, ok := byID[item.VariantID]
		if !ok {
			return nil, apperror.Validation(fmt.Sprintf("variant %s is not available", item.VariantID))
		}
		if !v.Orderable {
			return nil, apperror.Validation(fmt.Sprintf("variant %s is not currently orderable", item.VariantID))
		}
		items = append(items, domain.OrderItem{
			ID:        uuid.New(),
			OrderID:   orderID,
			TenantID:  scope.TenantID(),
			VariantID: v.ID,
			Quantity:  item.Quantity,
			UnitPrice: v.UnitPrice, // Snapshot; later catalog edits do not touch the order
		})
		total += int64(item.Quantity) * v.UnitPrice
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	bindNonce := uuid.NewString()
	customer := &domain.Customer{
		ID:          uuid.New(),
		TenantID:    scope.TenantID(),
		DisplayName: req.CustomerName,
		Phone:       req.CustomerPhone,
		BindNonce:   &bindNonce,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.customers.Create(ctx, scope, tx, customer); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create customer: %w", err))
	}

	order := &domain.Order{
		ID:             orderID,
		TenantID:       scope.TenantID(),
		CustomerID:     customer.ID,
		Items:          items,
		TotalAmount:    total,
		Status:         domain.OrderStatusCreated,
		IdempotencyKey: req.IdempotencyKey,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.orders.Create(ctx, scope, tx, order); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create order: %w", err))
	}

	// Intake completion drives the automatic first transition.
	next, ok := domain.NextStatus(domain.OrderStatusCreated, domain.ActionAwaitPayment)
	if !ok {
		return nil, apperror.InternalError(fmt.Errorf("transition table missing intake auto-transition"))
	}
	if err := s.orders.TransitionStatus(ctx, scope, tx, orderID, domain.OrderStatusCreated, next, 1); err != nil {
		return nil, err
	}

	result := &ports.IntakeResult{
		OrderID: orderID,
		Status:  next,
		Total:   total,
	}
	outcome, err := json.Marshal(result)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal outcome: %w", err))
	}
	if err := s.ledger.Complete(ctx, scope, tx, req.IdempotencyKey, orderID, outcome); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("complete idempotency record: %w", err))
	}

	hostPayload, _ := json.Marshal(map[string]any{
		"trigger":      domain.TriggerOrderCreated,
		"order_id":     orderID,
		"customer":     req.CustomerName,
		"total_amount": total,
	})
	event := &domain.NotificationEvent{
		ID:          uuid.New(),
		TenantID:    scope.TenantID(),
		Target:      domain.NotificationTargetHost,
		Trigger:     domain.TriggerOrderCreated,
		OrderID:     orderID,
		Payload:     hostPayload,
		Status:      domain.NotificationStatusPending,
		NextRetryAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.queue.Enqueue(ctx, scope, tx, event); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("enqueue host notification: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("order_id", orderID.String()).
		Str("tenant_id", scope.TenantID().String()).
		Int64("total_amount", total).
		Msg("order created")

	return result, nil
}
