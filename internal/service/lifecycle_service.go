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
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LifecycleServiceImpl implements ports.LifecycleService. A successful
// compare-and-swap transition is the sole trigger point for customer-facing
// status notifications; the transition, its side record and the notification
// commit together.
type LifecycleServiceImpl struct {
	orders     ports.OrderRepository
	payments   ports.PaymentRepository
	shipments  ports.ShipmentRepository
	queue      ports.NotificationQueue
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewLifecycleService creates a new LifecycleServiceImpl.
func NewLifecycleService(
	orders ports.OrderRepository,
	payments ports.PaymentRepository,
	shipments ports.ShipmentRepository,
	queue ports.NotificationQueue,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *LifecycleServiceImpl {
	return &LifecycleServiceImpl{
		orders:     orders,
		payments:   payments,
		shipments:  shipments,
		queue:      queue,
		transactor: transactor,
		log:        log,
	}
}

// Transition applies a host action against the caller's last-seen version.
func (s *LifecycleServiceImpl) Transition(ctx context.Context, scope domain.ScopeToken, req ports.TransitionRequest) (*domain.Order, error) {
	switch req.Action {
	case domain.ActionConfirmPayment, domain.ActionShip, domain.ActionComplete, domain.ActionCancel:
	default:
		return nil, apperror.Validation(fmt.Sprintf("unknown action %q", req.Action))
	}

	order, err := s.orders.GetByID(ctx, scope, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperror.ErrNotFound("order")
	}

	next, ok := domain.NextStatus(order.Status, req.Action)
	if !ok {
		// The action is never legal from where the caller believes the order
		// is, or the order has moved on. A stale version means the latter.
		if order.Version != req.ExpectedVersion {
			return nil, apperror.ErrStaleOrderState()
		}
		return nil, apperror.ErrInvalidTransition(string(order.Status), string(req.Action))
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.orders.TransitionStatus(ctx, scope, tx, order.ID, order.Status, next, req.ExpectedVersion); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.recordSideEffect(ctx, scope, tx, order, req, now); err != nil {
		return nil, err
	}

	if err := s.enqueueStatusNotification(ctx, scope, tx, order, next, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("order_id", order.ID.String()).
		Str("tenant_id", scope.TenantID().String()).
		Str("from", string(order.Status)).
		Str("to", string(next)).
		Msg("order transitioned")

	order.Status = next
	order.Version++
	order.UpdatedAt = now
	return order, nil
}

// recordSideEffect persists the entity that justifies the transition.
func (s *LifecycleServiceImpl) recordSideEffect(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, order *domain.Order, req ports.TransitionRequest, now time.Time) error {
	switch req.Action {
	case domain.ActionConfirmPayment:
		payment := &domain.Payment{
			ID:          uuid.New(),
			TenantID:    scope.TenantID(),
			OrderID:     order.ID,
			Amount:      order.TotalAmount,
			ProviderRef: req.ProviderRef,
			Status:      domain.PaymentStatusConfirmed,
			CreatedAt:   now,
		}
		if err := s.payments.Create(ctx, scope, tx, payment); err != nil {
			return apperror.InternalError(fmt.Errorf("record payment: %w", err))
		}
	case domain.ActionShip:
		shipment := &domain.Shipment{
			ID:         uuid.New(),
			TenantID:   scope.TenantID(),
			OrderID:    order.ID,
			CarrierRef: req.CarrierRef,
			Status:     domain.ShipmentStatusInTransit,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.shipments.Create(ctx, scope, tx, shipment); err != nil {
			return apperror.InternalError(fmt.Errorf("record shipment: %w", err))
		}
	case domain.ActionComplete:
		if err := s.shipments.UpdateStatus(ctx, scope, tx, order.ID, domain.ShipmentStatusDelivered); err != nil {
			return err
		}
	}
	return nil
}

// enqueueStatusNotification is the only code path that enqueues
// customer-facing status notices.
func (s *LifecycleServiceImpl) enqueueStatusNotification(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, order *domain.Order, next domain.OrderStatus, now time.Time) error {
	payload, _ := json.Marshal(map[string]any{
		"trigger":  domain.TriggerStatusChanged,
		"order_id": order.ID,
		"status":   next,
	})
	event := &domain.NotificationEvent{
		ID:          uuid.New(),
		TenantID:    scope.TenantID(),
		Target:      domain.NotificationTargetCustomer,
		Trigger:     domain.TriggerStatusChanged,
		OrderID:     order.ID,
		Payload:     payload,
		Status:      domain.NotificationStatusPending,
		NextRetryAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.queue.Enqueue(ctx, scope, tx, event); err != nil {
		return apperror.InternalError(fmt.Errorf("enqueue status notification: %w", err))
	}
	return nil
}

// Get fetches one order.
func (s *LifecycleServiceImpl) Get(ctx context.Context, scope domain.ScopeToken, id uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperror.ErrNotFound("order")
	}
	return order, nil
}

// List fetches orders with filtering and pagination.
func (s *LifecycleServiceImpl) List(ctx context.Context, scope domain.ScopeToken, params ports.OrderListParams) ([]domain.Order, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}
	return s.orders.List(ctx, scope, params)
}
