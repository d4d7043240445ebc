package ports

import (
	"context"
	"time"

	"groupbuy-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Every repository method below takes a domain.ScopeToken. Implementations
// inject the tenant predicate into the query itself; callers cannot construct
// an unscoped access. Methods accepting pgx.Tx run inside transaction blocks
// so multi-entity writes commit as one atomic unit.

// TenantRepository resolves tenants. It is the only repository that operates
// without a scope token, because it produces the identity the token carries.
type TenantRepository interface {
	GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
}

// HostUserRepository defines persistence for host staff logins.
type HostUserRepository interface {
	GetByUsername(ctx context.Context, scope domain.ScopeToken, username string) (*domain.HostUser, error)
}

// OrderRepository defines persistence for orders and their line items.
type OrderRepository interface {
	// Create inserts the order and all its items in one transaction.
	Create(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, order *domain.Order) error
	GetByID(ctx context.Context, scope domain.ScopeToken, id uuid.UUID) (*domain.Order, error)
	// TransitionStatus is a compare-and-swap on (status, version). It returns
	// ErrStaleOrderState when the stored row no longer matches, and
	// ErrCrossTenantDenied when the order exists under another tenant.
	TransitionStatus(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, id uuid.UUID, from, to domain.OrderStatus, expectedVersion int64) error
	List(ctx context.Context, scope domain.ScopeToken, params OrderListParams) ([]domain.Order, int64, error)
}

// OrderListParams holds filter + pagination for host order listing.
type OrderListParams struct {
	Status   *domain.OrderStatus
	From     *int64 // Unix timestamp
	To       *int64 // Unix timestamp
	Page     int
	PageSize int
}

// CustomerRepository defines persistence for customers.
type CustomerRepository interface {
	Create(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, customer *domain.Customer) error
	GetByID(ctx context.Context, scope domain.ScopeToken, id uuid.UUID) (*domain.Customer, error)
	GetByLineUserID(ctx context.Context, scope domain.ScopeToken, lineUserID string) (*domain.Customer, error)
	GetByBindNonce(ctx context.Context, scope domain.ScopeToken, nonce string) (*domain.Customer, error)
	// BindLineUser sets the customer's external messaging identifier and
	// clears the one-shot binding nonce.
	BindLineUser(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, customerID uuid.UUID, lineUserID string) error
}

// ProductRepository reads catalog variants for intake validation.
type ProductRepository interface {
	GetVariants(ctx context.Context, scope domain.ScopeToken, ids []uuid.UUID) ([]domain.Variant, error)
}

// IdempotencyLedger records the outcome of client-supplied idempotency keys.
type IdempotencyLedger interface {
	// BeginOrReplay atomically reserves (tenant, key). It returns (nil, nil)
	// when the caller should proceed, the stored record on replay,
	// ErrIdempotencyConflict on fingerprint mismatch and
	// ErrIdempotencyInProgress while a concurrent attempt holds the slot.
	BeginOrReplay(ctx context.Context, scope domain.ScopeToken, key, fingerprint string) (*domain.IdempotencyRecord, error)
	// Complete stores the outcome snapshot inside the creating transaction.
	Complete(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, key string, orderID uuid.UUID, outcome []byte) error
	// Release frees a reservation after a failed attempt so the client may
	// legitimately retry.
	Release(ctx context.Context, scope domain.ScopeToken, key string) error
}

// PaymentRepository persists confirmed payments.
type PaymentRepository interface {
	Create(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, payment *domain.Payment) error
	GetByOrderID(ctx context.Context, scope domain.ScopeToken, orderID uuid.UUID) (*domain.Payment, error)
}

// ShipmentRepository persists shipments.
type ShipmentRepository interface {
	Create(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, shipment *domain.Shipment) error
	UpdateStatus(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, orderID uuid.UUID, status domain.ShipmentStatus) error
}

// NotificationQueue is the durable handoff between state transitions and
// delivery. Enqueue happens inside the transition's transaction; claiming and
// settling happen from the dispatcher pool, which runs across tenants and so
// claims without a scope.
type NotificationQueue interface {
	Enqueue(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, event *domain.NotificationEvent) error
	// ClaimDue stamps up to limit due events with (owner, lease) and returns
	// them. Expired leases are reclaimable; two workers never hold the same
	// event at once.
	ClaimDue(ctx context.Context, owner string, limit int, lease time.Duration) ([]domain.NotificationEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID, owner string) error
	// MarkFailed records a failed attempt and schedules the next retry, or
	// dead-letters the event once attempts reach maxAttempts.
	MarkFailed(ctx context.Context, id uuid.UUID, owner string, attemptErr string, nextRetryAt time.Time, maxAttempts int) (domain.NotificationStatus, error)
	// UpdateDeliveryStatus settles an event from a provider delivery report.
	UpdateDeliveryStatus(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, id uuid.UUID, status domain.NotificationStatus) error
	CountByOrder(ctx context.Context, scope domain.ScopeToken, orderID uuid.UUID, target domain.NotificationTarget) (int64, error)
}

// WebhookEventRepository deduplicates inbound provider events.
type WebhookEventRepository interface {
	Get(ctx context.Context, scope domain.ScopeToken, providerEventID string) (*domain.WebhookEventRecord, error)
	// Record persists the processing result inside the same transaction as
	// the routed side effect.
	Record(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, rec *domain.WebhookEventRecord) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
