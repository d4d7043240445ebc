package integration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"groupbuy-core/internal/core/domain"
	"groupbuy-core/internal/core/ports"
	"groupbuy-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// In-memory repository implementations for integration tests. They mirror the
// transactional semantics of the postgres layer (tenant scoping, version CAS,
// atomic idempotency reservation, lease claiming) so the full HTTP stack can
// run without a database.

// --- Transactor (no-op, satisfies pgx.Tx) ---

type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor { return &inMemoryTransactor{} }

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) { return &noopTx{}, nil }

// --- Tenants ---

type inMemoryTenantRepo struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]*domain.Tenant
}

func newInMemoryTenantRepo() *inMemoryTenantRepo {
	return &inMemoryTenantRepo{tenants: make(map[uuid.UUID]*domain.Tenant)}
}

func (r *inMemoryTenantRepo) add(t *domain.Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tenants[t.ID] = &cp
}

func (r *inMemoryTenantRepo) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.Slug == slug {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

// --- Host users ---

type inMemoryHostUserRepo struct {
	mu    sync.Mutex
	users []*domain.HostUser
}

func newInMemoryHostUserRepo() *inMemoryHostUserRepo { return &inMemoryHostUserRepo{} }

func (r *inMemoryHostUserRepo) add(u *domain.HostUser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users = append(r.users, &cp)
}

func (r *inMemoryHostUserRepo) GetByUsername(ctx context.Context, scope domain.ScopeToken, username string) (*domain.HostUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.TenantID == scope.TenantID() && u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// --- Orders ---

type inMemoryOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.Order
}

func newInMemoryOrderRepo() *inMemoryOrderRepo {
	return &inMemoryOrderRepo{orders: make(map[uuid.UUID]*domain.Order)}
}

func (r *inMemoryOrderRepo) Create(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *inMemoryOrderRepo) GetByID(ctx context.Context, scope domain.ScopeToken, id uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	if o.TenantID != scope.TenantID() {
		return nil, apperror.ErrCrossTenantDenied()
	}
	cp := *o
	return &cp, nil
}

// TransitionStatus performs the compare-and-set atomically under the repo
// mutex, matching the single-statement UPDATE the postgres layer runs.
func (r *inMemoryOrderRepo) TransitionStatus(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, id uuid.UUID, from, to domain.OrderStatus, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return apperror.ErrNotFound("order")
	}
	if o.TenantID != scope.TenantID() {
		return apperror.ErrCrossTenantDenied()
	}
	if o.Status != from || o.Version != expectedVersion {
		return apperror.ErrStaleOrderState()
	}
	o.Status = to
	o.Version++
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *inMemoryOrderRepo) List(ctx context.Context, scope domain.ScopeToken, params ports.OrderListParams) ([]domain.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Order
	for _, o := range r.orders {
		if o.TenantID != scope.TenantID() {
			continue
		}
		if params.Status != nil && o.Status != *params.Status {
			continue
		}
		result = append(result, *o)
	}
	return result, int64(len(result)), nil
}

// --- Customers ---

type inMemoryCustomerRepo struct {
	mu        sync.Mutex
	customers map[uuid.UUID]*domain.Customer
}

func newInMemoryCustomerRepo() *inMemoryCustomerRepo {
	return &inMemoryCustomerRepo{customers: make(map[uuid.UUID]*domain.Customer)}
}

func (r *inMemoryCustomerRepo) Create(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, c *domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.customers[c.ID] = &cp
	return nil
}

func (r *inMemoryCustomerRepo) GetByID(ctx context.Context, scope domain.ScopeToken, id uuid.UUID) (*domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[id]
	if !ok || c.TenantID != scope.TenantID() {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *inMemoryCustomerRepo) GetByLineUserID(ctx context.Context, scope domain.ScopeToken, lineUserID string) (*domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.customers {
		if c.TenantID == scope.TenantID() && c.LineUserID != nil && *c.LineUserID == lineUserID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryCustomerRepo) GetByBindNonce(ctx context.Context, scope domain.ScopeToken, nonce string) (*domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.customers {
		if c.TenantID == scope.TenantID() && c.BindNonce != nil && *c.BindNonce == nonce {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryCustomerRepo) BindLineUser(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, customerID uuid.UUID, lineUserID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[customerID]
	if !ok || c.TenantID != scope.TenantID() {
		return apperror.ErrNotFound("customer")
	}
	c.LineUserID = &lineUserID
	c.BindNonce = nil
	return nil
}

// --- Products ---

type inMemoryProductRepo struct {
	mu       sync.Mutex
	variants []domain.Variant
}

func newInMemoryProductRepo() *inMemoryProductRepo { return &inMemoryProductRepo{} }

func (r *inMemoryProductRepo) add(v domain.Variant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variants = append(r.variants, v)
}

func (r *inMemoryProductRepo) GetVariants(ctx context.Context, scope domain.ScopeToken, ids []uuid.UUID) ([]domain.Variant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Variant
	for _, v := range r.variants {
		if v.TenantID != scope.TenantID() {
			continue
		}
		for _, id := range ids {
			if v.ID == id {
				result = append(result, v)
			}
		}
	}
	return result, nil
}

// --- Idempotency ledger ---

type inMemoryLedger struct {
	mu      sync.Mutex
	records map[string]*domain.IdempotencyRecord
}

func newInMemoryLedger() *inMemoryLedger {
	return &inMemoryLedger{records: make(map[string]*domain.IdempotencyRecord)}
}

func (l *inMemoryLedger) key(scope domain.ScopeToken, key string) string {
	return scope.TenantID().String() + ":" + key
}

// BeginOrReplay reserves the slot or resolves the prior outcome. The check and
// insert happen under one lock, matching the INSERT ... ON CONFLICT DO NOTHING
// the postgres layer relies on.
func (l *inMemoryLedger) BeginOrReplay(ctx context.Context, scope domain.ScopeToken, key, fingerprint string) (*domain.IdempotencyRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := l.key(scope, key)
	rec, ok := l.records[k]
	if !ok {
		l.records[k] = &domain.IdempotencyRecord{
			TenantID:    scope.TenantID(),
			Key:         key,
			Fingerprint: fingerprint,
			Status:      domain.IdempotencyStatusInProgress,
			CreatedAt:   time.Now().UTC(),
		}
		return nil, nil
	}
	if rec.Fingerprint != fingerprint {
		return nil, apperror.ErrIdempotencyConflict()
	}
	if rec.Status == domain.IdempotencyStatusInProgress {
		return nil, apperror.ErrIdempotencyInProgress()
	}
	cp := *rec
	return &cp, nil
}

func (l *inMemoryLedger) Complete(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, key string, orderID uuid.UUID, outcome []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[l.key(scope, key)]
	if !ok || rec.Status != domain.IdempotencyStatusInProgress {
		return fmt.Errorf("no in-progress reservation for key %s", key)
	}
	rec.Status = domain.IdempotencyStatusCompleted
	rec.OrderID = &orderID
	rec.Outcome = outcome
	return nil
}

func (l *inMemoryLedger) Release(ctx context.Context, scope domain.ScopeToken, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := l.key(scope, key)
	rec, ok := l.records[k]
	if ok && rec.Status == domain.IdempotencyStatusInProgress {
		delete(l.records, k)
	}
	return nil
}

// --- Payments and shipments ---

type inMemoryPaymentRepo struct {
	mu       sync.Mutex
	payments []*domain.Payment
}

func newInMemoryPaymentRepo() *inMemoryPaymentRepo { return &inMemoryPaymentRepo{} }

func (r *inMemoryPaymentRepo) Create(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.payments = append(r.payments, &cp)
	return nil
}

func (r *inMemoryPaymentRepo) GetByOrderID(ctx context.Context, scope domain.ScopeToken, orderID uuid.UUID) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.OrderID == orderID && p.TenantID == scope.TenantID() {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

type inMemoryShipmentRepo struct {
	mu        sync.Mutex
	shipments []*domain.Shipment
}

func newInMemoryShipmentRepo() *inMemoryShipmentRepo { return &inMemoryShipmentRepo{} }

func (r *inMemoryShipmentRepo) Create(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, s *domain.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.shipments = append(r.shipments, &cp)
	return nil
}

func (r *inMemoryShipmentRepo) UpdateStatus(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, orderID uuid.UUID, status domain.ShipmentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.shipments {
		if s.OrderID == orderID && s.TenantID == scope.TenantID() {
			s.Status = status
			return nil
		}
	}
	return apperror.ErrNotFound("shipment")
}

// --- Notification queue ---

type inMemoryNotificationQueue struct {
	mu     sync.Mutex
	events map[uuid.UUID]*domain.NotificationEvent
}

func newInMemoryNotificationQueue() *inMemoryNotificationQueue {
	return &inMemoryNotificationQueue{events: make(map[uuid.UUID]*domain.NotificationEvent)}
}

func (q *inMemoryNotificationQueue) Enqueue(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, e *domain.NotificationEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := *e
	q.events[e.ID] = &cp
	return nil
}

func (q *inMemoryNotificationQueue) ClaimDue(ctx context.Context, owner string, limit int, lease time.Duration) ([]domain.NotificationEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now().UTC()
	var claimed []domain.NotificationEvent
	for _, e := range q.events {
		if len(claimed) >= limit {
			break
		}
		if e.Status != domain.NotificationStatusPending && e.Status != domain.NotificationStatusFailed {
			continue
		}
		if e.NextRetryAt.After(now) {
			continue
		}
		if e.LeaseExpiry != nil && e.LeaseExpiry.After(now) {
			continue
		}
		e.ClaimedBy = &owner
		exp := now.Add(lease)
		e.LeaseExpiry = &exp
		claimed = append(claimed, *e)
	}
	return claimed, nil
}

func (q *inMemoryNotificationQueue) MarkSent(ctx context.Context, id uuid.UUID, owner string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.events[id]
	if !ok || e.ClaimedBy == nil || *e.ClaimedBy != owner {
		return fmt.Errorf("notification %s no longer owned by %s", id, owner)
	}
	e.Status = domain.NotificationStatusSent
	e.ClaimedBy = nil
	e.LeaseExpiry = nil
	return nil
}

func (q *inMemoryNotificationQueue) MarkFailed(ctx context.Context, id uuid.UUID, owner string, attemptErr string, nextRetryAt time.Time, maxAttempts int) (domain.NotificationStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.events[id]
	if !ok || e.ClaimedBy == nil || *e.ClaimedBy != owner {
		return "", fmt.Errorf("notification %s no longer owned by %s", id, owner)
	}
	e.Attempts++
	e.LastError = &attemptErr
	e.NextRetryAt = nextRetryAt
	e.ClaimedBy = nil
	e.LeaseExpiry = nil
	if e.Attempts >= maxAttempts {
		e.Status = domain.NotificationStatusDeadLettered
	} else {
		e.Status = domain.NotificationStatusFailed
	}
	return e.Status, nil
}

func (q *inMemoryNotificationQueue) UpdateDeliveryStatus(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, id uuid.UUID, status domain.NotificationStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.events[id]
	if !ok || e.TenantID != scope.TenantID() {
		return apperror.ErrNotFound("notification")
	}
	e.Status = status
	return nil
}

func (q *inMemoryNotificationQueue) CountByOrder(ctx context.Context, scope domain.ScopeToken, orderID uuid.UUID, target domain.NotificationTarget) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int64
	for _, e := range q.events {
		if e.TenantID == scope.TenantID() && e.OrderID == orderID && e.Target == target {
			n++
		}
	}
	return n, nil
}

// --- Webhook event dedup records ---

type inMemoryWebhookEventRepo struct {
	mu      sync.Mutex
	records map[string]*domain.WebhookEventRecord
}

func newInMemoryWebhookEventRepo() *inMemoryWebhookEventRepo {
	return &inMemoryWebhookEventRepo{records: make(map[string]*domain.WebhookEventRecord)}
}

func (r *inMemoryWebhookEventRepo) key(tenantID uuid.UUID, eventID string) string {
	return tenantID.String() + ":" + eventID
}

func (r *inMemoryWebhookEventRepo) Get(ctx context.Context, scope domain.ScopeToken, providerEventID string) (*domain.WebhookEventRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[r.key(scope.TenantID(), providerEventID)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// Record rejects duplicates with the unique-violation code the service layer
// treats as a lost dedup race.
func (r *inMemoryWebhookEventRepo) Record(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, rec *domain.WebhookEventRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.key(scope.TenantID(), rec.ProviderEventID)
	if _, ok := r.records[k]; ok {
		return &pgconn.PgError{Code: "23505"}
	}
	cp := *rec
	r.records[k] = &cp
	return nil
}
