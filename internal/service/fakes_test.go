package service

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

// In-memory implementations of the persistence ports, mirroring the
// transactional semantics the postgres layer provides. They let the service
// tests exercise real flows without a database.

// --- no-op pgx.Tx ---

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

type fakeTransactor struct{}

func (t *fakeTransactor) Begin(ctx context.Context) (pgx.Tx, error) { return &noopTx{}, nil }

// --- orders ---

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[uuid.UUID]*domain.Order)}
}

func (r *fakeOrderRepo) Create(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, scope domain.ScopeToken, id uuid.UUID) (*domain.Order, error) {
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

func (r *fakeOrderRepo) TransitionStatus(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, id uuid.UUID, from, to domain.OrderStatus, expectedVersion int64) error {
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

func (r *fakeOrderRepo) List(ctx context.Context, scope domain.ScopeToken, params ports.OrderListParams) ([]domain.Order, int64, error) {
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

// --- customers ---

type fakeCustomerRepo struct {
	mu        sync.Mutex
	customers map[uuid.UUID]*domain.Customer
}

func newFakeCustomerRepo() *fakeCustomerRepo {
	return &fakeCustomerRepo{customers: make(map[uuid.UUID]*domain.Customer)}
}

func (r *fakeCustomerRepo) Create(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, c *domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.customers[c.ID] = &cp
	return nil
}

func (r *fakeCustomerRepo) GetByID(ctx context.Context, scope domain.ScopeToken, id uuid.UUID) (*domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[id]
	if !ok || c.TenantID != scope.TenantID() {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCustomerRepo) GetByLineUserID(ctx context.Context, scope domain.ScopeToken, lineUserID string) (*domain.Customer, error) {
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

func (r *fakeCustomerRepo) GetByBindNonce(ctx context.Context, scope domain.ScopeToken, nonce string) (*domain.Customer, error) {
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

func (r *fakeCustomerRepo) BindLineUser(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, customerID uuid.UUID, lineUserID string) error {
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

// --- products ---

type fakeProductRepo struct {
	variants []domain.Variant
}

func (r *fakeProductRepo) GetVariants(ctx context.Context, scope domain.ScopeToken, ids []uuid.UUID) ([]domain.Variant, error) {
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

// --- idempotency ledger ---

type fakeLedger struct {
	mu      sync.Mutex
	records map[string]*domain.IdempotencyRecord
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string]*domain.IdempotencyRecord)}
}

func (l *fakeLedger) ledgerKey(scope domain.ScopeToken, key string) string {
	return scope.TenantID().String() + ":" + key
}

func (l *fakeLedger) BeginOrReplay(ctx context.Context, scope domain.ScopeToken, key, fingerprint string) (*domain.IdempotencyRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := l.ledgerKey(scope, key)
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

func (l *fakeLedger) Complete(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, key string, orderID uuid.UUID, outcome []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[l.ledgerKey(scope, key)]
	if !ok || rec.Status != domain.IdempotencyStatusInProgress {
		return fmt.Errorf("no in-progress reservation for key %s", key)
	}
	rec.Status = domain.IdempotencyStatusCompleted
	rec.OrderID = &orderID
	rec.Outcome = outcome
	return nil
}

func (l *fakeLedger) Release(ctx context.Context, scope domain.ScopeToken, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := l.ledgerKey(scope, key)
	rec, ok := l.records[k]
	if ok && rec.Status == domain.IdempotencyStatusInProgress {
		delete(l.records, k)
	}
	return nil
}

// --- notification queue ---

type fakeQueue struct {
	mu     sync.Mutex
	events map[uuid.UUID]*domain.NotificationEvent
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{events: make(map[uuid.UUID]*domain.NotificationEvent)}
}

func (q *fakeQueue) Enqueue(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, e *domain.NotificationEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := *e
	q.events[e.ID] = &cp
	return nil
}

func (q *fakeQueue) ClaimDue(ctx context.Context, owner string, limit int, lease time.Duration) ([]domain.NotificationEvent, error) {
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

func (q *fakeQueue) MarkSent(ctx context.Context, id uuid.UUID, owner string) error {
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

func (q *fakeQueue) MarkFailed(ctx context.Context, id uuid.UUID, owner string, attemptErr string, nextRetryAt time.Time, maxAttempts int) (domain.NotificationStatus, error) {
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

func (q *fakeQueue) UpdateDeliveryStatus(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, id uuid.UUID, status domain.NotificationStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.events[id]
	if !ok || e.TenantID != scope.TenantID() {
		return apperror.ErrNotFound("notification")
	}
	e.Status = status
	return nil
}

func (q *fakeQueue) CountByOrder(ctx context.Context, scope domain.ScopeToken, orderID uuid.UUID, target domain.NotificationTarget) (int64, error) {
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

func (q *fakeQueue) byOrder(orderID uuid.UUID, target domain.NotificationTarget) []*domain.NotificationEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	var result []*domain.NotificationEvent
	for _, e := range q.events {
		if e.OrderID == orderID && e.Target == target {
			result = append(result, e)
		}
	}
	return result
}

// --- payments and shipments ---

type fakePaymentRepo struct {
	mu       sync.Mutex
	payments []*domain.Payment
}

func (r *fakePaymentRepo) Create(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.payments = append(r.payments, &cp)
	return nil
}

func (r *fakePaymentRepo) GetByOrderID(ctx context.Context, scope domain.ScopeToken, orderID uuid.UUID) (*domain.Payment, error) {
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

type fakeShipmentRepo struct {
	mu        sync.Mutex
	shipments []*domain.Shipment
}

func (r *fakeShipmentRepo) Create(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, s *domain.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.shipments = append(r.shipments, &cp)
	return nil
}

func (r *fakeShipmentRepo) UpdateStatus(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, orderID uuid.UUID, status domain.ShipmentStatus) error {
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

// --- webhook events ---

type fakeWebhookEventRepo struct {
	mu      sync.Mutex
	records map[string]*domain.WebhookEventRecord
}

func newFakeWebhookEventRepo() *fakeWebhookEventRepo {
	return &fakeWebhookEventRepo{records: make(map[string]*domain.WebhookEventRecord)}
}

func (r *fakeWebhookEventRepo) key(tenantID uuid.UUID, eventID string) string {
	return tenantID.String() + ":" + eventID
}

func (r *fakeWebhookEventRepo) Get(ctx context.Context, scope domain.ScopeToken, providerEventID string) (*domain.WebhookEventRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[r.key(scope.TenantID(), providerEventID)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeWebhookEventRepo) Record(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, rec *domain.WebhookEventRecord) error {
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

// --- tenants and host users ---

type fakeTenantRepo struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]*domain.Tenant
}

func newFakeTenantRepo(tenants ...*domain.Tenant) *fakeTenantRepo {
	r := &fakeTenantRepo{tenants: make(map[uuid.UUID]*domain.Tenant)}
	for _, t := range tenants {
		r.tenants[t.ID] = t
	}
	return r
}

func (r *fakeTenantRepo) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
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

func (r *fakeTenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

type fakeHostUserRepo struct {
	users []*domain.HostUser
}

func (r *fakeHostUserRepo) GetByUsername(ctx context.Context, scope domain.ScopeToken, username string) (*domain.HostUser, error) {
	for _, u := range r.users {
		if u.TenantID == scope.TenantID() && u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// --- message sender ---

type sentPush struct {
	ChannelToken string
	To           string
	Payload      []byte
	RetryKey     uuid.UUID
}

type fakeSender struct {
	mu     sync.Mutex
	pushes []sentPush
	fail   error
}

func (s *fakeSender) Push(ctx context.Context, channelToken, to string, payload []byte, retryKey uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.pushes = append(s.pushes, sentPush{ChannelToken: channelToken, To: to, Payload: payload, RetryKey: retryKey})
	return nil
}

func (s *fakeSender) sent() []sentPush {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentPush(nil), s.pushes...)
}
