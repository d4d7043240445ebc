package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"groupbuy-core/internal/core/domain"
	"groupbuy-core/internal/core/ports"
	"groupbuy-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// lineWebhookPayload mirrors the LINE Messaging API webhook body. Only the
// fields the router consumes are declared.
type lineWebhookPayload struct {
	Destination string      `json:"destination"`
	Events      []lineEvent `json:"events"`
}

type lineEvent struct {
	Type           string `json:"type"`
	WebhookEventID string `json:"webhookEventId"`
	Timestamp      int64  `json:"timestamp"`
	Source         struct {
		UserID string `json:"userId"`
	} `json:"source"`
	Link struct {
		Result string `json:"result"`
		Nonce  string `json:"nonce"`
	} `json:"link"`
	Delivery struct {
		RetryKey string `json:"retryKey"`
		Status   string `json:"status"`
	} `json:"delivery"`
}

// WebhookServiceImpl implements ports.WebhookService.
type WebhookServiceImpl struct {
	sigSvc     ports.SignatureService
	encSvc     ports.EncryptionService
	customers  ports.CustomerRepository
	queue      ports.NotificationQueue
	events     ports.WebhookEventRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewWebhookService creates a new WebhookServiceImpl.
func NewWebhookService(
	sigSvc ports.SignatureService,
	encSvc ports.EncryptionService,
	customers ports.CustomerRepository,
	queue ports.NotificationQueue,
	events ports.WebhookEventRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *WebhookServiceImpl {
	return &WebhookServiceImpl{
		sigSvc:     sigSvc,
		encSvc:     encSvc,
		customers:  customers,
		queue:      queue,
		events:     events,
		transactor: transactor,
		log:        log,
	}
}

// VerifySignature authenticates the raw body against the tenant's channel
// secret. Callers must not parse the body before this returns nil.
func (s *WebhookServiceImpl) VerifySignature(ctx context.Context, tenant *domain.Tenant, body []byte, signature string) error {
	secret, err := s.encSvc.Decrypt(tenant.ChannelSecretEnc)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("decrypt channel secret: %w", err))
	}
	if !s.sigSvc.Verify(secret, body, signature) {
		s.log.Warn().
			Str("tenant_id", tenant.ID.String()).
			Msg("webhook signature verification failed")
		return apperror.ErrWebhookSignatureInvalid()
	}
	return nil
}

// Process parses a verified body and routes each event. Every event id is
// processed at most once; routing and the dedup record commit together.
func (s *WebhookServiceImpl) Process(ctx context.Context, scope domain.ScopeToken, body []byte) error {
	var payload lineWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return apperror.Validation("malformed webhook body")
	}

	for _, ev := range payload.Events {
		if err := s.processOne(ctx, scope, ev); err != nil {
			// One bad event must not block the rest of the batch; the
			// provider retries the whole delivery otherwise.
			s.log.Error().Err(err).
				Str("tenant_id", scope.TenantID().String()).
				Str("event_id", ev.WebhookEventID).
				Str("event_type", ev.Type).
				Msg("webhook event processing failed")
		}
	}
	return nil
}

func (s *WebhookServiceImpl) processOne(ctx context.Context, scope domain.ScopeToken, ev lineEvent) error {
	if ev.WebhookEventID == "" {
		s.log.Debug().Str("event_type", ev.Type).Msg("webhook event without id skipped")
		return nil
	}

	existing, err := s.events.Get(ctx, scope, ev.WebhookEventID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil // already processed, the stored outcome stands
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	status, err := s.route(ctx, scope, tx, ev)
	if err != nil {
		return err
	}

	rec := &domain.WebhookEventRecord{
		TenantID:        scope.TenantID(),
		ProviderEventID: ev.WebhookEventID,
		EventType:       ev.Type,
		Status:          status,
		ProcessedAt:     time.Now().UTC(),
	}
	if err := s.events.Record(ctx, scope, tx, rec); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// A concurrent delivery of the same event won the race.
			return nil
		}
		return apperror.InternalError(fmt.Errorf("record webhook event: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// route applies the side effect for one event kind. Unknown kinds and events
// that reference nothing we track are recorded as IGNORED, not errors.
func (s *WebhookServiceImpl) route(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, ev lineEvent) (domain.WebhookProcessingStatus, error) {
	switch ev.Type {
	case "follow":
		return s.routeFollow(ctx, scope, tx, ev)
	case "accountLink":
		return s.routeAccountLink(ctx, scope, tx, ev)
	case "delivery":
		return s.routeDelivery(ctx, scope, tx, ev)
	default:
		return domain.WebhookIgnored, nil
	}
}

// routeFollow registers the LINE user as a customer if we have not seen them.
func (s *WebhookServiceImpl) routeFollow(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, ev lineEvent) (domain.WebhookProcessingStatus, error) {
	if ev.Source.UserID == "" {
		return domain.WebhookIgnored, nil
	}
	existing, err := s.customers.GetByLineUserID(ctx, scope, ev.Source.UserID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return domain.WebhookProcessed, nil
	}
	now := time.Now().UTC()
	lineID := ev.Source.UserID
	customer := &domain.Customer{
		ID:         uuid.New(),
		TenantID:   scope.TenantID(),
		LineUserID: &lineID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.customers.Create(ctx, scope, tx, customer); err != nil {
		return "", apperror.InternalError(fmt.Errorf("create customer from follow: %w", err))
	}
	return domain.WebhookProcessed, nil
}

// routeAccountLink binds a LINE user id to the customer holding the one-shot
// nonce issued at intake.
func (s *WebhookServiceImpl) routeAccountLink(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, ev lineEvent) (domain.WebhookProcessingStatus, error) {
	if ev.Link.Result != "ok" || ev.Link.Nonce == "" || ev.Source.UserID == "" {
		return domain.WebhookIgnored, nil
	}
	customer, err := s.customers.GetByBindNonce(ctx, scope, ev.Link.Nonce)
	if err != nil {
		return "", err
	}
	if customer == nil {
		// Nonce already consumed or never issued here.
		return domain.WebhookIgnored, nil
	}
	if err := s.customers.BindLineUser(ctx, scope, tx, customer.ID, ev.Source.UserID); err != nil {
		return "", apperror.InternalError(fmt.Errorf("bind line user: %w", err))
	}
	return domain.WebhookProcessed, nil
}

// routeDelivery settles a previously pushed notification from the provider's
// delivery report. The retry key we send on push is the notification event id.
func (s *WebhookServiceImpl) routeDelivery(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, ev lineEvent) (domain.WebhookProcessingStatus, error) {
	eventID, err := uuid.Parse(ev.Delivery.RetryKey)
	if err != nil {
		return domain.WebhookIgnored, nil
	}
	status := domain.NotificationStatusFailed
	if ev.Delivery.Status == "success" {
		status = domain.NotificationStatusSent
	}
	if err := s.queue.UpdateDeliveryStatus(ctx, scope, tx, eventID, status); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Code == "NOT_FOUND" {
			return domain.WebhookIgnored, nil
		}
		return "", err
	}
	return domain.WebhookProcessed, nil
}
