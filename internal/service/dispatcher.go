package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"groupbuy-core/config"
	"groupbuy-core/internal/core/domain"
	"groupbuy-core/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Dispatcher drains the notification queue with a pool of workers. Each worker
// claims a lease-stamped batch, resolves per-tenant channel credentials, and
// pushes through the provider. Delivery is at-least-once; the event id doubles
// as the provider retry key so duplicate pushes collapse on their side.
type Dispatcher struct {
	queue     ports.NotificationQueue
	orders    ports.OrderRepository
	customers ports.CustomerRepository
	tenants   ports.TenantRepository
	encSvc    ports.EncryptionService
	sender    ports.MessageSender
	cfg       config.DispatcherConfig
	log       zerolog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(
	queue ports.NotificationQueue,
	orders ports.OrderRepository,
	customers ports.CustomerRepository,
	tenants ports.TenantRepository,
	encSvc ports.EncryptionService,
	sender ports.MessageSender,
	cfg config.DispatcherConfig,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		queue:     queue,
		orders:    orders,
		customers: customers,
		tenants:   tenants,
		encSvc:    encSvc,
		sender:    sender,
		cfg:       cfg,
		log:       log,
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and all
// workers have drained their in-flight batch.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		owner := fmt.Sprintf("worker-%d-%s", i, uuid.New().String()[:8])
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker(ctx, owner)
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, owner string) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	log := d.log.With().Str("worker", owner).Logger()
	log.Info().Msg("dispatcher worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("dispatcher worker stopped")
			return
		case <-ticker.C:
			d.drainOnce(ctx, owner, log)
		}
	}
}

// drainOnce claims and delivers one batch. It keeps claiming until the queue
// has nothing due, so a burst does not wait a poll interval per batch.
func (d *Dispatcher) drainOnce(ctx context.Context, owner string, log zerolog.Logger) {
	for {
		events, err := d.queue.ClaimDue(ctx, owner, d.cfg.BatchSize, d.cfg.LeaseTTL)
		if err != nil {
			log.Error().Err(err).Msg("claim batch failed")
			return
		}
		if len(events) == 0 {
			return
		}
		for i := range events {
			if ctx.Err() != nil {
				return
			}
			d.deliver(ctx, owner, &events[i], log)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, owner string, event *domain.NotificationEvent, log zerolog.Logger) {
	if err := d.push(ctx, event); err != nil {
		d.settleFailure(ctx, owner, event, err, log)
		return
	}
	if err := d.queue.MarkSent(ctx, event.ID, owner); err != nil {
		// Lost the lease mid-delivery; whoever re-claims will push again and
		// the retry key dedups on the provider side.
		log.Warn().Err(err).Str("event_id", event.ID.String()).Msg("mark sent failed")
		return
	}
	log.Info().
		Str("event_id", event.ID.String()).
		Str("tenant_id", event.TenantID.String()).
		Str("target", string(event.Target)).
		Msg("notification delivered")
}

// push resolves credentials and recipient for one event and sends it.
func (d *Dispatcher) push(ctx context.Context, event *domain.NotificationEvent) error {
	scope := domain.NewScope(event.TenantID)

	tenant, err := d.tenants.GetByID(ctx, event.TenantID)
	if err != nil {
		return fmt.Errorf("resolve tenant: %w", err)
	}
	if tenant == nil {
		return fmt.Errorf("tenant %s not found", event.TenantID)
	}

	channelToken, err := d.encSvc.Decrypt(tenant.ChannelTokenEnc)
	if err != nil {
		return fmt.Errorf("decrypt channel token: %w", err)
	}

	to, err := d.resolveRecipient(ctx, scope, tenant, event)
	if err != nil {
		return err
	}

	return d.sender.Push(ctx, channelToken, to, event.Payload, event.ID)
}

// resolveRecipient maps the event to a provider user id. Customer recipients
// resolve lazily at delivery time so an account link landing after enqueue
// still reaches the buyer on a retry.
func (d *Dispatcher) resolveRecipient(ctx context.Context, scope domain.ScopeToken, tenant *domain.Tenant, event *domain.NotificationEvent) (string, error) {
	if event.Target == domain.NotificationTargetHost {
		if tenant.OwnerLineUserID == "" {
			return "", fmt.Errorf("tenant %s has no owner push target", tenant.ID)
		}
		return tenant.OwnerLineUserID, nil
	}

	if event.RecipientID != nil && *event.RecipientID != "" {
		return *event.RecipientID, nil
	}

	order, err := d.orders.GetByID(ctx, scope, event.OrderID)
	if err != nil {
		return "", fmt.Errorf("resolve order: %w", err)
	}
	if order == nil {
		return "", fmt.Errorf("order %s not found", event.OrderID)
	}
	customer, err := d.customers.GetByID(ctx, scope, order.CustomerID)
	if err != nil {
		return "", fmt.Errorf("resolve customer: %w", err)
	}
	if customer == nil || customer.LineUserID == nil || *customer.LineUserID == "" {
		return "", fmt.Errorf("customer for order %s has no linked messaging account", event.OrderID)
	}
	return *customer.LineUserID, nil
}

func (d *Dispatcher) settleFailure(ctx context.Context, owner string, event *domain.NotificationEvent, deliverErr error, log zerolog.Logger) {
	retryAt := time.Now().UTC().Add(d.backoff(event.Attempts))
	status, err := d.queue.MarkFailed(ctx, event.ID, owner, deliverErr.Error(), retryAt, d.cfg.MaxAttempts)
	if err != nil {
		log.Warn().Err(err).Str("event_id", event.ID.String()).Msg("mark failed failed")
		return
	}
	evt := log.Warn()
	if status == domain.NotificationStatusDeadLettered {
		evt = log.Error()
	}
	evt.Err(deliverErr).
		Str("event_id", event.ID.String()).
		Str("tenant_id", event.TenantID.String()).
		Str("status", string(status)).
		Int("attempts", event.Attempts+1).
		Msg("notification delivery failed")
}

// backoff returns base * 2^attempts capped at the configured maximum, with up
// to 20% jitter so retries from one outage do not thunder back together.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	delay := d.cfg.BackoffBase
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= d.cfg.BackoffMax {
			delay = d.cfg.BackoffMax
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/5 + 1))
	return delay + jitter
}
