package handler

import (
	"context"
	"io"

	"groupbuy-core/internal/adapter/http/middleware"
	"groupbuy-core/internal/core/ports"
	"groupbuy-core/pkg/apperror"
	"groupbuy-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const headerLineSignature = "X-Line-Signature"

// WebhookHandler handles inbound provider webhooks.
type WebhookHandler struct {
	webhookSvc ports.WebhookService
	log        zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookSvc ports.WebhookService, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc, log: log}
}

// Receive handles POST /api/webhooks/line/:slug. The signature is verified
// synchronously against the raw body; event routing runs off the request
// goroutine so the provider always gets a fast 202. Redelivery of a batch
// that is still routing is harmless, the event-id dedup absorbs it.
func (h *WebhookHandler) Receive(c *gin.Context) {
	tenant, ok := middleware.TenantFrom(c)
	if !ok {
		response.Error(c, apperror.ErrNotFound("tenant"))
		return
	}
	scope, _ := middleware.ScopeFrom(c)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	signature := c.GetHeader(headerLineSignature)
	if err := h.webhookSvc.VerifySignature(c.Request.Context(), tenant, body, signature); err != nil {
		response.Error(c, err)
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	go func() {
		if err := h.webhookSvc.Process(ctx, scope, body); err != nil {
			h.log.Error().Err(err).
				Str("tenant_id", tenant.ID.String()).
				Msg("webhook body routing failed")
		}
	}()

	response.Accepted(c, gin.H{"status": "accepted"})
}
