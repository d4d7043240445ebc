package handler

import (
	"bytes"
	"encoding/json"
	"io"

	"groupbuy-core/internal/adapter/http/dto"
	"groupbuy-core/internal/adapter/http/middleware"
	"groupbuy-core/internal/core/ports"
	"groupbuy-core/pkg/apperror"
	"groupbuy-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const headerIdempotencyKey = "Idempotency-Key"

// OrderHandler handles the public order intake endpoint.
type OrderHandler struct {
	intakeSvc ports.IntakeService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(intakeSvc ports.IntakeService) *OrderHandler {
	return &OrderHandler{intakeSvc: intakeSvc}
}

// CreateOrder handles POST /api/public/:slug/orders. The raw body is
// fingerprinted before binding so the idempotency ledger sees exactly what
// the client sent.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	scope, ok := middleware.ScopeFrom(c)
	if !ok {
		response.Error(c, apperror.ErrNotFound("tenant"))
		return
	}

	key := c.GetHeader(headerIdempotencyKey)
	if key == "" || len(key) > 128 {
		response.Error(c, apperror.Validation("Idempotency-Key header is required and at most 128 characters"))
		return
	}

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(rawBody))

	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	items := make([]ports.IntakeItem, 0, len(req.Items))
	for _, item := range req.Items {
		variantID, err := uuid.Parse(item.VariantID)
		if err != nil {
			response.Error(c, apperror.Validation("invalid variant_id"))
			return
		}
		items = append(items, ports.IntakeItem{VariantID: variantID, Quantity: item.Quantity})
	}

	result, err := h.intakeSvc.Submit(c.Request.Context(), scope, ports.IntakeRequest{
		IdempotencyKey: key,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		Items:          items,
		RawBody:        normalizeBody(rawBody),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.CreateOrderResponse{
		OrderID:     result.OrderID.String(),
		Status:      string(result.Status),
		TotalAmount: result.Total,
	}
	if result.Replay {
		response.OK(c, resp)
		return
	}
	response.Created(c, resp)
}

// normalizeBody compacts the JSON body so whitespace differences between
// retries of the same request still fingerprint identically.
func normalizeBody(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
