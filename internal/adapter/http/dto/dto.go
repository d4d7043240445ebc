package dto

import (
	"time"

	"groupbuy-core/internal/core/domain"
)

// CreateOrderRequest is the public order submission body.
type CreateOrderRequest struct {
	CustomerName  string             `json:"customer_name" binding:"required,min=1,max=100"`
	CustomerPhone string             `json:"customer_phone" binding:"omitempty,max=32"`
	Items         []OrderItemRequest `json:"items" binding:"required,min=1,max=50,dive"`
}

// OrderItemRequest is one requested line.
type OrderItemRequest struct {
	VariantID string `json:"variant_id" binding:"required,uuid"`
	Quantity  int    `json:"quantity" binding:"required,gt=0,lte=999"`
}

// CreateOrderResponse is the stored intake outcome, identical on replay.
type CreateOrderResponse struct {
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"total_amount"`
}

// LoginRequest is the request body for host login.
type LoginRequest struct {
	TenantSlug string `json:"tenant_slug" binding:"required,min=1,max=64"`
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// TransitionRequest is the host action body for an order transition.
type TransitionRequest struct {
	Action          string `json:"action" binding:"required,oneof=confirm-payment ship complete cancel"`
	ExpectedVersion int64  `json:"expected_version" binding:"required,gt=0"`
	ProviderRef     string `json:"provider_ref,omitempty" binding:"omitempty,max=100"`
	CarrierRef      string `json:"carrier_ref,omitempty" binding:"omitempty,max=100"`
}

// OrderItemResponse is one order line.
type OrderItemResponse struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Subtotal  int64  `json:"subtotal"`
}

// OrderResponse is the full order view for host routes.
type OrderResponse struct {
	ID          string              `json:"id"`
	CustomerID  string              `json:"customer_id"`
	Items       []OrderItemResponse `json:"items,omitempty"`
	TotalAmount int64               `json:"total_amount"`
	Status      string              `json:"status"`
	Version     int64               `json:"version"`
	CreatedAt   string              `json:"created_at"`
	UpdatedAt   string              `json:"updated_at"`
}

// OrderListResponse wraps a paginated order list.
type OrderListResponse struct {
	Items      []OrderResponse `json:"items"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

// FromOrder maps a domain order to its response shape.
func FromOrder(o *domain.Order) OrderResponse {
	resp := OrderResponse{
		ID:          o.ID.String(),
		CustomerID:  o.CustomerID.String(),
		TotalAmount: o.TotalAmount,
		Status:      string(o.Status),
		Version:     o.Version,
		CreatedAt:   o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   o.UpdatedAt.UTC().Format(time.RFC3339),
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			VariantID: item.VariantID.String(),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal(),
		})
	}
	return resp
}
