package handler

import (
	"strconv"

	"groupbuy-core/internal/adapter/http/dto"
	"groupbuy-core/internal/adapter/http/middleware"
	"groupbuy-core/internal/core/domain"
	"groupbuy-core/internal/core/ports"
	"groupbuy-core/pkg/apperror"
	"groupbuy-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HostHandler handles authenticated host endpoints.
type HostHandler struct {
	authSvc      ports.AuthService
	lifecycleSvc ports.LifecycleService
	tenants      ports.TenantRepository
}

// NewHostHandler creates a new HostHandler.
func NewHostHandler(authSvc ports.AuthService, lifecycleSvc ports.LifecycleService, tenants ports.TenantRepository) *HostHandler {
	return &HostHandler{authSvc: authSvc, lifecycleSvc: lifecycleSvc, tenants: tenants}
}

// Login handles POST /api/host/auth/login. The tenant slug arrives in the
// body because hosts have no token yet; the issued JWT pins the tenant for
// every later call.
func (h *HostHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	tenant, err := h.tenants.GetBySlug(c.Request.Context(), req.TenantSlug)
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}
	if tenant == nil {
		// Same answer as a bad password; slugs are not probeable here.
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	token, expiresAt, err := h.authSvc.Login(c.Request.Context(), domain.NewScope(tenant.ID), req.Username, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.LoginResponse{Token: token, Expiry: expiresAt.Unix()})
}

// Transition handles POST /api/host/orders/:id/transition.
func (h *HostHandler) Transition(c *gin.Context) {
	scope, ok := middleware.ScopeFrom(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	orderID, err := parseUUIDParam(c, "id")
	if err != nil {
		response.Error(c, apperror.Validation("invalid order id"))
		return
	}

	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	order, err := h.lifecycleSvc.Transition(c.Request.Context(), scope, ports.TransitionRequest{
		OrderID:         orderID,
		Action:          domain.TransitionAction(req.Action),
		ExpectedVersion: req.ExpectedVersion,
		ProviderRef:     req.ProviderRef,
		CarrierRef:      req.CarrierRef,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromOrder(order))
}

// GetOrder handles GET /api/host/orders/:id.
func (h *HostHandler) GetOrder(c *gin.Context) {
	scope, ok := middleware.ScopeFrom(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	orderID, err := parseUUIDParam(c, "id")
	if err != nil {
		response.Error(c, apperror.Validation("invalid order id"))
		return
	}

	order, err := h.lifecycleSvc.Get(c.Request.Context(), scope, orderID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromOrder(order))
}

// ListOrders handles GET /api/host/orders.
func (h *HostHandler) ListOrders(c *gin.Context) {
	scope, ok := middleware.ScopeFrom(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	params := ports.OrderListParams{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	if s := c.Query("status"); s != "" {
		status := domain.OrderStatus(s)
		params.Status = &status
	}
	if from := c.Query("from"); from != "" {
		if ts, err := strconv.ParseInt(from, 10, 64); err == nil {
			params.From = &ts
		}
	}
	if to := c.Query("to"); to != "" {
		if ts, err := strconv.ParseInt(to, 10, 64); err == nil {
			params.To = &ts
		}
	}

	orders, total, err := h.lifecycleSvc.List(c.Request.Context(), scope, params)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.OrderListResponse{
		Items:    make([]dto.OrderResponse, 0, len(orders)),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	for i := range orders {
		resp.Items = append(resp.Items, dto.FromOrder(&orders[i]))
	}
	if params.PageSize > 0 {
		resp.TotalPages = int((total + int64(params.PageSize) - 1) / int64(params.PageSize))
	}

	response.OK(c, resp)
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	return uuid.Parse(c.Param(name))
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}
