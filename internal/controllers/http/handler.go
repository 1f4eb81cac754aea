package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-service/internal/domain"
	"storefront-service/internal/infra/daraja"
	"storefront-service/internal/services"
)

type Handler struct {
	carts    *services.CartService
	orders   *services.OrderService
	payments *services.PaymentService
}

func NewHandler(carts *services.CartService, orders *services.OrderService, payments *services.PaymentService) *Handler {
	return &Handler{carts: carts, orders: orders, payments: payments}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// gateway-originated, deliberately unauthenticated
	r.POST("/mpesa/callback", h.MpesaCallback)

	auth := r.Group("/", Authenticate())
	auth.GET("/cart", h.GetCart)
	auth.POST("/cart/add", h.AddToCart)
	auth.POST("/cart/update", h.UpdateCart)
	auth.DELETE("/cart/:id", h.RemoveCartItem)

	auth.GET("/orders", h.ListOrders)
	auth.POST("/orders", h.CreateOrder)
	auth.GET("/orders/:id", h.GetOrder)
	auth.PUT("/orders/:id", h.UpdateOrder)
	auth.DELETE("/orders/:id", h.DeleteOrder)

	auth.POST("/mpesa/stkpush", h.InitiateSTKPush)
	auth.GET("/mpesa/transactions", RequireRole(domain.RoleAdmin), h.ListTransactions)
}

func (h *Handler) GetCart(c *gin.Context) {
	lines, err := h.carts.List(c.Request.Context(), principalFrom(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lines)
}

func (h *Handler) AddToCart(c *gin.Context) {
	var req AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.carts.Add(c.Request.Context(), principalFrom(c).UserID, req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) UpdateCart(c *gin.Context) {
	var req UpdateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.carts.SetQuantity(c.Request.Context(), principalFrom(c).UserID, req.ID, *req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	if item == nil {
		c.JSON(http.StatusOK, gin.H{"message": "removed"})
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) RemoveCartItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.carts.Remove(c.Request.Context(), principalFrom(c).UserID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}

func (h *Handler) ListOrders(c *gin.Context) {
	orders, err := h.orders.List(c.Request.Context(), principalFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orders.CreateFromCart(c.Request.Context(), principalFrom(c), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.Get(c.Request.Context(), principalFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) UpdateOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orders.SetStatus(c.Request.Context(), principalFrom(c), id, domain.OrderStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) DeleteOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.orders.Delete(c.Request.Context(), principalFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "order deleted"})
}

func (h *Handler) InitiateSTKPush(c *gin.Context) {
	var req STKPushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := h.payments.Initiate(c.Request.Context(), principalFrom(c), req.PhoneNumber, req.Amount, req.AccountReference, req.OrderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, STKPushResponse{CheckoutRequestID: tx.CheckoutRequestID})
}

// MpesaCallback acknowledges everything it can. An unmatched transaction is
// acked with a non-zero result body rather than an HTTP error, because the
// gateway retries failed deliveries and an unknown correlation id will never
// start matching.
func (h *Handler) MpesaCallback(c *gin.Context) {
	var env daraja.CallbackEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ResultCode": 1, "ResultDesc": "invalid payload"})
		return
	}

	_, err := h.payments.HandleCallback(c.Request.Context(), env)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
	case errors.Is(err, domain.ErrUnmatchedCallback):
		c.JSON(http.StatusOK, gin.H{"ResultCode": 1, "ResultDesc": "transaction not found"})
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"ResultCode": 1, "ResultDesc": "invalid payload"})
	default:
		// genuinely transient (storage down); let the gateway retry
		c.JSON(http.StatusInternalServerError, gin.H{"ResultCode": 1, "ResultDesc": "internal error"})
	}
}

func (h *Handler) ListTransactions(c *gin.Context) {
	txs, err := h.payments.ListTransactions(c.Request.Context(), principalFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txs)
}
