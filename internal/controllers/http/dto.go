package http

type AddToCartRequest struct {
	ProductID uint64 `json:"productId" binding:"required"`
	Quantity  int64  `json:"quantity" binding:"required,min=1"`
}

// Quantity is a pointer so zero (delete the line) survives binding.
type UpdateCartRequest struct {
	ID       uint64 `json:"id" binding:"required"`
	Quantity *int64 `json:"quantity" binding:"required"`
}

type CreateOrderRequest struct {
	UserID uint64 `json:"userId"`
}

type UpdateOrderRequest struct {
	Status string `json:"status" binding:"required"`
}

type STKPushRequest struct {
	PhoneNumber      string  `json:"phone" binding:"required"`
	Amount           int64   `json:"amount" binding:"required,min=100"`
	AccountReference string  `json:"accountReference"`
	OrderID          *uint64 `json:"orderId"`
}

type STKPushResponse struct {
	CheckoutRequestID string `json:"checkoutRequestId"`
}
