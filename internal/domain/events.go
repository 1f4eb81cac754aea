package domain

import "time"

type OrderCreatedEvent struct {
	OrderID     uint64    `json:"orderId"`
	UserID      uint64    `json:"userId"`
	TotalAmount int64     `json:"totalAmount"`
	ItemCount   int       `json:"itemCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

type PaymentResultEvent struct {
	CheckoutRequestID string   `json:"checkoutRequestId"`
	Status            TxStatus `json:"status"`
	ResultCode        int      `json:"resultCode"`
	ResultDesc        string   `json:"resultDesc"`
	ReceiptNumber     string   `json:"receiptNumber,omitempty"`
	Amount            int64    `json:"amount"`
	UserID            uint64   `json:"userId"`
	OrderID           *uint64  `json:"orderId,omitempty"`
}
