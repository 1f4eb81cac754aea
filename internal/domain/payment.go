package domain

import "time"

type TxStatus string

const (
	TxPending TxStatus = "pending"
	TxSuccess TxStatus = "success"
	TxFailed  TxStatus = "failed"
)

// Terminal reports whether the status may never change again. A repeated
// gateway callback for a terminal transaction must be a no-op.
func (s TxStatus) Terminal() bool {
	return s == TxSuccess || s == TxFailed
}

// PaymentTransaction records one STK push attempt. CheckoutRequestID is the
// gateway-issued correlation id and the idempotency key for reconciliation:
// the row is written in pending state before Initiate returns, so a callback
// always has something to match against.
type PaymentTransaction struct {
	ID                uint64     `json:"id" gorm:"primaryKey;autoIncrement"`
	CheckoutRequestID string     `json:"checkoutRequestId" gorm:"size:255;not null;uniqueIndex"`
	PhoneNumber       string     `json:"phoneNumber" gorm:"size:20;not null;index"`
	AccountReference  string     `json:"accountReference" gorm:"size:255"`
	Amount            int64      `json:"amount" gorm:"not null"`
	Status            TxStatus   `json:"status" gorm:"type:enum('pending','success','failed');default:'pending'"`
	ResultCode        *int       `json:"resultCode"`
	ResultDesc        string     `json:"resultDesc" gorm:"type:text"`
	ReceiptNumber     string     `json:"receiptNumber" gorm:"size:100"`
	TransactionDate   *time.Time `json:"transactionDate"`
	UserID            uint64     `json:"userId" gorm:"not null;index"`
	OrderID           *uint64    `json:"orderId" gorm:"index"`
	CreatedAt         time.Time  `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt         time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
}
