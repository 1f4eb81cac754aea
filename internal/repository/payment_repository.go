package repository

import (
	"context"
	"time"

	"storefront-service/internal/domain"
)

type PaymentRepository interface {
	Create(ctx context.Context, tx *domain.PaymentTransaction) error
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.PaymentTransaction, error)
	// MarkResult writes the terminal status conditionally on the row still
	// being pending. Returns false when the row was already terminal, which
	// makes duplicate callback deliveries race-safe without a lock.
	MarkResult(ctx context.Context, checkoutRequestID string, status domain.TxStatus, resultCode int, resultDesc, receiptNumber string, transactionDate *time.Time) (bool, error)
	ListAll(ctx context.Context) ([]domain.PaymentTransaction, error)
}
