package mysql

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"storefront-service/internal/domain"
	"storefront-service/internal/repository"
)

type paymentRepo struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) repository.PaymentRepository {
	return &paymentRepo{db: db}
}

func (r *paymentRepo) Create(ctx context.Context, tx *domain.PaymentTransaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		log.WithError(err).WithField("checkoutRequestId", tx.CheckoutRequestID).Error("payment transaction create failed")
		return err
	}
	return nil
}

func (r *paymentRepo) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.PaymentTransaction, error) {
	var tx domain.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("checkout_request_id = ?", checkoutRequestID).
		First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

// MarkResult is the single writer of terminal state. The WHERE status =
// 'pending' guard makes the initiator/callback race and duplicate deliveries
// resolve to exactly one applied result.
func (r *paymentRepo) MarkResult(ctx context.Context, checkoutRequestID string, status domain.TxStatus, resultCode int, resultDesc, receiptNumber string, transactionDate *time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":      status,
		"result_code": resultCode,
		"result_desc": resultDesc,
	}
	if receiptNumber != "" {
		updates["receipt_number"] = receiptNumber
	}
	if transactionDate != nil {
		updates["transaction_date"] = transactionDate
	}

	res := r.db.WithContext(ctx).
		Model(&domain.PaymentTransaction{}).
		Where("checkout_request_id = ? AND status = ?", checkoutRequestID, domain.TxPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *paymentRepo) ListAll(ctx context.Context) ([]domain.PaymentTransaction, error) {
	var out []domain.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
