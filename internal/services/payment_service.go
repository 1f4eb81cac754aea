package services

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"storefront-service/internal/domain"
	"storefront-service/internal/infra/daraja"
	rabbit "storefront-service/internal/infra/rabbitmq"
	"storefront-service/internal/repository"
)

// OrderLedger is the slice of order behavior payment needs: validating a
// payable order at initiation and linking the result back at reconciliation.
type OrderLedger interface {
	Get(ctx context.Context, principal domain.Principal, orderID uint64) (*domain.Order, error)
	ApplyPaymentResult(ctx context.Context, orderID uint64, succeeded bool) error
}

type PaymentService struct {
	payments  repository.PaymentRepository
	gateway   daraja.ClientInterface
	ledger    OrderLedger
	publisher rabbit.PublisherInterface
}

func NewPaymentService(p repository.PaymentRepository, g daraja.ClientInterface, l OrderLedger, pub rabbit.PublisherInterface) *PaymentService {
	return &PaymentService{
		payments:  p,
		gateway:   g,
		ledger:    l,
		publisher: pub,
	}
}

// Initiate pushes a payment prompt and records the pending transaction before
// returning, so the row is lookupable by correlation id by the time any
// callback can arrive.
func (s *PaymentService) Initiate(ctx context.Context, principal domain.Principal, phoneNumber string, amountCents int64, accountReference string, orderID *uint64) (*domain.PaymentTransaction, error) {
	if phoneNumber == "" {
		return nil, fmt.Errorf("%w: phone number required", domain.ErrValidation)
	}
	if amountCents < 100 {
		return nil, fmt.Errorf("%w: amount must be at least 100 cents", domain.ErrValidation)
	}
	// the gateway charges whole shillings; a remainder would make the stored
	// amount disagree with what is actually charged
	if amountCents%100 != 0 {
		return nil, fmt.Errorf("%w: amount must be a whole number of shillings", domain.ErrValidation)
	}
	if accountReference == "" {
		accountReference = "ORDER"
	}

	if orderID != nil {
		order, err := s.ledger.Get(ctx, principal, *orderID)
		if err != nil {
			return nil, err
		}
		if order.Status != domain.StatusPending {
			return nil, fmt.Errorf("%w: order %d is %s, only pending orders are payable", domain.ErrInvalidTransition, order.ID, order.Status)
		}
	}

	result, err := s.gateway.STKPush(ctx, phoneNumber, amountCents, accountReference)
	if err != nil {
		return nil, err
	}

	tx := &domain.PaymentTransaction{
		CheckoutRequestID: result.CheckoutRequestID,
		PhoneNumber:       phoneNumber,
		AccountReference:  accountReference,
		Amount:            amountCents,
		Status:            domain.TxPending,
		UserID:            principal.UserID,
		OrderID:           orderID,
	}
	if err := s.payments.Create(ctx, tx); err != nil {
		// the push is already dispatched; its callback will now be unmatched
		log.WithError(err).WithField("checkoutRequestId", result.CheckoutRequestID).
			Error("stk push dispatched but transaction row not persisted")
		return nil, err
	}

	log.WithFields(log.Fields{
		"checkoutRequestId": tx.CheckoutRequestID,
		"userId":            principal.UserID,
		"amount":            amountCents,
	}).Info("stk push initiated")

	return tx, nil
}

// HandleCallback reconciles a gateway result with its transaction row. It is
// safe under at-least-once delivery: the terminal write is conditional on the
// row still being pending, and repeated deliveries return the stored row
// unchanged.
func (s *PaymentService) HandleCallback(ctx context.Context, env daraja.CallbackEnvelope) (*domain.PaymentTransaction, error) {
	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", domain.ErrValidation)
	}

	tx, err := s.payments.FindByCheckoutRequestID(ctx, cb.CheckoutRequestID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		log.WithField("checkoutRequestId", cb.CheckoutRequestID).
			Warn("callback for unknown transaction, flagged for manual reconciliation")
		return nil, domain.ErrUnmatchedCallback
	}

	if tx.Status.Terminal() {
		log.WithFields(log.Fields{
			"checkoutRequestId": cb.CheckoutRequestID,
			"status":            tx.Status,
		}).Info("duplicate callback ignored")
		return tx, nil
	}

	status := domain.TxFailed
	receipt := ""
	var settledAt = cb.TransactionDate()
	if cb.ResultCode == 0 {
		status = domain.TxSuccess
		receipt = cb.ReceiptNumber()
	}

	applied, err := s.payments.MarkResult(ctx, cb.CheckoutRequestID, status, cb.ResultCode, cb.ResultDesc, receipt, settledAt)
	if err != nil {
		return nil, err
	}
	if !applied {
		// a concurrent delivery won the conditional update
		return s.payments.FindByCheckoutRequestID(ctx, cb.CheckoutRequestID)
	}

	tx.Status = status
	resultCode := cb.ResultCode
	tx.ResultCode = &resultCode
	tx.ResultDesc = cb.ResultDesc
	tx.ReceiptNumber = receipt
	tx.TransactionDate = settledAt

	if tx.OrderID != nil {
		if err := s.ledger.ApplyPaymentResult(ctx, *tx.OrderID, status == domain.TxSuccess); err != nil {
			// the transaction is already terminal, so acking is still correct;
			// the order linkage is recovered manually from this log line
			log.WithError(err).WithFields(log.Fields{
				"checkoutRequestId": cb.CheckoutRequestID,
				"orderId":           *tx.OrderID,
			}).Error("failed to apply payment result to order")
		}
	}

	go s.publishPaymentResultEvent(context.Background(), tx)

	return tx, nil
}

func (s *PaymentService) ListTransactions(ctx context.Context, principal domain.Principal) ([]domain.PaymentTransaction, error) {
	if !principal.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return s.payments.ListAll(ctx)
}

func (s *PaymentService) publishPaymentResultEvent(ctx context.Context, tx *domain.PaymentTransaction) {
	resultCode := 0
	if tx.ResultCode != nil {
		resultCode = *tx.ResultCode
	}
	evt := domain.PaymentResultEvent{
		CheckoutRequestID: tx.CheckoutRequestID,
		Status:            tx.Status,
		ResultCode:        resultCode,
		ResultDesc:        tx.ResultDesc,
		ReceiptNumber:     tx.ReceiptNumber,
		Amount:            tx.Amount,
		UserID:            tx.UserID,
		OrderID:           tx.OrderID,
	}

	if err := s.publisher.Publish(ctx, "payment.result", evt); err != nil {
		log.WithError(err).WithField("checkoutRequestId", tx.CheckoutRequestID).
			Error("failed to publish payment.result")
	}
}
