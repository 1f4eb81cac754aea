package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"storefront-service/internal/domain"
	"storefront-service/internal/infra/daraja"
	"storefront-service/internal/mocks"
)

func callbackEnvelope(checkoutRequestID string, resultCode int, resultDesc string, items ...daraja.MetadataItem) daraja.CallbackEnvelope {
	var env daraja.CallbackEnvelope
	env.Body.StkCallback.CheckoutRequestID = checkoutRequestID
	env.Body.StkCallback.ResultCode = resultCode
	env.Body.StkCallback.ResultDesc = resultDesc
	env.Body.StkCallback.CallbackMetadata.Item = items
	return env
}

func TestPaymentService_Initiate(t *testing.T) {
	tests := []struct {
		name          string
		phone         string
		amount        int64
		setupMocks    func(*mocks.MockPaymentRepository, *mocks.MockGatewayClient)
		expectedError error
	}{
		{
			name:   "pending row exists before initiate returns",
			phone:  TestPhoneNumber,
			amount: TestAmountCents,
			setupMocks: func(mockRepo *mocks.MockPaymentRepository, mockGateway *mocks.MockGatewayClient) {
				mockGateway.On("STKPush", mock.Anything, TestPhoneNumber, TestAmountCents, "ORDER").
					Return(&daraja.PushResult{CheckoutRequestID: TestCheckoutID}, nil)
				mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.PaymentTransaction")).
					Return(nil).Run(func(args mock.Arguments) {
					tx := args.Get(1).(*domain.PaymentTransaction)
					assert.Equal(t, domain.TxPending, tx.Status)
					assert.Equal(t, TestCheckoutID, tx.CheckoutRequestID)
				})
			},
		},
		{
			name:          "missing phone",
			phone:         "",
			amount:        TestAmountCents,
			setupMocks:    func(*mocks.MockPaymentRepository, *mocks.MockGatewayClient) {},
			expectedError: domain.ErrValidation,
		},
		{
			name:          "amount below minimum",
			phone:         TestPhoneNumber,
			amount:        50,
			setupMocks:    func(*mocks.MockPaymentRepository, *mocks.MockGatewayClient) {},
			expectedError: domain.ErrValidation,
		},
		{
			// the gateway only moves whole shillings; 2050 cents would be
			// charged as 20 and stored as 2050
			name:          "amount with sub-shilling remainder",
			phone:         TestPhoneNumber,
			amount:        2050,
			setupMocks:    func(*mocks.MockPaymentRepository, *mocks.MockGatewayClient) {},
			expectedError: domain.ErrValidation,
		},
		{
			name:   "gateway unavailable, nothing persisted",
			phone:  TestPhoneNumber,
			amount: TestAmountCents,
			setupMocks: func(mockRepo *mocks.MockPaymentRepository, mockGateway *mocks.MockGatewayClient) {
				mockGateway.On("STKPush", mock.Anything, TestPhoneNumber, TestAmountCents, "ORDER").
					Return(nil, domain.ErrGatewayUnavailable)
			},
			expectedError: domain.ErrGatewayUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(mocks.MockPaymentRepository)
			mockGateway := new(mocks.MockGatewayClient)
			tt.setupMocks(mockRepo, mockGateway)

			service := NewPaymentService(mockRepo, mockGateway, new(mocks.MockOrderLedger), new(mocks.MockPublisher))

			tx, err := service.Initiate(context.Background(), customerPrincipal, tt.phone, tt.amount, "", nil)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, tx)
				mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
				if errors.Is(tt.expectedError, domain.ErrValidation) {
					mockGateway.AssertNotCalled(t, "STKPush", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
				}
			} else {
				assert.NoError(t, err)
				assert.Equal(t, TestCheckoutID, tx.CheckoutRequestID)
				assert.Equal(t, domain.TxPending, tx.Status)
				assert.Equal(t, TestUserID, tx.UserID)
			}
			mockRepo.AssertExpectations(t)
			mockGateway.AssertExpectations(t)
		})
	}
}

func TestPaymentService_Initiate_OrderLink(t *testing.T) {
	orderID := TestOrderID

	t.Run("linking another user's order is forbidden", func(t *testing.T) {
		mockLedger := new(mocks.MockOrderLedger)
		mockGateway := new(mocks.MockGatewayClient)
		mockLedger.On("Get", mock.Anything, customerPrincipal, orderID).Return(nil, domain.ErrForbidden)

		service := NewPaymentService(new(mocks.MockPaymentRepository), mockGateway, mockLedger, new(mocks.MockPublisher))

		tx, err := service.Initiate(context.Background(), customerPrincipal, TestPhoneNumber, TestAmountCents, "", &orderID)

		assert.ErrorIs(t, err, domain.ErrForbidden)
		assert.Nil(t, tx)
		mockGateway.AssertNotCalled(t, "STKPush", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("linking an unknown order", func(t *testing.T) {
		mockLedger := new(mocks.MockOrderLedger)
		mockLedger.On("Get", mock.Anything, customerPrincipal, orderID).Return(nil, domain.ErrNotFound)

		service := NewPaymentService(new(mocks.MockPaymentRepository), new(mocks.MockGatewayClient), mockLedger, new(mocks.MockPublisher))

		_, err := service.Initiate(context.Background(), customerPrincipal, TestPhoneNumber, TestAmountCents, "", &orderID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("only pending orders are payable", func(t *testing.T) {
		mockLedger := new(mocks.MockOrderLedger)
		mockGateway := new(mocks.MockGatewayClient)
		mockLedger.On("Get", mock.Anything, customerPrincipal, orderID).Return(&domain.Order{
			ID:     orderID,
			UserID: TestUserID,
			Status: domain.StatusProcessing,
		}, nil)

		service := NewPaymentService(new(mocks.MockPaymentRepository), mockGateway, mockLedger, new(mocks.MockPublisher))

		_, err := service.Initiate(context.Background(), customerPrincipal, TestPhoneNumber, TestAmountCents, "", &orderID)

		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		mockGateway.AssertNotCalled(t, "STKPush", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("own pending order links onto the transaction", func(t *testing.T) {
		mockRepo := new(mocks.MockPaymentRepository)
		mockLedger := new(mocks.MockOrderLedger)
		mockGateway := new(mocks.MockGatewayClient)

		mockLedger.On("Get", mock.Anything, customerPrincipal, orderID).Return(&domain.Order{
			ID:     orderID,
			UserID: TestUserID,
			Status: domain.StatusPending,
		}, nil)
		mockGateway.On("STKPush", mock.Anything, TestPhoneNumber, TestAmountCents, "ORDER").
			Return(&daraja.PushResult{CheckoutRequestID: TestCheckoutID}, nil)
		mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.PaymentTransaction")).Return(nil)

		service := NewPaymentService(mockRepo, mockGateway, mockLedger, new(mocks.MockPublisher))

		tx, err := service.Initiate(context.Background(), customerPrincipal, TestPhoneNumber, TestAmountCents, "", &orderID)

		assert.NoError(t, err)
		assert.NotNil(t, tx.OrderID)
		assert.Equal(t, orderID, *tx.OrderID)
		mockLedger.AssertExpectations(t)
	})
}

func TestPaymentService_HandleCallback(t *testing.T) {
	orderID := TestOrderID

	t.Run("success stores receipt and advances the order", func(t *testing.T) {
		mockRepo := new(mocks.MockPaymentRepository)
		mockLedger := new(mocks.MockOrderLedger)
		mockPub := new(mocks.MockPublisher)

		pending := CreateMockTransaction(TestCheckoutID, domain.TxPending, TestUserID, &orderID)
		mockRepo.On("FindByCheckoutRequestID", mock.Anything, TestCheckoutID).Return(pending, nil)
		mockRepo.On("MarkResult", mock.Anything, TestCheckoutID, domain.TxSuccess, 0, "Success", "QAX123", mock.Anything).
			Return(true, nil)
		mockLedger.On("ApplyPaymentResult", mock.Anything, orderID, true).Return(nil)
		mockPub.On("Publish", mock.Anything, "payment.result", mock.Anything).Return(nil).Maybe()

		service := NewPaymentService(mockRepo, new(mocks.MockGatewayClient), mockLedger, mockPub)

		env := callbackEnvelope(TestCheckoutID, 0, "Success",
			daraja.MetadataItem{Name: "MpesaReceiptNumber", Value: "QAX123"},
			daraja.MetadataItem{Name: "TransactionDate", Value: float64(20260901123000)},
		)
		tx, err := service.HandleCallback(context.Background(), env)

		assert.NoError(t, err)
		assert.Equal(t, domain.TxSuccess, tx.Status)
		assert.Equal(t, "QAX123", tx.ReceiptNumber)
		mockRepo.AssertExpectations(t)
		mockLedger.AssertExpectations(t)
	})

	t.Run("non-zero result code fails the transaction, order untouched", func(t *testing.T) {
		mockRepo := new(mocks.MockPaymentRepository)
		mockLedger := new(mocks.MockOrderLedger)
		mockPub := new(mocks.MockPublisher)

		pending := CreateMockTransaction(TestCheckoutID, domain.TxPending, TestUserID, &orderID)
		mockRepo.On("FindByCheckoutRequestID", mock.Anything, TestCheckoutID).Return(pending, nil)
		mockRepo.On("MarkResult", mock.Anything, TestCheckoutID, domain.TxFailed, 1032, "Request cancelled by user", "", mock.Anything).
			Return(true, nil)
		mockLedger.On("ApplyPaymentResult", mock.Anything, orderID, false).Return(nil)
		mockPub.On("Publish", mock.Anything, "payment.result", mock.Anything).Return(nil).Maybe()

		service := NewPaymentService(mockRepo, new(mocks.MockGatewayClient), mockLedger, mockPub)

		tx, err := service.HandleCallback(context.Background(), callbackEnvelope(TestCheckoutID, 1032, "Request cancelled by user"))

		assert.NoError(t, err)
		assert.Equal(t, domain.TxFailed, tx.Status)
		assert.Empty(t, tx.ReceiptNumber)
		mockRepo.AssertExpectations(t)
		mockLedger.AssertExpectations(t)
	})

	t.Run("duplicate delivery of a terminal result is a no-op", func(t *testing.T) {
		mockRepo := new(mocks.MockPaymentRepository)

		settled := CreateMockTransaction(TestCheckoutID, domain.TxSuccess, TestUserID, &orderID)
		settled.ReceiptNumber = "QAX123"
		mockRepo.On("FindByCheckoutRequestID", mock.Anything, TestCheckoutID).Return(settled, nil)

		service := NewPaymentService(mockRepo, new(mocks.MockGatewayClient), new(mocks.MockOrderLedger), new(mocks.MockPublisher))

		tx, err := service.HandleCallback(context.Background(), callbackEnvelope(TestCheckoutID, 0, "Success"))

		assert.NoError(t, err)
		assert.Equal(t, domain.TxSuccess, tx.Status)
		assert.Equal(t, "QAX123", tx.ReceiptNumber)
		mockRepo.AssertNotCalled(t, "MarkResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("a late success cannot overwrite a failed transaction", func(t *testing.T) {
		mockRepo := new(mocks.MockPaymentRepository)

		failed := CreateMockTransaction(TestCheckoutID, domain.TxFailed, TestUserID, nil)
		mockRepo.On("FindByCheckoutRequestID", mock.Anything, TestCheckoutID).Return(failed, nil)

		service := NewPaymentService(mockRepo, new(mocks.MockGatewayClient), new(mocks.MockOrderLedger), new(mocks.MockPublisher))

		tx, err := service.HandleCallback(context.Background(), callbackEnvelope(TestCheckoutID, 0, "Success",
			daraja.MetadataItem{Name: "MpesaReceiptNumber", Value: "QAX999"}))

		assert.NoError(t, err)
		assert.Equal(t, domain.TxFailed, tx.Status)
		assert.Empty(t, tx.ReceiptNumber)
		mockRepo.AssertNotCalled(t, "MarkResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unmatched callback", func(t *testing.T) {
		mockRepo := new(mocks.MockPaymentRepository)
		mockRepo.On("FindByCheckoutRequestID", mock.Anything, "ws_CO_unknown").Return(nil, nil)

		service := NewPaymentService(mockRepo, new(mocks.MockGatewayClient), new(mocks.MockOrderLedger), new(mocks.MockPublisher))

		tx, err := service.HandleCallback(context.Background(), callbackEnvelope("ws_CO_unknown", 0, "Success"))

		assert.ErrorIs(t, err, domain.ErrUnmatchedCallback)
		assert.Nil(t, tx)
	})

	t.Run("concurrent delivery loses the conditional update and reads back", func(t *testing.T) {
		mockRepo := new(mocks.MockPaymentRepository)

		pending := CreateMockTransaction(TestCheckoutID, domain.TxPending, TestUserID, nil)
		settled := CreateMockTransaction(TestCheckoutID, domain.TxSuccess, TestUserID, nil)
		settled.ReceiptNumber = "QAX123"

		mockRepo.On("FindByCheckoutRequestID", mock.Anything, TestCheckoutID).Return(pending, nil).Once()
		mockRepo.On("MarkResult", mock.Anything, TestCheckoutID, domain.TxSuccess, 0, "Success", "QAX123", mock.Anything).
			Return(false, nil)
		mockRepo.On("FindByCheckoutRequestID", mock.Anything, TestCheckoutID).Return(settled, nil).Once()

		service := NewPaymentService(mockRepo, new(mocks.MockGatewayClient), new(mocks.MockOrderLedger), new(mocks.MockPublisher))

		tx, err := service.HandleCallback(context.Background(), callbackEnvelope(TestCheckoutID, 0, "Success",
			daraja.MetadataItem{Name: "MpesaReceiptNumber", Value: "QAX123"}))

		assert.NoError(t, err)
		assert.Equal(t, domain.TxSuccess, tx.Status)
		mockRepo.AssertExpectations(t)
	})

	t.Run("missing correlation id", func(t *testing.T) {
		service := NewPaymentService(new(mocks.MockPaymentRepository), new(mocks.MockGatewayClient), new(mocks.MockOrderLedger), new(mocks.MockPublisher))

		_, err := service.HandleCallback(context.Background(), callbackEnvelope("", 0, "Success"))
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestPaymentService_ListTransactions(t *testing.T) {
	t.Run("admin only", func(t *testing.T) {
		service := NewPaymentService(new(mocks.MockPaymentRepository), new(mocks.MockGatewayClient), new(mocks.MockOrderLedger), new(mocks.MockPublisher))

		_, err := service.ListTransactions(context.Background(), customerPrincipal)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("admin sees everything", func(t *testing.T) {
		mockRepo := new(mocks.MockPaymentRepository)
		mockRepo.On("ListAll", mock.Anything).Return([]domain.PaymentTransaction{
			*CreateMockTransaction(TestCheckoutID, domain.TxSuccess, TestUserID, nil),
		}, nil)

		service := NewPaymentService(mockRepo, new(mocks.MockGatewayClient), new(mocks.MockOrderLedger), new(mocks.MockPublisher))

		txs, err := service.ListTransactions(context.Background(), adminPrincipal)
		assert.NoError(t, err)
		assert.Len(t, txs, 1)
	})
}
