package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"storefront-service/internal/domain"
	"storefront-service/internal/infra"
	"storefront-service/internal/infra/daraja"
)

type MockCartRepository struct {
	mock.Mock
}

func (m *MockCartRepository) Upsert(ctx context.Context, userID, productID uint64, qty int64) (*domain.CartItem, error) {
	args := m.Called(ctx, userID, productID, qty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CartItem), args.Error(1)
}

func (m *MockCartRepository) FindByID(ctx context.Context, id uint64) (*domain.CartItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CartItem), args.Error(1)
}

func (m *MockCartRepository) ListByUser(ctx context.Context, userID uint64) ([]domain.CartItem, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CartItem), args.Error(1)
}

func (m *MockCartRepository) UpdateQuantity(ctx context.Context, id uint64, qty int64) error {
	args := m.Called(ctx, id, qty)
	return args.Error(0)
}

func (m *MockCartRepository) Delete(ctx context.Context, id uint64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) CreateWithItems(ctx context.Context, order *domain.Order, consumedCartIDs []uint64) error {
	args := m.Called(ctx, order, consumedCartIDs)
	return args.Error(0)
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id uint64) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) ListByUser(ctx context.Context, userID uint64) ([]domain.Order, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Order), args.Error(1)
}

func (m *MockOrderRepository) ListAll(ctx context.Context) ([]domain.Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, id uint64, from, to domain.OrderStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) Delete(ctx context.Context, id uint64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Create(ctx context.Context, tx *domain.PaymentTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockPaymentRepository) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.PaymentTransaction, error) {
	args := m.Called(ctx, checkoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentTransaction), args.Error(1)
}

func (m *MockPaymentRepository) MarkResult(ctx context.Context, checkoutRequestID string, status domain.TxStatus, resultCode int, resultDesc, receiptNumber string, transactionDate *time.Time) (bool, error) {
	args := m.Called(ctx, checkoutRequestID, status, resultCode, resultDesc, receiptNumber, transactionDate)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) ListAll(ctx context.Context) ([]domain.PaymentTransaction, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PaymentTransaction), args.Error(1)
}

type MockCatalogClient struct {
	mock.Mock
}

func (m *MockCatalogClient) GetProductById(ctx context.Context, productID uint64) (*infra.ProductInfo, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*infra.ProductInfo), args.Error(1)
}

type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) AccessToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockGatewayClient) STKPush(ctx context.Context, phoneNumber string, amountCents int64, accountReference string) (*daraja.PushResult, error) {
	args := m.Called(ctx, phoneNumber, amountCents, accountReference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*daraja.PushResult), args.Error(1)
}

type MockOrderLedger struct {
	mock.Mock
}

func (m *MockOrderLedger) Get(ctx context.Context, principal domain.Principal, orderID uint64) (*domain.Order, error) {
	args := m.Called(ctx, principal, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderLedger) ApplyPaymentResult(ctx context.Context, orderID uint64, succeeded bool) error {
	args := m.Called(ctx, orderID, succeeded)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, message interface{}) error {
	args := m.Called(ctx, topic, message)
	return args.Error(0)
}
