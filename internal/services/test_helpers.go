package services

import (
	"time"

	"storefront-service/internal/domain"
	"storefront-service/internal/infra"
)

func CreateMockProduct(id uint64, name string, price int64, qty int64) *infra.ProductInfo {
	return &infra.ProductInfo{
		ID:    id,
		Name:  name,
		Price: price,
		Qty:   qty,
	}
}

func CreateMockCartItem(id, userID, productID uint64, qty int64) domain.CartItem {
	return domain.CartItem{
		ID:        id,
		UserID:    userID,
		ProductID: productID,
		Quantity:  qty,
		CreatedAt: time.Now(),
	}
}

func CreateMockTransaction(checkoutRequestID string, status domain.TxStatus, userID uint64, orderID *uint64) *domain.PaymentTransaction {
	return &domain.PaymentTransaction{
		ID:                1,
		CheckoutRequestID: checkoutRequestID,
		PhoneNumber:       TestPhoneNumber,
		AccountReference:  "ORDER",
		Amount:            TestAmountCents,
		Status:            status,
		UserID:            userID,
		OrderID:           orderID,
		CreatedAt:         time.Now(),
	}
}

const (
	TestUserID      = uint64(7)
	TestOtherUserID = uint64(8)
	TestAdminID     = uint64(1)
	TestProductID   = uint64(1)
	TestOrderID     = uint64(42)
	TestPhoneNumber = "254708374149"
	TestAmountCents = int64(2000)
	TestCheckoutID  = "ws_CO_01092026100101"
)

var (
	customerPrincipal = domain.Principal{UserID: TestUserID, Role: domain.RoleCustomer}
	adminPrincipal    = domain.Principal{UserID: TestAdminID, Role: domain.RoleAdmin}
)
