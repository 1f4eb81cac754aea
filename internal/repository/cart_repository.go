package repository

import (
	"context"

	"storefront-service/internal/domain"
)

type CartRepository interface {
	// Upsert adds qty to an existing (userID, productID) line or creates one.
	// The read-modify-write runs under a row lock so concurrent adds never
	// lose increments.
	Upsert(ctx context.Context, userID, productID uint64, qty int64) (*domain.CartItem, error)
	FindByID(ctx context.Context, id uint64) (*domain.CartItem, error)
	ListByUser(ctx context.Context, userID uint64) ([]domain.CartItem, error)
	UpdateQuantity(ctx context.Context, id uint64, qty int64) error
	Delete(ctx context.Context, id uint64) error
}
