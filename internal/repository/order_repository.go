package repository

import (
	"context"

	"storefront-service/internal/domain"
)

type OrderRepository interface {
	// CreateWithItems persists the order with its items and deletes the
	// consumed cart lines inside a single transaction: either everything
	// commits or nothing does.
	CreateWithItems(ctx context.Context, order *domain.Order, consumedCartIDs []uint64) error
	FindByID(ctx context.Context, id uint64) (*domain.Order, error)
	ListByUser(ctx context.Context, userID uint64) ([]domain.Order, error)
	ListAll(ctx context.Context) ([]domain.Order, error)
	// UpdateStatus transitions only if the current status still equals from;
	// returns false when a concurrent writer got there first.
	UpdateStatus(ctx context.Context, id uint64, from, to domain.OrderStatus) (bool, error)
	Delete(ctx context.Context, id uint64) error
}
