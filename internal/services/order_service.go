package services

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"storefront-service/internal/domain"
	"storefront-service/internal/infra"
	rabbit "storefront-service/internal/infra/rabbitmq"
	"storefront-service/internal/repository"
)

type OrderService struct {
	orders    repository.OrderRepository
	carts     repository.CartRepository
	catalog   infra.CatalogClientInterface
	publisher rabbit.PublisherInterface
}

func NewOrderService(o repository.OrderRepository, c repository.CartRepository, cat infra.CatalogClientInterface, pub rabbit.PublisherInterface) *OrderService {
	return &OrderService{
		orders:    o,
		carts:     c,
		catalog:   cat,
		publisher: pub,
	}
}

// CreateFromCart converts the target user's cart into an immutable order.
// Unit prices are resolved from the catalog at this instant and frozen into
// the order items; the insert and the cart clear commit atomically.
// forUserID zero means the principal's own cart; creating for another user
// requires the admin role.
func (s *OrderService) CreateFromCart(ctx context.Context, principal domain.Principal, forUserID uint64) (*domain.Order, error) {
	target := principal.UserID
	if forUserID != 0 && forUserID != principal.UserID {
		if !principal.IsAdmin() {
			return nil, domain.ErrForbidden
		}
		target = forUserID
	}

	cartItems, err := s.carts.ListByUser(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(cartItems) == 0 {
		return nil, domain.ErrEmptyCart
	}

	var total int64
	orderItems := make([]domain.OrderItem, 0, len(cartItems))
	consumedIDs := make([]uint64, 0, len(cartItems))
	for _, ci := range cartItems {
		// deliberately bypasses the display cache: the frozen price must be
		// the catalog's current answer, not a stale cached one
		prod, err := s.catalog.GetProductById(ctx, ci.ProductID)
		if err != nil {
			return nil, err
		}
		if prod == nil {
			return nil, fmt.Errorf("%w: product %d no longer exists", domain.ErrNotFound, ci.ProductID)
		}

		orderItems = append(orderItems, domain.OrderItem{
			ProductID: ci.ProductID,
			Quantity:  ci.Quantity,
			UnitPrice: prod.Price,
		})
		total += prod.Price * ci.Quantity
		consumedIDs = append(consumedIDs, ci.ID)
	}

	order := &domain.Order{
		UserID:      target,
		Status:      domain.StatusPending,
		TotalAmount: total,
		Items:       orderItems,
	}

	if err := s.orders.CreateWithItems(ctx, order, consumedIDs); err != nil {
		return nil, err
	}

	go s.publishOrderCreatedEvent(context.Background(), order)

	return order, nil
}

func (s *OrderService) Get(ctx context.Context, principal domain.Principal, orderID uint64) (*domain.Order, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("%w: order %d", domain.ErrNotFound, orderID)
	}
	if o.UserID != principal.UserID && !principal.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return o, nil
}

func (s *OrderService) List(ctx context.Context, principal domain.Principal) ([]domain.Order, error) {
	if principal.IsAdmin() {
		return s.orders.ListAll(ctx)
	}
	return s.orders.ListByUser(ctx, principal.UserID)
}

// SetStatus validates the transition against the order state machine. Admins
// go through the same table; there is no override that can move a terminal or
// shipped order backwards.
func (s *OrderService) SetStatus(ctx context.Context, principal domain.Principal, orderID uint64, next domain.OrderStatus) (*domain.Order, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, next)
	}

	order, err := s.Get(ctx, principal, orderID)
	if err != nil {
		return nil, err
	}

	if !order.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, next)
	}

	applied, err := s.orders.UpdateStatus(ctx, orderID, order.Status, next)
	if err != nil {
		return nil, err
	}
	if !applied {
		// a concurrent writer moved the order first
		return nil, fmt.Errorf("%w: order %d changed concurrently", domain.ErrInvalidTransition, orderID)
	}

	order.Status = next
	return order, nil
}

func (s *OrderService) Delete(ctx context.Context, principal domain.Principal, orderID uint64) error {
	if !principal.IsAdmin() {
		return domain.ErrForbidden
	}
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o == nil {
		return fmt.Errorf("%w: order %d", domain.ErrNotFound, orderID)
	}
	return s.orders.Delete(ctx, orderID)
}

// ApplyPaymentResult links a reconciled payment back to its order. Success
// advances pending->processing exactly once; failure leaves the order alone
// so the user can retry payment, and the failure stays visible on the
// transaction row.
func (s *OrderService) ApplyPaymentResult(ctx context.Context, orderID uint64, succeeded bool) error {
	if !succeeded {
		log.WithField("orderId", orderID).Warn("payment failed, order left pending")
		return nil
	}

	applied, err := s.orders.UpdateStatus(ctx, orderID, domain.StatusPending, domain.StatusProcessing)
	if err != nil {
		return err
	}
	if !applied {
		log.WithField("orderId", orderID).Warn("payment succeeded but order is not pending, result dropped")
	}
	return nil
}

func (s *OrderService) publishOrderCreatedEvent(ctx context.Context, order *domain.Order) {
	evt := domain.OrderCreatedEvent{
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		ItemCount:   len(order.Items),
		CreatedAt:   order.CreatedAt,
	}

	if err := s.publisher.Publish(ctx, "order.created", evt); err != nil {
		log.WithError(err).WithField("orderId", order.ID).Error("failed to publish order.created")
	}
}
