package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"storefront-service/internal/domain"
	"storefront-service/internal/infra"
	"storefront-service/internal/repository"
)

// CartLine is a cart item enriched with current catalog data for display.
// The price here is informational; the price frozen into an order is resolved
// separately at order creation.
type CartLine struct {
	domain.CartItem
	ProductName  string `json:"productName"`
	DisplayPrice int64  `json:"displayPrice"`
}

type CartService struct {
	carts       repository.CartRepository
	catalog     infra.CatalogClientInterface
	redisClient *redis.Client
}

func NewCartService(r repository.CartRepository, c infra.CatalogClientInterface) *CartService {
	return &CartService{
		carts:   r,
		catalog: c,
	}
}

func (s *CartService) SetRedisClient(client *redis.Client) {
	s.redisClient = client
}

func (s *CartService) Add(ctx context.Context, userID, productID uint64, qty int64) (*domain.CartItem, error) {
	if qty < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", domain.ErrValidation)
	}

	prod, err := s.getProductWithCache(ctx, productID)
	if err != nil {
		return nil, err
	}
	if prod == nil {
		return nil, fmt.Errorf("%w: product %d", domain.ErrNotFound, productID)
	}

	return s.carts.Upsert(ctx, userID, productID, qty)
}

// SetQuantity overwrites a line's quantity; zero deletes the line. Returns the
// updated line, or nil when the line was deleted.
func (s *CartService) SetQuantity(ctx context.Context, userID, itemID uint64, qty int64) (*domain.CartItem, error) {
	if qty < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", domain.ErrValidation)
	}

	item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	if qty == 0 {
		if err := s.carts.Delete(ctx, itemID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err := s.carts.UpdateQuantity(ctx, itemID, qty); err != nil {
		return nil, err
	}
	item.Quantity = qty
	return item, nil
}

// Remove deletes a line. Removing an absent line surfaces NotFound, matching
// the HTTP contract of DELETE /cart/{id}.
func (s *CartService) Remove(ctx context.Context, userID, itemID uint64) error {
	if _, err := s.ownedItem(ctx, userID, itemID); err != nil {
		return err
	}
	return s.carts.Delete(ctx, itemID)
}

func (s *CartService) List(ctx context.Context, userID uint64) ([]CartLine, error) {
	items, err := s.carts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	lines := make([]CartLine, 0, len(items))
	for _, item := range items {
		line := CartLine{CartItem: item}
		prod, err := s.getProductWithCache(ctx, item.ProductID)
		if err != nil || prod == nil {
			// display enrichment is best-effort; the line itself still shows
			log.WithError(err).WithField("productId", item.ProductID).Warn("cart: catalog lookup failed")
		} else {
			line.ProductName = prod.Name
			line.DisplayPrice = prod.Price
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *CartService) ownedItem(ctx context.Context, userID, itemID uint64) (*domain.CartItem, error) {
	item, err := s.carts.FindByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: cart item %d", domain.ErrNotFound, itemID)
	}
	if item.UserID != userID {
		return nil, domain.ErrForbidden
	}
	return item, nil
}

func (s *CartService) getProductWithCache(ctx context.Context, productID uint64) (*infra.ProductInfo, error) {
	cacheKey := fmt.Sprintf("product:%d", productID)

	if s.redisClient != nil {
		cached, err := s.redisClient.Get(ctx, cacheKey).Result()
		if err == nil {
			var prod infra.ProductInfo
			if err := json.Unmarshal([]byte(cached), &prod); err == nil {
				return &prod, nil
			}
		}
	}

	prod, err := s.catalog.GetProductById(ctx, productID)
	if err != nil {
		return nil, err
	}

	if s.redisClient != nil && prod != nil {
		if data, err := json.Marshal(prod); err == nil {
			s.redisClient.Set(ctx, cacheKey, data, time.Minute)
		}
	}

	return prod, nil
}

func (s *CartService) WarmupProductCache(ctx context.Context, productIDs []uint64) error {
	if s.redisClient == nil {
		return nil
	}

	for _, id := range productIDs {
		prod, err := s.catalog.GetProductById(ctx, id)
		if err != nil {
			log.WithError(err).WithField("productId", id).Warn("cache warmup failed")
			continue
		}

		if prod != nil {
			cacheKey := fmt.Sprintf("product:%d", id)
			if data, err := json.Marshal(prod); err == nil {
				s.redisClient.Set(ctx, cacheKey, data, 5*time.Minute)
			}
		}
	}

	return nil
}
